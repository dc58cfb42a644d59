package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// Repository は料理本・索引ページ・抽出結果・レシピのデータアクセスを定義します
type Repository interface {
	// CookbookStore
	CreateCookbook(ctx context.Context, cb *Cookbook) error
	GetCookbook(ctx context.Context, id uuid.UUID) (mo.Option[*Cookbook], error)
	// LockCookbook はトランザクション終了まで料理本の行をロックして取得します
	LockCookbook(ctx context.Context, id uuid.UUID) (mo.Option[*Cookbook], error)

	// CookbookStatus
	// CompareAndSetStatus は現在の状態が expected の場合だけ next に置き換え、エラーメッセージを消去します
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error)
	// SetTerminalStatus は PROCESSING の場合だけ終了状態とメッセージを設定します
	SetTerminalStatus(ctx context.Context, id uuid.UUID, status Status, message *string) (bool, error)
	// ResetStatus は状態を NONE に戻し、メッセージと進捗を消去します
	ResetStatus(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, current, total int) error

	// PageStore
	ListPages(ctx context.Context, cookbookID uuid.UUID) ([]*Page, error)
	CountPages(ctx context.Context, cookbookID uuid.UUID) (int, error)
	MaxPageOrder(ctx context.Context, cookbookID uuid.UUID) (int, error)
	AddPage(ctx context.Context, page *Page) error

	// ResultStore
	DeleteResults(ctx context.Context, cookbookID uuid.UUID) error
	AppendResults(ctx context.Context, cookbookID uuid.UUID, results []ExtractionResult) error
	ListResults(ctx context.Context, cookbookID uuid.UUID) ([]ExtractionResult, error)

	// Recipes
	FindRecipe(ctx context.Context, cookbookID uuid.UUID, name string, pageNumber int) (mo.Option[uuid.UUID], error)
	CreateRecipe(ctx context.Context, recipe *Recipe) error
	// AttachIngredient は (recipe, ingredient) の組を追加します。既に存在する場合は何もしません
	AttachIngredient(ctx context.Context, recipeID, ingredientID uuid.UUID) error
}

// Tx は1つのトランザクションで使えるリポジトリの束
type Tx interface {
	Cookbooks() Repository
	Ingredients() ingredient.Repository
}

// Transactor はトランザクション境界を提供します
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PageExtractor は1ページの画像から抽出結果を返す外部機能
// 失敗時は ErrExtractionFailed をラップしたエラーを返します。呼び出しのタイムアウトは実装側の責務です
type PageExtractor interface {
	Extract(ctx context.Context, image []byte, contentType string) ([]Extraction, error)
}

// ExtractorFunc は関数を PageExtractor として扱うアダプタ
type ExtractorFunc func(ctx context.Context, image []byte, contentType string) ([]Extraction, error)

// Extract は f を呼び出します
func (f ExtractorFunc) Extract(ctx context.Context, image []byte, contentType string) ([]Extraction, error) {
	return f(ctx, image, contentType)
}
