package ingredient

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository は食材の同一性グラフに対するデータアクセスを定義します
// すべてのメソッドは Transactor が開いたトランザクションの中で呼び出されます
type Repository interface {
	// 読み取り
	GetIngredient(ctx context.Context, id uuid.UUID) (mo.Option[*Ingredient], error)
	GetIngredientByName(ctx context.Context, name string) (mo.Option[*Ingredient], error)
	FindAliasOwner(ctx context.Context, alias string) (mo.Option[uuid.UUID], error)
	CountRecipes(ctx context.Context, id uuid.UUID) (int, error)
	ListRecipeSummaries(ctx context.Context, id uuid.UUID, limit int) ([]RecipeSummary, error)
	ListIngredients(ctx context.Context, q ListQuery) ([]*ListItem, error)

	// 排他制御（トランザクション終了まで保持）
	// ID のロックを名前のロックより先に取得すること
	LockIngredients(ctx context.Context, ids []uuid.UUID) error
	LockNames(ctx context.Context, names []string) error

	// 書き込み
	CreateIngredient(ctx context.Context, ing *Ingredient) error
	UpdateIngredient(ctx context.Context, ing *Ingredient) error
	AddAliases(ctx context.Context, id uuid.UUID, aliases []string) error
	RemoveAliases(ctx context.Context, id uuid.UUID, aliases []string) error
	DeleteIngredient(ctx context.Context, id uuid.UUID) error

	// RecipeReferenceStore
	// from を参照するレシピを to に付け替えます。既に to を参照しているレシピでは (recipe, from) を削除します
	RepointReferences(ctx context.Context, fromID, toID uuid.UUID) error
}

// Transactor はトランザクション境界を提供します
// fn がエラーを返した場合はロールバックされ、変更は一切残りません
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
