package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Status は料理本ごとの OCR ジョブの状態
type Status string

const (
	StatusNone                Status = "NONE"
	StatusProcessing          Status = "PROCESSING"
	StatusCompleted           Status = "COMPLETED"
	StatusCompletedWithErrors Status = "COMPLETED_WITH_ERRORS"
	StatusFailed              Status = "FAILED"
)

// IsTerminal は実行が終わった状態かどうかを返す
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid は既知の状態かどうかを返す
func (s Status) Valid() bool {
	return s == StatusNone || s == StatusProcessing || s.IsTerminal()
}

// DefaultReviewThreshold はこの信頼度未満の抽出結果を要確認とする既定値
const DefaultReviewThreshold = 0.80

// Cookbook は料理本と、そこに紐づく OCR ジョブの状態
type Cookbook struct {
	ID           uuid.UUID
	Title        string
	Author       *string
	Status       Status
	ErrorMessage *string
	CurrentPage  int
	TotalPages   int
	CreatedAt    time.Time
}

// Page は索引ページの画像
type Page struct {
	ID          uuid.UUID
	CookbookID  uuid.UUID
	Order       int
	Image       []byte
	ContentType string
	CreatedAt   time.Time
}

// Extraction は1ページから抽出された (食材, レシピ名, ページ番号, 信頼度) の組
type Extraction struct {
	Ingredient string
	RecipeName string
	PageNumber int
	Confidence float64
}

// ExtractionResult は保存された抽出結果
type ExtractionResult struct {
	ID uuid.UUID
	Extraction
	NeedsReview bool
	PageOrder   int
}

// PageError はページ単位の抽出失敗
type PageError struct {
	PageOrder int
	Message   string
}

// RunReport は1回の実行結果のまとめ
type RunReport struct {
	CookbookID uuid.UUID
	TotalPages int
	Failed     []PageError
	Results    int
	Status     Status
	Message    *string
}

// JobSnapshot はジョブの現在の状態と蓄積された抽出結果
type JobSnapshot struct {
	CookbookID   uuid.UUID
	Title        string
	Status       Status
	CurrentPage  int
	TotalPages   int
	ErrorMessage *string
	Results      []ExtractionResult
}

// ConfirmedRecipe はユーザーが確認した抽出結果の1行
type ConfirmedRecipe struct {
	RecipeName string
	PageNumber int
	Ingredient string
	Keep       bool
}

// ConfirmResult は取り込み確定の結果
type ConfirmResult struct {
	RecipesCreated   int
	IngredientsTotal int
}

// Recipe は確定済みのレシピ
type Recipe struct {
	ID         uuid.UUID
	CookbookID uuid.UUID
	Name       string
	PageNumber int
	CreatedAt  time.Time
}

// PageUpload はアップロードされた索引ページ画像
type PageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// allowedContentTypes は索引ページとして受け付ける画像形式
var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}
