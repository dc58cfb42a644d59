package ingestion

import "github.com/jinford/cookbook-catalog/internal/core/apperror"

var (
	// ErrCookbookNotFound は料理本が存在しない場合のエラー
	ErrCookbookNotFound = apperror.New(apperror.ErrNotFound, "cookbook_not_found", "cookbook not found")

	// ErrAlreadyRunning は同じ料理本の OCR が実行中の場合のエラー
	ErrAlreadyRunning = apperror.New(apperror.ErrConflict, "already_running", "OCR processing is already in progress")

	// ErrNoPages は索引ページが1枚もない料理本で OCR を開始しようとした場合のエラー
	ErrNoPages = apperror.New(apperror.ErrInvalidArgument, "no_pages", MessageNoPages)

	// ErrNoFiles はアップロードにファイルが含まれない場合のエラー
	ErrNoFiles = apperror.New(apperror.ErrInvalidArgument, "no_files", "no files provided")

	// ErrInvalidImageType は JPEG/PNG 以外の画像の場合のエラー
	ErrInvalidImageType = apperror.New(apperror.ErrInvalidArgument, "invalid_image_type", "only JPEG and PNG images are allowed")

	// ErrTitleRequired は料理本のタイトルが空の場合のエラー
	ErrTitleRequired = apperror.New(apperror.ErrInvalidArgument, "title_required", "title is required")

	// ErrRecipesRequired は確定対象のリストが省略された場合のエラー
	ErrRecipesRequired = apperror.New(apperror.ErrInvalidArgument, "recipes_required", "recipes list is required")

	// ErrInvalidRecipe は確定対象のレシピ名が空、またはページ番号が不正な場合のエラー
	ErrInvalidRecipe = apperror.New(apperror.ErrInvalidArgument, "invalid_recipe", "recipe name and a positive page number are required")

	// ErrExtractionFailed はページ抽出の失敗。抽出器はこのエラーをラップして返す
	ErrExtractionFailed = apperror.New(apperror.ErrInvalidArgument, "extraction_failed", "page extraction failed")

	// ErrDispatcherStopped は停止済みのディスパッチャにジョブを渡した場合のエラー
	ErrDispatcherStopped = apperror.New(apperror.ErrConflict, "dispatcher_stopped", "ingestion dispatcher is not accepting jobs")
)
