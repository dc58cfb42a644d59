package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/platform/container"
)

type ocrStatusView struct {
	CookbookID   string                       `json:"cookbookId"`
	Title        string                       `json:"title"`
	Status       ingestion.Status             `json:"status"`
	CurrentPage  int                          `json:"currentPage"`
	TotalPages   int                          `json:"totalPages"`
	ErrorMessage *string                      `json:"errorMessage"`
	Results      []ingestion.ExtractionResult `json:"results,omitempty"`
}

func newOCRStatusView(snap *ingestion.JobSnapshot, withResults bool) ocrStatusView {
	v := ocrStatusView{
		CookbookID:   snap.CookbookID.String(),
		Title:        snap.Title,
		Status:       snap.Status,
		CurrentPage:  snap.CurrentPage,
		TotalPages:   snap.TotalPages,
		ErrorMessage: snap.ErrorMessage,
	}
	if withResults {
		v.Results = snap.Results
	}
	return v
}

// OCRStartAction は OCR を実行するコマンドのアクション
// 常駐プロセスではないため、受け付け後にその場でパイプラインを最後まで実行する
func OCRStartAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"), container.WithContainerInlineScheduler())
	if err != nil {
		return err
	}
	defer appCtx.Close()

	service := appCtx.Container.IngestionService
	if err := service.StartIngestion(ctx, id); err != nil {
		return err
	}

	snap, err := service.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd, newOCRStatusView(snap, false))
}

// OCRStatusAction は OCR ジョブの状態を表示するコマンドのアクション
func OCRStatusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	snap, err := appCtx.Container.IngestionService.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd, newOCRStatusView(snap, cmd.Bool("results")))
}
