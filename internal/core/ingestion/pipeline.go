package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const (
	// MessageNoPages は索引ページが見つからなかった場合の終了メッセージ
	MessageNoPages = "No index pages found for cookbook"
	// MessageAllPagesFailed はすべてのページの抽出に失敗した場合の終了メッセージ
	MessageAllPagesFailed = "All pages failed to process"
)

// PipelineConfig はパイプライン処理の設定
type PipelineConfig struct {
	// ReviewThreshold はこの信頼度未満の結果を要確認とする
	ReviewThreshold float64
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{ReviewThreshold: DefaultReviewThreshold}
}

// Pipeline は1冊分の索引ページを順に抽出し、結果と終了状態を保存する
type Pipeline struct {
	tx        Transactor
	extractor PageExtractor
	config    *PipelineConfig
	logger    *slog.Logger
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(tx Transactor, extractor PageExtractor, config *PipelineConfig, logger *slog.Logger) *Pipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.ReviewThreshold <= 0 || config.ReviewThreshold > 1 {
		config.ReviewThreshold = DefaultReviewThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tx:        tx,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Run は Gate が PROCESSING への遷移を受け付けた後に呼び出される
// ページ単位の失敗は記録して次のページへ進む。返すエラーはストレージ障害など実行全体の失敗のみ。
func (p *Pipeline) Run(ctx context.Context, cookbookID uuid.UUID) (*RunReport, error) {
	report := &RunReport{CookbookID: cookbookID}

	var pages []*Page
	err := p.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		pages, err = tx.Cookbooks().ListPages(ctx, cookbookID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	if len(pages) == 0 {
		msg := MessageNoPages
		report.Status = StatusFailed
		report.Message = &msg
		if err := p.finish(ctx, report); err != nil {
			return nil, err
		}
		return report, nil
	}

	report.TotalPages = len(pages)
	err = p.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		repo := tx.Cookbooks()
		if err := repo.DeleteResults(ctx, cookbookID); err != nil {
			return fmt.Errorf("failed to delete stale results: %w", err)
		}
		return repo.UpdateProgress(ctx, cookbookID, 0, len(pages))
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("OCR処理を開始", "cookbookID", cookbookID, "pages", len(pages))

	for i, page := range pages {
		count, err := p.processPage(ctx, cookbookID, page)
		if err != nil {
			p.logger.Warn("ページの処理に失敗",
				"cookbookID", cookbookID,
				"page", page.Order,
				"error", err,
			)
			report.Failed = append(report.Failed, PageError{PageOrder: page.Order, Message: err.Error()})
		} else {
			p.logger.Info("ページを処理",
				"cookbookID", cookbookID,
				"page", page.Order,
				"recipes", count,
			)
			report.Results += count
		}

		err = p.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Cookbooks().UpdateProgress(ctx, cookbookID, i+1, len(pages))
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update progress: %w", err)
		}
	}

	report.Status, report.Message = classify(len(report.Failed), len(pages))
	if err := p.finish(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// processPage は1ページを抽出し、その結果を一つのトランザクションで保存する
func (p *Pipeline) processPage(ctx context.Context, cookbookID uuid.UUID, page *Page) (int, error) {
	extractions, err := p.extractor.Extract(ctx, page.Image, page.ContentType)
	if err != nil {
		return 0, err
	}

	results := make([]ExtractionResult, 0, len(extractions))
	for _, e := range extractions {
		id, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("failed to generate result ID: %w", err)
		}
		results = append(results, ExtractionResult{
			ID:          id,
			Extraction:  e,
			NeedsReview: e.Confidence < p.config.ReviewThreshold,
			PageOrder:   page.Order,
		})
	}
	if len(results) == 0 {
		return 0, nil
	}

	err = p.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Cookbooks().AppendResults(ctx, cookbookID, results)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save results: %w", err)
	}
	return len(results), nil
}

func (p *Pipeline) finish(ctx context.Context, report *RunReport) error {
	err := p.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Cookbooks().SetTerminalStatus(ctx, report.CookbookID, report.Status, report.Message)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set terminal status: %w", err)
	}

	p.logger.Info("OCR処理が終了",
		"cookbookID", report.CookbookID,
		"status", report.Status,
		"failedPages", len(report.Failed),
		"totalPages", report.TotalPages,
		"results", report.Results,
	)
	return nil
}

// classify は失敗ページ数から終了状態を決める
func classify(failed, total int) (Status, *string) {
	switch {
	case failed == 0:
		return StatusCompleted, nil
	case failed == total:
		msg := MessageAllPagesFailed
		return StatusFailed, &msg
	default:
		msg := fmt.Sprintf("%d of %d pages failed", failed, total)
		return StatusCompletedWithErrors, &msg
	}
}
