package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jinford/cookbook-catalog/internal/core/apperror"
)

// Gate は料理本ごとの OCR ジョブの排他を管理する状態遷移ゲート
type Gate struct {
	tx Transactor
}

// NewGate は新しい Gate を作成する
func NewGate(tx Transactor) *Gate {
	return &Gate{tx: tx}
}

// Start はジョブを PROCESSING に遷移させる
// 遷移の確認と設定は一つのトランザクションで行い、抽出処理そのものは含まない。
// 終了状態からの再実行は受け付ける。
func (g *Gate) Start(ctx context.Context, cookbookID uuid.UUID) error {
	return g.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		repo := tx.Cookbooks()

		opt, err := repo.LockCookbook(ctx, cookbookID)
		if err != nil {
			return fmt.Errorf("failed to lock cookbook: %w", err)
		}
		cb, ok := opt.Get()
		if !ok {
			return apperror.Wrapf(ErrCookbookNotFound, "cookbook not found: %s", cookbookID)
		}
		if cb.Status == StatusProcessing {
			return ErrAlreadyRunning
		}

		pages, err := repo.CountPages(ctx, cookbookID)
		if err != nil {
			return fmt.Errorf("failed to count pages: %w", err)
		}
		if pages == 0 {
			return ErrNoPages
		}

		swapped, err := repo.CompareAndSetStatus(ctx, cookbookID, cb.Status, StatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}
		if !swapped {
			return ErrAlreadyRunning
		}
		return nil
	})
}
