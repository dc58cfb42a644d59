package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/cookbook-catalog/internal/infra/postgres"
)

// MigrateAction はデータベーススキーマを適用するコマンドのアクション
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	db := appCtx.Container.Database()
	if db == nil {
		appCtx.Logger().Info("メモリストアのためマイグレーションは不要です")
		return nil
	}

	if err := postgres.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	appCtx.Logger().Info("マイグレーションが完了しました")
	return nil
}
