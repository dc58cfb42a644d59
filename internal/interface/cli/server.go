package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/cookbook-catalog/internal/interface/httpapi"
)

// shutdownTimeout は HTTP サーバの停止を待つ上限
const shutdownTimeout = 15 * time.Second

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	port := appCtx.Config.HTTP.Port
	if p := cmd.Int("port"); p > 0 {
		port = int(p)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           httpapi.NewRouter(appCtx.Container, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 実行中のジョブはシグナル後も最後まで走らせる
	dispatcher := appCtx.Container.Dispatcher
	dispatcher.Start(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTPサーバを起動", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバが異常終了しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("HTTPサーバを停止中")
		return srv.Shutdown(shutdownCtx)
	})

	serveErr := g.Wait()
	if err := dispatcher.Stop(); err != nil {
		log.Error("OCRディスパッチャの停止に失敗", "error", err)
	}
	return serveErr
}
