// Package httpapi は食材カタログと料理本取り込みの REST API を提供します
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinford/cookbook-catalog/internal/platform/container"
)

// NewRouter はコンテナのサービスを公開する gin エンジンを作成する
func NewRouter(services *container.ServiceContainer, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	NewIngredientHandler(services.IngredientService, logger).RegisterRoutes(api.Group("/ingredients"))
	NewCookbookHandler(services.IngestionService, logger).RegisterRoutes(api.Group("/cookbooks"))

	return router
}

// requestLogger はリクエストごとに1行のアクセスログを出力する
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP リクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
