package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
	"github.com/jinford/cookbook-catalog/internal/infra/memory"
	"github.com/jinford/cookbook-catalog/internal/infra/openai"
	"github.com/jinford/cookbook-catalog/internal/platform/config"
	"github.com/jinford/cookbook-catalog/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	IngredientService *ingredient.Service
	IngestionService  *ingestion.Service
	Pipeline          *ingestion.Pipeline
	// Dispatcher はバックグラウンド実行の場合のみ設定される
	Dispatcher *ingestion.Dispatcher

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger    *slog.Logger
	extractor ingestion.PageExtractor
	inline    bool
	clock     func() time.Time
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerExtractor はカスタム PageExtractor を注入する
func WithContainerExtractor(extractor ingestion.PageExtractor) ContainerOption {
	return func(opts *containerOptions) {
		opts.extractor = extractor
	}
}

// WithContainerInlineScheduler は OCR ジョブを呼び出し元で同期実行する（CLI 用）
func WithContainerInlineScheduler() ContainerOption {
	return func(opts *containerOptions) {
		opts.inline = true
	}
}

// WithContainerClock は時計を差し替える
func WithContainerClock(now func() time.Time) ContainerOption {
	return func(opts *containerOptions) {
		opts.clock = now
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.New()
		return NewContainerWithTransactors(cfg, store.Ingredients(), store.Ingestion(), nil, opts...)
	}

	db, err := database.New(ctx, ConnectionParams(cfg))
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	provider := database.NewTransactionProvider(db.Pool)
	c, err := NewContainerWithTransactors(cfg, provider.Ingredients(), provider.Ingestion(), db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// ConnectionParams は設定から接続パラメータを作る
func ConnectionParams(cfg *config.Config) database.ConnectionParams {
	return database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
}

// NewContainerWithTransactors は既存のトランザクション境界を受け取りコンテナを生成する。
// db は Close 時に閉じる接続（なければ nil）
func NewContainerWithTransactors(
	cfg *config.Config,
	ingredientTx ingredient.Transactor,
	ingestionTx ingestion.Transactor,
	db *database.Database,
	opts ...ContainerOption,
) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.clock == nil {
		options.clock = time.Now
	}

	// PageExtractor (OpenAI)
	extractor := options.extractor
	if extractor == nil {
		openaiExtractor, err := openai.NewExtractor(
			cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.VisionModel),
			openai.WithTimeout(time.Duration(cfg.OpenAI.TimeoutSeconds)*time.Second),
			openai.WithRequestsPerMinute(cfg.OpenAI.RequestsPerMinute),
			openai.WithExtractorLogger(options.logger),
		)
		switch {
		case err == nil:
			extractor = openaiExtractor
		case errors.Is(err, openai.ErrAPIKeyNotSet):
			// 食材の操作は API キーなしでも使えるようにする
			options.logger.Warn("OPENAI_API_KEY が未設定のため OCR は失敗します")
			extractor = unavailableExtractor{reason: err}
		default:
			return nil, fmt.Errorf("OpenAI クライアント初期化に失敗しました: %w", err)
		}
	}

	// IngredientService
	ingredientService := ingredient.NewService(
		ingredientTx,
		ingredient.WithIngredientLogger(options.logger),
		ingredient.WithIngredientClock(options.clock),
	)

	// Pipeline
	pipeline := ingestion.NewPipeline(
		ingestionTx,
		extractor,
		&ingestion.PipelineConfig{ReviewThreshold: cfg.OCR.ReviewThreshold},
		options.logger,
	)

	// Scheduler
	var (
		scheduler  ingestion.Scheduler
		dispatcher *ingestion.Dispatcher
	)
	if options.inline {
		scheduler = ingestion.NewInlineScheduler(pipeline, ingestionTx, options.logger)
	} else {
		dispatcher = ingestion.NewDispatcher(pipeline, ingestionTx, &ingestion.DispatcherConfig{
			WorkerCount: cfg.OCR.WorkerCount,
			QueueSize:   cfg.OCR.QueueSize,
		}, options.logger)
		scheduler = dispatcher
	}

	// IngestionService
	ingestionService := ingestion.NewService(
		ingestionTx,
		scheduler,
		ingredientService,
		ingestion.WithIngestionLogger(options.logger),
		ingestion.WithIngestionClock(options.clock),
	)

	return &ServiceContainer{
		IngredientService: ingredientService,
		IngestionService:  ingestionService,
		Pipeline:          pipeline,
		Dispatcher:        dispatcher,
		logger:            options.logger,
		database:          db,
	}, nil
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database は PostgreSQL 接続を返す。メモリストアの場合は nil
func (c *ServiceContainer) Database() *database.Database {
	return c.database
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// unavailableExtractor は API キーがない場合の PageExtractor
type unavailableExtractor struct {
	reason error
}

func (u unavailableExtractor) Extract(context.Context, []byte, string) ([]ingestion.Extraction, error) {
	return nil, fmt.Errorf("%w: %v", ingestion.ErrExtractionFailed, u.reason)
}
