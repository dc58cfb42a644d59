package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkerCount はデフォルトの OCR ワーカー数
	DefaultWorkerCount = 2
	// DefaultQueueSize はデフォルトの待ち行列の長さ
	DefaultQueueSize = 32
)

// Runner は1冊分の OCR を実行する
type Runner interface {
	Run(ctx context.Context, cookbookID uuid.UUID) (*RunReport, error)
}

// Scheduler は PROCESSING に遷移したジョブの実行を引き受ける
type Scheduler interface {
	Submit(ctx context.Context, cookbookID uuid.UUID) error
}

// DispatcherConfig はディスパッチャの設定
type DispatcherConfig struct {
	WorkerCount int
	QueueSize   int
}

// Dispatcher は OCR ジョブをバックグラウンドのワーカープールで実行する
// 各ジョブは recover 境界の中で動き、エラーや panic はジョブの FAILED として記録される
type Dispatcher struct {
	runner  Runner
	tx      Transactor
	queue   chan uuid.UUID
	workers int
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
}

// NewDispatcher は新しい Dispatcher を作成する
func NewDispatcher(runner Runner, tx Transactor, config *DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config == nil {
		config = &DispatcherConfig{}
	}
	workers := config.WorkerCount
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner:  runner,
		tx:      tx,
		queue:   make(chan uuid.UUID, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start はワーカーを起動する。ctx はジョブの実行に引き継がれる
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.group != nil || d.closed {
		return
	}

	g := &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for id := range d.queue {
				d.execute(ctx, id)
			}
			return nil
		})
	}
	d.group = g

	d.logger.Info("OCRディスパッチャを起動", "workers", d.workers, "queueSize", cap(d.queue))
}

// Submit はジョブを待ち行列に入れる
// 受け付けられなかった場合、ジョブは FAILED になる
func (d *Dispatcher) Submit(ctx context.Context, cookbookID uuid.UUID) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.markFailed(ctx, cookbookID, ErrDispatcherStopped.Error())
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- cookbookID:
		return nil
	case <-ctx.Done():
		d.markFailed(ctx, cookbookID, ctx.Err().Error())
		return fmt.Errorf("failed to enqueue OCR job: %w", ctx.Err())
	}
}

// Stop は新しいジョブの受け付けを止め、待ち行列に残ったジョブが終わるまで待つ
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	g := d.group
	d.mu.Unlock()

	if g == nil {
		return nil
	}
	err := g.Wait()
	d.logger.Info("OCRディスパッチャを停止")
	return err
}

func (d *Dispatcher) execute(ctx context.Context, cookbookID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			d.logger.Error("OCRジョブでpanicが発生", "cookbookID", cookbookID, "panic", msg)
			d.markFailed(ctx, cookbookID, msg)
		}
	}()

	report, err := d.runner.Run(ctx, cookbookID)
	if err != nil {
		d.logger.Error("OCRジョブが失敗", "cookbookID", cookbookID, "error", err)
		d.markFailed(ctx, cookbookID, err.Error())
		return
	}
	d.logger.Debug("OCRジョブが完了", "cookbookID", cookbookID, "status", report.Status)
}

// markFailed はジョブを FAILED にする。呼び出し元のキャンセルに関係なく書き込む
func (d *Dispatcher) markFailed(ctx context.Context, cookbookID uuid.UUID, message string) {
	ctx = context.WithoutCancel(ctx)
	err := d.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Cookbooks().SetTerminalStatus(ctx, cookbookID, StatusFailed, &message)
		return err
	})
	if err != nil {
		d.logger.Error("ジョブ状態の更新に失敗", "cookbookID", cookbookID, "error", err)
	}
}

// InlineScheduler はジョブを呼び出し元のゴルーチンで同期的に実行する（CLI 用）
type InlineScheduler struct {
	runner Runner
	tx     Transactor
	logger *slog.Logger
}

// NewInlineScheduler は新しい InlineScheduler を作成する
func NewInlineScheduler(runner Runner, tx Transactor, logger *slog.Logger) *InlineScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineScheduler{runner: runner, tx: tx, logger: logger}
}

// Submit はジョブを実行し終えてから戻る
func (s *InlineScheduler) Submit(ctx context.Context, cookbookID uuid.UUID) error {
	d := &Dispatcher{runner: s.runner, tx: s.tx, logger: s.logger}
	d.execute(ctx, cookbookID)
	return nil
}
