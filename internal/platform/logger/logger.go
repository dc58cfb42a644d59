// Package logger は log/slog のロガーを設定から組み立てます
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログに付与するサービス名
const ServiceName = "cookbook-catalog"

// ログ出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config はロガーの設定
type Config struct {
	Level slog.Level
	// Format は FormatJSON か FormatText（それ以外は JSON）
	Format string
	// Output は出力先（nil の場合は標準出力）
	Output io.Writer
}

// New は cfg からロガーを作成し、slog のデフォルトにも設定します
func New(cfg Config) *slog.Logger {
	l := slog.New(newHandler(cfg)).With("service", ServiceName)
	slog.SetDefault(l)
	return l
}

// Discard は何も出力しないロガーを返します（デフォルトは変更しない）
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), FormatText) {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}
