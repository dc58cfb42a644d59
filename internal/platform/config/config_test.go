package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "OCR_REVIEW_THRESHOLD", "OCR_WORKER_COUNT", "HTTP_PORT", "OPENAI_VISION_MODEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.VisionModel)
	assert.Equal(t, 2, cfg.OCR.WorkerCount)
	assert.InDelta(t, 0.80, cfg.OCR.ReviewThreshold, 1e-9)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_FromEnvFile(t *testing.T) {
	// godotenv は既存の環境変数を上書きしないため、未設定にしておく
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("OCR_WORKER_COUNT", "")
	os.Unsetenv("STORE_DRIVER")
	os.Unsetenv("OCR_WORKER_COUNT")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER=memory\nOCR_WORKER_COUNT=5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.OCR.WorkerCount)
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "verbose"}.SlogLevel())
}
