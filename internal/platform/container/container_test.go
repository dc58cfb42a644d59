package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/platform/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver: config.StoreDriverMemory,
		OCR:         config.OCRConfig{WorkerCount: 1, QueueSize: 4, ReviewThreshold: 0.8},
	}
}

func TestNewContainer_MemoryWithoutAPIKey(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.IngredientService)
	require.NotNil(t, c.Dispatcher)

	cb, err := c.IngestionService.CreateCookbook(ctx, "Summer", nil)
	require.NoError(t, err)
	_, err = c.IngestionService.AddPages(ctx, cb.ID, []ingestion.PageUpload{{Filename: "p1.jpg", ContentType: "image/jpeg", Data: []byte{1}}})
	require.NoError(t, err)

	c.Dispatcher.Start(ctx)
	require.NoError(t, c.IngestionService.StartIngestion(ctx, cb.ID))
	require.NoError(t, c.Dispatcher.Stop())

	// API キーがない場合、全ページの抽出が失敗する
	snap, err := c.IngestionService.Snapshot(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusFailed, snap.Status)
	require.NotNil(t, snap.ErrorMessage)
	assert.Equal(t, ingestion.MessageAllPagesFailed, *snap.ErrorMessage)
}

func TestNewContainer_InlineScheduler(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig(), WithContainerInlineScheduler(), WithContainerExtractor(
		ingestion.ExtractorFunc(func(context.Context, []byte, string) ([]ingestion.Extraction, error) {
			return []ingestion.Extraction{{Ingredient: "leek", RecipeName: "Soup", PageNumber: 4, Confidence: 0.9}}, nil
		}),
	))
	require.NoError(t, err)
	assert.Nil(t, c.Dispatcher)

	cb, err := c.IngestionService.CreateCookbook(ctx, "Winter", nil)
	require.NoError(t, err)
	_, err = c.IngestionService.AddPages(ctx, cb.ID, []ingestion.PageUpload{{Filename: "p1.png", ContentType: "image/png", Data: []byte{1}}})
	require.NoError(t, err)

	require.NoError(t, c.IngestionService.StartIngestion(ctx, cb.ID))

	snap, err := c.IngestionService.Snapshot(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusCompleted, snap.Status)
	require.Len(t, snap.Results, 1)
	assert.False(t, snap.Results[0].NeedsReview)
}
