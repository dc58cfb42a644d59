package ingestion_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
	"github.com/jinford/cookbook-catalog/internal/infra/memory"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store       *memory.Store
	ingredients *ingredient.Service
	pipeline    *ingestion.Pipeline
	service     *ingestion.Service
}

// newFixture はメモリストア上に、ジョブを同期実行するサービスを組み立てる
func newFixture(t *testing.T, extractor ingestion.PageExtractor) *fixture {
	t.Helper()
	store := memory.New()
	ingredients := ingredient.NewService(store.Ingredients(), ingredient.WithIngredientLogger(discardLogger))
	pipeline := ingestion.NewPipeline(store.Ingestion(), extractor, nil, discardLogger)
	scheduler := ingestion.NewInlineScheduler(pipeline, store.Ingestion(), discardLogger)
	service := ingestion.NewService(store.Ingestion(), scheduler, ingredients, ingestion.WithIngestionLogger(discardLogger))
	return &fixture{store: store, ingredients: ingredients, pipeline: pipeline, service: service}
}

// newCookbook は料理本を作成し、内容が data のページを順に追加する
func (f *fixture) newCookbook(t *testing.T, data ...string) *ingestion.Cookbook {
	t.Helper()
	ctx := context.Background()
	cb, err := f.service.CreateCookbook(ctx, "Test Kitchen", nil)
	require.NoError(t, err)
	if len(data) == 0 {
		return cb
	}
	uploads := make([]ingestion.PageUpload, 0, len(data))
	for i, d := range data {
		uploads = append(uploads, ingestion.PageUpload{
			Filename:    fmt.Sprintf("page-%d.png", i+1),
			ContentType: "image/png",
			Data:        []byte(d),
		})
	}
	_, err = f.service.AddPages(ctx, cb.ID, uploads)
	require.NoError(t, err)
	return cb
}

func (f *fixture) snapshot(t *testing.T, id uuid.UUID) *ingestion.JobSnapshot {
	t.Helper()
	snap, err := f.service.Snapshot(context.Background(), id)
	require.NoError(t, err)
	return snap
}

// forceStatus は状態を直接書き換える
func (f *fixture) forceStatus(t *testing.T, id uuid.UUID, from, to ingestion.Status) {
	t.Helper()
	err := f.store.Ingestion().Transact(context.Background(), func(ctx context.Context, tx ingestion.Tx) error {
		ok, err := tx.Cookbooks().CompareAndSetStatus(ctx, id, from, to)
		if err != nil {
			return err
		}
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

// pageExtractor はページの内容に応じて結果を返す
// "fail" は抽出失敗、"empty" は結果なし、それ以外は内容をレシピ名とする1件を返す
func pageExtractor() ingestion.PageExtractor {
	return ingestion.ExtractorFunc(func(_ context.Context, image []byte, _ string) ([]ingestion.Extraction, error) {
		switch s := string(image); s {
		case "fail":
			return nil, fmt.Errorf("%w: unreadable page", ingestion.ErrExtractionFailed)
		case "empty":
			return nil, nil
		default:
			return []ingestion.Extraction{{Ingredient: "Onion", RecipeName: s, PageNumber: 10, Confidence: 0.9}}, nil
		}
	})
}
