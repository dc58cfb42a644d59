package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

func newIngredient(name string, aliases ...string) *ingredient.Ingredient {
	return &ingredient.Ingredient{
		ID:        uuid.New(),
		Name:      name,
		Aliases:   aliases,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestStore_TransactRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	ing := newIngredient("fennel")

	errBoom := errors.New("boom")
	err := s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		require.NoError(t, repo.CreateIngredient(ctx, ing))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		got, err := repo.GetIngredient(ctx, ing.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAbsent())
		return nil
	})
	require.NoError(t, err)
}

func TestStore_TransactCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Ingestion().Transact(ctx, func(context.Context, ingestion.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	ing := newIngredient("sorrel", "dock")

	err := s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		return repo.CreateIngredient(ctx, ing)
	})
	require.NoError(t, err)

	err = s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		got, err := repo.GetIngredient(ctx, ing.ID)
		require.NoError(t, err)
		g := got.MustGet()
		g.Aliases[0] = "mutated"
		return nil
	})
	require.NoError(t, err)

	err = s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		got, err := repo.GetIngredient(ctx, ing.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"dock"}, got.MustGet().Aliases)
		return nil
	})
	require.NoError(t, err)
}

func TestIngredientRepo_Uniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newIngredient("lovage", "sea parsley")
	b := newIngredient("chervil")

	err := s.Ingredients().Transact(ctx, func(ctx context.Context, repo ingredient.Repository) error {
		require.NoError(t, repo.CreateIngredient(ctx, a))
		require.NoError(t, repo.CreateIngredient(ctx, b))

		assert.ErrorIs(t, repo.CreateIngredient(ctx, newIngredient("lovage")), ingredient.ErrNameConflict)
		assert.ErrorIs(t, repo.AddAliases(ctx, b.ID, []string{"sea parsley"}), ingredient.ErrAliasConflict)

		// 自分が既に持っている別名の追加は何もしない
		require.NoError(t, repo.AddAliases(ctx, a.ID, []string{"sea parsley"}))

		owner, err := repo.FindAliasOwner(ctx, "sea parsley")
		require.NoError(t, err)
		assert.Equal(t, a.ID, owner.MustGet())

		// 削除すると別名も解放される
		require.NoError(t, repo.DeleteIngredient(ctx, a.ID))
		owner, err = repo.FindAliasOwner(ctx, "sea parsley")
		require.NoError(t, err)
		assert.True(t, owner.IsAbsent())
		return nil
	})
	require.NoError(t, err)
}

func TestCookbookRepo_StatusTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()

	err := s.Ingestion().Transact(ctx, func(ctx context.Context, tx ingestion.Tx) error {
		repo := tx.Cookbooks()
		require.NoError(t, repo.CreateCookbook(ctx, &ingestion.Cookbook{ID: id, Title: "Book", Status: ingestion.StatusNone}))

		// PROCESSING 以外からは終了状態にできない
		ok, err := repo.SetTerminalStatus(ctx, id, ingestion.StatusCompleted, nil)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.CompareAndSetStatus(ctx, id, ingestion.StatusCompleted, ingestion.StatusProcessing)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.CompareAndSetStatus(ctx, id, ingestion.StatusNone, ingestion.StatusProcessing)
		require.NoError(t, err)
		assert.True(t, ok)

		msg := "1 of 2 pages failed"
		ok, err = repo.SetTerminalStatus(ctx, id, ingestion.StatusCompletedWithErrors, &msg)
		require.NoError(t, err)
		assert.True(t, ok)

		// 終了状態は一度だけ設定される
		other := "late failure"
		ok, err = repo.SetTerminalStatus(ctx, id, ingestion.StatusFailed, &other)
		require.NoError(t, err)
		assert.False(t, ok)

		cb, err := repo.GetCookbook(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ingestion.StatusCompletedWithErrors, cb.MustGet().Status)
		assert.Equal(t, &msg, cb.MustGet().ErrorMessage)
		return nil
	})
	require.NoError(t, err)
}
