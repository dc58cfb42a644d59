package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
	"github.com/jinford/cookbook-catalog/internal/infra/postgres"
)

// TransactionProvider follows the pattern described in https://threedots.tech/post/database-transactions-in-go/
// It hides pgx transactions behind a callback that receives data-access adapters.
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter bundles repository adapters that operate inside a single transaction.
type Adapter struct {
	Ingredients *postgres.IngredientRepository
	Cookbooks   *postgres.CookbookRepository
	Locks       *postgres.LockManager
}

func newAdapter(tx pgx.Tx) *Adapter {
	locks := postgres.NewLockManager(tx)
	return &Adapter{
		Ingredients: postgres.NewIngredientRepository(tx, locks),
		Cookbooks:   postgres.NewCookbookRepository(tx),
		Locks:       locks,
	}
}

// Transact opens a transaction, builds adapters, and passes them to fn.
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	var zero T
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	adapters := newAdapter(tx)

	result, err := fn(adapters)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// Ingredients は食材サービス用の Transactor を返します
func (p *TransactionProvider) Ingredients() ingredient.Transactor {
	return ingredientTransactor{p: p}
}

// Ingestion は取り込みサービス用の Transactor を返します
func (p *TransactionProvider) Ingestion() ingestion.Transactor {
	return ingestionTransactor{p: p}
}

type ingredientTransactor struct{ p *TransactionProvider }

func (t ingredientTransactor) Transact(ctx context.Context, fn func(ctx context.Context, repo ingredient.Repository) error) error {
	_, err := Transact(ctx, t.p, func(a *Adapter) (struct{}, error) {
		return struct{}{}, fn(ctx, a.Ingredients)
	})
	return err
}

type ingestionTransactor struct{ p *TransactionProvider }

func (t ingestionTransactor) Transact(ctx context.Context, fn func(ctx context.Context, tx ingestion.Tx) error) error {
	_, err := Transact(ctx, t.p, func(a *Adapter) (struct{}, error) {
		return struct{}{}, fn(ctx, ingestionTx{a: a})
	})
	return err
}

// ingestionTx は Adapter を ingestion.Tx として見せる
type ingestionTx struct{ a *Adapter }

func (t ingestionTx) Cookbooks() ingestion.Repository    { return t.a.Cookbooks }
func (t ingestionTx) Ingredients() ingredient.Repository { return t.a.Ingredients }
