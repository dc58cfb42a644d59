// Package memory はコアのリポジトリをメモリ上で実装します
// テストと STORE_DRIVER=memory での起動に使用します
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// Store はトランザクション付きのインメモリストア
// Transact は全体を一つのロックで直列化し、作業用の複製に対して fn を実行する。
// fn が成功した場合だけ複製を確定するため、失敗時には変更が残らない。
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	ingredients map[uuid.UUID]*ingredient.Ingredient
	aliases     map[string]uuid.UUID
	cookbooks   map[uuid.UUID]*ingestion.Cookbook
	pages       map[uuid.UUID][]*ingestion.Page
	results     map[uuid.UUID][]ingestion.ExtractionResult
	recipes     map[uuid.UUID]*ingestion.Recipe
	refs        map[uuid.UUID]map[uuid.UUID]struct{} // recipe -> ingredients
}

// New は空のストアを作成する
func New() *Store {
	return &Store{state: &state{
		ingredients: make(map[uuid.UUID]*ingredient.Ingredient),
		aliases:     make(map[string]uuid.UUID),
		cookbooks:   make(map[uuid.UUID]*ingestion.Cookbook),
		pages:       make(map[uuid.UUID][]*ingestion.Page),
		results:     make(map[uuid.UUID][]ingestion.ExtractionResult),
		recipes:     make(map[uuid.UUID]*ingestion.Recipe),
		refs:        make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}}
}

func (s *Store) transact(ctx context.Context, fn func(ctx context.Context, st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Ingredients は食材用の Transactor を返す
func (s *Store) Ingredients() ingredient.Transactor {
	return ingredientTransactor{store: s}
}

// Ingestion は取り込み用の Transactor を返す
func (s *Store) Ingestion() ingestion.Transactor {
	return ingestionTransactor{store: s}
}

type ingredientTransactor struct{ store *Store }

func (t ingredientTransactor) Transact(ctx context.Context, fn func(ctx context.Context, repo ingredient.Repository) error) error {
	return t.store.transact(ctx, func(ctx context.Context, st *state) error {
		return fn(ctx, &ingredientRepo{st: st})
	})
}

type ingestionTransactor struct{ store *Store }

func (t ingestionTransactor) Transact(ctx context.Context, fn func(ctx context.Context, tx ingestion.Tx) error) error {
	return t.store.transact(ctx, func(ctx context.Context, st *state) error {
		return fn(ctx, txBundle{st: st})
	})
}

type txBundle struct{ st *state }

func (b txBundle) Cookbooks() ingestion.Repository     { return &cookbookRepo{st: b.st} }
func (b txBundle) Ingredients() ingredient.Repository { return &ingredientRepo{st: b.st} }

func (s *state) clone() *state {
	c := &state{
		ingredients: make(map[uuid.UUID]*ingredient.Ingredient, len(s.ingredients)),
		aliases:     maps.Clone(s.aliases),
		cookbooks:   make(map[uuid.UUID]*ingestion.Cookbook, len(s.cookbooks)),
		pages:       make(map[uuid.UUID][]*ingestion.Page, len(s.pages)),
		results:     make(map[uuid.UUID][]ingestion.ExtractionResult, len(s.results)),
		recipes:     make(map[uuid.UUID]*ingestion.Recipe, len(s.recipes)),
		refs:        make(map[uuid.UUID]map[uuid.UUID]struct{}, len(s.refs)),
	}
	for id, ing := range s.ingredients {
		c.ingredients[id] = ing.Clone()
	}
	for id, cb := range s.cookbooks {
		cp := *cb
		c.cookbooks[id] = &cp
	}
	for id, pages := range s.pages {
		// 画像は書き換えないので共有する
		c.pages[id] = slices.Clone(pages)
	}
	for id, results := range s.results {
		c.results[id] = slices.Clone(results)
	}
	for id, r := range s.recipes {
		cp := *r
		c.recipes[id] = &cp
	}
	for id, set := range s.refs {
		c.refs[id] = maps.Clone(set)
	}
	return c
}
