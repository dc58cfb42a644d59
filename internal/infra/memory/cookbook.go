package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

type cookbookRepo struct {
	st *state
}

var _ ingestion.Repository = (*cookbookRepo)(nil)

func (r *cookbookRepo) CreateCookbook(_ context.Context, cb *ingestion.Cookbook) error {
	if _, ok := r.st.cookbooks[cb.ID]; ok {
		return fmt.Errorf("cookbook already exists: %s", cb.ID)
	}
	cp := *cb
	r.st.cookbooks[cb.ID] = &cp
	return nil
}

func (r *cookbookRepo) GetCookbook(_ context.Context, id uuid.UUID) (mo.Option[*ingestion.Cookbook], error) {
	cb, ok := r.st.cookbooks[id]
	if !ok {
		return mo.None[*ingestion.Cookbook](), nil
	}
	cp := *cb
	return mo.Some(&cp), nil
}

func (r *cookbookRepo) LockCookbook(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Cookbook], error) {
	return r.GetCookbook(ctx, id)
}

func (r *cookbookRepo) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next ingestion.Status) (bool, error) {
	cb, ok := r.st.cookbooks[id]
	if !ok || cb.Status != expected {
		return false, nil
	}
	cb.Status = next
	cb.ErrorMessage = nil
	return true, nil
}

func (r *cookbookRepo) SetTerminalStatus(_ context.Context, id uuid.UUID, status ingestion.Status, message *string) (bool, error) {
	cb, ok := r.st.cookbooks[id]
	if !ok || cb.Status != ingestion.StatusProcessing {
		return false, nil
	}
	cb.Status = status
	cb.ErrorMessage = copyString(message)
	return true, nil
}

func (r *cookbookRepo) ResetStatus(_ context.Context, id uuid.UUID) error {
	cb, ok := r.st.cookbooks[id]
	if !ok {
		return fmt.Errorf("cookbook not found: %s", id)
	}
	cb.Status = ingestion.StatusNone
	cb.ErrorMessage = nil
	cb.CurrentPage = 0
	cb.TotalPages = 0
	return nil
}

func (r *cookbookRepo) UpdateProgress(_ context.Context, id uuid.UUID, current, total int) error {
	cb, ok := r.st.cookbooks[id]
	if !ok {
		return fmt.Errorf("cookbook not found: %s", id)
	}
	cb.CurrentPage = current
	cb.TotalPages = total
	return nil
}

func (r *cookbookRepo) ListPages(_ context.Context, cookbookID uuid.UUID) ([]*ingestion.Page, error) {
	pages := slices.Clone(r.st.pages[cookbookID])
	slices.SortFunc(pages, func(a, b *ingestion.Page) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return pages, nil
}

func (r *cookbookRepo) CountPages(_ context.Context, cookbookID uuid.UUID) (int, error) {
	return len(r.st.pages[cookbookID]), nil
}

func (r *cookbookRepo) MaxPageOrder(_ context.Context, cookbookID uuid.UUID) (int, error) {
	maxOrder := 0
	for _, p := range r.st.pages[cookbookID] {
		maxOrder = max(maxOrder, p.Order)
	}
	return maxOrder, nil
}

func (r *cookbookRepo) AddPage(_ context.Context, page *ingestion.Page) error {
	if _, ok := r.st.cookbooks[page.CookbookID]; !ok {
		return fmt.Errorf("cookbook not found: %s", page.CookbookID)
	}
	cp := *page
	r.st.pages[page.CookbookID] = append(r.st.pages[page.CookbookID], &cp)
	return nil
}

func (r *cookbookRepo) DeleteResults(_ context.Context, cookbookID uuid.UUID) error {
	delete(r.st.results, cookbookID)
	return nil
}

func (r *cookbookRepo) AppendResults(_ context.Context, cookbookID uuid.UUID, results []ingestion.ExtractionResult) error {
	r.st.results[cookbookID] = append(r.st.results[cookbookID], results...)
	return nil
}

func (r *cookbookRepo) ListResults(_ context.Context, cookbookID uuid.UUID) ([]ingestion.ExtractionResult, error) {
	results := slices.Clone(r.st.results[cookbookID])
	if results == nil {
		results = []ingestion.ExtractionResult{}
	}
	return results, nil
}

func (r *cookbookRepo) FindRecipe(_ context.Context, cookbookID uuid.UUID, name string, pageNumber int) (mo.Option[uuid.UUID], error) {
	for _, recipe := range r.st.recipes {
		if recipe.CookbookID == cookbookID && recipe.Name == name && recipe.PageNumber == pageNumber {
			return mo.Some(recipe.ID), nil
		}
	}
	return mo.None[uuid.UUID](), nil
}

func (r *cookbookRepo) CreateRecipe(_ context.Context, recipe *ingestion.Recipe) error {
	cp := *recipe
	r.st.recipes[recipe.ID] = &cp
	r.st.refs[recipe.ID] = make(map[uuid.UUID]struct{})
	return nil
}

func (r *cookbookRepo) AttachIngredient(_ context.Context, recipeID, ingredientID uuid.UUID) error {
	set, ok := r.st.refs[recipeID]
	if !ok {
		return fmt.Errorf("recipe not found: %s", recipeID)
	}
	if _, ok := r.st.ingredients[ingredientID]; !ok {
		return fmt.Errorf("ingredient not found: %s", ingredientID)
	}
	set[ingredientID] = struct{}{}
	return nil
}

// RecipeIngredients はレシピが参照する食材の ID を返す（テスト用）
func (s *Store) RecipeIngredients(recipeID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.state.refs[recipeID]))
	for id := range s.state.refs[recipeID] {
		ids = append(ids, id)
	}
	return ids
}

// Recipes は料理本のレシピを返す（テスト用）
func (s *Store) Recipes(cookbookID uuid.UUID) []ingestion.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ingestion.Recipe
	for _, r := range s.state.recipes {
		if r.CookbookID == cookbookID {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b ingestion.Recipe) int {
		return cmp.Or(cmp.Compare(a.PageNumber, b.PageNumber), cmp.Compare(a.Name, b.Name))
	})
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
