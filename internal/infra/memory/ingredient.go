package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

type ingredientRepo struct {
	st *state
}

var _ ingredient.Repository = (*ingredientRepo)(nil)

func (r *ingredientRepo) GetIngredient(_ context.Context, id uuid.UUID) (mo.Option[*ingredient.Ingredient], error) {
	ing, ok := r.st.ingredients[id]
	if !ok {
		return mo.None[*ingredient.Ingredient](), nil
	}
	return mo.Some(ing.Clone()), nil
}

func (r *ingredientRepo) GetIngredientByName(_ context.Context, name string) (mo.Option[*ingredient.Ingredient], error) {
	for _, ing := range r.st.ingredients {
		if ing.Name == name {
			return mo.Some(ing.Clone()), nil
		}
	}
	return mo.None[*ingredient.Ingredient](), nil
}

func (r *ingredientRepo) FindAliasOwner(_ context.Context, alias string) (mo.Option[uuid.UUID], error) {
	if id, ok := r.st.aliases[alias]; ok {
		return mo.Some(id), nil
	}
	return mo.None[uuid.UUID](), nil
}

func (r *ingredientRepo) CountRecipes(_ context.Context, id uuid.UUID) (int, error) {
	return r.st.countRecipes(id), nil
}

func (r *ingredientRepo) ListRecipeSummaries(_ context.Context, id uuid.UUID, limit int) ([]ingredient.RecipeSummary, error) {
	var out []ingredient.RecipeSummary
	for recipeID, set := range r.st.refs {
		if _, ok := set[id]; !ok {
			continue
		}
		recipe := r.st.recipes[recipeID]
		summary := ingredient.RecipeSummary{
			ID:         recipe.ID,
			Name:       recipe.Name,
			PageNumber: recipe.PageNumber,
		}
		if cb, ok := r.st.cookbooks[recipe.CookbookID]; ok {
			title := cb.Title
			summary.CookbookTitle = &title
		}
		out = append(out, summary)
	}
	slices.SortFunc(out, func(a, b ingredient.RecipeSummary) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ingredientRepo) ListIngredients(_ context.Context, q ingredient.ListQuery) ([]*ingredient.ListItem, error) {
	var after mo.Option[string]
	if cursor, ok := q.Cursor.Get(); ok {
		ing, found := r.st.ingredients[cursor]
		if !found {
			return []*ingredient.ListItem{}, nil
		}
		after = mo.Some(ing.Name)
	}

	items := []*ingredient.ListItem{}
	for _, ing := range r.st.ingredients {
		if name, ok := after.Get(); ok && ing.Name <= name {
			continue
		}
		if q.Prefix != "" && !matchesPrefix(ing, q.Prefix) {
			continue
		}
		if want, ok := q.HasAliases.Get(); ok && want != (len(ing.Aliases) > 0) {
			continue
		}
		if month, ok := q.Month.Get(); ok && !ing.AvailableIn(month) {
			continue
		}
		count := r.st.countRecipes(ing.ID)
		if count < q.MinRecipeCount {
			continue
		}
		items = append(items, &ingredient.ListItem{Ingredient: ing.Clone(), RecipeCount: count})
	}
	slices.SortFunc(items, func(a, b *ingredient.ListItem) int {
		return cmp.Compare(a.Ingredient.Name, b.Ingredient.Name)
	})
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func matchesPrefix(ing *ingredient.Ingredient, prefix string) bool {
	if strings.HasPrefix(ing.Name, prefix) {
		return true
	}
	return slices.ContainsFunc(ing.Aliases, func(a string) bool {
		return strings.HasPrefix(a, prefix)
	})
}

// ストア全体が直列化されているため、個別のロックは不要
func (r *ingredientRepo) LockIngredients(context.Context, []uuid.UUID) error { return nil }

func (r *ingredientRepo) LockNames(context.Context, []string) error { return nil }

func (r *ingredientRepo) CreateIngredient(ctx context.Context, ing *ingredient.Ingredient) error {
	if _, ok := r.st.ingredients[ing.ID]; ok {
		return fmt.Errorf("ingredient already exists: %s", ing.ID)
	}
	for _, other := range r.st.ingredients {
		if other.Name == ing.Name {
			return ingredient.ErrNameConflict
		}
	}
	stored := ing.Clone()
	stored.Aliases = []string{}
	r.st.ingredients[ing.ID] = stored
	return r.AddAliases(ctx, ing.ID, ing.Aliases)
}

func (r *ingredientRepo) UpdateIngredient(_ context.Context, ing *ingredient.Ingredient) error {
	stored, ok := r.st.ingredients[ing.ID]
	if !ok {
		return fmt.Errorf("ingredient not found: %s", ing.ID)
	}
	for id, other := range r.st.ingredients {
		if id != ing.ID && other.Name == ing.Name {
			return ingredient.ErrNameConflict
		}
	}
	stored.Name = ing.Name
	stored.AvailableMonths = slices.Clone(ing.AvailableMonths)
	stored.UpdatedAt = ing.UpdatedAt
	return nil
}

func (r *ingredientRepo) AddAliases(_ context.Context, id uuid.UUID, aliases []string) error {
	stored, ok := r.st.ingredients[id]
	if !ok {
		return fmt.Errorf("ingredient not found: %s", id)
	}
	for _, alias := range aliases {
		if owner, taken := r.st.aliases[alias]; taken {
			if owner == id {
				continue
			}
			return ingredient.ErrAliasConflict
		}
		r.st.aliases[alias] = id
		stored.Aliases = append(stored.Aliases, alias)
	}
	slices.Sort(stored.Aliases)
	return nil
}

func (r *ingredientRepo) RemoveAliases(_ context.Context, id uuid.UUID, aliases []string) error {
	stored, ok := r.st.ingredients[id]
	if !ok {
		return fmt.Errorf("ingredient not found: %s", id)
	}
	for _, alias := range aliases {
		if r.st.aliases[alias] == id {
			delete(r.st.aliases, alias)
		}
	}
	stored.Aliases = slices.DeleteFunc(stored.Aliases, func(a string) bool {
		return slices.Contains(aliases, a)
	})
	return nil
}

func (r *ingredientRepo) DeleteIngredient(_ context.Context, id uuid.UUID) error {
	stored, ok := r.st.ingredients[id]
	if !ok {
		return nil
	}
	for _, alias := range stored.Aliases {
		delete(r.st.aliases, alias)
	}
	for _, set := range r.st.refs {
		delete(set, id)
	}
	delete(r.st.ingredients, id)
	return nil
}

func (r *ingredientRepo) RepointReferences(_ context.Context, fromID, toID uuid.UUID) error {
	for _, set := range r.st.refs {
		if _, ok := set[fromID]; !ok {
			continue
		}
		delete(set, fromID)
		set[toID] = struct{}{}
	}
	return nil
}

func (s *state) countRecipes(id uuid.UUID) int {
	n := 0
	for _, set := range s.refs {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}
