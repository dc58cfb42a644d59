package ingredient

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/apperror"
)

// Service は食材の同一性・別名・マージのユースケースを提供する
type Service struct {
	tx     Transactor
	now    func() time.Time
	logger *slog.Logger
}

type serviceOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithIngredientLogger は Service にロガーを設定する
func WithIngredientLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithIngredientClock は現在時刻の取得方法を差し替える（旬の判定とタイムスタンプに使用）
func WithIngredientClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// NewService は新しい Service を作成する
func NewService(tx Transactor, opts ...ServiceOption) *Service {
	options := serviceOptions{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.now == nil {
		options.now = time.Now
	}

	return &Service{
		tx:     tx,
		now:    options.now,
		logger: options.logger,
	}
}

// Get は食材詳細を取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	var detail *Detail
	err := s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		ing, err := loadIngredient(ctx, repo, id)
		if err != nil {
			return err
		}
		detail, err = buildDetail(ctx, repo, ing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Create は新しい食材を作成する
func (s *Service) Create(ctx context.Context, rawName string) (*Ingredient, error) {
	name, err := Normalize(rawName)
	if err != nil {
		return nil, err
	}

	var created *Ingredient
	err = s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockNames(ctx, []string{name}); err != nil {
			return fmt.Errorf("failed to lock name: %w", err)
		}
		ok, err := IsNameAvailable(ctx, repo, name, uuid.Nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Wrapf(ErrNameConflict, "name %q is already in use by another ingredient or disambiguation", name)
		}
		created, err = s.create(ctx, repo, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("食材を作成", "ingredientID", created.ID, "name", created.Name)
	return created, nil
}

// Rename は食材の名前を変更する（別名と旬は維持）
func (s *Service) Rename(ctx context.Context, id uuid.UUID, newName string) (*Ingredient, error) {
	name, err := Normalize(newName)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, changes{name: mo.Some(name)})
}

// SetAliases は食材の別名集合を置き換える
// 追加分をすべて検証してから、削除と追加をまとめて適用する
func (s *Service) SetAliases(ctx context.Context, id uuid.UUID, aliases []string) (*Ingredient, error) {
	normalized, err := normalizeSet(aliases)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, changes{aliases: mo.Some(normalized)})
}

// Update は名前・別名・旬の月をまとめて置き換える
// いずれかの検証に失敗した場合は何も変更しない
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Ingredient, error) {
	name, err := NormalizePtr(params.Name)
	if err != nil {
		return nil, err
	}
	aliases, err := normalizeSet(params.Aliases)
	if err != nil {
		return nil, err
	}
	months, err := normalizeMonths(params.AvailableMonths)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, changes{
		name:    mo.Some(name),
		aliases: mo.Some(aliases),
		months:  mo.Some(months),
	})
}

// Delete は食材を削除する。レシピから参照されている場合は ErrHasReferences
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockIngredients(ctx, []uuid.UUID{id}); err != nil {
			return fmt.Errorf("failed to lock ingredient: %w", err)
		}
		ing, err := loadIngredient(ctx, repo, id)
		if err != nil {
			return err
		}
		// 名前のロックは取り込み確定と共有する。ID のロックの後に取る
		if err := repo.LockNames(ctx, sortedUnique(append([]string{ing.Name}, ing.Aliases...))); err != nil {
			return fmt.Errorf("failed to lock names: %w", err)
		}
		count, err := repo.CountRecipes(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count recipes: %w", err)
		}
		if count > 0 {
			return apperror.Wrapf(ErrHasReferences, "cannot delete ingredient with %d recipe associations", count)
		}
		if err := repo.DeleteIngredient(ctx, id); err != nil {
			return fmt.Errorf("failed to delete ingredient: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("食材を削除", "ingredientID", id)
	return nil
}

// List は条件に合う食材を名前順に取得する
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := ListQuery{
		Prefix:         strings.ToLower(strings.TrimSpace(filter.Query)),
		HasAliases:     filter.HasAliases,
		MinRecipeCount: filter.MinRecipeCount,
		Cursor:         filter.Cursor,
		Limit:          limit + 1,
	}
	if filter.AvailableNow {
		q.Month = mo.Some(s.now().Month())
	}

	var items []*ListItem
	err := s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		items, err = repo.ListIngredients(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to list ingredients: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	page := &ListPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		page.NextCursor = mo.Some(page.Items[limit-1].Ingredient.ID)
	}
	return page, nil
}

// FindOrCreate は呼び出し元のトランザクション内で名前を解決し、なければ作成する
// 名前、別名の順に検索するため、既存の別名と同じ名前の食材が作られることはない
func (s *Service) FindOrCreate(ctx context.Context, repo Repository, rawName string) (*Ingredient, error) {
	name, err := Normalize(rawName)
	if err != nil {
		return nil, err
	}
	if err := repo.LockNames(ctx, []string{name}); err != nil {
		return nil, fmt.Errorf("failed to lock name: %w", err)
	}

	byName, err := repo.GetIngredientByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ingredient name: %w", err)
	}
	if ing, ok := byName.Get(); ok {
		return ing, nil
	}

	owner, err := repo.FindAliasOwner(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up alias: %w", err)
	}
	if ownerID, ok := owner.Get(); ok {
		return loadIngredient(ctx, repo, ownerID)
	}

	return s.create(ctx, repo, name)
}

type changes struct {
	name    mo.Option[string]
	aliases mo.Option[[]string]
	months  mo.Option[[]int]
}

func (s *Service) update(ctx context.Context, id uuid.UUID, c changes) (*Ingredient, error) {
	var updated *Ingredient
	err := s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockIngredients(ctx, []uuid.UUID{id}); err != nil {
			return fmt.Errorf("failed to lock ingredient: %w", err)
		}
		var names []string
		if n, ok := c.name.Get(); ok {
			names = append(names, n)
		}
		names = append(names, c.aliases.OrEmpty()...)
		if err := repo.LockNames(ctx, sortedUnique(names)); err != nil {
			return fmt.Errorf("failed to lock names: %w", err)
		}

		ing, err := loadIngredient(ctx, repo, id)
		if err != nil {
			return err
		}

		newName := c.name.OrElse(ing.Name)
		if newName != ing.Name {
			ok, err := IsNameAvailable(ctx, repo, newName, id)
			if err != nil {
				return err
			}
			if !ok {
				return apperror.Wrapf(ErrNameConflict, "name %q is already in use by another ingredient or disambiguation", newName)
			}
		}

		targetAliases := c.aliases.OrElse(ing.Aliases)
		added, removed := aliasDiff(ing.Aliases, targetAliases)
		for _, alias := range targetAliases {
			if alias == newName {
				return apperror.Wrapf(ErrAliasConflict, "disambiguation %q cannot equal the ingredient name", alias)
			}
		}
		for _, alias := range added {
			// 改名で手放す旧名は自分の別名にできる
			if alias == ing.Name {
				continue
			}
			ok, err := IsAliasAvailable(ctx, repo, alias, id)
			if err != nil {
				return err
			}
			if !ok {
				return apperror.Wrapf(ErrAliasConflict, "disambiguation %q is already in use", alias)
			}
		}

		if len(removed) > 0 {
			if err := repo.RemoveAliases(ctx, id, removed); err != nil {
				return fmt.Errorf("failed to remove aliases: %w", err)
			}
		}

		ing.Name = newName
		ing.AvailableMonths = c.months.OrElse(ing.AvailableMonths)
		ing.UpdatedAt = s.now()
		if err := repo.UpdateIngredient(ctx, ing); err != nil {
			return fmt.Errorf("failed to update ingredient: %w", err)
		}

		if len(added) > 0 {
			if err := repo.AddAliases(ctx, id, added); err != nil {
				return fmt.Errorf("failed to add aliases: %w", err)
			}
		}

		ing.Aliases = sortedUnique(targetAliases)
		updated = ing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("食材を更新",
		"ingredientID", updated.ID,
		"name", updated.Name,
		"aliases", len(updated.Aliases),
	)
	return updated, nil
}

func (s *Service) create(ctx context.Context, repo Repository, name string) (*Ingredient, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ingredient ID: %w", err)
	}
	now := s.now()
	ing := &Ingredient{
		ID:              id,
		Name:            name,
		Aliases:         []string{},
		AvailableMonths: []int{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.CreateIngredient(ctx, ing); err != nil {
		return nil, fmt.Errorf("failed to create ingredient: %w", err)
	}
	return ing, nil
}

func loadIngredient(ctx context.Context, repo Repository, id uuid.UUID) (*Ingredient, error) {
	opt, err := repo.GetIngredient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingredient: %w", err)
	}
	ing, ok := opt.Get()
	if !ok {
		return nil, apperror.Wrapf(ErrIngredientNotFound, "ingredient not found: %s", id)
	}
	return ing, nil
}

func buildDetail(ctx context.Context, repo Repository, ing *Ingredient) (*Detail, error) {
	count, err := repo.CountRecipes(ctx, ing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count recipes: %w", err)
	}
	recipes, err := repo.ListRecipeSummaries(ctx, ing.ID, RecipePreviewLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return &Detail{Ingredient: ing, RecipeCount: count, Recipes: recipes}, nil
}

func sortedUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
