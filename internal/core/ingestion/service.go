package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/cookbook-catalog/internal/core/apperror"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// IngredientResolver は確定時に食材名を食材に解決する
type IngredientResolver interface {
	FindOrCreate(ctx context.Context, repo ingredient.Repository, rawName string) (*ingredient.Ingredient, error)
}

// Service は料理本の登録・OCR の開始・取り込み確定のユースケースを提供する
type Service struct {
	tx        Transactor
	gate      *Gate
	scheduler Scheduler
	resolver  IngredientResolver
	now       func() time.Time
	logger    *slog.Logger
}

type serviceOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithIngestionLogger は Service にロガーを設定する
func WithIngestionLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithIngestionClock は作成日時に使う時計を差し替える
func WithIngestionClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// NewService は新しい Service を作成する
func NewService(tx Transactor, scheduler Scheduler, resolver IngredientResolver, opts ...ServiceOption) *Service {
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
		tx:        tx,
		gate:      NewGate(tx),
		scheduler: scheduler,
		resolver:  resolver,
		now:       options.now,
		logger:    options.logger,
	}
}

// StartIngestion は OCR ジョブを開始する
// 状態遷移だけを行い、抽出はスケジューラに任せて直ちに戻る
func (s *Service) StartIngestion(ctx context.Context, cookbookID uuid.UUID) error {
	if err := s.gate.Start(ctx, cookbookID); err != nil {
		return err
	}
	s.logger.Info("OCRジョブを受け付け", "cookbookID", cookbookID)

	if err := s.scheduler.Submit(ctx, cookbookID); err != nil {
		return fmt.Errorf("failed to dispatch OCR job: %w", err)
	}
	return nil
}

// Snapshot はジョブの状態と抽出結果を返す
func (s *Service) Snapshot(ctx context.Context, cookbookID uuid.UUID) (*JobSnapshot, error) {
	var snapshot *JobSnapshot
	err := s.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		repo := tx.Cookbooks()
		cb, err := loadCookbook(ctx, repo, cookbookID, false)
		if err != nil {
			return err
		}
		results, err := repo.ListResults(ctx, cookbookID)
		if err != nil {
			return fmt.Errorf("failed to list results: %w", err)
		}
		snapshot = &JobSnapshot{
			CookbookID:   cb.ID,
			Title:        cb.Title,
			Status:       cb.Status,
			CurrentPage:  cb.CurrentPage,
			TotalPages:   cb.TotalPages,
			ErrorMessage: cb.ErrorMessage,
			Results:      results,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Confirm はユーザーが確認した抽出結果をレシピと食材として確定し、ジョブを NONE に戻す
// keep=false の行は捨て、残りを (レシピ名, ページ番号) ごとにまとめる
func (s *Service) Confirm(ctx context.Context, cookbookID uuid.UUID, recipes []ConfirmedRecipe) (*ConfirmResult, error) {
	if recipes == nil {
		return nil, ErrRecipesRequired
	}

	groups, err := groupConfirmed(recipes)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{}
	err = s.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		repo := tx.Cookbooks()
		cb, err := loadCookbook(ctx, repo, cookbookID, true)
		if err != nil {
			return err
		}
		if cb.Status == StatusProcessing {
			return ErrAlreadyRunning
		}
		// 名前のロックは常に同じ順序で取得する
		if err := tx.Ingredients().LockNames(ctx, confirmedNames(groups)); err != nil {
			return fmt.Errorf("failed to lock ingredient names: %w", err)
		}

		for _, g := range groups {
			recipeID, created, err := s.findOrCreateRecipe(ctx, repo, cookbookID, g.key)
			if err != nil {
				return err
			}
			if created {
				result.RecipesCreated++
			}
			for _, raw := range g.ingredients {
				ing, err := s.resolver.FindOrCreate(ctx, tx.Ingredients(), raw)
				if err != nil {
					return err
				}
				if err := repo.AttachIngredient(ctx, recipeID, ing.ID); err != nil {
					return fmt.Errorf("failed to attach ingredient: %w", err)
				}
				result.IngredientsTotal++
			}
		}

		if err := repo.DeleteResults(ctx, cookbookID); err != nil {
			return fmt.Errorf("failed to delete results: %w", err)
		}
		return repo.ResetStatus(ctx, cookbookID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("取り込みを確定",
		"cookbookID", cookbookID,
		"recipesCreated", result.RecipesCreated,
		"ingredients", result.IngredientsTotal,
	)
	return result, nil
}

// CreateCookbook は料理本を登録する
func (s *Service) CreateCookbook(ctx context.Context, title string, author *string) (*Cookbook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if author != nil {
		a := strings.TrimSpace(*author)
		if a == "" {
			author = nil
		} else {
			author = &a
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookbook ID: %w", err)
	}
	cb := &Cookbook{
		ID:        id,
		Title:     title,
		Author:    author,
		Status:    StatusNone,
		CreatedAt: s.now(),
	}
	err = s.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Cookbooks().CreateCookbook(ctx, cb)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookbook: %w", err)
	}

	s.logger.Info("料理本を登録", "cookbookID", cb.ID, "title", cb.Title)
	return cb, nil
}

// AddPages は索引ページを既存ページの後ろに追加する
func (s *Service) AddPages(ctx context.Context, cookbookID uuid.UUID, uploads []PageUpload) ([]*Page, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	for _, u := range uploads {
		if _, ok := allowedContentTypes[u.ContentType]; !ok {
			return nil, apperror.Wrapf(ErrInvalidImageType, "only JPEG and PNG images are allowed: %s", u.Filename)
		}
	}

	var pages []*Page
	err := s.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		repo := tx.Cookbooks()
		if _, err := loadCookbook(ctx, repo, cookbookID, true); err != nil {
			return err
		}
		last, err := repo.MaxPageOrder(ctx, cookbookID)
		if err != nil {
			return fmt.Errorf("failed to get page order: %w", err)
		}

		now := s.now()
		for i, u := range uploads {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate page ID: %w", err)
			}
			page := &Page{
				ID:          id,
				CookbookID:  cookbookID,
				Order:       last + i + 1,
				Image:       u.Data,
				ContentType: u.ContentType,
				CreatedAt:   now,
			}
			if err := repo.AddPage(ctx, page); err != nil {
				return fmt.Errorf("failed to add page: %w", err)
			}
			pages = append(pages, page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("索引ページを追加", "cookbookID", cookbookID, "pages", len(pages))
	return pages, nil
}

// GetCookbook は料理本を取得する
func (s *Service) GetCookbook(ctx context.Context, cookbookID uuid.UUID) (*Cookbook, error) {
	var cb *Cookbook
	err := s.tx.Transact(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cb, err = loadCookbook(ctx, tx.Cookbooks(), cookbookID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (s *Service) findOrCreateRecipe(ctx context.Context, repo Repository, cookbookID uuid.UUID, key recipeKey) (uuid.UUID, bool, error) {
	existing, err := repo.FindRecipe(ctx, cookbookID, key.name, key.page)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to find recipe: %w", err)
	}
	if id, ok := existing.Get(); ok {
		return id, false, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to generate recipe ID: %w", err)
	}
	recipe := &Recipe{
		ID:         id,
		CookbookID: cookbookID,
		Name:       key.name,
		PageNumber: key.page,
		CreatedAt:  s.now(),
	}
	if err := repo.CreateRecipe(ctx, recipe); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create recipe: %w", err)
	}
	return id, true, nil
}

type recipeKey struct {
	name string
	page int
}

type recipeGroup struct {
	key         recipeKey
	ingredients []string
}

// groupConfirmed は keep の行をレシピごとにまとめる（入力順を維持）
func groupConfirmed(recipes []ConfirmedRecipe) ([]*recipeGroup, error) {
	index := make(map[recipeKey]*recipeGroup)
	var groups []*recipeGroup
	for _, r := range recipes {
		if !r.Keep {
			continue
		}
		name := strings.TrimSpace(r.RecipeName)
		if name == "" || r.PageNumber <= 0 {
			return nil, apperror.Wrapf(ErrInvalidRecipe, "invalid recipe %q on page %d", r.RecipeName, r.PageNumber)
		}
		if _, err := ingredient.Normalize(r.Ingredient); err != nil {
			return nil, err
		}

		key := recipeKey{name: name, page: r.PageNumber}
		g, ok := index[key]
		if !ok {
			g = &recipeGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.ingredients = append(g.ingredients, r.Ingredient)
	}
	return groups, nil
}

func confirmedNames(groups []*recipeGroup) []string {
	var names []string
	for _, g := range groups {
		for _, raw := range g.ingredients {
			// groupConfirmed で検証済み
			name, _ := ingredient.Normalize(raw)
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func loadCookbook(ctx context.Context, repo Repository, id uuid.UUID, lock bool) (*Cookbook, error) {
	get := repo.GetCookbook
	if lock {
		get = repo.LockCookbook
	}
	opt, err := get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get cookbook: %w", err)
	}
	cb, ok := opt.Get()
	if !ok {
		return nil, apperror.Wrapf(ErrCookbookNotFound, "cookbook not found: %s", id)
	}
	return cb, nil
}
