package ingredient

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/jinford/cookbook-catalog/internal/core/apperror"
)

// Merge は sourceIDs の食材を targetID の食材に統合する
//
// 各マージ元について、名前と別名をマージ先の別名へ移し、レシピの参照をマージ先へ付け替えてから
// マージ元を削除する。全体が一つのトランザクションで実行され、関係するすべての食材をロックする。
// マージ元は復元できないため、呼び出し側は破壊的操作として扱うこと。
func (s *Service) Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) (*Detail, error) {
	if len(sourceIDs) == 0 {
		return nil, ErrNoSources
	}
	sources := uniqueIDs(sourceIDs)

	var detail *Detail
	err := s.tx.Transact(ctx, func(ctx context.Context, repo Repository) error {
		lockIDs := uniqueIDs(append([]uuid.UUID{targetID}, sources...))
		if err := repo.LockIngredients(ctx, lockIDs); err != nil {
			return fmt.Errorf("failed to lock ingredients: %w", err)
		}

		target, err := loadMergeParticipant(ctx, repo, targetID, "target")
		if err != nil {
			return err
		}
		loaded := make([]*Ingredient, 0, len(sources))
		for _, id := range sources {
			src, err := loadMergeParticipant(ctx, repo, id, "source")
			if err != nil {
				return err
			}
			loaded = append(loaded, src)
		}
		if slices.Contains(sources, targetID) {
			return ErrTargetInSources
		}

		var moving []string
		for _, src := range loaded {
			moving = append(moving, src.Name)
			moving = append(moving, src.Aliases...)
		}
		if err := repo.LockNames(ctx, sortedUnique(moving)); err != nil {
			return fmt.Errorf("failed to lock names: %w", err)
		}

		for _, src := range loaded {
			if err := absorb(ctx, repo, target, src); err != nil {
				return err
			}
		}

		target.UpdatedAt = s.now()
		if err := repo.UpdateIngredient(ctx, target); err != nil {
			return fmt.Errorf("failed to update target ingredient: %w", err)
		}

		detail, err = buildDetail(ctx, repo, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("食材をマージ",
		"targetID", targetID,
		"sources", len(sources),
		"aliases", len(detail.Ingredient.Aliases),
		"recipeCount", detail.RecipeCount,
	)
	return detail, nil
}

// absorb は1件のマージ元をマージ先に取り込む
// 別名は全体で一意なので、先にマージ元から外してからマージ先に付ける
func absorb(ctx context.Context, repo Repository, target, src *Ingredient) error {
	name := src.Name
	aliases := slices.Clone(src.Aliases)

	if len(aliases) > 0 {
		if err := repo.RemoveAliases(ctx, src.ID, aliases); err != nil {
			return fmt.Errorf("failed to clear source aliases: %w", err)
		}
		src.Aliases = nil
	}

	var toAdd []string
	for _, candidate := range append([]string{name}, aliases...) {
		if candidate == target.Name || target.HasAlias(candidate) || slices.Contains(toAdd, candidate) {
			continue
		}
		toAdd = append(toAdd, candidate)
	}
	if len(toAdd) > 0 {
		if err := repo.AddAliases(ctx, target.ID, toAdd); err != nil {
			return fmt.Errorf("failed to add aliases to target: %w", err)
		}
		target.Aliases = sortedUnique(append(target.Aliases, toAdd...))
	}

	if err := repo.RepointReferences(ctx, src.ID, target.ID); err != nil {
		return fmt.Errorf("failed to repoint recipe references: %w", err)
	}
	if err := repo.DeleteIngredient(ctx, src.ID); err != nil {
		return fmt.Errorf("failed to delete source ingredient: %w", err)
	}
	return nil
}

func loadMergeParticipant(ctx context.Context, repo Repository, id uuid.UUID, role string) (*Ingredient, error) {
	opt, err := repo.GetIngredient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s ingredient: %w", role, err)
	}
	ing, ok := opt.Get()
	if !ok {
		return nil, apperror.Wrapf(ErrIngredientNotFound, "%s ingredient not found: %s", role, id)
	}
	return ing, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}
