package ingredient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IsNameAvailable は candidate が他の食材の名前でも、いずれかの食材の別名でもない場合に true を返します
func IsNameAvailable(ctx context.Context, repo Repository, candidate string, excludingID uuid.UUID) (bool, error) {
	name, err := Normalize(candidate)
	if err != nil {
		return false, err
	}

	owner, err := repo.GetIngredientByName(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up ingredient name: %w", err)
	}
	if ing, ok := owner.Get(); ok && ing.ID != excludingID {
		return false, nil
	}

	aliasOwner, err := repo.FindAliasOwner(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up alias: %w", err)
	}
	return aliasOwner.IsAbsent(), nil
}

// IsAliasAvailable は candidate がどの食材の名前でもなく、他の食材の別名でもない場合に true を返します
// forID の食材が既に持っている別名は利用可能として扱います
func IsAliasAvailable(ctx context.Context, repo Repository, candidate string, forID uuid.UUID) (bool, error) {
	alias, err := Normalize(candidate)
	if err != nil {
		return false, err
	}

	owner, err := repo.GetIngredientByName(ctx, alias)
	if err != nil {
		return false, fmt.Errorf("failed to look up ingredient name: %w", err)
	}
	if owner.IsPresent() {
		return false, nil
	}

	aliasOwner, err := repo.FindAliasOwner(ctx, alias)
	if err != nil {
		return false, fmt.Errorf("failed to look up alias: %w", err)
	}
	if id, ok := aliasOwner.Get(); ok && id != forID {
		return false, nil
	}
	return true, nil
}

// aliasDiff は現在の別名集合と目標集合の差分（追加分・削除分）を返します
func aliasDiff(current, target []string) (added, removed []string) {
	cur := make(map[string]struct{}, len(current))
	for _, a := range current {
		cur[a] = struct{}{}
	}
	tgt := make(map[string]struct{}, len(target))
	for _, a := range target {
		tgt[a] = struct{}{}
		if _, ok := cur[a]; !ok {
			added = append(added, a)
		}
	}
	for _, a := range current {
		if _, ok := tgt[a]; !ok {
			removed = append(removed, a)
		}
	}
	return added, removed
}
