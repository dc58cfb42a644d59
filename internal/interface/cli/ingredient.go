package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

type ingredientView struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Disambiguations []string  `json:"disambiguations"`
	AvailableMonths []int     `json:"availableMonths"`
	RecipeCount     *int      `json:"recipeCount,omitempty"`
}

func newIngredientView(ing *ingredient.Ingredient) ingredientView {
	return ingredientView{
		ID:              ing.ID,
		Name:            ing.Name,
		Disambiguations: ing.Aliases,
		AvailableMonths: ing.AvailableMonths,
	}
}

func newDetailView(d *ingredient.Detail) ingredientView {
	v := newIngredientView(d.Ingredient)
	count := d.RecipeCount
	v.RecipeCount = &count
	return v
}

// IngredientShowAction は食材詳細を表示するコマンドのアクション
func IngredientShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	detail, err := appCtx.Container.IngredientService.Get(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(cmd, newDetailView(detail))
}

// IngredientRenameAction は食材名を変更するコマンドのアクション
func IngredientRenameAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ing, err := appCtx.Container.IngredientService.Rename(ctx, id, cmd.String("name"))
	if err != nil {
		return err
	}
	return printJSON(cmd, newIngredientView(ing))
}

// IngredientAliasesAction は食材の別名を置き換えるコマンドのアクション
// --alias を省略すると別名をすべて外す
func IngredientAliasesAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ing, err := appCtx.Container.IngredientService.SetAliases(ctx, id, cmd.StringSlice("alias"))
	if err != nil {
		return err
	}
	return printJSON(cmd, newIngredientView(ing))
}

// IngredientDeleteAction は食材を削除するコマンドのアクション
func IngredientDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.IngredientService.Delete(ctx, id); err != nil {
		return err
	}
	appCtx.Logger().Info("食材を削除しました", "ingredientID", id)
	return nil
}

// IngredientMergeAction は複数の食材を1つに統合するコマンドのアクション
func IngredientMergeAction(ctx context.Context, cmd *cli.Command) error {
	targetID, err := parseUUIDFlag(cmd, "target")
	if err != nil {
		return err
	}
	var sourceIDs []uuid.UUID
	for _, raw := range cmd.StringSlice("source") {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("--source が不正な UUID です: %q", raw)
		}
		sourceIDs = append(sourceIDs, id)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	detail, err := appCtx.Container.IngredientService.Merge(ctx, targetID, sourceIDs)
	if err != nil {
		return err
	}
	return printJSON(cmd, newDetailView(detail))
}
