package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// IngredientRepository は ingredient.Repository を実装する PostgreSQL リポジトリです
type IngredientRepository struct {
	db    DBTX
	locks *LockManager
}

// NewIngredientRepository は新しい IngredientRepository を作成します
func NewIngredientRepository(db DBTX, locks *LockManager) *IngredientRepository {
	return &IngredientRepository{db: db, locks: locks}
}

// コンパイル時の型チェック
var _ ingredient.Repository = (*IngredientRepository)(nil)

const ingredientColumns = `
	i.id, i.name, i.created_at, i.updated_at,
	COALESCE((SELECT array_agg(a.name ORDER BY a.name) FROM ingredient_aliases a WHERE a.ingredient_id = i.id), '{}') AS aliases,
	COALESCE((SELECT array_agg(m.month ORDER BY m.month) FROM ingredient_available_months m WHERE m.ingredient_id = i.id), '{}') AS months`

const recipeCountColumn = `(SELECT count(DISTINCT ri.recipe_id) FROM recipe_ingredients ri WHERE ri.ingredient_id = i.id)`

func scanIngredient(row pgx.Row, extra ...any) (*ingredient.Ingredient, error) {
	var (
		id        pgtype.UUID
		name      string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		aliases   []string
		months    []int32
	)
	dest := append([]any{&id, &name, &createdAt, &updatedAt, &aliases, &months}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if aliases == nil {
		aliases = []string{}
	}
	return &ingredient.Ingredient{
		ID:              PgtypeToUUID(id),
		Name:            name,
		Aliases:         aliases,
		AvailableMonths: Int32sToInts(months),
		CreatedAt:       PgtypeToTime(createdAt),
		UpdatedAt:       PgtypeToTime(updatedAt),
	}, nil
}

// === 読み取り ===

func (r *IngredientRepository) GetIngredient(ctx context.Context, id uuid.UUID) (mo.Option[*ingredient.Ingredient], error) {
	row := r.db.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients i WHERE i.id = $1`, UUIDToPgtype(id))
	ing, err := scanIngredient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingredient.Ingredient](), nil
		}
		return mo.None[*ingredient.Ingredient](), fmt.Errorf("failed to get ingredient: %w", err)
	}
	return mo.Some(ing), nil
}

func (r *IngredientRepository) GetIngredientByName(ctx context.Context, name string) (mo.Option[*ingredient.Ingredient], error) {
	row := r.db.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients i WHERE i.name = $1`, name)
	ing, err := scanIngredient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingredient.Ingredient](), nil
		}
		return mo.None[*ingredient.Ingredient](), fmt.Errorf("failed to get ingredient by name: %w", err)
	}
	return mo.Some(ing), nil
}

func (r *IngredientRepository) FindAliasOwner(ctx context.Context, alias string) (mo.Option[uuid.UUID], error) {
	var owner pgtype.UUID
	err := r.db.QueryRow(ctx, `SELECT ingredient_id FROM ingredient_aliases WHERE name = $1`, alias).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[uuid.UUID](), nil
		}
		return mo.None[uuid.UUID](), fmt.Errorf("failed to find alias owner: %w", err)
	}
	return mo.Some(PgtypeToUUID(owner)), nil
}

func (r *IngredientRepository) CountRecipes(ctx context.Context, id uuid.UUID) (int, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT count(DISTINCT recipe_id) FROM recipe_ingredients WHERE ingredient_id = $1`,
		UUIDToPgtype(id),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recipes: %w", err)
	}
	return int(count), nil
}

func (r *IngredientRepository) ListRecipeSummaries(ctx context.Context, id uuid.UUID, limit int) ([]ingredient.RecipeSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.name, c.title, r.page_number
		FROM recipe_ingredients ri
		JOIN recipes r ON r.id = ri.recipe_id
		LEFT JOIN cookbooks c ON c.id = r.cookbook_id
		WHERE ri.ingredient_id = $1
		ORDER BY r.name, r.id
		LIMIT $2`,
		UUIDToPgtype(id), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipe summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ingredient.RecipeSummary
	for rows.Next() {
		var (
			recipeID pgtype.UUID
			name     string
			title    pgtype.Text
			page     int32
		)
		if err := rows.Scan(&recipeID, &name, &title, &page); err != nil {
			return nil, fmt.Errorf("failed to scan recipe summary: %w", err)
		}
		summaries = append(summaries, ingredient.RecipeSummary{
			ID:            PgtypeToUUID(recipeID),
			Name:          name,
			CookbookTitle: PgtextToStringPtr(title),
			PageNumber:    int(page),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list recipe summaries: %w", err)
	}
	return summaries, nil
}

func (r *IngredientRepository) ListIngredients(ctx context.Context, q ingredient.ListQuery) ([]*ingredient.ListItem, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Prefix != "" {
		p := arg(escapeLike(q.Prefix) + "%")
		conds = append(conds, fmt.Sprintf(
			`(i.name LIKE %[1]s OR EXISTS (SELECT 1 FROM ingredient_aliases a WHERE a.ingredient_id = i.id AND a.name LIKE %[1]s))`, p))
	}
	if want, ok := q.HasAliases.Get(); ok {
		exists := `EXISTS (SELECT 1 FROM ingredient_aliases a WHERE a.ingredient_id = i.id)`
		if !want {
			exists = "NOT " + exists
		}
		conds = append(conds, exists)
	}
	if month, ok := q.Month.Get(); ok {
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM ingredient_available_months m WHERE m.ingredient_id = i.id AND m.month = %s)`, arg(int32(month))))
	}
	if q.MinRecipeCount > 0 {
		conds = append(conds, fmt.Sprintf(`%s >= %s`, recipeCountColumn, arg(q.MinRecipeCount)))
	}
	if cursor, ok := q.Cursor.Get(); ok {
		// カーソルの食材が消えている場合は結果なし
		conds = append(conds, fmt.Sprintf(
			`i.name > (SELECT c.name FROM ingredients c WHERE c.id = %s)`, arg(UUIDToPgtype(cursor))))
	}

	sql := `SELECT ` + ingredientColumns + `, ` + recipeCountColumn + ` AS recipe_count FROM ingredients i`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY i.name`
	if q.Limit > 0 {
		sql += ` LIMIT ` + arg(q.Limit)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	items := []*ingredient.ListItem{}
	for rows.Next() {
		var count int64
		ing, err := scanIngredient(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		items = append(items, &ingredient.ListItem{Ingredient: ing, RecipeCount: int(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	return items, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// === 排他制御 ===

func (r *IngredientRepository) LockIngredients(ctx context.Context, ids []uuid.UUID) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	return r.locks.AcquireAll(ctx, lockScopeIngredient, keys)
}

func (r *IngredientRepository) LockNames(ctx context.Context, names []string) error {
	return r.locks.AcquireAll(ctx, lockScopeIngredientName, names)
}

// === 書き込み ===

func (r *IngredientRepository) CreateIngredient(ctx context.Context, ing *ingredient.Ingredient) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingredients (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		UUIDToPgtype(ing.ID), ing.Name, TimeToPgtype(ing.CreatedAt), TimeToPgtype(ing.UpdatedAt),
	)
	if err != nil {
		return mapIngredientError("failed to create ingredient", err)
	}
	if err := r.replaceMonths(ctx, ing.ID, ing.AvailableMonths); err != nil {
		return err
	}
	if len(ing.Aliases) > 0 {
		return r.AddAliases(ctx, ing.ID, ing.Aliases)
	}
	return nil
}

func (r *IngredientRepository) UpdateIngredient(ctx context.Context, ing *ingredient.Ingredient) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE ingredients SET name = $2, updated_at = $3 WHERE id = $1`,
		UUIDToPgtype(ing.ID), ing.Name, TimeToPgtype(ing.UpdatedAt),
	)
	if err != nil {
		return mapIngredientError("failed to update ingredient", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update ingredient: not found: %s", ing.ID)
	}
	return r.replaceMonths(ctx, ing.ID, ing.AvailableMonths)
}

func (r *IngredientRepository) replaceMonths(ctx context.Context, id uuid.UUID, months []int) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ingredient_available_months WHERE ingredient_id = $1`, UUIDToPgtype(id)); err != nil {
		return fmt.Errorf("failed to clear available months: %w", err)
	}
	if len(months) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingredient_available_months (ingredient_id, month) SELECT $1, unnest($2::int4[])`,
		UUIDToPgtype(id), IntsToInt32s(months),
	)
	if err != nil {
		return fmt.Errorf("failed to set available months: %w", err)
	}
	return nil
}

func (r *IngredientRepository) AddAliases(ctx context.Context, id uuid.UUID, aliases []string) error {
	if len(aliases) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingredient_aliases (name, ingredient_id) SELECT unnest($2::text[]), $1`,
		UUIDToPgtype(id), aliases,
	)
	if err != nil {
		return mapIngredientError("failed to add aliases", err)
	}
	return nil
}

func (r *IngredientRepository) RemoveAliases(ctx context.Context, id uuid.UUID, aliases []string) error {
	if len(aliases) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM ingredient_aliases WHERE ingredient_id = $1 AND name = ANY($2::text[])`,
		UUIDToPgtype(id), aliases,
	)
	if err != nil {
		return fmt.Errorf("failed to remove aliases: %w", err)
	}
	return nil
}

func (r *IngredientRepository) DeleteIngredient(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ingredients WHERE id = $1`, UUIDToPgtype(id)); err != nil {
		return fmt.Errorf("failed to delete ingredient: %w", err)
	}
	return nil
}

// RepointReferences は from の参照を to に付け替えます
// 既に to を参照しているレシピでは重複になる (recipe, from) を先に削除します
func (r *IngredientRepository) RepointReferences(ctx context.Context, fromID, toID uuid.UUID) error {
	from, to := UUIDToPgtype(fromID), UUIDToPgtype(toID)
	_, err := r.db.Exec(ctx, `
		DELETE FROM recipe_ingredients ri
		WHERE ri.ingredient_id = $1
		  AND EXISTS (
		      SELECT 1 FROM recipe_ingredients t
		      WHERE t.recipe_id = ri.recipe_id AND t.ingredient_id = $2
		  )`,
		from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to delete duplicate references: %w", err)
	}
	if _, err := r.db.Exec(ctx, `UPDATE recipe_ingredients SET ingredient_id = $2 WHERE ingredient_id = $1`, from, to); err != nil {
		return fmt.Errorf("failed to repoint references: %w", err)
	}
	return nil
}

// mapIngredientError は一意制約違反を対応する衝突エラーに変換します
func mapIngredientError(op string, err error) error {
	switch violatedConstraint(err) {
	case "ingredients_name_key":
		return fmt.Errorf("%s: %w", op, ingredient.ErrNameConflict)
	case "ingredient_aliases_name_key":
		return fmt.Errorf("%s: %w", op, ingredient.ErrAliasConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
