package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

// CookbookRepository は ingestion.Repository を実装する PostgreSQL リポジトリです
type CookbookRepository struct {
	db DBTX
}

// NewCookbookRepository は新しい CookbookRepository を作成します
func NewCookbookRepository(db DBTX) *CookbookRepository {
	return &CookbookRepository{db: db}
}

// コンパイル時の型チェック
var _ ingestion.Repository = (*CookbookRepository)(nil)

const cookbookColumns = `id, title, author, ocr_status, ocr_error_message, ocr_current_page, ocr_total_pages, created_at`

func scanCookbook(row pgx.Row) (*ingestion.Cookbook, error) {
	var (
		id        pgtype.UUID
		title     string
		author    pgtype.Text
		status    string
		message   pgtype.Text
		current   int32
		total     int32
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &title, &author, &status, &message, &current, &total, &createdAt); err != nil {
		return nil, err
	}
	return &ingestion.Cookbook{
		ID:           PgtypeToUUID(id),
		Title:        title,
		Author:       PgtextToStringPtr(author),
		Status:       ingestion.Status(status),
		ErrorMessage: PgtextToStringPtr(message),
		CurrentPage:  int(current),
		TotalPages:   int(total),
		CreatedAt:    PgtypeToTime(createdAt),
	}, nil
}

// === Cookbook ===

func (r *CookbookRepository) CreateCookbook(ctx context.Context, cb *ingestion.Cookbook) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cookbooks (id, title, author, ocr_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		UUIDToPgtype(cb.ID), cb.Title, StringPtrToPgtext(cb.Author), string(cb.Status), TimeToPgtype(cb.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create cookbook: %w", err)
	}
	return nil
}

func (r *CookbookRepository) GetCookbook(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Cookbook], error) {
	return r.getCookbook(ctx, `SELECT `+cookbookColumns+` FROM cookbooks WHERE id = $1`, id)
}

func (r *CookbookRepository) LockCookbook(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Cookbook], error) {
	return r.getCookbook(ctx, `SELECT `+cookbookColumns+` FROM cookbooks WHERE id = $1 FOR UPDATE`, id)
}

func (r *CookbookRepository) getCookbook(ctx context.Context, sql string, id uuid.UUID) (mo.Option[*ingestion.Cookbook], error) {
	cb, err := scanCookbook(r.db.QueryRow(ctx, sql, UUIDToPgtype(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingestion.Cookbook](), nil
		}
		return mo.None[*ingestion.Cookbook](), fmt.Errorf("failed to get cookbook: %w", err)
	}
	return mo.Some(cb), nil
}

// === CookbookStatus ===

func (r *CookbookRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next ingestion.Status) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE cookbooks
		SET ocr_status = $3, ocr_error_message = NULL, updated_at = now()
		WHERE id = $1 AND ocr_status = $2`,
		UUIDToPgtype(id), string(expected), string(next),
	)
	if err != nil {
		return false, fmt.Errorf("failed to compare and set status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CookbookRepository) SetTerminalStatus(ctx context.Context, id uuid.UUID, status ingestion.Status, message *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE cookbooks
		SET ocr_status = $2, ocr_error_message = $3, updated_at = now()
		WHERE id = $1 AND ocr_status = $4`,
		UUIDToPgtype(id), string(status), StringPtrToPgtext(message), string(ingestion.StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("failed to set terminal status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CookbookRepository) ResetStatus(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE cookbooks
		SET ocr_status = $2, ocr_error_message = NULL, ocr_current_page = 0, ocr_total_pages = 0, updated_at = now()
		WHERE id = $1`,
		UUIDToPgtype(id), string(ingestion.StatusNone),
	)
	if err != nil {
		return fmt.Errorf("failed to reset status: %w", err)
	}
	return nil
}

func (r *CookbookRepository) UpdateProgress(ctx context.Context, id uuid.UUID, current, total int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE cookbooks SET ocr_current_page = $2, ocr_total_pages = $3, updated_at = now() WHERE id = $1`,
		UUIDToPgtype(id), current, total,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// === PageStore ===

func (r *CookbookRepository) ListPages(ctx context.Context, cookbookID uuid.UUID) ([]*ingestion.Page, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, cookbook_id, page_order, image, content_type, created_at
		FROM cookbook_index_pages
		WHERE cookbook_id = $1
		ORDER BY page_order`,
		UUIDToPgtype(cookbookID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*ingestion.Page
	for rows.Next() {
		var (
			id, owner   pgtype.UUID
			order       int32
			image       []byte
			contentType string
			createdAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &owner, &order, &image, &contentType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, &ingestion.Page{
			ID:          PgtypeToUUID(id),
			CookbookID:  PgtypeToUUID(owner),
			Order:       int(order),
			Image:       image,
			ContentType: contentType,
			CreatedAt:   PgtypeToTime(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return pages, nil
}

func (r *CookbookRepository) CountPages(ctx context.Context, cookbookID uuid.UUID) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM cookbook_index_pages WHERE cookbook_id = $1`, UUIDToPgtype(cookbookID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(n), nil
}

func (r *CookbookRepository) MaxPageOrder(ctx context.Context, cookbookID uuid.UUID) (int, error) {
	var n int32
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(max(page_order), 0) FROM cookbook_index_pages WHERE cookbook_id = $1`,
		UUIDToPgtype(cookbookID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get max page order: %w", err)
	}
	return int(n), nil
}

func (r *CookbookRepository) AddPage(ctx context.Context, page *ingestion.Page) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cookbook_index_pages (id, cookbook_id, page_order, image, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		UUIDToPgtype(page.ID), UUIDToPgtype(page.CookbookID), page.Order, page.Image, page.ContentType, TimeToPgtype(page.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add page: %w", err)
	}
	return nil
}

// === ResultStore ===

func (r *CookbookRepository) DeleteResults(ctx context.Context, cookbookID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ocr_results WHERE cookbook_id = $1`, UUIDToPgtype(cookbookID)); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}

func (r *CookbookRepository) AppendResults(ctx context.Context, cookbookID uuid.UUID, results []ingestion.ExtractionResult) error {
	if len(results) == 0 {
		return nil
	}
	owner := UUIDToPgtype(cookbookID)
	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"ocr_results"},
		[]string{"id", "cookbook_id", "page_order", "ingredient", "recipe_name", "page_number", "confidence", "needs_review"},
		pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
			res := results[i]
			return []any{
				UUIDToPgtype(res.ID), owner, int32(res.PageOrder),
				res.Ingredient, res.RecipeName, int32(res.PageNumber),
				res.Confidence, res.NeedsReview,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to append results: %w", err)
	}
	return nil
}

func (r *CookbookRepository) ListResults(ctx context.Context, cookbookID uuid.UUID) ([]ingestion.ExtractionResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, page_order, ingredient, recipe_name, page_number, confidence, needs_review
		FROM ocr_results
		WHERE cookbook_id = $1
		ORDER BY position`,
		UUIDToPgtype(cookbookID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []ingestion.ExtractionResult{}
	for rows.Next() {
		var (
			id         pgtype.UUID
			pageOrder  int32
			pageNumber int32
			res        ingestion.ExtractionResult
		)
		if err := rows.Scan(&id, &pageOrder, &res.Ingredient, &res.RecipeName, &pageNumber, &res.Confidence, &res.NeedsReview); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.ID = PgtypeToUUID(id)
		res.PageOrder = int(pageOrder)
		res.PageNumber = int(pageNumber)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

// === Recipes ===

func (r *CookbookRepository) FindRecipe(ctx context.Context, cookbookID uuid.UUID, name string, pageNumber int) (mo.Option[uuid.UUID], error) {
	var id pgtype.UUID
	err := r.db.QueryRow(ctx,
		`SELECT id FROM recipes WHERE cookbook_id = $1 AND name = $2 AND page_number = $3`,
		UUIDToPgtype(cookbookID), name, pageNumber,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[uuid.UUID](), nil
		}
		return mo.None[uuid.UUID](), fmt.Errorf("failed to find recipe: %w", err)
	}
	return mo.Some(PgtypeToUUID(id)), nil
}

func (r *CookbookRepository) CreateRecipe(ctx context.Context, recipe *ingestion.Recipe) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO recipes (id, cookbook_id, name, page_number, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		UUIDToPgtype(recipe.ID), UUIDToPgtype(recipe.CookbookID), recipe.Name, recipe.PageNumber, TimeToPgtype(recipe.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create recipe: %w", err)
	}
	return nil
}

func (r *CookbookRepository) AttachIngredient(ctx context.Context, recipeID, ingredientID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO recipe_ingredients (recipe_id, ingredient_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		UUIDToPgtype(recipeID), UUIDToPgtype(ingredientID),
	)
	if err != nil {
		return fmt.Errorf("failed to attach ingredient: %w", err)
	}
	return nil
}
