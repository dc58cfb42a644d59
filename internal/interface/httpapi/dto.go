package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// レスポンスの JSON フィールド名は既存クライアントとの互換のため別名を disambiguations と呼ぶ

type recipeSummaryResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	CookbookTitle *string   `json:"cookbookTitle"`
	PageNumber    int       `json:"pageNumber"`
}

type ingredientDetailResponse struct {
	ID              uuid.UUID               `json:"id"`
	Name            string                  `json:"name"`
	Disambiguations []string                `json:"disambiguations"`
	RecipeCount     int                     `json:"recipeCount"`
	Recipes         []recipeSummaryResponse `json:"recipes"`
	AvailableMonths []int                   `json:"availableMonths"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

type ingredientListItemResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Disambiguations []string  `json:"disambiguations"`
	RecipeCount     int       `json:"recipeCount"`
	AvailableMonths []int     `json:"availableMonths"`
}

type ingredientListResponse struct {
	Ingredients []ingredientListItemResponse `json:"ingredients"`
	NextCursor  *uuid.UUID                   `json:"nextCursor"`
	HasMore     bool                         `json:"hasMore"`
}

type updateIngredientRequest struct {
	Name            *string  `json:"name"`
	Disambiguations []string `json:"disambiguations"`
	AvailableMonths []int    `json:"availableMonths"`
}

type mergeIngredientsRequest struct {
	TargetID  string   `json:"targetId"`
	SourceIDs []string `json:"sourceIds"`
}

type createCookbookRequest struct {
	Title  string  `json:"title"`
	Author *string `json:"author"`
}

type cookbookResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    *string   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type uploadPagesResponse struct {
	CookbookID uuid.UUID `json:"cookbookId"`
	PageCount  int       `json:"pageCount"`
}

type ocrResultResponse struct {
	Ingredient  string  `json:"ingredient"`
	RecipeName  string  `json:"recipeName"`
	PageNumber  int     `json:"pageNumber"`
	Confidence  float64 `json:"confidence"`
	NeedsReview bool    `json:"needsReview"`
}

type ocrProgressResponse struct {
	Status       ingestion.Status    `json:"status"`
	CurrentPage  int                 `json:"currentPage"`
	TotalPages   int                 `json:"totalPages"`
	Results      []ocrResultResponse `json:"results"`
	ErrorMessage *string             `json:"errorMessage"`
}

type confirmedRecipeRequest struct {
	RecipeName string `json:"recipeName"`
	PageNumber int    `json:"pageNumber"`
	Ingredient string `json:"ingredient"`
	Keep       bool   `json:"keep"`
}

type confirmImportRequest struct {
	Recipes []confirmedRecipeRequest `json:"recipes"`
}

type confirmImportResponse struct {
	RecipesCreated   int `json:"recipesCreated"`
	IngredientsTotal int `json:"ingredientsTotal"`
}

func toIngredientDetail(d *ingredient.Detail) ingredientDetailResponse {
	recipes := make([]recipeSummaryResponse, 0, len(d.Recipes))
	for _, r := range d.Recipes {
		recipes = append(recipes, recipeSummaryResponse{
			ID:            r.ID,
			Name:          r.Name,
			CookbookTitle: r.CookbookTitle,
			PageNumber:    r.PageNumber,
		})
	}
	return ingredientDetailResponse{
		ID:              d.Ingredient.ID,
		Name:            d.Ingredient.Name,
		Disambiguations: nonNil(d.Ingredient.Aliases),
		RecipeCount:     d.RecipeCount,
		Recipes:         recipes,
		AvailableMonths: nonNil(d.Ingredient.AvailableMonths),
		CreatedAt:       d.Ingredient.CreatedAt,
		UpdatedAt:       d.Ingredient.UpdatedAt,
	}
}

func toIngredientList(page *ingredient.ListPage) ingredientListResponse {
	items := make([]ingredientListItemResponse, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, ingredientListItemResponse{
			ID:              item.Ingredient.ID,
			Name:            item.Ingredient.Name,
			Disambiguations: nonNil(item.Ingredient.Aliases),
			RecipeCount:     item.RecipeCount,
			AvailableMonths: nonNil(item.Ingredient.AvailableMonths),
		})
	}
	resp := ingredientListResponse{Ingredients: items, HasMore: page.HasMore}
	if cursor, ok := page.NextCursor.Get(); ok {
		resp.NextCursor = &cursor
	}
	return resp
}

func toCookbook(cb *ingestion.Cookbook) cookbookResponse {
	return cookbookResponse{
		ID:        cb.ID,
		Title:     cb.Title,
		Author:    cb.Author,
		CreatedAt: cb.CreatedAt,
	}
}

func toOcrProgress(snap *ingestion.JobSnapshot) ocrProgressResponse {
	results := make([]ocrResultResponse, 0, len(snap.Results))
	for _, r := range snap.Results {
		results = append(results, ocrResultResponse{
			Ingredient:  r.Ingredient,
			RecipeName:  r.RecipeName,
			PageNumber:  r.PageNumber,
			Confidence:  r.Confidence,
			NeedsReview: r.NeedsReview,
		})
	}
	return ocrProgressResponse{
		Status:       snap.Status,
		CurrentPage:  snap.CurrentPage,
		TotalPages:   snap.TotalPages,
		Results:      results,
		ErrorMessage: snap.ErrorMessage,
	}
}

func (r confirmImportRequest) toConfirmed() []ingestion.ConfirmedRecipe {
	if r.Recipes == nil {
		return nil
	}
	out := make([]ingestion.ConfirmedRecipe, 0, len(r.Recipes))
	for _, rec := range r.Recipes {
		out = append(out, ingestion.ConfirmedRecipe{
			RecipeName: rec.RecipeName,
			PageNumber: rec.PageNumber,
			Ingredient: rec.Ingredient,
			Keep:       rec.Keep,
		})
	}
	return out
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
