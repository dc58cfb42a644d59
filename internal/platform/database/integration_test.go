package database_test

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
	"github.com/jinford/cookbook-catalog/internal/infra/postgres"
	"github.com/jinford/cookbook-catalog/internal/platform/database"
	"github.com/jinford/cookbook-catalog/internal/platform/logger"
)

// testDB は TestMain で起動したコンテナへの接続（Docker がない環境では nil）
var testDB *database.Database

var discardLogger = logger.Discard()

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() || os.Getenv("SKIP_DOCKER_TESTS") != "" {
		return m.Run()
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Printf("docker unavailable, skipping integration tests: %v", err)
		return m.Run()
	}
	if err := pool.Client.Ping(); err != nil {
		log.Printf("docker unavailable, skipping integration tests: %v", err)
		return m.Run()
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=cookbook",
			"POSTGRES_PASSWORD=cookbook",
			"POSTGRES_DB=cookbook_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("failed to start postgres container: %v", err)
		return 1
	}
	defer func() {
		if err := pool.Purge(resource); err != nil {
			log.Printf("failed to purge postgres container: %v", err)
		}
	}()
	_ = resource.Expire(120)

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	if err != nil {
		log.Printf("invalid mapped port: %v", err)
		return 1
	}
	params := database.ConnectionParams{
		Host:     "localhost",
		Port:     port,
		User:     "cookbook",
		Password: "cookbook",
		DBName:   "cookbook_test",
		SSLMode:  "disable",
	}

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		db, err := database.New(context.Background(), params)
		if err != nil {
			return err
		}
		testDB = db
		return nil
	}); err != nil {
		log.Printf("postgres did not become ready: %v", err)
		return 1
	}
	defer testDB.Close()

	if err := postgres.Migrate(context.Background(), testDB.Pool); err != nil {
		log.Printf("failed to migrate: %v", err)
		return 1
	}
	return m.Run()
}

type pgFixture struct {
	provider    *database.TransactionProvider
	ingredients *ingredient.Service
	service     *ingestion.Service
}

// newPGFixture はテーブルを空にしてから PostgreSQL 上のサービスを組み立てる
func newPGFixture(t *testing.T, extractor ingestion.PageExtractor) *pgFixture {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container is not available")
	}
	ctx := context.Background()
	_, err := testDB.Pool.Exec(ctx, `TRUNCATE recipe_ingredients, recipes, ingredient_available_months,
		ingredient_aliases, ingredients, ocr_results, cookbook_index_pages, cookbooks`)
	require.NoError(t, err)

	provider := database.NewTransactionProvider(testDB.Pool)
	ingredients := ingredient.NewService(provider.Ingredients(),
		ingredient.WithIngredientLogger(discardLogger),
		ingredient.WithIngredientClock(func() time.Time { return time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC) }),
	)
	pipeline := ingestion.NewPipeline(provider.Ingestion(), extractor, nil, discardLogger)
	scheduler := ingestion.NewInlineScheduler(pipeline, provider.Ingestion(), discardLogger)
	service := ingestion.NewService(provider.Ingestion(), scheduler, ingredients, ingestion.WithIngestionLogger(discardLogger))
	return &pgFixture{provider: provider, ingredients: ingredients, service: service}
}

// recipeExtractor はページの内容をレシピ名とし、食材を2件返す
func recipeExtractor() ingestion.PageExtractor {
	return ingestion.ExtractorFunc(func(_ context.Context, image []byte, _ string) ([]ingestion.Extraction, error) {
		if string(image) == "fail" {
			return nil, fmt.Errorf("%w: unreadable page", ingestion.ErrExtractionFailed)
		}
		return []ingestion.Extraction{
			{Ingredient: "Tomato", RecipeName: string(image), PageNumber: 12, Confidence: 0.95},
			{Ingredient: "Cucumber", RecipeName: string(image), PageNumber: 12, Confidence: 0.6},
		}, nil
	})
}

func (f *pgFixture) importRecipe(t *testing.T, recipe string, ingredients ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	cb, err := f.service.CreateCookbook(ctx, "Plenty", nil)
	require.NoError(t, err)
	rows := make([]ingestion.ConfirmedRecipe, 0, len(ingredients))
	for _, name := range ingredients {
		rows = append(rows, ingestion.ConfirmedRecipe{RecipeName: recipe, PageNumber: 7, Ingredient: name, Keep: true})
	}
	_, err = f.service.Confirm(ctx, cb.ID, rows)
	require.NoError(t, err)
	return cb.ID
}

func TestPostgres_IngredientIdentity(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	tomato, err := f.ingredients.Create(ctx, " Tomato ")
	require.NoError(t, err)
	assert.Equal(t, "tomato", tomato.Name)

	_, err = f.ingredients.SetAliases(ctx, tomato.ID, []string{"Pomodoro", "tomatoes"})
	require.NoError(t, err)

	// 名前空間は名前と別名の和集合
	_, err = f.ingredients.Create(ctx, "POMODORO")
	assert.ErrorIs(t, err, ingredient.ErrNameConflict)

	basil, err := f.ingredients.Create(ctx, "basil")
	require.NoError(t, err)
	_, err = f.ingredients.Rename(ctx, basil.ID, "tomato")
	assert.ErrorIs(t, err, ingredient.ErrNameConflict)
	_, err = f.ingredients.SetAliases(ctx, basil.ID, []string{"tomatoes"})
	assert.ErrorIs(t, err, ingredient.ErrAliasConflict)

	updated, err := f.ingredients.Update(ctx, tomato.ID, ingredient.UpdateParams{
		Aliases:         []string{"pomodoro"},
		AvailableMonths: []int{8, 7, 7},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pomodoro"}, updated.Aliases)
	assert.Equal(t, []int{7, 8}, updated.AvailableMonths)

	// 外した別名は他の食材が使える
	_, err = f.ingredients.SetAliases(ctx, basil.ID, []string{"tomatoes"})
	require.NoError(t, err)
}

func TestPostgres_DeleteAndMerge(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()
	f.importRecipe(t, "Panzanella", "tomato", "bread")
	f.importRecipe(t, "Salmorejo", "tomatoes", "bread")

	page, err := f.ingredients.List(ctx, ingredient.ListFilter{})
	require.NoError(t, err)
	ids := map[string]uuid.UUID{}
	for _, item := range page.Items {
		ids[item.Ingredient.Name] = item.Ingredient.ID
	}
	require.Len(t, ids, 3)

	err = f.ingredients.Delete(ctx, ids["tomatoes"])
	assert.ErrorIs(t, err, ingredient.ErrHasReferences)

	detail, err := f.ingredients.Merge(ctx, ids["tomato"], []uuid.UUID{ids["tomatoes"]})
	require.NoError(t, err)
	assert.Equal(t, []string{"tomatoes"}, detail.Ingredient.Aliases)
	assert.Equal(t, 2, detail.RecipeCount)
	require.Len(t, detail.Recipes, 2)

	_, err = f.ingredients.Get(ctx, ids["tomatoes"])
	assert.ErrorIs(t, err, ingredient.ErrIngredientNotFound)

	// 同じレシピを両方が参照していても重複しない
	detail, err = f.ingredients.Merge(ctx, ids["bread"], []uuid.UUID{ids["tomato"]})
	require.NoError(t, err)
	assert.Equal(t, 2, detail.RecipeCount)
	assert.ElementsMatch(t, []string{"tomato", "tomatoes"}, detail.Ingredient.Aliases)
}

func TestPostgres_ListFilters(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	for _, name := range []string{"apple", "apricot", "artichoke", "beet", "100%_rye"} {
		_, err := f.ingredients.Create(ctx, name)
		require.NoError(t, err)
	}
	f.importRecipe(t, "Tart", "apple")
	apricot, err := f.ingredients.List(ctx, ingredient.ListFilter{Query: "apr"})
	require.NoError(t, err)
	require.Len(t, apricot.Items, 1)
	_, err = f.ingredients.Update(ctx, apricot.Items[0].Ingredient.ID, ingredient.UpdateParams{
		Aliases:         []string{"marille"},
		AvailableMonths: []int{6, 7},
	})
	require.NoError(t, err)

	names := func(page *ingredient.ListPage) []string {
		out := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			out = append(out, item.Ingredient.Name)
		}
		return out
	}

	tests := []struct {
		name   string
		filter ingredient.ListFilter
		want   []string
	}{
		{"前方一致", ingredient.ListFilter{Query: "A"}, []string{"apple", "apricot", "artichoke"}},
		{"LIKE の特殊文字", ingredient.ListFilter{Query: "100%_"}, []string{"100%_rye"}},
		{"LIKE の特殊文字は一致しない", ingredient.ListFilter{Query: "1_"}, []string{}},
		{"レシピ数", ingredient.ListFilter{MinRecipeCount: 1}, []string{"apple"}},
		{"別名あり", ingredient.ListFilter{HasAliases: mo.Some(true)}, []string{"apricot"}},
		{"別名なし", ingredient.ListFilter{Query: "ap", HasAliases: mo.Some(false)}, []string{"apple"}},
		{"旬", ingredient.ListFilter{AvailableNow: true}, []string{"apricot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.ingredients.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(page))
		})
	}

	first, err := f.ingredients.List(ctx, ingredient.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_rye", "apple"}, names(first))
	assert.True(t, first.HasMore)
	require.True(t, first.NextCursor.IsPresent())

	second, err := f.ingredients.List(ctx, ingredient.ListFilter{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"apricot", "artichoke"}, names(second))
	assert.True(t, second.HasMore)

	last, err := f.ingredients.List(ctx, ingredient.ListFilter{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"beet"}, names(last))
	assert.False(t, last.HasMore)
	assert.True(t, last.NextCursor.IsAbsent())
}

func TestPostgres_IngestionFlow(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	cb, err := f.service.CreateCookbook(ctx, "Moro", nil)
	require.NoError(t, err)
	_, err = f.service.AddPages(ctx, cb.ID, []ingestion.PageUpload{
		{Filename: "1.jpg", ContentType: "image/jpeg", Data: []byte("Gazpacho")},
		{Filename: "2.jpg", ContentType: "image/jpeg", Data: []byte("fail")},
	})
	require.NoError(t, err)

	require.NoError(t, f.service.StartIngestion(ctx, cb.ID))

	snap, err := f.service.Snapshot(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusCompletedWithErrors, snap.Status)
	require.NotNil(t, snap.ErrorMessage)
	assert.Equal(t, "1 of 2 pages failed", *snap.ErrorMessage)
	assert.Equal(t, 2, snap.CurrentPage)
	assert.Equal(t, 2, snap.TotalPages)
	require.Len(t, snap.Results, 2)
	assert.False(t, snap.Results[0].NeedsReview)
	assert.True(t, snap.Results[1].NeedsReview)

	rows := make([]ingestion.ConfirmedRecipe, 0, len(snap.Results))
	for _, r := range snap.Results {
		rows = append(rows, ingestion.ConfirmedRecipe{
			RecipeName: r.RecipeName,
			PageNumber: r.PageNumber,
			Ingredient: r.Ingredient,
			Keep:       !r.NeedsReview,
		})
	}
	result, err := f.service.Confirm(ctx, cb.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecipesCreated)
	assert.Equal(t, 1, result.IngredientsTotal)

	snap, err = f.service.Snapshot(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusNone, snap.Status)
	assert.Empty(t, snap.Results)

	page, err := f.ingredients.List(ctx, ingredient.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "tomato", page.Items[0].Ingredient.Name)
	assert.Equal(t, 1, page.Items[0].RecipeCount)
}

func TestPostgres_GateConcurrent(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()
	cb, err := f.service.CreateCookbook(ctx, "Moro", nil)
	require.NoError(t, err)
	_, err = f.service.AddPages(ctx, cb.ID, []ingestion.PageUpload{
		{Filename: "1.png", ContentType: "image/png", Data: []byte("Gazpacho")},
	})
	require.NoError(t, err)

	gate := ingestion.NewGate(f.provider.Ingestion())
	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := gate.Start(ctx, cb.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case assert.ErrorIs(t, err, ingestion.ErrAlreadyRunning):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, rejected)
}

func TestPostgres_ConcurrentCreateSameName(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ingredients.Create(ctx, "Sumac")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, ingredient.ErrNameConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, conflicts)
}

// assertIdentitySpaceDisjoint は名前と別名の和集合に重複がないことを確認する
func assertIdentitySpaceDisjoint(t *testing.T) {
	t.Helper()
	var total, distinct int
	err := testDB.Pool.QueryRow(context.Background(), `
		SELECT count(*), count(DISTINCT name) FROM (
			SELECT name FROM ingredients
			UNION ALL
			SELECT name FROM ingredient_aliases
		) names`).Scan(&total, &distinct)
	require.NoError(t, err)
	assert.Equal(t, total, distinct)

	var clashes int
	err = testDB.Pool.QueryRow(context.Background(), `
		SELECT count(*) FROM ingredient_aliases a JOIN ingredients i ON i.name = a.name`).Scan(&clashes)
	require.NoError(t, err)
	assert.Zero(t, clashes)
}

// assertNoDuplicateReferences は (recipe, ingredient) の組が重複していないことを確認する
func assertNoDuplicateReferences(t *testing.T) {
	t.Helper()
	var total, distinct int
	err := testDB.Pool.QueryRow(context.Background(), `
		SELECT count(*), count(DISTINCT (recipe_id, ingredient_id)) FROM recipe_ingredients`).Scan(&total, &distinct)
	require.NoError(t, err)
	assert.Equal(t, total, distinct)
}

func (f *pgFixture) idsByName(t *testing.T) map[string]uuid.UUID {
	t.Helper()
	page, err := f.ingredients.List(context.Background(), ingredient.ListFilter{Limit: ingredient.MaxListLimit})
	require.NoError(t, err)
	ids := make(map[string]uuid.UUID, len(page.Items))
	for _, item := range page.Items {
		ids[item.Ingredient.Name] = item.Ingredient.ID
	}
	return ids
}

func TestPostgres_ConcurrentMergesShareSource(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	for round := range 5 {
		a := fmt.Sprintf("scallion-%d", round)
		b := fmt.Sprintf("spring onion-%d", round)
		c := fmt.Sprintf("green onion-%d", round)
		f.importRecipe(t, "Pancake", a, b)
		f.importRecipe(t, "Salsa", b, c)
		ids := f.idsByName(t)
		_, err := f.ingredients.SetAliases(ctx, ids[b], []string{fmt.Sprintf("cebollino-%d", round)})
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		targets := []uuid.UUID{ids[a], ids[c]}
		for i, target := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.ingredients.Merge(ctx, target, []uuid.UUID{ids[b]})
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ingredient.ErrIngredientNotFound)
		}
		assert.Equal(t, 1, succeeded, "round %d", round)

		_, err = f.ingredients.Get(ctx, ids[b])
		assert.ErrorIs(t, err, ingredient.ErrIngredientNotFound)

		// 勝った側が b の名前と別名をすべて引き継ぐ
		winner := ids[a]
		if errs[0] != nil {
			winner = ids[c]
		}
		detail, err := f.ingredients.Get(ctx, winner)
		require.NoError(t, err)
		assert.Subset(t, detail.Ingredient.Aliases, []string{b, fmt.Sprintf("cebollino-%d", round)})

		assertIdentitySpaceDisjoint(t)
		assertNoDuplicateReferences(t)
	}
}

func TestPostgres_MergeRacesSetAliases(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	for round := range 5 {
		target := fmt.Sprintf("coriander-%d", round)
		source := fmt.Sprintf("cilantro-%d", round)
		alias := fmt.Sprintf("chinese parsley-%d", round)
		f.importRecipe(t, "Salsa Verde", target, source)
		ids := f.idsByName(t)

		var (
			wg       sync.WaitGroup
			mergeErr error
			aliasErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, mergeErr = f.ingredients.Merge(ctx, ids[target], []uuid.UUID{ids[source]})
		}()
		go func() {
			defer wg.Done()
			_, aliasErr = f.ingredients.SetAliases(ctx, ids[source], []string{alias})
		}()
		wg.Wait()

		require.NoError(t, mergeErr)
		detail, err := f.ingredients.Get(ctx, ids[target])
		require.NoError(t, err)
		assert.Contains(t, detail.Ingredient.Aliases, source)
		assert.Equal(t, 1, detail.RecipeCount)
		if aliasErr == nil {
			// 別名の設定が先に確定した場合はマージで引き継がれる
			assert.Contains(t, detail.Ingredient.Aliases, alias)
		} else {
			assert.ErrorIs(t, aliasErr, ingredient.ErrIngredientNotFound)
			assert.NotContains(t, detail.Ingredient.Aliases, alias)
		}

		assertIdentitySpaceDisjoint(t)
		assertNoDuplicateReferences(t)
	}
}

func TestPostgres_DeleteRacesConfirm(t *testing.T) {
	f := newPGFixture(t, recipeExtractor())
	ctx := context.Background()

	for round := range 5 {
		name := fmt.Sprintf("za'atar-%d", round)
		ing, err := f.ingredients.Create(ctx, name)
		require.NoError(t, err)
		cb, err := f.service.CreateCookbook(ctx, "Falastin", nil)
		require.NoError(t, err)

		var (
			wg         sync.WaitGroup
			deleteErr  error
			confirmErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = f.ingredients.Delete(ctx, ing.ID)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = f.service.Confirm(ctx, cb.ID, []ingestion.ConfirmedRecipe{
				{RecipeName: "Manakish", PageNumber: 3, Ingredient: name, Keep: true},
			})
		}()
		wg.Wait()

		require.NoError(t, confirmErr)
		if deleteErr != nil {
			// 確定が先なら参照ありとして拒否される
			assert.ErrorIs(t, deleteErr, ingredient.ErrHasReferences)
		}

		page, err := f.ingredients.List(ctx, ingredient.ListFilter{Query: name})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, 1, page.Items[0].RecipeCount)
		if deleteErr == nil {
			assert.NotEqual(t, ing.ID, page.Items[0].Ingredient.ID)
		} else {
			assert.Equal(t, ing.ID, page.Items[0].Ingredient.ID)
		}
	}
}
