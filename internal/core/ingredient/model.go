package ingredient

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// RecipePreviewLimit は食材詳細に含めるレシピ数の上限
const RecipePreviewLimit = 5

// Ingredient は食材の同一性を表します
// Name と Aliases はすべて正規化済みで、名前空間全体（全食材の名前と別名の和集合）で一意です
type Ingredient struct {
	ID              uuid.UUID
	Name            string
	Aliases         []string
	AvailableMonths []int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasAlias は alias がこの食材の別名かどうかを返します
func (i *Ingredient) HasAlias(alias string) bool {
	return slices.Contains(i.Aliases, alias)
}

// AvailableIn は指定月に旬かどうかを返します
func (i *Ingredient) AvailableIn(month time.Month) bool {
	return slices.Contains(i.AvailableMonths, int(month))
}

// Clone はスライスを含めて複製します
func (i *Ingredient) Clone() *Ingredient {
	c := *i
	c.Aliases = slices.Clone(i.Aliases)
	c.AvailableMonths = slices.Clone(i.AvailableMonths)
	return &c
}

// RecipeSummary は食材詳細に含めるレシピの概要
type RecipeSummary struct {
	ID            uuid.UUID
	Name          string
	CookbookTitle *string
	PageNumber    int
}

// Detail は食材詳細（レシピ数とプレビュー付き）
type Detail struct {
	Ingredient  *Ingredient
	RecipeCount int
	Recipes     []RecipeSummary
}

// UpdateParams は食材の一括更新パラメータ
// Aliases と AvailableMonths は置き換え後の集合全体を表します
type UpdateParams struct {
	Name            *string
	Aliases         []string
	AvailableMonths []int
}

// ListFilter は食材一覧の絞り込み条件
type ListFilter struct {
	Query          string
	HasAliases     mo.Option[bool]
	AvailableNow   bool
	MinRecipeCount int
	Cursor         mo.Option[uuid.UUID]
	Limit          int
}

// ListQuery はリポジトリに渡す一覧クエリ（月はサービス側の時計から決定済み）
type ListQuery struct {
	Prefix         string
	HasAliases     mo.Option[bool]
	Month          mo.Option[time.Month]
	MinRecipeCount int
	Cursor         mo.Option[uuid.UUID]
	Limit          int
}

// ListItem は一覧の1件
type ListItem struct {
	Ingredient  *Ingredient
	RecipeCount int
}

// ListPage は一覧のページ
type ListPage struct {
	Items      []*ListItem
	NextCursor mo.Option[uuid.UUID]
	HasMore    bool
}

const (
	// DefaultListLimit は一覧のデフォルト件数
	DefaultListLimit = 20
	// MaxListLimit は一覧の最大件数
	MaxListLimit = 100
)

func normalizeMonths(months []int) ([]int, error) {
	out := make([]int, 0, len(months))
	for _, m := range months {
		if m < 1 || m > 12 {
			return nil, ErrInvalidMonths
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out, nil
}
