package ingredient

import "github.com/jinford/cookbook-catalog/internal/core/apperror"

var (
	// ErrInvalidName は名前が未指定、または正規化後に空になる場合のエラー
	ErrInvalidName = apperror.New(apperror.ErrInvalidArgument, "invalid_name", "ingredient name cannot be empty")

	// ErrInvalidMonths は利用可能月が 1〜12 の範囲外の場合のエラー
	ErrInvalidMonths = apperror.New(apperror.ErrInvalidArgument, "invalid_months", "availableMonths must contain values between 1 and 12")

	// ErrNoSources はマージ元が指定されていない場合のエラー
	ErrNoSources = apperror.New(apperror.ErrInvalidArgument, "no_sources", "at least one source ID is required")

	// ErrTargetInSources はマージ先がマージ元に含まれている場合のエラー
	ErrTargetInSources = apperror.New(apperror.ErrInvalidArgument, "target_in_sources", "target cannot be in source list")

	// ErrIngredientNotFound は食材が存在しない場合のエラー
	ErrIngredientNotFound = apperror.New(apperror.ErrNotFound, "ingredient_not_found", "ingredient not found")

	// ErrNameConflict は名前が他の食材の名前または別名として使われている場合のエラー
	ErrNameConflict = apperror.New(apperror.ErrConflict, "name_conflict", "name is already in use by another ingredient or disambiguation")

	// ErrAliasConflict は別名が既に使われている場合のエラー
	ErrAliasConflict = apperror.New(apperror.ErrConflict, "alias_conflict", "disambiguation is already in use")

	// ErrHasReferences はレシピから参照されている食材を削除しようとした場合のエラー
	ErrHasReferences = apperror.New(apperror.ErrConflict, "has_references", "ingredient has recipe associations")
)
