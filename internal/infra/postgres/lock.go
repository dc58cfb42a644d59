package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
)

// 名前空間ごとのロックIDの接頭辞
const (
	lockScopeIngredient     = "ingredient"
	lockScopeIngredientName = "ingredient-name"
)

// LockManager はトランザクションスコープのアドバイザリロックを取得します
type LockManager struct {
	db DBTX
}

// NewLockManager はトランザクションからロックマネージャーを生成します
func NewLockManager(db DBTX) *LockManager {
	return &LockManager{db: db}
}

// GenerateLockID は文字列からロックIDを生成します
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	hash := h.Sum(nil)

	// ハッシュの最初の8バイトをint64として使用
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}

	return id
}

// Acquire はPostgreSQLアドバイザリロックを取得します（pg_advisory_xact_lock）
// トランザクション終了時に自動的に解放されます
func (m *LockManager) Acquire(ctx context.Context, lockID int64) error {
	if _, err := m.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}

// AcquireAll は scope 内のキーを昇順に並べてからロックを取得します
// 取得順序を揃えることで、同じキー集合を扱うトランザクション同士がデッドロックしない
func (m *LockManager) AcquireAll(ctx context.Context, scope string, keys []string) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	for _, key := range slices.Compact(sorted) {
		if err := m.Acquire(ctx, GenerateLockID(scope, key)); err != nil {
			return err
		}
	}
	return nil
}
