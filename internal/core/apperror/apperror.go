// Package apperror はドメイン層で共有するエラー分類を提供します
package apperror

import (
	"errors"
	"fmt"
)

// エラー種別の番兵。個別のエラーはいずれか一つに Unwrap される
var (
	// ErrInvalidArgument は入力の形が不正な場合のエラー（変更前に拒否される）
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound は対象が存在しない場合のエラー（変更前に拒否される）
	ErrNotFound = errors.New("not found")

	// ErrConflict は名前衝突・実行中ジョブなど、状態を確認してから再試行すべきエラー
	ErrConflict = errors.New("conflict")
)

// Error はコード付きのドメインエラーです
// errors.Is は同じコードの Error、または種別の番兵に一致します
type Error struct {
	kind error
	code string
	msg  string
}

// New は種別とコードを指定して Error を作成します
func New(kind error, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

// Wrapf は base と同じ種別・コードのまま、メッセージだけを差し替えた Error を返します
func Wrapf(base *Error, format string, args ...any) *Error {
	return &Error{kind: base.kind, code: base.code, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Is は同じコードを持つ Error と一致します
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// Code はエラーコードを返します
func (e *Error) Code() string { return e.code }

// KindOf は err の種別番兵を返します。分類できない場合は nil
func KindOf(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return nil
	}
}
