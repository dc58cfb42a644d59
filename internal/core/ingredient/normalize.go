package ingredient

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize は生の食材名を正規形に変換します
// 前後の空白を除去して小文字化し、NFC で合成します。内部の空白はそのまま残します。
// 空文字になる場合は ErrInvalidName を返します。
func Normalize(raw string) (string, error) {
	s := norm.NFC.String(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return "", ErrInvalidName
	}
	return s, nil
}

// NormalizePtr は入力が省略された場合（nil）も ErrInvalidName として扱う Normalize です
func NormalizePtr(raw *string) (string, error) {
	if raw == nil {
		return "", ErrInvalidName
	}
	return Normalize(*raw)
}

// normalizeSet は名前の集合を正規化し、重複を除いて入力順に返します
func normalizeSet(raws []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		n, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
