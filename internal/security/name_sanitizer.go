package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は表示名として保持する最大文字数。
const MaxNameLength = 200

// NameSanitizer は利用者が入力した表示名からマークアップを除去する。
type NameSanitizer interface {
	SanitizeName(raw string) string
}

type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はbluemondayのStrictPolicyを使うNameSanitizerを生成する。
func NewNameSanitizer() NameSanitizer {
	return &nameSanitizer{policy: bluemonday.StrictPolicy()}
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeName はタグを除去し、エンティティを通常の文字に戻した表示名を返す。
// 前後の空白は取り除き、MaxNameLength文字で切り詰める。
func (s *nameSanitizer) SanitizeName(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(angleBrackets.Replace(cleaned))
	if utf8.RuneCountInString(cleaned) > MaxNameLength {
		cleaned = string([]rune(cleaned)[:MaxNameLength])
	}
	return cleaned
}
