package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はリモートから受け取った自由記述（bioなど）から
// マークアップを取り除き、ステータスメッセージに載せられるプレーンテキストにする。
// 保存するprofile.jsonには適用しない。
type TextSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLenはルーン数の上限で、0以下なら無制限。
func NewTextSanitizer(maxLen int) *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// PlainText は全てのタグを除去し、空白を1つにまとめ、上限を超えた部分を省略する。
func (s *TextSanitizer) PlainText(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if s.maxLen > 0 {
		runes := []rune(text)
		if len(runes) > s.maxLen {
			return string(runes[:s.maxLen]) + "…"
		}
	}
	return text
}
