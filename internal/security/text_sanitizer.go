package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は取引のタイトル・説明からHTMLを取り除き、プレーンテキストにする。
// bluemondayのStrictPolicyを使用するため、全てのタグと属性が除去される。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses はエンティティの多重エンコードを解く回数の上限。
const maxSanitizePasses = 8

// angleBrackets は上限回数で収束しなかった場合に残る山括弧を除去する。
var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// エンティティを戻した結果にタグが現れることがあるため、値が変わらなくなるまで繰り返す。
// 戻り値はHTMLではなくプレーンテキストのため、HTMLに埋め込む側でエスケープすること。
func (s *TextSanitizer) Sanitize(raw string) string {
	text := raw
	for range maxSanitizePasses {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
		if next == text {
			return next
		}
		text = next
	}
	return strings.TrimSpace(angleBrackets.Replace(text))
}
