// Package sanitize cleans user and author supplied HTML before it is stored or served.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy  = newRichPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

func newRichPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	return p
}

// HTML keeps formatting markup such as paragraphs, lists, tables and safe links, and
// strips scripts, event handlers and javascript: URLs.
func HTML(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	return richPolicy.Sanitize(input)
}

// Text removes all markup.
func Text(input string) string {
	return strings.TrimSpace(plainPolicy.Sanitize(input))
}
