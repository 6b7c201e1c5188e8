// Package content normalizes feed article bodies before analysis: HTML is
// stripped to plain text and text is truncated to per-stage budgets.
package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`[ \t\r\f]+`)

// ExtractText strips markup from feed content. Script, style and template
// nodes are dropped entirely. Input that does not parse as HTML is returned
// with whitespace collapsed.
func ExtractText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, "<>") {
		return collapse(trimmed)
	}

	document, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return collapse(trimmed)
	}
	document.Find("script, style, template, noscript").Remove()

	// Block-level elements become line breaks so headings and paragraphs
	// keep a separator after tag removal.
	document.Find("p, br, div, li, h1, h2, h3, h4, h5, h6, blockquote, tr").Each(func(_ int, selection *goquery.Selection) {
		selection.AppendHtml("\n")
	})

	return collapse(document.Text())
}

// Truncate cuts text to at most max runes without splitting a rune.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func collapse(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
