// Package ingest turns a submitted URL into an indexed post.
package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extracted is the readable content pulled out of a fetched page.
type Extracted struct {
	Title       string
	TextContent string
}

// Extract parses HTML and pulls out the page title and visible text.
// maxChars caps the text; pages with no visible text at all are an error
// since there is nothing to index.
func Extract(body io.Reader, maxChars int) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Extracted{}, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}

	scope := doc.Find("body")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	text := collapseWhitespace(scope.Text())
	if text == "" {
		return Extracted{}, fmt.Errorf("page has no visible text")
	}
	if maxChars > 0 {
		text = truncateRunes(text, maxChars)
	}

	return Extracted{Title: title, TextContent: text}, nil
}

// collapseWhitespace squeezes runs of whitespace into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s after n runes without splitting a character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
