package scraper

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ToMarkdown converts extracted chapter HTML to Markdown. On conversion
// failure the plain text is returned instead, so a malformed page still
// yields a readable chapter.
func ToMarkdown(contentHTML, plainText string) string {
	if strings.TrimSpace(contentHTML) == "" {
		return strings.TrimSpace(plainText)
	}

	markdown, err := htmltomarkdown.ConvertString(contentHTML)
	if err != nil || strings.TrimSpace(markdown) == "" {
		return strings.TrimSpace(plainText)
	}

	return strings.TrimSpace(markdown)
}

// WordCount counts whitespace-separated words. Used for chapter word
// counts and the novel totals derived from them.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
