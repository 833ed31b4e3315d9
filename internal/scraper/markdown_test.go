package scraper

import (
	"strings"
	"testing"
)

func TestToMarkdown(t *testing.T) {
	html := `<p>The caravan left at <em>dawn</em>.</p><p>Nobody looked back.</p>`

	got := ToMarkdown(html, "fallback")

	if strings.Contains(got, "<p>") || strings.Contains(got, "<em>") {
		t.Errorf("markdown still contains HTML: %q", got)
	}
	if !strings.Contains(got, "The caravan left at") {
		t.Errorf("markdown lost content: %q", got)
	}
	if !strings.Contains(got, "Nobody looked back.") {
		t.Errorf("markdown lost second paragraph: %q", got)
	}
}

func TestToMarkdown_FallbackOnEmptyHTML(t *testing.T) {
	got := ToMarkdown("", "  plain chapter text  ")
	if got != "plain chapter text" {
		t.Errorf("ToMarkdown() = %q, want trimmed plain text", got)
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "empty",
			input: "",
			want:  0,
		},
		{
			name:  "whitespace only",
			input: "  \n\t ",
			want:  0,
		},
		{
			name:  "simple sentence",
			input: "The caravan left at dawn.",
			want:  5,
		},
		{
			name:  "multiline markdown",
			input: "# Chapter 1\n\nThe caravan left.\n\nNobody looked back.",
			want:  9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordCount(tt.input); got != tt.want {
				t.Errorf("WordCount(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
