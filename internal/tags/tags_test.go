package tags

import (
	"slices"
	"testing"
)

func TestNormalizeToSlugs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"canonical passes through", "litrpg", []string{"litrpg"}},
		{"alias collapses", "GameLit", []string{"litrpg"}},
		{"spacing and case ignored", "  Sci-Fi ", []string{"science-fiction"}},
		{"combined genre splits", "Sci-Fi/Fantasy", []string{"science-fiction", "fantasy"}},
		{"cultivation maps to xianxia", "Cultivation", []string{"xianxia"}},
		{"portal fantasy is isekai", "Portal Fantasy", []string{"isekai"}},
		{"unknown keeps own slug", "Tower Climbing", []string{"tower-climbing"}},
		{"empty input", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeToSlugs(tt.input)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("NormalizeToSlugs(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	raw := []string{"GameLit", "LitRPG", "Sci-Fi/Fantasy", "fantasy", "", "Tower Climbing"}
	got := NormalizeAll(raw)
	want := []string{"litrpg", "science-fiction", "fantasy", "tower-climbing"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeAll(%v) = %v, want %v", raw, got, want)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("litrpg"); got != "LitRPG" {
		t.Errorf("DisplayName(litrpg) = %q, want LitRPG", got)
	}
	if got := DisplayName("tower-climbing"); got != "tower-climbing" {
		t.Errorf("DisplayName falls back to the slug, got %q", got)
	}
}
