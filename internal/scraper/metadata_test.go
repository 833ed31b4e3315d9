package scraper

import (
	"errors"
	"strings"
	"testing"
)

const novelPage = `<html lang="en">
<head>
  <title>Beware of Chicken | SerialReads</title>
  <meta property="og:title" content="Beware of Chicken">
  <meta property="og:description" content="A transmigrator decides not to cultivate and farms instead.">
  <meta property="og:image" content="/covers/beware-of-chicken.jpg">
  <meta name="author" content="CasualFarmer">
  <meta name="description" content="Fallback description that og wins over.">
  <meta name="keywords" content="Xianxia, Slice of Life, Comedy">
</head>
<body>
  <div class="fiction-tags">
    <a class="tag" href="/tags/xianxia">Xianxia</a>
    <a class="tag" href="/tags/farming">Farming</a>
  </div>
</body>
</html>`

func TestExtractNovelMetadata(t *testing.T) {
	meta, err := ExtractNovelMetadata([]byte(novelPage), "https://serialreads.example/fiction/beware-of-chicken")
	if err != nil {
		t.Fatalf("ExtractNovelMetadata() error = %v", err)
	}

	if meta.Title != "Beware of Chicken" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Author != "CasualFarmer" {
		t.Errorf("Author = %q", meta.Author)
	}
	if !strings.Contains(meta.Description, "decides not to cultivate") {
		t.Errorf("Description = %q", meta.Description)
	}
	if meta.CoverURL != "https://serialreads.example/covers/beware-of-chicken.jpg" {
		t.Errorf("CoverURL = %q, want absolute", meta.CoverURL)
	}
	if meta.Language != "en" {
		t.Errorf("Language = %q", meta.Language)
	}

	// Keywords and tag anchors merge, case-insensitive dedupe keeps first
	wantTags := []string{"Xianxia", "Slice of Life", "Comedy", "Farming"}
	if len(meta.Tags) != len(wantTags) {
		t.Fatalf("Tags = %v, want %v", meta.Tags, wantTags)
	}
	for i, want := range wantTags {
		if meta.Tags[i] != want {
			t.Errorf("Tags[%d] = %q, want %q", i, meta.Tags[i], want)
		}
	}
}

func TestExtractNovelMetadata_Fallbacks(t *testing.T) {
	page := `<html><head>
<title>Plain Old Serial</title>
<meta name="description" content="No open graph here.">
</head><body></body></html>`

	meta, err := ExtractNovelMetadata([]byte(page), "https://example.com/novel")
	if err != nil {
		t.Fatalf("ExtractNovelMetadata() error = %v", err)
	}

	if meta.Title != "Plain Old Serial" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Description != "No open graph here." {
		t.Errorf("Description = %q", meta.Description)
	}
	if meta.CoverURL != "" {
		t.Errorf("CoverURL = %q, want empty", meta.CoverURL)
	}
}

func TestExtractNovelMetadata_NoTitle(t *testing.T) {
	_, err := ExtractNovelMetadata([]byte(`<html><body><p>hi</p></body></html>`), "https://example.com")
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("error = %v, want ErrNoContent", err)
	}
}

const tocPage = `<html><body>
<nav><a href="/">Home</a><a href="/browse">Browse</a><a href="/about">About</a><a href="/rss">RSS</a></nav>
<div class="recommended">
  <a href="/fiction/other-novel">Rival Cultivator Rankings</a>
  <a href="/fiction/third-novel">Dungeon Diving For Fun</a>
</div>
<ol class="chapter-list">
  <li><a href="/fiction/jade-peak/chapter-1">Chapter 1: Sweeping Stones</a></li>
  <li><a href="/fiction/jade-peak/chapter-2">Chapter 2: The Outer Sect</a></li>
  <li><a href="/fiction/jade-peak/chapter-3">Chapter 3: First Breath</a></li>
  <li><a href="/fiction/jade-peak/chapter-3">Chapter 3: First Breath (duplicate)</a></li>
  <li><a href="#comments">Jump to comments</a></li>
  <li><a href="javascript:void(0)">Report chapter</a></li>
  <li><a href="/fiction/jade-peak/chapter-4">Chapter 4: The Elder's Test</a></li>
</ol>
</body></html>`

func TestExtractChapterLinks(t *testing.T) {
	links := ExtractChapterLinks([]byte(tocPage), "https://serialreads.example/fiction/jade-peak")

	want := []ChapterLink{
		{Title: "Chapter 1: Sweeping Stones", URL: "https://serialreads.example/fiction/jade-peak/chapter-1"},
		{Title: "Chapter 2: The Outer Sect", URL: "https://serialreads.example/fiction/jade-peak/chapter-2"},
		{Title: "Chapter 3: First Breath", URL: "https://serialreads.example/fiction/jade-peak/chapter-3"},
		{Title: "Chapter 4: The Elder's Test", URL: "https://serialreads.example/fiction/jade-peak/chapter-4"},
	}

	if len(links) != len(want) {
		t.Fatalf("got %d links %v, want %d", len(links), links, len(want))
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func TestExtractChapterLinks_NoToC(t *testing.T) {
	page := `<html><body>
<div><a href="/chapter-1">Chapter 1</a><a href="/chapter-2">Chapter 2</a></div>
</body></html>`

	links := ExtractChapterLinks([]byte(page), "https://example.com")
	if links != nil {
		t.Errorf("expected nil for a page with too few chapter links, got %v", links)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{
			name: "relative path",
			base: "https://example.com/fiction/novel",
			ref:  "/covers/a.jpg",
			want: "https://example.com/covers/a.jpg",
		},
		{
			name: "already absolute",
			base: "https://example.com/fiction",
			ref:  "https://cdn.example.net/a.jpg",
			want: "https://cdn.example.net/a.jpg",
		},
		{
			name: "fragment only",
			base: "https://example.com",
			ref:  "#comments",
			want: "",
		},
		{
			name: "javascript href",
			base: "https://example.com",
			ref:  "javascript:void(0)",
			want: "",
		},
		{
			name: "empty ref",
			base: "https://example.com",
			ref:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveURL(tt.base, tt.ref); got != tt.want {
				t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}
