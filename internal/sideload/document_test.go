package sideload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_MarkdownTitleAndChapters(t *testing.T) {
	text := "# The Winter Road\n\n" +
		"*by Jane Doe*\n\n" +
		"## The Crossing\n\n" +
		"Snow fell for three days straight.\n\n" +
		"## The Pass\n\n" +
		"The pass was closed until spring.\n"

	doc, err := ParseDocument("winter.md", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "The Winter Road", doc.Title)
	assert.Equal(t, "Jane Doe", doc.Author)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "The Crossing", doc.Chapters[0].Title)
	assert.Equal(t, "Snow fell for three days straight.", doc.Chapters[0].Content)
	assert.Equal(t, "The Pass", doc.Chapters[1].Title)
	assert.Equal(t, "The pass was closed until spring.", doc.Chapters[1].Content)
}

func TestParseDocument_MarkdownChapterPerHeadingOne(t *testing.T) {
	// Multiple H1s mean chapter-per-heading, so the book title comes
	// from the file name instead.
	text := "# The Crossing\n\n" +
		"Snow fell.\n\n" +
		"# The Pass\n\n" +
		"It was closed.\n"

	doc, err := ParseDocument("the_winter-road.md", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "The Winter Road", doc.Title)
	assert.Empty(t, doc.Author)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "The Crossing", doc.Chapters[0].Title)
	assert.Equal(t, "The Pass", doc.Chapters[1].Title)
}

func TestParseDocument_MarkdownPreludeBeforeFirstChapter(t *testing.T) {
	text := "# Endless Skies\n\n" +
		"A short note before the story starts.\n\n" +
		"## One\n\n" +
		"The airship rose.\n"

	doc, err := ParseDocument("skies.md", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "Endless Skies", doc.Title)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "Chapter 1", doc.Chapters[0].Title)
	assert.Equal(t, "A short note before the story starts.", doc.Chapters[0].Content)
	assert.Equal(t, "One", doc.Chapters[1].Title)
}

func TestParseDocument_MarkdownNoHeadings(t *testing.T) {
	text := "Just prose without any headings.\n\nAnother paragraph.\n"

	doc, err := ParseDocument("fragment.md", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "Fragment", doc.Title)
	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "Chapter 1", doc.Chapters[0].Title)
	assert.Contains(t, doc.Chapters[0].Content, "Another paragraph.")
}

func TestParseDocument_MarkdownDeeperHeadingsStayInBody(t *testing.T) {
	text := "# Field Notes\n\n" +
		"## Day One\n\n" +
		"### Morning\n\n" +
		"Rain.\n\n" +
		"## Day Two\n\n" +
		"Sun.\n"

	doc, err := ParseDocument("notes.md", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "Field Notes", doc.Title)
	require.Len(t, doc.Chapters, 2)
	assert.Contains(t, doc.Chapters[0].Content, "### Morning")
	assert.Contains(t, doc.Chapters[0].Content, "Rain.")
}

func TestParseDocument_MarkdownCodeFenceNotSplit(t *testing.T) {
	text := "# Guide\n\n" +
		"## Setup\n\n" +
		"```\n# not a heading\n```\n\n" +
		"Done.\n"

	doc, err := ParseDocument("guide.md", []byte(text))
	require.NoError(t, err)

	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "Setup", doc.Chapters[0].Title)
	assert.Contains(t, doc.Chapters[0].Content, "# not a heading")
}

func TestParseDocument_TextChapterMarkers(t *testing.T) {
	text := "The Sea Wolf\n\n" +
		"by Jack London\n\n\n" +
		"Chapter 1\n\n" +
		"I scarcely know where to begin.\n\n" +
		"Chapter 2\n\n" +
		"The fog closed in.\n"

	doc, err := ParseDocument("sea_wolf.txt", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "The Sea Wolf", doc.Title)
	assert.Equal(t, "Jack London", doc.Author)
	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "Chapter 1", doc.Chapters[0].Title)
	assert.Equal(t, "I scarcely know where to begin.", doc.Chapters[0].Content)
	assert.Equal(t, "Chapter 2", doc.Chapters[1].Title)
	assert.Equal(t, "The fog closed in.", doc.Chapters[1].Content)
}

func TestParseDocument_TextPrologueAndEpilogue(t *testing.T) {
	text := "Prologue\n\nBefore it all.\n\n" +
		"Chapter One\n\nThe middle.\n\n" +
		"Epilogue\n\nAfter it all.\n"

	doc, err := ParseDocument("story.txt", []byte(text))
	require.NoError(t, err)

	require.Len(t, doc.Chapters, 3)
	assert.Equal(t, "Prologue", doc.Chapters[0].Title)
	assert.Equal(t, "Chapter One", doc.Chapters[1].Title)
	assert.Equal(t, "Epilogue", doc.Chapters[2].Title)
}

func TestParseDocument_TextBareNumberMarkers(t *testing.T) {
	text := "1.\n\nFirst part of the story.\n\n" +
		"2.\n\nSecond part of the story.\n"

	doc, err := ParseDocument("numbered.txt", []byte(text))
	require.NoError(t, err)

	require.Len(t, doc.Chapters, 2)
	assert.Equal(t, "1.", doc.Chapters[0].Title)
	assert.Equal(t, "2.", doc.Chapters[1].Title)
}

func TestParseDocument_TextMarkerNeedsBlankLineBefore(t *testing.T) {
	// "Chapter" continuing a paragraph must not split the text.
	text := "It was cold in the old\n" +
		"chapter house that winter.\n\n" +
		"Nothing else happened.\n"

	doc, err := ParseDocument("cold.txt", []byte(text))
	require.NoError(t, err)

	require.Len(t, doc.Chapters, 1)
	assert.Contains(t, doc.Chapters[0].Content, "chapter house")
}

func TestParseDocument_TextNoMarkers(t *testing.T) {
	text := "A single stretch of text.\n\nWith two paragraphs.\n"

	doc, err := ParseDocument("single.txt", []byte(text))
	require.NoError(t, err)

	// The first line reads as a title, the rest becomes one chapter.
	assert.Equal(t, "A single stretch of text.", doc.Title)
	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "Chapter 1", doc.Chapters[0].Title)
	assert.Equal(t, "With two paragraphs.", doc.Chapters[0].Content)
}

func TestParseDocument_WindowsLineEndings(t *testing.T) {
	text := "The Title\r\n\r\nby A. Writer\r\n\r\nChapter 1\r\n\r\nText body.\r\n"

	doc, err := ParseDocument("crlf.txt", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "The Title", doc.Title)
	assert.Equal(t, "A. Writer", doc.Author)
	require.Len(t, doc.Chapters, 1)
	assert.Equal(t, "Text body.", doc.Chapters[0].Content)
}

func TestParseDocument_UnsupportedExtension(t *testing.T) {
	_, err := ParseDocument("novel.epub", []byte("content"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

func TestParseDocument_EmptyFile(t *testing.T) {
	for _, data := range []string{"", "\n\n\n", "   \n\t\n"} {
		_, err := ParseDocument("empty.txt", []byte(data))
		assert.True(t, errors.Is(err, ErrEmptyDocument), "data %q", data)
	}
}

func TestTitleFromFileName(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{"underscores and dashes", "the_sea-wolf.txt", "The Sea Wolf"},
		{"simple", "dracula.md", "Dracula"},
		{"already spaced", "My Novel.txt", "My Novel"},
		{"dots", "war.and.peace.txt", "War And Peace"},
		{"no stem", ".txt", "Untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titleFromFileName(tt.fileName))
		})
	}
}

func TestIsTextMarker(t *testing.T) {
	assert.True(t, isTextMarker("Chapter 12"))
	assert.True(t, isTextMarker("CHAPTER XII"))
	assert.True(t, isTextMarker("  Part Two  "))
	assert.True(t, isTextMarker("Prologue"))
	assert.True(t, isTextMarker("42"))
	assert.True(t, isTextMarker("7."))

	assert.False(t, isTextMarker(""))
	assert.False(t, isTextMarker("The chapter was long"))
	assert.False(t, isTextMarker("12345"))
}
