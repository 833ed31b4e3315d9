package sideload

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrUnsupportedFile marks extensions the parser does not understand.
	ErrUnsupportedFile = errors.New("sideload: unsupported file type")
	// ErrEmptyDocument marks files with no importable text.
	ErrEmptyDocument = errors.New("sideload: empty document")
)

// maxTitleLen is the longest line still treated as a plain-text title.
// Anything longer is body prose.
const maxTitleLen = 120

var (
	// mdHeadingRe matches ATX headings of level one or two.
	mdHeadingRe = regexp.MustCompile(`^(#{1,2})\s+(.+?)\s*#*\s*$`)
	// authorRe matches a byline like "by Jane Doe", with optional
	// Markdown emphasis around it.
	authorRe = regexp.MustCompile(`(?i)^[*_]*by\s+(.+?)[*_]*\s*$`)
	// textMarkerRe matches conventional chapter markers in plain text.
	textMarkerRe = regexp.MustCompile(`(?i)^(?:chapter|part|book|prologue|epilogue)\b.*$`)
	// bareNumberRe matches lines that are nothing but a chapter number.
	bareNumberRe = regexp.MustCompile(`^\d{1,4}\.?$`)
)

// fileNameCaser title-cases filename-derived fallback titles.
var fileNameCaser = cases.Title(language.Und)

// Document is a parsed manuscript ready to become a novel.
type Document struct {
	Title    string
	Author   string
	Chapters []ChapterDraft
}

// ChapterDraft is one chapter split out of a manuscript.
type ChapterDraft struct {
	Title   string
	Content string
}

// ParseDocument splits a manuscript into titled chapters. Markdown
// files split on headings, plain text on chapter marker lines. When
// the text itself names no title, the file name supplies one.
func ParseDocument(fileName string, data []byte) (*Document, error) {
	text := normalizeText(string(data))

	var doc *Document
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".md", ".markdown":
		doc = parseMarkdown(text)
	case ".txt":
		doc = parseText(text)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(fileName))
	}

	if len(doc.Chapters) == 0 {
		return nil, ErrEmptyDocument
	}

	if doc.Title == "" {
		doc.Title = titleFromFileName(fileName)
	}
	numberUntitled(doc.Chapters)

	return doc, nil
}

// mdHeading is one heading found during the markdown survey pass.
type mdHeading struct {
	level int
	line  int
}

// parseMarkdown splits on ATX headings. A single heading-one at the top
// of the file is the book title; otherwise chapters break on the
// smallest heading level the document actually uses. Deeper headings
// stay inside chapter bodies, as does anything inside code fences.
func parseMarkdown(text string) *Document {
	lines := strings.Split(text, "\n")

	// Survey pass: find headings and the first body line.
	var headings []mdHeading
	firstBody := -1
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
			headings = append(headings, mdHeading{level: len(m[1]), line: i})
			continue
		}
		if firstBody == -1 && strings.TrimSpace(line) != "" {
			firstBody = i
		}
	}

	doc := &Document{}

	// A lone leading H1 names the book rather than a chapter. Files
	// that use H1 per chapter keep the file name as the book title.
	titleLine := -1
	if len(headings) > 0 && headings[0].level == 1 {
		leading := firstBody == -1 || headings[0].line < firstBody
		repeated := false
		for _, h := range headings[1:] {
			if h.level == 1 {
				repeated = true
				break
			}
		}
		if leading && !repeated {
			titleLine = headings[0].line
			doc.Title = headingText(lines[titleLine])
			headings = headings[1:]
		}
	}

	splitLevel := 0
	for _, h := range headings {
		if splitLevel == 0 || h.level < splitLevel {
			splitLevel = h.level
		}
	}

	// Split pass.
	var chapters []ChapterDraft
	var current ChapterDraft
	var body []string
	started := false
	inFence = false

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if !started {
			if content != "" {
				// Text before the first chapter heading becomes an
				// untitled leading chapter.
				chapters = append(chapters, ChapterDraft{Content: content})
			}
			return
		}
		current.Content = content
		chapters = append(chapters, current)
	}

	sawBody := false
	for i, line := range lines {
		if i == titleLine {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			body = append(body, line)
			sawBody = true
			continue
		}
		if !inFence {
			if m := mdHeadingRe.FindStringSubmatch(line); m != nil && len(m[1]) == splitLevel {
				flush()
				started = true
				current = ChapterDraft{Title: headingText(line)}
				continue
			}
			// A byline is only recognized directly under a real title.
			if doc.Title != "" && doc.Author == "" && !started && !sawBody {
				if author, ok := matchAuthorLine(line); ok {
					doc.Author = author
					continue
				}
			}
		}
		body = append(body, line)
		if strings.TrimSpace(line) != "" {
			sawBody = true
		}
	}
	flush()

	doc.Chapters = chapters
	return doc
}

// parseText splits plain text on chapter marker lines ("Chapter 1",
// "Prologue", a bare number). A marker only counts when it follows a
// blank line, so prose that happens to start with "Chapter" does not
// split mid-paragraph.
func parseText(text string) *Document {
	doc := &Document{}
	var chapters []ChapterDraft
	var current ChapterDraft
	var body []string
	started := false

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if !started {
			if content != "" {
				doc.Title, doc.Author, content = extractFrontMatter(content)
			}
			if content != "" {
				chapters = append(chapters, ChapterDraft{Content: content})
			}
			return
		}
		current.Content = content
		chapters = append(chapters, current)
	}

	prevBlank := true
	for _, line := range strings.Split(text, "\n") {
		if prevBlank && isTextMarker(line) {
			flush()
			started = true
			current = ChapterDraft{Title: strings.TrimSpace(line)}
			prevBlank = false
			continue
		}
		body = append(body, line)
		prevBlank = strings.TrimSpace(line) == ""
	}
	flush()

	doc.Chapters = chapters
	return doc
}

// extractFrontMatter pulls a title and byline out of the text before
// the first chapter marker. The first non-blank line is the title when
// it is short enough to be one; a following "by ..." line names the
// author. Whatever remains comes back for a leading chapter.
func extractFrontMatter(content string) (title, author, rest string) {
	lines := strings.Split(content, "\n")
	i := 0

	next := func() string {
		for i < len(lines) {
			if line := strings.TrimSpace(lines[i]); line != "" {
				return line
			}
			i++
		}
		return ""
	}

	if line := next(); line != "" && len(line) <= maxTitleLen {
		title = line
		i++
		if line := next(); line != "" {
			if a, ok := matchAuthorLine(line); ok {
				author = a
				i++
			}
		}
	}

	rest = strings.TrimSpace(strings.Join(lines[i:], "\n"))
	return title, author, rest
}

// isTextMarker reports whether a line opens a new plain-text chapter.
func isTextMarker(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 80 {
		return false
	}
	return textMarkerRe.MatchString(trimmed) || bareNumberRe.MatchString(trimmed)
}

// headingText strips the ATX marker from a heading line.
func headingText(line string) string {
	m := mdHeadingRe.FindStringSubmatch(line)
	if m == nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(m[2])
}

// matchAuthorLine extracts the author from a byline.
func matchAuthorLine(line string) (string, bool) {
	m := authorRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// numberUntitled names chapters that had no heading of their own.
func numberUntitled(chapters []ChapterDraft) {
	for i := range chapters {
		if chapters[i].Title == "" {
			chapters[i].Title = fmt.Sprintf("Chapter %d", i+1)
		}
	}
}

// titleFromFileName derives a presentable title from a file name:
// "the_sea-wolf.txt" becomes "The Sea Wolf".
func titleFromFileName(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled"
	}
	return fileNameCaser.String(base)
}

// normalizeText strips a UTF-8 BOM and canonicalizes line endings.
func normalizeText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
