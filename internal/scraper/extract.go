package scraper

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ChapterContent is the readable payload extracted from a chapter page.
type ChapterContent struct {
	Title string // Best-effort chapter heading
	HTML  string // Inner HTML of the winning content container
	Text  string // Plain text of the same container
}

// noiseTags never hold chapter text and frequently dwarf it. They are
// detached from the tree before scoring.
var noiseTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"iframe":   true,
	"button":   true,
	"svg":      true,
}

// contentHints are id/class fragments serial sites use for the chapter
// body container. A hinted candidate outranks an unhinted one of equal
// text weight.
var contentHints = []string{
	"chapter-content",
	"chapter_content",
	"chaptercontent",
	"chp_raw",
	"entry-content",
	"post-content",
	"article-content",
	"novel-content",
	"reading-content",
}

// minContentLength is the score floor below which a candidate is treated
// as navigation chrome rather than chapter text.
const minContentLength = 140

// ExtractChapter locates the readable chapter body in a fetched page.
// The heuristic favors the element that directly parents the paragraph
// run: ancestors of the content container score near zero because the
// paragraphs are not their direct children.
func ExtractChapter(body []byte) (*ChapterContent, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, wrapError("extract", "", err)
	}

	removeNoise(doc)

	title := findTitle(doc)

	best, bestScore := findContentNode(doc)
	if best == nil || bestScore < minContentLength {
		// Fall back to the whole body when no single container stands out
		best = findElement(doc, "body")
	}
	if best == nil {
		return nil, wrapError("extract", "", ErrNoContent)
	}

	text := collapseWhitespace(collectText(best))
	if strings.TrimSpace(text) == "" {
		return nil, wrapError("extract", "", ErrNoContent)
	}

	return &ChapterContent{
		Title: title,
		HTML:  renderChildren(best),
		Text:  strings.TrimSpace(text),
	}, nil
}

// removeNoise detaches script/style/nav and similar subtrees in place.
func removeNoise(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && noiseTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		removeNoise(c)
	}
}

// findContentNode walks the tree and returns the highest-scoring
// container candidate.
func findContentNode(doc *html.Node) (*html.Node, int) {
	var best *html.Node
	bestScore := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div", "article", "section", "main", "td":
				score := scoreNode(n)
				if score > bestScore {
					best = n
					bestScore = score
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return best, bestScore
}

// scoreNode measures how much paragraph text an element directly parents.
// Direct text nodes count too, for sites that separate raw text with <br>.
func scoreNode(n *html.Node) int {
	score := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			score += len(strings.TrimSpace(c.Data))
		case c.Type == html.ElementNode && c.Data == "p":
			score += len(strings.TrimSpace(collectText(c)))
		}
	}
	if score > 0 && isHinted(n) {
		score *= 2
	}
	return score
}

// isHinted reports whether the node's id or class names a known chapter
// container.
func isHinted(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, hint := range contentHints {
			if strings.Contains(val, hint) {
				return true
			}
		}
	}
	return false
}

// findTitle prefers the page's first h1, falling back to the title tag.
func findTitle(doc *html.Node) string {
	if h1 := findElement(doc, "h1"); h1 != nil {
		if t := strings.TrimSpace(collapseWhitespace(collectText(h1))); t != "" {
			return t
		}
	}
	if tt := findElement(doc, "title"); tt != nil {
		return strings.TrimSpace(collapseWhitespace(collectText(tt)))
	}
	return ""
}

// findElement returns the first element with the given tag, depth-first.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// collectText extracts text content from a subtree, spacing out block
// element boundaries.
func collectText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				buf.WriteString(" ")
			}
		}
	}
	walk(n)
	return buf.String()
}

// renderChildren serializes a node's children back to HTML.
func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return strings.TrimSpace(buf.String())
}

// collapseWhitespace replaces multiple whitespace with single space.
var whitespaceRegex = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(s, " ")
}
