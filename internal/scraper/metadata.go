package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// NovelMetadata is what a registration scrape yields from a novel's
// landing page. Tags are raw strings as found; callers normalize them.
type NovelMetadata struct {
	Title       string
	Author      string
	Description string
	CoverURL    string // Absolute
	Language    string // Value of the html lang attribute, e.g. "en"
	Tags        []string
}

// ChapterLink is one table-of-contents entry discovered on a novel page.
type ChapterLink struct {
	Title string
	URL   string // Absolute
}

// ExtractNovelMetadata pulls title/author/description/cover/tags from a
// page. Open Graph tags are the primary source since nearly every serial
// site emits them; plain meta tags and the title element are fallbacks.
func ExtractNovelMetadata(body []byte, pageURL string) (*NovelMetadata, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, wrapError("metadata", pageURL, err)
	}

	meta := &NovelMetadata{}
	var fallbackTitle, fallbackDesc string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if lang := attrValue(n, "lang"); lang != "" {
					meta.Language = lang
				}
			case "meta":
				name := attrValue(n, "name")
				property := attrValue(n, "property")
				content := strings.TrimSpace(attrValue(n, "content"))
				if content == "" {
					break
				}
				switch {
				case property == "og:title" || name == "twitter:title":
					if meta.Title == "" {
						meta.Title = content
					}
				case property == "og:description":
					if meta.Description == "" {
						meta.Description = content
					}
				case property == "og:image" || name == "twitter:image":
					if meta.CoverURL == "" {
						meta.CoverURL = content
					}
				case name == "author":
					if meta.Author == "" {
						meta.Author = content
					}
				case name == "description":
					if fallbackDesc == "" {
						fallbackDesc = content
					}
				case name == "keywords":
					for _, kw := range strings.Split(content, ",") {
						if kw = strings.TrimSpace(kw); kw != "" {
							meta.Tags = append(meta.Tags, kw)
						}
					}
				}
			case "title":
				if fallbackTitle == "" {
					fallbackTitle = strings.TrimSpace(collapseWhitespace(collectText(n)))
				}
			case "a":
				// rel="tag" and .tag/.genre anchors carry the site's own
				// classification
				if isTagAnchor(n) {
					if t := strings.TrimSpace(collapseWhitespace(collectText(n))); t != "" {
						meta.Tags = append(meta.Tags, t)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta.Title == "" {
		meta.Title = fallbackTitle
	}
	if meta.Description == "" {
		meta.Description = fallbackDesc
	}
	meta.CoverURL = resolveURL(pageURL, meta.CoverURL)
	meta.Tags = dedupeStrings(meta.Tags)

	if meta.Title == "" {
		return nil, wrapError("metadata", pageURL, ErrNoContent)
	}
	return meta, nil
}

// chapterTitleRe matches link text that reads like a chapter entry.
var chapterTitleRe = regexp.MustCompile(`(?i)\b(chapter|ch\.|episode|part)\s*\d+|^\s*\d+\s*[-.:]`)

// ExtractChapterLinks discovers the table of contents on a novel page.
// It groups anchors by their nearest list-like ancestor and picks the
// container holding the most chapter-looking links, which separates the
// ToC from nav menus and "popular novels" sidebars.
func ExtractChapterLinks(body []byte, pageURL string) []ChapterLink {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	removeNoise(doc)

	type anchorInfo struct {
		node      *html.Node
		container *html.Node
		title     string
		href      string
	}

	var anchors []anchorInfo
	var walk func(n, container *html.Node)
	walk = func(n, container *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "ol", "ul", "table", "tbody", "section", "div":
				container = n
			case "a":
				href := attrValue(n, "href")
				title := strings.TrimSpace(collapseWhitespace(collectText(n)))
				if href != "" && title != "" {
					anchors = append(anchors, anchorInfo{
						node:      n,
						container: container,
						title:     title,
						href:      href,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, container)
		}
	}
	walk(doc, doc)

	// Count chapter-looking links per container
	counts := make(map[*html.Node]int)
	for _, a := range anchors {
		if looksLikeChapterLink(a.title, a.href) {
			counts[a.container]++
		}
	}

	var best *html.Node
	bestCount := 0
	for container, count := range counts {
		if count > bestCount {
			best = container
			bestCount = count
		}
	}

	// Fewer than three chapter links is a nav menu, not a ToC
	if best == nil || bestCount < 3 {
		return nil
	}

	var links []ChapterLink
	seen := make(map[string]bool)
	for _, a := range anchors {
		if a.container != best {
			continue
		}
		resolved := resolveURL(pageURL, a.href)
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		links = append(links, ChapterLink{Title: a.title, URL: resolved})
	}
	return links
}

func looksLikeChapterLink(title, href string) bool {
	if chapterTitleRe.MatchString(title) {
		return true
	}
	return strings.Contains(strings.ToLower(href), "chapter")
}

// isTagAnchor reports whether an anchor is a site tag/genre link.
func isTagAnchor(n *html.Node) bool {
	if attrValue(n, "rel") == "tag" {
		return true
	}
	class := strings.ToLower(attrValue(n, "class"))
	for _, token := range strings.Fields(class) {
		if token == "tag" || token == "genre" || token == "fic-genre" {
			return true
		}
	}
	return false
}

// attrValue returns the value of the named attribute, or empty.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// resolveURL makes ref absolute against base. Fragment-only and
// javascript links resolve to empty.
func resolveURL(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.Scheme != "" && refURL.Scheme != "http" && refURL.Scheme != "https" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// dedupeStrings removes duplicates preserving first-seen order.
func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
