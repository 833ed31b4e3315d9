package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query   string   // User's search query
	OwnerID string   // Scope results to this user's library (empty = no scoping)
	Types   []string // Document types to include (empty = all)

	// Filters
	Tags     []string // Filter by exact tag slugs
	NovelID  string   // Restrict annotations to a single novel
	Kind     string   // Filter annotations by kind (highlight, note, underline)
	MinWords int64    // Minimum word count (novels only)
	MaxWords int64    // Maximum word count (novels only)

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "relevance", "title", "author", "recent", "words"
	SortOrder string // "asc", "desc"

	// Options
	IncludeFacets bool     // Include facet counts in results
	FacetFields   []string // Which fields to facet on
	Highlight     bool     // Include match highlighting
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:         20,
		Offset:        0,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
		FacetFields:   []string{"type", "tags"},
		Highlight:     true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets SearchFacets `json:"facets,omitempty"`
}

// SearchHit represents a single search result.
type SearchHit struct {
	ID           string            `json:"id"`
	Type         DocType           `json:"type"`
	Score        float64           `json:"score"`
	Name         string            `json:"name"`
	Author       string            `json:"author,omitempty"`
	Note         string            `json:"note,omitempty"`
	NovelID      string            `json:"novel_id,omitempty"`
	Kind         string            `json:"kind,omitempty"`
	Status       string            `json:"status,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	WordCount    int64             `json:"word_count,omitempty"`
	ChapterIndex int               `json:"chapter_index,omitempty"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

// SearchFacets contains facet counts.
type SearchFacets struct {
	Types    []FacetCount `json:"types,omitempty"`
	Tags     []FacetCount `json:"tags,omitempty"`
	Statuses []FacetCount `json:"statuses,omitempty"`
	Kinds    []FacetCount `json:"kinds,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Build the query
	searchQuery := buildSearchQuery(params)

	// Create search request
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	// Add sorting
	addSorting(searchRequest, params)

	// Add facets
	if params.IncludeFacets {
		addFacets(searchRequest, params)
	}

	// Add highlighting
	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("name")
		searchRequest.Highlight.AddField("author")
		searchRequest.Highlight.AddField("note")
	}

	// Request stored fields
	searchRequest.Fields = []string{
		"id", "type", "name", "author", "note", "novel_id",
		"kind", "status", "tags", "word_count", "chapter_index",
	}

	// Execute search
	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	// Convert results
	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}

		// Extract stored fields.
		// The index key for annotations is owner-prefixed; the stored id
		// field carries the original entity ID, so prefer it over hit.ID.
		if id, ok := hit.Fields["id"].(string); ok {
			searchHit.ID = id
		}
		if t, ok := hit.Fields["type"].(string); ok {
			searchHit.Type = DocType(t)
		}
		if n, ok := hit.Fields["name"].(string); ok {
			searchHit.Name = n
		}
		if a, ok := hit.Fields["author"].(string); ok {
			searchHit.Author = a
		}
		if n, ok := hit.Fields["note"].(string); ok {
			searchHit.Note = n
		}
		if nid, ok := hit.Fields["novel_id"].(string); ok {
			searchHit.NovelID = nid
		}
		if k, ok := hit.Fields["kind"].(string); ok {
			searchHit.Kind = k
		}
		if st, ok := hit.Fields["status"].(string); ok {
			searchHit.Status = st
		}
		if wc, ok := hit.Fields["word_count"].(float64); ok {
			searchHit.WordCount = int64(wc)
		}
		if ci, ok := hit.Fields["chapter_index"].(float64); ok {
			searchHit.ChapterIndex = int(ci)
		}
		// Multi-valued fields come back as a string for a single value
		// and a slice otherwise
		switch tags := hit.Fields["tags"].(type) {
		case string:
			searchHit.Tags = []string{tags}
		case []interface{}:
			for _, tag := range tags {
				if t, ok := tag.(string); ok {
					searchHit.Tags = append(searchHit.Tags, t)
				}
			}
		}

		// Extract highlights
		if len(hit.Fragments) > 0 {
			searchHit.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					searchHit.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, searchHit)
	}

	// Extract facets
	if params.IncludeFacets {
		result.Facets = extractFacets(searchResult)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	// Main text query
	// Search strategy:
	// - Novels: match on title (name), author, and description
	// - Annotations: match on selected text (name) and the attached note
	// The name field carries the highest boost so exact title hits rank
	// above novels that merely mention the phrase in their description.
	if params.Query != "" {
		textQueries := []query.Query{}

		// Name/title match with highest boost
		nameMatch := bleve.NewMatchQuery(params.Query)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)
		textQueries = append(textQueries, nameMatch)

		// Note match (reader-authored, highly relevant when it hits)
		noteMatch := bleve.NewMatchQuery(params.Query)
		noteMatch.SetField("note")
		noteMatch.SetBoost(2.0)
		textQueries = append(textQueries, noteMatch)

		// Author match
		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("author")
		authorMatch.SetBoost(1.5)
		textQueries = append(textQueries, authorMatch)

		// Description match, low boost so synopses don't drown out titles
		descMatch := bleve.NewMatchQuery(params.Query)
		descMatch.SetField("description")
		descMatch.SetBoost(0.5)
		textQueries = append(textQueries, descMatch)

		// Add fuzzy matching for typo tolerance on name
		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("name")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		// Prefix query for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("name")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		// Combine with OR (match any field)
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Owner filter - scopes every hit to the requesting user's library.
	// Annotations are private and novels belong to the user who added
	// them, so this is ANDed with everything else.
	if params.OwnerID != "" {
		ownerQuery := bleve.NewTermQuery(params.OwnerID)
		ownerQuery.SetField("owner_id")
		queries = append(queries, ownerQuery)
	}

	// Type filter
	if len(params.Types) > 0 {
		typeQueries := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField("type")
			typeQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}

	// Tag filter (exact match, OR across slugs)
	if len(params.Tags) > 0 {
		tagQueries := make([]query.Query, len(params.Tags))
		for i, slug := range params.Tags {
			tq := bleve.NewTermQuery(slug)
			tq.SetField("tags")
			tagQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(tagQueries...))
	}

	// Novel filter (annotations within one novel)
	if params.NovelID != "" {
		novelQuery := bleve.NewTermQuery(params.NovelID)
		novelQuery.SetField("novel_id")
		queries = append(queries, novelQuery)
	}

	// Annotation kind filter
	if params.Kind != "" {
		kindQuery := bleve.NewTermQuery(params.Kind)
		kindQuery.SetField("kind")
		queries = append(queries, kindQuery)
	}

	// Word count range filter
	if params.MinWords > 0 || params.MaxWords > 0 {
		min := float64(params.MinWords)
		max := float64(params.MaxWords)
		if params.MaxWords == 0 {
			max = math.MaxFloat64
		}
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("word_count")
		queries = append(queries, rangeQuery)
	}

	// Combine all queries with AND
	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case "title", "name":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-name"})
		} else {
			req.SortBy([]string{"name"})
		}
	case "author":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-author", "-name"})
		} else {
			req.SortBy([]string{"author", "name"})
		}
	case "recent":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"created_at"})
		} else {
			req.SortBy([]string{"-created_at"})
		}
	case "words":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"word_count"})
		} else {
			req.SortBy([]string{"-word_count"})
		}
	default:
		// Relevance (score) is default - Bleve handles this
		req.SortBy([]string{"-_score"})
	}
}

// addFacets configures facet requests.
func addFacets(req *bleve.SearchRequest, params SearchParams) {
	for _, field := range params.FacetFields {
		facetReq := bleve.NewFacetRequest(field, 20) // Top 20 values
		req.AddFacet(field, facetReq)
	}
}

// extractFacets converts Bleve facets to our format.
func extractFacets(result *bleve.SearchResult) SearchFacets {
	facets := SearchFacets{}

	if typeFacet, ok := result.Facets["type"]; ok {
		for _, term := range typeFacet.Terms.Terms() {
			facets.Types = append(facets.Types, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if tagFacet, ok := result.Facets["tags"]; ok {
		for _, term := range tagFacet.Terms.Terms() {
			facets.Tags = append(facets.Tags, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if statusFacet, ok := result.Facets["status"]; ok {
		for _, term := range statusFacet.Terms.Terms() {
			facets.Statuses = append(facets.Statuses, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if kindFacet, ok := result.Facets["kind"]; ok {
		for _, term := range kindFacet.Terms.Terms() {
			facets.Kinds = append(facets.Kinds, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	return facets
}
