package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search library",
		Description: "Full-text search across novels and annotations, scoped to the authenticated user",
		Tags:        []string{"Search"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearch)
}

// === DTOs ===

// SearchInput contains parameters for searching the library.
type SearchInput struct {
	Authorization string `header:"Authorization"`
	Query         string `query:"q" validate:"required,min=1,max=200" doc:"Search query"`
	Types         string `query:"types" validate:"omitempty,max=100" doc:"Comma-separated types to search (novel,annotation). Omit for all."`
	Tags          string `query:"tags" validate:"omitempty,max=200" doc:"Comma-separated tag slugs to filter by"`
	NovelID       string `query:"novel_id" validate:"omitempty,max=100" doc:"Restrict annotation hits to one novel"`
	Kind          string `query:"kind" validate:"omitempty,oneof=highlight note underline" doc:"Filter annotations by kind"`
	MinWords      int64  `query:"min_words" validate:"omitempty,gte=0" doc:"Minimum novel word count"`
	MaxWords      int64  `query:"max_words" validate:"omitempty,gte=0" doc:"Maximum novel word count"`
	Limit         int    `query:"limit" validate:"omitempty,gte=1,lte=100" doc:"Max results (default 20)"`
	Offset        int    `query:"offset" validate:"omitempty,gte=0" doc:"Pagination offset (default 0)"`
	Sort          string `query:"sort" validate:"omitempty,oneof=relevance title author recent words" doc:"Sort order (default relevance)"`
	Order         string `query:"order" validate:"omitempty,oneof=asc desc" doc:"Sort direction"`
	Facets        bool   `query:"facets" doc:"Include facet counts in the response"`
}

// SearchHitResult contains a single search result (novel or annotation).
type SearchHitResult struct {
	ID           string            `json:"id" doc:"Entity ID"`
	Type         string            `json:"type" doc:"Type: novel or annotation"`
	Score        float64           `json:"score" doc:"Search relevance score"`
	Name         string            `json:"name" doc:"Title for novels, selected text for annotations"`
	Author       string            `json:"author,omitempty" doc:"Author name (for novels)"`
	Note         string            `json:"note,omitempty" doc:"Attached note (for annotations)"`
	NovelID      string            `json:"novel_id,omitempty" doc:"Parent novel (for annotations)"`
	Kind         string            `json:"kind,omitempty" doc:"Annotation kind"`
	Status       string            `json:"status,omitempty" doc:"Publication status (for novels)"`
	Tags         []string          `json:"tags,omitempty" doc:"Tag slugs (for novels)"`
	WordCount    int64             `json:"word_count,omitempty" doc:"Word count (for novels)"`
	ChapterIndex int               `json:"chapter_index,omitempty" doc:"Chapter index (for annotations)"`
	Highlights   map[string]string `json:"highlights,omitempty" doc:"Highlighted matches"`
}

// SearchFacets contains facet counts for filtering.
type SearchFacets struct {
	Types    []FacetCount `json:"types,omitempty" doc:"Type facets"`
	Tags     []FacetCount `json:"tags,omitempty" doc:"Tag facets"`
	Statuses []FacetCount `json:"statuses,omitempty" doc:"Status facets"`
	Kinds    []FacetCount `json:"kinds,omitempty" doc:"Annotation kind facets"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value" doc:"Facet value"`
	Count int    `json:"count" doc:"Number of matches"`
}

// SearchResponse contains search results.
type SearchResponse struct {
	Query  string            `json:"query" doc:"Original search query"`
	Total  int64             `json:"total" doc:"Total matches"`
	TookMs int64             `json:"took_ms" doc:"Search duration in milliseconds"`
	Hits   []SearchHitResult `json:"hits" doc:"Search results"`
	Facets *SearchFacets     `json:"facets,omitempty" doc:"Facet counts for filtering"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	Body SearchResponse
}

// === Handlers ===

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.OwnerID = userID
	params.NovelID = input.NovelID
	params.Kind = input.Kind
	params.MinWords = input.MinWords
	params.MaxWords = input.MaxWords
	params.Offset = input.Offset
	params.IncludeFacets = input.Facets
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	if input.Sort != "" {
		params.SortBy = input.Sort
	}
	if input.Order != "" {
		params.SortOrder = input.Order
	}

	// Parse types - comma-separated string to slice
	if input.Types != "" {
		for t := range strings.SplitSeq(input.Types, ",") {
			switch strings.TrimSpace(t) {
			case "novel":
				params.Types = append(params.Types, string(search.DocTypeNovel))
			case "annotation":
				params.Types = append(params.Types, string(search.DocTypeAnnotation))
			}
		}
	}

	if input.Tags != "" {
		for tag := range strings.SplitSeq(input.Tags, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				params.Tags = append(params.Tags, tag)
			}
		}
	}

	result, err := s.services.Search.Search(ctx, userID, params)
	if err != nil {
		s.logger.Error("Search failed", "error", err, "query", input.Query)
		return nil, err
	}

	resp := SearchResponse{
		Query:  result.Query,
		Total:  int64(result.Total), //nolint:gosec // Safe: total count won't exceed int64
		TookMs: result.TookMs,
		Hits:   make([]SearchHitResult, 0, len(result.Hits)),
	}

	for i := range result.Hits {
		hit := &result.Hits[i]
		resp.Hits = append(resp.Hits, SearchHitResult{
			ID:           hit.ID,
			Type:         string(hit.Type),
			Score:        hit.Score,
			Name:         hit.Name,
			Author:       hit.Author,
			Note:         hit.Note,
			NovelID:      hit.NovelID,
			Kind:         hit.Kind,
			Status:       hit.Status,
			Tags:         hit.Tags,
			WordCount:    hit.WordCount,
			ChapterIndex: hit.ChapterIndex,
			Highlights:   hit.Highlights,
		})
	}

	if input.Facets {
		resp.Facets = mapSearchFacets(result.Facets)
	}

	return &SearchOutput{Body: resp}, nil
}

// === Helpers ===

func mapSearchFacets(facets search.SearchFacets) *SearchFacets {
	out := &SearchFacets{}
	for _, f := range facets.Types {
		out.Types = append(out.Types, FacetCount{Value: f.Value, Count: f.Count})
	}
	for _, f := range facets.Tags {
		out.Tags = append(out.Tags, FacetCount{Value: f.Value, Count: f.Count})
	}
	for _, f := range facets.Statuses {
		out.Statuses = append(out.Statuses, FacetCount{Value: f.Value, Count: f.Count})
	}
	for _, f := range facets.Kinds {
		out.Kinds = append(out.Kinds, FacetCount{Value: f.Value, Count: f.Count})
	}
	return out
}
