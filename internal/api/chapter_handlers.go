package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/http/response"
)

func (s *Server) registerChapterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listChapters",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}/chapters",
		Summary:     "List chapters",
		Description: "Returns the novel's table of contents. Unfetched chapters carry no content.",
		Tags:        []string{"Chapters"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListChapters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChapter",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}/chapters/{index}",
		Summary:     "Get chapter",
		Description: "Returns one chapter with its content. The body is fetched from the source site on first read and cached afterwards.",
		Tags:        []string{"Chapters"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetChapter)

	huma.Register(s.api, huma.Operation{
		OperationID: "refetchChapter",
		Method:      http.MethodPost,
		Path:        "/api/v1/novels/{novelID}/chapters/{index}/refetch",
		Summary:     "Refetch chapter",
		Description: "Discards the cached content and fetches the chapter from the source again",
		Tags:        []string{"Chapters"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefetchChapter)
}

// === DTOs ===

// ChapterSummary describes a chapter without its content.
type ChapterSummary struct {
	Index     int        `json:"index" doc:"Zero-based chapter index"`
	Title     string     `json:"title" doc:"Chapter title"`
	SourceURL string     `json:"source_url" doc:"Origin page for this chapter"`
	WordCount int        `json:"word_count" doc:"Words in the fetched content, 0 if unfetched"`
	Fetched   bool       `json:"fetched" doc:"Whether the content has been fetched"`
	FetchedAt *time.Time `json:"fetched_at,omitempty" doc:"When the content was fetched"`
}

// ChapterResponse contains a chapter with its content.
type ChapterResponse struct {
	ChapterSummary
	Content string `json:"content" doc:"Chapter content as Markdown"`
}

// ChapterListInput wraps the chapter list request for Huma.
type ChapterListInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
}

// ChapterListOutput wraps the chapter list response for Huma.
type ChapterListOutput struct {
	Body struct {
		Chapters []ChapterSummary `json:"chapters" doc:"Table of contents in reading order"`
	}
}

// ChapterInput identifies one chapter by novel and index.
type ChapterInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Index   int    `path:"index" minimum:"0" doc:"Zero-based chapter index"`
}

// ChapterOutput wraps a single chapter response for Huma.
type ChapterOutput struct {
	Body ChapterResponse
}

// === Handlers ===

func (s *Server) handleListChapters(ctx context.Context, input *ChapterListInput) (*ChapterListOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	chapters, err := s.services.Chapter.ListChapters(ctx, userID, input.NovelID)
	if err != nil {
		return nil, err
	}

	out := &ChapterListOutput{}
	out.Body.Chapters = make([]ChapterSummary, 0, len(chapters))
	for _, ch := range chapters {
		out.Body.Chapters = append(out.Body.Chapters, mapChapterSummary(ch))
	}
	return out, nil
}

func (s *Server) handleGetChapter(ctx context.Context, input *ChapterInput) (*ChapterOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	chapter, err := s.services.Chapter.GetChapter(ctx, userID, input.NovelID, input.Index)
	if err != nil {
		return nil, err
	}

	return &ChapterOutput{Body: mapChapterResponse(chapter)}, nil
}

func (s *Server) handleRefetchChapter(ctx context.Context, input *ChapterInput) (*ChapterOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	chapter, err := s.services.Chapter.RefetchChapter(ctx, userID, input.NovelID, input.Index)
	if err != nil {
		return nil, err
	}

	return &ChapterOutput{Body: mapChapterResponse(chapter)}, nil
}

// handleProxy fetches an arbitrary page through the server's scraper
// client and relays it verbatim. Raw endpoint so the upstream body and
// content type pass through untouched.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.rawRequestUserID(r); !ok {
		response.Unauthorized(w, "authentication required", s.logger)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		response.BadRequest(w, "url parameter required", s.logger)
		return
	}

	page, err := s.services.Chapter.Proxy(r.Context(), rawURL)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	contentType := page.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(page.Body)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", CacheNoStore)
	w.Header().Set("Content-Length", strconv.Itoa(len(page.Body)))
	_, _ = w.Write(page.Body)
}

// === Helpers ===

func mapChapterSummary(ch *domain.Chapter) ChapterSummary {
	return ChapterSummary{
		Index:     ch.Index,
		Title:     ch.Title,
		SourceURL: ch.SourceURL,
		WordCount: ch.WordCount,
		Fetched:   ch.IsFetched(),
		FetchedAt: ch.FetchedAt,
	}
}

func mapChapterResponse(ch *domain.Chapter) ChapterResponse {
	return ChapterResponse{
		ChapterSummary: mapChapterSummary(ch),
		Content:        ch.Content,
	}
}
