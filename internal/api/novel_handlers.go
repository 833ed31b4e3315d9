package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/http/response"
	"github.com/folioapp/folio-server/internal/service"
	"github.com/folioapp/folio-server/internal/store"
)

func (s *Server) registerNovelRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "registerNovel",
		Method:        http.MethodPost,
		Path:          "/api/v1/novels",
		Summary:       "Register novel",
		Description:   "Adds a web novel to the library from its source URL. The landing page is scraped for metadata and the table of contents; chapter bodies are fetched lazily on first read.",
		Tags:          []string{"Novels"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterNovel)

	huma.Register(s.api, huma.Operation{
		OperationID: "listNovels",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels",
		Summary:     "List novels",
		Description: "Returns the user's library, paginated by cursor",
		Tags:        []string{"Novels"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListNovels)

	huma.Register(s.api, huma.Operation{
		OperationID: "getNovel",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}",
		Summary:     "Get novel",
		Description: "Returns one novel with its metadata",
		Tags:        []string{"Novels"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetNovel)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateNovel",
		Method:      http.MethodPatch,
		Path:        "/api/v1/novels/{novelID}",
		Summary:     "Update novel",
		Description: "Applies metadata overrides to a novel",
		Tags:        []string{"Novels"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateNovel)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteNovel",
		Method:      http.MethodDelete,
		Path:        "/api/v1/novels/{novelID}",
		Summary:     "Delete novel",
		Description: "Removes a novel along with its chapters, annotations, bookmarks, and reading position",
		Tags:        []string{"Novels"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteNovel)
}

// === DTOs ===

// NovelResponse contains novel data in API responses.
type NovelResponse struct {
	ID            string     `json:"id" doc:"Novel ID"`
	Title         string     `json:"title" doc:"Novel title"`
	Author        string     `json:"author,omitempty" doc:"Author name"`
	Description   string     `json:"description,omitempty" doc:"Synopsis"`
	Slug          string     `json:"slug" doc:"URL-safe title slug"`
	SourceURL     string     `json:"source_url" doc:"Origin page the novel was registered from"`
	Language      string     `json:"language,omitempty" doc:"BCP-47 language tag"`
	Status        string     `json:"status" doc:"Publication status (ongoing, completed, unknown)"`
	Tags          []string   `json:"tags,omitempty" doc:"Genre and content tags"`
	HasCover      bool       `json:"has_cover" doc:"Whether a cover image is available"`
	CoverBlurHash string     `json:"cover_blurhash,omitempty" doc:"BlurHash placeholder for the cover"`
	ChapterCount  int        `json:"chapter_count" doc:"Number of known chapters"`
	WordCount     int64      `json:"word_count" doc:"Total words across fetched chapters"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty" doc:"When the source was last scraped"`
	CreatedAt     time.Time  `json:"created_at" doc:"When the novel was registered"`
	UpdatedAt     time.Time  `json:"updated_at" doc:"Last metadata change"`
}

// NovelOutput wraps a single novel response for Huma.
type NovelOutput struct {
	Body NovelResponse
}

// RegisterNovelRequest is the request body for registering a novel.
type RegisterNovelRequest struct {
	SourceURL string `json:"source_url" validate:"required,url" doc:"Landing page URL of the web novel"`
}

// RegisterNovelInput wraps the register request for Huma.
type RegisterNovelInput struct {
	AuthenticatedInput
	Body RegisterNovelRequest
}

// ListNovelsInput wraps the list request for Huma.
type ListNovelsInput struct {
	AuthenticatedInput
	Limit  int    `query:"limit" doc:"Page size (default 100, max 500)"`
	Cursor string `query:"cursor" doc:"Opaque cursor from a previous page"`
}

// NovelListResponse contains a page of novels.
type NovelListResponse struct {
	Novels     []NovelResponse `json:"novels" doc:"Novels in this page"`
	NextCursor string          `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool            `json:"has_more" doc:"Whether more pages exist"`
	Total      int             `json:"total,omitempty" doc:"Total novels in the library"`
}

// NovelListOutput wraps the list response for Huma.
type NovelListOutput struct {
	Body NovelListResponse
}

// NovelIDInput identifies a novel by path parameter.
type NovelIDInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
}

// UpdateNovelRequest is the request body for metadata overrides.
type UpdateNovelRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1,max=500" doc:"New title"`
	Author      *string  `json:"author,omitempty" validate:"omitempty,max=200" doc:"New author"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=10000" doc:"New synopsis"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=ongoing completed unknown" doc:"New publication status"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=50,dive,min=1,max=100" doc:"Replacement tag list"`
}

// UpdateNovelInput wraps the update request for Huma.
type UpdateNovelInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    UpdateNovelRequest
}

// === Handlers ===

func (s *Server) handleRegisterNovel(ctx context.Context, input *RegisterNovelInput) (*NovelOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	novel, err := s.services.Novel.RegisterNovel(ctx, userID, service.RegisterNovelRequest{
		SourceURL: input.Body.SourceURL,
	})
	if err != nil {
		return nil, err
	}

	return &NovelOutput{Body: mapNovelResponse(novel)}, nil
}

func (s *Server) handleListNovels(ctx context.Context, input *ListNovelsInput) (*NovelListOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	params := store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor}
	params.Validate()

	result, err := s.services.Novel.ListNovels(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	out := &NovelListOutput{}
	out.Body.Novels = make([]NovelResponse, 0, len(result.Items))
	for _, novel := range result.Items {
		out.Body.Novels = append(out.Body.Novels, mapNovelResponse(novel))
	}
	out.Body.NextCursor = result.NextCursor
	out.Body.HasMore = result.HasMore
	out.Body.Total = result.Total
	return out, nil
}

func (s *Server) handleGetNovel(ctx context.Context, input *NovelIDInput) (*NovelOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	novel, err := s.services.Novel.GetNovel(ctx, userID, input.NovelID)
	if err != nil {
		return nil, err
	}

	return &NovelOutput{Body: mapNovelResponse(novel)}, nil
}

func (s *Server) handleUpdateNovel(ctx context.Context, input *UpdateNovelInput) (*NovelOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	novel, err := s.services.Novel.UpdateNovel(ctx, userID, input.NovelID, service.UpdateNovelRequest{
		Title:       input.Body.Title,
		Author:      input.Body.Author,
		Description: input.Body.Description,
		Status:      input.Body.Status,
		Tags:        input.Body.Tags,
	})
	if err != nil {
		return nil, err
	}

	return &NovelOutput{Body: mapNovelResponse(novel)}, nil
}

func (s *Server) handleDeleteNovel(ctx context.Context, input *NovelIDInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Novel.DeleteNovel(ctx, userID, input.NovelID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Novel deleted"}}, nil
}

// handleGetCover streams the stored cover image. Raw endpoint because
// the body is binary, not an enveloped JSON document.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.rawRequestUserID(r)
	if !ok {
		response.Unauthorized(w, "authentication required", s.logger)
		return
	}

	novelID := chi.URLParam(r, "novelID")
	data, err := s.services.Novel.GetCover(r.Context(), userID, novelID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", CacheOneDayPrivate)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// === Helpers ===

func mapNovelResponse(novel *domain.Novel) NovelResponse {
	return NovelResponse{
		ID:            novel.ID,
		Title:         novel.Title,
		Author:        novel.Author,
		Description:   novel.Description,
		Slug:          novel.Slug,
		SourceURL:     novel.SourceURL,
		Language:      novel.Language,
		Status:        string(novel.Status),
		Tags:          novel.Tags,
		HasCover:      novel.CoverPath != "",
		CoverBlurHash: novel.CoverBlurHash,
		ChapterCount:  novel.ChapterCount,
		WordCount:     novel.WordCount,
		LastScrapedAt: novel.LastScrapedAt,
		CreatedAt:     novel.CreatedAt,
		UpdatedAt:     novel.UpdatedAt,
	}
}
