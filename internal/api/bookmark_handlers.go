package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerBookmarkRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createBookmark",
		Method:        http.MethodPost,
		Path:          "/api/v1/novels/{novelID}/bookmarks",
		Summary:       "Create bookmark",
		Description:   "Places a bookmark at a chapter and offset",
		Tags:          []string{"Bookmarks"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}/bookmarks",
		Summary:     "List bookmarks",
		Description: "Returns the novel's bookmarks ordered by chapter and offset",
		Tags:        []string{"Bookmarks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBookmarks)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBookmark",
		Method:      http.MethodPatch,
		Path:        "/api/v1/bookmarks/{id}",
		Summary:     "Update bookmark",
		Description: "Moves or relabels a bookmark",
		Tags:        []string{"Bookmarks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBookmark",
		Method:      http.MethodDelete,
		Path:        "/api/v1/bookmarks/{id}",
		Summary:     "Delete bookmark",
		Description: "Removes one bookmark",
		Tags:        []string{"Bookmarks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteBookmark)
}

// === DTOs ===

// BookmarkResponse contains bookmark data in API responses.
type BookmarkResponse struct {
	ID           string    `json:"id" doc:"Bookmark ID"`
	NovelID      string    `json:"novel_id" doc:"Novel the bookmark belongs to"`
	ChapterIndex int       `json:"chapter_index" doc:"Zero-based chapter index"`
	Offset       int       `json:"offset" doc:"Rune offset within the chapter"`
	Label        string    `json:"label,omitempty" doc:"Optional reader label"`
	CreatedAt    time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt    time.Time `json:"updated_at" doc:"Last modification time"`
}

// BookmarkOutput wraps a single bookmark response for Huma.
type BookmarkOutput struct {
	Body BookmarkResponse
}

// CreateBookmarkRequest is the request body for placing a bookmark.
type CreateBookmarkRequest struct {
	ChapterIndex int    `json:"chapter_index" minimum:"0" doc:"Zero-based chapter index"`
	Offset       int    `json:"offset" minimum:"0" doc:"Rune offset within the chapter"`
	Label        string `json:"label,omitempty" validate:"max=200" doc:"Optional reader label"`
}

// CreateBookmarkInput wraps the create request for Huma.
type CreateBookmarkInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    CreateBookmarkRequest
}

// BookmarkListInput wraps the list request for Huma.
type BookmarkListInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
}

// BookmarkListOutput wraps the list response for Huma.
type BookmarkListOutput struct {
	Body struct {
		Bookmarks []BookmarkResponse `json:"bookmarks" doc:"Bookmarks ordered by chapter and offset"`
	}
}

// UpdateBookmarkRequest is the request body for bookmark changes.
type UpdateBookmarkRequest struct {
	ChapterIndex *int    `json:"chapter_index,omitempty" validate:"omitempty,min=0" doc:"New chapter index"`
	Offset       *int    `json:"offset,omitempty" validate:"omitempty,min=0" doc:"New offset"`
	Label        *string `json:"label,omitempty" validate:"omitempty,max=200" doc:"New label, empty string clears it"`
}

// UpdateBookmarkInput wraps the update request for Huma.
type UpdateBookmarkInput struct {
	AuthenticatedInput
	ID   string `path:"id" doc:"Bookmark ID"`
	Body UpdateBookmarkRequest
}

// BookmarkIDInput identifies one bookmark by path parameter.
type BookmarkIDInput struct {
	AuthenticatedInput
	ID string `path:"id" doc:"Bookmark ID"`
}

// === Handlers ===

func (s *Server) handleCreateBookmark(ctx context.Context, input *CreateBookmarkInput) (*BookmarkOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	bookmark, err := s.services.Bookmark.Create(ctx, userID, input.NovelID, service.CreateBookmarkRequest{
		ChapterIndex: input.Body.ChapterIndex,
		Offset:       input.Body.Offset,
		Label:        input.Body.Label,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkOutput{Body: mapBookmarkResponse(bookmark)}, nil
}

func (s *Server) handleListBookmarks(ctx context.Context, input *BookmarkListInput) (*BookmarkListOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	bookmarks, err := s.services.Bookmark.List(ctx, userID, input.NovelID)
	if err != nil {
		return nil, err
	}

	out := &BookmarkListOutput{}
	out.Body.Bookmarks = make([]BookmarkResponse, 0, len(bookmarks))
	for _, b := range bookmarks {
		out.Body.Bookmarks = append(out.Body.Bookmarks, mapBookmarkResponse(b))
	}
	return out, nil
}

func (s *Server) handleUpdateBookmark(ctx context.Context, input *UpdateBookmarkInput) (*BookmarkOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	bookmark, err := s.services.Bookmark.Update(ctx, userID, input.ID, service.UpdateBookmarkRequest{
		ChapterIndex: input.Body.ChapterIndex,
		Offset:       input.Body.Offset,
		Label:        input.Body.Label,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkOutput{Body: mapBookmarkResponse(bookmark)}, nil
}

func (s *Server) handleDeleteBookmark(ctx context.Context, input *BookmarkIDInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Bookmark.Delete(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Bookmark deleted"}}, nil
}

// === Helpers ===

func mapBookmarkResponse(b *domain.Bookmark) BookmarkResponse {
	return BookmarkResponse{
		ID:           b.ID,
		NovelID:      b.NovelID,
		ChapterIndex: b.ChapterIndex,
		Offset:       b.Offset,
		Label:        b.Label,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
