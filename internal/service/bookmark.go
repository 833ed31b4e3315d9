package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// BookmarkService manages reader-placed markers. Bookmarks are simple
// single-position records and do not go through batch reconciliation;
// the reading position and annotations carry the sync weight.
type BookmarkService struct {
	store  *sqlite.Store
	novels *NovelService
	logger *slog.Logger
}

// NewBookmarkService creates a new bookmark service.
func NewBookmarkService(st *sqlite.Store, novels *NovelService, logger *slog.Logger) *BookmarkService {
	return &BookmarkService{
		store:  st,
		novels: novels,
		logger: logger,
	}
}

// CreateBookmarkRequest contains the data to place a bookmark.
type CreateBookmarkRequest struct {
	ChapterIndex int    `json:"chapter_index" validate:"min=0"`
	Offset       int    `json:"offset" validate:"min=0"`
	Label        string `json:"label,omitempty" validate:"max=200"`
}

// UpdateBookmarkRequest contains changes to a bookmark. Nil fields are
// left untouched.
type UpdateBookmarkRequest struct {
	ChapterIndex *int    `json:"chapter_index,omitempty" validate:"omitempty,min=0"`
	Offset       *int    `json:"offset,omitempty" validate:"omitempty,min=0"`
	Label        *string `json:"label,omitempty" validate:"omitempty,max=200"`
}

// Create places a bookmark in one of the owner's novels.
func (s *BookmarkService) Create(ctx context.Context, ownerID, novelID string, req CreateBookmarkRequest) (*domain.Bookmark, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	bookmarkID, err := id.Generate("bmk")
	if err != nil {
		return nil, domainerrors.Internal("failed to generate bookmark ID").WithCause(err)
	}

	bookmark := &domain.Bookmark{
		Syncable:     domain.Syncable{ID: bookmarkID},
		OwnerID:      ownerID,
		NovelID:      novelID,
		ChapterIndex: req.ChapterIndex,
		Offset:       req.Offset,
		Label:        req.Label,
	}
	bookmark.InitTimestamps()

	if err := s.store.CreateBookmark(ctx, bookmark); err != nil {
		return nil, fmt.Errorf("create bookmark: %w", err)
	}

	s.logger.Debug("bookmark created",
		"bookmark_id", bookmark.ID,
		"novel_id", novelID,
		"chapter_idx", req.ChapterIndex,
	)

	return bookmark, nil
}

// List returns a novel's bookmarks in reading order.
func (s *BookmarkService) List(ctx context.Context, ownerID, novelID string) ([]*domain.Bookmark, error) {
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	bookmarks, err := s.store.ListBookmarksByNovel(ctx, ownerID, novelID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	if bookmarks == nil {
		bookmarks = []*domain.Bookmark{}
	}
	return bookmarks, nil
}

// Get returns one of the owner's bookmarks.
func (s *BookmarkService) Get(ctx context.Context, ownerID, bookmarkID string) (*domain.Bookmark, error) {
	bookmark, err := s.store.GetBookmark(ctx, bookmarkID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("bookmark not found")
		}
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	return bookmark, nil
}

// Update moves or relabels a bookmark.
func (s *BookmarkService) Update(ctx context.Context, ownerID, bookmarkID string, req UpdateBookmarkRequest) (*domain.Bookmark, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	bookmark, err := s.Get(ctx, ownerID, bookmarkID)
	if err != nil {
		return nil, err
	}

	if req.ChapterIndex != nil {
		bookmark.ChapterIndex = *req.ChapterIndex
	}
	if req.Offset != nil {
		bookmark.Offset = *req.Offset
	}
	if req.Label != nil {
		bookmark.Label = *req.Label
	}
	bookmark.UpdatedAt = time.Now()

	if err := s.store.UpdateBookmark(ctx, bookmark); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("bookmark not found")
		}
		return nil, fmt.Errorf("update bookmark: %w", err)
	}

	return bookmark, nil
}

// Delete removes one of the owner's bookmarks.
func (s *BookmarkService) Delete(ctx context.Context, ownerID, bookmarkID string) error {
	if err := s.store.DeleteBookmark(ctx, bookmarkID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.NotFound("bookmark not found")
		}
		return fmt.Errorf("delete bookmark: %w", err)
	}

	s.logger.Debug("bookmark deleted", "bookmark_id", bookmarkID)
	return nil
}
