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
	"github.com/folioapp/folio-server/internal/media/covers"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/normalize"
	"github.com/folioapp/folio-server/internal/scraper"
	"github.com/folioapp/folio-server/internal/search"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
	"github.com/folioapp/folio-server/internal/util"
)

// NovelService manages each user's library of registered novels.
// Registration scrapes the source site once for metadata and the table
// of contents; chapter bodies are fetched lazily by ChapterService.
type NovelService struct {
	store   *sqlite.Store
	scraper *scraper.Client
	covers  *covers.Downloader
	storage *images.Storage
	index   *search.SearchIndex
	emitter EventEmitter
	logger  *slog.Logger
}

// NewNovelService creates a new novel service.
func NewNovelService(
	st *sqlite.Store,
	sc *scraper.Client,
	coverDownloader *covers.Downloader,
	storage *images.Storage,
	index *search.SearchIndex,
	emitter EventEmitter,
	logger *slog.Logger,
) *NovelService {
	return &NovelService{
		store:   st,
		scraper: sc,
		covers:  coverDownloader,
		storage: storage,
		index:   index,
		emitter: emitter,
		logger:  logger,
	}
}

// RegisterNovelRequest contains the data needed to register a novel.
type RegisterNovelRequest struct {
	SourceURL string `json:"source_url" validate:"required,url"`
}

// UpdateNovelRequest contains optional metadata overrides. Nil fields
// are left untouched.
type UpdateNovelRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Author      *string  `json:"author,omitempty" validate:"omitempty,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=10000"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=ongoing completed unknown"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=50,dive,min=1,max=100"`
}

// RegisterNovel adds a novel to the owner's library from its source URL.
// The landing page is scraped for metadata and the table of contents;
// the cover is downloaded when the page names one. Chapter bodies are
// not fetched here.
func (s *NovelService) RegisterNovel(ctx context.Context, ownerID string, req RegisterNovelRequest) (*domain.Novel, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	if existing, err := s.store.GetNovelBySourceURL(ctx, ownerID, req.SourceURL); err == nil {
		return nil, domainerrors.AlreadyExists("novel already in library").
			WithDetails(map[string]string{"novel_id": existing.ID})
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check source url: %w", err)
	}

	page, err := s.scraper.Fetch(ctx, req.SourceURL)
	if err != nil {
		return nil, scrapeError(err)
	}

	// Redirects can land on a canonical URL; dedupe against that too.
	if page.URL != req.SourceURL {
		if existing, err := s.store.GetNovelBySourceURL(ctx, ownerID, page.URL); err == nil {
			return nil, domainerrors.AlreadyExists("novel already in library").
				WithDetails(map[string]string{"novel_id": existing.ID})
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check source url: %w", err)
		}
	}

	meta, err := scraper.ExtractNovelMetadata(page.Body, page.URL)
	if err != nil {
		return nil, scrapeError(err)
	}

	links := scraper.ExtractChapterLinks(page.Body, page.URL)

	novelID, err := id.Generate("nvl")
	if err != nil {
		return nil, fmt.Errorf("generate novel ID: %w", err)
	}

	now := time.Now()
	novel := &domain.Novel{
		Syncable:      domain.Syncable{ID: novelID},
		OwnerID:       ownerID,
		Title:         meta.Title,
		Author:        meta.Author,
		Description:   meta.Description,
		Slug:          util.Slugify(meta.Title),
		SourceURL:     page.URL,
		Language:      normalize.LanguageCode(meta.Language),
		Status:        domain.NovelStatusUnknown,
		Tags:          slugifyTags(meta.Tags),
		ChapterCount:  len(links),
		LastScrapedAt: &now,
	}
	novel.InitTimestamps()

	if err := s.store.CreateNovel(ctx, novel); err != nil {
		return nil, fmt.Errorf("create novel: %w", err)
	}

	if len(links) > 0 {
		chapters := make([]domain.Chapter, len(links))
		for i, link := range links {
			chapters[i] = domain.Chapter{
				NovelID:   novelID,
				Index:     i,
				Title:     link.Title,
				SourceURL: link.URL,
			}
		}
		if err := s.store.ReplaceChapters(ctx, novelID, chapters); err != nil {
			return nil, fmt.Errorf("store chapters: %w", err)
		}
	}

	if meta.CoverURL != "" {
		result := s.covers.Download(ctx, novelID, meta.CoverURL)
		if result.Success {
			novel.CoverPath = "covers/" + novelID + ".jpg"
			novel.CoverBlurHash = result.BlurHash
			if err := s.store.UpdateNovel(ctx, novel); err != nil {
				return nil, fmt.Errorf("save cover metadata: %w", err)
			}
		} else {
			// A library entry without a cover beats a failed registration.
			s.logger.Warn("cover download failed",
				"novel_id", novelID,
				"cover_url", meta.CoverURL,
				"error", result.Error,
			)
		}
	}

	s.indexNovel(novel)

	s.logger.Info("novel registered",
		"novel_id", novelID,
		"owner_id", ownerID,
		"title", novel.Title,
		"chapters", len(links),
	)

	s.emitter.Emit(sse.NewNovelCreatedEvent(novel))

	return novel, nil
}

// ListNovels returns a page of the owner's library ordered by last update.
func (s *NovelService) ListNovels(ctx context.Context, ownerID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Novel], error) {
	result, err := s.store.ListNovels(ctx, ownerID, params)
	if err != nil {
		return nil, fmt.Errorf("list novels: %w", err)
	}
	return result, nil
}

// GetNovel retrieves one of the owner's novels.
func (s *NovelService) GetNovel(ctx context.Context, ownerID, novelID string) (*domain.Novel, error) {
	novel, err := s.store.GetNovel(ctx, novelID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("novel not found")
		}
		return nil, fmt.Errorf("get novel: %w", err)
	}
	return novel, nil
}

// UpdateNovel applies metadata changes to one of the owner's novels.
func (s *NovelService) UpdateNovel(ctx context.Context, ownerID, novelID string, req UpdateNovelRequest) (*domain.Novel, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	novel, err := s.GetNovel(ctx, ownerID, novelID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		novel.Title = *req.Title
		novel.Slug = util.Slugify(*req.Title)
	}
	if req.Author != nil {
		novel.Author = *req.Author
	}
	if req.Description != nil {
		novel.Description = *req.Description
	}
	if req.Status != nil {
		novel.Status = domain.NormalizeNovelStatus(*req.Status)
	}
	if req.Tags != nil {
		novel.Tags = slugifyTags(req.Tags)
	}
	novel.Touch()

	if err := s.store.UpdateNovel(ctx, novel); err != nil {
		return nil, fmt.Errorf("update novel: %w", err)
	}

	s.indexNovel(novel)

	s.emitter.Emit(sse.NewNovelUpdatedEvent(novel))

	return novel, nil
}

// DeleteNovel removes a novel and everything hanging off it: chapters,
// annotations, bookmarks, positions, the cover file, and search entries.
func (s *NovelService) DeleteNovel(ctx context.Context, ownerID, novelID string) error {
	if _, err := s.GetNovel(ctx, ownerID, novelID); err != nil {
		return err
	}

	// Collect annotation index keys before the cascade erases the rows.
	var annotationKeys []string
	annotations, err := s.store.ListAnnotationsByNovel(ctx, ownerID, novelID)
	if err != nil {
		s.logger.Warn("list annotations for index cleanup failed",
			"novel_id", novelID,
			"error", err,
		)
	} else {
		for _, a := range annotations {
			annotationKeys = append(annotationKeys, search.AnnotationDocID(ownerID, a.ID))
		}
	}

	if err := s.store.DeleteNovel(ctx, novelID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.NotFound("novel not found")
		}
		return fmt.Errorf("delete novel: %w", err)
	}

	if err := s.storage.Delete(novelID); err != nil {
		s.logger.Warn("delete cover failed", "novel_id", novelID, "error", err)
	}

	if err := s.index.DeleteDocument(novelID); err != nil {
		s.logger.Warn("deindex novel failed", "novel_id", novelID, "error", err)
	}
	if len(annotationKeys) > 0 {
		if err := s.index.DeleteDocuments(annotationKeys); err != nil {
			s.logger.Warn("deindex annotations failed", "novel_id", novelID, "error", err)
		}
	}

	s.logger.Info("novel deleted", "novel_id", novelID, "owner_id", ownerID)

	s.emitter.Emit(sse.NewNovelDeletedEvent(ownerID, novelID, time.Now()))

	return nil
}

// GetCover returns the stored cover image for one of the owner's novels.
func (s *NovelService) GetCover(ctx context.Context, ownerID, novelID string) ([]byte, error) {
	novel, err := s.GetNovel(ctx, ownerID, novelID)
	if err != nil {
		return nil, err
	}
	if novel.CoverPath == "" {
		return nil, domainerrors.NotFound("novel has no cover")
	}

	data, err := s.storage.Get(novelID)
	if err != nil {
		return nil, domainerrors.NotFound("cover file missing").WithCause(err)
	}
	return data, nil
}

// indexNovel updates the search index entry. Index failures are logged,
// not returned; search lags rather than blocking writes.
func (s *NovelService) indexNovel(novel *domain.Novel) {
	if err := s.index.IndexDocument(search.NovelToSearchDocument(novel)); err != nil {
		s.logger.Warn("index novel failed", "novel_id", novel.ID, "error", err)
	}
}

// slugifyTags normalizes scraped or user-supplied tags to slugs,
// dropping empties and duplicates.
func slugifyTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		slug := util.Slugify(tag)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
	}
	return out
}

// scrapeError maps scraper failures onto domain errors so handlers
// answer with the right status.
func scrapeError(err error) error {
	switch {
	case errors.Is(err, scraper.ErrNotFound):
		return domainerrors.NotFound("source page not found").WithCause(err)
	case errors.Is(err, scraper.ErrSchemeNotAllowed):
		return domainerrors.Validation("source URL must be http or https").WithCause(err)
	case errors.Is(err, scraper.ErrNoContent):
		return domainerrors.Upstream("page has no usable content").WithCause(err)
	case errors.Is(err, scraper.ErrRateLimited), errors.Is(err, scraper.ErrUpstream), errors.Is(err, scraper.ErrBodyTooLarge):
		return domainerrors.Upstream("source site unavailable").WithCause(err)
	default:
		return domainerrors.Upstream("scrape failed").WithCause(err)
	}
}
