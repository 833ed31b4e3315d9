package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/scraper"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// ChapterService serves chapter text from the cache, fetching from the
// source site on a miss. Fetched bodies are stored as Markdown.
type ChapterService struct {
	store   *sqlite.Store
	novels  *NovelService
	scraper *scraper.Client
	emitter EventEmitter
	logger  *slog.Logger

	// Collapses concurrent fetches of the same chapter into one scrape.
	fetchGroup singleflight.Group
}

// NewChapterService creates a new chapter service.
func NewChapterService(
	st *sqlite.Store,
	novels *NovelService,
	sc *scraper.Client,
	emitter EventEmitter,
	logger *slog.Logger,
) *ChapterService {
	return &ChapterService{
		store:   st,
		novels:  novels,
		scraper: sc,
		emitter: emitter,
		logger:  logger,
	}
}

// ListChapters returns a novel's table of contents. Entries carry fetch
// state and word counts; bodies are stripped by the API layer.
func (s *ChapterService) ListChapters(ctx context.Context, ownerID, novelID string) ([]*domain.Chapter, error) {
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	chapters, err := s.store.ListChapters(ctx, novelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// GetChapter returns one chapter with its body. An unfetched chapter is
// fetched from the source site first and cached for everyone after.
func (s *ChapterService) GetChapter(ctx context.Context, ownerID, novelID string, index int) (*domain.Chapter, error) {
	novel, err := s.novels.GetNovel(ctx, ownerID, novelID)
	if err != nil {
		return nil, err
	}

	chapter, err := s.getChapter(ctx, novelID, index)
	if err != nil {
		return nil, err
	}

	if chapter.IsFetched() {
		return chapter, nil
	}

	return s.fetchChapter(ctx, novel, chapter)
}

// RefetchChapter re-downloads a chapter body, replacing the cached copy.
// Used when a site edit or a bad extraction left stale text behind.
func (s *ChapterService) RefetchChapter(ctx context.Context, ownerID, novelID string, index int) (*domain.Chapter, error) {
	novel, err := s.novels.GetNovel(ctx, ownerID, novelID)
	if err != nil {
		return nil, err
	}

	chapter, err := s.getChapter(ctx, novelID, index)
	if err != nil {
		return nil, err
	}

	return s.fetchChapter(ctx, novel, chapter)
}

// Proxy fetches an arbitrary page through the shared scraping client,
// so client-side rendering of images and linked pages rides the same
// per-host rate budget and size cap as chapter fetches.
func (s *ChapterService) Proxy(ctx context.Context, rawURL string) (*scraper.Page, error) {
	page, err := s.scraper.Fetch(ctx, rawURL)
	if err != nil {
		return nil, scrapeError(err)
	}
	return page, nil
}

func (s *ChapterService) getChapter(ctx context.Context, novelID string, index int) (*domain.Chapter, error) {
	chapter, err := s.store.GetChapter(ctx, novelID, index)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("chapter not found")
		}
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return chapter, nil
}

// fetchChapter downloads, extracts, and caches a chapter body. Readers
// hitting the same unfetched chapter share one scrape.
func (s *ChapterService) fetchChapter(ctx context.Context, novel *domain.Novel, chapter *domain.Chapter) (*domain.Chapter, error) {
	key := fmt.Sprintf("%s/%d", chapter.NovelID, chapter.Index)

	result, err, _ := s.fetchGroup.Do(key, func() (any, error) {
		// The fetch serves every waiter, so it must not die with the
		// first caller. The scraper's own timeout still bounds it.
		return s.doFetch(context.WithoutCancel(ctx), novel, chapter)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Chapter), nil
}

func (s *ChapterService) doFetch(ctx context.Context, novel *domain.Novel, chapter *domain.Chapter) (*domain.Chapter, error) {
	if chapter.SourceURL == "" {
		return nil, domainerrors.Conflict("chapter has no source URL")
	}

	page, err := s.scraper.Fetch(ctx, chapter.SourceURL)
	if err != nil {
		return nil, scrapeError(err)
	}

	content, err := scraper.ExtractChapter(page.Body)
	if err != nil {
		return nil, scrapeError(err)
	}

	markdown := scraper.ToMarkdown(content.HTML, content.Text)
	wordCount := scraper.WordCount(content.Text)

	previousWords := chapter.WordCount
	if err := s.store.UpdateChapterContent(ctx, chapter.NovelID, chapter.Index, markdown, wordCount); err != nil {
		return nil, fmt.Errorf("cache chapter: %w", err)
	}

	// Reload for the stored FetchedAt stamp.
	updated, err := s.store.GetChapter(ctx, chapter.NovelID, chapter.Index)
	if err != nil {
		return nil, fmt.Errorf("reload chapter: %w", err)
	}

	s.updateNovelWordCount(ctx, novel, wordCount-previousWords)

	s.logger.Info("chapter fetched",
		"novel_id", chapter.NovelID,
		"chapter_index", chapter.Index,
		"words", wordCount,
	)

	s.emitter.Emit(sse.NewChapterFetchedEvent(novel.OwnerID, updated))

	return updated, nil
}

// updateNovelWordCount folds a fetched chapter's words into the novel
// total. Best effort; the total is display data.
func (s *ChapterService) updateNovelWordCount(ctx context.Context, novel *domain.Novel, delta int) {
	if delta == 0 {
		return
	}

	novel.WordCount += int64(delta)
	if novel.WordCount < 0 {
		novel.WordCount = 0
	}

	if err := s.store.UpdateNovel(ctx, novel); err != nil {
		s.logger.Warn("update novel word count failed",
			"novel_id", novel.ID,
			"error", err,
		)
		return
	}

	s.novels.indexNovel(novel)
}
