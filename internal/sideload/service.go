package sideload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/scraper"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/util"
)

const (
	// archiveDirName is the inbox subdirectory imported files move to.
	archiveDirName = "done"

	// maxImportSize caps manuscript size. Plain text novels run to a
	// few megabytes at most.
	maxImportSize = 20 << 20
)

// Store is the subset of the data layer the importer needs.
type Store interface {
	GetRootUser(ctx context.Context) (*domain.User, error)
	CreateNovel(ctx context.Context, novel *domain.Novel) error
	ReplaceChapters(ctx context.Context, novelID string, chapters []domain.Chapter) error
}

// EventEmitter is the subset of the SSE manager the service needs.
type EventEmitter interface {
	Emit(event sse.Event)
}

// Service watches the inbox directory and imports dropped manuscripts
// as local novels owned by the root account.
type Service struct {
	store   Store
	emitter EventEmitter
	logger  *slog.Logger

	inboxDir   string
	archiveDir string
	settle     time.Duration

	watcher *Watcher
	//nolint:containedctx // Context needed for worker lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the sideload service for the configured inbox.
func NewService(cfg config.SideloadConfig, st Store, emitter EventEmitter, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      st,
		emitter:    emitter,
		logger:     logger,
		inboxDir:   cfg.InboxPath,
		archiveDir: filepath.Join(cfg.InboxPath, archiveDirName),
		settle:     defaultSettleDelay,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start creates the inbox directories and begins watching for drops.
// Files already sitting in the inbox are imported first.
func (s *Service) Start() error {
	if err := os.MkdirAll(s.inboxDir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create inbox archive: %w", err)
	}

	watcher, err := NewWatcher(s.inboxDir, s.settle, s.logger)
	if err != nil {
		return err
	}
	s.watcher = watcher
	s.watcher.Start(s.ctx)

	s.logger.Info("sideload inbox watching", slog.String("path", s.inboxDir))

	s.wg.Add(1)
	go s.run()

	return nil
}

// Stop stops watching the inbox. An in-flight import finishes first.
func (s *Service) Stop() {
	s.cancel()
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.wg.Wait()
	s.logger.Info("sideload inbox stopped")
}

// run sweeps leftovers, then drains watcher events until shutdown.
// Imports run one at a time; drops are rare and an import is quick.
func (s *Service) run() {
	defer s.wg.Done()

	s.importExisting()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			s.handleFile(event.Path)
		}
	}
}

// importExisting picks up files dropped while the server was down.
func (s *Service) importExisting() {
	entries, err := os.ReadDir(s.inboxDir)
	if err != nil {
		s.logger.Warn("inbox sweep failed", "error", err)
		return
	}

	for _, entry := range entries {
		if s.ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		s.handleFile(filepath.Join(s.inboxDir, entry.Name()))
	}
}

// handleFile imports one settled file and archives it. Files that
// cannot be imported stay in place so the problem is visible on disk.
func (s *Service) handleFile(path string) {
	base := filepath.Base(path)

	if ignoredFile(path) {
		return
	}
	if !importableFile(path) {
		s.logger.Debug("skipping non-manuscript file", slog.String("file", base))
		return
	}

	novel, err := s.importFile(s.ctx, path)
	if err != nil {
		s.logger.Warn("sideload import failed",
			slog.String("file", base),
			"error", err)
		return
	}

	if _, err := s.archive(path); err != nil {
		s.logger.Warn("failed to archive imported file",
			slog.String("file", base),
			"error", err)
	}

	s.emitter.Emit(sse.NewSideloadImportedEvent(novel.ID, novel.Title, base, novel.ChapterCount))

	s.logger.Info("manuscript imported",
		slog.String("file", base),
		slog.String("novel_id", novel.ID),
		slog.String("title", novel.Title),
		slog.Int("chapters", novel.ChapterCount))
}

// importFile parses a manuscript and stores it as a novel with every
// chapter body already present.
func (s *Service) importFile(ctx context.Context, path string) (*domain.Novel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxImportSize {
		return nil, fmt.Errorf("file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}

	// Sideloaded novels belong to the root account. Before setup has
	// run there is nobody to own them, so the file stays in the inbox.
	owner, err := s.store.GetRootUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}

	novelID, err := id.Generate("nvl")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	chapters := make([]domain.Chapter, 0, len(doc.Chapters))
	var totalWords int64
	for i, draft := range doc.Chapters {
		words := scraper.WordCount(draft.Content)
		totalWords += int64(words)
		fetchedAt := now
		chapters = append(chapters, domain.Chapter{
			NovelID:   novelID,
			Index:     i,
			Title:     draft.Title,
			Content:   draft.Content,
			WordCount: words,
			FetchedAt: &fetchedAt,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	// A dropped manuscript is a finished text, not a serial to follow.
	novel := &domain.Novel{
		OwnerID:      owner.ID,
		Title:        doc.Title,
		Author:       doc.Author,
		Slug:         util.Slugify(doc.Title),
		Status:       domain.NovelStatusCompleted,
		Tags:         []string{"local"},
		ChapterCount: len(chapters),
		WordCount:    totalWords,
	}
	novel.ID = novelID
	novel.InitTimestamps()

	if err := s.store.CreateNovel(ctx, novel); err != nil {
		return nil, fmt.Errorf("create novel: %w", err)
	}
	if err := s.store.ReplaceChapters(ctx, novelID, chapters); err != nil {
		return nil, fmt.Errorf("store chapters: %w", err)
	}

	return novel, nil
}

// archive moves an imported file into the done directory. A name
// collision gets a timestamp suffix instead of overwriting the
// earlier archive.
func (s *Service) archive(path string) (string, error) {
	base := filepath.Base(path)
	target := filepath.Join(s.archiveDir, base)

	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		target = filepath.Join(s.archiveDir,
			fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// importableFile reports whether the extension is one the parser
// understands.
func importableFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	default:
		return false
	}
}
