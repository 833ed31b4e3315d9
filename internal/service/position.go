package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// PositionService tracks one reading position per (user, novel) so a
// reader can pick up on any device where the last one left off.
type PositionService struct {
	store   *sqlite.Store
	novels  *NovelService
	emitter EventEmitter
	logger  *slog.Logger
}

// NewPositionService creates a new position service.
func NewPositionService(st *sqlite.Store, novels *NovelService, emitter EventEmitter, logger *slog.Logger) *PositionService {
	return &PositionService{
		store:   st,
		novels:  novels,
		emitter: emitter,
		logger:  logger,
	}
}

// ReportPositionRequest is a device's claim about where the reader is.
// UpdatedAt is the device-local time of the last page turn; omitted
// timestamps are taken as now.
type ReportPositionRequest struct {
	ChapterIndex int       `json:"chapter_index" validate:"min=0"`
	Offset       int       `json:"offset" validate:"min=0"`
	Percent      float64   `json:"percent" validate:"min=0,max=1"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Report upserts a reading position, newest UpdatedAt wins. The returned
// position is the one that stands after the write, so a device whose
// stale report lost learns the fresher position in the same round trip.
func (s *PositionService) Report(ctx context.Context, userID, novelID string, req ReportPositionRequest) (*domain.ReadingPosition, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.novels.GetNovel(ctx, userID, novelID); err != nil {
		return nil, err
	}

	now := time.Now()
	pos := &domain.ReadingPosition{
		UserID:       userID,
		NovelID:      novelID,
		ChapterIndex: req.ChapterIndex,
		Offset:       req.Offset,
		Percent:      req.Percent,
		UpdatedAt:    req.UpdatedAt,
		SyncedAt:     now,
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = now
	}

	applied, err := s.store.UpsertPosition(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("upsert position: %w", err)
	}

	if !applied {
		// A newer device got here first; hand its position back.
		current, err := s.store.GetPosition(ctx, userID, novelID)
		if err != nil {
			return nil, fmt.Errorf("reload position: %w", err)
		}
		return current, nil
	}

	s.logger.Debug("position updated",
		"user_id", userID,
		"novel_id", novelID,
		"chapter_idx", pos.ChapterIndex,
		"percent", pos.Percent,
	)

	s.emitter.Emit(sse.NewPositionUpdatedEvent(pos))

	return pos, nil
}

// Get returns the reader's position in one novel.
func (s *PositionService) Get(ctx context.Context, userID, novelID string) (*domain.ReadingPosition, error) {
	if _, err := s.novels.GetNovel(ctx, userID, novelID); err != nil {
		return nil, err
	}

	pos, err := s.store.GetPosition(ctx, userID, novelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("no reading position for this novel")
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return pos, nil
}

// Delete clears the reader's position in one novel. Clearing a position
// that does not exist succeeds.
func (s *PositionService) Delete(ctx context.Context, userID, novelID string) error {
	if _, err := s.novels.GetNovel(ctx, userID, novelID); err != nil {
		return err
	}
	if err := s.store.DeletePosition(ctx, userID, novelID); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// ContinueReading returns the reader's most recently touched positions,
// newest first.
func (s *PositionService) ContinueReading(ctx context.Context, userID string, limit int) ([]*domain.ReadingPosition, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	positions, err := s.store.ListPositions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if positions == nil {
		positions = []*domain.ReadingPosition{}
	}
	return positions, nil
}

// SyncManifest is the single payload a device pulls on connect to learn
// everything it needs for an incremental sync: the library, every
// reading position, and per-novel annotation counts.
type SyncManifest struct {
	Novels           []*domain.Novel           `json:"novels"`
	Positions        []*domain.ReadingPosition `json:"positions"`
	AnnotationCounts map[string]int            `json:"annotation_counts"`
	ServerTime       time.Time                 `json:"server_time"`
}

// Manifest assembles the sync manifest for one user.
func (s *PositionService) Manifest(ctx context.Context, userID string) (*SyncManifest, error) {
	novels, err := s.store.ListAllNovels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manifest novels: %w", err)
	}
	if novels == nil {
		novels = []*domain.Novel{}
	}

	positions, err := s.store.ListAllPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manifest positions: %w", err)
	}
	if positions == nil {
		positions = []*domain.ReadingPosition{}
	}

	counts, err := s.store.CountAnnotationsByNovel(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manifest annotation counts: %w", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}

	return &SyncManifest{
		Novels:           novels,
		Positions:        positions,
		AnnotationCounts: counts,
		ServerTime:       time.Now(),
	}, nil
}
