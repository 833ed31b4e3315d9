package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/search"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// AnnotationService reconciles reading annotations across a user's
// devices. Batched sync is the primary operation; single-record CRUD
// exists for interactive edits and rides the same storage semantics.
type AnnotationService struct {
	store   *sqlite.Store
	novels  *NovelService
	index   *search.SearchIndex
	emitter EventEmitter
	logger  *slog.Logger

	// One lock per (owner, novel) scope. Two devices syncing the same
	// novel apply their batches in sequence, so each response snapshot
	// reflects a batch boundary rather than an interleaving.
	syncLocks sync.Map
}

// NewAnnotationService creates a new annotation service.
func NewAnnotationService(
	st *sqlite.Store,
	novels *NovelService,
	index *search.SearchIndex,
	emitter EventEmitter,
	logger *slog.Logger,
) *AnnotationService {
	return &AnnotationService{
		store:   st,
		novels:  novels,
		index:   index,
		emitter: emitter,
		logger:  logger,
	}
}

// Sync applies a device's annotation batch for one novel and returns
// counts, conflicts, skipped records, and the full post-sync snapshot.
// Changes lacking an ID are assigned one server-side; tombstones without
// an ID identify nothing and are reported as validation failures.
func (s *AnnotationService) Sync(ctx context.Context, ownerID, novelID string, changes []domain.AnnotationChange) (*domain.AnnotationSyncResult, error) {
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	applicable := make([]domain.AnnotationChange, 0, len(changes))
	var preFailures []domain.AnnotationSyncFailure
	for _, change := range changes {
		if change.ID == "" {
			if change.Deleted {
				preFailures = append(preFailures, domain.AnnotationSyncFailure{
					Reason: "id is required to delete an annotation",
				})
				continue
			}
			change.ID = uuid.New().String()
		}
		if change.Annotation != nil {
			// The route scopes the batch; records cannot reach past it.
			change.Annotation.ID = change.ID
			change.Annotation.OwnerID = ownerID
			change.Annotation.NovelID = novelID
		}
		applicable = append(applicable, change)
	}

	unlock := s.lockScope(ownerID + "/" + novelID)
	defer unlock()

	// One clock read covers the whole batch: server_time is taken here,
	// just before the transaction, rather than at commit. The scope lock
	// serializes batches, so nothing can observe the gap, and it keeps
	// synced_at equal to server_time for every record the batch touched.
	result, err := s.store.SyncAnnotations(ctx, ownerID, novelID, applicable, time.Now())
	if err != nil {
		return nil, fmt.Errorf("sync annotations: %w", err)
	}
	result.ValidationFailures = append(result.ValidationFailures, preFailures...)

	s.reindexChanges(ownerID, applicable, result.Annotations)

	s.logger.Info("annotations synced",
		"owner_id", ownerID,
		"novel_id", novelID,
		"batch", len(changes),
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"conflicts", len(result.Conflicts),
		"invalid", len(result.ValidationFailures),
	)

	if result.Created+result.Updated+result.Deleted > 0 {
		s.emitter.Emit(sse.NewAnnotationsSyncedEvent(
			ownerID, novelID,
			result.Created, result.Updated, result.Deleted,
			result.ServerTime,
		))
	}

	return result, nil
}

// List returns a novel's annotations in reading order, optionally
// narrowed to one chapter.
func (s *AnnotationService) List(ctx context.Context, ownerID, novelID string, chapterIndex *int) ([]*domain.Annotation, error) {
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	var annotations []*domain.Annotation
	var err error
	if chapterIndex != nil {
		annotations, err = s.store.ListAnnotationsByChapter(ctx, ownerID, novelID, *chapterIndex)
	} else {
		annotations, err = s.store.ListAnnotationsByNovel(ctx, ownerID, novelID)
	}
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	if annotations == nil {
		annotations = []*domain.Annotation{}
	}
	return annotations, nil
}

// Create stores a single new annotation. Interactive creation from a
// connected device; offline batches go through Sync.
func (s *AnnotationService) Create(ctx context.Context, ownerID, novelID string, a *domain.Annotation) (*domain.Annotation, error) {
	if _, err := s.novels.GetNovel(ctx, ownerID, novelID); err != nil {
		return nil, err
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.OwnerID = ownerID
	a.NovelID = novelID
	a.Color = domain.NormalizeAnnotationColor(a.Color)

	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	a.SyncedAt = now

	if err := a.Validate(); err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	if _, err := s.store.GetAnnotation(ctx, a.ID, ownerID); err == nil {
		return nil, domainerrors.AlreadyExists("annotation already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check annotation: %w", err)
	}

	if err := s.store.UpsertAnnotation(ctx, a); err != nil {
		return nil, fmt.Errorf("create annotation: %w", err)
	}

	s.indexAnnotation(a)

	s.emitter.Emit(sse.NewAnnotationsSyncedEvent(ownerID, novelID, 1, 0, 0, now))

	return a, nil
}

// UpdateAnnotationRequest contains interactive edits to an annotation.
// Nil fields are left untouched. Unknown colors are coerced to the
// default palette entry rather than rejected.
type UpdateAnnotationRequest struct {
	Color *string `json:"color,omitempty"`
	Note  *string `json:"note,omitempty" validate:"omitempty,max=10000"`
}

// Update applies an interactive edit to one annotation.
func (s *AnnotationService) Update(ctx context.Context, ownerID, annotationID string, req UpdateAnnotationRequest) (*domain.Annotation, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	a, err := s.getAnnotation(ctx, ownerID, annotationID)
	if err != nil {
		return nil, err
	}

	if req.Color != nil {
		a.Color = domain.NormalizeAnnotationColor(domain.AnnotationColor(*req.Color))
	}
	if req.Note != nil {
		a.Note = *req.Note
	}
	now := time.Now()
	a.UpdatedAt = now
	a.SyncedAt = now

	if err := s.store.UpsertAnnotation(ctx, a); err != nil {
		return nil, fmt.Errorf("update annotation: %w", err)
	}

	s.indexAnnotation(a)

	s.emitter.Emit(sse.NewAnnotationsSyncedEvent(ownerID, a.NovelID, 0, 1, 0, now))

	return a, nil
}

// Delete removes one annotation.
func (s *AnnotationService) Delete(ctx context.Context, ownerID, annotationID string) error {
	a, err := s.getAnnotation(ctx, ownerID, annotationID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteAnnotation(ctx, annotationID, a.NovelID, ownerID)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	if !deleted {
		return domainerrors.NotFound("annotation not found")
	}

	if err := s.index.DeleteDocument(search.AnnotationDocID(ownerID, annotationID)); err != nil {
		s.logger.Warn("deindex annotation failed", "annotation_id", annotationID, "error", err)
	}

	s.emitter.Emit(sse.NewAnnotationsSyncedEvent(ownerID, a.NovelID, 0, 0, 1, time.Now()))

	return nil
}

func (s *AnnotationService) getAnnotation(ctx context.Context, ownerID, annotationID string) (*domain.Annotation, error) {
	a, err := s.store.GetAnnotation(ctx, annotationID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("annotation not found")
		}
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return a, nil
}

// lockScope acquires the (owner, novel) sync lock and returns its
// release. Locks live for the life of the process; the keyspace is
// bounded by users times novels on a personal server.
func (s *AnnotationService) lockScope(key string) func() {
	v, _ := s.syncLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// reindexChanges updates search entries for the IDs a batch touched.
// Records surviving in the snapshot are (re)indexed with server state;
// the rest were deleted. Index trouble is logged, never returned.
func (s *AnnotationService) reindexChanges(ownerID string, changes []domain.AnnotationChange, snapshot []*domain.Annotation) {
	byID := make(map[string]*domain.Annotation, len(snapshot))
	for _, a := range snapshot {
		byID[a.ID] = a
	}

	var docs []*search.SearchDocument
	var removals []string
	for _, change := range changes {
		if a, ok := byID[change.ID]; ok {
			docs = append(docs, search.AnnotationToSearchDocument(a))
		} else {
			removals = append(removals, search.AnnotationDocID(ownerID, change.ID))
		}
	}

	if len(docs) > 0 {
		if err := s.index.IndexDocuments(docs); err != nil {
			s.logger.Warn("index annotations failed", "count", len(docs), "error", err)
		}
	}
	if len(removals) > 0 {
		if err := s.index.DeleteDocuments(removals); err != nil {
			s.logger.Warn("deindex annotations failed", "count", len(removals), "error", err)
		}
	}
}

// indexAnnotation updates one search entry, logging failures.
func (s *AnnotationService) indexAnnotation(a *domain.Annotation) {
	if err := s.index.IndexDocument(search.AnnotationToSearchDocument(a)); err != nil {
		s.logger.Warn("index annotation failed", "annotation_id", a.ID, "error", err)
	}
}
