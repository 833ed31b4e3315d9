package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/id"
	"github.com/folioapp/folio-server/internal/search"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (c *captureEmitter) Emit(e sse.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) byType(eventType sse.EventType) []sse.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []sse.Event
	for _, e := range c.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type annotationTestEnv struct {
	annotations *AnnotationService
	store       *sqlite.Store
	index       *search.SearchIndex
	emitter     *captureEmitter
	user        *domain.User
	novel       *domain.Novel
}

// setupAnnotationTest builds the annotation stack against a temporary
// database and an in-memory search index, seeded with one user and novel.
func setupAnnotationTest(t *testing.T) *annotationTestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := sqlite.Open(filepath.Join(tmpDir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewSearchIndex(search.Options{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	emitter := &captureEmitter{}
	novels := NewNovelService(st, nil, nil, nil, index, emitter, logger)
	annotations := NewAnnotationService(st, novels, index, emitter, logger)

	user := createTestUser(t, st, "reader@example.com", "SecurePassword123!")
	novel := createTestNovel(t, st, user.ID, "The Wandering Inn")

	return &annotationTestEnv{
		annotations: annotations,
		store:       st,
		index:       index,
		emitter:     emitter,
		user:        user,
		novel:       novel,
	}
}

// createTestNovel inserts a novel row directly into the store.
func createTestNovel(t *testing.T, st *sqlite.Store, ownerID, title string) *domain.Novel {
	t.Helper()

	novelID, err := id.Generate("nvl")
	require.NoError(t, err)

	novel := &domain.Novel{
		Syncable:  domain.Syncable{ID: novelID},
		OwnerID:   ownerID,
		Title:     title,
		Author:    "pirateaba",
		Slug:      "the-wandering-inn",
		SourceURL: "https://example.com/novels/" + novelID,
		Language:  "en",
		Status:    domain.NovelStatusOngoing,
	}
	novel.InitTimestamps()

	require.NoError(t, st.CreateNovel(context.Background(), novel))
	return novel
}

// testAnnotation builds a valid annotation for the given scope.
func testAnnotation(annotationID string, chapterIndex, startOffset int) *domain.Annotation {
	return &domain.Annotation{
		ID:           annotationID,
		ChapterIndex: chapterIndex,
		Kind:         domain.AnnotationKindHighlight,
		Color:        domain.AnnotationColorGreen,
		SelectedText: "No killing Goblins.",
		StartOffset:  startOffset,
		EndOffset:    startOffset + 19,
	}
}

func TestAnnotationService_Sync_CreatesAnnotations(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	changes := []domain.AnnotationChange{
		{ID: "dev-a-1", Annotation: testAnnotation("dev-a-1", 2, 340)},
		{ID: "dev-a-2", Annotation: testAnnotation("dev-a-2", 1, 80)},
	}

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, changes)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Deleted)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.ValidationFailures)
	assert.False(t, result.ServerTime.IsZero())

	// Snapshot is ordered by chapter, then start offset.
	require.Len(t, result.Annotations, 2)
	assert.Equal(t, "dev-a-2", result.Annotations[0].ID)
	assert.Equal(t, "dev-a-1", result.Annotations[1].ID)
	for _, a := range result.Annotations {
		assert.Equal(t, env.user.ID, a.OwnerID)
		assert.Equal(t, env.novel.ID, a.NovelID)
		assert.False(t, a.SyncedAt.IsZero())
	}

	events := env.emitter.byType(sse.EventAnnotationsSynced)
	require.Len(t, events, 1)
	assert.Equal(t, env.user.ID, events[0].UserID)
	data, ok := events[0].Data.(sse.AnnotationsSyncedEventData)
	require.True(t, ok)
	assert.Equal(t, env.novel.ID, data.NovelID)
	assert.Equal(t, 2, data.Created)
}

func TestAnnotationService_Sync_AssignsServerIDs(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	// A client that crashed before assigning IDs can still upload.
	changes := []domain.AnnotationChange{
		{Annotation: testAnnotation("", 0, 10)},
	}

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, changes)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Annotations, 1)
	assert.NotEmpty(t, result.Annotations[0].ID)
}

func TestAnnotationService_Sync_LastWriteWins(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	seed := testAnnotation("dev-a-1", 0, 10)
	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: seed.ID, Annotation: seed},
	})
	require.NoError(t, err)

	stored, err := env.store.GetAnnotation(ctx, "dev-a-1", env.user.ID)
	require.NoError(t, err)

	edit := testAnnotation("dev-a-1", 0, 10)
	edit.Color = domain.AnnotationColorPink
	edit.Note = "Erin's first rule"
	edit.UpdatedAt = stored.UpdatedAt.Add(time.Minute)

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: edit.ID, Annotation: edit},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Annotations, 1)
	merged := result.Annotations[0]
	assert.Equal(t, domain.AnnotationColorPink, merged.Color)
	assert.Equal(t, "Erin's first rule", merged.Note)
	assert.True(t, merged.CreatedAt.Equal(stored.CreatedAt), "creation time never moves")
}

func TestAnnotationService_Sync_StaleEditBecomesConflict(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	seed := testAnnotation("dev-a-1", 0, 10)
	seed.UpdatedAt = time.Now()
	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: seed.ID, Annotation: seed},
	})
	require.NoError(t, err)

	stale := testAnnotation("dev-a-1", 0, 10)
	stale.Note = "from the device that was offline all week"
	stale.UpdatedAt = seed.UpdatedAt.Add(-time.Hour)

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: stale.ID, Annotation: stale},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Updated)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "dev-a-1", result.Conflicts[0].ID)
	assert.True(t, result.Conflicts[0].ClientUpdatedAt.Before(result.Conflicts[0].ServerUpdatedAt))

	// Server record stands.
	require.Len(t, result.Annotations, 1)
	assert.Empty(t, result.Annotations[0].Note)

	// A losing batch changes nothing, so no event goes out.
	assert.Len(t, env.emitter.byType(sse.EventAnnotationsSynced), 1)
}

func TestAnnotationService_Sync_RetransmitIsIdempotent(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	a := testAnnotation("dev-a-1", 0, 10)
	a.UpdatedAt = time.Now().Truncate(time.Millisecond)
	batch := []domain.AnnotationChange{{ID: a.ID, Annotation: a}}

	first, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	// Same timestamps on the retry; the tie goes to the client.
	retry, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Updated)
	assert.Empty(t, retry.Conflicts)
	require.Len(t, retry.Annotations, 1)
}

func TestAnnotationService_Sync_Tombstones(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "dev-a-1", Annotation: testAnnotation("dev-a-1", 0, 10)},
		{ID: "dev-a-2", Annotation: testAnnotation("dev-a-2", 0, 50)},
	})
	require.NoError(t, err)

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "dev-a-1", Deleted: true},
		{ID: "never-existed", Deleted: true},
	})
	require.NoError(t, err)

	// Deleting something already gone is a no-op, not an error.
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.ValidationFailures)
	require.Len(t, result.Annotations, 1)
	assert.Equal(t, "dev-a-2", result.Annotations[0].ID)
}

func TestAnnotationService_Sync_TombstoneWithoutID(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{Deleted: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Deleted)
	require.Len(t, result.ValidationFailures, 1)
	assert.Contains(t, result.ValidationFailures[0].Reason, "id is required")
}

func TestAnnotationService_Sync_InvalidRecordsAreReported(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	empty := testAnnotation("dev-bad", 0, 10)
	empty.SelectedText = ""

	backwards := testAnnotation("dev-worse", 0, 10)
	backwards.StartOffset = 100
	backwards.EndOffset = 40

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: empty.ID, Annotation: empty},
		{ID: "dev-good", Annotation: testAnnotation("dev-good", 0, 10)},
		{ID: backwards.ID, Annotation: backwards},
	})
	require.NoError(t, err)

	// The valid record still lands; the broken ones are reported, not fatal.
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.ValidationFailures, 2)
	assert.Equal(t, "dev-bad", result.ValidationFailures[0].ID)
	assert.Contains(t, result.ValidationFailures[0].Reason, "selected_text")
	assert.Equal(t, "dev-worse", result.ValidationFailures[1].ID)
	assert.Contains(t, result.ValidationFailures[1].Reason, "start_offset")

	require.Len(t, result.Annotations, 1)
	assert.Equal(t, "dev-good", result.Annotations[0].ID)
}

func TestAnnotationService_Sync_ScopeIsEnforced(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()
	other := createTestNovel(t, env.store, env.user.ID, "Mother of Learning")

	// Record claims a different novel; the route scope wins.
	rogue := testAnnotation("dev-a-1", 0, 10)
	rogue.NovelID = other.ID
	rogue.OwnerID = "usr-somebody-else"

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: rogue.ID, Annotation: rogue},
	})
	require.NoError(t, err)

	require.Len(t, result.Annotations, 1)
	assert.Equal(t, env.novel.ID, result.Annotations[0].NovelID)
	assert.Equal(t, env.user.ID, result.Annotations[0].OwnerID)

	otherSide, err := env.store.ListAnnotationsByNovel(ctx, env.user.ID, other.ID)
	require.NoError(t, err)
	assert.Empty(t, otherSide)
}

func TestAnnotationService_Sync_UnknownColorCoerced(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	a := testAnnotation("dev-a-1", 0, 10)
	a.Color = "chartreuse"

	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: a.ID, Annotation: a},
	})
	require.NoError(t, err)

	require.Len(t, result.Annotations, 1)
	assert.Equal(t, domain.DefaultAnnotationColor, result.Annotations[0].Color)
}

func TestAnnotationService_Sync_EmptyBatchReturnsSnapshot(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "dev-a-1", Annotation: testAnnotation("dev-a-1", 0, 10)},
	})
	require.NoError(t, err)
	before := len(env.emitter.byType(sse.EventAnnotationsSynced))

	// An empty batch is how a fresh device pulls the current state.
	result, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created+result.Updated+result.Deleted)
	require.Len(t, result.Annotations, 1)
	assert.Len(t, env.emitter.byType(sse.EventAnnotationsSynced), before)
}

func TestAnnotationService_Sync_UnknownNovel(t *testing.T) {
	env := setupAnnotationTest(t)

	_, err := env.annotations.Sync(context.Background(), env.user.ID, "nvl-missing", nil)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAnnotationService_Sync_OtherUsersNovel(t *testing.T) {
	env := setupAnnotationTest(t)
	stranger := createTestUser(t, env.store, "stranger@example.com", "SecurePassword123!")

	_, err := env.annotations.Sync(context.Background(), stranger.ID, env.novel.ID, nil)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAnnotationService_Sync_MaintainsSearchIndex(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "dev-a-1", Annotation: testAnnotation("dev-a-1", 0, 10)},
		{ID: "dev-a-2", Annotation: testAnnotation("dev-a-2", 1, 10)},
	})
	require.NoError(t, err)

	count, err := env.index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	_, err = env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "dev-a-1", Deleted: true},
	})
	require.NoError(t, err)

	count, err = env.index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestAnnotationService_Create(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	created, err := env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("", 3, 120))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, env.user.ID, created.OwnerID)
	assert.Equal(t, env.novel.ID, created.NovelID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.SyncedAt.IsZero())

	stored, err := env.store.GetAnnotation(ctx, created.ID, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, created.SelectedText, stored.SelectedText)
}

func TestAnnotationService_Create_Duplicate(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	_, err := env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("dev-a-1", 0, 10))
	require.NoError(t, err)

	_, err = env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("dev-a-1", 0, 10))
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)
}

func TestAnnotationService_Create_Invalid(t *testing.T) {
	env := setupAnnotationTest(t)

	bad := testAnnotation("", 0, 10)
	bad.EndOffset = bad.StartOffset

	_, err := env.annotations.Create(context.Background(), env.user.ID, env.novel.ID, bad)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestAnnotationService_Update(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	created, err := env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("dev-a-1", 0, 10))
	require.NoError(t, err)

	color := "blue"
	note := "reread this before book two"
	updated, err := env.annotations.Update(ctx, env.user.ID, created.ID, UpdateAnnotationRequest{
		Color: &color,
		Note:  &note,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AnnotationColorBlue, updated.Color)
	assert.Equal(t, note, updated.Note)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	assert.Equal(t, created.SelectedText, updated.SelectedText)
}

func TestAnnotationService_Update_CoercesUnknownColor(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	created, err := env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("dev-a-1", 0, 10))
	require.NoError(t, err)

	color := "taupe"
	updated, err := env.annotations.Update(ctx, env.user.ID, created.ID, UpdateAnnotationRequest{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAnnotationColor, updated.Color)
}

func TestAnnotationService_Update_NotFound(t *testing.T) {
	env := setupAnnotationTest(t)

	note := "lost"
	_, err := env.annotations.Update(context.Background(), env.user.ID, "missing", UpdateAnnotationRequest{Note: &note})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAnnotationService_Delete(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	created, err := env.annotations.Create(ctx, env.user.ID, env.novel.ID, testAnnotation("dev-a-1", 0, 10))
	require.NoError(t, err)

	require.NoError(t, env.annotations.Delete(ctx, env.user.ID, created.ID))

	_, err = env.annotations.Update(ctx, env.user.ID, created.ID, UpdateAnnotationRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	err = env.annotations.Delete(ctx, env.user.ID, created.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAnnotationService_List(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
		{ID: "ch2-late", Annotation: testAnnotation("ch2-late", 2, 500)},
		{ID: "ch0", Annotation: testAnnotation("ch0", 0, 10)},
		{ID: "ch2-early", Annotation: testAnnotation("ch2-early", 2, 40)},
	})
	require.NoError(t, err)

	all, err := env.annotations.List(ctx, env.user.ID, env.novel.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ch0", all[0].ID)
	assert.Equal(t, "ch2-early", all[1].ID)
	assert.Equal(t, "ch2-late", all[2].ID)

	chapter := 2
	scoped, err := env.annotations.List(ctx, env.user.ID, env.novel.ID, &chapter)
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, "ch2-early", scoped[0].ID)

	empty, err := env.annotations.List(ctx, env.user.ID, env.novel.ID, intPtr(7))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAnnotationService_Sync_ConcurrentBatchesSerialize(t *testing.T) {
	env := setupAnnotationTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a := testAnnotation("", n, 10)
			_, err := env.annotations.Sync(ctx, env.user.ID, env.novel.ID, []domain.AnnotationChange{
				{Annotation: a},
			})
			errs[n] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	all, err := env.annotations.List(ctx, env.user.ID, env.novel.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func intPtr(v int) *int { return &v }
