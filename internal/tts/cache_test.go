package tts

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/folioapp/folio-server/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(t.TempDir(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() {
		if err := cache.Close(); err != nil {
			t.Errorf("failed to close cache: %v", err)
		}
	})
	return cache
}

func testJob(id string, status domain.ReadaloudStatus) *domain.ReadaloudJob {
	now := time.Now().UTC()
	return &domain.ReadaloudJob{
		ID:           id,
		OwnerID:      "usr-1",
		NovelID:      "nvl-1",
		ChapterIndex: 3,
		Voice:        "en-US-AriaNeural",
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCache_PutGetJob(t *testing.T) {
	cache := newTestCache(t)

	job := testJob("j1", domain.ReadaloudStatusPending)
	if err := cache.PutJob(job); err != nil {
		t.Fatalf("failed to put job: %v", err)
	}

	got, err := cache.GetJob("j1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}

	if got.ID != "j1" {
		t.Errorf("expected ID 'j1', got %q", got.ID)
	}
	if got.OwnerID != "usr-1" {
		t.Errorf("expected owner 'usr-1', got %q", got.OwnerID)
	}
	if got.NovelID != "nvl-1" {
		t.Errorf("expected novel 'nvl-1', got %q", got.NovelID)
	}
	if got.ChapterIndex != 3 {
		t.Errorf("expected chapter index 3, got %d", got.ChapterIndex)
	}
	if got.Status != domain.ReadaloudStatusPending {
		t.Errorf("expected pending status, got %q", got.Status)
	}
}

func TestCache_GetJob_Miss(t *testing.T) {
	cache := newTestCache(t)

	_, err := cache.GetJob("nope")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestCache_PutJob_Replaces(t *testing.T) {
	cache := newTestCache(t)

	job := testJob("j1", domain.ReadaloudStatusPending)
	if err := cache.PutJob(job); err != nil {
		t.Fatalf("failed to put job: %v", err)
	}

	job.Status = domain.ReadaloudStatusCompleted
	job.Segments = []domain.ReadaloudSegment{{Index: 0, Format: "mp3", DurationSec: 1.5}}
	if err := cache.PutJob(job); err != nil {
		t.Fatalf("failed to update job: %v", err)
	}

	got, err := cache.GetJob("j1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if got.Status != domain.ReadaloudStatusCompleted {
		t.Errorf("expected completed status, got %q", got.Status)
	}
	if len(got.Segments) != 1 {
		t.Errorf("expected 1 segment, got %d", len(got.Segments))
	}
}

func TestCache_DeleteJob_RemovesAudio(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.PutJob(testJob("j1", domain.ReadaloudStatusCompleted)); err != nil {
		t.Fatalf("failed to put job: %v", err)
	}
	if err := cache.PutSegmentAudio("j1", 0, []byte("audio-0")); err != nil {
		t.Fatalf("failed to put audio: %v", err)
	}
	if err := cache.PutSegmentAudio("j1", 1, []byte("audio-1")); err != nil {
		t.Fatalf("failed to put audio: %v", err)
	}

	// A different job's audio must survive the delete
	if err := cache.PutSegmentAudio("j2", 0, []byte("other")); err != nil {
		t.Fatalf("failed to put audio: %v", err)
	}

	if err := cache.DeleteJob("j1"); err != nil {
		t.Fatalf("failed to delete job: %v", err)
	}

	if _, err := cache.GetJob("j1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected job to be gone, got %v", err)
	}
	if _, err := cache.GetSegmentAudio("j1", 0); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected segment 0 audio to be gone, got %v", err)
	}
	if _, err := cache.GetSegmentAudio("j1", 1); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected segment 1 audio to be gone, got %v", err)
	}

	other, err := cache.GetSegmentAudio("j2", 0)
	if err != nil {
		t.Fatalf("other job's audio should survive: %v", err)
	}
	if string(other) != "other" {
		t.Errorf("other job's audio corrupted: %q", other)
	}
}

func TestCache_ActiveJobs(t *testing.T) {
	cache := newTestCache(t)

	jobs := []*domain.ReadaloudJob{
		testJob("j1", domain.ReadaloudStatusPending),
		testJob("j2", domain.ReadaloudStatusProcessing),
		testJob("j3", domain.ReadaloudStatusCompleted),
		testJob("j4", domain.ReadaloudStatusFailed),
	}
	for _, job := range jobs {
		if err := cache.PutJob(job); err != nil {
			t.Fatalf("failed to put job %s: %v", job.ID, err)
		}
	}

	active, err := cache.ActiveJobs()
	if err != nil {
		t.Fatalf("failed to list active jobs: %v", err)
	}

	if len(active) != 2 {
		t.Fatalf("expected 2 active jobs, got %d", len(active))
	}
	for _, job := range active {
		if job.Status.IsTerminal() {
			t.Errorf("job %s is terminal but listed as active", job.ID)
		}
	}
}

func TestCache_JobsForOwner(t *testing.T) {
	cache := newTestCache(t)

	older := testJob("j1", domain.ReadaloudStatusCompleted)
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := testJob("j2", domain.ReadaloudStatusPending)

	someoneElse := testJob("j3", domain.ReadaloudStatusPending)
	someoneElse.OwnerID = "usr-2"

	for _, job := range []*domain.ReadaloudJob{older, newer, someoneElse} {
		if err := cache.PutJob(job); err != nil {
			t.Fatalf("failed to put job %s: %v", job.ID, err)
		}
	}

	got, err := cache.JobsForOwner("usr-1")
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 jobs for usr-1, got %d", len(got))
	}
	// Newest first
	if got[0].ID != "j2" || got[1].ID != "j1" {
		t.Errorf("expected order [j2 j1], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestCache_SegmentAudio(t *testing.T) {
	cache := newTestCache(t)

	audio := []byte("ID3\x03pretend this is mp3")
	if err := cache.PutSegmentAudio("j1", 0, audio); err != nil {
		t.Fatalf("failed to put audio: %v", err)
	}

	got, err := cache.GetSegmentAudio("j1", 0)
	if err != nil {
		t.Fatalf("failed to get audio: %v", err)
	}
	if string(got) != string(audio) {
		t.Error("audio bytes do not match")
	}

	if _, err := cache.GetSegmentAudio("j1", 1); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for missing segment, got %v", err)
	}
}

func TestCache_EntriesCarryTTL(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.PutJob(testJob("j1", domain.ReadaloudStatusPending)); err != nil {
		t.Fatalf("failed to put job: %v", err)
	}

	err := cache.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + "j1"))
		if err != nil {
			return err
		}

		expires := item.ExpiresAt()
		if expires == 0 {
			t.Error("expected entry to carry a TTL")
			return nil
		}

		// Roughly one hour out
		want := time.Now().Add(time.Hour).Unix()
		if diff := int64(expires) - want; diff < -60 || diff > 60 {
			t.Errorf("expected expiry near %d, got %d", want, expires)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to inspect entry: %v", err)
	}
}
