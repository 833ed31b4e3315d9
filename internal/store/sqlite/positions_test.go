package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

func makeTestPosition(userID, novelID string) *domain.ReadingPosition {
	now := time.Now()
	return &domain.ReadingPosition{
		UserID:       userID,
		NovelID:      novelID,
		ChapterIndex: 3,
		Offset:       450,
		Percent:      0.31,
		UpdatedAt:    now,
		SyncedAt:     now,
	}
}

func TestUpsertAndGetPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newAnnotationFixture(t, s, "user-pos", "novel-pos")

	pos := makeTestPosition("user-pos", "novel-pos")
	applied, err := s.UpsertPosition(ctx, pos)
	if err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}
	if !applied {
		t.Error("expected first write to apply")
	}

	got, err := s.GetPosition(ctx, "user-pos", "novel-pos")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.ChapterIndex != 3 {
		t.Errorf("ChapterIndex: got %d, want 3", got.ChapterIndex)
	}
	if got.Offset != 450 {
		t.Errorf("Offset: got %d, want 450", got.Offset)
	}
	if got.Percent != 0.31 {
		t.Errorf("Percent: got %v, want 0.31", got.Percent)
	}
	if got.UpdatedAt.Unix() != pos.UpdatedAt.Unix() {
		t.Errorf("UpdatedAt: got %v, want %v", got.UpdatedAt, pos.UpdatedAt)
	}
	if got.SyncedAt.Unix() != pos.SyncedAt.Unix() {
		t.Errorf("SyncedAt: got %v, want %v", got.SyncedAt, pos.SyncedAt)
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPosition(ctx, "nobody", "nothing")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertPosition_NewerWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newAnnotationFixture(t, s, "user-pos-lww", "novel-pos-lww")

	base := time.Now().Add(-time.Hour)

	first := makeTestPosition("user-pos-lww", "novel-pos-lww")
	first.ChapterIndex = 2
	first.UpdatedAt = base
	if _, err := s.UpsertPosition(ctx, first); err != nil {
		t.Fatalf("UpsertPosition (first): %v", err)
	}

	// A later write from another device advances the position.
	second := makeTestPosition("user-pos-lww", "novel-pos-lww")
	second.ChapterIndex = 5
	second.Offset = 10
	second.UpdatedAt = base.Add(30 * time.Minute)
	applied, err := s.UpsertPosition(ctx, second)
	if err != nil {
		t.Fatalf("UpsertPosition (second): %v", err)
	}
	if !applied {
		t.Error("expected newer write to apply")
	}

	got, err := s.GetPosition(ctx, "user-pos-lww", "novel-pos-lww")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.ChapterIndex != 5 {
		t.Errorf("ChapterIndex: got %d, want 5", got.ChapterIndex)
	}
}

func TestUpsertPosition_StaleWriteDropped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newAnnotationFixture(t, s, "user-pos-stale", "novel-pos-stale")

	base := time.Now()

	current := makeTestPosition("user-pos-stale", "novel-pos-stale")
	current.ChapterIndex = 8
	current.UpdatedAt = base
	if _, err := s.UpsertPosition(ctx, current); err != nil {
		t.Fatalf("UpsertPosition (current): %v", err)
	}

	// An offline device comes back with an older position. It is dropped
	// without error so the device just converges on the next pull.
	stale := makeTestPosition("user-pos-stale", "novel-pos-stale")
	stale.ChapterIndex = 2
	stale.UpdatedAt = base.Add(-time.Hour)
	applied, err := s.UpsertPosition(ctx, stale)
	if err != nil {
		t.Fatalf("UpsertPosition (stale): %v", err)
	}
	if applied {
		t.Error("expected stale write to be dropped")
	}

	got, err := s.GetPosition(ctx, "user-pos-stale", "novel-pos-stale")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.ChapterIndex != 8 {
		t.Errorf("ChapterIndex: got %d, want 8 (stale write must not land)", got.ChapterIndex)
	}
}

func TestUpsertPosition_TieGoesToIncoming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newAnnotationFixture(t, s, "user-pos-tie", "novel-pos-tie")

	ts := time.Now()

	first := makeTestPosition("user-pos-tie", "novel-pos-tie")
	first.Offset = 100
	first.UpdatedAt = ts
	if _, err := s.UpsertPosition(ctx, first); err != nil {
		t.Fatalf("UpsertPosition (first): %v", err)
	}

	// A retried upload with the same timestamp still applies.
	retry := makeTestPosition("user-pos-tie", "novel-pos-tie")
	retry.Offset = 100
	retry.UpdatedAt = ts
	applied, err := s.UpsertPosition(ctx, retry)
	if err != nil {
		t.Fatalf("UpsertPosition (retry): %v", err)
	}
	if !applied {
		t.Error("expected equal-timestamp write to apply")
	}
}

func TestDeletePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newAnnotationFixture(t, s, "user-pos-del", "novel-pos-del")

	pos := makeTestPosition("user-pos-del", "novel-pos-del")
	if _, err := s.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}

	if err := s.DeletePosition(ctx, "user-pos-del", "novel-pos-del"); err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}

	_, err := s.GetPosition(ctx, "user-pos-del", "novel-pos-del")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing position is a no-op.
	if err := s.DeletePosition(ctx, "user-pos-del", "novel-pos-del"); err != nil {
		t.Errorf("DeletePosition (missing): %v", err)
	}
}

func TestListPositions_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		novelID := fmt.Sprintf("novel-shelf-%d", i)
		newAnnotationFixture(t, s, "user-shelf", novelID)

		pos := makeTestPosition("user-shelf", novelID)
		pos.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.UpsertPosition(ctx, pos); err != nil {
			t.Fatalf("UpsertPosition(%s): %v", novelID, err)
		}
	}

	positions, err := s.ListPositions(ctx, "user-shelf", 3)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("got %d positions, want 3 (limit)", len(positions))
	}

	// Most recently read first.
	wantOrder := []string{"novel-shelf-3", "novel-shelf-2", "novel-shelf-1"}
	for i, want := range wantOrder {
		if positions[i].NovelID != want {
			t.Errorf("position %d: got %s, want %s", i, positions[i].NovelID, want)
		}
	}
}
