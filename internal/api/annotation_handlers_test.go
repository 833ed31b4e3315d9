package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) syncAnnotations(t *testing.T, token, novelID string, annotations []map[string]any) testEnvelope[AnnotationSyncResponse] {
	t.Helper()

	resp := ts.api.Post("/api/v1/novels/"+novelID+"/annotations/sync",
		"Authorization: Bearer "+token,
		map[string]any{"annotations": annotations})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[AnnotationSyncResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope
}

func TestSyncAnnotations_CreatesNewRecords(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"id":            "ann_highlight_1",
			"kind":          "highlight",
			"color":         "blue",
			"chapter_index": 2,
			"start_offset":  40,
			"end_offset":    90,
			"selected_text": "the sentence worth keeping",
		},
	})

	assert.Equal(t, 1, envelope.Data.Created)
	assert.Equal(t, 0, envelope.Data.Updated)
	assert.Equal(t, 0, envelope.Data.Deleted)
	assert.Empty(t, envelope.Data.Conflicts)
	assert.Empty(t, envelope.Data.ValidationFailures)
	assert.False(t, envelope.Data.ServerTime.IsZero())

	require.Len(t, envelope.Data.Annotations, 1)
	got := envelope.Data.Annotations[0]
	assert.Equal(t, "ann_highlight_1", got.ID)
	assert.Equal(t, novel.ID, got.NovelID)
	assert.Equal(t, "highlight", got.Kind)
	assert.Equal(t, "blue", got.Color)
	assert.False(t, got.SyncedAt.IsZero())
}

func TestSyncAnnotations_AssignsMissingIDs(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"kind":          "note",
			"chapter_index": 0,
			"start_offset":  10,
			"end_offset":    20,
			"selected_text": "anchor text",
			"note":          "remember this",
		},
	})

	assert.Equal(t, 1, envelope.Data.Created)
	require.Len(t, envelope.Data.Annotations, 1)
	assert.NotEmpty(t, envelope.Data.Annotations[0].ID)
}

func TestSyncAnnotations_ResubmitSameTimestampIsIdempotent(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	record := map[string]any{
		"id":            "ann_retry",
		"kind":          "highlight",
		"chapter_index": 1,
		"start_offset":  5,
		"end_offset":    25,
		"selected_text": "resent after a dropped connection",
		"updated_at":    "2026-08-20T10:00:00Z",
	}

	first := ts.syncAnnotations(t, token, novel.ID, []map[string]any{record})
	assert.Equal(t, 1, first.Data.Created)

	// Equal timestamps resolve in the client's favor, so the retried
	// batch applies cleanly instead of reporting a conflict.
	second := ts.syncAnnotations(t, token, novel.ID, []map[string]any{record})
	assert.Equal(t, 0, second.Data.Created)
	assert.Equal(t, 1, second.Data.Updated)
	assert.Empty(t, second.Data.Conflicts)
	require.Len(t, second.Data.Annotations, 1)
}

func TestSyncAnnotations_StaleEditReportsConflict(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	serverTime := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	clientTime := serverTime.Add(-time.Hour)

	ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"id":            "ann_contested",
			"kind":          "highlight",
			"chapter_index": 4,
			"start_offset":  0,
			"end_offset":    30,
			"selected_text": "the fresher wording",
			"note":          "edited on the phone",
			"updated_at":    serverTime.Format(time.RFC3339),
		},
	})

	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"id":            "ann_contested",
			"kind":          "highlight",
			"chapter_index": 4,
			"start_offset":  0,
			"end_offset":    30,
			"selected_text": "the fresher wording",
			"note":          "stale edit from the e-reader",
			"updated_at":    clientTime.Format(time.RFC3339),
		},
	})

	assert.Equal(t, 0, envelope.Data.Created)
	assert.Equal(t, 0, envelope.Data.Updated)
	require.Len(t, envelope.Data.Conflicts, 1)
	conflict := envelope.Data.Conflicts[0]
	assert.Equal(t, "ann_contested", conflict.ID)
	assert.True(t, conflict.ClientUpdatedAt.Equal(clientTime))
	assert.True(t, conflict.ServerUpdatedAt.Equal(serverTime))

	// The server copy survives untouched.
	require.Len(t, envelope.Data.Annotations, 1)
	assert.Equal(t, "edited on the phone", envelope.Data.Annotations[0].Note)
}

func TestSyncAnnotations_TombstoneDeletes(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"id":            "ann_doomed",
			"kind":          "underline",
			"chapter_index": 0,
			"start_offset":  2,
			"end_offset":    9,
			"selected_text": "soon gone",
		},
	})

	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{"id": "ann_doomed", "deleted": true},
	})

	assert.Equal(t, 1, envelope.Data.Deleted)
	assert.Empty(t, envelope.Data.Annotations)

	// Deleting something already gone is a no-op, not an error.
	envelope = ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{"id": "ann_doomed", "deleted": true},
	})
	assert.Equal(t, 0, envelope.Data.Deleted)
	assert.Empty(t, envelope.Data.Conflicts)
	assert.Empty(t, envelope.Data.ValidationFailures)
}

func TestSyncAnnotations_InvalidRecordsSkipRestApplies(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			// Tombstone without an ID identifies nothing.
			"deleted": true,
		},
		{
			// Empty selection is rejected.
			"id":            "ann_empty",
			"kind":          "highlight",
			"chapter_index": 1,
			"start_offset":  10,
			"end_offset":    20,
			"selected_text": "",
		},
		{
			"id":            "ann_fine",
			"kind":          "highlight",
			"chapter_index": 1,
			"start_offset":  10,
			"end_offset":    20,
			"selected_text": "this one lands",
		},
	})

	assert.Equal(t, 1, envelope.Data.Created)
	assert.Len(t, envelope.Data.ValidationFailures, 2)
	require.Len(t, envelope.Data.Annotations, 1)
	assert.Equal(t, "ann_fine", envelope.Data.Annotations[0].ID)
}

func TestSyncAnnotations_NegativeChapterIndexSkipsOnlyThatRecord(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	// An out-of-range record must fail inside the batch, not fail the
	// request at the schema layer.
	envelope := ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{
			"id":            "ann_negative",
			"kind":          "highlight",
			"chapter_index": -1,
			"start_offset":  0,
			"end_offset":    10,
			"selected_text": "bad chapter",
		},
		{
			"id":            "ann_valid",
			"kind":          "highlight",
			"chapter_index": 1,
			"start_offset":  0,
			"end_offset":    10,
			"selected_text": "good chapter",
		},
	})

	assert.Equal(t, 1, envelope.Data.Created)
	require.Len(t, envelope.Data.ValidationFailures, 1)
	assert.Equal(t, "ann_negative", envelope.Data.ValidationFailures[0].ID)
	require.Len(t, envelope.Data.Annotations, 1)
	assert.Equal(t, "ann_valid", envelope.Data.Annotations[0].ID)
}

func TestSyncAnnotations_UnknownNovel(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)

	resp := ts.api.Post("/api/v1/novels/nvl_missing/annotations/sync",
		"Authorization: Bearer "+token,
		map[string]any{"annotations": []map[string]any{}})

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSyncAnnotations_ScopedToOwner(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	ownerToken := ts.createTestUserAndLogin(t)
	ownerID := ts.userIDForToken(t, ownerToken)
	novel := ts.createTestNovel(t, ownerID, "Private Library")

	otherToken := ts.register(t, "other@example.com", "Other")

	// Another user's library doesn't contain this novel.
	resp := ts.api.Post("/api/v1/novels/"+novel.ID+"/annotations/sync",
		"Authorization: Bearer "+otherToken,
		map[string]any{"annotations": []map[string]any{}})

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateAnnotation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	resp := ts.api.Post("/api/v1/novels/"+novel.ID+"/annotations",
		"Authorization: Bearer "+token,
		map[string]any{
			"kind":          "note",
			"chapter_index": 7,
			"start_offset":  3,
			"end_offset":    18,
			"selected_text": "marginalia",
			"note":          "look this up later",
		})

	assert.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var envelope testEnvelope[AnnotationResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))

	assert.NotEmpty(t, envelope.Data.ID)
	assert.Equal(t, "note", envelope.Data.Kind)
	// Unset colors fall back to the default.
	assert.Equal(t, "yellow", envelope.Data.Color)
}

func TestListAnnotations_FilterByChapter(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{"id": "ann_ch0", "kind": "highlight", "chapter_index": 0, "start_offset": 0, "end_offset": 10, "selected_text": "first"},
		{"id": "ann_ch2a", "kind": "highlight", "chapter_index": 2, "start_offset": 50, "end_offset": 60, "selected_text": "later"},
		{"id": "ann_ch2b", "kind": "highlight", "chapter_index": 2, "start_offset": 5, "end_offset": 15, "selected_text": "earlier"},
	})

	resp := ts.api.Get("/api/v1/novels/"+novel.ID+"/annotations?chapter_index=2",
		"Authorization: Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.Code)

	var envelope testEnvelope[struct {
		Annotations []AnnotationResponse `json:"annotations"`
	}]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))

	// Ordered by start offset within the chapter.
	require.Len(t, envelope.Data.Annotations, 2)
	assert.Equal(t, "ann_ch2b", envelope.Data.Annotations[0].ID)
	assert.Equal(t, "ann_ch2a", envelope.Data.Annotations[1].ID)
}

func TestUpdateAnnotation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{"id": "ann_edit", "kind": "highlight", "chapter_index": 0, "start_offset": 0, "end_offset": 10, "selected_text": "editable"},
	})

	resp := ts.api.Patch("/api/v1/annotations/ann_edit",
		"Authorization: Bearer "+token,
		map[string]any{
			"color": "green",
			"note":  "second thoughts",
		})

	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[AnnotationResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))

	assert.Equal(t, "green", envelope.Data.Color)
	assert.Equal(t, "second thoughts", envelope.Data.Note)
}

func TestDeleteAnnotation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.createTestUserAndLogin(t)
	userID := ts.userIDForToken(t, token)
	novel := ts.createTestNovel(t, userID, "Offline Reading")

	ts.syncAnnotations(t, token, novel.ID, []map[string]any{
		{"id": "ann_gone", "kind": "highlight", "chapter_index": 0, "start_offset": 0, "end_offset": 10, "selected_text": "deletable"},
	})

	resp := ts.api.Delete("/api/v1/annotations/ann_gone",
		"Authorization: Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Delete("/api/v1/annotations/ann_gone",
		"Authorization: Bearer "+token)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
