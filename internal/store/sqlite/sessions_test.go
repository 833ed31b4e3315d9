package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// makeTestSession creates a domain.Session with all fields populated for testing.
// It also creates the owning user to satisfy the FK constraint.
func makeTestSession(t *testing.T, s *Store, sessionID, userID string) *domain.Session {
	t.Helper()
	ctx := context.Background()

	// Create the user if it doesn't already exist.
	user := makeTestUser(userID, userID+"@example.com")
	if err := s.CreateUser(ctx, user); err != nil {
		// Ignore duplicate, the user may already exist from a previous call.
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Fatalf("makeTestSession: CreateUser(%s): %v", userID, err)
		}
	}

	now := time.Now()
	return &domain.Session{
		ID:               sessionID,
		UserID:           userID,
		RefreshTokenHash: "sha256:fakerefreshtokenhash",
		ExpiresAt:        now.Add(24 * time.Hour),
		CreatedAt:        now,
		LastSeenAt:       now,
		IPAddress:        "192.168.1.42",
		DeviceType:       "ereader",
		Platform:         "KOReader",
		PlatformVersion:  "2024.11",
		ClientName:       "Folio Reader",
		ClientVersion:    "1.0.0",
		DeviceName:       "Living Room Kobo",
		DeviceModel:      "Kobo Clara BW",
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(t, s, "sess-1", "user-sess-1")

	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	// Verify all fields.
	if got.ID != session.ID {
		t.Errorf("ID: got %q, want %q", got.ID, session.ID)
	}
	if got.UserID != session.UserID {
		t.Errorf("UserID: got %q, want %q", got.UserID, session.UserID)
	}
	if got.RefreshTokenHash != session.RefreshTokenHash {
		t.Errorf("RefreshTokenHash: got %q, want %q", got.RefreshTokenHash, session.RefreshTokenHash)
	}
	if got.IPAddress != session.IPAddress {
		t.Errorf("IPAddress: got %q, want %q", got.IPAddress, session.IPAddress)
	}
	if got.DeviceType != session.DeviceType {
		t.Errorf("DeviceType: got %q, want %q", got.DeviceType, session.DeviceType)
	}
	if got.Platform != session.Platform {
		t.Errorf("Platform: got %q, want %q", got.Platform, session.Platform)
	}
	if got.PlatformVersion != session.PlatformVersion {
		t.Errorf("PlatformVersion: got %q, want %q", got.PlatformVersion, session.PlatformVersion)
	}
	if got.ClientName != session.ClientName {
		t.Errorf("ClientName: got %q, want %q", got.ClientName, session.ClientName)
	}
	if got.ClientVersion != session.ClientVersion {
		t.Errorf("ClientVersion: got %q, want %q", got.ClientVersion, session.ClientVersion)
	}
	if got.DeviceName != session.DeviceName {
		t.Errorf("DeviceName: got %q, want %q", got.DeviceName, session.DeviceName)
	}
	if got.DeviceModel != session.DeviceModel {
		t.Errorf("DeviceModel: got %q, want %q", got.DeviceModel, session.DeviceModel)
	}

	// Timestamps should round-trip through RFC3339Nano.
	if got.ExpiresAt.Unix() != session.ExpiresAt.Unix() {
		t.Errorf("ExpiresAt: got %v, want %v", got.ExpiresAt, session.ExpiresAt)
	}
	if got.CreatedAt.Unix() != session.CreatedAt.Unix() {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, session.CreatedAt)
	}
	if got.LastSeenAt.Unix() != session.LastSeenAt.Unix() {
		t.Errorf("LastSeenAt: got %v, want %v", got.LastSeenAt, session.LastSeenAt)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "nonexistent")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
	if storeErr.Code != store.ErrNotFound.Code {
		t.Errorf("expected status %d, got %d", store.ErrNotFound.Code, storeErr.Code)
	}
}

func TestCreateSession_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(t, s, "sess-dup", "user-sess-dup")

	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Attempt to insert the same session ID again.
	err := s.CreateSession(ctx, session)
	if err == nil {
		t.Fatal("expected error for duplicate session, got nil")
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetSessionByRefreshToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(t, s, "sess-refresh", "user-sess-refresh")
	session.RefreshTokenHash = "sha256:uniquetokenforthistest"
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSessionByRefreshToken(ctx, "sha256:uniquetokenforthistest")
	if err != nil {
		t.Fatalf("GetSessionByRefreshToken: %v", err)
	}
	if got.ID != "sess-refresh" {
		t.Errorf("ID: got %q, want %q", got.ID, "sess-refresh")
	}

	// Unknown hash should return not found.
	_, err = s.GetSessionByRefreshToken(ctx, "sha256:neverissued")
	if err == nil {
		t.Fatal("expected not found, got nil")
	}
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(t, s, "sess-update", "user-sess-update")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Modify fields.
	session.RefreshTokenHash = "sha256:rotatedtoken"
	session.IPAddress = "10.0.0.1"
	session.DeviceType = "desktop"
	session.Platform = "macOS"
	session.PlatformVersion = "14.2"
	session.ClientName = "Folio Web"
	session.ClientVersion = "2.0.0"
	session.DeviceName = "Work MacBook"
	session.DeviceModel = "MacBook Pro 16"
	session.LastSeenAt = time.Now().Add(time.Hour)

	if err := s.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-update")
	if err != nil {
		t.Fatalf("GetSession after update: %v", err)
	}

	if got.RefreshTokenHash != "sha256:rotatedtoken" {
		t.Errorf("RefreshTokenHash: got %q, want %q", got.RefreshTokenHash, "sha256:rotatedtoken")
	}
	if got.IPAddress != "10.0.0.1" {
		t.Errorf("IPAddress: got %q, want %q", got.IPAddress, "10.0.0.1")
	}
	if got.DeviceType != "desktop" {
		t.Errorf("DeviceType: got %q, want %q", got.DeviceType, "desktop")
	}
	if got.Platform != "macOS" {
		t.Errorf("Platform: got %q, want %q", got.Platform, "macOS")
	}
	if got.ClientName != "Folio Web" {
		t.Errorf("ClientName: got %q, want %q", got.ClientName, "Folio Web")
	}
	if got.DeviceName != "Work MacBook" {
		t.Errorf("DeviceName: got %q, want %q", got.DeviceName, "Work MacBook")
	}
	if got.LastSeenAt.Unix() != session.LastSeenAt.Unix() {
		t.Errorf("LastSeenAt: got %v, want %v", got.LastSeenAt, session.LastSeenAt)
	}
}

func TestUpdateSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Create the user so FK is satisfied, but don't create the session.
	user := makeTestUser("user-sess-upd-nf", "upd-nf@example.com")
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	session := &domain.Session{
		ID:         "nonexistent-sess",
		UserID:     "user-sess-upd-nf",
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
		LastSeenAt: time.Now(),
	}

	err := s.UpdateSession(ctx, session)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
	if storeErr.Code != store.ErrNotFound.Code {
		t.Errorf("expected status %d, got %d", store.ErrNotFound.Code, storeErr.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(t, s, "sess-delete", "user-sess-delete")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Verify the session exists.
	_, err := s.GetSession(ctx, "sess-delete")
	if err != nil {
		t.Fatalf("GetSession before delete: %v", err)
	}

	// Hard delete.
	if err := s.DeleteSession(ctx, "sess-delete"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	// GetSession should return not found.
	_, err = s.GetSession(ctx, "sess-delete")
	if err == nil {
		t.Fatal("expected not found after delete, got nil")
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
	if storeErr.Code != store.ErrNotFound.Code {
		t.Errorf("expected status %d, got %d", store.ErrNotFound.Code, storeErr.Code)
	}
}

func TestListUserSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Create sessions for user A.
	sA1 := makeTestSession(t, s, "sess-ua-1", "user-a")
	sA2 := makeTestSession(t, s, "sess-ua-2", "user-a")
	sA3 := makeTestSession(t, s, "sess-ua-3", "user-a")

	// Create a session for user B.
	sB1 := makeTestSession(t, s, "sess-ub-1", "user-b")

	for _, sess := range []*domain.Session{sA1, sA2, sA3, sB1} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", sess.ID, err)
		}
	}

	// Fetch sessions for user A only.
	sessions, err := s.ListUserSessions(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListUserSessions: %v", err)
	}

	if len(sessions) != 3 {
		t.Fatalf("ListUserSessions: got %d sessions, want 3", len(sessions))
	}

	for _, sess := range sessions {
		if sess.UserID != "user-a" {
			t.Errorf("unexpected UserID %q, want %q", sess.UserID, "user-a")
		}
	}

	// Non-existent user should return empty slice, not error.
	sessionsNone, err := s.ListUserSessions(ctx, "user-nonexistent")
	if err != nil {
		t.Fatalf("ListUserSessions(nonexistent): %v", err)
	}
	if len(sessionsNone) != 0 {
		t.Errorf("ListUserSessions(nonexistent): got %d sessions, want 0", len(sessionsNone))
	}
}

func TestDeleteAllUserSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sA1 := makeTestSession(t, s, "sess-da-1", "user-da")
	sA2 := makeTestSession(t, s, "sess-da-2", "user-da")
	sB1 := makeTestSession(t, s, "sess-db-1", "user-db")

	for _, sess := range []*domain.Session{sA1, sA2, sB1} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", sess.ID, err)
		}
	}

	if err := s.DeleteAllUserSessions(ctx, "user-da"); err != nil {
		t.Fatalf("DeleteAllUserSessions: %v", err)
	}

	remaining, err := s.ListUserSessions(ctx, "user-da")
	if err != nil {
		t.Fatalf("ListUserSessions after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no sessions for user-da, got %d", len(remaining))
	}

	// Other user's sessions should survive.
	other, err := s.ListUserSessions(ctx, "user-db")
	if err != nil {
		t.Fatalf("ListUserSessions(user-db): %v", err)
	}
	if len(other) != 1 {
		t.Errorf("expected 1 session for user-db, got %d", len(other))
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()

	// Create two expired sessions.
	expired1 := makeTestSession(t, s, "sess-exp-1", "user-exp")
	expired1.ExpiresAt = now.Add(-2 * time.Hour)

	expired2 := makeTestSession(t, s, "sess-exp-2", "user-exp")
	expired2.ExpiresAt = now.Add(-1 * time.Hour)

	// Create two valid sessions.
	valid1 := makeTestSession(t, s, "sess-valid-1", "user-exp")
	valid1.ExpiresAt = now.Add(24 * time.Hour)

	valid2 := makeTestSession(t, s, "sess-valid-2", "user-exp")
	valid2.ExpiresAt = now.Add(48 * time.Hour)

	for _, sess := range []*domain.Session{expired1, expired2, valid1, valid2} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", sess.ID, err)
		}
	}

	// Delete expired sessions.
	deleted, err := s.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteExpiredSessions: deleted %d, want 2", deleted)
	}

	// Only valid sessions should remain.
	remaining, err := s.ListUserSessions(ctx, "user-exp")
	if err != nil {
		t.Fatalf("ListUserSessions after cleanup: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("ListUserSessions after cleanup: got %d, want 2", len(remaining))
	}

	ids := make(map[string]bool)
	for _, sess := range remaining {
		ids[sess.ID] = true
	}
	if !ids["sess-valid-1"] {
		t.Error("expected sess-valid-1 to survive cleanup")
	}
	if !ids["sess-valid-2"] {
		t.Error("expected sess-valid-2 to survive cleanup")
	}

	// Calling again with no expired sessions should return 0.
	deleted2, err := s.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions (second call): %v", err)
	}
	if deleted2 != 0 {
		t.Errorf("DeleteExpiredSessions (second call): deleted %d, want 0", deleted2)
	}
}
