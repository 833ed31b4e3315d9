package sideload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioapp/folio-server/internal/logger"
)

func testLogger() *slog.Logger {
	return logger.New(logger.Config{Level: slog.LevelError}).Logger
}

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.NotNil(t, w)

	w.Stop()
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), 50*time.Millisecond, testLogger())
	assert.Error(t, err)
}

func TestWatcher_EmitsAfterSettle(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(dir, "novel.txt")
	require.NoError(t, os.WriteFile(path, []byte("some content"), 0o644))

	select {
	case event := <-w.Events():
		assert.Equal(t, path, event.Path)
		assert.EqualValues(t, len("some content"), event.Size)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcher_DebouncesRewrites(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 100*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Two quick writes must collapse into a single settled event
	// carrying the final size.
	path := filepath.Join(dir, "novel.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("second, longer write"), 0o644))

	select {
	case event := <-w.Events():
		assert.EqualValues(t, len("second, longer write"), event.Size)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected second event for %s", event.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresHiddenAndTempFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("x"), 0o644))

	select {
	case event := <-w.Events():
		assert.Equal(t, filepath.Join(dir, "real.txt"), event.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcher_RemovedWhileSettling(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 200*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for removed file %s", event.Path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestIgnoredFile(t *testing.T) {
	assert.True(t, ignoredFile("/inbox/.DS_Store"))
	assert.True(t, ignoredFile("/inbox/.partial-upload.txt"))
	assert.True(t, ignoredFile("/inbox/novel.tmp"))
	assert.True(t, ignoredFile("/inbox/novel.part"))
	assert.True(t, ignoredFile("Thumbs.db"))

	assert.False(t, ignoredFile("/inbox/novel.txt"))
	assert.False(t, ignoredFile("/inbox/notes.md"))
}
