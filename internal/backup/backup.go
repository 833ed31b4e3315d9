package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/sse"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// archiveSuffix is the file suffix for Folio backup archives.
const archiveSuffix = ".folio.tar.gz"

// EventEmitter publishes events to connected clients. Backup events are
// delivered to admin clients only.
type EventEmitter interface {
	Emit(event sse.Event)
}

// BackupService creates, lists, and deletes backup archives.
type BackupService struct {
	store     *sqlite.Store
	covers    *images.Storage
	emitter   EventEmitter
	backupDir string
	version   string
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewBackupService creates a BackupService writing archives to backupDir.
func NewBackupService(st *sqlite.Store, covers *images.Storage, emitter EventEmitter, backupDir, version string, logger *slog.Logger) *BackupService {
	return &BackupService{
		store:     st,
		covers:    covers,
		emitter:   emitter,
		backupDir: backupDir,
		version:   version,
		logger:    logger,
	}
}

// Create creates a new backup synchronously.
func (s *BackupService) Create(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	return s.create(ctx, opts, nil)
}

// CreateAsync launches a backup in the background and returns a job ID.
// Progress, completion, and failure are reported over SSE. Only one
// backup runs at a time; a second trigger returns ErrBackupRunning.
func (s *BackupService) CreateAsync(opts BackupOptions) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrBackupRunning
	}
	s.running = true
	s.mu.Unlock()

	jobID := uuid.New().String()

	// The job outlives the request that triggered it.
	go s.runJob(context.Background(), jobID, opts)

	return jobID, nil
}

func (s *BackupService) runJob(ctx context.Context, jobID string, opts BackupOptions) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	result, err := s.create(ctx, opts, func(stage string, entities int) {
		s.emitter.Emit(sse.NewBackupProgressEvent(jobID, stage, entities))
	})
	if err != nil {
		s.logger.Error("backup job failed", "job_id", jobID, "error", err)
		s.emitter.Emit(sse.NewBackupFailedEvent(jobID, err.Error()))
		return
	}

	s.emitter.Emit(sse.NewBackupCompletedEvent(jobID, result.Path, result.Size))
}

func (s *BackupService) create(ctx context.Context, opts BackupOptions, onStage func(stage string, entities int)) (*BackupResult, error) {
	// Ensure backup directory exists
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	// Generate output path if not specified
	outputPath := opts.OutputPath
	if outputPath == "" {
		timestamp := time.Now().Format("2006-01-02-150405")
		outputPath = filepath.Join(s.backupDir, "backup-"+timestamp+archiveSuffix)
	}

	s.logger.Info("creating backup",
		"output", outputPath,
		"include_covers", opts.IncludeCovers)

	result, err := s.export(ctx, outputPath, opts, onStage)
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup complete",
		"path", result.Path,
		"size", result.Size,
		"duration", result.Duration,
		"checksum", result.Checksum)

	return result, nil
}

// List returns all available backups, newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), archiveSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			ID:        strings.TrimSuffix(entry.Name(), archiveSuffix),
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get returns a backup by ID.
func (s *BackupService) Get(ctx context.Context, id string) (*BackupInfo, error) {
	path := s.GetPath(id)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}

	return &BackupInfo{
		ID:        id,
		Path:      path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// Delete removes a backup archive.
func (s *BackupService) Delete(ctx context.Context, id string) error {
	path := s.GetPath(id)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return err
	}

	return os.Remove(path)
}

// GetPath returns the file path for a backup ID.
func (s *BackupService) GetPath(id string) string {
	return filepath.Join(s.backupDir, id+archiveSuffix)
}

// IDFromPath derives the backup ID from an archive path.
func IDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), archiveSuffix)
}
