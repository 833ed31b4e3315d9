package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"encoding/json/v2"

	"github.com/folioapp/folio-server/internal/backup/stream"
	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/media/images"
	"github.com/folioapp/folio-server/internal/store/sqlite"
)

// RestoreService loads backup archives into the store.
type RestoreService struct {
	store  *sqlite.Store
	covers *images.Storage
	logger *slog.Logger
}

// NewRestoreService creates a RestoreService.
func NewRestoreService(st *sqlite.Store, covers *images.Storage, logger *slog.Logger) *RestoreService {
	return &RestoreService{
		store:  st,
		covers: covers,
		logger: logger,
	}
}

// Restore replaces all current data with the contents of the archive at
// path. The manifest is validated before anything is touched, so an
// unreadable or incompatible archive never destroys data. Sessions are
// not part of backups; after a restore every client has to log in again.
func (s *RestoreService) Restore(ctx context.Context, path string) (*RestoreResult, error) {
	start := time.Now()

	manifest, err := s.readManifest(path)
	if err != nil {
		return nil, err
	}
	if manifest.Version != FormatVersion {
		return nil, fmt.Errorf("%w: archive is %s, server reads %s",
			ErrVersionMismatch, manifest.Version, FormatVersion)
	}

	s.logger.Info("restoring backup",
		"path", path,
		"created_at", manifest.CreatedAt,
		"server_name", manifest.ServerName)

	if err := s.store.ClearAllData(ctx); err != nil {
		return nil, fmt.Errorf("clear current data: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	defer gz.Close()

	result := &RestoreResult{
		Imported: make(map[string]int),
	}

	// Dumps were written in dependency order (users before novels before
	// chapters and the rest), so applying entries as they appear satisfies
	// foreign keys.
	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		switch {
		case hdr.Name == "entities/users.jsonl":
			s.restoreUsers(ctx, tr, result)
		case hdr.Name == "entities/novels.jsonl":
			s.restoreNovels(ctx, tr, result)
		case hdr.Name == "entities/chapters.jsonl":
			s.restoreChapters(ctx, tr, result)
		case hdr.Name == "entities/annotations.jsonl":
			s.restoreAnnotations(ctx, tr, result)
		case hdr.Name == "entities/bookmarks.jsonl":
			s.restoreBookmarks(ctx, tr, result)
		case hdr.Name == "entities/positions.jsonl":
			s.restorePositions(ctx, tr, result)
		case strings.HasPrefix(hdr.Name, "covers/"):
			s.restoreCover(hdr.Name, tr, result)
		}
	}

	result.Duration = time.Since(start)

	s.logger.Info("restore complete",
		"imported", result.Imported,
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

// readManifest scans the archive for its manifest without applying any
// data. The manifest is written last, so reaching it proves the archive
// is complete; a truncated file fails here before the store is cleared.
func (s *RestoreService) readManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
		}
		if hdr.Name != manifestName {
			continue
		}

		var m Manifest
		if err := json.UnmarshalRead(tr, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		return &m, nil
	}

	return nil, ErrInvalidManifest
}

func (s *RestoreService) restoreUsers(ctx context.Context, r io.Reader, result *RestoreResult) {
	for user, err := range stream.NewReader[domain.User](r).All() {
		if err != nil {
			result.addError("user", "", err)
			continue
		}
		if err := s.store.CreateUser(ctx, &user); err != nil {
			result.addError("user", user.ID, err)
			continue
		}
		result.Imported["users"]++
	}
}

func (s *RestoreService) restoreNovels(ctx context.Context, r io.Reader, result *RestoreResult) {
	for novel, err := range stream.NewReader[domain.Novel](r).All() {
		if err != nil {
			result.addError("novel", "", err)
			continue
		}
		if err := s.store.CreateNovel(ctx, &novel); err != nil {
			result.addError("novel", novel.ID, err)
			continue
		}
		result.Imported["novels"]++
	}
}

// restoreChapters replays chapters a novel at a time. The dump is ordered
// by novel, so a change in novel ID marks the end of a batch.
func (s *RestoreService) restoreChapters(ctx context.Context, r io.Reader, result *RestoreResult) {
	var (
		novelID string
		batch   []domain.Chapter
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.store.ReplaceChapters(ctx, novelID, batch); err != nil {
			result.addError("chapter", novelID, err)
		} else {
			result.Imported["chapters"] += len(batch)
		}
		batch = nil
	}

	for chapter, err := range stream.NewReader[domain.Chapter](r).All() {
		if err != nil {
			result.addError("chapter", "", err)
			continue
		}
		if chapter.NovelID != novelID {
			flush()
			novelID = chapter.NovelID
		}
		batch = append(batch, chapter)
	}
	flush()
}

func (s *RestoreService) restoreAnnotations(ctx context.Context, r io.Reader, result *RestoreResult) {
	for a, err := range stream.NewReader[domain.Annotation](r).All() {
		if err != nil {
			result.addError("annotation", "", err)
			continue
		}
		if err := s.store.UpsertAnnotation(ctx, &a); err != nil {
			result.addError("annotation", a.ID, err)
			continue
		}
		result.Imported["annotations"]++
	}
}

func (s *RestoreService) restoreBookmarks(ctx context.Context, r io.Reader, result *RestoreResult) {
	for b, err := range stream.NewReader[domain.Bookmark](r).All() {
		if err != nil {
			result.addError("bookmark", "", err)
			continue
		}
		if err := s.store.CreateBookmark(ctx, &b); err != nil {
			result.addError("bookmark", b.ID, err)
			continue
		}
		result.Imported["bookmarks"]++
	}
}

func (s *RestoreService) restorePositions(ctx context.Context, r io.Reader, result *RestoreResult) {
	for pos, err := range stream.NewReader[domain.ReadingPosition](r).All() {
		if err != nil {
			result.addError("position", "", err)
			continue
		}
		if _, err := s.store.UpsertPosition(ctx, &pos); err != nil {
			result.addError("position", pos.UserID+"/"+pos.NovelID, err)
			continue
		}
		result.Imported["positions"]++
	}
}

func (s *RestoreService) restoreCover(name string, r io.Reader, result *RestoreResult) {
	novelID := strings.TrimSuffix(filepath.Base(name), ".jpg")

	data, err := io.ReadAll(r)
	if err != nil {
		result.addError("cover", novelID, err)
		return
	}
	if err := s.covers.Save(novelID, data); err != nil {
		result.addError("cover", novelID, err)
		return
	}
	result.Imported["covers"]++
}

// Validate inspects an archive without applying it. Manifest problems are
// reported as errors, missing entity dumps as warnings; open and decode
// failures land in the result rather than an error return so callers can
// show them to the admin.
func (s *RestoreService) Validate(ctx context.Context, path string) (*ValidationResult, error) {
	result := &ValidationResult{Valid: true}

	f, err := os.Open(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("cannot open archive: %v", err))
		return result, nil
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("not a gzip archive: %v", err))
		return result, nil
	}
	defer gz.Close()

	seen := make(map[string]bool)
	var manifest *Manifest

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("archive corrupted: %v", err))
			return result, nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		seen[hdr.Name] = true

		if hdr.Name == manifestName {
			var m Manifest
			if err := json.UnmarshalRead(tr, &m); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("manifest unreadable: %v", err))
				continue
			}
			manifest = &m
		}
	}

	if manifest == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "manifest missing, archive was not written to completion")
		return result, nil
	}

	result.Manifest = manifest
	result.ExpectedCounts = manifest.Counts

	if manifest.Version != FormatVersion {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("archive version %s not supported, server reads %s", manifest.Version, FormatVersion))
	}

	for _, name := range []string{"entities/users.jsonl", "entities/novels.jsonl"} {
		if !seen[name] {
			result.Warnings = append(result.Warnings, "missing "+name)
		}
	}

	return result, nil
}

func (r *RestoreResult) addError(entityType, entityID string, err error) {
	r.Errors = append(r.Errors, RestoreError{
		EntityType: entityType,
		EntityID:   entityID,
		Error:      err.Error(),
	})
}
