package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"encoding/json/v2"

	"github.com/folioapp/folio-server/internal/backup/stream"
)

// export writes a complete archive to outputPath. onStage is called after
// each entity dump with the stage name and the number of entities written;
// nil is allowed.
func (s *BackupService) export(ctx context.Context, outputPath string, opts BackupOptions, onStage func(stage string, entities int)) (*BackupResult, error) {
	start := time.Now()

	notify := func(stage string, entities int) {
		if onStage != nil {
			onStage(stage, entities)
		}
	}

	// Write to temp file, rename on success (atomic)
	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmpPath) // Clean up on failure
	defer f.Close()

	// Tee to SHA-256 hasher; the checksum covers the compressed bytes.
	hash := sha256.New()
	mw := io.MultiWriter(f, hash)
	gz := gzip.NewWriter(mw)
	tw := tar.NewWriter(gz)

	manifest := &Manifest{
		Version:        FormatVersion,
		CreatedAt:      start,
		FolioVersion:   s.version,
		IncludesCovers: opts.IncludeCovers,
	}

	// Server identity
	instance, err := s.store.GetInstance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	manifest.ServerID = instance.ID
	manifest.ServerName = instance.Name

	// Entity dumps in dependency order; restore applies them as they
	// appear, so parents must precede children.
	counts := &manifest.Counts

	steps := []struct {
		name string
		dump func(context.Context, *stream.Writer) error
		dest *int
	}{
		{"users", s.dumpUsers, &counts.Users},
		{"novels", s.dumpNovels, &counts.Novels},
		{"chapters", s.dumpChapters, &counts.Chapters},
		{"annotations", s.dumpAnnotations, &counts.Annotations},
		{"bookmarks", s.dumpBookmarks, &counts.Bookmarks},
		{"positions", s.dumpPositions, &counts.Positions},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		n, err := s.writeDump(ctx, tw, "entities/"+step.name+".jsonl", start, step.dump)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", step.name, err)
		}
		*step.dest = n
		notify(step.name, n)
	}

	if opts.IncludeCovers {
		n, err := s.exportCovers(ctx, tw, start)
		if err != nil {
			return nil, fmt.Errorf("export covers: %w", err)
		}
		counts.Covers = n
		notify("covers", n)
	}

	// Manifest goes last: it carries the final counts, and its presence
	// marks a completely written archive.
	var mbuf bytes.Buffer
	if err := json.MarshalWrite(&mbuf, manifest); err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeTarFile(tw, manifestName, mbuf.Bytes(), start); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	// Finalize archive
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	return &BackupResult{
		Path:     outputPath,
		Size:     info.Size(),
		Counts:   *counts,
		Duration: time.Since(start),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// writeDump buffers one JSONL entity dump and writes it as a tar entry.
// Tar headers carry the size up front, so the dump cannot stream straight
// into the archive; one dump at a time is held in memory.
func (s *BackupService) writeDump(ctx context.Context, tw *tar.Writer, name string, modTime time.Time, dump func(context.Context, *stream.Writer) error) (int, error) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)

	if err := dump(ctx, w); err != nil {
		return 0, err
	}
	if err := writeTarFile(tw, name, buf.Bytes(), modTime); err != nil {
		return 0, err
	}
	return w.Count(), nil
}

func (s *BackupService) dumpUsers(ctx context.Context, w *stream.Writer) error {
	for user, err := range s.store.StreamUsers(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(user); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) dumpNovels(ctx context.Context, w *stream.Writer) error {
	for novel, err := range s.store.StreamNovels(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(novel); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) dumpChapters(ctx context.Context, w *stream.Writer) error {
	for chapter, err := range s.store.StreamChapters(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(chapter); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) dumpAnnotations(ctx context.Context, w *stream.Writer) error {
	for annotation, err := range s.store.StreamAnnotations(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(annotation); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) dumpBookmarks(ctx context.Context, w *stream.Writer) error {
	for bookmark, err := range s.store.StreamBookmarks(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(bookmark); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) dumpPositions(ctx context.Context, w *stream.Writer) error {
	for position, err := range s.store.StreamPositions(ctx) {
		if err != nil {
			return err
		}
		if err := w.Write(position); err != nil {
			return err
		}
	}
	return nil
}

// exportCovers copies stored cover images into the archive. A cover that
// cannot be read is skipped; covers are recoverable from the source site.
func (s *BackupService) exportCovers(ctx context.Context, tw *tar.Writer, modTime time.Time) (int, error) {
	count := 0

	for novel, err := range s.store.StreamNovels(ctx) {
		if err != nil {
			return count, err
		}
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if novel.CoverPath == "" {
			continue
		}

		data, err := s.covers.Get(novel.ID)
		if err != nil {
			continue
		}

		name := fmt.Sprintf("covers/%s.jpg", novel.ID)
		if err := writeTarFile(tw, name, data, modTime); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
