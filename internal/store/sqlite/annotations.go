package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// annotationColumns is the ordered list of columns selected in annotation queries.
// Must match the scan order in scanAnnotation.
const annotationColumns = `id, owner_id, novel_id, chapter_idx, chapter_url,
	kind, color, selected_text, note, start_offset, end_offset,
	paragraph_idx, paragraph_text_preview, created_at, updated_at, synced_at`

// scanAnnotation scans a sql.Row (or sql.Rows via its Scan method) into a domain.Annotation.
func scanAnnotation(scanner interface{ Scan(dest ...any) error }) (*domain.Annotation, error) {
	var a domain.Annotation

	var (
		chapterURL   sql.NullString
		kind         string
		color        string
		note         sql.NullString
		paragraphIdx sql.NullInt64
		paragraphTxt sql.NullString
		createdAt    string
		updatedAt    string
		syncedAt     string
	)

	err := scanner.Scan(
		&a.ID,
		&a.OwnerID,
		&a.NovelID,
		&a.ChapterIndex,
		&chapterURL,
		&kind,
		&color,
		&a.SelectedText,
		&note,
		&a.StartOffset,
		&a.EndOffset,
		&paragraphIdx,
		&paragraphTxt,
		&createdAt,
		&updatedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	// Parse timestamps.
	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	a.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	a.SyncedAt, err = parseTime(syncedAt)
	if err != nil {
		return nil, err
	}

	// Optional fields.
	if chapterURL.Valid {
		a.ChapterURL = chapterURL.String
	}
	if note.Valid {
		a.Note = note.String
	}
	if paragraphIdx.Valid {
		idx := int(paragraphIdx.Int64)
		a.ParagraphIndex = &idx
	}
	if paragraphTxt.Valid {
		a.ParagraphTextPreview = paragraphTxt.String
	}

	a.Kind = domain.AnnotationKind(kind)
	a.Color = domain.AnnotationColor(color)

	return &a, nil
}

// execer covers both *sql.DB and *sql.Tx for the write helpers below.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getAnnotation looks an annotation up by (id, owner_id). The novel ID is
// deliberately not part of the lookup so a record created against the
// wrong novel is still found and never silently duplicated.
// Returns (nil, nil) when no row exists.
func getAnnotation(ctx context.Context, q execer, id, ownerID string) (*domain.Annotation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE id = ? AND owner_id = ?`,
		id, ownerID)

	a, err := scanAnnotation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// upsertAnnotation writes an annotation row, replacing any existing row
// with the same (id, owner_id). It stores the record exactly as given;
// all reconciliation rules live in the domain layer.
func upsertAnnotation(ctx context.Context, q execer, a *domain.Annotation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO annotations (
			id, owner_id, novel_id, chapter_idx, chapter_url,
			kind, color, selected_text, note, start_offset, end_offset,
			paragraph_idx, paragraph_text_preview, created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, owner_id) DO UPDATE SET
			novel_id = excluded.novel_id,
			chapter_idx = excluded.chapter_idx,
			chapter_url = excluded.chapter_url,
			kind = excluded.kind,
			color = excluded.color,
			selected_text = excluded.selected_text,
			note = excluded.note,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			paragraph_idx = excluded.paragraph_idx,
			paragraph_text_preview = excluded.paragraph_text_preview,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at`,
		a.ID,
		a.OwnerID,
		a.NovelID,
		a.ChapterIndex,
		nullString(a.ChapterURL),
		string(a.Kind),
		string(a.Color),
		a.SelectedText,
		nullString(a.Note),
		a.StartOffset,
		a.EndOffset,
		nullInt(a.ParagraphIndex),
		nullString(a.ParagraphTextPreview),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
		formatTime(a.SyncedAt),
	)
	return err
}

// deleteAnnotation removes an annotation scoped to owner and novel.
// Returns whether a row was actually deleted; a missing row is not an error.
func deleteAnnotation(ctx context.Context, q execer, id, novelID, ownerID string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM annotations WHERE id = ? AND novel_id = ? AND owner_id = ?`,
		id, novelID, ownerID)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// listAnnotations returns an owner's annotations for a novel in reading
// order: chapter index, then start offset, then id for a stable tiebreak.
func listAnnotations(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, ownerID, novelID string) ([]*domain.Annotation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations
		WHERE owner_id = ? AND novel_id = ?
		ORDER BY chapter_idx ASC, start_offset ASC, id ASC`,
		ownerID, novelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []*domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return annotations, nil
}

// GetAnnotation retrieves an annotation by ID scoped to its owner.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetAnnotation(ctx context.Context, id, ownerID string) (*domain.Annotation, error) {
	a, err := getAnnotation(ctx, s.db, id, ownerID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	return a, nil
}

// ListAnnotationsByNovel returns an owner's annotations for a novel in
// reading order.
func (s *Store) ListAnnotationsByNovel(ctx context.Context, ownerID, novelID string) ([]*domain.Annotation, error) {
	return listAnnotations(ctx, s.db, ownerID, novelID)
}

// ListAnnotationsByChapter returns an owner's annotations for one chapter
// of a novel, ordered by start offset.
func (s *Store) ListAnnotationsByChapter(ctx context.Context, ownerID, novelID string, chapterIndex int) ([]*domain.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations
		WHERE owner_id = ? AND novel_id = ? AND chapter_idx = ?
		ORDER BY start_offset ASC, id ASC`,
		ownerID, novelID, chapterIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []*domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return annotations, nil
}

// UpsertAnnotation stores an annotation as given, inserting or replacing
// by (id, owner_id).
func (s *Store) UpsertAnnotation(ctx context.Context, a *domain.Annotation) error {
	return upsertAnnotation(ctx, s.db, a)
}

// DeleteAnnotation removes an annotation scoped to owner and novel.
// Returns whether a row was deleted; deleting a missing annotation is a
// no-op, not an error.
func (s *Store) DeleteAnnotation(ctx context.Context, id, novelID, ownerID string) (bool, error) {
	return deleteAnnotation(ctx, s.db, id, novelID, ownerID)
}

// CountAnnotations returns the number of annotations an owner has stored.
func (s *Store) CountAnnotations(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM annotations WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}

// CountAnnotationsByNovel returns an owner's annotation counts keyed by
// novel ID. Novels without annotations are absent from the map.
func (s *Store) CountAnnotationsByNovel(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT novel_id, COUNT(*) FROM annotations
		WHERE owner_id = ?
		GROUP BY novel_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var novelID string
		var count int
		if err := rows.Scan(&novelID, &count); err != nil {
			return nil, err
		}
		counts[novelID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// SyncAnnotations applies a client batch against one novel in a single
// transaction and returns counts, conflicts, skipped records, and the
// full post-sync snapshot for that novel.
//
// Changes are applied in input order, so a batch that names the same ID
// twice resolves with the later record seeing the earlier one's write.
// Any infrastructure failure rolls back the entire batch; per-record
// validation failures and conflicts never do.
func (s *Store) SyncAnnotations(ctx context.Context, ownerID, novelID string, changes []domain.AnnotationChange, now time.Time) (*domain.AnnotationSyncResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result := &domain.AnnotationSyncResult{
		Conflicts:          []domain.AnnotationConflict{},
		ValidationFailures: []domain.AnnotationSyncFailure{},
		ServerTime:         now,
	}

	for _, change := range changes {
		existing, err := getAnnotation(ctx, tx, change.ID, ownerID)
		if err != nil {
			return nil, fmt.Errorf("lookup annotation %s: %w", change.ID, err)
		}

		decision := domain.ReconcileAnnotation(change, existing, now)
		switch decision.Action {
		case domain.SyncActionDelete:
			deleted, err := deleteAnnotation(ctx, tx, change.ID, novelID, ownerID)
			if err != nil {
				return nil, fmt.Errorf("delete annotation %s: %w", change.ID, err)
			}
			if deleted {
				result.Deleted++
			}

		case domain.SyncActionCreate:
			if err := upsertAnnotation(ctx, tx, decision.Record); err != nil {
				return nil, fmt.Errorf("insert annotation %s: %w", change.ID, err)
			}
			result.Created++

		case domain.SyncActionUpdate:
			if err := upsertAnnotation(ctx, tx, decision.Record); err != nil {
				return nil, fmt.Errorf("update annotation %s: %w", change.ID, err)
			}
			result.Updated++

		case domain.SyncActionConflict:
			result.Conflicts = append(result.Conflicts, *decision.Conflict)

		case domain.SyncActionInvalid:
			result.ValidationFailures = append(result.ValidationFailures, domain.AnnotationSyncFailure{
				ID:     change.ID,
				Reason: decision.Reason,
			})
		}
	}

	// Snapshot inside the transaction so the response reflects exactly
	// the state this batch produced.
	result.Annotations, err = listAnnotations(ctx, tx, ownerID, novelID)
	if err != nil {
		return nil, fmt.Errorf("snapshot annotations: %w", err)
	}
	if result.Annotations == nil {
		result.Annotations = []*domain.Annotation{}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}
