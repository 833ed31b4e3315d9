package sqlite

import (
	"context"
	"database/sql"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// positionColumns is the ordered list of columns selected in position queries.
// Must match the scan order in scanPosition.
const positionColumns = `user_id, novel_id, chapter_idx, char_offset, percent, updated_at, synced_at`

// scanPosition scans a sql.Row (or sql.Rows via its Scan method) into a domain.ReadingPosition.
func scanPosition(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingPosition, error) {
	var p domain.ReadingPosition

	var (
		updatedAt string
		syncedAt  string
	)

	err := scanner.Scan(
		&p.UserID,
		&p.NovelID,
		&p.ChapterIndex,
		&p.Offset,
		&p.Percent,
		&updatedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	p.SyncedAt, err = parseTime(syncedAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetPosition retrieves the reading position for one user in one novel.
// Returns store.ErrNotFound if the user has never reported a position.
func (s *Store) GetPosition(ctx context.Context, userID, novelID string) (*domain.ReadingPosition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM reading_positions
		WHERE user_id = ? AND novel_id = ?`, userID, novelID)

	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertPosition writes a reading position, last-write-wins on the
// client-reported updated_at. Returns whether the write was applied; a
// stale write is dropped without error so racing devices converge.
func (s *Store) UpsertPosition(ctx context.Context, pos *domain.ReadingPosition) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	current, err := scanPosition(tx.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM reading_positions
		WHERE user_id = ? AND novel_id = ?`, pos.UserID, pos.NovelID))
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	if current != nil && !current.SupersededBy(pos) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reading_positions (
			user_id, novel_id, chapter_idx, char_offset, percent, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, novel_id) DO UPDATE SET
			chapter_idx = excluded.chapter_idx,
			char_offset = excluded.char_offset,
			percent = excluded.percent,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at`,
		pos.UserID,
		pos.NovelID,
		pos.ChapterIndex,
		pos.Offset,
		pos.Percent,
		formatTime(pos.UpdatedAt),
		formatTime(pos.SyncedAt),
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeletePosition removes a user's position in a novel. Deleting a
// missing position is a no-op.
func (s *Store) DeletePosition(ctx context.Context, userID, novelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reading_positions WHERE user_id = ? AND novel_id = ?`,
		userID, novelID)
	return err
}

// ListPositions returns a user's most recently updated positions, newest
// first. Drives the continue-reading shelf.
func (s *Store) ListPositions(ctx context.Context, userID string, limit int) ([]*domain.ReadingPosition, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM reading_positions
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListAllPositions returns every reading position a user has, newest
// first. Feeds the sync manifest, which must be complete.
func (s *Store) ListAllPositions(ctx context.Context, userID string) ([]*domain.ReadingPosition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM reading_positions
		WHERE user_id = ?
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows *sql.Rows) ([]*domain.ReadingPosition, error) {
	var positions []*domain.ReadingPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}
