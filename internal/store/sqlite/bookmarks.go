package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// bookmarkColumns is the ordered list of columns selected in bookmark queries.
// Must match the scan order in scanBookmark.
const bookmarkColumns = `id, created_at, updated_at, deleted_at, owner_id, novel_id,
	chapter_idx, char_offset, label`

// scanBookmark scans a sql.Row (or sql.Rows via its Scan method) into a domain.Bookmark.
func scanBookmark(scanner interface{ Scan(dest ...any) error }) (*domain.Bookmark, error) {
	var b domain.Bookmark

	var (
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		label     sql.NullString
	)

	err := scanner.Scan(
		&b.ID,
		&createdAt,
		&updatedAt,
		&deletedAt,
		&b.OwnerID,
		&b.NovelID,
		&b.ChapterIndex,
		&b.Offset,
		&label,
	)
	if err != nil {
		return nil, err
	}

	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	b.DeletedAt, err = parseNullableTime(deletedAt)
	if err != nil {
		return nil, err
	}

	if label.Valid {
		b.Label = label.String
	}

	return &b, nil
}

// CreateBookmark inserts a new bookmark.
// Returns store.ErrAlreadyExists on duplicate ID.
func (s *Store) CreateBookmark(ctx context.Context, b *domain.Bookmark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (
			id, created_at, updated_at, deleted_at, owner_id, novel_id,
			chapter_idx, char_offset, label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
		nullTimeString(b.DeletedAt),
		b.OwnerID,
		b.NovelID,
		b.ChapterIndex,
		b.Offset,
		nullString(b.Label),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetBookmark retrieves a bookmark by ID scoped to its owner.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetBookmark(ctx context.Context, id, ownerID string) (*domain.Bookmark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`, id, ownerID)

	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBookmark performs a full row update on an existing bookmark,
// scoped to its owner.
// Returns store.ErrNotFound if the bookmark does not exist.
func (s *Store) UpdateBookmark(ctx context.Context, b *domain.Bookmark) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bookmarks SET
			updated_at = ?,
			chapter_idx = ?,
			char_offset = ?,
			label = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		formatTime(b.UpdatedAt),
		b.ChapterIndex,
		b.Offset,
		nullString(b.Label),
		b.ID,
		b.OwnerID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteBookmark performs a hard delete on an owner's bookmark.
// Returns store.ErrNotFound if the bookmark does not exist.
func (s *Store) DeleteBookmark(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListBookmarksByNovel returns an owner's bookmarks for a novel in
// reading order.
func (s *Store) ListBookmarksByNovel(ctx context.Context, ownerID, novelID string) ([]*domain.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks
		WHERE owner_id = ? AND novel_id = ? AND deleted_at IS NULL
		ORDER BY chapter_idx ASC, char_offset ASC`, ownerID, novelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []*domain.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookmarks, nil
}
