package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// chapterColumns is the ordered list of columns selected in chapter queries.
// Must match the scan order in scanChapter.
const chapterColumns = `novel_id, idx, title, source_url, content, word_count,
	fetched_at, created_at, updated_at`

// scanChapter scans a sql.Row (or sql.Rows via its Scan method) into a domain.Chapter.
func scanChapter(scanner interface{ Scan(dest ...any) error }) (*domain.Chapter, error) {
	var c domain.Chapter

	var (
		content   sql.NullString
		fetchedAt sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&c.NovelID,
		&c.Index,
		&c.Title,
		&c.SourceURL,
		&content,
		&c.WordCount,
		&fetchedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	c.FetchedAt, err = parseNullableTime(fetchedAt)
	if err != nil {
		return nil, err
	}

	if content.Valid {
		c.Content = content.String
	}

	return &c, nil
}

// ReplaceChapters swaps a novel's table of contents in one transaction.
// Fetched chapter bodies survive the swap when the source URL at that
// index is unchanged, so a refreshed ToC does not throw away cached text.
func (s *Store) ReplaceChapters(ctx context.Context, novelID string, chapters []domain.Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Remember fetched bodies keyed by source URL before dropping the rows.
	rows, err := tx.QueryContext(ctx, `
		SELECT source_url, content, word_count, fetched_at FROM chapters
		WHERE novel_id = ? AND fetched_at IS NOT NULL`, novelID)
	if err != nil {
		return err
	}

	type fetchedBody struct {
		content   string
		wordCount int
		fetchedAt string
	}
	fetched := make(map[string]fetchedBody)
	for rows.Next() {
		var url string
		var body fetchedBody
		var content sql.NullString
		if err := rows.Scan(&url, &content, &body.wordCount, &body.fetchedAt); err != nil {
			rows.Close()
			return err
		}
		body.content = content.String
		fetched[url] = body
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE novel_id = ?`, novelID); err != nil {
		return err
	}

	now := formatTime(time.Now())
	for i := range chapters {
		ch := &chapters[i]

		content := nullString(ch.Content)
		wordCount := ch.WordCount
		fetchedAt := nullTimeString(ch.FetchedAt)
		if body, ok := fetched[ch.SourceURL]; ok && !content.Valid {
			content = nullString(body.content)
			wordCount = body.wordCount
			fetchedAt = sql.NullString{String: body.fetchedAt, Valid: true}
		}

		createdAt := now
		if !ch.CreatedAt.IsZero() {
			createdAt = formatTime(ch.CreatedAt)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO chapters (
				novel_id, idx, title, source_url, content, word_count,
				fetched_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			novelID,
			ch.Index,
			ch.Title,
			ch.SourceURL,
			content,
			wordCount,
			fetchedAt,
			createdAt,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.Index, err)
		}
	}

	return tx.Commit()
}

// GetChapter retrieves one chapter, including its body if fetched.
// Returns store.ErrNotFound if the chapter does not exist.
func (s *Store) GetChapter(ctx context.Context, novelID string, index int) (*domain.Chapter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE novel_id = ? AND idx = ?`,
		novelID, index)

	c, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateChapterContent stores a freshly fetched chapter body and stamps
// fetched_at.
// Returns store.ErrNotFound if the chapter does not exist.
func (s *Store) UpdateChapterContent(ctx context.Context, novelID string, index int, content string, wordCount int) error {
	now := formatTime(time.Now())

	result, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET content = ?, word_count = ?, fetched_at = ?, updated_at = ?
		WHERE novel_id = ? AND idx = ?`,
		content, wordCount, now, now, novelID, index)
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

// ListChapters returns a novel's table of contents in index order.
// Bodies are not included; fetch individual chapters for content.
func (s *Store) ListChapters(ctx context.Context, novelID string) ([]*domain.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT novel_id, idx, title, source_url, word_count, fetched_at, created_at, updated_at
		FROM chapters WHERE novel_id = ? ORDER BY idx ASC`, novelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []*domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		var fetchedAt sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(
			&c.NovelID,
			&c.Index,
			&c.Title,
			&c.SourceURL,
			&c.WordCount,
			&fetchedAt,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, err
		}

		c.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		c.FetchedAt, err = parseNullableTime(fetchedAt)
		if err != nil {
			return nil, err
		}

		chapters = append(chapters, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chapters, nil
}

// CountChapters returns the number of chapters in a novel's ToC.
func (s *Store) CountChapters(ctx context.Context, novelID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chapters WHERE novel_id = ?`, novelID).Scan(&count)
	return count, err
}
