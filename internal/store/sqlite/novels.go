package sqlite

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"fmt"
	"strings"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/store"
)

// novelColumns is the ordered list of columns selected in novel queries.
// Must match the scan order in scanNovel.
const novelColumns = `id, created_at, updated_at, deleted_at, owner_id,
	title, author, description, slug, source_url, language, status, tags,
	cover_path, cover_blur_hash, chapter_count, word_count, last_scraped_at`

// scanNovel scans a sql.Row (or sql.Rows via its Scan method) into a domain.Novel.
func scanNovel(scanner interface{ Scan(dest ...any) error }) (*domain.Novel, error) {
	var n domain.Novel

	var (
		createdAt     string
		updatedAt     string
		deletedAt     sql.NullString
		author        sql.NullString
		description   sql.NullString
		language      sql.NullString
		status        string
		tagsJSON      string
		coverPath     sql.NullString
		coverBlurHash sql.NullString
		lastScrapedAt sql.NullString
	)

	err := scanner.Scan(
		&n.ID,
		&createdAt,
		&updatedAt,
		&deletedAt,
		&n.OwnerID,
		&n.Title,
		&author,
		&description,
		&n.Slug,
		&n.SourceURL,
		&language,
		&status,
		&tagsJSON,
		&coverPath,
		&coverBlurHash,
		&n.ChapterCount,
		&n.WordCount,
		&lastScrapedAt,
	)
	if err != nil {
		return nil, err
	}

	// Parse timestamps.
	n.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	n.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	n.DeletedAt, err = parseNullableTime(deletedAt)
	if err != nil {
		return nil, err
	}
	n.LastScrapedAt, err = parseNullableTime(lastScrapedAt)
	if err != nil {
		return nil, err
	}

	// Optional string fields.
	if author.Valid {
		n.Author = author.String
	}
	if description.Valid {
		n.Description = description.String
	}
	if language.Valid {
		n.Language = language.String
	}
	if coverPath.Valid {
		n.CoverPath = coverPath.String
	}
	if coverBlurHash.Valid {
		n.CoverBlurHash = coverBlurHash.String
	}

	n.Status = domain.NovelStatus(status)

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}

	return &n, nil
}

// marshalTags serializes a tag list for the tags TEXT column.
func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

// CreateNovel inserts a new novel.
// Returns store.ErrAlreadyExists if the ID is taken or the owner already
// has a novel with the same source URL.
func (s *Store) CreateNovel(ctx context.Context, novel *domain.Novel) error {
	tagsJSON, err := marshalTags(novel.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO novels (
			id, created_at, updated_at, deleted_at, owner_id,
			title, author, description, slug, source_url, language, status, tags,
			cover_path, cover_blur_hash, chapter_count, word_count, last_scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		novel.ID,
		formatTime(novel.CreatedAt),
		formatTime(novel.UpdatedAt),
		nullTimeString(novel.DeletedAt),
		novel.OwnerID,
		novel.Title,
		nullString(novel.Author),
		nullString(novel.Description),
		novel.Slug,
		novel.SourceURL,
		nullString(novel.Language),
		string(novel.Status),
		tagsJSON,
		nullString(novel.CoverPath),
		nullString(novel.CoverBlurHash),
		novel.ChapterCount,
		novel.WordCount,
		nullTimeString(novel.LastScrapedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetNovel retrieves a novel by ID scoped to its owner, excluding
// soft-deleted records.
// Returns store.ErrNotFound if the novel does not exist for that owner.
func (s *Store) GetNovel(ctx context.Context, id, ownerID string) (*domain.Novel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+novelColumns+` FROM novels
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`, id, ownerID)

	n, err := scanNovel(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GetNovelBySourceURL retrieves an owner's novel by its source URL.
// Used to detect duplicate imports before scraping.
// Returns store.ErrNotFound if no such novel exists.
func (s *Store) GetNovelBySourceURL(ctx context.Context, ownerID, sourceURL string) (*domain.Novel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+novelColumns+` FROM novels
		WHERE owner_id = ? AND source_url = ? AND deleted_at IS NULL`, ownerID, sourceURL)

	n, err := scanNovel(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateNovel performs a full row update on an existing novel.
// Returns store.ErrNotFound if the novel does not exist or is soft-deleted.
func (s *Store) UpdateNovel(ctx context.Context, novel *domain.Novel) error {
	tagsJSON, err := marshalTags(novel.Tags)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE novels SET
			created_at = ?,
			updated_at = ?,
			title = ?,
			author = ?,
			description = ?,
			slug = ?,
			source_url = ?,
			language = ?,
			status = ?,
			tags = ?,
			cover_path = ?,
			cover_blur_hash = ?,
			chapter_count = ?,
			word_count = ?,
			last_scraped_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		formatTime(novel.CreatedAt),
		formatTime(novel.UpdatedAt),
		novel.Title,
		nullString(novel.Author),
		nullString(novel.Description),
		novel.Slug,
		novel.SourceURL,
		nullString(novel.Language),
		string(novel.Status),
		tagsJSON,
		nullString(novel.CoverPath),
		nullString(novel.CoverBlurHash),
		novel.ChapterCount,
		novel.WordCount,
		nullTimeString(novel.LastScrapedAt),
		novel.ID,
		novel.OwnerID,
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

// DeleteNovel performs a hard delete on an owner's novel. Chapters,
// annotations, bookmarks, and positions go with it via ON DELETE CASCADE.
// Returns store.ErrNotFound if the novel does not exist for that owner.
func (s *Store) DeleteNovel(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM novels WHERE id = ? AND owner_id = ?`, id, ownerID)
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

// ListNovels returns a paginated list of an owner's non-deleted novels
// ordered by updated_at, id.
func (s *Store) ListNovels(ctx context.Context, ownerID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Novel], error) {
	params.Validate()

	// Decode cursor: format is "updated_at|id".
	var cursorTime, cursorID string
	if params.Cursor != "" {
		decoded, err := store.DecodeCursor(params.Cursor)
		if err != nil {
			return nil, fmt.Errorf("decode cursor: %w", err)
		}
		parts := strings.SplitN(decoded, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cursor format")
		}
		cursorTime = parts[0]
		cursorID = parts[1]
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM novels WHERE owner_id = ? AND deleted_at IS NULL`, ownerID).Scan(&total)
	if err != nil {
		return nil, err
	}

	// Fetch limit+1 rows to determine hasMore.
	var rows *sql.Rows
	if cursorTime == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+novelColumns+` FROM novels
			WHERE owner_id = ? AND deleted_at IS NULL
			ORDER BY updated_at ASC, id ASC
			LIMIT ?`, ownerID, params.Limit+1)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+novelColumns+` FROM novels
			WHERE owner_id = ? AND deleted_at IS NULL
			AND (updated_at > ? OR (updated_at = ? AND id > ?))
			ORDER BY updated_at ASC, id ASC
			LIMIT ?`, ownerID, cursorTime, cursorTime, cursorID, params.Limit+1)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var novels []*domain.Novel
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, err
		}
		novels = append(novels, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(novels) > params.Limit
	if hasMore {
		novels = novels[:params.Limit]
	}

	var nextCursor string
	if hasMore && len(novels) > 0 {
		last := novels[len(novels)-1]
		nextCursor = store.EncodeCursor(formatTime(last.UpdatedAt) + "|" + last.ID)
	}

	return &store.PaginatedResult[*domain.Novel]{
		Items:      novels,
		Total:      total,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, nil
}

// ListAllNovels returns every non-deleted novel for an owner, unpaginated.
func (s *Store) ListAllNovels(ctx context.Context, ownerID string) ([]*domain.Novel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+novelColumns+` FROM novels
		WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var novels []*domain.Novel
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, err
		}
		novels = append(novels, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return novels, nil
}

// CountNovels returns the number of non-deleted novels for an owner.
func (s *Store) CountNovels(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM novels WHERE owner_id = ? AND deleted_at IS NULL`, ownerID).Scan(&count)
	return count, err
}
