package sqlite

import (
	"context"
	"iter"

	"github.com/folioapp/folio-server/internal/domain"
)

// Stream methods for export/backup. Each returns a pull iterator over one
// table so backups never materialize a whole library in memory.

// StreamUsers returns an iterator over all non-deleted users.
func (s *Store) StreamUsers(ctx context.Context) iter.Seq2[*domain.User, error] {
	return func(yield func(*domain.User, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			u, err := scanUser(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(u, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// StreamNovels returns an iterator over all non-deleted novels across owners.
func (s *Store) StreamNovels(ctx context.Context) iter.Seq2[*domain.Novel, error] {
	return func(yield func(*domain.Novel, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+novelColumns+` FROM novels WHERE deleted_at IS NULL ORDER BY id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			n, err := scanNovel(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(n, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// StreamChapters returns an iterator over all chapters, bodies included.
// Rows are grouped by novel so consumers can batch per novel.
func (s *Store) StreamChapters(ctx context.Context) iter.Seq2[*domain.Chapter, error] {
	return func(yield func(*domain.Chapter, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+chapterColumns+` FROM chapters ORDER BY novel_id, idx`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			c, err := scanChapter(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(c, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// StreamAnnotations returns an iterator over all annotations across owners.
func (s *Store) StreamAnnotations(ctx context.Context) iter.Seq2[*domain.Annotation, error] {
	return func(yield func(*domain.Annotation, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+annotationColumns+` FROM annotations ORDER BY owner_id, novel_id, chapter_idx, start_offset`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			a, err := scanAnnotation(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(a, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// StreamBookmarks returns an iterator over all non-deleted bookmarks.
func (s *Store) StreamBookmarks(ctx context.Context) iter.Seq2[*domain.Bookmark, error] {
	return func(yield func(*domain.Bookmark, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+bookmarkColumns+` FROM bookmarks WHERE deleted_at IS NULL ORDER BY id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			b, err := scanBookmark(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(b, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// StreamPositions returns an iterator over all reading positions.
func (s *Store) StreamPositions(ctx context.Context) iter.Seq2[*domain.ReadingPosition, error] {
	return func(yield func(*domain.ReadingPosition, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+positionColumns+` FROM reading_positions ORDER BY user_id, novel_id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			p, err := scanPosition(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(p, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
