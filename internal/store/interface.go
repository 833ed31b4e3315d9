// Package store defines the persistence interface for the Folio server.
package store

import (
	"context"
	"iter"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
)

// Store defines the interface for all persistence operations.
type Store interface {
	// Lifecycle
	Close() error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Auth Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	GetSessionByRefreshToken(ctx context.Context, tokenHash string) (*domain.Session, error)
	UpdateSession(ctx context.Context, session *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
	ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error)
	DeleteAllUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context) (int, error)

	// Instance
	GetInstance(ctx context.Context) (*domain.Instance, error)
	InitializeInstance(ctx context.Context, name, version string) (*domain.Instance, error)
	UpdateInstance(ctx context.Context, instance *domain.Instance) error

	// Novels
	CreateNovel(ctx context.Context, novel *domain.Novel) error
	GetNovel(ctx context.Context, id, ownerID string) (*domain.Novel, error)
	GetNovelBySourceURL(ctx context.Context, ownerID, sourceURL string) (*domain.Novel, error)
	UpdateNovel(ctx context.Context, novel *domain.Novel) error
	DeleteNovel(ctx context.Context, id, ownerID string) error
	ListNovels(ctx context.Context, ownerID string, params PaginationParams) (*PaginatedResult[*domain.Novel], error)
	ListAllNovels(ctx context.Context, ownerID string) ([]*domain.Novel, error)
	CountNovels(ctx context.Context, ownerID string) (int, error)

	// Chapters
	ReplaceChapters(ctx context.Context, novelID string, chapters []domain.Chapter) error
	GetChapter(ctx context.Context, novelID string, index int) (*domain.Chapter, error)
	UpdateChapterContent(ctx context.Context, novelID string, index int, content string, wordCount int) error
	ListChapters(ctx context.Context, novelID string) ([]*domain.Chapter, error)
	CountChapters(ctx context.Context, novelID string) (int, error)

	// Annotations
	GetAnnotation(ctx context.Context, id, ownerID string) (*domain.Annotation, error)
	ListAnnotationsByNovel(ctx context.Context, ownerID, novelID string) ([]*domain.Annotation, error)
	ListAnnotationsByChapter(ctx context.Context, ownerID, novelID string, chapterIndex int) ([]*domain.Annotation, error)
	UpsertAnnotation(ctx context.Context, a *domain.Annotation) error
	DeleteAnnotation(ctx context.Context, id, novelID, ownerID string) (bool, error)
	SyncAnnotations(ctx context.Context, ownerID, novelID string, changes []domain.AnnotationChange, now time.Time) (*domain.AnnotationSyncResult, error)
	CountAnnotations(ctx context.Context, ownerID string) (int, error)

	// Bookmarks
	CreateBookmark(ctx context.Context, b *domain.Bookmark) error
	GetBookmark(ctx context.Context, id, ownerID string) (*domain.Bookmark, error)
	UpdateBookmark(ctx context.Context, b *domain.Bookmark) error
	DeleteBookmark(ctx context.Context, id, ownerID string) error
	ListBookmarksByNovel(ctx context.Context, ownerID, novelID string) ([]*domain.Bookmark, error)

	// Reading Positions
	GetPosition(ctx context.Context, userID, novelID string) (*domain.ReadingPosition, error)
	UpsertPosition(ctx context.Context, pos *domain.ReadingPosition) (applied bool, err error)
	DeletePosition(ctx context.Context, userID, novelID string) error
	ListPositions(ctx context.Context, userID string, limit int) ([]*domain.ReadingPosition, error)

	// Export/Backup
	StreamUsers(ctx context.Context) iter.Seq2[*domain.User, error]
	StreamNovels(ctx context.Context) iter.Seq2[*domain.Novel, error]
	StreamAnnotations(ctx context.Context) iter.Seq2[*domain.Annotation, error]
	StreamBookmarks(ctx context.Context) iter.Seq2[*domain.Bookmark, error]
	StreamPositions(ctx context.Context) iter.Seq2[*domain.ReadingPosition, error]
}
