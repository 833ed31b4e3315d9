// Package sse implements Server-Sent Events for real-time reading updates and event broadcasting.
package sse

import (
	"time"

	"github.com/folioapp/folio-server/internal/domain"
)

// Folio uses SSE for server-to-client communication only, since most
// interactions follow a request/response pattern. Annotation sync is
// client-initiated; events let other devices know a refresh is worth it.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventNovelCreated represents a novel registration event.
	EventNovelCreated EventType = "novel.created"
	// EventNovelUpdated represents a novel metadata update event.
	EventNovelUpdated EventType = "novel.updated"
	// EventNovelDeleted represents a novel deletion event.
	EventNovelDeleted EventType = "novel.deleted"

	// EventChapterFetched represents a chapter body becoming available.
	EventChapterFetched EventType = "chapter.fetched"

	// EventAnnotationsSynced represents a completed annotation sync batch.
	// Other devices of the same user use it as a refresh hint.
	EventAnnotationsSynced EventType = "annotations.synced"

	// EventPositionUpdated represents a reading position change.
	EventPositionUpdated EventType = "position.updated"

	// EventReadaloudCompleted represents a readaloud job finishing.
	EventReadaloudCompleted EventType = "readaloud.completed"
	// EventReadaloudFailed represents a readaloud job failing.
	EventReadaloudFailed EventType = "readaloud.failed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventSideloadImported represents an inbox file imported as a novel.
	// Only sent to admin users.
	EventSideloadImported EventType = "sideload.imported"

	// Backup job events (admin-only)
	EventBackupProgress  EventType = "backup.progress"
	EventBackupCompleted EventType = "backup.completed"
	EventBackupFailed    EventType = "backup.failed"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"` // Event-specific data as JSON object
	Type      EventType `json:"type"`

	// Filtering field for multi-user support. When set, the event is only
	// delivered to clients of that user. Empty string means "broadcast to all".
	UserID string `json:"-"` // Filter to specific user (not sent to client)
}

// NovelEventData is the data payload for novel events. Novels are
// self-contained, so events are immediately renderable without further
// queries.
type NovelEventData struct {
	Novel *domain.Novel `json:"novel"`
}

// NovelDeletedEventData is the data payload for novel delete events.
type NovelDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	NovelID   string    `json:"novel_id"`
}

// ChapterFetchedEventData is the data payload for chapter fetch events.
type ChapterFetchedEventData struct {
	FetchedAt    time.Time `json:"fetched_at"`
	NovelID      string    `json:"novel_id"`
	ChapterIndex int       `json:"chapter_index"`
	WordCount    int       `json:"word_count"`
}

// AnnotationsSyncedEventData is the data payload for annotation sync events.
// It carries the scope and counts of the batch, not the records themselves;
// devices pull the snapshot through the sync endpoint.
type AnnotationsSyncedEventData struct {
	SyncedAt time.Time `json:"synced_at"`
	NovelID  string    `json:"novel_id"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
}

// PositionUpdatedEventData is the data payload for reading position events.
type PositionUpdatedEventData struct {
	UpdatedAt    time.Time `json:"updated_at"`
	NovelID      string    `json:"novel_id"`
	ChapterIndex int       `json:"chapter_index"`
	Percent      float64   `json:"percent"`
}

// ReadaloudCompletedEventData is the data payload for readaloud completion events.
type ReadaloudCompletedEventData struct {
	JobID        string `json:"job_id"`
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
	SegmentCount int    `json:"segment_count"`
}

// ReadaloudFailedEventData is the data payload for readaloud failure events.
type ReadaloudFailedEventData struct {
	JobID        string `json:"job_id"`
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
	Error        string `json:"error"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// SideloadImportedEventData is the data payload for sideload import events.
type SideloadImportedEventData struct {
	ImportedAt time.Time `json:"imported_at"`
	NovelID    string    `json:"novel_id"`
	Title      string    `json:"title"`
	FileName   string    `json:"file_name"`
	Chapters   int       `json:"chapters"`
}

// BackupProgressEventData is the data payload for backup progress events.
type BackupProgressEventData struct {
	JobID    string `json:"job_id"`
	Stage    string `json:"stage"`
	Entities int    `json:"entities"`
}

// BackupCompletedEventData is the data payload for backup completion events.
type BackupCompletedEventData struct {
	CompletedAt time.Time `json:"completed_at"`
	JobID       string    `json:"job_id"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
}

// BackupFailedEventData is the data payload for backup failure events.
type BackupFailedEventData struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// NewNovelCreatedEvent creates a novel.created event for the novel's owner.
func NewNovelCreatedEvent(novel *domain.Novel) Event {
	return Event{
		Type:      EventNovelCreated,
		Data:      NovelEventData{Novel: novel},
		Timestamp: time.Now(),
		UserID:    novel.OwnerID,
	}
}

// NewNovelUpdatedEvent creates a novel.updated event for the novel's owner.
func NewNovelUpdatedEvent(novel *domain.Novel) Event {
	return Event{
		Type:      EventNovelUpdated,
		Data:      NovelEventData{Novel: novel},
		Timestamp: time.Now(),
		UserID:    novel.OwnerID,
	}
}

// NewNovelDeletedEvent creates a novel.deleted event for the novel's owner.
func NewNovelDeletedEvent(ownerID, novelID string, deletedAt time.Time) Event {
	return Event{
		Type: EventNovelDeleted,
		Data: NovelDeletedEventData{
			NovelID:   novelID,
			DeletedAt: deletedAt,
		},
		Timestamp: time.Now(),
		UserID:    ownerID,
	}
}

// NewChapterFetchedEvent creates a chapter.fetched event for the novel's owner.
func NewChapterFetchedEvent(ownerID string, chapter *domain.Chapter) Event {
	fetchedAt := time.Now()
	if chapter.FetchedAt != nil {
		fetchedAt = *chapter.FetchedAt
	}
	return Event{
		Type: EventChapterFetched,
		Data: ChapterFetchedEventData{
			NovelID:      chapter.NovelID,
			ChapterIndex: chapter.Index,
			WordCount:    chapter.WordCount,
			FetchedAt:    fetchedAt,
		},
		Timestamp: time.Now(),
		UserID:    ownerID,
	}
}

// NewAnnotationsSyncedEvent creates an annotations.synced event for the owner.
func NewAnnotationsSyncedEvent(ownerID, novelID string, created, updated, deleted int, syncedAt time.Time) Event {
	return Event{
		Type: EventAnnotationsSynced,
		Data: AnnotationsSyncedEventData{
			NovelID:  novelID,
			Created:  created,
			Updated:  updated,
			Deleted:  deleted,
			SyncedAt: syncedAt,
		},
		Timestamp: time.Now(),
		UserID:    ownerID,
	}
}

// NewPositionUpdatedEvent creates a position.updated event for the position's user.
func NewPositionUpdatedEvent(pos *domain.ReadingPosition) Event {
	return Event{
		Type: EventPositionUpdated,
		Data: PositionUpdatedEventData{
			NovelID:      pos.NovelID,
			ChapterIndex: pos.ChapterIndex,
			Percent:      pos.Percent,
			UpdatedAt:    pos.UpdatedAt,
		},
		Timestamp: time.Now(),
		UserID:    pos.UserID,
	}
}

// NewReadaloudCompletedEvent creates a readaloud.completed event.
func NewReadaloudCompletedEvent(userID, jobID, novelID string, chapterIndex, segmentCount int) Event {
	return Event{
		Type: EventReadaloudCompleted,
		Data: ReadaloudCompletedEventData{
			JobID:        jobID,
			NovelID:      novelID,
			ChapterIndex: chapterIndex,
			SegmentCount: segmentCount,
		},
		Timestamp: time.Now(),
		UserID:    userID,
	}
}

// NewReadaloudFailedEvent creates a readaloud.failed event.
func NewReadaloudFailedEvent(userID, jobID, novelID string, chapterIndex int, errMsg string) Event {
	return Event{
		Type: EventReadaloudFailed,
		Data: ReadaloudFailedEventData{
			JobID:        jobID,
			NovelID:      novelID,
			ChapterIndex: chapterIndex,
			Error:        errMsg,
		},
		Timestamp: time.Now(),
		UserID:    userID,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

// NewSideloadImportedEvent creates a sideload.imported event for admin users.
func NewSideloadImportedEvent(novelID, title, fileName string, chapters int) Event {
	return Event{
		Type: EventSideloadImported,
		Data: SideloadImportedEventData{
			NovelID:    novelID,
			Title:      title,
			FileName:   fileName,
			Chapters:   chapters,
			ImportedAt: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

// NewBackupProgressEvent creates a backup.progress event for admin users.
func NewBackupProgressEvent(jobID, stage string, entities int) Event {
	return Event{
		Type: EventBackupProgress,
		Data: BackupProgressEventData{
			JobID:    jobID,
			Stage:    stage,
			Entities: entities,
		},
		Timestamp: time.Now(),
	}
}

// NewBackupCompletedEvent creates a backup.completed event for admin users.
func NewBackupCompletedEvent(jobID, path string, sizeBytes int64) Event {
	return Event{
		Type: EventBackupCompleted,
		Data: BackupCompletedEventData{
			JobID:       jobID,
			Path:        path,
			SizeBytes:   sizeBytes,
			CompletedAt: time.Now(),
		},
		Timestamp: time.Now(),
	}
}

// NewBackupFailedEvent creates a backup.failed event for admin users.
func NewBackupFailedEvent(jobID, errMsg string) Event {
	return Event{
		Type: EventBackupFailed,
		Data: BackupFailedEventData{
			JobID: jobID,
			Error: errMsg,
		},
		Timestamp: time.Now(),
	}
}
