package domain

import (
	"errors"
	"time"
)

// AnnotationKind classifies what the reader did to a text range.
type AnnotationKind string

const (
	// AnnotationKindHighlight marks a colored text range.
	AnnotationKindHighlight AnnotationKind = "highlight"
	// AnnotationKindNote marks a text range with an attached note.
	AnnotationKindNote AnnotationKind = "note"
	// AnnotationKindUnderline marks an underlined text range.
	AnnotationKindUnderline AnnotationKind = "underline"
)

// IsValid returns true if the kind is one of the known values.
func (k AnnotationKind) IsValid() bool {
	switch k {
	case AnnotationKindHighlight, AnnotationKindNote, AnnotationKindUnderline:
		return true
	}
	return false
}

// AnnotationColor is the display color of a highlight or underline.
type AnnotationColor string

const (
	AnnotationColorYellow AnnotationColor = "yellow"
	AnnotationColorGreen  AnnotationColor = "green"
	AnnotationColorBlue   AnnotationColor = "blue"
	AnnotationColorPink   AnnotationColor = "pink"
	AnnotationColorPurple AnnotationColor = "purple"
	AnnotationColorOrange AnnotationColor = "orange"
)

// DefaultAnnotationColor is substituted for missing or unknown colors.
const DefaultAnnotationColor = AnnotationColorYellow

// IsValid returns true if the color is part of the supported palette.
func (c AnnotationColor) IsValid() bool {
	switch c {
	case AnnotationColorYellow, AnnotationColorGreen, AnnotationColorBlue,
		AnnotationColorPink, AnnotationColorPurple, AnnotationColorOrange:
		return true
	}
	return false
}

// NormalizeAnnotationColor coerces unknown colors to the default instead of
// rejecting the record. Old clients keep working when the palette changes.
func NormalizeAnnotationColor(c AnnotationColor) AnnotationColor {
	if c.IsValid() {
		return c
	}
	return DefaultAnnotationColor
}

// Annotation is a highlight, note, or underline anchored to a text range
// within one chapter of a novel. IDs are client-generated so devices can
// create annotations offline; the (ID, OwnerID) pair is the identity the
// server reconciles against.
//
// Offsets are rune positions into the chapter's plain text. They are the
// authoritative anchor; ParagraphIndex and ParagraphTextPreview are
// best-effort hints for re-anchoring after the chapter text changes
// upstream, and the server never interprets them.
type Annotation struct {
	ID                   string          `json:"id"`
	OwnerID              string          `json:"owner_id"`
	NovelID              string          `json:"novel_id"`
	ChapterIndex         int             `json:"chapter_index"`
	ChapterURL           string          `json:"chapter_url,omitempty"`
	Kind                 AnnotationKind  `json:"kind"`
	Color                AnnotationColor `json:"color"`
	SelectedText         string          `json:"selected_text"`
	Note                 string          `json:"note,omitempty"`
	StartOffset          int             `json:"start_offset"`
	EndOffset            int             `json:"end_offset"`
	ParagraphIndex       *int            `json:"paragraph_index,omitempty"`
	ParagraphTextPreview string          `json:"paragraph_text_preview,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	SyncedAt             time.Time       `json:"synced_at"`
}

// Validation errors for annotations. The messages double as the reason
// strings reported back to clients in sync responses.
var (
	ErrAnnotationOwnerRequired     = errors.New("owner_id is required")
	ErrAnnotationNovelRequired     = errors.New("novel_id is required")
	ErrAnnotationKindRequired      = errors.New("kind is required")
	ErrAnnotationKindUnknown       = errors.New("kind must be one of highlight, note, underline")
	ErrAnnotationTextRequired      = errors.New("selected_text must not be empty")
	ErrAnnotationChapterNegative   = errors.New("chapter_index must not be negative")
	ErrAnnotationOffsetNegative    = errors.New("start_offset must not be negative")
	ErrAnnotationOffsetsOutOfOrder = errors.New("start_offset must be less than end_offset")
)

// Validate checks the structural rules every stored annotation must satisfy.
// Color is deliberately absent here: unknown colors are coerced, not rejected.
func (a *Annotation) Validate() error {
	if a.OwnerID == "" {
		return ErrAnnotationOwnerRequired
	}
	if a.NovelID == "" {
		return ErrAnnotationNovelRequired
	}
	if a.Kind == "" {
		return ErrAnnotationKindRequired
	}
	if !a.Kind.IsValid() {
		return ErrAnnotationKindUnknown
	}
	if a.SelectedText == "" {
		return ErrAnnotationTextRequired
	}
	if a.ChapterIndex < 0 {
		return ErrAnnotationChapterNegative
	}
	if a.StartOffset < 0 {
		return ErrAnnotationOffsetNegative
	}
	if a.StartOffset >= a.EndOffset {
		return ErrAnnotationOffsetsOutOfOrder
	}
	return nil
}

// AnnotationChange is one record in a client's sync batch: either a
// tombstone identifying an annotation to delete, or the full desired
// state of an annotation. The wire payload marks deletions with a flag;
// the API layer resolves that into this tagged form so nothing past the
// request boundary has to sniff shapes.
type AnnotationChange struct {
	ID         string
	Deleted    bool
	Annotation *Annotation // nil for tombstones
}

// SyncAction is the reconciler's verdict for a single change.
type SyncAction string

const (
	SyncActionCreate   SyncAction = "create"
	SyncActionUpdate   SyncAction = "update"
	SyncActionDelete   SyncAction = "delete"
	SyncActionConflict SyncAction = "conflict"
	SyncActionInvalid  SyncAction = "invalid"
)

// AnnotationConflict reports a client edit that lost last-write-wins.
// The client record is left untouched server-side; both timestamps are
// returned so the client can decide whether to rebase or drop its copy.
type AnnotationConflict struct {
	ID              string    `json:"id"`
	ClientUpdatedAt time.Time `json:"client_updated_at"`
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}

// AnnotationSyncFailure reports a record that was skipped by validation.
type AnnotationSyncFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// AnnotationDecision is the outcome of reconciling one change.
// Record is set for create and update, Conflict for conflict, and
// Reason for invalid.
type AnnotationDecision struct {
	Action   SyncAction
	Record   *Annotation
	Conflict *AnnotationConflict
	Reason   string
}

// ReconcileAnnotation decides the fate of one incoming change against the
// current server record (nil when none exists). It is pure: no clock reads,
// no storage. The caller supplies now, looks up existing by (ID, OwnerID),
// and applies the returned decision inside its transaction.
//
// Rules, in order:
//   - Tombstones always delete. Deleting something already gone is a no-op,
//     not an error; the store reports whether a row actually went away.
//   - A change with no server counterpart is validated and inserted with
//     the client's timestamps, defaulted to now when omitted.
//   - Otherwise last-write-wins on UpdatedAt. Ties go to the client so
//     retransmitted batches stay idempotent. The winner overwrites only
//     mutable content fields; CreatedAt and identity are never touched.
//   - A stale client edit becomes a conflict report and the server record
//     stays as it was.
func ReconcileAnnotation(change AnnotationChange, existing *Annotation, now time.Time) AnnotationDecision {
	if change.Deleted {
		return AnnotationDecision{Action: SyncActionDelete}
	}

	// The API boundary always populates Annotation for non-tombstones,
	// but other callers build changes by hand.
	if change.Annotation == nil {
		return AnnotationDecision{Action: SyncActionInvalid, Reason: "change carries neither a record nor a tombstone"}
	}

	incoming := *change.Annotation
	incoming.Color = NormalizeAnnotationColor(incoming.Color)
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = now
	}
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = now
	}

	if existing == nil {
		if err := incoming.Validate(); err != nil {
			return AnnotationDecision{Action: SyncActionInvalid, Reason: err.Error()}
		}
		incoming.SyncedAt = now
		return AnnotationDecision{Action: SyncActionCreate, Record: &incoming}
	}

	if incoming.UpdatedAt.Before(existing.UpdatedAt) {
		return AnnotationDecision{
			Action: SyncActionConflict,
			Conflict: &AnnotationConflict{
				ID:              existing.ID,
				ClientUpdatedAt: incoming.UpdatedAt,
				ServerUpdatedAt: existing.UpdatedAt,
			},
		}
	}

	if err := incoming.Validate(); err != nil {
		return AnnotationDecision{Action: SyncActionInvalid, Reason: err.Error()}
	}

	merged := *existing
	merged.ChapterIndex = incoming.ChapterIndex
	merged.ChapterURL = incoming.ChapterURL
	merged.Kind = incoming.Kind
	merged.Color = incoming.Color
	merged.SelectedText = incoming.SelectedText
	merged.Note = incoming.Note
	merged.StartOffset = incoming.StartOffset
	merged.EndOffset = incoming.EndOffset
	merged.ParagraphIndex = incoming.ParagraphIndex
	merged.ParagraphTextPreview = incoming.ParagraphTextPreview
	merged.UpdatedAt = incoming.UpdatedAt
	merged.SyncedAt = now
	return AnnotationDecision{Action: SyncActionUpdate, Record: &merged}
}

// AnnotationSyncResult summarizes one applied sync batch. Annotations holds
// the full post-sync snapshot for the novel, ordered by chapter and start
// offset, so clients replace local state instead of patching it.
type AnnotationSyncResult struct {
	Created            int                     `json:"created"`
	Updated            int                     `json:"updated"`
	Deleted            int                     `json:"deleted"`
	Conflicts          []AnnotationConflict    `json:"conflicts"`
	ValidationFailures []AnnotationSyncFailure `json:"validation_failures"`
	ServerTime         time.Time               `json:"server_time"`
	Annotations        []*Annotation           `json:"annotations"`
}
