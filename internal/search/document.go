// Package search provides full-text search functionality using Bleve.
// It enables federated search across novels and annotations with owner
// scoping, faceted filtering, and fuzzy matching.
package search

import (
	"github.com/folioapp/folio-server/internal/domain"
)

// DocType represents the type of document in the unified index.
type DocType string

// Document types for the search index.
const (
	DocTypeNovel      DocType = "novel"
	DocTypeAnnotation DocType = "annotation"
)

// SearchDocument is the unified document structure for the Bleve index.
// All searchable entities are indexed as SearchDocuments with type
// discrimination.
//
// Design note: every document carries its owner so queries can be scoped
// server-side. Annotations additionally carry their novel so a reader can
// search highlights within a single book.
type SearchDocument struct {
	// Identity
	ID      string  `json:"id"`       // Original entity ID (nvl-xxx, or client annotation ID)
	Type    DocType `json:"type"`     // Discriminator for result grouping
	OwnerID string  `json:"owner_id"` // Owning user, applied as a filter on every query

	// Primary searchable text (different meaning per type)
	// Novel: title, Annotation: selected text
	Name string `json:"name"`

	// Novel-specific fields (empty for other types)
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`   // Canonical tag slugs
	Status      string   `json:"status,omitempty"` // ongoing, completed, unknown

	// Annotation-specific fields
	Note         string `json:"note,omitempty"`
	NovelID      string `json:"novel_id,omitempty"` // Parent novel for annotation scoping
	Kind         string `json:"kind,omitempty"`     // highlight, note, underline
	ChapterIndex int    `json:"chapter_index,omitempty"`

	// Numeric fields for range queries and sorting
	WordCount int64 `json:"word_count,omitempty"` // (novels only)

	// Timestamps for sorting
	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// IndexKey returns the document's key in the Bleve index. Novel IDs are
// globally unique; annotation IDs are client-generated and only unique
// per owner, so annotations are keyed by owner and ID together.
func (d *SearchDocument) IndexKey() string {
	if d.Type == DocTypeAnnotation {
		return AnnotationDocID(d.OwnerID, d.ID)
	}
	return d.ID
}

// ToMap converts the document to a map with lowercase field names.
// This ensures field names match the Bleve index mapping.
// Bleve by default uses Go struct field names (capitalized), but our
// mapping uses lowercase names, so we convert explicitly.
func (d *SearchDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"type":       string(d.Type),
		"owner_id":   d.OwnerID,
		"name":       d.Name,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}

	// Optional fields - only add if non-empty
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.Status != "" {
		m["status"] = d.Status
	}
	if d.Note != "" {
		m["note"] = d.Note
	}
	if d.NovelID != "" {
		m["novel_id"] = d.NovelID
	}
	if d.Kind != "" {
		m["kind"] = d.Kind
	}
	if d.ChapterIndex > 0 {
		m["chapter_index"] = d.ChapterIndex
	}
	if d.WordCount > 0 {
		m["word_count"] = d.WordCount
	}

	return m
}

// NovelToSearchDocument converts a domain Novel to a SearchDocument.
func NovelToSearchDocument(novel *domain.Novel) *SearchDocument {
	return &SearchDocument{
		ID:          novel.ID,
		Type:        DocTypeNovel,
		OwnerID:     novel.OwnerID,
		Name:        novel.Title,
		Author:      novel.Author,
		Description: novel.Description,
		Tags:        novel.Tags,
		Status:      string(novel.Status),
		WordCount:   novel.WordCount,
		CreatedAt:   novel.CreatedAt.UnixMilli(),
		UpdatedAt:   novel.UpdatedAt.UnixMilli(),
	}
}

// AnnotationToSearchDocument converts a domain Annotation to a SearchDocument.
func AnnotationToSearchDocument(a *domain.Annotation) *SearchDocument {
	return &SearchDocument{
		ID:           a.ID,
		Type:         DocTypeAnnotation,
		OwnerID:      a.OwnerID,
		Name:         a.SelectedText,
		Note:         a.Note,
		NovelID:      a.NovelID,
		Kind:         string(a.Kind),
		ChapterIndex: a.ChapterIndex,
		CreatedAt:    a.CreatedAt.UnixMilli(),
		UpdatedAt:    a.UpdatedAt.UnixMilli(),
	}
}

// AnnotationDocID builds the index key for an annotation. Client-generated
// annotation IDs collide across owners; the composite key does not.
func AnnotationDocID(ownerID, annotationID string) string {
	return ownerID + "/" + annotationID
}
