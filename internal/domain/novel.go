// Package domain contains the core business entities and domain logic for the Folio reading server.
package domain

import (
	"strings"
	"time"
)

// NovelStatus describes whether a serialized novel is still being published.
type NovelStatus string

const (
	NovelStatusOngoing   NovelStatus = "ongoing"
	NovelStatusCompleted NovelStatus = "completed"
	NovelStatusUnknown   NovelStatus = "unknown"
)

// Novel represents a web novel in a user's library. The server stores
// metadata and the chapter list; chapter bodies are fetched lazily from
// the source site and cached.
type Novel struct {
	Syncable
	OwnerID       string      `json:"owner_id"`
	Title         string      `json:"title"`
	Author        string      `json:"author,omitempty"`
	Description   string      `json:"description,omitempty"`
	Slug          string      `json:"slug"`
	SourceURL     string      `json:"source_url"`
	Language      string      `json:"language,omitempty"`
	Status        NovelStatus `json:"status"`
	Tags          []string    `json:"tags,omitempty"`
	CoverPath     string      `json:"cover_path,omitempty"`
	CoverBlurHash string      `json:"cover_blur_hash,omitempty"`
	ChapterCount  int         `json:"chapter_count"`
	WordCount     int64       `json:"word_count"`
	LastScrapedAt *time.Time  `json:"last_scraped_at,omitempty"`
}

// Chapter is one entry in a novel's table of contents. Content is empty
// until the chapter body has been fetched from the source; FetchedAt
// records when that happened.
type Chapter struct {
	NovelID   string     `json:"novel_id"`
	Index     int        `json:"index"`
	Title     string     `json:"title"`
	SourceURL string     `json:"source_url"`
	Content   string     `json:"content,omitempty"`
	WordCount int        `json:"word_count"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsFetched reports whether the chapter body has been downloaded.
func (c *Chapter) IsFetched() bool {
	return c.FetchedAt != nil
}

// HasTag reports whether the novel carries the given tag (case-insensitive).
func (n *Novel) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends a tag if it is not already present.
// Returns true if the tag was added.
func (n *Novel) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || n.HasTag(tag) {
		return false
	}
	n.Tags = append(n.Tags, tag)
	n.Touch()
	return true
}

// RemoveTag removes a tag by case-insensitive match.
// Returns true if a tag was removed.
func (n *Novel) RemoveTag(tag string) bool {
	for i, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			n.Tags = append(n.Tags[:i], n.Tags[i+1:]...)
			n.Touch()
			return true
		}
	}
	return false
}

// NormalizeNovelStatus maps arbitrary scraped status strings onto the
// known set, defaulting to unknown.
func NormalizeNovelStatus(s string) NovelStatus {
	switch NovelStatus(strings.ToLower(strings.TrimSpace(s))) {
	case NovelStatusOngoing:
		return NovelStatusOngoing
	case NovelStatusCompleted:
		return NovelStatusCompleted
	default:
		return NovelStatusUnknown
	}
}
