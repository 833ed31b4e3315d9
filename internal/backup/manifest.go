package backup

import "time"

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// manifestName is the archive entry holding the manifest. It is written
// last, so its presence marks a completely written archive.
const manifestName = "manifest.json"

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	// Server identity
	ServerID     string `json:"server_id"`
	ServerName   string `json:"server_name"`
	FolioVersion string `json:"folio_version"`

	// Content summary
	Counts EntityCounts `json:"counts"`

	// What's included
	IncludesCovers bool `json:"includes_covers"`
}

// EntityCounts tracks entity counts for validation and progress reporting.
type EntityCounts struct {
	Users       int `json:"users"`
	Novels      int `json:"novels"`
	Chapters    int `json:"chapters"`
	Annotations int `json:"annotations"`
	Bookmarks   int `json:"bookmarks"`
	Positions   int `json:"positions"`
	Covers      int `json:"covers,omitempty"`
}
