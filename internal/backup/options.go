package backup

import "time"

// BackupOptions configures backup creation.
type BackupOptions struct {
	IncludeCovers bool   // Include downloaded cover images
	OutputPath    string // Where to write the archive; empty for a timestamped file in the backup dir
}

// BackupResult contains the outcome of a backup operation.
type BackupResult struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
	Checksum string        `json:"checksum"`
}

// BackupInfo describes an existing backup archive.
type BackupInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RestoreResult contains the outcome of a restore operation.
type RestoreResult struct {
	Imported map[string]int `json:"imported"`
	Errors   []RestoreError `json:"errors,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// RestoreError describes a non-fatal error during restore. Bad records
// are reported and skipped instead of aborting the whole restore.
type RestoreError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Error      string `json:"error"`
}

// ValidationResult describes backup validity.
type ValidationResult struct {
	Valid          bool         `json:"valid"`
	Manifest       *Manifest    `json:"manifest,omitempty"`
	ExpectedCounts EntityCounts `json:"expected_counts"`
	Errors         []string     `json:"errors,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}
