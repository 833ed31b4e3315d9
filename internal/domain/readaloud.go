package domain

import "time"

// ReadaloudStatus tracks a speech synthesis job through the vendor pipeline.
type ReadaloudStatus string

const (
	ReadaloudStatusPending    ReadaloudStatus = "pending"
	ReadaloudStatusProcessing ReadaloudStatus = "processing"
	ReadaloudStatusCompleted  ReadaloudStatus = "completed"
	ReadaloudStatusFailed     ReadaloudStatus = "failed"
)

// IsTerminal reports whether the job has stopped moving.
func (s ReadaloudStatus) IsTerminal() bool {
	return s == ReadaloudStatusCompleted || s == ReadaloudStatusFailed
}

// ReadaloudJob is a text-to-speech rendering of one chapter. The server
// submits chapter text to the speech vendor, polls until the job settles,
// and caches the resulting segments for streaming.
type ReadaloudJob struct {
	ID           string             `json:"id"` // vendor-assigned job ID
	OwnerID      string             `json:"owner_id"`
	NovelID      string             `json:"novel_id"`
	ChapterIndex int                `json:"chapter_index"`
	Voice        string             `json:"voice"`
	Status       ReadaloudStatus    `json:"status"`
	Error        string             `json:"error,omitempty"`
	Segments     []ReadaloudSegment `json:"segments,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ReadaloudSegment is one audio chunk of a completed job. Word timings let
// clients highlight the text in step with playback.
type ReadaloudSegment struct {
	Index       int          `json:"index"`
	Format      string       `json:"format"` // mp3
	DurationSec float64      `json:"duration_sec"`
	Timings     []WordTiming `json:"timings,omitempty"`
}

// WordTiming maps one spoken word to its offset in the synthesized audio.
type WordTiming struct {
	Word     string  `json:"word"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// ReadaloudVoice describes one voice offered by the speech vendor.
type ReadaloudVoice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}
