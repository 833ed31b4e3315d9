package domain

import "time"

// ReadingPosition is the furthest-read marker for one user in one novel.
// There is exactly one row per (user, novel) pair; devices race to update
// it and last-write-wins on the client-reported UpdatedAt.
type ReadingPosition struct {
	UserID       string    `json:"user_id"`
	NovelID      string    `json:"novel_id"`
	ChapterIndex int       `json:"chapter_index"`
	Offset       int       `json:"offset"`
	Percent      float64   `json:"percent"` // 0.0 - 1.0 through the whole novel
	UpdatedAt    time.Time `json:"updated_at"`
	SyncedAt     time.Time `json:"synced_at"`
}

// SupersededBy reports whether an incoming position should replace this one.
// Ties go to the incoming write so retried uploads converge.
func (p *ReadingPosition) SupersededBy(incoming *ReadingPosition) bool {
	return !incoming.UpdatedAt.Before(p.UpdatedAt)
}

// IsFinished reports whether the reader has effectively completed the novel.
func (p *ReadingPosition) IsFinished() bool {
	return p.Percent >= 0.99
}
