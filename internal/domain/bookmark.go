package domain

// Bookmark is a reader-placed marker at a single position in a novel.
// Unlike annotations, bookmarks carry no selected text; they mark a spot,
// not a range.
type Bookmark struct {
	Syncable
	OwnerID      string `json:"owner_id"`
	NovelID      string `json:"novel_id"`
	ChapterIndex int    `json:"chapter_index"`
	Offset       int    `json:"offset"`
	Label        string `json:"label,omitempty"`
}
