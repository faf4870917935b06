package models

import "time"

// Comment is one provider comment. The tree is stored as parent pointer
// plus a materialised path of provider ids for subtree queries. Text is
// immutable once stored.
type Comment struct {
	ID         uint64 `gorm:"primaryKey"`
	VideoID    uint64 `gorm:"index;uniqueIndex:idx_video_comment"`
	ProviderID string `gorm:"uniqueIndex:idx_video_comment"`

	ParentID *uint64 `gorm:"index"`
	// Slash-joined provider ids from the root comment down to this one
	Path string `gorm:"index"`

	Author    string
	AuthorID  string
	Text      string
	LikeCount int
	Timestamp *time.Time

	CreatedAt time.Time
}
