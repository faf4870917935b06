package models

import "time"

// Highlight is a timestamp of interest on a video. Provider chapters and
// user highlights are the same entity discriminated by Source.
type Highlight struct {
	ID      uint64 `gorm:"primaryKey"`
	VideoID uint64 `gorm:"index;uniqueIndex:idx_video_point_source"`

	Point    int  `gorm:"uniqueIndex:idx_video_point_source"` // Seconds
	EndPoint *int // Seconds, optional

	Note   string
	Source HighlightSource `gorm:"uniqueIndex:idx_video_point_source"`
	UserID *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DurationSkip is a [start, end) interval the player should elide
type DurationSkip struct {
	ID      uint64 `gorm:"primaryKey"`
	VideoID uint64 `gorm:"index"`

	Start int // Seconds
	End   int

	SBCategory string // SponsorBlock category when sourced from the API
	SBUUID     string `gorm:"index"`

	CreatedAt time.Time
}

// Overlaps reports whether the interval overlaps other. When
// allowStartToOverlapEnd is true, intervals that merely touch at a boundary
// (one's start equals the other's end) are not considered overlapping.
func (s DurationSkip) Overlaps(other DurationSkip, allowStartToOverlapEnd bool) bool {
	if allowStartToOverlapEnd {
		return s.Start < other.End && other.Start < s.End
	}
	return s.Start <= other.End && other.Start <= s.End
}
