package models

import "time"

// ScanHistory is an append-only record of one scan pass over a channel or
// playlist. Download counters are bumped with atomic per-field increments.
type ScanHistory struct {
	ID         uint64  `gorm:"primaryKey"`
	ChannelID  *uint64 `gorm:"index"`
	PlaylistID *uint64 `gorm:"index"`

	VideosDownloaded      int
	ShortsDownloaded      int
	LivestreamsDownloaded int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DownloadError is an append-only record of one failed download attempt
type DownloadError struct {
	ID      uint64 `gorm:"primaryKey"`
	VideoID uint64 `gorm:"index"`

	Traceback       string
	RequestKwargs   JSONMap `gorm:"type:text"`
	QualitySelected int
	Attempt         int

	CreatedAt time.Time
}

// UserPlaybackHistory tracks per-user playback positions. At most one row
// per (user, video, calendar day), except when a large backward seek after
// a long idle gap starts a fresh row.
type UserPlaybackHistory struct {
	ID         uint64  `gorm:"primaryKey"`
	UserID     uint64  `gorm:"index"`
	VideoID    uint64  `gorm:"index"`
	PlaylistID *uint64 `gorm:"index"`

	Seconds int

	CreatedAt time.Time
	UpdatedAt time.Time
}
