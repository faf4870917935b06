package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	// playbackRegressionSeconds is the backward jump that, combined with
	// a long idle gap, starts a fresh playback row.
	playbackRegressionSeconds = 120
	// playbackIdleGap is the idle period required before a regression is
	// treated as a rewatch.
	playbackIdleGap = 10 * time.Minute
)

// RecordPlayback upserts a playback-history row. The same (user, video,
// calendar day) updates in place, except that a backward jump of more than
// 120 seconds after more than 10 minutes of idle starts a new row.
func (db *Database) RecordPlayback(userID, videoID uint64, playlistID *uint64, seconds int, now time.Time) (*UserPlaybackHistory, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var row UserPlaybackHistory
	err := db.db.
		Where("user_id = ? AND video_id = ? AND updated_at >= ?", userID, videoID, dayStart).
		Order("updated_at DESC").
		First(&row).Error

	if err == nil {
		regressed := row.Seconds-seconds > playbackRegressionSeconds
		idle := now.Sub(row.UpdatedAt) > playbackIdleGap
		if !(regressed && idle) {
			row.Seconds = seconds
			row.PlaylistID = playlistID
			row.UpdatedAt = now
			if uerr := db.db.Save(&row).Error; uerr != nil {
				return nil, uerr
			}
			return &row, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := UserPlaybackHistory{
		UserID:     userID,
		VideoID:    videoID,
		PlaylistID: playlistID,
		Seconds:    seconds,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cerr := db.db.Create(&fresh).Error; cerr != nil {
		return nil, cerr
	}
	return &fresh, nil
}

// WatchedAtLeast reports whether any user's playback for the video reached
// the given fraction of its duration.
func (db *Database) WatchedAtLeast(videoID uint64, fraction float64) (bool, error) {
	video, err := db.GetVideoByID(videoID)
	if err != nil {
		return false, err
	}
	if video.Duration == 0 {
		return false, nil
	}
	threshold := int(float64(video.Duration) * fraction)
	var count int64
	err = db.db.Model(&UserPlaybackHistory{}).
		Where("video_id = ? AND seconds >= ?", videoID, threshold).
		Count(&count).Error
	return count > 0, err
}
