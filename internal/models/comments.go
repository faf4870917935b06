package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/archivarr/archivarr/internal/provider"
)

// UpsertComment inserts a provider comment if its id is unseen for the
// video. Text is immutable; existing rows only refresh the like count.
func (db *Database) UpsertComment(videoID uint64, c provider.Comment) (*Comment, bool, error) {
	var existing Comment
	err := db.db.Where("video_id = ? AND provider_id = ?", videoID, c.ID).First(&existing).Error
	if err == nil {
		if existing.LikeCount != c.LikeCount {
			existing.LikeCount = c.LikeCount
			if uerr := db.db.Model(&existing).Update("like_count", c.LikeCount).Error; uerr != nil {
				return nil, false, uerr
			}
		}
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	comment := Comment{
		VideoID:    videoID,
		ProviderID: c.ID,
		Author:     c.Author,
		AuthorID:   c.AuthorID,
		Text:       c.Text,
		LikeCount:  c.LikeCount,
		Path:       c.ID,
	}
	if c.Timestamp > 0 {
		ts := time.Unix(c.Timestamp, 0)
		comment.Timestamp = &ts
	}

	if c.ParentID != "" && c.ParentID != "root" {
		var parent Comment
		if perr := db.db.Where("video_id = ? AND provider_id = ?", videoID, c.ParentID).
			First(&parent).Error; perr == nil {
			comment.ParentID = &parent.ID
			comment.Path = parent.Path + "/" + c.ID
		}
	}

	if cerr := db.db.Create(&comment).Error; cerr != nil {
		return nil, false, cerr
	}
	return &comment, true, nil
}

// CommentCount counts stored comments for a video
func (db *Database) CommentCount(videoID uint64) (int, error) {
	var count int64
	err := db.db.Model(&Comment{}).Where("video_id = ?", videoID).Count(&count).Error
	return int(count), err
}
