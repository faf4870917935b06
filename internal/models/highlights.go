package models

import (
	"gorm.io/gorm/clause"
)

// UpsertChapterHighlight inserts a chapter-sourced highlight; existing rows
// at the same (video, point, source) are left untouched.
func (db *Database) UpsertChapterHighlight(videoID uint64, point int, endPoint *int, note string) error {
	return db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Highlight{
		VideoID:  videoID,
		Point:    point,
		EndPoint: endPoint,
		Note:     note,
		Source:   HighlightSourceChapters,
	}).Error
}

// SaveHighlight persists a user highlight
func (db *Database) SaveHighlight(h *Highlight) error {
	return db.db.Save(h).Error
}

// Highlights lists a video's highlights ordered by point
func (db *Database) Highlights(videoID uint64) ([]*Highlight, error) {
	var highlights []*Highlight
	err := db.db.Where("video_id = ?", videoID).Order("point").Find(&highlights).Error
	return highlights, err
}
