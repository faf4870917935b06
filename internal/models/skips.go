package models

import (
	"errors"
	"fmt"
)

// ErrOverlappingSkip is returned when a new duration skip overlaps an
// existing interval on the same video.
var ErrOverlappingSkip = errors.New("duration skip overlaps an existing interval")

// CreateDurationSkip validates and inserts a skip interval. The interval
// must satisfy start < end and must not overlap existing intervals for the
// video; when allowStartToOverlapEnd is true, intervals that merely touch
// at a boundary are accepted.
func (db *Database) CreateDurationSkip(skip *DurationSkip, allowStartToOverlapEnd bool) error {
	if skip.Start >= skip.End {
		return fmt.Errorf("duration skip start %d must be before end %d", skip.Start, skip.End)
	}

	existing, err := db.DurationSkips(skip.VideoID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if skip.Overlaps(*other, allowStartToOverlapEnd) {
			return fmt.Errorf("interval [%d, %d) conflicts with [%d, %d): %w",
				skip.Start, skip.End, other.Start, other.End, ErrOverlappingSkip)
		}
	}

	return db.db.Create(skip).Error
}

// DurationSkips lists a video's skip intervals ordered by start
func (db *Database) DurationSkips(videoID uint64) ([]*DurationSkip, error) {
	var skips []*DurationSkip
	err := db.db.Where("video_id = ?", videoID).Order("start").Find(&skips).Error
	return skips, err
}

// DurationSkipExistsBySBUUID reports whether a SponsorBlock segment was
// already ingested.
func (db *Database) DurationSkipExistsBySBUUID(uuid string) (bool, error) {
	var count int64
	err := db.db.Model(&DurationSkip{}).Where("sb_uuid = ?", uuid).Count(&count).Error
	return count > 0, err
}
