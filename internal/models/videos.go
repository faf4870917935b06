package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/archivarr/archivarr/internal/provider"
)

// ErrVideoBlocked is returned when the indexer tries to re-create a video
// whose provider id carries a tombstone.
var ErrVideoBlocked = errors.New("video provider id is blocked")

// SaveVideo persists a video. Transitions of title, description, or
// privacy status away from a non-empty prior value append an immutable
// history row. Sort ordering is assigned on first insert within a channel.
func (db *Database) SaveVideo(video *Video) error {
	now := time.Now()

	if video.ID == 0 {
		if video.DateAddedToSystem.IsZero() {
			video.DateAddedToSystem = now
		}
		if video.ChannelID != nil {
			max, err := db.maxSortOrdering(*video.ChannelID)
			if err != nil {
				return err
			}
			video.SortOrdering = max + 1
		}
		return db.db.Create(video).Error
	}

	prior := Video{}
	if err := db.db.Select("title", "description", "privacy_status").
		First(&prior, video.ID).Error; err != nil {
		return err
	}

	var history []VideoHistory
	if prior.Title != "" && prior.Title != video.Title {
		history = append(history, VideoHistory{VideoID: video.ID, Field: "title", OldValue: prior.Title, NewValue: video.Title})
	}
	if prior.Description != "" && prior.Description != video.Description {
		history = append(history, VideoHistory{VideoID: video.ID, Field: "description", OldValue: prior.Description, NewValue: video.Description})
	}
	if prior.PrivacyStatus != "" && prior.PrivacyStatus != video.PrivacyStatus {
		history = append(history, VideoHistory{VideoID: video.ID, Field: "privacy_status", OldValue: string(prior.PrivacyStatus), NewValue: string(video.PrivacyStatus)})
	}

	return db.Transaction(func(tx *Database) error {
		for i := range history {
			if err := tx.db.Create(&history[i]).Error; err != nil {
				return err
			}
		}
		video.UpdatedAt = now
		return tx.db.Save(video).Error
	})
}

func (db *Database) maxSortOrdering(channelID uint64) (int, error) {
	var max *int
	err := db.db.Model(&Video{}).Where("channel_id = ?", channelID).
		Select("MAX(sort_ordering)").Scan(&max).Error
	if err != nil || max == nil {
		return 0, err
	}
	return *max, nil
}

// GetVideoByID retrieves a video by local id
func (db *Database) GetVideoByID(id uint64) (*Video, error) {
	var video Video
	if err := db.db.First(&video, id).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// GetVideoByProviderID retrieves a video by provider id
func (db *Database) GetVideoByProviderID(providerID string) (*Video, error) {
	var video Video
	if err := db.db.Where("provider_id = ?", providerID).First(&video).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// IsVideoBlocked reports whether the provider id carries a tombstone
func (db *Database) IsVideoBlocked(providerID string) (bool, error) {
	var count int64
	err := db.db.Model(&VideoBlocked{}).Where("provider_id = ?", providerID).Count(&count).Error
	return count > 0, err
}

// BlockVideo records a tombstone for the provider id
func (db *Database) BlockVideo(providerID, reason string) error {
	return db.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&VideoBlocked{ProviderID: providerID, Reason: reason}).Error
}

// GetOrCreateVideoFromSummary upserts a video from a listing entry with the
// given classification tab. The classification is applied only when no
// flag is currently set. Returns the video and whether it was created.
func (db *Database) GetOrCreateVideoFromSummary(summary provider.VideoSummary, tab Tab) (*Video, bool, error) {
	blocked, err := db.IsVideoBlocked(summary.ProviderID)
	if err != nil {
		return nil, false, err
	}
	if blocked {
		return nil, false, ErrVideoBlocked
	}

	video, err := db.GetVideoByProviderID(summary.ProviderID)
	if err == nil {
		if !video.Classified() {
			video.SetClassification(tab)
			if err := db.SaveVideo(video); err != nil {
				return nil, false, err
			}
		}
		return video, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	video = &Video{
		ProviderID:     summary.ProviderID,
		Title:          summary.Title,
		Duration:       summary.Duration,
		PrivacyStatus:  PrivacyFromAvailability(summary.Availability),
		PermitDownload: true,
	}
	video.SetClassification(tab)

	if summary.ChannelID != "" {
		if channel, cerr := db.GetChannelByProviderID(summary.ChannelID); cerr == nil {
			video.ChannelID = &channel.ID
		}
	}

	if uploadDate, perr := time.Parse("20060102", summary.UploadDate); perr == nil {
		video.UploadDate = &uploadDate
	}

	if err := db.SaveVideo(video); err != nil {
		return nil, false, err
	}

	// Pin inserted to the upload date's day so chronological ordering is
	// stable across delayed scans.
	if video.UploadDate != nil {
		if err := db.db.Model(video).UpdateColumn("created_at", *video.UploadDate).Error; err != nil {
			return nil, false, err
		}
		video.CreatedAt = *video.UploadDate
	}

	return video, true, nil
}

// SetDetailsFromProvider applies full provider metadata to a video. Locked
// titles and descriptions are preserved. Formats are captured into
// DLPFormats and availability maps onto the privacy status.
func (db *Database) SetDetailsFromProvider(video *Video, meta *provider.VideoMetadata) error {
	if !video.TitleLocked && meta.Title != "" {
		video.Title = meta.Title
	}
	if !video.DescriptionLocked && meta.Description != "" {
		video.Description = meta.Description
	}
	if meta.Duration > 0 {
		video.Duration = meta.Duration
	}
	video.ViewCount = meta.ViewCount
	video.LikeCount = meta.LikeCount
	video.Width = meta.Width
	video.Height = meta.Height
	video.FPS = meta.FPS

	if meta.UploadDate != "" {
		if uploadDate, err := time.Parse("20060102", meta.UploadDate); err == nil {
			video.UploadDate = &uploadDate
		}
	}

	if meta.ChannelID != "" && video.ChannelID == nil {
		if channel, err := db.GetChannelByProviderID(meta.ChannelID); err == nil {
			video.ChannelID = &channel.ID
		}
	}

	if len(meta.Formats) > 0 {
		formats := make([]any, 0, len(meta.Formats))
		for _, f := range meta.Formats {
			formats = append(formats, map[string]any{
				"format_id":   f.ID,
				"format_note": f.Note,
				"ext":         f.Ext,
				"width":       f.Width,
				"height":      f.Height,
				"fps":         f.FPS,
				"vcodec":      f.VCodec,
				"acodec":      f.ACodec,
			})
		}
		if video.DLPFormats == nil {
			video.DLPFormats = JSONMap{}
		}
		video.DLPFormats["formats"] = formats
	}

	if meta.Availability != "" {
		video.PrivacyStatus = PrivacyFromAvailability(meta.Availability)
	}

	return db.SaveVideo(video)
}

// ArchivedVideos retrieves all videos with a media blob
func (db *Database) ArchivedVideos() ([]*Video, error) {
	var videos []*Video
	err := db.db.Where("file <> ''").Find(&videos).Error
	return videos, err
}

// AllVideos retrieves every video row
func (db *Database) AllVideos() ([]*Video, error) {
	var videos []*Video
	err := db.db.Find(&videos).Error
	return videos, err
}

// CountArchivedOn counts videos downloaded on the given local calendar day
func (db *Database) CountArchivedOn(day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var count int64
	err := db.db.Model(&Video{}).
		Where("file <> '' AND date_downloaded >= ? AND date_downloaded < ?", start, end).
		Count(&count).Error
	return int(count), err
}

// FullArchiveBacklog retrieves the channel's undownloaded publicly-visible
// videos ordered by upload date, honouring the full-archive cutoff.
func (db *Database) FullArchiveBacklog(channel *Channel) ([]*Video, error) {
	q := db.db.Where("channel_id = ? AND file = '' AND privacy_status IN ?",
		channel.ID, []PrivacyStatus{PrivacyPublic, PrivacyUnlisted})
	if channel.FullArchiveCutoff != nil {
		// force_download puts a video back in scope regardless of the cutoff
		q = q.Where("upload_date >= ? OR force_download", *channel.FullArchiveCutoff)
	}
	var videos []*Video
	err := q.Order("upload_date").Find(&videos).Error
	return videos, err
}

// ErroringVideos retrieves videos with at least one but fewer than
// maxAttempts download errors, skipping those with a blob or whose latest
// error is younger than waitPeriod.
func (db *Database) ErroringVideos(maxAttempts int, waitPeriod time.Duration, dailyAttempts int, now time.Time) ([]*Video, error) {
	var videos []*Video
	err := db.db.
		Where("file = ''").
		Where("id IN (?)", db.db.Model(&DownloadError{}).Select("video_id").
			Group("video_id").
			Having("COUNT(*) >= 1 AND COUNT(*) < ?", maxAttempts).
			Having("MAX(created_at) <= ?", now.Add(-waitPeriod))).
		Find(&videos).Error
	if err != nil {
		return nil, err
	}

	// Videos already at the max daily error count wait for the next day.
	var eligible []*Video
	for _, video := range videos {
		count, cerr := db.CountDownloadErrorsSince(video.ID, now.Add(-24*time.Hour))
		if cerr != nil {
			return nil, cerr
		}
		if count < dailyAttempts {
			eligible = append(eligible, video)
		}
	}
	return eligible, nil
}

// QualityUpgradeCandidates retrieves archived videos that asked for max
// quality but have not reached it, downloaded at least minAge ago.
func (db *Database) QualityUpgradeCandidates(minAge time.Duration, now time.Time) ([]*Video, error) {
	var videos []*Video
	err := db.db.
		Where("requested_max_quality AND NOT at_max_quality AND file <> ''").
		Where("date_downloaded IS NOT NULL AND date_downloaded <= ?", now.Add(-minAge)).
		Find(&videos).Error
	return videos, err
}

// LiveRetryCandidates retrieves videos marked live-at-last-attempt whose
// insertion age has passed the retry threshold.
func (db *Database) LiveRetryCandidates(minAge time.Duration, now time.Time) ([]*Video, error) {
	var videos []*Video
	err := db.db.
		Where("file = ''").
		Where("system_notes LIKE ?", "%\"video_was_live_at_last_attempt\":true%").
		Where("created_at <= ?", now.Add(-minAge)).
		Find(&videos).Error
	return videos, err
}

// PrivacyCheckCandidates retrieves archived videos due for privacy
// revalidation: owned by an active channel or orphaned, under the
// per-video check cap, and at least minAgeDays old. Ordering puts
// zero-quality videos first, then never-checked, then stalest checks,
// then oldest uploads.
func (db *Database) PrivacyCheckCandidates(minAgeDays, maxChecksPerVideo int, now time.Time) ([]*Video, error) {
	var videos []*Video
	err := db.db.
		Joins("LEFT JOIN channels ON channels.id = videos.channel_id").
		Where("videos.file <> ''").
		Where("videos.channel_id IS NULL OR channels.status = ?", ChannelActive).
		Where("videos.privacy_status_checks < ?", maxChecksPerVideo).
		Where("videos.created_at <= ?", now.AddDate(0, 0, -minAgeDays)).
		Order("CASE WHEN videos.quality = 0 THEN 0 ELSE 1 END").
		Order("CASE WHEN videos.last_privacy_status_check IS NULL THEN 0 ELSE 1 END").
		Order("videos.last_privacy_status_check").
		Order("videos.upload_date").
		Find(&videos).Error
	return videos, err
}

// VideosMarkedForDeletion retrieves videos flagged for purging
func (db *Database) VideosMarkedForDeletion() ([]*Video, error) {
	var videos []*Video
	err := db.db.Where("mark_for_deletion AND NOT prevent_deletion").Find(&videos).Error
	return videos, err
}

// DeleteVideo removes a video and its owned rows. This is the only
// sanctioned deletion path; stray deletes trip the BeforeDelete hook.
func (db *Database) DeleteVideo(video *Video) error {
	video.AuthorizeDeletion()
	return db.Transaction(func(tx *Database) error {
		for _, owned := range []any{
			&DownloadError{}, &Highlight{}, &DurationSkip{}, &Comment{},
			&UserPlaybackHistory{}, &VideoHistory{},
		} {
			if err := tx.db.Where("video_id = ?", video.ID).Delete(owned).Error; err != nil {
				return err
			}
		}
		if err := tx.db.Where("video_id = ? OR related_id = ?", video.ID, video.ID).
			Delete(&VideoRelation{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("video_id = ?", video.ID).Delete(&PlaylistItem{}).Error; err != nil {
			return err
		}
		return tx.db.Delete(video).Error
	})
}

// RecordDownloadError appends one download-error row
func (db *Database) RecordDownloadError(videoID uint64, traceback string, kwargs JSONMap, quality, attempt int) error {
	return db.db.Create(&DownloadError{
		VideoID:         videoID,
		Traceback:       traceback,
		RequestKwargs:   kwargs,
		QualitySelected: quality,
		Attempt:         attempt,
	}).Error
}

// CountDownloadErrors counts all error rows for a video
func (db *Database) CountDownloadErrors(videoID uint64) (int, error) {
	var count int64
	err := db.db.Model(&DownloadError{}).Where("video_id = ?", videoID).Count(&count).Error
	return int(count), err
}

// CountDownloadErrorsSince counts error rows newer than the given instant
func (db *Database) CountDownloadErrorsSince(videoID uint64, since time.Time) (int, error) {
	var count int64
	err := db.db.Model(&DownloadError{}).
		Where("video_id = ? AND created_at >= ?", videoID, since).Count(&count).Error
	return int(count), err
}

// DeleteDownloadErrors removes every error row for a video
func (db *Database) DeleteDownloadErrors(videoID uint64) error {
	return db.db.Where("video_id = ?", videoID).Delete(&DownloadError{}).Error
}

// AppendDownloadStat appends a download-stats breadcrumb under a row lock
// so concurrent writers cannot lose entries.
func (db *Database) AppendDownloadStat(videoID uint64, stat map[string]any) error {
	return db.Transaction(func(tx *Database) error {
		var video Video
		if err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&video, videoID).Error; err != nil {
			return err
		}
		video.AppendDownloadStat(stat)
		return tx.db.Model(&video).Update("system_notes", video.SystemNotes).Error
	})
}

// UpdateSystemNotes persists just the system-notes column under a row lock
func (db *Database) UpdateSystemNotes(video *Video) error {
	return db.db.Model(video).Update("system_notes", video.SystemNotes).Error
}

// AddRelatedVideo inserts the symmetric related edge between two videos,
// idempotently.
func (db *Database) AddRelatedVideo(a, b uint64) error {
	if a == b {
		return fmt.Errorf("cannot relate a video to itself")
	}
	for _, edge := range []VideoRelation{{VideoID: a, RelatedID: b}, {VideoID: b, RelatedID: a}} {
		if err := db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
			return err
		}
	}
	return nil
}

// RelatedVideoIDs lists ids related to the given video
func (db *Database) RelatedVideoIDs(videoID uint64) ([]uint64, error) {
	var ids []uint64
	err := db.db.Model(&VideoRelation{}).Where("video_id = ?", videoID).
		Pluck("related_id", &ids).Error
	return ids, err
}

// RecomputeSortOrdering reassigns sort ordering for a channel's videos by
// upload date then insertion.
func (db *Database) RecomputeSortOrdering(channelID uint64) error {
	var videos []*Video
	if err := db.db.Where("channel_id = ?", channelID).
		Order("upload_date, created_at, id").Find(&videos).Error; err != nil {
		return err
	}
	return db.Transaction(func(tx *Database) error {
		for i, video := range videos {
			if video.SortOrdering == i+1 {
				continue
			}
			if err := tx.db.Model(video).UpdateColumn("sort_ordering", i+1).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ChannelVideos lists a channel's videos restricted to one tab
func (db *Database) ChannelVideos(channelID uint64, tab Tab) ([]*Video, error) {
	q := db.db.Where("channel_id = ?", channelID)
	switch tab {
	case TabShorts:
		q = q.Where("is_short")
	case TabLivestreams:
		q = q.Where("is_livestream")
	default:
		q = q.Where("is_video")
	}
	var videos []*Video
	err := q.Find(&videos).Error
	return videos, err
}

// CountChannelVideos counts a channel's videos on one tab
func (db *Database) CountChannelVideos(channelID uint64, tab Tab) (int, error) {
	videos, err := db.ChannelVideos(channelID, tab)
	return len(videos), err
}
