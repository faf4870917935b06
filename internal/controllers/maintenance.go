package controllers

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/schedule"
	"github.com/archivarr/archivarr/internal/workers"
)

const (
	// watchedFraction is the completion threshold for delete-after-watching
	watchedFraction = 0.9

	// relatedMiningWindow bounds the daily related-edge sweep to recent rows
	relatedMiningWindow = 7 * 24 * time.Hour

	// inactivityRebalanceAge is the no-upload span after which a channel's
	// daily cron gets demoted to a weekly one.
	inactivityRebalanceAge = 60 * 24 * time.Hour

	// interUploadRebalanceGap demotes channels whose mean gap between
	// uploads exceeds this, even when the latest upload is recent.
	interUploadRebalanceGap = 30 * 24 * time.Hour

	// formatRetentionAge is how long captured provider format dumps are kept
	formatRetentionAge = 6 * 30 * 24 * time.Hour
)

var weeklyRebalanceHours = []int{8, 10, 12, 14, 16, 18}

// dailyMaintenanceTask runs the daily sweeps: thumbnail reconciliation,
// purges, audio-blob enforcement, related-edge mining, retention, sort
// recompute, and delete-after-watching.
func (c *Controller) dailyMaintenanceTask(inv *workers.Invocation) error {
	now := time.Now()

	archived, err := c.db.ArchivedVideos()
	if err != nil {
		return err
	}

	for _, video := range archived {
		if video.Thumbnail == "" {
			if _, err := c.runtime.Submit(TaskDownloadThumbnail, workers.Kwargs{"video_id": video.ID}); err != nil {
				return err
			}
		}
		if video.ConvertToAudio && video.Audio == "" {
			if _, err := c.runtime.Submit(TaskPostprocessVideo, workers.Kwargs{
				"video_id":      video.ID,
				"raw_file_path": c.localMediaPath(video),
			}); err != nil {
				return err
			}
		}
		if now.Sub(video.DateAddedToSystem) <= relatedMiningWindow {
			related, err := c.db.RelatedVideoIDs(video.ID)
			if err != nil {
				return err
			}
			if len(related) == 0 {
				if err := c.mineRelatedVideos(video); err != nil {
					c.logger.WithError(err).Warn("Related-video mining failed")
				}
			}
		}
	}

	marked, err := c.db.VideosMarkedForDeletion()
	if err != nil {
		return err
	}
	for _, video := range marked {
		if err := c.purgeVideo(video); err != nil {
			return err
		}
	}

	channels, err := c.db.ActiveChannels()
	if err != nil {
		return err
	}
	for _, channel := range channels {
		if err := c.enforceChannelRetention(channel, now); err != nil {
			return err
		}
		if err := c.db.RecomputeSortOrdering(channel.ID); err != nil {
			return err
		}
	}

	watchedLists, err := c.db.RemoveOnWatchedPlaylists()
	if err != nil {
		return err
	}
	for _, playlist := range watchedLists {
		if err := c.pruneWatchedPlaylistItems(playlist); err != nil {
			return err
		}
	}

	c.logger.Info("Daily maintenance finished")
	return nil
}

// pruneWatchedPlaylistItems drops fully watched items from playlists that
// opted into pruning.
func (c *Controller) pruneWatchedPlaylistItems(playlist *models.Playlist) error {
	items, err := c.db.PlaylistItems(playlist.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		watched, err := c.db.WatchedAtLeast(item.VideoID, watchedFraction)
		if err != nil {
			return err
		}
		if !watched {
			continue
		}
		if err := c.db.RemovePlaylistItem(item); err != nil {
			return err
		}
		c.emitter.Emit(notify.EventVideoRemovedFromPlaylist, notify.Payload{
			PlaylistID: playlist.ID,
			VideoID:    item.VideoID,
		})
	}
	return nil
}

// purgeVideo removes a video's blobs and then the row via the sanctioned
// service-layer path.
func (c *Controller) purgeVideo(video *models.Video) error {
	for _, blob := range []string{video.File, video.Audio, video.Thumbnail, video.InfoJSON} {
		if blob == "" {
			continue
		}
		if err := c.backend.Delete(blob); err != nil {
			c.logger.WithError(err).WithField("path", blob).Warn("Failed to delete blob")
		}
	}
	return c.db.DeleteVideo(video)
}

// enforceChannelRetention applies the per-tab delete-after policies.
// Starred and deletion-protected videos are always preserved.
func (c *Controller) enforceChannelRetention(channel *models.Channel, now time.Time) error {
	for _, tab := range models.AllTabs {
		days := channel.RetentionDays(tab)
		afterWatching := channel.DeleteAfterWatching(tab)
		if days <= 0 && !afterWatching {
			continue
		}
		videos, err := c.db.ChannelVideos(channel.ID, tab)
		if err != nil {
			return err
		}
		for _, video := range videos {
			if !video.Archived() || video.Starred != nil || video.PreventDeletion {
				continue
			}
			expired := days > 0 && video.DateDownloaded != nil &&
				now.Sub(*video.DateDownloaded) > time.Duration(days)*24*time.Hour
			watched := false
			if !expired && (afterWatching || video.DeleteAfterWatching) {
				watched, err = c.db.WatchedAtLeast(video.ID, watchedFraction)
				if err != nil {
					return err
				}
			}
			if expired || watched {
				if err := c.purgeVideo(video); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// monthlyMaintenanceTask refreshes channel artwork, demotes long-inactive
// channels to weekly scans, confirms on-disk filenames, clears stale
// format dumps, and generates per-year cover art.
func (c *Controller) monthlyMaintenanceTask(inv *workers.Invocation) error {
	now := time.Now()

	channels, err := c.db.ActiveChannels()
	if err != nil {
		return err
	}
	for _, channel := range channels {
		if c.cfg.MonthlyChannelUpdateBanners {
			if err := c.refreshChannelArtwork(channel); err != nil {
				c.logger.WithError(err).WithField("channel", channel.Name).Warn("Artwork refresh failed")
			}
		}
		if c.cfg.MonthlyChannelRebalance {
			if err := c.rebalanceInactiveChannel(channel, now); err != nil {
				return err
			}
		}
		if c.cfg.MonthlyChannelGenerateCoverArt {
			if err := c.generateChannelCoverArt(channel); err != nil {
				c.logger.WithError(err).WithField("channel", channel.Name).Warn("Cover art generation failed")
			}
		}
	}

	if c.cfg.MonthlyVideoConfirmFilenames || c.cfg.MonthlyVideoClearFormats {
		archived, err := c.db.ArchivedVideos()
		if err != nil {
			return err
		}
		for _, video := range archived {
			if c.cfg.MonthlyVideoConfirmFilenames && c.filenameOutOfSchema(video) {
				if _, err := c.runtime.Submit(TaskRenameVideoFiles, workers.Kwargs{"video_id": video.ID}); err != nil {
					return err
				}
			}
			if c.cfg.MonthlyVideoClearFormats && len(video.DLPFormats) > 0 {
				stale := video.PrivacyStatusChecks >= c.cfg.PrivacyStatusCheckMaxCheckPerVideo ||
					now.Sub(video.CreatedAt) > formatRetentionAge
				if stale {
					video.DLPFormats = models.JSONMap{}
					if err := c.db.SaveVideo(video); err != nil {
						return err
					}
				}
			}
		}
	}

	c.logger.Info("Monthly maintenance finished")
	return nil
}

func (c *Controller) refreshChannelArtwork(channel *models.Channel) error {
	meta, err := c.provider.ChannelAbout(context.Background(), channelTabURL(channel.ProviderID, models.TabVideos), c.channelListingOptions(channel))
	if err != nil {
		return err
	}
	for _, thumb := range meta.Thumbnails {
		switch thumb.ID {
		case "avatar_uncropped":
			channel.ThumbnailURL = thumb.URL
		case "banner_uncropped":
			channel.BannerURL = thumb.URL
		case "tv_uncropped":
			channel.TVArtURL = thumb.URL
		}
	}
	if meta.Name != "" {
		channel.Name = meta.Name
	}
	return c.db.SaveChannel(channel)
}

// rebalanceInactiveChannel moves channels with no upload in 60 days, or
// whose uploads average more than 30 days apart, onto a weekly cron on the
// weekday following their historical most-common upload weekday.
func (c *Controller) rebalanceInactiveChannel(channel *models.Channel, now time.Time) error {
	if !channel.IndexingEnabled() || channel.FullArchive {
		return nil
	}

	var uploads []time.Time
	for _, tab := range models.AllTabs {
		videos, err := c.db.ChannelVideos(channel.ID, tab)
		if err != nil {
			return err
		}
		for _, video := range videos {
			if video.UploadDate != nil {
				uploads = append(uploads, *video.UploadDate)
			}
		}
	}
	if len(uploads) == 0 {
		return nil
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Before(uploads[j]) })

	latest := uploads[len(uploads)-1]
	inactive := now.Sub(latest) >= inactivityRebalanceAge
	if !inactive && len(uploads) >= 2 {
		meanGap := uploads[len(uploads)-1].Sub(uploads[0]) / time.Duration(len(uploads)-1)
		inactive = meanGap > interUploadRebalanceGap
	}
	if !inactive {
		return nil
	}

	weekdays := map[int]int{}
	bestDay, bestCount := 0, 0
	for _, upload := range uploads {
		day := int(upload.Weekday())
		weekdays[day]++
		if weekdays[day] > bestCount {
			bestDay, bestCount = day, weekdays[day]
		}
	}

	crontab := schedule.WeeklyCron(schedule.NextDayOfWeek(bestDay), weeklyRebalanceHours)
	if crontab == channel.ScannerCrontab {
		return nil
	}
	channel.ScannerCrontab = crontab
	c.logger.WithFields(logrus.Fields{
		"channel": channel.Name,
		"crontab": crontab,
	}).Info("Rebalanced inactive channel to weekly scan")
	return c.db.SaveChannel(channel)
}

// generateChannelCoverArt copies one representative thumbnail per upload
// year into the channel's year directories.
func (c *Controller) generateChannelCoverArt(channel *models.Channel) error {
	for _, tab := range models.AllTabs {
		videos, err := c.db.ChannelVideos(channel.ID, tab)
		if err != nil {
			return err
		}
		covered := map[int]bool{}
		for _, video := range videos {
			if video.Thumbnail == "" || video.UploadDate == nil {
				continue
			}
			year := video.UploadDate.Year()
			if covered[year] {
				continue
			}
			target := c.layout.ChannelYearCoverPath(channel, year)
			if c.backend.Exists(target) {
				covered[year] = true
				continue
			}
			r, err := c.backend.Open(video.Thumbnail)
			if err != nil {
				continue
			}
			_, err = c.backend.Save(target, r)
			r.Close()
			if err != nil {
				return err
			}
			covered[year] = true
		}
	}
	return nil
}

// filenameOutOfSchema reports whether a video's media blob sits outside the
// path the current schema dictates.
func (c *Controller) filenameOutOfSchema(video *models.Video) bool {
	ext := strings.TrimPrefix(filepath.Ext(video.File), ".")
	expected := c.layout.MediaPath(video, c.channelOf(video), nil, ext)
	return video.File != expected
}

// localMediaPath resolves the media blob to a filesystem path for local
// backends. Non-local backends yield an empty path and the caller skips.
func (c *Controller) localMediaPath(video *models.Video) string {
	type fullPather interface{ FullPath(string) string }
	if local, ok := c.backend.(fullPather); ok && video.File != "" {
		return local.FullPath(video.File)
	}
	return ""
}
