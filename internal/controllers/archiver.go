package controllers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/quota"
	"github.com/archivarr/archivarr/internal/utils"
	"github.com/archivarr/archivarr/internal/workers"
)

// qualityUpgradeMinAge is how long a download must sit before the archiver
// considers re-fetching it at a higher quality.
const qualityUpgradeMinAge = 3 * 24 * time.Hour

// automatedArchiverTask is the quota-bounded dispatch sweep: promotions,
// one-shot full indexes, tab swaps, playlist backlogs, full-archive
// backlogs, error retries, quality upgrades, and live retries, in that
// order.
func (c *Controller) automatedArchiverTask(inv *workers.Invocation) error {
	now := time.Now()
	acct := quota.NewAccountant(c.db, c.cfg.DailyLimit, c.cfg.PerTaskLimit, c.cfg.DurationLimitSplit)

	if err := c.promoteFullArchives(now); err != nil {
		return err
	}
	if err := c.fireFullIndexOneShots(now); err != nil {
		return err
	}
	if err := c.applyTabSwaps(now); err != nil {
		return err
	}

	for _, step := range []func(*quota.Accountant, time.Time) error{
		c.dispatchPlaylistBacklogs,
		c.dispatchFullArchiveBacklogs,
		c.dispatchErrorRetries,
		c.dispatchQualityUpgrades,
		c.dispatchLiveRetries,
	} {
		if err := step(acct, now); err != nil {
			return err
		}
		if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"dispatched":       acct.Dispatched(),
		"remaining_budget": acct.Remaining(),
	}).Info("Archiver pass finished")
	return nil
}

// quotaExhausted reports whether dispatching must stop for this pass
func (c *Controller) quotaExhausted(acct *quota.Accountant, now time.Time) (bool, error) {
	reached, err := acct.DailyLimitReached(now)
	if err != nil {
		return false, err
	}
	if reached {
		c.logger.Info("Max daily automated downloads reached")
		metrics.QuotaHalts.Inc()
		return true, nil
	}
	if acct.TaskBudgetExhausted() {
		metrics.QuotaHalts.Inc()
		return true, nil
	}
	return false, nil
}

func (c *Controller) promoteFullArchives(now time.Time) error {
	channels, err := c.db.ChannelsWithFullArchiveAfter(now)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		channel.FullArchive = true
		channel.SendDownloadNotifications = false
		if err := c.db.SaveChannel(channel); err != nil {
			return err
		}
		c.logger.WithField("channel", channel.Name).Info("Full archiving started")
		c.emitter.Emit(notify.EventFullArchivingStarted, notify.Payload{ChannelID: channel.ID})
	}
	return nil
}

func (c *Controller) fireFullIndexOneShots(now time.Time) error {
	channels, err := c.db.ChannelsWithFullIndexAfter(now)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		channel.FullIndexAfter = nil
		if err := c.db.SaveChannel(channel); err != nil {
			return err
		}
		if _, err := c.runtime.Submit(TaskFullIndexChannel, workers.Kwargs{"channel_id": channel.ID}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) applyTabSwaps(now time.Time) error {
	channels, err := c.db.ChannelsWithTabSwapsDue(now)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		if channel.SwapIndexVideosAfter != nil && !channel.SwapIndexVideosAfter.After(now) {
			channel.IndexVideos = !channel.IndexVideos
			channel.SwapIndexVideosAfter = nil
		}
		if channel.SwapIndexShortsAfter != nil && !channel.SwapIndexShortsAfter.After(now) {
			channel.IndexShorts = !channel.IndexShorts
			channel.SwapIndexShortsAfter = nil
		}
		if channel.SwapIndexLivestreamsAfter != nil && !channel.SwapIndexLivestreamsAfter.After(now) {
			channel.IndexLivestreams = !channel.IndexLivestreams
			channel.SwapIndexLivestreamsAfter = nil
		}
		if err := c.db.SaveChannel(channel); err != nil {
			return err
		}
	}
	return nil
}

// dispatchable filters out videos the archiver must leave alone this pass
func (c *Controller) dispatchable(video *models.Video) (bool, error) {
	if c.locks.IsObjectLocked(entityVideo, video.ID) {
		return false, nil
	}
	count, err := c.db.CountDownloadErrors(video.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (c *Controller) dispatchPlaylistBacklogs(acct *quota.Accountant, now time.Time) error {
	playlists, err := c.db.VisiblePlaylists()
	if err != nil {
		return err
	}
	for _, playlist := range playlists {
		items, err := c.db.PendingPlaylistItems(playlist.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
				return err
			}
			video := item.Video
			if video == nil {
				continue
			}
			if ok, err := c.dispatchable(video); err != nil || !ok {
				if err != nil {
					return err
				}
				continue
			}
			if !video.ForceDownload && models.MatchesAnyLine(playlist.TitleSkipList(), video.Title) {
				item.Download = false
				if err := c.db.SavePlaylistItem(item); err != nil {
					return err
				}
				continue
			}
			if playlist.RestrictToAssignedChannel && playlist.ChannelID != nil {
				if video.ChannelID == nil || *video.ChannelID != *playlist.ChannelID {
					continue
				}
			}
			kwargs := workers.Kwargs{
				"video_id":     video.ID,
				"task_source":  fmt.Sprintf("automated_archiver - Playlist Scanner: %s", playlist.Title),
				"requested_by": fmt.Sprintf("Playlist: %s", playlist.Title),
			}
			if playlist.Quality > 0 {
				kwargs["quality"] = playlist.Quality
			}
			if _, err := c.runtime.Submit(TaskDownloadVideo, kwargs); err != nil {
				return err
			}
			acct.RecordDispatch(video.Duration)
		}
	}
	return nil
}

func (c *Controller) dispatchFullArchiveBacklogs(acct *quota.Accountant, now time.Time) error {
	channels, err := c.db.FullArchiveChannels()
	if err != nil {
		return err
	}
	for _, channel := range channels {
		needsIndex := false
		for _, tab := range models.AllTabs {
			if channel.IndexEnabled(tab) && !channel.FullyIndexed(tab) {
				needsIndex = true
				break
			}
		}
		if needsIndex {
			if _, err := c.runtime.Submit(TaskFullIndexChannel, workers.Kwargs{"channel_id": channel.ID}); err != nil {
				return err
			}
			continue
		}

		backlog, err := c.db.FullArchiveBacklog(channel)
		if err != nil {
			return err
		}
		if len(backlog) == 0 {
			channel.FullArchive = false
			if err := c.db.SaveChannel(channel); err != nil {
				return err
			}
			c.logger.WithField("channel", channel.Name).Info("Full archiving completed")
			c.emitter.Emit(notify.EventFullArchivingCompleted, notify.Payload{ChannelID: channel.ID})
			continue
		}

		dispatched := 0
		for _, video := range backlog {
			if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
				return err
			}
			if channel.SlowFullArchive && dispatched >= 1 {
				break
			}
			if ok, err := c.dispatchable(video); err != nil || !ok {
				if err != nil {
					return err
				}
				continue
			}
			kwargs := workers.Kwargs{
				"video_id":     video.ID,
				"task_source":  "automated_archiver - Channel Full Archive",
				"requested_by": fmt.Sprintf("Channel: %s", channel.Name),
			}
			if channel.Quality > 0 {
				kwargs["quality"] = channel.Quality
			}
			if _, err := c.runtime.Submit(TaskDownloadVideo, kwargs); err != nil {
				return err
			}
			acct.RecordDispatch(video.Duration)
			dispatched++
		}
	}
	return nil
}

func (c *Controller) dispatchErrorRetries(acct *quota.Accountant, now time.Time) error {
	wait := time.Duration(c.cfg.VideoDownloadErrorWaitPeriod) * time.Minute
	videos, err := c.db.ErroringVideos(c.cfg.VideoDownloadErrorAttempts, wait, c.cfg.VideoDownloadErrorDailyAttempts, now)
	if err != nil {
		return err
	}
	for _, video := range videos {
		if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
			return err
		}
		if c.locks.IsObjectLocked(entityVideo, video.ID) {
			continue
		}
		if _, err := c.runtime.Submit(TaskDownloadVideo, workers.Kwargs{
			"video_id":    video.ID,
			"task_source": "automated_archiver - Erroring Videos",
		}); err != nil {
			return err
		}
		acct.RecordDispatch(video.Duration)
	}
	return nil
}

func (c *Controller) dispatchQualityUpgrades(acct *quota.Accountant, now time.Time) error {
	videos, err := c.db.QualityUpgradeCandidates(qualityUpgradeMinAge, now)
	if err != nil {
		return err
	}
	for _, video := range videos {
		if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
			return err
		}
		if ok, err := c.dispatchable(video); err != nil || !ok {
			if err != nil {
				return err
			}
			continue
		}
		if utils.MaxQuality(storedFormats(video)) <= video.Quality {
			continue
		}
		video.SetSystemNote("max_quality_upgraded", now.UTC().Format(time.RFC3339))
		if err := c.db.UpdateSystemNotes(video); err != nil {
			return err
		}
		if _, err := c.runtime.Submit(TaskDownloadVideo, workers.Kwargs{
			"video_id":                  video.ID,
			"quality":                   0,
			"task_source":               "automated_archiver - Video Quality Changed Afterwards",
			"automated_quality_upgrade": true,
		}); err != nil {
			return err
		}
		acct.RecordDispatch(video.Duration)
		c.logger.WithFields(logrus.Fields{
			"video":   video.ProviderID,
			"quality": video.Quality,
		}).Info("Dispatched quality upgrade")
	}
	return nil
}

func (c *Controller) dispatchLiveRetries(acct *quota.Accountant, now time.Time) error {
	minAge := time.Duration(c.cfg.VideoLiveDownloadRetryHours) * time.Hour
	videos, err := c.db.LiveRetryCandidates(minAge, now)
	if err != nil {
		return err
	}
	for _, video := range videos {
		if exhausted, err := c.quotaExhausted(acct, now); err != nil || exhausted {
			return err
		}
		if c.locks.IsObjectLocked(entityVideo, video.ID) {
			continue
		}
		video.ClearSystemNote(noteLiveAtLastAttempt)
		if err := c.db.UpdateSystemNotes(video); err != nil {
			return err
		}
		if _, err := c.runtime.SubmitDelayed(TaskDownloadVideo, workers.Kwargs{
			"video_id":    video.ID,
			"task_source": "Live Download - Reattempt",
		}, 10*time.Second); err != nil {
			return err
		}
		acct.RecordDispatch(video.Duration)
	}
	return nil
}

// storedFormats rebuilds the provider format list from the captured dump
func storedFormats(video *models.Video) []provider.Format {
	raw, ok := video.DLPFormats["formats"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var formats []provider.Format
	if err := json.Unmarshal(data, &formats); err != nil {
		return nil
	}
	return formats
}
