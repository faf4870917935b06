package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/workers"
)

func channelTabURL(providerID string, tab models.Tab) string {
	suffix := "videos"
	switch tab {
	case models.TabShorts:
		suffix = "shorts"
	case models.TabLivestreams:
		suffix = "streams"
	}
	return fmt.Sprintf("https://www.youtube.com/channel/%s/%s", providerID, suffix)
}

func videoURL(providerID string) string {
	return "https://www.youtube.com/watch?v=" + providerID
}

func playlistURL(providerID string) string {
	return "https://www.youtube.com/playlist?list=" + providerID
}

// listingOptions is the option set for metadata-only provider calls
func (c *Controller) listingOptions() provider.Options {
	return provider.Options{
		Proxy:    c.cfg.ProxiesDefault,
		CacheDir: c.cfg.MediaCache,
	}
}

// channelListingOptions is listingOptions plus the configured cookie file
// for channels that need authenticated calls.
func (c *Controller) channelListingOptions(channel *models.Channel) provider.Options {
	opts := c.listingOptions()
	if channel != nil && channel.NeedsCookies {
		opts.CookieFile = c.cfg.CookieFile
	}
	return opts
}

func (c *Controller) scanChannelTabTask(inv *workers.Invocation) error {
	channel, err := c.db.GetChannelByID(kwargUint64(inv.Kwargs, "channel_id"))
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}
	tab := models.Tab(kwargString(inv.Kwargs, "tab"))
	full := kwargBool(inv.Kwargs, "full")
	return c.scanChannelTab(channel, tab, full)
}

// scanChannelTab runs one indexing pass over a channel tab: list, upsert,
// auto-add, gate, dispatch. A full pass drops the scanner limit and marks
// the tab fully indexed on completion.
func (c *Controller) scanChannelTab(channel *models.Channel, tab models.Tab, full bool) error {
	log := c.logger.WithFields(logrus.Fields{
		"channel": channel.Name,
		"tab":     string(tab),
	})

	limit := channel.ScannerLimit(tab)
	if full {
		limit = 0
	}

	before, err := c.db.CountChannelVideos(channel.ID, tab)
	if err != nil {
		return err
	}

	if _, err := c.db.CreateScanHistory(&channel.ID, nil); err != nil {
		return fmt.Errorf("failed to create scan history: %w", err)
	}

	listing, err := c.provider.ChannelListing(context.Background(), channelTabURL(channel.ProviderID, tab), limit, c.channelListingOptions(channel))
	if err != nil {
		return fmt.Errorf("channel listing failed: %w", err)
	}

	autoAdd, err := c.db.PlaylistsWithAutoAddRules()
	if err != nil {
		return err
	}

	dispatched := 0
	for _, entry := range listing.Entries {
		if entry.IsPlaceholder() {
			continue
		}
		video, created, err := c.db.GetOrCreateVideoFromSummary(entry, tab)
		if errors.Is(err, models.ErrVideoBlocked) {
			continue
		}
		if err != nil {
			log.WithError(err).WithField("provider_id", entry.ProviderID).Error("Failed to upsert video")
			continue
		}
		if video.ChannelID == nil {
			video.ChannelID = &channel.ID
			if err := c.db.SaveVideo(video); err != nil {
				return err
			}
		}

		if created {
			c.applyAutoAddRules(autoAdd, channel, video)
		}

		if c.shouldDispatchNewVideo(channel, tab, video, created) {
			if _, err := c.runtime.Submit(TaskDownloadVideo, workers.Kwargs{
				"video_id":    video.ID,
				"task_source": "scanner",
			}); err != nil {
				return err
			}
			dispatched++
		}
	}

	channel.SetLastScanned(tab, time.Now())
	if limit == 0 {
		channel.SetFullyIndexed(tab, true)
	}
	if err := c.db.SaveChannel(channel); err != nil {
		return err
	}
	if err := c.db.RecomputeSortOrdering(channel.ID); err != nil {
		return err
	}

	if full {
		after, err := c.db.CountChannelVideos(channel.ID, tab)
		if err != nil {
			return err
		}
		c.emitter.Emit(notify.EventFullIndexingComplete, notify.Payload{
			ChannelID: channel.ID,
			Tab:       string(tab),
			Extra:     map[string]any{"before": before, "after": after},
		})
	}

	if tab == models.TabVideos && channel.MirrorPlaylists {
		if _, err := c.runtime.Submit(TaskMirrorChannelPlaylists, workers.Kwargs{"channel_id": channel.ID}); err != nil {
			return err
		}
	}

	metrics.ScansDispatched.WithLabelValues("channel").Inc()
	log.WithFields(logrus.Fields{
		"entries":    len(listing.Entries),
		"dispatched": dispatched,
	}).Info("Channel tab scan finished")
	return nil
}

// applyAutoAddRules evaluates every playlist's title auto-add rules against
// a newly inserted video.
func (c *Controller) applyAutoAddRules(playlists []*models.Playlist, channel *models.Channel, video *models.Video) {
	for _, p := range playlists {
		if !models.MatchesAnyLine(p.AutoAddRules(), video.Title) {
			continue
		}
		if !p.ChannelLimitAllows(channel.ProviderID) {
			continue
		}
		_, created, err := c.db.AddVideoToPlaylist(p.ID, video.ID, true)
		if err != nil {
			c.logger.WithError(err).WithField("playlist", p.Title).Error("Auto-add failed")
			continue
		}
		if created {
			c.emitter.Emit(notify.EventVideoAddedToPlaylist, notify.Payload{
				PlaylistID: p.ID,
				VideoID:    video.ID,
			})
		}
	}
}

// shouldDispatchNewVideo applies the download gating rules for a freshly
// indexed item. A per-video force_download flag overrides the skip list,
// the duration gates, and the age cutoff; a title-force match overrides
// only the skip list and duration gates. Neither overrides the tab flag,
// the newness requirement, or permit_download.
func (c *Controller) shouldDispatchNewVideo(channel *models.Channel, tab models.Tab, video *models.Video, created bool) bool {
	if !channel.DownloadEnabled(tab) || !created || !video.PermitDownload {
		return false
	}
	if video.ForceDownload {
		return true
	}
	if channel.MaxDownloadAgeDays > 0 && video.UploadDate != nil {
		cutoff := time.Now().AddDate(0, 0, -channel.MaxDownloadAgeDays)
		if video.UploadDate.Before(cutoff) {
			return false
		}
	}
	if models.MatchesAnyLine(channel.TitleForceList(), video.Title) {
		return true
	}
	if models.MatchesAnyLine(channel.TitleSkipList(), video.Title) {
		return false
	}
	min, max := channel.DurationGates(tab)
	if min > 0 && video.Duration <= min {
		return false
	}
	if max > 0 && video.Duration >= max {
		return false
	}
	return true
}

func (c *Controller) fullIndexChannelTask(inv *workers.Invocation) error {
	channel, err := c.db.GetChannelByID(kwargUint64(inv.Kwargs, "channel_id"))
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}
	for _, tab := range models.AllTabs {
		if !channel.IndexEnabled(tab) {
			continue
		}
		if err := c.scanChannelTab(channel, tab, true); err != nil {
			return err
		}
	}
	return nil
}
