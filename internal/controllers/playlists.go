package controllers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/schedule"
	"github.com/archivarr/archivarr/internal/workers"
)

func (c *Controller) scanPlaylistTask(inv *workers.Invocation) error {
	playlist, err := c.db.GetPlaylistByID(kwargUint64(inv.Kwargs, "playlist_id"))
	if err != nil {
		return fmt.Errorf("failed to load playlist: %w", err)
	}
	return c.scanPlaylist(playlist)
}

// scanPlaylist mirrors one upstream playlist: upserts entries, applies
// title rules, marks and optionally prunes entries missing upstream. Five
// consecutive empty lookups disable the playlist's cron.
func (c *Controller) scanPlaylist(playlist *models.Playlist) error {
	log := c.logger.WithField("playlist", playlist.Title)

	details, err := c.provider.PlaylistDetails(context.Background(), playlistURL(playlist.ProviderObjectID), true, c.listingOptions())
	if err != nil || details == nil || len(details.Entries) == 0 {
		disabled, rerr := c.db.RecordPlaylistNotFound(playlist)
		if rerr != nil {
			return rerr
		}
		if disabled {
			log.Warn("Playlist disabled after repeated not-found scans")
			c.emitter.Emit(notify.EventPlaylistDisabledErrors, notify.Payload{PlaylistID: playlist.ID})
		}
		return nil
	}
	if playlist.NotFoundFailures > 0 {
		if err := c.db.ResetPlaylistNotFound(playlist); err != nil {
			return err
		}
	}

	if details.Title != "" && details.Title != playlist.Title {
		playlist.Title = details.Title
		if err := c.db.SavePlaylist(playlist); err != nil {
			return err
		}
	}

	if _, err := c.db.CreateScanHistory(nil, &playlist.ID); err != nil {
		return err
	}

	disableLines := splitConfigLines(playlist.TitleDisables)
	seen := map[uint64]bool{}
	for _, entry := range details.Entries {
		if entry.IsPlaceholder() {
			continue
		}
		video, _, err := c.db.GetOrCreateVideoFromSummary(entry, models.TabVideos)
		if err != nil {
			log.WithError(err).WithField("provider_id", entry.ProviderID).Warn("Failed to upsert playlist entry")
			continue
		}
		seen[video.ID] = true

		if models.MatchesAnyLine(disableLines, video.Title) {
			playlist.Crontab = ""
			if err := c.db.SavePlaylist(playlist); err != nil {
				return err
			}
			log.WithField("title", video.Title).Warn("Playlist disabled by title match")
			c.emitter.Emit(notify.EventPlaylistDisabledString, notify.Payload{
				PlaylistID: playlist.ID,
				Message:    video.Title,
			})
			return nil
		}

		item, created, err := c.db.AddVideoToPlaylist(playlist.ID, video.ID, false)
		if err != nil {
			return err
		}
		switch {
		case created:
			c.emitter.Emit(notify.EventVideoAddedToPlaylist, notify.Payload{PlaylistID: playlist.ID, VideoID: video.ID})
		case item.MissingFromPlaylistOnProvider:
			item.MissingFromPlaylistOnProvider = false
			if err := c.db.SavePlaylistItem(item); err != nil {
				return err
			}
			c.emitter.Emit(notify.EventVideoReaddedToPlaylist, notify.Payload{PlaylistID: playlist.ID, VideoID: video.ID})
		}

		if models.MatchesAnyLine(playlist.TitleSkipList(), video.Title) && item.Download {
			item.Download = false
			if err := c.db.SavePlaylistItem(item); err != nil {
				return err
			}
		}
	}

	items, err := c.db.PlaylistItems(playlist.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if seen[item.VideoID] {
			continue
		}
		if playlist.SyncDeletions && !item.ManuallyAdded {
			if err := c.db.RemovePlaylistItem(item); err != nil {
				return err
			}
			c.emitter.Emit(notify.EventVideoRemovedFromPlaylist, notify.Payload{PlaylistID: playlist.ID, VideoID: item.VideoID})
			continue
		}
		if !item.MissingFromPlaylistOnProvider {
			item.MissingFromPlaylistOnProvider = true
			if err := c.db.SavePlaylistItem(item); err != nil {
				return err
			}
		}
	}

	metrics.ScansDispatched.WithLabelValues("playlist").Inc()
	log.WithField("entries", len(details.Entries)).Info("Playlist scan finished")
	return nil
}

// mirrorChannelPlaylistsTask discovers upstream playlists for a channel
// that opted into mirroring and creates local mirrors for the new ones.
func (c *Controller) mirrorChannelPlaylistsTask(inv *workers.Invocation) error {
	channel, err := c.db.GetChannelByID(kwargUint64(inv.Kwargs, "channel_id"))
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}
	if !channel.MirrorPlaylists {
		return nil
	}

	upstream, err := c.provider.ChannelPlaylists(context.Background(), channel.ProviderID, c.channelListingOptions(channel))
	if err != nil {
		return fmt.Errorf("failed to list channel playlists: %w", err)
	}

	existing, err := c.db.ScannablePlaylists()
	if err != nil {
		return err
	}
	var crontabs []string
	for _, p := range existing {
		crontabs = append(crontabs, p.Crontab)
	}

	for _, entry := range upstream {
		exists, err := c.db.PlaylistAlreadyExists(entry.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		playlist := &models.Playlist{
			ProviderObjectID: entry.ID,
			Title:            entry.Title,
			ChannelID:        &channel.ID,
			Crontab:          schedule.BalancedDailyCron(schedule.SplitSelection(c.cfg.CronDefaultSelection), crontabs),
			SyncDeletions:    true,
		}
		if err := c.db.SavePlaylist(playlist); err != nil {
			return err
		}
		crontabs = append(crontabs, playlist.Crontab)
		c.logger.WithFields(logrus.Fields{
			"channel":  channel.Name,
			"playlist": playlist.Title,
		}).Info("Mirrored upstream playlist")
		c.emitter.Emit(notify.EventPlaylistAddedFromMirror, notify.Payload{
			ChannelID:  channel.ID,
			PlaylistID: playlist.ID,
		})
	}
	return nil
}

// splitConfigLines splits a newline-separated rule field into trimmed lines
func splitConfigLines(raw string) []string {
	if raw == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
