// Package scheduler drives the periodic crontab evaluation: each tick
// tests every actively-scanning channel and playlist cron against the
// current minute, with catch-up replay across gaps when the process was
// down.
package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/controllers"
	"github.com/archivarr/archivarr/internal/locks"
	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/schedule"
	"github.com/archivarr/archivarr/internal/workers"
)

// TaskCheckCrontabs is the tick task; one instance runs at a time
const TaskCheckCrontabs = "schedule.check_crontabs"

const (
	tabStagger     = 30 * time.Second
	channelStagger = 6 * time.Second
)

// Ticker evaluates subscription crontabs and enqueues indexing tasks
type Ticker struct {
	cfg     *config.Config
	db      *models.Database
	runtime *workers.Runtime
	logger  *logrus.Logger
}

// NewTicker creates a ticker
func NewTicker(cfg *config.Config, db *models.Database, runtime *workers.Runtime, logger *logrus.Logger) *Ticker {
	return &Ticker{cfg: cfg, db: db, runtime: runtime, logger: logger}
}

// Register registers the tick task. Concurrent ticks are dropped rather
// than queued.
func (t *Ticker) Register() {
	t.runtime.Register(TaskCheckCrontabs, t.tickTask,
		workers.WithNamedLock(func(workers.Kwargs) string { return "task:" + TaskCheckCrontabs },
			locks.DefaultTTL, workers.ContentionIgnore, 0))
}

// Submit enqueues one tick
func (t *Ticker) Submit(forced bool) error {
	_, err := t.runtime.Submit(TaskCheckCrontabs, workers.Kwargs{"forced": forced})
	return err
}

func (t *Ticker) tickTask(inv *workers.Invocation) error {
	forced, _ := inv.Kwargs["forced"].(bool)
	_, _, err := t.Tick(time.Now(), forced)
	return err
}

// Tick runs one scheduler pass at the given instant. Returns the channel
// and playlist ids that fired, deduplicated across the catch-up window.
func (t *Ticker) Tick(now time.Time, forced bool) ([]uint64, []uint64, error) {
	metrics.SchedulerTicks.Inc()

	instants := t.instantsInScope(now, forced)

	processedChannels := map[uint64]bool{}
	processedPlaylists := map[uint64]bool{}
	var channelIDs, playlistIDs []uint64

	channels, err := t.db.ActivelyScanningChannels()
	if err != nil {
		return nil, nil, err
	}
	playlists, err := t.db.ScannablePlaylists()
	if err != nil {
		return nil, nil, err
	}

	stagger := time.Duration(0)
	for _, instant := range instants {
		for _, channel := range channels {
			if processedChannels[channel.ID] {
				continue
			}
			fires, err := schedule.FiresAt(channel.ScannerCrontab, instant)
			if err != nil {
				t.logger.WithError(err).WithField("channel", channel.Name).Warn("Invalid scanner crontab")
				processedChannels[channel.ID] = true
				continue
			}
			if !fires {
				continue
			}
			processedChannels[channel.ID] = true
			if channel.RecentlyScanned(now) {
				t.logger.WithField("channel", channel.Name).Debug("Scan suppressed by rescan window")
				continue
			}
			if err := t.enqueueChannelScans(channel, stagger); err != nil {
				return nil, nil, err
			}
			channelIDs = append(channelIDs, channel.ID)
			stagger += channelStagger
		}

		for _, playlist := range playlists {
			if processedPlaylists[playlist.ID] {
				continue
			}
			fires, err := schedule.FiresAt(playlist.Crontab, instant)
			if err != nil {
				t.logger.WithError(err).WithField("playlist", playlist.Title).Warn("Invalid playlist crontab")
				processedPlaylists[playlist.ID] = true
				continue
			}
			if !fires {
				continue
			}
			processedPlaylists[playlist.ID] = true
			if _, err := t.runtime.Submit(controllers.TaskScanPlaylist, workers.Kwargs{"playlist_id": playlist.ID}); err != nil {
				return nil, nil, err
			}
			playlistIDs = append(playlistIDs, playlist.ID)
		}
	}

	if err := t.fireScanAfterOneShots(now, processedChannels, &channelIDs, &stagger); err != nil {
		return nil, nil, err
	}

	return channelIDs, playlistIDs, nil
}

// instantsInScope computes the minutes this tick must evaluate. Gaps
// larger than 1.5 ticks but within the catch-up ceiling replay every
// missed minute; larger gaps are declined unless forced.
func (t *Ticker) instantsInScope(now time.Time, forced bool) []time.Time {
	current := now.Truncate(time.Minute)
	last := t.runtime.LastSuccess(TaskCheckCrontabs)
	if last.IsZero() {
		return []time.Time{current}
	}

	interval := time.Duration(t.cfg.CrontabCheckInterval) * time.Minute
	maxGap := time.Duration(t.cfg.CrontabCheckIntervalMaxInDays) * 24 * time.Hour
	gap := now.Sub(last)

	replay := forced
	if !replay {
		if !t.cfg.AutomatedCrontabCatchup {
			return []time.Time{current}
		}
		if gap <= interval+interval/2 {
			return []time.Time{current}
		}
		if gap > maxGap {
			t.logger.WithField("gap", gap.String()).Warn("Catch-up window exceeded, skipping replay")
			return []time.Time{current}
		}
	}

	var instants []time.Time
	for instant := last.Truncate(time.Minute).Add(time.Minute); !instant.After(current); instant = instant.Add(time.Minute) {
		instants = append(instants, instant)
	}
	if len(instants) == 0 {
		instants = []time.Time{current}
	}
	return instants
}

// enqueueChannelScans enqueues one indexer per enabled tab, staggered so
// simultaneous fires do not stampede the provider.
func (t *Ticker) enqueueChannelScans(channel *models.Channel, base time.Duration) error {
	countdown := base
	for _, tab := range models.AllTabs {
		if !channel.IndexEnabled(tab) {
			continue
		}
		if _, err := t.runtime.SubmitDelayed(controllers.TaskScanChannelTab, workers.Kwargs{
			"channel_id": channel.ID,
			"tab":        string(tab),
		}, countdown); err != nil {
			return err
		}
		countdown += tabStagger
	}
	return nil
}

// fireScanAfterOneShots consumes due scan_after markers
func (t *Ticker) fireScanAfterOneShots(now time.Time, processed map[uint64]bool, fired *[]uint64, stagger *time.Duration) error {
	channels, err := t.db.ChannelsWithScanAfter(now)
	if err != nil {
		return err
	}
	for _, channel := range channels {
		channel.ScanAfter = nil
		if err := t.db.SaveChannel(channel); err != nil {
			return err
		}
		if processed[channel.ID] {
			continue
		}
		processed[channel.ID] = true
		if err := t.enqueueChannelScans(channel, *stagger); err != nil {
			return err
		}
		*fired = append(*fired, channel.ID)
		*stagger += channelStagger
	}
	return nil
}
