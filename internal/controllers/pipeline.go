package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/locks"
	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/utils"
	"github.com/archivarr/archivarr/internal/workers"
)

// pipelineLockTTL bounds one download-plus-process span
const pipelineLockTTL = locks.DefaultTTL

const entityVideo = "video"

// errLockNotAcquired carries the exact failure meta the task result shows
// when a second dispatch races an in-flight one.
var errLockNotAcquired = errors.New("Task failed to acquire lock.")

// downloadVideoTask is the per-video state machine. Exactly one instance
// runs per video, enforced by the object lock; the lock is held across the
// post-processing chain and released by the terminal success handler. On
// error paths the lock is released here.
func (c *Controller) downloadVideoTask(inv *workers.Invocation) error {
	videoID := kwargUint64(inv.Kwargs, "video_id")
	taskSource := kwargString(inv.Kwargs, "task_source")
	qualityUpgrade := kwargBool(inv.Kwargs, "automated_quality_upgrade")

	video, err := c.db.GetVideoByID(videoID)
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	if err := c.locks.LockObject(entityVideo, video.ID, pipelineLockTTL); err != nil {
		return errLockNotAcquired
	}

	log := c.logger.WithFields(logrus.Fields{
		"video":       video.ProviderID,
		"task_source": taskSource,
		"attempt":     inv.Attempt,
	})

	selected, err := c.selectQuality(video, kwargInt(inv.Kwargs, "quality", -1))
	if err != nil {
		c.locks.UnlockObject(entityVideo, video.ID)
		return err
	}

	opts := c.downloadOptions(video, selected, inv.Attempt)
	if channel := c.channelOf(video); channel != nil && channel.NeedsCookies {
		opts.CookieFile = c.cfg.CookieFile
	}
	video.RecordProxyAttempt(opts.Proxy)
	video.DownloadKwargs = opts.Snapshot()
	if err := c.db.SaveVideo(video); err != nil {
		c.locks.UnlockObject(entityVideo, video.ID)
		return err
	}

	c.emitter.Emit(notify.EventVideoDownloadStarted, notify.Payload{VideoID: video.ID})
	metrics.DownloadsStarted.Inc()

	started := time.Now()
	meta, effective, err := c.provider.VideoDownload(context.Background(), videoURL(video.ProviderID), opts)
	finished := time.Now()

	if err != nil {
		c.locks.UnlockObject(entityVideo, video.ID)
		return c.handleDownloadFailure(inv, video, opts, selected, err, log)
	}

	if err := c.handleDownloadSuccess(video, meta, opts, effective, selected, taskSource, qualityUpgrade, started, finished); err != nil {
		c.locks.UnlockObject(entityVideo, video.ID)
		return err
	}
	return nil
}

// selectQuality resolves the target quality: explicit caller value, then
// video, then channel, then the configured default. Videos that already
// accrued the daily error budget fall back to quality 0 (best available).
func (c *Controller) selectQuality(video *models.Video, explicit int) (int, error) {
	quality := explicit
	if quality < 0 {
		switch {
		case video.Quality > 0 && video.Archived():
			quality = video.Quality
		case video.ChannelID != nil:
			channel, err := c.db.GetChannelByID(*video.ChannelID)
			if err != nil {
				return 0, err
			}
			quality = channel.Quality
		}
		if quality <= 0 {
			quality = c.cfg.DefaultQuality
		}
	}

	recent, err := c.db.CountDownloadErrorsSince(video.ID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}
	if recent >= c.cfg.VideoDownloadErrorDailyAttempts {
		quality = 0
	}
	return quality, nil
}

// downloadOptions builds the provider-call options for one attempt
func (c *Controller) downloadOptions(video *models.Video, quality, attempt int) provider.Options {
	format := c.cfg.VideoDownloadFormatBest
	if quality > 0 {
		format = strings.ReplaceAll(c.cfg.VideoDownloadFormat, "{quality}", strconv.Itoa(quality))
	}
	opts := provider.Options{
		Proxy:          c.proxies.Select(attempt, video.ProxiesAttempted()),
		RateLimit:      c.limiter,
		Format:         format,
		CacheDir:       c.cfg.MediaCache,
		OutputTemplate: fmt.Sprintf("%s/%s_%d.%%(ext)s", c.cfg.MediaCache, video.ProviderID, quality),
		WriteInfoJSON:  c.cfg.SaveInfoJSONFile,
	}
	if attempt > 0 {
		opts.CheckFormats = "selected"
	}
	return opts
}

// handleDownloadFailure classifies the provider error. Terminal privacy
// states and scheduled live events end the task; everything else retries on
// a one-minute countdown, one DownloadError row per failed attempt.
func (c *Controller) handleDownloadFailure(inv *workers.Invocation, video *models.Video, opts provider.Options, selected int, err error, log *logrus.Entry) error {
	msg := err.Error()
	if de, ok := provider.AsDownloadError(err); ok {
		msg = de.Msg
	}

	if rerr := c.db.RecordDownloadError(video.ID, msg, opts.Snapshot(), selected, inv.Attempt+1); rerr != nil {
		return rerr
	}

	status, live := ClassifyDownloadError(msg)
	if live {
		video.SetSystemNote(noteLiveAtLastAttempt, true)
		if uerr := c.db.UpdateSystemNotes(video); uerr != nil {
			return uerr
		}
		log.Info("Download deferred, live event has not started")
		c.emitter.Emit(notify.EventVideoDownloadFailed, notify.Payload{VideoID: video.ID, Message: msg})
		metrics.DownloadsFailed.Inc()
		return err
	}
	if status != "" {
		now := time.Now()
		video.PrivacyStatus = status
		video.LastPrivacyStatusCheck = &now
		if serr := c.db.SaveVideo(video); serr != nil {
			return serr
		}
		log.WithField("privacy_status", string(status)).Warn("Download failed with terminal provider state")
		c.emitter.Emit(notify.EventVideoDownloadFailed, notify.Payload{VideoID: video.ID, Message: msg})
		metrics.DownloadsFailed.Inc()
		return err
	}

	if inv.Attempt >= c.cfg.VideoDownloadErrorAttempts-1 {
		log.WithError(err).Error("Download failed, attempts exhausted")
		c.emitter.Emit(notify.EventVideoDownloadFailed, notify.Payload{VideoID: video.ID, Message: msg})
		metrics.DownloadsFailed.Inc()
		return err
	}

	log.WithError(err).Warn("Download failed, will retry")
	c.emitter.Emit(notify.EventVideoDownloadRetry, notify.Payload{VideoID: video.ID, Message: msg})
	return inv.Retry(time.Minute)
}

// handleDownloadSuccess applies metadata, computes the downloaded quality,
// records the download-stats breadcrumb, and enqueues the post-processing
// chain. The object lock stays held for the chain.
func (c *Controller) handleDownloadSuccess(video *models.Video, meta *provider.VideoMetadata, opts, effective provider.Options, selected int, taskSource string, qualityUpgrade bool, started, finished time.Time) error {
	if err := c.db.SetDetailsFromProvider(video, meta); err != nil {
		return err
	}

	quality := utils.DownloadedQuality(meta.FormatID, meta.Formats)
	maxQuality := utils.MaxQuality(meta.Formats)
	video.Quality = quality
	video.AtMaxQuality = maxQuality > 0 && quality >= maxQuality
	video.RequestedMaxQuality = selected == 0
	if !qualityUpgrade {
		now := time.Now()
		video.DateDownloaded = &now
	}
	video.ClearSystemNote(noteLiveAtLastAttempt)

	if err := c.db.DeleteDownloadErrors(video.ID); err != nil {
		return err
	}

	channel := c.channelOf(video)
	if c.cfg.SaveInfoJSONFile {
		data, err := meta.InfoJSON()
		if err == nil {
			path := c.layout.InfoJSONPath(video, channel, nil)
			if _, serr := c.backend.Save(path, bytes.NewReader(data)); serr == nil {
				video.InfoJSON = path
			} else {
				c.logger.WithError(serr).Warn("Failed to persist info json")
			}
		}
	}
	if meta.Thumbnail != "" {
		video.SetSystemNote("thumbnail_url", meta.Thumbnail)
	}

	rawPath := ""
	if len(meta.RequestedDownloads) > 0 {
		rawPath = meta.RequestedDownloads[0].Filepath
	}

	if err := c.db.SaveVideo(video); err != nil {
		return err
	}
	// Breadcrumb appends go through the row-locked store path.
	if err := c.db.AppendDownloadStat(video.ID, map[string]any{
		"status":            "success",
		"quality":           quality,
		"selected_quality":  selected,
		"at_max_quality":    video.AtMaxQuality,
		"dl_kwargs":         opts.Snapshot(),
		"used_dl_kwargs":    effective.Snapshot(),
		"raw_file_path":     rawPath,
		"download_started":  started.UTC().Format(time.RFC3339),
		"download_finished": finished.UTC().Format(time.RFC3339),
		"task_source":       taskSource,
	}); err != nil {
		return err
	}

	c.emitter.Emit(notify.EventVideoDownloadFinished, notify.Payload{VideoID: video.ID})
	metrics.DownloadsSucceeded.Inc()

	_, err := c.runtime.SubmitChain(TaskPostprocessVideo, workers.Kwargs{
		"video_id":      video.ID,
		"raw_file_path": rawPath,
	}, workers.ChainLink{
		Task:      TaskVideoDownloaded,
		Kwargs:    workers.Kwargs{"video_id": video.ID},
		Countdown: time.Second,
	})
	return err
}

// channelOf resolves the owning channel, nil for orphans
func (c *Controller) channelOf(video *models.Video) *models.Channel {
	if video.ChannelID == nil {
		return nil
	}
	channel, err := c.db.GetChannelByID(*video.ChannelID)
	if err != nil {
		return nil
	}
	return channel
}
