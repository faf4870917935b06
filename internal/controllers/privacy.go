package controllers

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/utils"
	"github.com/archivarr/archivarr/internal/workers"
)

// privacyRevalidationTask spreads privacy-status probes over the candidate
// pool so every archived video gets revisited within the min-age window
// without hammering the provider.
func (c *Controller) privacyRevalidationTask(inv *workers.Invocation) error {
	now := time.Now()
	candidates, err := c.db.PrivacyCheckCandidates(c.cfg.PrivacyStatusCheckMinAge, c.cfg.PrivacyStatusCheckMaxCheckPerVideo, now)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	perDay := int(math.Ceil(float64(len(candidates)) / float64(c.cfg.PrivacyStatusCheckMinAge)))
	perCall := perDay / c.cfg.PrivacyStatusCheckHoursPerDay / 6
	if c.cfg.PrivacyStatusCheckForceCheckPerCall > 0 {
		perCall = c.cfg.PrivacyStatusCheckForceCheckPerCall
	}
	smallBudget := perCall <= 1
	if perCall < 1 {
		perCall = 1
	}
	if perCall > len(candidates) {
		perCall = len(candidates)
	}

	for _, video := range candidates[:perCall] {
		countdown := time.Duration(10+rand.Intn(11)) * time.Second
		if smallBudget {
			countdown = time.Duration(46+rand.Intn(98)) * time.Second
		}
		if _, err := c.runtime.SubmitDelayed(TaskUpdateVideoDetails, workers.Kwargs{"video_id": video.ID}, countdown); err != nil {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"dispatched": perCall,
	}).Info("Privacy revalidation pass dispatched")
	return nil
}

// updateVideoDetailsTask refreshes a single video's metadata from the
// provider, reclassifying privacy on terminal markers, re-deriving quality
// ceilings, and repairing missing blobs.
func (c *Controller) updateVideoDetailsTask(inv *workers.Invocation) error {
	video, err := c.db.GetVideoByID(kwargUint64(inv.Kwargs, "video_id"))
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}
	now := time.Now()
	metrics.PrivacyChecks.Inc()

	meta, err := c.provider.VideoDetails(context.Background(), videoURL(video.ProviderID), c.listingOptions())
	if err != nil {
		if de, ok := provider.AsDownloadError(err); ok {
			status, live := ClassifyDownloadError(de.Msg)
			if status != "" || live {
				if status != "" {
					video.PrivacyStatus = status
				}
				video.LastPrivacyStatusCheck = &now
				video.PrivacyStatusChecks++
				return c.db.SaveVideo(video)
			}
		}
		countdown := 2 * time.Minute
		if inv.Attempt >= 3 {
			countdown = time.Hour
		}
		return inv.Retry(countdown)
	}

	if err := c.db.SetDetailsFromProvider(video, meta); err != nil {
		return err
	}

	if video.Quality == 0 {
		if q := utils.DownloadedQuality(meta.FormatID, meta.Formats); q > 0 {
			video.Quality = q
		}
	}
	if video.AtMaxQuality {
		if ceiling := utils.MaxQuality(meta.Formats); ceiling > video.Quality {
			video.AtMaxQuality = false
			video.SetSystemNote("uvd_max_quality_changed", now.UTC().Format(time.RFC3339))
		}
	}

	if video.File != "" && !c.backend.Exists(video.File) {
		if _, err := c.runtime.Submit(TaskDownloadVideo, workers.Kwargs{
			"video_id":    video.ID,
			"task_source": "update_video_details - Missing File",
		}); err != nil {
			return err
		}
	}

	if c.cfg.SaveInfoJSONFile {
		if data, derr := meta.InfoJSON(); derr == nil {
			path := c.layout.InfoJSONPath(video, c.channelOf(video), nil)
			if _, serr := c.backend.Save(path, bytes.NewReader(data)); serr == nil {
				video.InfoJSON = path
			}
		}
	}
	if video.Thumbnail == "" && meta.Thumbnail != "" {
		video.SetSystemNote("thumbnail_url", meta.Thumbnail)
		if _, err := c.runtime.Submit(TaskDownloadThumbnail, workers.Kwargs{"video_id": video.ID}); err != nil {
			return err
		}
	}

	video.LastPrivacyStatusCheck = &now
	video.PrivacyStatusChecks++
	if err := c.db.SaveVideo(video); err != nil {
		return err
	}

	if err := c.loadChaptersFromInfoJSON(video); err != nil {
		c.logger.WithError(err).Warn("Failed to load chapters")
	}
	if c.cfg.LoadSponsorblockDataOnUpdateVideoDetails {
		if _, err := c.runtime.Submit(TaskLoadSponsorblock, workers.Kwargs{"video_id": video.ID}); err != nil {
			return err
		}
	}

	_, err = c.runtime.Submit(TaskRenameVideoFiles, workers.Kwargs{"video_id": video.ID})
	return err
}

// renameVideoFilesTask moves a video's blobs onto the paths the current
// schema dictates. Holds the object lock like every other blob-mutating
// task.
func (c *Controller) renameVideoFilesTask(inv *workers.Invocation) error {
	video, err := c.db.GetVideoByID(kwargUint64(inv.Kwargs, "video_id"))
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}
	if err := c.locks.LockObject(entityVideo, video.ID, pipelineLockTTL); err != nil {
		return errLockNotAcquired
	}
	defer c.locks.UnlockObject(entityVideo, video.ID)

	channel := c.channelOf(video)
	changed := false

	move := func(current *string, target string) error {
		if *current == "" || *current == target {
			return nil
		}
		if !c.backend.Exists(*current) {
			return nil
		}
		r, err := c.backend.Open(*current)
		if err != nil {
			return err
		}
		defer r.Close()
		if _, err := c.backend.Save(target, r); err != nil {
			return err
		}
		if err := c.backend.Delete(*current); err != nil {
			return err
		}
		*current = target
		changed = true
		return nil
	}

	ext := strings.TrimPrefix(filepath.Ext(video.File), ".")
	if err := move(&video.File, c.layout.MediaPath(video, channel, nil, ext)); err != nil {
		return err
	}
	if err := move(&video.Audio, c.layout.AudioPath(video, channel, nil)); err != nil {
		return err
	}
	if err := move(&video.Thumbnail, c.layout.ThumbnailPath(video, channel, nil)); err != nil {
		return err
	}
	if err := move(&video.InfoJSON, c.layout.InfoJSONPath(video, channel, nil)); err != nil {
		return err
	}

	if changed {
		return c.db.SaveVideo(video)
	}
	return nil
}
