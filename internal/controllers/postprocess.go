package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/archivarr/archivarr/internal/metrics"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/storage"
	"github.com/archivarr/archivarr/internal/workers"
)

// postprocessVideoTask converts and publishes the downloaded media: audio
// extraction when requested, mp4 conversion when the container is not
// browser-playable, raw publish otherwise. Runs on the transcode queue
// with the object lock still held from the pipeline. On failure the lock is
// released here; on success it stays held for the chain's terminal handler.
func (c *Controller) postprocessVideoTask(inv *workers.Invocation) (err error) {
	videoID := kwargUint64(inv.Kwargs, "video_id")
	defer func() {
		if err != nil {
			c.locks.UnlockObject(entityVideo, videoID)
		}
	}()

	video, err := c.db.GetVideoByID(videoID)
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}
	rawPath := kwargString(inv.Kwargs, "raw_file_path")
	if rawPath == "" {
		return fmt.Errorf("no downloaded file recorded for video %d", video.ID)
	}
	channel := c.channelOf(video)
	ctx := context.Background()

	if video.ConvertToAudio {
		audioPath, err := c.transcoder.ToAudio(ctx, rawPath)
		if err != nil {
			return fmt.Errorf("audio transcode failed: %w", err)
		}
		target := c.layout.AudioPath(video, channel, nil)
		if _, err := storage.Publish(c.backend, audioPath, target); err != nil {
			return err
		}
		video.Audio = target
		c.removeCacheFile(audioPath)
		metrics.TranscodesCompleted.WithLabelValues("audio").Inc()
	}

	mediaPath := rawPath
	ext := strings.TrimPrefix(filepath.Ext(rawPath), ".")
	if c.convert.ShouldConvertToPlayable(rawPath) {
		mp4Path, err := c.transcoder.ToMP4(ctx, rawPath)
		if err != nil {
			return fmt.Errorf("mp4 transcode failed: %w", err)
		}
		mediaPath = mp4Path
		ext = "mp4"
		c.emitter.Emit(notify.EventConvertToMP4Complete, notify.Payload{VideoID: video.ID})
		metrics.TranscodesCompleted.WithLabelValues("mp4").Inc()
	}

	target := c.layout.MediaPath(video, channel, nil, ext)
	size, err := storage.Publish(c.backend, mediaPath, target)
	if err != nil {
		return fmt.Errorf("failed to publish media: %w", err)
	}
	video.File = target
	video.FileSize = size

	if mediaPath != rawPath {
		c.removeCacheFile(mediaPath)
	}
	c.removeCacheFile(rawPath)

	return c.db.SaveVideo(video)
}

// removeCacheFile deletes a scratch file, honouring the cache-retention
// setting. Missing files are fine.
func (c *Controller) removeCacheFile(path string) {
	if !c.cfg.DeleteDownloadCache || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.WithError(err).WithField("path", path).Warn("Failed to delete cache file")
	}
}

// videoDownloadedTask is the terminal success handler. The object lock is
// released here and nowhere earlier on the success path.
func (c *Controller) videoDownloadedTask(inv *workers.Invocation) error {
	videoID := kwargUint64(inv.Kwargs, "video_id")
	defer c.locks.UnlockObject(entityVideo, videoID)

	video, err := c.db.GetVideoByID(videoID)
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	if err := c.loadChaptersFromInfoJSON(video); err != nil {
		c.logger.WithError(err).WithField("video", video.ProviderID).Warn("Failed to load chapters")
	}

	if _, err := c.runtime.SubmitDelayed(TaskDownloadThumbnail, workers.Kwargs{"video_id": video.ID}, 30*time.Second); err != nil {
		return err
	}

	if err := c.mineRelatedVideos(video); err != nil {
		c.logger.WithError(err).Warn("Related-video mining failed")
	}

	if video.ChannelID != nil {
		scan, err := c.db.LatestScanHistory(*video.ChannelID)
		if err != nil {
			return err
		}
		if scan != nil {
			if err := c.db.IncrementScanHistoryDownload(scan.ID, video.Tab()); err != nil {
				return err
			}
		}
	}

	c.emitter.Emit(notify.EventVideoDownloaded, notify.Payload{VideoID: video.ID})

	if video.DownloadAllComments {
		if _, err := c.runtime.Submit(TaskDownloadComments, workers.Kwargs{"video_id": video.ID}); err != nil {
			return err
		}
	}
	if c.cfg.LoadSponsorblockDataOnDownload {
		if _, err := c.runtime.Submit(TaskLoadSponsorblock, workers.Kwargs{"video_id": video.ID}); err != nil {
			return err
		}
	}

	if stat := video.LatestDownloadStat(); stat != nil {
		stat["processing_finished"] = time.Now().UTC().Format(time.RFC3339)
		if err := c.db.UpdateSystemNotes(video); err != nil {
			return err
		}
	}
	return nil
}

// loadChaptersFromInfoJSON upserts provider chapters as highlights
func (c *Controller) loadChaptersFromInfoJSON(video *models.Video) error {
	if video.InfoJSON == "" {
		return nil
	}
	r, err := c.backend.Open(video.InfoJSON)
	if err != nil {
		return err
	}
	defer r.Close()

	var meta provider.VideoMetadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return err
	}
	for _, chapter := range meta.Chapters {
		end := int(chapter.EndTime)
		if err := c.db.UpsertChapterHighlight(video.ID, int(chapter.StartTime), &end, chapter.Title); err != nil {
			return err
		}
	}
	return nil
}

// mineRelatedVideos scans the description for provider video links that
// resolve to locally known videos and records symmetric related edges.
func (c *Controller) mineRelatedVideos(video *models.Video) error {
	if video.Description == "" {
		return nil
	}
	seen := map[string]bool{}
	for _, token := range strings.Fields(video.Description) {
		if !strings.Contains(token, "youtu") {
			continue
		}
		id := provider.ExtractVideoID(token)
		if id == "" || id == video.ProviderID || seen[id] {
			continue
		}
		seen[id] = true
		related, err := c.db.GetVideoByProviderID(id)
		if err != nil {
			continue
		}
		if err := c.db.AddRelatedVideo(video.ID, related.ID); err != nil {
			return err
		}
	}
	return nil
}

// downloadThumbnailTask fetches the provider thumbnail into the blob store
func (c *Controller) downloadThumbnailTask(inv *workers.Invocation) error {
	video, err := c.db.GetVideoByID(kwargUint64(inv.Kwargs, "video_id"))
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	url, _ := video.SystemNotes["thumbnail_url"].(string)
	if url == "" {
		meta, err := c.provider.VideoDetails(context.Background(), videoURL(video.ProviderID), c.listingOptions())
		if err != nil {
			return fmt.Errorf("failed to resolve thumbnail url: %w", err)
		}
		url = meta.Thumbnail
	}
	if url == "" {
		return nil
	}

	resp, err := c.rest.R().Get(url)
	if err != nil {
		return fmt.Errorf("thumbnail fetch failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("thumbnail fetch returned %d", resp.StatusCode())
	}

	target := c.layout.ThumbnailPath(video, c.channelOf(video), nil)
	if _, err := c.backend.Save(target, bytes.NewReader(resp.Body())); err != nil {
		return err
	}
	video.Thumbnail = target
	return c.db.SaveVideo(video)
}
