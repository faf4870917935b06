package controllers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/services/sponsorblock"
	"github.com/archivarr/archivarr/internal/workers"
)

// downloadCommentsTask fetches and upserts the comment tree for a video
func (c *Controller) downloadCommentsTask(inv *workers.Invocation) error {
	video, err := c.db.GetVideoByID(kwargUint64(inv.Kwargs, "video_id"))
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	caps := provider.CommentCaps{
		TotalMax:            c.cfg.CommentsTotalMaxComments,
		MaxParents:          c.cfg.CommentsMaxParents,
		MaxReplies:          c.cfg.CommentsMaxReplies,
		MaxRepliesPerThread: c.cfg.CommentsMaxRepliesPerThread,
		Sorting:             c.cfg.CommentsSorting,
	}

	comments, err := c.provider.VideoComments(context.Background(), videoURL(video.ProviderID), video.DownloadAllComments, caps, c.listingOptions())
	if err != nil {
		return inv.Retry(time.Minute)
	}

	created := 0
	for _, comment := range comments {
		_, isNew, err := c.db.UpsertComment(video.ID, comment)
		if err != nil {
			return err
		}
		if isNew {
			created++
		}
	}
	total, err := c.db.CommentCount(video.ID)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"video": video.ProviderID,
		"new":   created,
		"total": total,
	}).Info("Comments downloaded")
	return nil
}

// loadSponsorblockTask ingests SponsorBlock skip segments as DurationSkip
// rows. API-side 5xx responses drop the task; transport errors back off
// from ten minutes doubling toward six hours with jitter.
func (c *Controller) loadSponsorblockTask(inv *workers.Invocation) error {
	video, err := c.db.GetVideoByID(kwargUint64(inv.Kwargs, "video_id"))
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	segments, err := c.sb.SkipSegments(context.Background(), video.ProviderID, nil)
	if errors.Is(err, sponsorblock.ErrIgnore) {
		return nil
	}
	if err != nil {
		countdown := 10 * time.Minute << inv.Attempt
		if countdown > 6*time.Hour {
			countdown = 6 * time.Hour
		}
		countdown += time.Duration(rand.Intn(60)) * time.Second
		return inv.Retry(countdown)
	}

	for _, segment := range segments {
		if segment.ActionType != "" && segment.ActionType != "skip" {
			continue
		}
		exists, err := c.db.DurationSkipExistsBySBUUID(segment.UUID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		skip := &models.DurationSkip{
			VideoID:    video.ID,
			Start:      int(segment.Segment[0]),
			End:        int(segment.Segment[1]),
			SBCategory: segment.Category,
			SBUUID:     segment.UUID,
		}
		if err := c.db.CreateDurationSkip(skip, true); err != nil && !errors.Is(err, models.ErrOverlappingSkip) {
			return err
		}
	}

	video.SetSystemNote("sponsorblock_loaded", time.Now().UTC().Format(time.RFC3339))
	return c.db.UpdateSystemNotes(video)
}
