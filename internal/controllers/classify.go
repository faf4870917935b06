package controllers

import (
	"strings"

	"github.com/archivarr/archivarr/internal/models"
)

// noteLiveAtLastAttempt marks a video whose download failed because the
// livestream has not started yet; the archiver retries these later.
const noteLiveAtLastAttempt = "video_was_live_at_last_attempt"

// ClassifyDownloadError maps a provider error message onto a privacy
// status. The second return is true when the message indicates a scheduled
// live event that has not started; those are neither terminal nor
// retryable within the pipeline. An empty status with live=false means the
// error is transient.
func ClassifyDownloadError(msg string) (models.PrivacyStatus, bool) {
	lower := strings.ToLower(msg)
	contains := func(subs ...string) bool {
		for _, s := range subs {
			if !strings.Contains(lower, s) {
				return false
			}
		}
		return true
	}

	switch {
	case contains("blocked", "country"):
		return models.PrivacyBlocked, false
	case contains("private video"):
		return models.PrivacyPrivate, false
	case contains("video unavailable"), contains("not available"):
		return models.PrivacyUnavailable, false
	case contains("deleted video"),
		contains("copyright claim"),
		contains("terminated"),
		contains("closed", "account"),
		contains("removed", "harassment"),
		contains("removed", "violating"),
		contains("removed", "bullying"):
		return models.PrivacyDeleted, false
	case contains("live event will"):
		return "", true
	}
	return "", false
}
