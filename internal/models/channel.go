package models

import (
	"strings"
	"time"
)

// Channel represents one subscribed upstream source
type Channel struct {
	ID         uint64 `gorm:"primaryKey"`
	ProviderID string `gorm:"uniqueIndex"`

	Name           string
	SortName       string
	Slug           string `gorm:"index"`
	UploaderHandle string
	Description    string
	Status         ChannelStatus `gorm:"index;default:active"`

	// Tab configuration: videos
	IndexVideos               bool
	DownloadVideos            bool
	ScannerLimitVideos        int
	DurationMinimumVideos     int // Seconds; 0 disables the gate
	DurationMaximumVideos     int
	DeleteVideosAfterDays     int
	DeleteVideosAfterWatching bool
	FullyIndexedVideos        bool
	LastScannedVideos         *time.Time
	SwapIndexVideosAfter      *time.Time

	// Tab configuration: shorts
	IndexShorts               bool
	DownloadShorts            bool
	ScannerLimitShorts        int
	DurationMinimumShorts     int
	DurationMaximumShorts     int
	DeleteShortsAfterDays     int
	DeleteShortsAfterWatching bool
	FullyIndexedShorts        bool
	LastScannedShorts         *time.Time
	SwapIndexShortsAfter      *time.Time

	// Tab configuration: livestreams
	IndexLivestreams               bool
	DownloadLivestreams            bool
	ScannerLimitLivestreams        int
	DurationMinimumLivestreams     int
	DurationMaximumLivestreams     int
	DeleteLivestreamsAfterDays     int
	DeleteLivestreamsAfterWatching bool
	FullyIndexedLivestreams        bool
	LastScannedLivestreams         *time.Time
	SwapIndexLivestreamsAfter      *time.Time

	Quality        int
	ScannerCrontab string
	ScanAfter      *time.Time // One-shot scan trigger

	FullArchive       bool
	SlowFullArchive   bool
	FullArchiveAfter  *time.Time
	FullArchiveCutoff *time.Time // Videos uploaded before this date are out of scope
	FullIndexAfter    *time.Time

	TitleSkips  string // Newline-separated case-insensitive substrings
	TitleForces string

	MirrorPlaylists           bool
	BlockRescanWindowInHours  int
	MaxDownloadAgeDays        int // 0 disables the too-old gate
	NeedsCookies              bool
	SendDownloadNotifications bool

	ThumbnailURL string
	BannerURL    string
	TVArtURL     string

	DirectorySchema string // Overrides CHANNEL_DIR_SCHEMA when set

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the channel may be scheduled at all
func (c *Channel) Active() bool {
	return c.Status == ChannelActive
}

// IndexingEnabled reports whether any tab is being indexed
func (c *Channel) IndexingEnabled() bool {
	return c.IndexVideos || c.IndexShorts || c.IndexLivestreams
}

// IndexEnabled reports whether the given tab is being indexed
func (c *Channel) IndexEnabled(tab Tab) bool {
	switch tab {
	case TabShorts:
		return c.IndexShorts
	case TabLivestreams:
		return c.IndexLivestreams
	}
	return c.IndexVideos
}

// DownloadEnabled reports whether new items on the given tab are downloaded
func (c *Channel) DownloadEnabled(tab Tab) bool {
	switch tab {
	case TabShorts:
		return c.DownloadShorts
	case TabLivestreams:
		return c.DownloadLivestreams
	}
	return c.DownloadVideos
}

// ScannerLimit returns the per-scan item limit for the given tab
func (c *Channel) ScannerLimit(tab Tab) int {
	switch tab {
	case TabShorts:
		return c.ScannerLimitShorts
	case TabLivestreams:
		return c.ScannerLimitLivestreams
	}
	return c.ScannerLimitVideos
}

// DurationGates returns the min/max duration gate for the given tab
func (c *Channel) DurationGates(tab Tab) (min, max int) {
	switch tab {
	case TabShorts:
		return c.DurationMinimumShorts, c.DurationMaximumShorts
	case TabLivestreams:
		return c.DurationMinimumLivestreams, c.DurationMaximumLivestreams
	}
	return c.DurationMinimumVideos, c.DurationMaximumVideos
}

// FullyIndexed reports whether a limitless scan completed for the tab
func (c *Channel) FullyIndexed(tab Tab) bool {
	switch tab {
	case TabShorts:
		return c.FullyIndexedShorts
	case TabLivestreams:
		return c.FullyIndexedLivestreams
	}
	return c.FullyIndexedVideos
}

// SetFullyIndexed sets the fully-indexed flag for the tab
func (c *Channel) SetFullyIndexed(tab Tab, v bool) {
	switch tab {
	case TabShorts:
		c.FullyIndexedShorts = v
	case TabLivestreams:
		c.FullyIndexedLivestreams = v
	default:
		c.FullyIndexedVideos = v
	}
}

// LastScanned returns the last scan instant for the tab
func (c *Channel) LastScanned(tab Tab) *time.Time {
	switch tab {
	case TabShorts:
		return c.LastScannedShorts
	case TabLivestreams:
		return c.LastScannedLivestreams
	}
	return c.LastScannedVideos
}

// SetLastScanned records a scan instant for the tab
func (c *Channel) SetLastScanned(tab Tab, t time.Time) {
	switch tab {
	case TabShorts:
		c.LastScannedShorts = &t
	case TabLivestreams:
		c.LastScannedLivestreams = &t
	default:
		c.LastScannedVideos = &t
	}
}

// RetentionDays returns the delete-after-days setting for the tab
func (c *Channel) RetentionDays(tab Tab) int {
	switch tab {
	case TabShorts:
		return c.DeleteShortsAfterDays
	case TabLivestreams:
		return c.DeleteLivestreamsAfterDays
	}
	return c.DeleteVideosAfterDays
}

// DeleteAfterWatching reports the delete-on-watched flag for the tab
func (c *Channel) DeleteAfterWatching(tab Tab) bool {
	switch tab {
	case TabShorts:
		return c.DeleteShortsAfterWatching
	case TabLivestreams:
		return c.DeleteLivestreamsAfterWatching
	}
	return c.DeleteVideosAfterWatching
}

// RecentlyScanned reports whether any tab was scanned within the channel's
// rescan-suppression window.
func (c *Channel) RecentlyScanned(now time.Time) bool {
	if c.BlockRescanWindowInHours <= 0 {
		return false
	}
	window := time.Duration(c.BlockRescanWindowInHours) * time.Hour
	for _, last := range []*time.Time{c.LastScannedVideos, c.LastScannedShorts, c.LastScannedLivestreams} {
		if last != nil && now.Sub(*last) < window {
			return true
		}
	}
	return false
}

// TitleSkipList returns the skip list split into trimmed lines
func (c *Channel) TitleSkipList() []string {
	return splitLines(c.TitleSkips)
}

// TitleForceList returns the force list split into trimmed lines
func (c *Channel) TitleForceList() []string {
	return splitLines(c.TitleForces)
}

func splitLines(raw string) []string {
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

// MatchesAnyLine reports whether any line matches title as a
// case-insensitive substring.
func MatchesAnyLine(lines []string, title string) bool {
	lower := strings.ToLower(title)
	for _, line := range lines {
		if strings.Contains(lower, strings.ToLower(line)) {
			return true
		}
	}
	return false
}
