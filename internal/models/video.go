package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrUnauthorizedVideoDeletion is returned when a video row is deleted
// without going through the service layer.
var ErrUnauthorizedVideoDeletion = errors.New("video deletion must go through the service layer")

// Video is the central archived entity
type Video struct {
	ID         uint64  `gorm:"primaryKey"`
	ProviderID string  `gorm:"uniqueIndex"`
	ChannelID  *uint64 `gorm:"index"`
	Channel    *Channel

	Title       string
	Description string
	UploadDate  *time.Time

	IsVideo      bool
	IsShort      bool
	IsLivestream bool

	PrivacyStatus PrivacyStatus `gorm:"index;default:missing"`

	Quality      int
	AtMaxQuality bool

	// Blob references (paths within the blob store; empty when absent)
	File      string
	Audio     string
	Thumbnail string
	InfoJSON  string

	Duration int // Seconds
	FileSize int64

	ViewCount int64
	LikeCount int64
	FPS       float64
	Width     int
	Height    int

	ForceDownload       bool
	PermitDownload      bool `gorm:"default:true"`
	PreventDeletion     bool
	MarkForDeletion     bool
	ConvertToAudio      bool
	DownloadAllComments bool
	RequestedMaxQuality bool
	DeleteAfterWatching bool
	TitleLocked         bool
	DescriptionLocked   bool

	SortOrdering int `gorm:"index"`

	DLPFormats     JSONMap `gorm:"type:text"` // Provider format dump, cleared by monthly maintenance
	DownloadKwargs JSONMap `gorm:"type:text"`
	SystemNotes    JSONMap `gorm:"type:text"`

	CreatedAt              time.Time // inserted
	UpdatedAt              time.Time
	DateDownloaded         *time.Time
	DateAddedToSystem      time.Time
	Watched                *time.Time
	Starred                *time.Time
	LastPrivacyStatusCheck *time.Time
	PrivacyStatusChecks    int

	// Set by Database.DeleteVideo so the BeforeDelete hook can tell a
	// service-layer deletion from a stray one. Unexported fields are not
	// persisted by gorm.
	deletionAuthorized bool
}

// AuthorizeDeletion marks the struct as deletable by the service layer
func (v *Video) AuthorizeDeletion() {
	v.deletionAuthorized = true
}

// BeforeDelete refuses deletions that bypass the service layer
func (v *Video) BeforeDelete(_ *gorm.DB) error {
	if !v.deletionAuthorized {
		return ErrUnauthorizedVideoDeletion
	}
	return nil
}

// Tab reports which tab the video's classification belongs to
func (v *Video) Tab() Tab {
	switch {
	case v.IsShort:
		return TabShorts
	case v.IsLivestream:
		return TabLivestreams
	}
	return TabVideos
}

// Classified reports whether any classification flag is set
func (v *Video) Classified() bool {
	return v.IsVideo || v.IsShort || v.IsLivestream
}

// SetClassification sets exactly one classification flag for the tab
func (v *Video) SetClassification(tab Tab) {
	v.IsVideo = tab == TabVideos
	v.IsShort = tab == TabShorts
	v.IsLivestream = tab == TabLivestreams
}

// Archived reports whether the media blob is present
func (v *Video) Archived() bool {
	return v.File != ""
}

// SystemNoteBool reads a boolean system note
func (v *Video) SystemNoteBool(key string) bool {
	if v.SystemNotes == nil {
		return false
	}
	b, _ := v.SystemNotes[key].(bool)
	return b
}

// SetSystemNote writes one system note key
func (v *Video) SetSystemNote(key string, value any) {
	if v.SystemNotes == nil {
		v.SystemNotes = JSONMap{}
	}
	v.SystemNotes[key] = value
}

// ClearSystemNote removes one system note key
func (v *Video) ClearSystemNote(key string) {
	delete(v.SystemNotes, key)
}

// ProxiesAttempted returns the proxies recorded as tried for this video
func (v *Video) ProxiesAttempted() []string {
	raw, ok := v.SystemNotes["proxies_attempted"].([]any)
	if !ok {
		return nil
	}
	proxies := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			proxies = append(proxies, s)
		}
	}
	return proxies
}

// RecordProxyAttempt appends a proxy to the tried list, skipping duplicates
// and the empty proxy.
func (v *Video) RecordProxyAttempt(proxy string) {
	if proxy == "" {
		return
	}
	for _, p := range v.ProxiesAttempted() {
		if p == proxy {
			return
		}
	}
	if v.SystemNotes == nil {
		v.SystemNotes = JSONMap{}
	}
	raw, _ := v.SystemNotes["proxies_attempted"].([]any)
	v.SystemNotes["proxies_attempted"] = append(raw, proxy)
}

// AppendDownloadStat records one download-stats breadcrumb
func (v *Video) AppendDownloadStat(stat map[string]any) {
	if v.SystemNotes == nil {
		v.SystemNotes = JSONMap{}
	}
	raw, _ := v.SystemNotes["downloads"].([]any)
	v.SystemNotes["downloads"] = append(raw, stat)
}

// LatestDownloadStat returns the most recent download-stats breadcrumb, or
// nil when none exist.
func (v *Video) LatestDownloadStat() map[string]any {
	raw, _ := v.SystemNotes["downloads"].([]any)
	if len(raw) == 0 {
		return nil
	}
	stat, _ := raw[len(raw)-1].(map[string]any)
	return stat
}

// VideoHistory is an immutable change-history row appended whenever the
// title, description, or privacy status transitions from a non-empty prior
// value.
type VideoHistory struct {
	ID        uint64 `gorm:"primaryKey"`
	VideoID   uint64 `gorm:"index"`
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// VideoRelation is one direction of the symmetric related-videos edge
type VideoRelation struct {
	VideoID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	RelatedID uint64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

// VideoBlocked is a tombstone: the indexer refuses to re-create a video
// with a blocked provider id.
type VideoBlocked struct {
	ID         uint64 `gorm:"primaryKey"`
	ProviderID string `gorm:"uniqueIndex"`
	Reason     string
	CreatedAt  time.Time
}
