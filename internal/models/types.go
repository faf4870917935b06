package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PrivacyStatus classifies upstream accessibility for a video
type PrivacyStatus string

const (
	PrivacyPublic      PrivacyStatus = "public"
	PrivacyPrivate     PrivacyStatus = "private"
	PrivacyUnlisted    PrivacyStatus = "unlisted"
	PrivacyUnavailable PrivacyStatus = "unavailable"
	PrivacyDeleted     PrivacyStatus = "deleted"
	PrivacyMissing     PrivacyStatus = "missing"
	PrivacyBlocked     PrivacyStatus = "blocked"
	PrivacyNeedsAuth   PrivacyStatus = "needs_auth"
)

// PubliclyVisible reports whether the status permits automated downloads
func (p PrivacyStatus) PubliclyVisible() bool {
	return p == PrivacyPublic || p == PrivacyUnlisted
}

// Terminal reports whether the status ends the retry cycle for a download
func (p PrivacyStatus) Terminal() bool {
	switch p {
	case PrivacyPrivate, PrivacyUnavailable, PrivacyDeleted, PrivacyBlocked, PrivacyNeedsAuth:
		return true
	}
	return false
}

// PrivacyFromAvailability maps a provider availability string to a status
func PrivacyFromAvailability(availability string) PrivacyStatus {
	switch availability {
	case "public":
		return PrivacyPublic
	case "private":
		return PrivacyPrivate
	case "unlisted":
		return PrivacyUnlisted
	case "needs_auth", "premium_only", "subscriber_only":
		return PrivacyNeedsAuth
	case "":
		return PrivacyMissing
	}
	return PrivacyUnavailable
}

// ChannelStatus is the lifecycle state of a channel subscription
type ChannelStatus string

const (
	ChannelActive   ChannelStatus = "active"
	ChannelBanned   ChannelStatus = "banned"
	ChannelInactive ChannelStatus = "inactive"
)

// Tab is one of the three content categories of a channel
type Tab string

const (
	TabVideos      Tab = "videos"
	TabShorts      Tab = "shorts"
	TabLivestreams Tab = "livestreams"
)

// AllTabs lists the tabs in scan order
var AllTabs = []Tab{TabVideos, TabShorts, TabLivestreams}

// HighlightSource distinguishes user highlights from provider chapters
type HighlightSource string

const (
	HighlightSourceUser     HighlightSource = "user"
	HighlightSourceChapters HighlightSource = "chapters"
	HighlightSourcePOI      HighlightSource = "poi"
)

// PlaylistOrdering is the display/playback ordering of a playlist
type PlaylistOrdering string

const (
	OrderingDisplay      PlaylistOrdering = "display_order"
	OrderingUploadDate   PlaylistOrdering = "upload_date"
	OrderingInsertedDate PlaylistOrdering = "inserted"
)

// JSONMap is a free-form structured column stored as JSON text
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// StringSlice is a list column stored as JSON text
type StringSlice []string

// Value implements driver.Valuer
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported StringSlice source type %T", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}
