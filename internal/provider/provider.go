// Package provider defines the narrow interface to the upstream extractor.
// The core never parses provider pages itself; implementations wrap an
// external extractor binary or library and satisfy Client.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Thumbnail is one provider-supplied thumbnail variant
type Thumbnail struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// ChannelMetadata is the result of a channel about-page lookup
type ChannelMetadata struct {
	ChannelID      string      `json:"channel_id"`
	Name           string      `json:"channel"`
	Description    string      `json:"description"`
	UploaderHandle string      `json:"uploader_id"`
	Thumbnails     []Thumbnail `json:"thumbnails"`
}

// VideoSummary is one entry of a flat channel or playlist listing
type VideoSummary struct {
	ProviderID   string `json:"id"`
	Title        string `json:"title"`
	Duration     int    `json:"duration"`
	UploadDate   string `json:"upload_date"` // YYYYMMDD, may be empty on flat listings
	Availability string `json:"availability"`
	ChannelID    string `json:"channel_id"`
	LiveStatus   string `json:"live_status"`
}

// IsPlaceholder reports whether the entry is a listing placeholder the
// indexer should skip (private or deleted markers included).
func (s VideoSummary) IsPlaceholder() bool {
	switch s.Title {
	case "", "[Private video]", "[Deleted video]":
		return true
	}
	return s.ProviderID == ""
}

// Listing is the result of a channel tab listing
type Listing struct {
	Entries []VideoSummary `json:"entries"`
}

// ChannelPlaylist is one entry of a channel playlists listing
type ChannelPlaylist struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PlaylistDetails is the result of a playlist lookup
type PlaylistDetails struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ChannelID   string         `json:"channel_id"`
	Entries     []VideoSummary `json:"entries"`
}

// Format is one provider-advertised media format
type Format struct {
	ID     string  `json:"format_id"`
	Note   string  `json:"format_note"`
	Ext    string  `json:"ext"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	VCodec string  `json:"vcodec"`
	ACodec string  `json:"acodec"`
}

// Chapter is a provider-supplied chapter marker
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// RequestedDownload describes where a download landed on disk
type RequestedDownload struct {
	Filepath string `json:"filepath"`
	Ext      string `json:"ext"`
}

// VideoMetadata is the full metadata of a single video
type VideoMetadata struct {
	ProviderID         string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	UploadDate         string              `json:"upload_date"` // YYYYMMDD
	Duration           int                 `json:"duration"`
	ViewCount          int64               `json:"view_count"`
	LikeCount          int64               `json:"like_count"`
	Width              int                 `json:"width"`
	Height             int                 `json:"height"`
	FPS                float64             `json:"fps"`
	FormatID           string              `json:"format_id"`
	Formats            []Format            `json:"formats"`
	Availability       string              `json:"availability"`
	ChannelID          string              `json:"channel_id"`
	Thumbnail          string              `json:"thumbnail"`
	LiveStatus         string              `json:"live_status"`
	Chapters           []Chapter           `json:"chapters"`
	RequestedDownloads []RequestedDownload `json:"requested_downloads"`
}

// InfoJSON serialises the metadata as the info-json blob persisted next to
// the media file.
func (m *VideoMetadata) InfoJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Comment is one provider comment; ParentID is empty for top-level comments
type Comment struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	AuthorID  string `json:"author_id"`
	Timestamp int64  `json:"timestamp"`
	LikeCount int    `json:"like_count"`
}

// CommentCaps bounds a comment fetch
type CommentCaps struct {
	TotalMax            int
	MaxParents          int
	MaxReplies          int
	MaxRepliesPerThread int
	Sorting             string
}

// Client is the narrow surface the core calls on the extractor
type Client interface {
	ChannelAbout(ctx context.Context, url string, opts Options) (*ChannelMetadata, error)
	ChannelListing(ctx context.Context, url string, limit int, opts Options) (*Listing, error)
	ChannelPlaylists(ctx context.Context, channelID string, opts Options) ([]ChannelPlaylist, error)
	PlaylistDetails(ctx context.Context, url string, flat bool, opts Options) (*PlaylistDetails, error)
	VideoDetails(ctx context.Context, url string, opts Options) (*VideoMetadata, error)
	// VideoDownload blocks until the media file exists at the path dictated
	// by opts.OutputTemplate. It returns the metadata and the effective
	// options used for the call.
	VideoDownload(ctx context.Context, url string, opts Options) (*VideoMetadata, Options, error)
	VideoComments(ctx context.Context, url string, all bool, caps CommentCaps, opts Options) ([]Comment, error)
}

// DownloadError carries the raw provider message for a failed call. The
// pipeline classifies the message into a privacy status.
type DownloadError struct {
	Msg string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("provider download error: %s", e.Msg)
}

// AsDownloadError unwraps err into a DownloadError if it is one
func AsDownloadError(err error) (*DownloadError, bool) {
	var de *DownloadError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// listingRetryClient wraps a Client so that channel listings get a second
// attempt with the proxy dropped.
type listingRetryClient struct {
	Client
}

// WithListingRetry decorates client so ChannelListing retries once without
// the proxy on failure.
func WithListingRetry(client Client) Client {
	return &listingRetryClient{Client: client}
}

func (c *listingRetryClient) ChannelListing(ctx context.Context, url string, limit int, opts Options) (*Listing, error) {
	listing, err := c.Client.ChannelListing(ctx, url, limit, opts)
	if err == nil {
		return listing, nil
	}
	opts.Proxy = ""
	return c.Client.ChannelListing(ctx, url, limit, opts)
}
