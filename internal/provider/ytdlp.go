package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// YTDLPClient shells out to the yt-dlp binary and parses its JSON output
type YTDLPClient struct {
	binary string
}

// NewYTDLPClient creates a client using the given binary (empty means
// "yt-dlp" on PATH).
func NewYTDLPClient(binary string) *YTDLPClient {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPClient{binary: binary}
}

func (c *YTDLPClient) baseArgs(opts Options) []string {
	args := []string{"--no-warnings", "--ignore-no-formats-error"}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	if opts.CacheDir != "" {
		args = append(args, "--cache-dir", opts.CacheDir)
	}
	if opts.CookieFile != "" {
		args = append(args, "--cookies", opts.CookieFile)
	}
	if opts.RateLimit != nil {
		args = append(args, "--limit-rate", strconv.Itoa(int(opts.RateLimit.Limit())))
	}
	return args
}

// run executes the binary and returns stdout; stderr is folded into the
// error so the pipeline can classify the provider message.
func (c *YTDLPClient) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &DownloadError{Msg: msg}
	}
	return stdout.Bytes(), nil
}

// ChannelAbout implements Client
func (c *YTDLPClient) ChannelAbout(ctx context.Context, url string, opts Options) (*ChannelMetadata, error) {
	args := append(c.baseArgs(opts), "-J", "--playlist-items", "0", url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var meta ChannelMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("decoding channel metadata: %w", err)
	}
	return &meta, nil
}

// ChannelListing implements Client. Listings are flat: entries carry only
// summary fields, full metadata is fetched per video.
func (c *YTDLPClient) ChannelListing(ctx context.Context, url string, limit int, opts Options) (*Listing, error) {
	args := append(c.baseArgs(opts), "-J", "--flat-playlist")
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(args, url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var listing Listing
	if err := json.Unmarshal(out, &listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	return &listing, nil
}

// ChannelPlaylists implements Client
func (c *YTDLPClient) ChannelPlaylists(ctx context.Context, channelID string, opts Options) ([]ChannelPlaylist, error) {
	url := ChannelPlaylistsURL(channelID)
	args := append(c.baseArgs(opts), "-J", "--flat-playlist", url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var listing struct {
		Entries []ChannelPlaylist `json:"entries"`
	}
	if err := json.Unmarshal(out, &listing); err != nil {
		return nil, fmt.Errorf("decoding playlists listing: %w", err)
	}
	return listing.Entries, nil
}

// PlaylistDetails implements Client
func (c *YTDLPClient) PlaylistDetails(ctx context.Context, url string, flat bool, opts Options) (*PlaylistDetails, error) {
	args := append(c.baseArgs(opts), "-J")
	if flat {
		args = append(args, "--flat-playlist")
	}
	args = append(args, url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var details PlaylistDetails
	if err := json.Unmarshal(out, &details); err != nil {
		return nil, fmt.Errorf("decoding playlist: %w", err)
	}
	return &details, nil
}

// VideoDetails implements Client
func (c *YTDLPClient) VideoDetails(ctx context.Context, url string, opts Options) (*VideoMetadata, error) {
	args := append(c.baseArgs(opts), "-J", "--no-download", url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var meta VideoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("decoding video metadata: %w", err)
	}
	return &meta, nil
}

// VideoDownload implements Client
func (c *YTDLPClient) VideoDownload(ctx context.Context, url string, opts Options) (*VideoMetadata, Options, error) {
	args := append(c.baseArgs(opts), "-J", "--no-simulate")
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if opts.CheckFormats != "" {
		args = append(args, "--check-formats")
	}
	args = append(args, url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, opts, err
	}
	var meta VideoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, opts, fmt.Errorf("decoding download metadata: %w", err)
	}
	return &meta, opts, nil
}

// VideoComments implements Client
func (c *YTDLPClient) VideoComments(ctx context.Context, url string, all bool, caps CommentCaps, opts Options) ([]Comment, error) {
	args := append(c.baseArgs(opts), "-J", "--no-download", "--write-comments")
	if !all {
		extractor := fmt.Sprintf("youtube:comment_sort=%s;max_comments=%d,%d,%d,%d",
			caps.Sorting, caps.TotalMax, caps.MaxParents, caps.MaxReplies, caps.MaxRepliesPerThread)
		args = append(args, "--extractor-args", extractor)
	}
	args = append(args, url)
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var meta struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("decoding comments: %w", err)
	}
	return meta.Comments, nil
}
