package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/utils"
)

// Layout renders blob paths from the configured schemas. Every substituted
// component passes through the safe-name transformer.
type Layout struct {
	cfg *config.Config
}

// NewLayout creates a path layout from config
func NewLayout(cfg *config.Config) *Layout {
	return &Layout{cfg: cfg}
}

func (l *Layout) render(schema string, video *models.Video, channel *models.Channel) string {
	replacements := map[string]string{
		"{title}":       utils.SafeName(video.Title),
		"{provider_id}": video.ProviderID,
	}
	if channel != nil {
		replacements["{channel_name}"] = utils.SafeName(channel.Name)
	}
	if video.UploadDate != nil {
		replacements["{upload_date}"] = video.UploadDate.Format("2006-01-02")
		replacements["{year}"] = video.UploadDate.Format("2006")
	} else {
		replacements["{upload_date}"] = ""
		replacements["{year}"] = fmt.Sprintf("%d", time.Now().Year())
	}

	out := schema
	for placeholder, value := range replacements {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return strings.TrimSpace(out)
}

// ChannelDirectory computes a channel's root directory within the store
func (l *Layout) ChannelDirectory(channel *models.Channel) string {
	schema := channel.DirectorySchema
	if schema == "" {
		schema = l.cfg.ChannelDirSchema
	}
	return strings.ReplaceAll(schema, "{channel_name}", utils.SafeName(channel.Name))
}

// VideoDirectory computes the directory a video's blobs live in. Playlist
// directory schemas override channel placement; orphan videos land under
// public/{year}.
func (l *Layout) VideoDirectory(video *models.Video, channel *models.Channel, playlist *models.Playlist) string {
	if playlist != nil && playlist.DirectorySchema != "" {
		return l.render(playlist.DirectorySchema, video, channel)
	}

	var base string
	if channel != nil {
		base = l.ChannelDirectory(channel)
		if l.cfg.StoreVideosByYearSeparation {
			base = path.Join(base, l.render("{year}", video, channel))
		}
	} else {
		base = path.Join("public", l.render("{year}", video, nil))
	}

	if l.cfg.StoreVideosInSeparateDirectories && channel != nil {
		return path.Join(base, l.render(l.cfg.VideoDirSchema, video, channel))
	}
	return base
}

// VideoBasename computes the extension-less filename for a video's blobs
func (l *Layout) VideoBasename(video *models.Video, channel *models.Channel) string {
	return l.render(l.cfg.VideoFileSchema, video, channel)
}

// MediaPath computes the relative blob path for the primary media file
func (l *Layout) MediaPath(video *models.Video, channel *models.Channel, playlist *models.Playlist, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return path.Join(l.VideoDirectory(video, channel, playlist),
		l.VideoBasename(video, channel)+"."+ext)
}

// InfoJSONPath computes the relative blob path for the metadata dump
func (l *Layout) InfoJSONPath(video *models.Video, channel *models.Channel, playlist *models.Playlist) string {
	return path.Join(l.VideoDirectory(video, channel, playlist),
		l.VideoBasename(video, channel)+".info.json")
}

// ThumbnailPath computes the relative blob path for the thumbnail
func (l *Layout) ThumbnailPath(video *models.Video, channel *models.Channel, playlist *models.Playlist) string {
	return path.Join(l.VideoDirectory(video, channel, playlist),
		l.VideoBasename(video, channel)+".jpg")
}

// AudioPath computes the relative blob path for the audio extract
func (l *Layout) AudioPath(video *models.Video, channel *models.Channel, playlist *models.Playlist) string {
	return path.Join(l.VideoDirectory(video, channel, playlist),
		l.VideoBasename(video, channel)+".mp3")
}

// ChannelYearCoverPath computes the cover-art path for a channel year
// directory, used by monthly maintenance.
func (l *Layout) ChannelYearCoverPath(channel *models.Channel, year int) string {
	return path.Join(l.ChannelDirectory(channel), fmt.Sprintf("%d", year), "cover.jpg")
}
