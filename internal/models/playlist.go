package models

import "time"

// Playlist either mirrors an upstream playlist (ProviderObjectID non-empty)
// or is user-curated (empty; membership managed manually).
type Playlist struct {
	ID               uint64 `gorm:"primaryKey"`
	ProviderObjectID string `gorm:"index"`
	// Previous provider ids after upstream renames; AlreadyExists matches
	// against these too.
	PreviousProviderIDs StringSlice `gorm:"type:text"`

	Title       string
	Description string
	Crontab     string

	ChannelID *uint64 `gorm:"index"`
	Channel   *Channel

	SyncDeletions bool
	TitleSkips    string // Newline-separated; matching items get download disabled
	TitleDisables string

	Quality  int
	Ordering PlaylistOrdering `gorm:"default:display_order"`

	Hidden                    bool
	RestrictToAssignedChannel bool
	RemoveOnWatched           bool

	// Auto-add rules: newline-separated title substrings evaluated by the
	// indexer against every new video.
	VideoIndexingAddByTitle                string
	VideoIndexingAddByTitleLimitToChannels StringSlice `gorm:"type:text"`

	NotFoundFailures int

	DirectorySchema string // Overrides channel placement for member videos

	ConvertToAudio      bool
	DownloadAllComments bool

	UserID     *uint64 `gorm:"index"` // Owner for user-curated lists
	WatchLater bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mirrored reports whether the playlist tracks an upstream playlist
func (p *Playlist) Mirrored() bool {
	return p.ProviderObjectID != ""
}

// TitleSkipList returns the skip list split into trimmed lines
func (p *Playlist) TitleSkipList() []string {
	return splitLines(p.TitleSkips)
}

// AutoAddRules returns the title auto-add rules split into trimmed lines
func (p *Playlist) AutoAddRules() []string {
	return splitLines(p.VideoIndexingAddByTitle)
}

// ChannelLimitAllows reports whether the auto-add channel-limit set permits
// the given channel. An empty set permits everything.
func (p *Playlist) ChannelLimitAllows(channelProviderID string) bool {
	if len(p.VideoIndexingAddByTitleLimitToChannels) == 0 {
		return true
	}
	for _, id := range p.VideoIndexingAddByTitleLimitToChannels {
		if id == channelProviderID {
			return true
		}
	}
	return false
}

// PlaylistItem is the playlist-membership edge carrying per-item policy
type PlaylistItem struct {
	ID         uint64 `gorm:"primaryKey"`
	PlaylistID uint64 `gorm:"index;uniqueIndex:idx_playlist_video"`
	VideoID    uint64 `gorm:"index;uniqueIndex:idx_playlist_video"`
	Playlist   *Playlist
	Video      *Video

	DisplayOrder                  int
	ManuallyAdded                 bool
	MissingFromPlaylistOnProvider bool
	Download                      bool `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
