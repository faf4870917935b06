package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// playlistNotFoundDisableThreshold is the consecutive not-found count at
// which scanning gets disabled.
const playlistNotFoundDisableThreshold = 5

// SavePlaylist persists a playlist, enforcing: user-curated playlists never
// carry a cron, and hidden playlists lose both their cron and their
// auto-add rules.
func (db *Database) SavePlaylist(playlist *Playlist) error {
	if !playlist.Mirrored() {
		playlist.Crontab = ""
	}
	if playlist.Hidden {
		playlist.Crontab = ""
		playlist.VideoIndexingAddByTitle = ""
	}
	playlist.UpdatedAt = time.Now()
	return db.db.Save(playlist).Error
}

// GetPlaylistByID retrieves a playlist by local id
func (db *Database) GetPlaylistByID(id uint64) (*Playlist, error) {
	var playlist Playlist
	if err := db.db.First(&playlist, id).Error; err != nil {
		return nil, err
	}
	return &playlist, nil
}

// GetPlaylistByProviderID retrieves a playlist by its provider object id
func (db *Database) GetPlaylistByProviderID(providerID string) (*Playlist, error) {
	var playlist Playlist
	if err := db.db.Where("provider_object_id = ?", providerID).First(&playlist).Error; err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistAlreadyExists reports whether a playlist mirrors the provider id,
// matching current and historical (renamed) ids.
func (db *Database) PlaylistAlreadyExists(providerID string) (bool, error) {
	var count int64
	err := db.db.Model(&Playlist{}).
		Where("provider_object_id = ? OR previous_provider_ids LIKE ?",
			providerID, "%\""+providerID+"\"%").
		Count(&count).Error
	return count > 0, err
}

// ScannablePlaylists retrieves playlists with a cron, ordered by insertion
func (db *Database) ScannablePlaylists() ([]*Playlist, error) {
	var playlists []*Playlist
	err := db.db.Where("crontab <> ''").Order("created_at").Find(&playlists).Error
	return playlists, err
}

// VisiblePlaylists retrieves non-hidden playlists ordered by insertion
func (db *Database) VisiblePlaylists() ([]*Playlist, error) {
	var playlists []*Playlist
	err := db.db.Where("NOT hidden").Order("created_at").Find(&playlists).Error
	return playlists, err
}

// RemoveOnWatchedPlaylists retrieves playlists that prune watched items,
// hidden ones included.
func (db *Database) RemoveOnWatchedPlaylists() ([]*Playlist, error) {
	var playlists []*Playlist
	err := db.db.Where("remove_on_watched").Find(&playlists).Error
	return playlists, err
}

// PlaylistsWithAutoAddRules retrieves playlists carrying title auto-add rules
func (db *Database) PlaylistsWithAutoAddRules() ([]*Playlist, error) {
	var playlists []*Playlist
	err := db.db.Where("video_indexing_add_by_title <> ''").Find(&playlists).Error
	return playlists, err
}

// GetUserWatchLater returns the user's watch-later playlist, creating it
// lazily on first use. The id is memoised per user.
func (db *Database) GetUserWatchLater(userID uint64) (*Playlist, error) {
	db.watchLaterMu.Lock()
	id, ok := db.watchLater[userID]
	db.watchLaterMu.Unlock()
	if ok {
		return db.GetPlaylistByID(id)
	}

	var playlist Playlist
	err := db.db.Where("user_id = ? AND watch_later", userID).First(&playlist).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		playlist = Playlist{
			Title:           "Watch Later",
			UserID:          &userID,
			WatchLater:      true,
			Hidden:          true,
			RemoveOnWatched: true,
		}
		if err := db.SavePlaylist(&playlist); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	db.watchLaterMu.Lock()
	db.watchLater[userID] = playlist.ID
	db.watchLaterMu.Unlock()
	return &playlist, nil
}

// RecordPlaylistNotFound bumps the playlist's consecutive failure counter
// atomically and reports whether scanning was disabled by this failure.
func (db *Database) RecordPlaylistNotFound(playlist *Playlist) (bool, error) {
	if err := db.db.Model(playlist).
		Update("not_found_failures", gorm.Expr("not_found_failures + ?", 1)).Error; err != nil {
		return false, err
	}
	refreshed, err := db.GetPlaylistByID(playlist.ID)
	if err != nil {
		return false, err
	}
	playlist.NotFoundFailures = refreshed.NotFoundFailures
	if refreshed.NotFoundFailures >= playlistNotFoundDisableThreshold && refreshed.Crontab != "" {
		playlist.Crontab = ""
		if err := db.db.Model(playlist).Update("crontab", "").Error; err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// ResetPlaylistNotFound clears the consecutive failure counter
func (db *Database) ResetPlaylistNotFound(playlist *Playlist) error {
	playlist.NotFoundFailures = 0
	return db.db.Model(playlist).Update("not_found_failures", 0).Error
}

// GetPlaylistItem retrieves the membership edge for (playlist, video)
func (db *Database) GetPlaylistItem(playlistID, videoID uint64) (*PlaylistItem, error) {
	var item PlaylistItem
	err := db.db.Where("playlist_id = ? AND video_id = ?", playlistID, videoID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AddVideoToPlaylist inserts the membership edge if absent. Returns the
// item and whether it was newly created.
func (db *Database) AddVideoToPlaylist(playlistID, videoID uint64, manuallyAdded bool) (*PlaylistItem, bool, error) {
	if item, err := db.GetPlaylistItem(playlistID, videoID); err == nil {
		return item, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var maxOrder *int
	if err := db.db.Model(&PlaylistItem{}).Where("playlist_id = ?", playlistID).
		Select("MAX(display_order)").Scan(&maxOrder).Error; err != nil {
		return nil, false, err
	}
	order := 1
	if maxOrder != nil {
		order = *maxOrder + 1
	}

	item := &PlaylistItem{
		PlaylistID:    playlistID,
		VideoID:       videoID,
		DisplayOrder:  order,
		ManuallyAdded: manuallyAdded,
		Download:      true,
	}
	if err := db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(item).Error; err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// SavePlaylistItem persists edge changes
func (db *Database) SavePlaylistItem(item *PlaylistItem) error {
	item.UpdatedAt = time.Now()
	return db.db.Save(item).Error
}

// RemovePlaylistItem deletes the membership edge
func (db *Database) RemovePlaylistItem(item *PlaylistItem) error {
	return db.db.Delete(item).Error
}

// PlaylistItems lists a playlist's edges in display order
func (db *Database) PlaylistItems(playlistID uint64) ([]*PlaylistItem, error) {
	var items []*PlaylistItem
	err := db.db.Where("playlist_id = ?", playlistID).
		Order("display_order").Find(&items).Error
	return items, err
}

// PendingPlaylistItems lists a playlist's edges whose video still needs
// downloading: no blob, publicly visible, and the edge's download flag on.
func (db *Database) PendingPlaylistItems(playlistID uint64) ([]*PlaylistItem, error) {
	var items []*PlaylistItem
	err := db.db.Preload("Video").
		Joins("JOIN videos ON videos.id = playlist_items.video_id").
		Where("playlist_items.playlist_id = ? AND playlist_items.download", playlistID).
		Where("videos.file = '' AND videos.privacy_status IN ?",
			[]PrivacyStatus{PrivacyPublic, PrivacyUnlisted}).
		Order("playlist_items.display_order").
		Find(&items).Error
	return items, err
}
