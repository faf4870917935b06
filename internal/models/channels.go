package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/archivarr/archivarr/internal/schedule"
	"github.com/archivarr/archivarr/internal/utils"
)

// SaveChannel persists a channel, enforcing the save-time invariants:
// slug and sort name derive from the display name, enabling indexing with
// a blank crontab generates a balanced daily cron, clearing all indexing
// flags clears the cron, enabling full archive clears full_archive_after,
// and changing the cutoff or re-enabling a tab resets the matching
// fully-indexed flag.
func (db *Database) SaveChannel(channel *Channel) error {
	channel.Slug = utils.Slugify(channel.Name)
	if channel.SortName == "" || channel.SortName == utils.SortName(channel.Name) {
		channel.SortName = utils.SortName(channel.Name)
	}

	var prior *Channel
	if channel.ID != 0 {
		existing, err := db.GetChannelByID(channel.ID)
		if err == nil {
			prior = existing
		}
	}

	if channel.IndexingEnabled() {
		if channel.ScannerCrontab == "" {
			existing, err := db.activeCrontabs()
			if err != nil {
				return fmt.Errorf("failed to load active crontabs: %w", err)
			}
			channel.ScannerCrontab = schedule.BalancedDailyCron(
				schedule.SplitSelection(db.cronSelection), existing)
		}
	} else {
		channel.ScannerCrontab = ""
	}

	if channel.FullArchive {
		channel.FullArchiveAfter = nil
	}

	if prior != nil {
		if !timesEqual(prior.FullArchiveCutoff, channel.FullArchiveCutoff) {
			channel.FullyIndexedVideos = false
			channel.FullyIndexedShorts = false
			channel.FullyIndexedLivestreams = false
		}
		for _, tab := range AllTabs {
			if channel.IndexEnabled(tab) && !prior.IndexEnabled(tab) {
				channel.SetFullyIndexed(tab, false)
			}
		}
	}

	channel.UpdatedAt = time.Now()
	return db.db.Save(channel).Error
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (db *Database) activeCrontabs() ([]string, error) {
	var crontabs []string
	err := db.db.Model(&Channel{}).
		Where("status = ? AND scanner_crontab <> ''", ChannelActive).
		Pluck("scanner_crontab", &crontabs).Error
	return crontabs, err
}

// GetChannelByID retrieves a channel by local id
func (db *Database) GetChannelByID(id uint64) (*Channel, error) {
	var channel Channel
	if err := db.db.First(&channel, id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

// GetChannelByProviderID retrieves a channel by provider id
func (db *Database) GetChannelByProviderID(providerID string) (*Channel, error) {
	var channel Channel
	if err := db.db.Where("provider_id = ?", providerID).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

// ChannelAlreadyExists reports whether a channel with the given provider id
// or uploader handle exists, case-insensitively.
func (db *Database) ChannelAlreadyExists(providerID string) (bool, error) {
	var count int64
	err := db.db.Model(&Channel{}).
		Where("LOWER(provider_id) = ? OR LOWER(uploader_handle) = ?",
			strings.ToLower(providerID), strings.ToLower(providerID)).
		Count(&count).Error
	return count > 0, err
}

// ActiveChannels retrieves every channel whose scheduler may fire
func (db *Database) ActiveChannels() ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where("status = ?", ChannelActive).Order("id").Find(&channels).Error
	return channels, err
}

// IndexingEnabledChannels retrieves active channels with any indexing flag set
func (db *Database) IndexingEnabledChannels() ([]*Channel, error) {
	var channels []*Channel
	err := db.db.
		Where("status = ? AND (index_videos OR index_shorts OR index_livestreams)", ChannelActive).
		Order("id").Find(&channels).Error
	return channels, err
}

// ActivelyScanningChannels retrieves indexing-enabled channels that the
// ticker drives: those with a crontab, excluding full-archive channels
// (the archiver owns their backlog).
func (db *Database) ActivelyScanningChannels() ([]*Channel, error) {
	var channels []*Channel
	err := db.db.
		Where("status = ? AND (index_videos OR index_shorts OR index_livestreams)", ChannelActive).
		Where("scanner_crontab <> '' AND NOT full_archive").
		Order("id").Find(&channels).Error
	return channels, err
}

// FullArchiveChannels retrieves active channels in full-archive mode
func (db *Database) FullArchiveChannels() ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where("status = ? AND full_archive", ChannelActive).Order("id").Find(&channels).Error
	return channels, err
}

// ChannelsWithFullArchiveAfter retrieves channels whose deferred
// full-archive trigger has passed.
func (db *Database) ChannelsWithFullArchiveAfter(now time.Time) ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where("full_archive_after IS NOT NULL AND full_archive_after <= ?", now).
		Find(&channels).Error
	return channels, err
}

// ChannelsWithFullIndexAfter retrieves channels whose deferred full-index
// trigger has passed.
func (db *Database) ChannelsWithFullIndexAfter(now time.Time) ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where("full_index_after IS NOT NULL AND full_index_after <= ?", now).
		Find(&channels).Error
	return channels, err
}

// ChannelsWithScanAfter retrieves channels whose one-shot scan trigger has
// passed.
func (db *Database) ChannelsWithScanAfter(now time.Time) ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where("scan_after IS NOT NULL AND scan_after <= ?", now).Find(&channels).Error
	return channels, err
}

// ChannelsWithTabSwapsDue retrieves channels with any pending swap_* toggle
func (db *Database) ChannelsWithTabSwapsDue(now time.Time) ([]*Channel, error) {
	var channels []*Channel
	err := db.db.Where(
		"(swap_index_videos_after IS NOT NULL AND swap_index_videos_after <= ?)"+
			" OR (swap_index_shorts_after IS NOT NULL AND swap_index_shorts_after <= ?)"+
			" OR (swap_index_livestreams_after IS NOT NULL AND swap_index_livestreams_after <= ?)",
		now, now, now).Find(&channels).Error
	return channels, err
}

// DeleteChannel removes a channel and optionally its videos. Owned scan
// history always goes with it.
func (db *Database) DeleteChannel(channel *Channel, deleteVideos bool) error {
	return db.Transaction(func(tx *Database) error {
		var videos []*Video
		if err := tx.db.Where("channel_id = ?", channel.ID).Find(&videos).Error; err != nil {
			return err
		}
		for _, video := range videos {
			if deleteVideos {
				if err := tx.DeleteVideo(video); err != nil {
					return err
				}
			} else {
				video.ChannelID = nil
				if err := tx.db.Model(video).Update("channel_id", nil).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.db.Where("channel_id = ?", channel.ID).Delete(&ScanHistory{}).Error; err != nil {
			return err
		}
		return tx.db.Delete(channel).Error
	})
}

// ErrChannelNotFound wraps gorm's not-found for callers that should not
// depend on gorm.
var ErrChannelNotFound = errors.New("channel not found")

// IsNotFound reports whether err is a record-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrChannelNotFound)
}
