package models

import (
	"errors"

	"gorm.io/gorm"
)

// CreateScanHistory appends a scan-history row for a channel or playlist
func (db *Database) CreateScanHistory(channelID, playlistID *uint64) (*ScanHistory, error) {
	row := ScanHistory{ChannelID: channelID, PlaylistID: playlistID}
	if err := db.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestScanHistory returns the most recent scan-history row for a channel,
// or nil when none exists.
func (db *Database) LatestScanHistory(channelID uint64) (*ScanHistory, error) {
	var row ScanHistory
	err := db.db.Where("channel_id = ?", channelID).
		Order("created_at DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// IncrementScanHistoryDownload bumps the tab's downloaded counter with an
// atomic per-field increment; a concurrent indexer cannot lose the update.
func (db *Database) IncrementScanHistoryDownload(scanID uint64, tab Tab) error {
	column := "videos_downloaded"
	switch tab {
	case TabShorts:
		column = "shorts_downloaded"
	case TabLivestreams:
		column = "livestreams_downloaded"
	}
	return db.db.Model(&ScanHistory{}).Where("id = ?", scanID).
		Update(column, gorm.Expr(column+" + ?", 1)).Error
}
