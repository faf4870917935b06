package models

import (
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm store and enforces entity invariants on save
type Database struct {
	db *gorm.DB

	// Balanced-cron templates applied when a channel enables indexing
	// without a crontab ("M H1 * * *|M H2 * * *" form).
	cronSelection string

	watchLaterMu sync.Mutex
	watchLater   map[uint64]uint64 // user id -> playlist id
}

// NewDatabase opens (or creates) the sqlite database and migrates the schema
func NewDatabase(path string, cronSelection string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Channel{},
		&Video{},
		&VideoHistory{},
		&VideoRelation{},
		&VideoBlocked{},
		&Playlist{},
		&PlaylistItem{},
		&ScanHistory{},
		&DownloadError{},
		&Highlight{},
		&DurationSkip{},
		&Comment{},
		&UserPlaybackHistory{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{
		db:            db,
		cronSelection: cronSelection,
		watchLater:    make(map[uint64]uint64),
	}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction. The Database handed
// to fn shares the invariant configuration of the receiver.
func (db *Database) Transaction(fn func(tx *Database) error) error {
	return db.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx, cronSelection: db.cronSelection, watchLater: db.watchLater})
	})
}
