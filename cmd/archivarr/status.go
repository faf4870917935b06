package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print archive counts and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return status(cmd)
	},
}

func status(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := models.NewDatabase(cfg.DatabaseFile, cfg.CronDefaultSelection)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	channels, err := db.ActiveChannels()
	if err != nil {
		return err
	}
	playlists, err := db.VisiblePlaylists()
	if err != nil {
		return err
	}
	videos, err := db.AllVideos()
	if err != nil {
		return err
	}

	archived := 0
	for _, video := range videos {
		if video.File != "" {
			archived++
		}
	}

	cmd.Printf("Channels:  %d\n", len(channels))
	cmd.Printf("Playlists: %d\n", len(playlists))
	cmd.Printf("Videos:    %d (%d archived)\n", len(videos), archived)
	return nil
}
