package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "archivarr",
	Short: "Channel and playlist archiving daemon",
	Long: `Archivarr indexes subscribed channels and playlists on their
crontabs, downloads new videos through yt-dlp under a daily quota, and
keeps the archive healthy with daily and monthly maintenance passes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}
