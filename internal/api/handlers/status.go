package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/models"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{db: db, logger: logger}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalVideos       int            `json:"total_videos"`
	Archived          int            `json:"archived"`
	Pending           int            `json:"pending"`
	MarkedForDeletion int            `json:"marked_for_deletion"`
	Channels          int            `json:"channels"`
	Playlists         int            `json:"playlists"`
	VideosByPrivacy   map[string]int `json:"videos_by_privacy"`
	VideosByTab       map[string]int `json:"videos_by_tab"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	videos, err := h.db.AllVideos()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get videos")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	channels, err := h.db.ActiveChannels()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get channels")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	playlists, err := h.db.VisiblePlaylists()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get playlists")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		TotalVideos:     len(videos),
		Channels:        len(channels),
		Playlists:       len(playlists),
		VideosByPrivacy: make(map[string]int),
		VideosByTab:     make(map[string]int),
	}

	for _, video := range videos {
		if video.File != "" {
			response.Archived++
		} else {
			response.Pending++
		}
		if video.MarkForDeletion {
			response.MarkedForDeletion++
		}
		response.VideosByPrivacy[string(video.PrivacyStatus)]++
		response.VideosByTab[string(video.Tab())]++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
