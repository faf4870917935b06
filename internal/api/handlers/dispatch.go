package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/controllers"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/workers"
)

// DispatchHandler submits background tasks on behalf of API callers
type DispatchHandler struct {
	db      *models.Database
	runtime *workers.Runtime
	logger  *logrus.Logger
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(db *models.Database, runtime *workers.Runtime, logger *logrus.Logger) *DispatchHandler {
	return &DispatchHandler{db: db, runtime: runtime, logger: logger}
}

type dispatchRequest struct {
	ChannelID  uint64 `json:"channel_id"`
	PlaylistID uint64 `json:"playlist_id"`
	VideoID    uint64 `json:"video_id"`
	UserID     uint64 `json:"user_id"`
	Tab        string `json:"tab"`
	Quality    *int   `json:"quality"`
}

func (h *DispatchHandler) decode(w http.ResponseWriter, r *http.Request) (*dispatchRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (h *DispatchHandler) submitted(w http.ResponseWriter, task, id string) {
	h.logger.WithFields(logrus.Fields{"task": task, "task_id": id}).Info("Task submitted via API")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "submitted", "task": task, "task_id": id})
}

// ScanChannel enqueues a channel tab scan. An empty tab scans every
// enabled tab of the channel.
func (h *DispatchHandler) ScanChannel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	channel, err := h.db.GetChannelByID(req.ChannelID)
	if err != nil {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}

	tabs := []models.Tab{models.Tab(req.Tab)}
	if req.Tab == "" {
		tabs = tabs[:0]
		for _, tab := range models.AllTabs {
			if channel.IndexEnabled(tab) {
				tabs = append(tabs, tab)
			}
		}
	}

	var last string
	for _, tab := range tabs {
		id, err := h.runtime.Submit(controllers.TaskScanChannelTab, workers.Kwargs{
			"channel_id": channel.ID,
			"tab":        string(tab),
		})
		if err != nil {
			http.Error(w, "Failed to submit task", http.StatusInternalServerError)
			return
		}
		last = id
	}
	h.submitted(w, controllers.TaskScanChannelTab, last)
}

// ScanPlaylist enqueues a playlist scan
func (h *DispatchHandler) ScanPlaylist(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if _, err := h.db.GetPlaylistByID(req.PlaylistID); err != nil {
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}
	id, err := h.runtime.Submit(controllers.TaskScanPlaylist, workers.Kwargs{"playlist_id": req.PlaylistID})
	if err != nil {
		http.Error(w, "Failed to submit task", http.StatusInternalServerError)
		return
	}
	h.submitted(w, controllers.TaskScanPlaylist, id)
}

// DownloadVideo enqueues a download for a single video
func (h *DispatchHandler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if _, err := h.db.GetVideoByID(req.VideoID); err != nil {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	kwargs := workers.Kwargs{
		"video_id":    req.VideoID,
		"task_source": "api",
	}
	if req.Quality != nil {
		kwargs["quality"] = *req.Quality
	}
	id, err := h.runtime.Submit(controllers.TaskDownloadVideo, kwargs)
	if err != nil {
		http.Error(w, "Failed to submit task", http.StatusInternalServerError)
		return
	}
	h.submitted(w, controllers.TaskDownloadVideo, id)
}

// AddToWatchLater puts a video on the caller's watch-later playlist,
// creating the playlist on first use.
func (h *DispatchHandler) AddToWatchLater(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if _, err := h.db.GetVideoByID(req.VideoID); err != nil {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	playlist, err := h.db.GetUserWatchLater(req.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve watch-later playlist")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if _, _, err := h.db.AddVideoToPlaylist(playlist.ID, req.VideoID, true); err != nil {
		h.logger.WithError(err).Error("Failed to add video to watch-later playlist")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "added", "playlist_id": playlist.ID})
}

// TaskResult reports the recorded state of a submitted task
func (h *DispatchHandler) TaskResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, ok := h.runtime.GetResult(r.URL.Query().Get("task_id"))
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"task_id": result.ID,
		"task":    result.Task,
		"state":   string(result.State),
		"meta":    result.Meta,
	})
}

// RunArchiver triggers an out-of-band automated archiver pass
func (h *DispatchHandler) RunArchiver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := h.runtime.Submit(controllers.TaskAutomatedArchiver, workers.Kwargs{})
	if err != nil {
		http.Error(w, "Failed to submit task", http.StatusInternalServerError)
		return
	}
	h.submitted(w, controllers.TaskAutomatedArchiver, id)
}
