// Package controllers implements the orchestration logic: indexing scans,
// the per-video download pipeline, the automated archiver, and the
// maintenance loops. Every long-running operation is registered as a named
// task on the worker runtime.
package controllers

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/locks"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/services/sponsorblock"
	"github.com/archivarr/archivarr/internal/storage"
	"github.com/archivarr/archivarr/internal/transcode"
	"github.com/archivarr/archivarr/internal/workers"
)

// Task names registered on the worker runtime
const (
	TaskScanChannelTab         = "indexing.scan_channel_tab"
	TaskFullIndexChannel       = "indexing.full_index_channel"
	TaskScanPlaylist           = "indexing.scan_playlist"
	TaskMirrorChannelPlaylists = "indexing.mirror_channel_playlists"
	TaskDownloadVideo          = "downloads.download_provider_video"
	TaskPostprocessVideo       = "downloads.postprocess_video"
	TaskVideoDownloaded        = "downloads.video_downloaded_successfully"
	TaskDownloadThumbnail      = "downloads.download_thumbnail"
	TaskDownloadComments       = "comments.download_comments"
	TaskLoadSponsorblock       = "sponsorblock.load_segments"
	TaskAutomatedArchiver      = "maintenance.automated_archiver"
	TaskDailyMaintenance       = "maintenance.daily"
	TaskMonthlyMaintenance     = "maintenance.monthly"
	TaskPrivacyRevalidation    = "maintenance.update_video_statuses_and_details"
	TaskUpdateVideoDetails     = "videos.update_video_details"
	TaskRenameVideoFiles       = "videos.rename_video_files"
)

// Controller wires the orchestration tasks to their collaborators
type Controller struct {
	cfg        *config.Config
	db         *models.Database
	provider   provider.Client
	locks      *locks.Registry
	runtime    *workers.Runtime
	emitter    *notify.Emitter
	layout     *storage.Layout
	backend    storage.Backend
	transcoder transcode.Transcoder
	convert    transcode.ConvertPolicy
	proxies    provider.ProxyPolicy
	sb         *sponsorblock.Client
	limiter    *rate.Limiter
	rest       *resty.Client
	logger     *logrus.Logger
}

// New creates a controller. The provider client should already carry the
// listing-retry decoration.
func New(
	cfg *config.Config,
	db *models.Database,
	client provider.Client,
	registry *locks.Registry,
	runtime *workers.Runtime,
	emitter *notify.Emitter,
	layout *storage.Layout,
	backend storage.Backend,
	transcoder transcode.Transcoder,
	convert transcode.ConvertPolicy,
	proxies provider.ProxyPolicy,
	sb *sponsorblock.Client,
	logger *logrus.Logger,
) *Controller {
	var limiter *rate.Limiter
	if cfg.DownloadSpeedRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DownloadSpeedRateLimit), cfg.DownloadSpeedRateLimit)
	}
	return &Controller{
		cfg:        cfg,
		db:         db,
		provider:   client,
		locks:      registry,
		runtime:    runtime,
		emitter:    emitter,
		layout:     layout,
		backend:    backend,
		transcoder: transcoder,
		convert:    convert,
		proxies:    proxies,
		sb:         sb,
		limiter:    limiter,
		rest:       resty.New().SetTimeout(time.Minute),
		logger:     logger,
	}
}

// Register registers every controller task on the runtime
func (c *Controller) Register() {
	c.runtime.Register(TaskScanChannelTab, c.scanChannelTabTask,
		workers.WithNamedLock(scanChannelKey, locks.DefaultTTL, workers.ContentionRetry, 30*time.Second))
	c.runtime.Register(TaskFullIndexChannel, c.fullIndexChannelTask)
	c.runtime.Register(TaskScanPlaylist, c.scanPlaylistTask,
		workers.WithNamedLock(scanPlaylistKey, locks.DefaultTTL, workers.ContentionRetry, 30*time.Second))
	c.runtime.Register(TaskMirrorChannelPlaylists, c.mirrorChannelPlaylistsTask)

	c.runtime.Register(TaskDownloadVideo, c.downloadVideoTask,
		workers.WithMaxRetries(3), workers.WithRetryDelay(time.Minute))
	c.runtime.Register(TaskPostprocessVideo, c.postprocessVideoTask,
		workers.WithQueue(workers.QueueTranscode))
	c.runtime.Register(TaskVideoDownloaded, c.videoDownloadedTask)
	c.runtime.Register(TaskDownloadThumbnail, c.downloadThumbnailTask)
	c.runtime.Register(TaskDownloadComments, c.downloadCommentsTask,
		workers.WithMaxRetries(3), workers.WithRetryDelay(time.Minute))
	c.runtime.Register(TaskLoadSponsorblock, c.loadSponsorblockTask,
		workers.WithMaxRetries(6))

	c.runtime.Register(TaskAutomatedArchiver, c.automatedArchiverTask,
		workers.WithNamedLock(singletonKey(TaskAutomatedArchiver), locks.DefaultTTL, workers.ContentionIgnore, 0))
	c.runtime.Register(TaskDailyMaintenance, c.dailyMaintenanceTask,
		workers.WithNamedLock(singletonKey(TaskDailyMaintenance), 2*time.Hour, workers.ContentionIgnore, 0))
	c.runtime.Register(TaskMonthlyMaintenance, c.monthlyMaintenanceTask,
		workers.WithNamedLock(singletonKey(TaskMonthlyMaintenance), 4*time.Hour, workers.ContentionIgnore, 0))
	c.runtime.Register(TaskPrivacyRevalidation, c.privacyRevalidationTask,
		workers.WithNamedLock(singletonKey(TaskPrivacyRevalidation), locks.DefaultTTL, workers.ContentionIgnore, 0))
	c.runtime.Register(TaskUpdateVideoDetails, c.updateVideoDetailsTask,
		workers.WithMaxRetries(4))
	c.runtime.Register(TaskRenameVideoFiles, c.renameVideoFilesTask)
}

func scanChannelKey(kwargs workers.Kwargs) string {
	return "scan:channel:" + kwargString(kwargs, "channel_id") + ":" + kwargString(kwargs, "tab")
}

func scanPlaylistKey(kwargs workers.Kwargs) string {
	return "scan:playlist:" + kwargString(kwargs, "playlist_id")
}

func singletonKey(task string) func(workers.Kwargs) string {
	return func(workers.Kwargs) string { return "task:" + task }
}
