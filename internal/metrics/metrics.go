// Package metrics exposes prometheus counters for the archiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DownloadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_downloads_started_total",
		Help: "Number of video downloads dispatched.",
	})

	DownloadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_downloads_succeeded_total",
		Help: "Number of video downloads that completed and published.",
	})

	DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_downloads_failed_total",
		Help: "Number of video downloads that exhausted their retries.",
	})

	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_scheduler_ticks_total",
		Help: "Number of crontab evaluation ticks processed.",
	})

	ScansDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivarr_scans_dispatched_total",
		Help: "Number of indexing scans dispatched, by kind.",
	}, []string{"kind"})

	QuotaHalts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_quota_halts_total",
		Help: "Number of times dispatch stopped because a quota was exhausted.",
	})

	PrivacyChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivarr_privacy_checks_total",
		Help: "Number of privacy status probes performed.",
	})

	TranscodesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivarr_transcodes_completed_total",
		Help: "Number of completed transcodes, by target.",
	}, []string{"target"})
)
