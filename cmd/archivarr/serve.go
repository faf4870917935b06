package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/archivarr/archivarr/internal/api"
	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/controllers"
	"github.com/archivarr/archivarr/internal/locks"
	"github.com/archivarr/archivarr/internal/models"
	"github.com/archivarr/archivarr/internal/notify"
	"github.com/archivarr/archivarr/internal/provider"
	"github.com/archivarr/archivarr/internal/scheduler"
	"github.com/archivarr/archivarr/internal/services/sponsorblock"
	"github.com/archivarr/archivarr/internal/storage"
	"github.com/archivarr/archivarr/internal/transcode"
	"github.com/archivarr/archivarr/internal/utils"
	"github.com/archivarr/archivarr/internal/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archiving daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Archivarr")
	if len(cfg.QualityFixes) > 0 {
		utils.SetQualityFixes(cfg.QualityFixes)
	}
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	db, err := models.NewDatabase(cfg.DatabaseFile, cfg.CronDefaultSelection)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	registry := locks.NewRegistry()
	runtime := workers.NewRuntime(registry, logger)
	emitter := notify.NewEmitter(logger)
	emitter.SubscribeAll(notify.LogSink(logger))

	proxies, err := provider.LookupProxyPolicy(cfg.ProxyPolicy, cfg.Proxies, cfg.ProxiesDefault)
	if err != nil {
		return fmt.Errorf("failed to resolve proxy policy: %w", err)
	}
	convert, err := transcode.LookupConvertPolicy(cfg.ConvertPolicy)
	if err != nil {
		return fmt.Errorf("failed to resolve convert policy: %w", err)
	}

	client := provider.WithListingRetry(provider.NewYTDLPClient(cfg.YTDLPBinary))
	transcoder := transcode.NewFFmpegTranscoder(cfg.FFmpegBinary)
	backend := storage.NewLocalBackend(cfg.MediaRoot, cfg.MediaHardlink)
	layout := storage.NewLayout(cfg)
	sb := sponsorblock.NewClient(cfg.SponsorblockAPIURL, logger)

	ctrl := controllers.New(cfg, db, client, registry, runtime, emitter,
		layout, backend, transcoder, convert, proxies, sb, logger)
	ctrl.Register()

	ticker := scheduler.NewTicker(cfg, db, runtime, logger)
	ticker.Register()
	logger.Info("Controllers initialized")

	runtime.Start(cfg.WorkersGeneral, cfg.WorkersTranscode)
	defer runtime.Stop()
	logger.Info("Worker runtime started")

	sched := scheduler.NewScheduler(cfg, ticker, runtime, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := api.NewServer(cfg, db, runtime, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Archivarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Archivarr stopped")
	return nil
}
