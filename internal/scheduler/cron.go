package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/config"
	"github.com/archivarr/archivarr/internal/controllers"
	"github.com/archivarr/archivarr/internal/workers"
)

// Scheduler manages the recurring background jobs
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	ticker  *Ticker
	runtime *workers.Runtime
	logger  *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.Config, ticker *Ticker, runtime *workers.Runtime, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		ticker:  ticker,
		runtime: runtime,
		logger:  logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Every few minutes: evaluate subscription crontabs
	tickExpr := fmt.Sprintf("*/%d * * * *", s.cfg.CrontabCheckInterval)
	if _, err := s.cron.AddFunc(tickExpr, func() {
		if err := s.ticker.Submit(false); err != nil {
			s.logger.WithError(err).Error("Failed to submit crontab check")
		}
	}); err != nil {
		return fmt.Errorf("failed to add crontab check job: %w", err)
	}

	// Every hour: automated archiver pass
	if err := s.addTask("5 * * * *", controllers.TaskAutomatedArchiver); err != nil {
		return err
	}

	// Daily: thumbnail backfill, retention, purges
	if err := s.addTask("30 5 * * *", controllers.TaskDailyMaintenance); err != nil {
		return err
	}

	// Monthly: artwork refresh, rebalance, format pruning
	if err := s.addTask("45 3 1 * *", controllers.TaskMonthlyMaintenance); err != nil {
		return err
	}

	// Every 10 minutes: drip-feed privacy revalidation
	if err := s.addTask("*/10 * * * *", controllers.TaskPrivacyRevalidation); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

func (s *Scheduler) addTask(expr, task string) error {
	_, err := s.cron.AddFunc(expr, func() {
		if _, err := s.runtime.Submit(task, workers.Kwargs{}); err != nil {
			s.logger.WithError(err).WithField("task", task).Error("Failed to submit scheduled task")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", task, err)
	}
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
