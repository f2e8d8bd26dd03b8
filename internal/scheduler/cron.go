package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/amaumene/bridgarr/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher runs one link refresh pass
type Refresher interface {
	RunRefresh(ctx context.Context) (*controllers.RefreshSummary, error)
}

// Cleaner purges dead links past their retention
type Cleaner interface {
	CleanupDeadLinks(ctx context.Context) (int, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron            *cron.Cron
	refresher       Refresher
	cleaner         Cleaner
	refreshSchedule string
	cleanupSchedule string
	logger          *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(
	refresher Refresher,
	cleaner Cleaner,
	refreshSchedule string,
	cleanupSchedule string,
	logger *logrus.Logger,
) *Scheduler {
	cronLogger := cron.PrintfLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		refresher:       refresher,
		cleaner:         cleaner,
		refreshSchedule: refreshSchedule,
		cleanupSchedule: cleanupSchedule,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start registers the jobs, starts the scheduler and runs a first refresh pass
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Refresh expiring links ahead of time
	_, err := s.cron.AddFunc(s.refreshSchedule, func() {
		s.runRefresh()
	})
	if err != nil {
		return fmt.Errorf("failed to add link refresh job: %w", err)
	}

	// Purge dead links past retention
	_, err = s.cron.AddFunc(s.cleanupSchedule, func() {
		s.runCleanup()
	})
	if err != nil {
		return fmt.Errorf("failed to add link cleanup job: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"refresh": s.refreshSchedule,
		"cleanup": s.cleanupSchedule,
	}).Info("Scheduler started")

	// Catch up on links that expired while the service was down
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRefresh()
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// runRefresh executes the link refresh job
func (s *Scheduler) runRefresh() {
	s.logger.Info("Running scheduled link refresh")

	summary, err := s.refresher.RunRefresh(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Link refresh job failed")
		return
	}
	if summary.Dead > 0 || summary.Removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"dead":    summary.Dead,
			"removed": summary.Removed,
		}).Warn("Link refresh lost links")
	}
}

// runCleanup executes the dead link cleanup job
func (s *Scheduler) runCleanup() {
	s.logger.Debug("Running scheduled dead link cleanup")

	if _, err := s.cleaner.CleanupDeadLinks(s.ctx); err != nil {
		s.logger.WithError(err).Error("Dead link cleanup job failed")
	}
}
