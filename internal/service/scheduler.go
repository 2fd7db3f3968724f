package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
)

// Scheduler periodically drains the upload queue and runs the hourly sweep
// of all kiosks.
type Scheduler struct {
	config   *config.SchedulerConfig
	logger   *zap.Logger
	queue    *UploadQueue
	sync     *SyncEngine
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, queue *UploadQueue, syncEngine *SyncEngine) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
		queue:  queue,
		sync:   syncEngine,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	processInterval, err := time.ParseDuration(s.config.ProcessInterval)
	if err != nil {
		s.logger.Error("Invalid process interval", zap.String("interval", s.config.ProcessInterval), zap.Error(err))
		return err
	}
	syncInterval, err := time.ParseDuration(s.config.SyncInterval)
	if err != nil {
		s.logger.Error("Invalid sync interval", zap.String("interval", s.config.SyncInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler",
		zap.String("process_interval", s.config.ProcessInterval),
		zap.String("sync_interval", s.config.SyncInterval))

	s.loop(ctx, "process", processInterval, s.runProcess)
	s.loop(ctx, "sync", syncInterval, s.runSync)
	return nil
}

// loop runs fn once immediately and then on every tick until stopped.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler loop stopped", zap.String("loop", name))
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled", zap.String("loop", name))
				return
			}
		}
	}()
}

// Stop signals both loops and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runProcess(ctx context.Context) {
	start := time.Now()
	report, err := s.queue.ProcessDue(ctx, start)
	if err != nil {
		s.logger.Error("Scheduled upload processing failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	if report.Processed > 0 || report.Skipped > 0 {
		s.logger.Info("Scheduled upload processing completed",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	start := time.Now()

	// Jobs left pending by a halted provider config run before the sweep.
	if leftover, err := s.sync.ProcessPending(ctx); err != nil {
		s.logger.Error("Pending sync jobs failed", zap.Error(err))
	} else if leftover.Processed > 0 {
		s.logger.Info("Pending sync jobs processed",
			zap.Int("kiosks", leftover.Processed),
			zap.Int("failed", leftover.Failed),
			zap.Int("skipped", leftover.Skipped))
	}

	report, err := s.sync.SyncAllKiosks(ctx, models.SyncTypeHourly)
	if err != nil {
		s.logger.Error("Scheduled kiosk sync failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Info("Scheduled kiosk sync completed",
		zap.Int("kiosks", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("files_activated", report.FilesActivated),
		zap.Int("files_archived", report.FilesArchived),
		zap.Duration("duration", time.Since(start)))
}
