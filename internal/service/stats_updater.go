package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/metrics"
)

// StatsUpdater periodically publishes upload queue depth as gauges.
type StatsUpdater struct {
	queue   *UploadQueue
	metrics *metrics.Collector
	logger  *zap.Logger
	ticker  *time.Ticker
	done    chan bool
}

func NewStatsUpdater(queue *UploadQueue, collector *metrics.Collector, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		queue:   queue,
		metrics: collector,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		done:    make(chan bool),
	}
}

func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		s.updateStats(ctx)
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.updateStats(ctx)
			}
		}
	}()
}

func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) updateStats(ctx context.Context) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.logger.Error("Failed to update queue stats", zap.Error(err))
		return
	}
	for status, n := range stats.Counts {
		s.metrics.SetQueueDepth(string(status), n)
	}
}
