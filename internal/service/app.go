package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/lock"
	"github.com/ifuryst/kiosksync/internal/metrics"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/internal/storage"
)

const statsInterval = 30 * time.Second

// App holds every engine component built from one Config.
type App struct {
	Store      repository.Store
	Metrics    *metrics.Collector
	Monitoring *MonitoringService
	Registry   *FolderRegistry
	Uploader   *Uploader
	Queue      *UploadQueue
	Sync       *SyncEngine
	Lifecycle  *Lifecycle
	Scheduler  *Scheduler
	Stats      *StatsUpdater

	logger  *zap.Logger
	closers []func() error
}

// Deps are the external collaborators of the engine.
type Deps struct {
	Store   repository.Store
	Drive   drive.Client
	Source  storage.AssetSource
	Locker  lock.Locker
	Metrics *metrics.Collector
}

// NewApp opens the store, the asset source, the Drive client and the lock
// backend described by cfg and assembles the engine over them.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, closeStore, err := NewStore(&cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize store: %w", err))
	}
	closers = append(closers, closeStore)

	var source storage.AssetSource
	if cfg.Storage.Bucket == "" && cfg.Storage.Endpoint == "" && cfg.Database.Type == "memory" {
		logger.Warn("No asset bucket configured, serving assets from memory")
		source = storage.NewMemorySource()
	} else {
		gcs, err := storage.NewGCSSource(ctx, &cfg.Storage, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, gcs.Close)
		source = gcs
	}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		closers = append(closers, client.Close)
		locker = lock.NewRedisLocker(client, cfg.Redis.LockTTLDuration(), logger)
		logger.Info("Using redis kiosk locks", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = lock.NewLocalLocker()
	}

	app := Assemble(cfg, Deps{
		Store:   store,
		Drive:   drive.NewDriveClient(&cfg.Drive, logger),
		Source:  source,
		Locker:  locker,
		Metrics: metrics.New(),
	}, logger)
	app.closers = closers
	return app, nil
}

// Assemble builds the engine over already constructed dependencies.
func Assemble(cfg *config.Config, deps Deps, logger *zap.Logger) *App {
	monitoring := NewMonitoringService(deps.Store, logger)
	registry := NewFolderRegistry(deps.Store, deps.Drive, deps.Locker, cfg.Drive.KiosksFolderName, deps.Metrics, logger)
	uploader := NewUploader(deps.Store, registry, deps.Source, deps.Drive, logger)
	queue := NewUploadQueue(deps.Store, uploader, monitoring, cfg.Queue.BatchSize, deps.Metrics, logger)
	syncEngine := NewSyncEngine(deps.Store, deps.Drive, deps.Locker, monitoring,
		cfg.Queue.SyncBatchSize, cfg.Queue.SyncConcurrency, deps.Metrics, logger)

	return &App{
		Store:      deps.Store,
		Metrics:    deps.Metrics,
		Monitoring: monitoring,
		Registry:   registry,
		Uploader:   uploader,
		Queue:      queue,
		Sync:       syncEngine,
		Lifecycle:  NewLifecycle(deps.Store, registry, queue, uploader, syncEngine, monitoring, logger),
		Scheduler:  NewScheduler(&cfg.Scheduler, logger, queue, syncEngine),
		Stats:      NewStatsUpdater(queue, deps.Metrics, logger, statsInterval),
		logger:     logger,
	}
}

// Close releases the store, the asset source and the redis client.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
