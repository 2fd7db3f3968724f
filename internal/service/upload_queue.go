package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/metrics"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

const sourceUploadQueue = "upload_queue"

type EnqueueRequest struct {
	MediaAssetID  uint              `json:"media_asset_id" binding:"required"`
	KioskID       uint              `json:"kiosk_id" binding:"required"`
	FolderType    models.FolderType `json:"folder_type"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	UploadType    models.UploadType `json:"upload_type"`
}

// JobOutcome is one line of a ProcessingReport.
type JobOutcome struct {
	JobID          uint             `json:"job_id"`
	MediaAssetID   uint             `json:"media_asset_id"`
	KioskID        uint             `json:"kiosk_id"`
	Status         models.JobStatus `json:"status"`
	Skipped        bool             `json:"skipped"`
	ProviderFileID string           `json:"provider_file_id,omitempty"`
	ErrorKind      string           `json:"error_kind,omitempty"`
	Error          string           `json:"error,omitempty"`
}

type ProcessingReport struct {
	Processed     int          `json:"processed"`
	Succeeded     int          `json:"succeeded"`
	Failed        int          `json:"failed"`
	Skipped       int          `json:"skipped"`
	HaltedConfigs []uint       `json:"halted_configs"`
	Items         []JobOutcome `json:"items"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

type QueueStats struct {
	Total  int64                      `json:"total"`
	Counts map[models.JobStatus]int64 `json:"counts"`
}

// UploadQueue creates and drains upload jobs. Jobs are processed one at a
// time in scheduled_time order; each is claimed with a compare-and-set
// before any provider I/O.
type UploadQueue struct {
	store      repository.Store
	uploader   *Uploader
	monitoring *MonitoringService
	metrics    *metrics.Collector
	logger     *zap.Logger
	batchSize  int
	now        func() time.Time
}

func NewUploadQueue(store repository.Store, uploader *Uploader, monitoring *MonitoringService, batchSize int, collector *metrics.Collector, logger *zap.Logger) *UploadQueue {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &UploadQueue{
		store:      store,
		uploader:   uploader,
		monitoring: monitoring,
		metrics:    collector,
		logger:     logger,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Enqueue inserts a pending job. Nothing is uploaded until ProcessDue runs.
func (q *UploadQueue) Enqueue(ctx context.Context, req EnqueueRequest) (uint, error) {
	if req.FolderType == "" {
		req.FolderType = models.FolderTypeScheduled
	}
	if req.UploadType == "" {
		req.UploadType = models.UploadTypeImmediate
	}
	if !req.FolderType.Valid() {
		return 0, fmt.Errorf("%w: unknown folder type %q", ErrInvalidRequest, req.FolderType)
	}
	if !req.UploadType.Valid() {
		return 0, fmt.Errorf("%w: unknown upload type %q", ErrInvalidRequest, req.UploadType)
	}
	if req.ScheduledTime.IsZero() {
		req.ScheduledTime = q.now()
	}

	asset, err := q.store.GetAsset(ctx, req.MediaAssetID)
	if err != nil {
		return 0, fmt.Errorf("failed to load asset %d: %w", req.MediaAssetID, err)
	}
	if _, err := q.store.GetKiosk(ctx, req.KioskID); err != nil {
		return 0, fmt.Errorf("failed to load kiosk %d: %w", req.KioskID, err)
	}
	cfg, err := q.store.ActiveProviderConfig(ctx)
	if err != nil {
		return 0, err
	}

	job, err := q.enqueue(ctx, cfg, asset, req.KioskID, req.FolderType, req.UploadType, req.ScheduledTime)
	if err != nil {
		return 0, err
	}
	return job.ID, nil
}

func (q *UploadQueue) enqueue(ctx context.Context, cfg *models.ProviderConfig, asset *models.MediaAsset, kioskID uint,
	folderType models.FolderType, uploadType models.UploadType, scheduledTime time.Time) (*models.UploadJob, error) {
	job := &models.UploadJob{
		GDriveConfigID: cfg.ID,
		KioskID:        kioskID,
		CampaignID:     asset.CampaignID,
		MediaAssetID:   asset.ID,
		ScheduledTime:  scheduledTime,
		UploadType:     uploadType,
		FolderType:     folderType,
		Status:         models.JobStatusPending,
	}
	if err := q.store.CreateUploadJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create upload job: %w", err)
	}

	q.logger.Info("Upload job enqueued",
		zap.Uint("job_id", job.ID),
		zap.Uint("asset_id", asset.ID),
		zap.Uint("kiosk_id", kioskID),
		zap.String("folder_type", string(folderType)),
		zap.Time("scheduled_time", scheduledTime))
	return job, nil
}

// ProcessDue drains pending jobs due at now. Per-job failures are recorded
// on the job and in the report; only a failure to list jobs is returned.
func (q *UploadQueue) ProcessDue(ctx context.Context, now time.Time) (*ProcessingReport, error) {
	report := &ProcessingReport{StartedAt: q.now()}

	jobs, err := q.store.ListDueUploadJobs(ctx, now, q.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due upload jobs: %w", err)
	}

	configs := make(map[uint]*models.ProviderConfig)
	halted := make(map[uint]bool)

	for i, job := range jobs {
		if ctx.Err() != nil {
			for _, rest := range jobs[i:] {
				report.skip(rest, "processing interrupted: "+ctx.Err().Error())
			}
			break
		}

		if halted[job.GDriveConfigID] {
			report.skip(job, fmt.Sprintf("provider config %d halted after a permanent error", job.GDriveConfigID))
			continue
		}

		claimed, err := q.store.ClaimUploadJob(ctx, job.ID, job.Version, q.now())
		if err != nil {
			q.logger.Error("Failed to claim upload job", zap.Uint("job_id", job.ID), zap.Error(err))
			report.skip(job, fmt.Sprintf("claim failed: %v", err))
			continue
		}
		if !claimed {
			q.logger.Debug("Upload job no longer pending, skipping", zap.Uint("job_id", job.ID))
			report.skip(job, "job was cancelled or claimed by another run")
			continue
		}

		outcome := q.processJob(ctx, job, configs)
		report.add(outcome)

		if outcome.Status == models.JobStatusFailed && outcome.permanent {
			halted[job.GDriveConfigID] = true
			report.HaltedConfigs = append(report.HaltedConfigs, job.GDriveConfigID)
			q.metrics.ObserveHalt()
			_ = q.monitoring.RecordError(ctx, LevelError, sourceUploadQueue,
				"Provider config halted",
				fmt.Sprintf("Upload job %d failed with %s; remaining jobs for provider config %d stay pending until it is reconfigured: %s",
					job.ID, outcome.ErrorKind, job.GDriveConfigID, outcome.Error),
				WithProvider(job.GDriveConfigID),
				WithKiosk(job.KioskID),
				WithUploadJob(job.ID),
				WithContext(map[string]interface{}{"error_kind": outcome.ErrorKind, "media_asset_id": job.MediaAssetID}))
			q.logger.Error("Halting provider config for this run",
				zap.Uint("provider_config_id", job.GDriveConfigID),
				zap.String("error_kind", outcome.ErrorKind))
		}
	}

	report.FinishedAt = q.now()
	q.logger.Info("Upload queue processed",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

type jobResult struct {
	JobOutcome
	permanent bool
}

func (q *UploadQueue) processJob(ctx context.Context, job models.UploadJob, configs map[uint]*models.ProviderConfig) jobResult {
	start := time.Now()
	res := jobResult{JobOutcome: JobOutcome{JobID: job.ID, MediaAssetID: job.MediaAssetID, KioskID: job.KioskID}}

	file, err := q.upload(ctx, job, configs)

	finish := repository.UploadJobResult{CompletedAt: q.now()}
	if err != nil {
		finish.Status = models.JobStatusFailed
		finish.ErrorKind = errorKind(err)
		finish.ErrorMessage = err.Error()
		res.permanent = isPermanent(err)
	} else {
		finish.Status = models.JobStatusCompleted
		finish.ProviderFileID = file.ID
	}

	// Terminalize even if ctx was cancelled mid-upload.
	ok, ferr := q.store.FinishUploadJob(context.WithoutCancel(ctx), job.ID, finish)
	switch {
	case ferr != nil:
		q.logger.Error("Failed to record upload job result", zap.Uint("job_id", job.ID), zap.Error(ferr))
	case !ok:
		q.logger.Warn("Upload job left uploading state unexpectedly", zap.Uint("job_id", job.ID))
	}

	res.Status = finish.Status
	res.ProviderFileID = finish.ProviderFileID
	res.ErrorKind = finish.ErrorKind
	res.Error = finish.ErrorMessage
	q.metrics.ObserveUpload(string(finish.Status), finish.ErrorKind, time.Since(start))

	if err != nil {
		q.logger.Warn("Upload job failed",
			zap.Uint("job_id", job.ID),
			zap.Uint("asset_id", job.MediaAssetID),
			zap.Uint("kiosk_id", job.KioskID),
			zap.String("error_kind", finish.ErrorKind),
			zap.Bool("retryable", drive.ErrorKind(finish.ErrorKind).Retryable()),
			zap.Error(err))
	}
	return res
}

func (q *UploadQueue) upload(ctx context.Context, job models.UploadJob, configs map[uint]*models.ProviderConfig) (*drive.File, error) {
	switch job.UploadType {
	case models.UploadTypeScheduled, models.UploadTypeImmediate, models.UploadTypeSync:
	default:
		return nil, fmt.Errorf("%w: unknown upload type %q", ErrInvalidRequest, job.UploadType)
	}

	cfg, ok := configs[job.GDriveConfigID]
	if !ok {
		var err error
		cfg, err = q.store.GetProviderConfig(ctx, job.GDriveConfigID)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider config %d: %w", job.GDriveConfigID, err)
		}
		configs[job.GDriveConfigID] = cfg
	}

	asset, err := q.store.GetAsset(ctx, job.MediaAssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %d: %w", job.MediaAssetID, err)
	}

	return q.uploader.Upload(ctx, cfg, asset, job.KioskID, job.FolderType)
}

// Cancel moves a pending job to cancelled.
func (q *UploadQueue) Cancel(ctx context.Context, jobID uint) error {
	ok, err := q.store.CancelUploadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel upload job %d: %w", jobID, err)
	}
	if ok {
		q.logger.Info("Upload job cancelled", zap.Uint("job_id", jobID))
		return nil
	}

	job, err := q.store.GetUploadJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %d is %s", ErrJobNotPending, jobID, job.Status)
}

// Requeue creates a new pending job for the same asset, kiosk and folder as
// a failed or cancelled job. The original job is left as it is.
func (q *UploadQueue) Requeue(ctx context.Context, jobID uint) (uint, error) {
	job, err := q.store.GetUploadJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	switch job.Status {
	case models.JobStatusFailed, models.JobStatusCancelled:
	case models.JobStatusPending, models.JobStatusUploading, models.JobStatusCompleted:
		return 0, fmt.Errorf("%w: job %d is %s", ErrJobNotRequeueable, jobID, job.Status)
	default:
		return 0, fmt.Errorf("%w: job %d has unknown status %q", ErrJobNotRequeueable, jobID, job.Status)
	}

	asset, err := q.store.GetAsset(ctx, job.MediaAssetID)
	if err != nil {
		return 0, fmt.Errorf("failed to load asset %d: %w", job.MediaAssetID, err)
	}
	cfg, err := q.store.ActiveProviderConfig(ctx)
	if err != nil {
		return 0, err
	}

	requeued, err := q.enqueue(ctx, cfg, asset, job.KioskID, job.FolderType, models.UploadTypeImmediate, q.now())
	if err != nil {
		return 0, err
	}
	q.logger.Info("Upload job requeued", zap.Uint("job_id", jobID), zap.Uint("new_job_id", requeued.ID))
	return requeued.ID, nil
}

func (q *UploadQueue) List(ctx context.Context, filter repository.UploadJobFilter) ([]models.UploadJob, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrInvalidRequest, filter.Status)
	}
	return q.store.ListUploadJobs(ctx, filter)
}

func (q *UploadQueue) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.CountUploadJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count upload jobs: %w", err)
	}
	stats := &QueueStats{Counts: make(map[models.JobStatus]int64)}
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusUploading, models.JobStatusCompleted,
		models.JobStatusFailed, models.JobStatusCancelled,
	} {
		stats.Counts[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (r *ProcessingReport) add(res jobResult) {
	r.Processed++
	switch res.Status {
	case models.JobStatusCompleted:
		r.Succeeded++
	case models.JobStatusFailed:
		r.Failed++
	case models.JobStatusPending, models.JobStatusUploading, models.JobStatusCancelled:
	}
	r.Items = append(r.Items, res.JobOutcome)
}

func (r *ProcessingReport) skip(job models.UploadJob, reason string) {
	r.Skipped++
	r.Items = append(r.Items, JobOutcome{
		JobID:        job.ID,
		MediaAssetID: job.MediaAssetID,
		KioskID:      job.KioskID,
		Status:       job.Status,
		Skipped:      true,
		Error:        reason,
	})
}
