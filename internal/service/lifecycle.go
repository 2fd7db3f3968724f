package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/pkg/util"
)

const sourceLifecycle = "lifecycle"

type TransitionAction string

const (
	ActionUpload TransitionAction = "upload"
	ActionSync   TransitionAction = "sync"
	ActionNone   TransitionAction = "none"
)

type TransitionReport struct {
	CampaignID      uint                  `json:"campaign_id"`
	Status          models.CampaignStatus `json:"status"`
	Action          TransitionAction      `json:"action"`
	FoldersEnsured  int                   `json:"folders_ensured"`
	AssetsApproved  int                   `json:"assets_approved"`
	JobsCreated     int                   `json:"jobs_created"`
	JobsExisting    int                   `json:"jobs_existing"`
	DirectUploads   int                   `json:"direct_uploads"`
	SyncJobsCreated int                   `json:"sync_jobs_created"`
	Sync            *SyncReport           `json:"sync,omitempty"`
	Errors          []string              `json:"errors,omitempty"`
}

func (r *TransitionReport) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Lifecycle turns campaign status transitions into upload and sync work.
// It never fails the caller's transition: problems end up in the report,
// the log and the error log table.
type Lifecycle struct {
	store      repository.Store
	registry   *FolderRegistry
	queue      *UploadQueue
	uploader   *Uploader
	sync       *SyncEngine
	monitoring *MonitoringService
	logger     *zap.Logger
	now        func() time.Time
}

func NewLifecycle(store repository.Store, registry *FolderRegistry, queue *UploadQueue, uploader *Uploader,
	syncEngine *SyncEngine, monitoring *MonitoringService, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		store:      store,
		registry:   registry,
		queue:      queue,
		uploader:   uploader,
		sync:       syncEngine,
		monitoring: monitoring,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleCampaignTransition reacts to a campaign entering status. It returns
// an error only when the campaign cannot be loaded, status is unknown or the
// stored campaign is not in status.
func (l *Lifecycle) HandleCampaignTransition(ctx context.Context, campaignID uint, status models.CampaignStatus) (*TransitionReport, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown campaign status %q", ErrInvalidRequest, status)
	}
	campaign, err := l.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %d: %w", campaignID, err)
	}
	if campaign.Status != status {
		return nil, fmt.Errorf("%w: campaign %d is %s, not %s", ErrInvalidRequest, campaignID, campaign.Status, status)
	}

	report := &TransitionReport{CampaignID: campaignID, Status: status, Action: ActionNone}

	switch status {
	case models.CampaignStatusApproved:
		report.Action = ActionUpload
		l.handleApproved(ctx, campaign, report)
	case models.CampaignStatusActive, models.CampaignStatusCompleted, models.CampaignStatusPaused:
		report.Action = ActionSync
		l.handleStatusSync(ctx, campaign, report)
	case models.CampaignStatusDraft, models.CampaignStatusPending, models.CampaignStatusRejected:
	}

	if len(report.Errors) > 0 {
		l.logger.Warn("Campaign transition completed with errors",
			zap.Uint("campaign_id", campaignID),
			zap.String("status", string(status)),
			zap.Strings("errors", report.Errors))
		_ = l.monitoring.RecordError(ctx, LevelWarn, sourceLifecycle,
			fmt.Sprintf("Campaign %d %s transition had errors", campaignID, status),
			fmt.Sprintf("%d problem(s); first: %s", len(report.Errors), report.Errors[0]),
			WithContext(map[string]interface{}{"campaign_id": campaignID, "errors": report.Errors}))
	} else {
		l.logger.Info("Campaign transition handled",
			zap.Uint("campaign_id", campaignID),
			zap.String("status", string(status)),
			zap.String("action", string(report.Action)))
	}
	return report, nil
}

type pendingUpload struct {
	asset   *models.MediaAsset
	kioskID uint
}

func (l *Lifecycle) handleApproved(ctx context.Context, campaign *models.Campaign, report *TransitionReport) {
	cfg, err := l.store.ActiveProviderConfig(ctx)
	if err != nil {
		report.fail("no provider config: %v", err)
		return
	}

	kioskIDs := campaign.SelectedKioskIDs.Unique()
	for _, kioskID := range kioskIDs {
		if _, err := l.registry.ensure(ctx, cfg, kioskID); err != nil {
			report.fail("kiosk %d: failed to ensure folders: %v", kioskID, err)
			continue
		}
		report.FoldersEnsured++
	}

	assets, err := l.store.ListAssetsByCampaign(ctx, campaign.ID)
	if err != nil {
		report.fail("failed to list assets: %v", err)
		return
	}

	var approved []*models.MediaAsset
	for i := range assets {
		asset := &assets[i]
		switch asset.Status {
		case models.AssetStatusApproved:
		case models.AssetStatusProcessing, models.AssetStatusSwapped:
			if err := l.store.UpdateAssetStatus(ctx, asset.ID, models.AssetStatusApproved); err != nil {
				report.fail("asset %d: failed to approve: %v", asset.ID, err)
				continue
			}
			asset.Status = models.AssetStatusApproved
			report.AssetsApproved++
		case models.AssetStatusRejected, models.AssetStatusArchived:
			continue
		default:
			continue
		}
		approved = append(approved, asset)
	}

	scheduledTime, uploadType := l.uploadSchedule(cfg)

	var unqueued []pendingUpload
	for _, asset := range approved {
		for _, kioskID := range kioskIDs {
			_, err := l.store.FindLiveUploadJob(ctx, asset.ID, kioskID, cfg.ID)
			if err == nil {
				report.JobsExisting++
				continue
			}
			if !errors.Is(err, repository.ErrNotFound) {
				report.fail("asset %d kiosk %d: failed to check existing jobs: %v", asset.ID, kioskID, err)
				unqueued = append(unqueued, pendingUpload{asset: asset, kioskID: kioskID})
				continue
			}

			if _, err := l.queue.enqueue(ctx, cfg, asset, kioskID, models.FolderTypeScheduled, uploadType, scheduledTime); err != nil {
				report.fail("asset %d kiosk %d: failed to enqueue: %v", asset.ID, kioskID, err)
				unqueued = append(unqueued, pendingUpload{asset: asset, kioskID: kioskID})
				continue
			}
			report.JobsCreated++
		}
	}

	if report.JobsCreated == 0 && len(unqueued) > 0 {
		l.directUpload(ctx, cfg, unqueued, report)
	}
}

// directUpload is the fallback when the queue could not take any job.
func (l *Lifecycle) directUpload(ctx context.Context, cfg *models.ProviderConfig, uploads []pendingUpload, report *TransitionReport) {
	l.logger.Warn("Upload queue unavailable, uploading directly", zap.Int("uploads", len(uploads)))

	for _, u := range uploads {
		file, err := l.uploader.Upload(ctx, cfg, u.asset, u.kioskID, models.FolderTypeScheduled)
		if err != nil {
			report.fail("asset %d kiosk %d: direct upload failed: %v", u.asset.ID, u.kioskID, err)
			continue
		}
		report.DirectUploads++

		// Best effort: lets later syncs find the file.
		now := l.now()
		record := &models.UploadJob{
			GDriveConfigID: cfg.ID,
			KioskID:        u.kioskID,
			CampaignID:     u.asset.CampaignID,
			MediaAssetID:   u.asset.ID,
			ScheduledTime:  now,
			UploadType:     models.UploadTypeImmediate,
			FolderType:     models.FolderTypeScheduled,
			Status:         models.JobStatusCompleted,
			ProviderFileID: file.ID,
			StartedAt:      &now,
			CompletedAt:    &now,
		}
		if err := l.store.CreateUploadJob(ctx, record); err != nil {
			l.logger.Warn("Failed to record direct upload",
				zap.Uint("asset_id", u.asset.ID),
				zap.Uint("kiosk_id", u.kioskID),
				zap.String("file_id", file.ID),
				zap.Error(err))
		}
	}
}

// uploadSchedule returns the next daily upload slot of the provider config,
// or now for an immediate upload when none is configured.
func (l *Lifecycle) uploadSchedule(cfg *models.ProviderConfig) (time.Time, models.UploadType) {
	now := l.now()
	if cfg.DailyUploadTime == "" {
		return now, models.UploadTypeImmediate
	}
	next, err := util.NextDailyOccurrence(cfg.DailyUploadTime, now)
	if err != nil {
		l.logger.Warn("Ignoring invalid daily upload time",
			zap.Uint("provider_config_id", cfg.ID),
			zap.String("daily_upload_time", cfg.DailyUploadTime),
			zap.Error(err))
		return now, models.UploadTypeImmediate
	}
	return next, models.UploadTypeScheduled
}

func (l *Lifecycle) handleStatusSync(ctx context.Context, campaign *models.Campaign, report *TransitionReport) {
	cfg, err := l.store.ActiveProviderConfig(ctx)
	if err != nil {
		report.fail("no provider config: %v", err)
		return
	}

	var created []models.SyncJob
	for _, kioskID := range campaign.SelectedKioskIDs.Unique() {
		job, err := l.sync.createSyncJob(ctx, cfg, kioskID, models.SyncTypeCampaignStatus)
		if err != nil {
			report.fail("kiosk %d: failed to create sync job: %v", kioskID, err)
			continue
		}
		created = append(created, *job)
	}
	report.SyncJobsCreated = len(created)
	if len(created) == 0 {
		return
	}

	syncReport := l.sync.processJobs(ctx, created)
	report.Sync = syncReport
	for _, item := range syncReport.Items {
		switch {
		case item.Skipped:
			report.fail("kiosk %d: sync skipped: %s", item.KioskID, item.Error)
		case item.Status == models.SyncStatusFailed:
			report.fail("kiosk %d: sync failed: %s", item.KioskID, item.Error)
		}
	}
}
