package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/lock"
	"github.com/ifuryst/kiosksync/internal/metrics"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

const sourceSyncEngine = "sync_engine"

// CampaignPhase is where a campaign stands relative to now.
type CampaignPhase int

const (
	PhaseNeither CampaignPhase = iota
	PhaseActive
	PhaseExpired
)

func (p CampaignPhase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseExpired:
		return "expired"
	case PhaseNeither:
		return "neither"
	}
	return "unknown"
}

// ClassifyCampaign places a campaign in exactly one phase. Active requires a
// running status and now inside [start, end]; otherwise a finished status or
// a past end date means expired.
func ClassifyCampaign(c *models.Campaign, now time.Time) CampaignPhase {
	ended := c.EndDate != nil && c.EndDate.Before(now)

	switch c.Status {
	case models.CampaignStatusActive, models.CampaignStatusPending, models.CampaignStatusApproved:
		if !c.StartDate.After(now) && !ended {
			return PhaseActive
		}
	case models.CampaignStatusCompleted, models.CampaignStatusPaused:
		return PhaseExpired
	case models.CampaignStatusDraft, models.CampaignStatusRejected:
	}

	if ended {
		return PhaseExpired
	}
	return PhaseNeither
}

type SyncResult struct {
	FilesSynced    int      `json:"files_synced"`
	FilesArchived  int      `json:"files_archived"`
	FilesActivated int      `json:"files_activated"`
	Errors         []string `json:"errors,omitempty"`
}

type SyncOutcome struct {
	SyncJobID uint              `json:"sync_job_id"`
	KioskID   uint              `json:"kiosk_id"`
	Status    models.SyncStatus `json:"status"`
	Skipped   bool              `json:"skipped"`
	Result    *SyncResult       `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type SyncReport struct {
	Processed      int           `json:"processed"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	HaltedConfigs  []uint        `json:"halted_configs"`
	FilesSynced    int           `json:"files_synced"`
	FilesArchived  int           `json:"files_archived"`
	FilesActivated int           `json:"files_activated"`
	Items          []SyncOutcome `json:"items"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// SyncEngine moves uploaded kiosk files between the active and archive
// folders to match campaign state.
type SyncEngine struct {
	store       repository.Store
	client      drive.Client
	locker      lock.Locker
	monitoring  *MonitoringService
	metrics     *metrics.Collector
	logger      *zap.Logger
	batchSize   int
	concurrency int
	now         func() time.Time
}

func NewSyncEngine(store repository.Store, client drive.Client, locker lock.Locker, monitoring *MonitoringService,
	batchSize, concurrency int, collector *metrics.Collector, logger *zap.Logger) *SyncEngine {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SyncEngine{
		store:       store,
		client:      client,
		locker:      locker,
		monitoring:  monitoring,
		metrics:     collector,
		logger:      logger,
		batchSize:   batchSize,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// ReconcileKiosk syncs one kiosk against the active provider config.
func (e *SyncEngine) ReconcileKiosk(ctx context.Context, kioskID uint) (*SyncResult, error) {
	cfg, err := e.store.ActiveProviderConfig(ctx)
	if err != nil {
		return nil, err
	}
	return e.reconcile(ctx, cfg, kioskID)
}

// reconcile returns an error only when the kiosk cannot be synced at all;
// per-asset problems are collected in SyncResult.Errors.
func (e *SyncEngine) reconcile(ctx context.Context, cfg *models.ProviderConfig, kioskID uint) (*SyncResult, error) {
	result := &SyncResult{}
	now := e.now()

	mapping, err := e.store.GetFolderMapping(ctx, kioskID, cfg.ID)
	if errors.Is(err, repository.ErrNotFound) {
		e.logger.Info("Kiosk has no folder mapping, nothing to sync",
			zap.Uint("kiosk_id", kioskID),
			zap.Uint("provider_config_id", cfg.ID))
		result.Errors = append(result.Errors, fmt.Sprintf("kiosk %d has no folder mapping", kioskID))
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folder mapping for kiosk %d: %w", kioskID, err)
	}

	campaigns, err := e.store.ListCampaignsForKiosk(ctx, kioskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for kiosk %d: %w", kioskID, err)
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		var target models.FolderType
		switch ClassifyCampaign(campaign, now) {
		case PhaseActive:
			target = models.FolderTypeActive
		case PhaseExpired:
			target = models.FolderTypeArchive
		case PhaseNeither:
			continue
		}

		assets, err := e.store.ListAssetsByCampaign(ctx, campaign.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("campaign %d: failed to list assets: %v", campaign.ID, err))
			continue
		}

		for j := range assets {
			asset := &assets[j]
			if asset.Status != models.AssetStatusApproved {
				continue
			}
			if err := e.place(ctx, cfg, mapping, asset, target, result); err != nil {
				return result, err
			}
		}
	}

	e.logger.Info("Kiosk reconciled",
		zap.Uint("kiosk_id", kioskID),
		zap.Int("files_synced", result.FilesSynced),
		zap.Int("files_activated", result.FilesActivated),
		zap.Int("files_archived", result.FilesArchived),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// place makes sure the asset's remote file sits in the target folder. Only
// permanent provider errors are returned.
func (e *SyncEngine) place(ctx context.Context, cfg *models.ProviderConfig, mapping *models.FolderMapping,
	asset *models.MediaAsset, target models.FolderType, result *SyncResult) error {
	kioskID := mapping.KioskID

	job, err := e.store.LatestCompletedUploadJob(ctx, asset.ID, kioskID, cfg.ID)
	if errors.Is(err, repository.ErrNotFound) {
		e.logger.Debug("Asset never uploaded to kiosk, skipping",
			zap.Uint("asset_id", asset.ID),
			zap.Uint("kiosk_id", kioskID))
		return nil
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("asset %d: failed to find upload: %v", asset.ID, err))
		return nil
	}

	targetID, err := FolderID(mapping, target)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("asset %d: %v", asset.ID, err))
		return nil
	}

	file, err := e.client.GetFile(ctx, cfg, job.ProviderFileID)
	if err != nil {
		if isPermanent(err) {
			return err
		}
		e.logger.Warn("Could not read remote file, skipping",
			zap.Uint("asset_id", asset.ID),
			zap.String("file_id", job.ProviderFileID),
			zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("asset %d: %v", asset.ID, err))
		return nil
	}

	if file.InFolder(targetID) {
		result.FilesSynced++
		return nil
	}

	from := sourceFolder(mapping, target, file)
	if err := e.client.MoveFile(ctx, cfg, file.ID, from, targetID); err != nil {
		if isPermanent(err) {
			return err
		}
		e.logger.Warn("Failed to move remote file",
			zap.Uint("asset_id", asset.ID),
			zap.String("file_id", file.ID),
			zap.String("target", string(target)),
			zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("asset %d: %v", asset.ID, err))
		return nil
	}

	result.FilesSynced++
	switch target {
	case models.FolderTypeActive:
		result.FilesActivated++
	case models.FolderTypeArchive:
		result.FilesArchived++
	case models.FolderTypeScheduled:
	}
	e.metrics.ObserveMove(string(target))
	return nil
}

// sourceFolder picks the folder a file is moved out of: the expected
// predecessor of target if the file is there, else its actual parent.
func sourceFolder(mapping *models.FolderMapping, target models.FolderType, file *drive.File) string {
	var expected []string
	switch target {
	case models.FolderTypeActive:
		if mapping.ScheduledFolderID != nil && *mapping.ScheduledFolderID != "" {
			expected = append(expected, *mapping.ScheduledFolderID)
		}
		expected = append(expected, mapping.ArchiveFolderID)
	case models.FolderTypeArchive:
		expected = append(expected, mapping.ActiveFolderID)
		if mapping.ScheduledFolderID != nil {
			expected = append(expected, *mapping.ScheduledFolderID)
		}
	case models.FolderTypeScheduled:
	}

	for _, id := range expected {
		if id != "" && file.InFolder(id) {
			return id
		}
	}
	if len(file.Parents) > 0 {
		return file.Parents[0]
	}
	if len(expected) > 0 {
		return expected[0]
	}
	return ""
}

// CreateSyncJob inserts a pending sync job for the kiosk under the active
// provider config.
func (e *SyncEngine) CreateSyncJob(ctx context.Context, kioskID uint, syncType models.SyncType) (uint, error) {
	cfg, err := e.store.ActiveProviderConfig(ctx)
	if err != nil {
		return 0, err
	}
	job, err := e.createSyncJob(ctx, cfg, kioskID, syncType)
	if err != nil {
		return 0, err
	}
	return job.ID, nil
}

// SyncKiosk records a sync job for one kiosk and runs it right away.
func (e *SyncEngine) SyncKiosk(ctx context.Context, kioskID uint, syncType models.SyncType) (*SyncReport, error) {
	cfg, err := e.store.ActiveProviderConfig(ctx)
	if err != nil {
		return nil, err
	}
	job, err := e.createSyncJob(ctx, cfg, kioskID, syncType)
	if err != nil {
		return nil, err
	}
	return e.processJobs(ctx, []models.SyncJob{*job}), nil
}

func (e *SyncEngine) createSyncJob(ctx context.Context, cfg *models.ProviderConfig, kioskID uint, syncType models.SyncType) (*models.SyncJob, error) {
	if !syncType.Valid() {
		return nil, fmt.Errorf("%w: unknown sync type %q", ErrInvalidRequest, syncType)
	}
	if _, err := e.store.GetKiosk(ctx, kioskID); err != nil {
		return nil, fmt.Errorf("failed to load kiosk %d: %w", kioskID, err)
	}

	job := &models.SyncJob{
		GDriveConfigID: cfg.ID,
		KioskID:        kioskID,
		SyncType:       syncType,
		Status:         models.SyncStatusPending,
	}
	if err := e.store.CreateSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	e.logger.Debug("Sync job created",
		zap.Uint("sync_job_id", job.ID),
		zap.Uint("kiosk_id", kioskID),
		zap.String("sync_type", string(syncType)))
	return job, nil
}

// ProcessPending runs every pending sync job, up to the batch size.
func (e *SyncEngine) ProcessPending(ctx context.Context) (*SyncReport, error) {
	jobs, err := e.store.ListPendingSyncJobs(ctx, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sync jobs: %w", err)
	}
	return e.processJobs(ctx, jobs), nil
}

// SyncAllKiosks creates a sync job for every active kiosk and runs them.
func (e *SyncEngine) SyncAllKiosks(ctx context.Context, syncType models.SyncType) (*SyncReport, error) {
	if !syncType.Valid() {
		return nil, fmt.Errorf("%w: unknown sync type %q", ErrInvalidRequest, syncType)
	}
	cfg, err := e.store.ActiveProviderConfig(ctx)
	if err != nil {
		return nil, err
	}
	kiosks, err := e.store.ListKiosks(ctx, models.KioskStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list kiosks: %w", err)
	}

	var failures []SyncOutcome
	jobs := make([]models.SyncJob, 0, len(kiosks))
	for _, kiosk := range kiosks {
		job, err := e.createSyncJob(ctx, cfg, kiosk.ID, syncType)
		if err != nil {
			e.logger.Error("Failed to create sync job", zap.Uint("kiosk_id", kiosk.ID), zap.Error(err))
			failures = append(failures, SyncOutcome{KioskID: kiosk.ID, Status: models.SyncStatusFailed, Error: err.Error()})
			continue
		}
		jobs = append(jobs, *job)
	}

	report := e.processJobs(ctx, jobs)
	for _, f := range failures {
		report.Failed++
		report.Items = append(report.Items, f)
	}
	return report, nil
}

// syncRun is the state shared by the jobs of one processJobs call.
type syncRun struct {
	mu     sync.Mutex
	report *SyncReport
	halted map[uint]bool
}

func (r *syncRun) isHalted(configID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted[configID]
}

// halt marks configID as halted and reports whether this call did it.
func (r *syncRun) halt(configID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted[configID] {
		return false
	}
	r.halted[configID] = true
	r.report.HaltedConfigs = append(r.report.HaltedConfigs, configID)
	return true
}

func (r *syncRun) add(o SyncOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.add(o)
}

func (e *SyncEngine) processJobs(ctx context.Context, jobs []models.SyncJob) *SyncReport {
	run := &syncRun{
		report: &SyncReport{StartedAt: e.now()},
		halted: make(map[uint]bool),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			run.add(e.runJob(gctx, run, job))
			return nil
		})
	}
	_ = g.Wait()

	report := run.report
	report.FinishedAt = e.now()
	e.logger.Info("Sync jobs processed",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Uints("halted_configs", report.HaltedConfigs),
		zap.Int("files_activated", report.FilesActivated),
		zap.Int("files_archived", report.FilesArchived))
	return report
}

func (e *SyncEngine) runJob(ctx context.Context, run *syncRun, job models.SyncJob) SyncOutcome {
	outcome := SyncOutcome{SyncJobID: job.ID, KioskID: job.KioskID, Status: job.Status}

	unlock, err := e.locker.Lock(ctx, lock.KioskKey(job.KioskID))
	if err != nil {
		outcome.Skipped = true
		outcome.Error = err.Error()
		return outcome
	}
	defer unlock()

	if run.isHalted(job.GDriveConfigID) {
		outcome.Skipped = true
		outcome.Error = fmt.Sprintf("provider config %d halted after a permanent error", job.GDriveConfigID)
		return outcome
	}

	claimed, err := e.store.ClaimSyncJob(ctx, job.ID, job.Version, e.now())
	if err != nil || !claimed {
		outcome.Skipped = true
		if err != nil {
			outcome.Error = fmt.Sprintf("claim failed: %v", err)
		} else {
			outcome.Error = "sync job was claimed by another run"
		}
		return outcome
	}

	var result *SyncResult
	cfg, err := e.store.GetProviderConfig(ctx, job.GDriveConfigID)
	if err != nil {
		err = fmt.Errorf("failed to load provider config %d: %w", job.GDriveConfigID, err)
	} else {
		result, err = e.reconcile(ctx, cfg, job.KioskID)
	}
	if result == nil {
		result = &SyncResult{}
	}

	finish := repository.SyncJobResult{
		Status:         models.SyncStatusCompleted,
		FilesSynced:    result.FilesSynced,
		FilesArchived:  result.FilesArchived,
		FilesActivated: result.FilesActivated,
		ErrorMessage:   strings.Join(result.Errors, "; "),
		CompletedAt:    e.now(),
	}
	if err != nil {
		finish.Status = models.SyncStatusFailed
		finish.ErrorMessage = err.Error()
		e.logger.Error("Kiosk sync failed",
			zap.Uint("sync_job_id", job.ID),
			zap.Uint("kiosk_id", job.KioskID),
			zap.Error(err))
		if isPermanent(err) {
			if run.halt(job.GDriveConfigID) {
				e.metrics.ObserveHalt()
				_ = e.monitoring.RecordError(ctx, LevelError, sourceSyncEngine,
					"Provider config halted",
					fmt.Sprintf("Sync job %d failed with %s; remaining sync jobs for provider config %d stay pending until it is reconfigured: %v",
						job.ID, errorKind(err), job.GDriveConfigID, err),
					WithProvider(job.GDriveConfigID),
					WithKiosk(job.KioskID),
					WithSyncJob(job.ID),
					WithContext(map[string]interface{}{"error_kind": errorKind(err), "sync_type": string(job.SyncType)}))
			}
		} else {
			_ = e.monitoring.RecordError(ctx, LevelError, sourceSyncEngine,
				"Kiosk sync failed", err.Error(),
				WithProvider(job.GDriveConfigID),
				WithKiosk(job.KioskID),
				WithSyncJob(job.ID),
				WithContext(map[string]interface{}{"error_kind": errorKind(err), "sync_type": string(job.SyncType)}))
		}
	}

	if ok, ferr := e.store.FinishSyncJob(context.WithoutCancel(ctx), job.ID, finish); ferr != nil || !ok {
		e.logger.Error("Failed to record sync job result",
			zap.Uint("sync_job_id", job.ID),
			zap.Bool("updated", ok),
			zap.Error(ferr))
	}
	e.metrics.ObserveSync(string(job.SyncType), string(finish.Status))

	outcome.Status = finish.Status
	outcome.Result = result
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}

func (r *SyncReport) add(o SyncOutcome) {
	r.Items = append(r.Items, o)
	if o.Skipped {
		r.Skipped++
		return
	}
	r.Processed++
	switch o.Status {
	case models.SyncStatusCompleted:
		r.Succeeded++
	case models.SyncStatusFailed:
		r.Failed++
	case models.SyncStatusPending, models.SyncStatusSyncing:
	}
	if o.Result != nil {
		r.FilesSynced += o.Result.FilesSynced
		r.FilesArchived += o.Result.FilesArchived
		r.FilesActivated += o.Result.FilesActivated
	}
}
