// Package repository persists kiosks, campaigns, assets, provider configs,
// folder mappings and the upload/sync job tables.
//
// Status transitions on jobs are compare-and-set: the row is only updated
// when its current status (and, for claims, its version) still matches what
// the caller read. A false return means another invocation got there first.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ifuryst/kiosksync/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrNoActiveProvider is returned when no provider config is marked active.
	ErrNoActiveProvider = errors.New("no active provider config")
)

// UploadJobFilter narrows List queries. Zero values are ignored.
type UploadJobFilter struct {
	Status       models.JobStatus
	KioskID      uint
	MediaAssetID uint
	Limit        int
}

// UploadJobResult is what a processor records when a job leaves the uploading state.
type UploadJobResult struct {
	Status         models.JobStatus
	ProviderFileID string
	ErrorKind      string
	ErrorMessage   string
	CompletedAt    time.Time
}

// SyncJobResult is what a processor records when a sync job leaves the syncing state.
type SyncJobResult struct {
	Status         models.SyncStatus
	FilesSynced    int
	FilesArchived  int
	FilesActivated int
	ErrorMessage   string
	CompletedAt    time.Time
}

type KioskRepo interface {
	GetKiosk(ctx context.Context, id uint) (*models.Kiosk, error)
	ListKiosks(ctx context.Context, status models.KioskStatus) ([]models.Kiosk, error)
}

type CampaignRepo interface {
	GetCampaign(ctx context.Context, id uint) (*models.Campaign, error)
	ListCampaignsForKiosk(ctx context.Context, kioskID uint) ([]models.Campaign, error)
}

type AssetRepo interface {
	GetAsset(ctx context.Context, id uint) (*models.MediaAsset, error)
	ListAssetsByCampaign(ctx context.Context, campaignID uint) ([]models.MediaAsset, error)
	UpdateAssetStatus(ctx context.Context, id uint, status models.AssetStatus) error
	// SetAssetProviderFileID only writes when the asset has no provider file id yet.
	SetAssetProviderFileID(ctx context.Context, id uint, fileID string) error
}

type ProviderConfigRepo interface {
	GetProviderConfig(ctx context.Context, id uint) (*models.ProviderConfig, error)
	ActiveProviderConfig(ctx context.Context) (*models.ProviderConfig, error)
	// ActivateProviderConfig marks id active and deactivates every other config.
	ActivateProviderConfig(ctx context.Context, id uint) error
}

type FolderMappingRepo interface {
	GetFolderMapping(ctx context.Context, kioskID, providerConfigID uint) (*models.FolderMapping, error)
	// SaveFolderMapping upserts on (kiosk_id, gdrive_config_id).
	SaveFolderMapping(ctx context.Context, mapping *models.FolderMapping) error
}

type UploadJobRepo interface {
	CreateUploadJob(ctx context.Context, job *models.UploadJob) error
	GetUploadJob(ctx context.Context, id uint) (*models.UploadJob, error)
	ListUploadJobs(ctx context.Context, filter UploadJobFilter) ([]models.UploadJob, error)
	// ListDueUploadJobs returns pending jobs with scheduled_time <= now,
	// ascending by scheduled_time, at most limit rows.
	ListDueUploadJobs(ctx context.Context, now time.Time, limit int) ([]models.UploadJob, error)
	// ClaimUploadJob moves a job pending -> uploading if it is still pending at version.
	ClaimUploadJob(ctx context.Context, id uint, version int, startedAt time.Time) (bool, error)
	// FinishUploadJob moves a job uploading -> result.Status.
	FinishUploadJob(ctx context.Context, id uint, result UploadJobResult) (bool, error)
	// CancelUploadJob moves a job pending -> cancelled.
	CancelUploadJob(ctx context.Context, id uint) (bool, error)
	// FindLiveUploadJob returns a pending, uploading or completed job for the pair, if any.
	FindLiveUploadJob(ctx context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error)
	// LatestCompletedUploadJob returns the most recent completed job for the pair.
	LatestCompletedUploadJob(ctx context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error)
	CountUploadJobsByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

type SyncJobRepo interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	GetSyncJob(ctx context.Context, id uint) (*models.SyncJob, error)
	ListPendingSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	ClaimSyncJob(ctx context.Context, id uint, version int, startedAt time.Time) (bool, error)
	FinishSyncJob(ctx context.Context, id uint, result SyncJobResult) (bool, error)
}

type ErrorLogRepo interface {
	CreateErrorLog(ctx context.Context, entry *models.ErrorLog) error
	ListErrorLogs(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ErrorLog, error)
}

// Store is the full persistence surface the engine depends on.
type Store interface {
	KioskRepo
	CampaignRepo
	AssetRepo
	ProviderConfigRepo
	FolderMappingRepo
	UploadJobRepo
	SyncJobRepo
	ErrorLogRepo
}
