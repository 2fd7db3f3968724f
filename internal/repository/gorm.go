package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/kiosksync/internal/models"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) first(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := s.db.WithContext(ctx).Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetKiosk(ctx context.Context, id uint) (*models.Kiosk, error) {
	var kiosk models.Kiosk
	if err := s.first(ctx, &kiosk, "id = ?", id); err != nil {
		return nil, err
	}
	return &kiosk, nil
}

func (s *GormStore) ListKiosks(ctx context.Context, status models.KioskStatus) ([]models.Kiosk, error) {
	var kiosks []models.Kiosk
	q := s.db.WithContext(ctx).Order("id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&kiosks).Error; err != nil {
		return nil, err
	}
	return kiosks, nil
}

func (s *GormStore) GetCampaign(ctx context.Context, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.first(ctx, &campaign, "id = ?", id); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *GormStore) ListCampaignsForKiosk(ctx context.Context, kioskID uint) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := s.db.WithContext(ctx).
		Where("? = ANY(selected_kiosk_ids)", kioskID).
		Order("id ASC").
		Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (s *GormStore) GetAsset(ctx context.Context, id uint) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	if err := s.first(ctx, &asset, "id = ?", id); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *GormStore) ListAssetsByCampaign(ctx context.Context, campaignID uint) ([]models.MediaAsset, error) {
	var assets []models.MediaAsset
	if err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *GormStore) UpdateAssetStatus(ctx context.Context, id uint, status models.AssetStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.MediaAsset{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetAssetProviderFileID(ctx context.Context, id uint, fileID string) error {
	return s.db.WithContext(ctx).
		Model(&models.MediaAsset{}).
		Where("id = ? AND (provider_file_id IS NULL OR provider_file_id = '')", id).
		Update("provider_file_id", fileID).Error
}

func (s *GormStore) GetProviderConfig(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	if err := s.first(ctx, &cfg, "id = ?", id); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) ActiveProviderConfig(ctx context.Context) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveProvider
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) ActivateProviderConfig(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ProviderConfig{}).Where("id = ?", id).Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.ProviderConfig{}).
			Where("id <> ? AND is_active = ?", id, true).
			Update("is_active", false).Error
	})
}

func (s *GormStore) GetFolderMapping(ctx context.Context, kioskID, providerConfigID uint) (*models.FolderMapping, error) {
	var mapping models.FolderMapping
	if err := s.first(ctx, &mapping, "kiosk_id = ? AND gdrive_config_id = ?", kioskID, providerConfigID); err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (s *GormStore) SaveFolderMapping(ctx context.Context, mapping *models.FolderMapping) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kiosk_id"}, {Name: "gdrive_config_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kiosk_folder_id", "scheduled_folder_id", "active_folder_id", "archive_folder_id", "updated_at",
		}),
	}).Create(mapping).Error
}

func (s *GormStore) CreateUploadJob(ctx context.Context, job *models.UploadJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create upload job: %w", err)
	}
	return nil
}

func (s *GormStore) GetUploadJob(ctx context.Context, id uint) (*models.UploadJob, error) {
	var job models.UploadJob
	if err := s.first(ctx, &job, "id = ?", id); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) ListUploadJobs(ctx context.Context, filter UploadJobFilter) ([]models.UploadJob, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.KioskID != 0 {
		q = q.Where("kiosk_id = ?", filter.KioskID)
	}
	if filter.MediaAssetID != 0 {
		q = q.Where("media_asset_id = ?", filter.MediaAssetID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var jobs []models.UploadJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) ListDueUploadJobs(ctx context.Context, now time.Time, limit int) ([]models.UploadJob, error) {
	var jobs []models.UploadJob
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", models.JobStatusPending, now).
		Order("scheduled_time ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) ClaimUploadJob(ctx context.Context, id uint, version int, startedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.UploadJob{}).
		Where("id = ? AND status = ? AND version = ?", id, models.JobStatusPending, version).
		Updates(map[string]interface{}{
			"status":     models.JobStatusUploading,
			"version":    gorm.Expr("version + 1"),
			"started_at": startedAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FinishUploadJob(ctx context.Context, id uint, result UploadJobResult) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.UploadJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusUploading).
		Updates(map[string]interface{}{
			"status":           result.Status,
			"provider_file_id": result.ProviderFileID,
			"error_kind":       result.ErrorKind,
			"error_message":    result.ErrorMessage,
			"completed_at":     result.CompletedAt,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CancelUploadJob(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.UploadJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusCancelled,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FindLiveUploadJob(ctx context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error) {
	var job models.UploadJob
	err := s.first(ctx, &job,
		"media_asset_id = ? AND kiosk_id = ? AND gdrive_config_id = ? AND status IN ?",
		assetID, kioskID, providerConfigID,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusUploading, models.JobStatusCompleted},
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) LatestCompletedUploadJob(ctx context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error) {
	var job models.UploadJob
	err := s.db.WithContext(ctx).
		Where("media_asset_id = ? AND kiosk_id = ? AND gdrive_config_id = ? AND status = ? AND provider_file_id <> ''",
			assetID, kioskID, providerConfigID, models.JobStatusCompleted).
		Order("completed_at DESC, id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) CountUploadJobsByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.UploadJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[models.JobStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (s *GormStore) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

func (s *GormStore) GetSyncJob(ctx context.Context, id uint) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := s.first(ctx, &job, "id = ?", id); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) ListPendingSyncJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SyncStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) ClaimSyncJob(ctx context.Context, id uint, version int, startedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status = ? AND version = ?", id, models.SyncStatusPending, version).
		Updates(map[string]interface{}{
			"status":     models.SyncStatusSyncing,
			"version":    gorm.Expr("version + 1"),
			"started_at": startedAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FinishSyncJob(ctx context.Context, id uint, result SyncJobResult) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND status = ?", id, models.SyncStatusSyncing).
		Updates(map[string]interface{}{
			"status":          result.Status,
			"files_synced":    result.FilesSynced,
			"files_archived":  result.FilesArchived,
			"files_activated": result.FilesActivated,
			"error_message":   result.ErrorMessage,
			"completed_at":    result.CompletedAt,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CreateErrorLog(ctx context.Context, entry *models.ErrorLog) error {
	if entry.Context == "" {
		entry.Context = "{}"
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) ListErrorLogs(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ErrorLog, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.ErrorLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
