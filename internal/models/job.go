package models

import (
	"time"
)

type FolderType string

const (
	FolderTypeScheduled FolderType = "scheduled"
	FolderTypeActive    FolderType = "active"
	FolderTypeArchive   FolderType = "archive"
)

func (f FolderType) Valid() bool {
	switch f {
	case FolderTypeScheduled, FolderTypeActive, FolderTypeArchive:
		return true
	}
	return false
}

type UploadType string

const (
	UploadTypeScheduled UploadType = "scheduled"
	UploadTypeImmediate UploadType = "immediate"
	UploadTypeSync      UploadType = "sync"
)

func (u UploadType) Valid() bool {
	switch u {
	case UploadTypeScheduled, UploadTypeImmediate, UploadTypeSync:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusUploading JobStatus = "uploading"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusUploading, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusPending, JobStatusUploading:
		return false
	}
	return false
}

// UploadJob places one asset into one kiosk folder.
type UploadJob struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	GDriveConfigID uint       `gorm:"column:gdrive_config_id;not null;index" json:"gdrive_config_id"`
	KioskID        uint       `gorm:"not null;index:idx_upload_job_asset_kiosk" json:"kiosk_id"`
	CampaignID     *uint      `gorm:"index" json:"campaign_id"`
	MediaAssetID   uint       `gorm:"not null;index:idx_upload_job_asset_kiosk" json:"media_asset_id"`
	ScheduledTime  time.Time  `gorm:"not null;index:idx_upload_job_due" json:"scheduled_time"`
	UploadType     UploadType `gorm:"size:20;not null" json:"upload_type"`
	FolderType     FolderType `gorm:"size:20;not null" json:"folder_type"`
	Status         JobStatus  `gorm:"size:20;default:'pending';index:idx_upload_job_due" json:"status"`
	ProviderFileID string     `gorm:"size:255" json:"provider_file_id"`
	ErrorKind      string     `gorm:"size:50" json:"error_kind"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	Version        int        `gorm:"not null;default:0" json:"version"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncType string

const (
	SyncTypeHourly         SyncType = "hourly"
	SyncTypeManual         SyncType = "manual"
	SyncTypeCampaignStatus SyncType = "campaign_status"
)

func (s SyncType) Valid() bool {
	switch s {
	case SyncTypeHourly, SyncTypeManual, SyncTypeCampaignStatus:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncJob reconciles every asset of one kiosk against campaign state.
type SyncJob struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	GDriveConfigID uint       `gorm:"column:gdrive_config_id;not null;index" json:"gdrive_config_id"`
	KioskID        uint       `gorm:"not null;index" json:"kiosk_id"`
	SyncType       SyncType   `gorm:"size:20;not null" json:"sync_type"`
	Status         SyncStatus `gorm:"size:20;default:'pending';index" json:"status"`
	FilesSynced    int        `gorm:"default:0" json:"files_synced"`
	FilesArchived  int        `gorm:"default:0" json:"files_archived"`
	FilesActivated int        `gorm:"default:0" json:"files_activated"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	Version        int        `gorm:"not null;default:0" json:"version"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
