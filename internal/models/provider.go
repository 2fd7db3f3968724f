package models

import (
	"time"

	"gorm.io/gorm"
)

// ProviderConfig holds the credentials and identity of one remote storage
// account. Only one row is active at a time.
type ProviderConfig struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"size:100" json:"name"`
	IsActive        bool           `gorm:"default:false;index" json:"is_active"`
	ClientID        string         `gorm:"size:500" json:"client_id"`
	ClientSecret    string         `gorm:"size:500" json:"-"`
	AccessToken     string         `gorm:"type:text" json:"-"`
	RefreshToken    string         `gorm:"type:text" json:"-"`
	TokenExpiry     *time.Time     `json:"token_expiry"`
	RootFolderID    string         `gorm:"size:255" json:"root_folder_id"`
	DailyUploadTime string         `gorm:"size:5" json:"daily_upload_time"` // HH:MM, optional
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// FolderMapping binds one kiosk and one provider config to its remote folders.
type FolderMapping struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	KioskID           uint      `gorm:"not null;uniqueIndex:idx_folder_mapping_kiosk_config" json:"kiosk_id"`
	GDriveConfigID    uint      `gorm:"column:gdrive_config_id;not null;uniqueIndex:idx_folder_mapping_kiosk_config" json:"gdrive_config_id"`
	KioskFolderID     string    `gorm:"size:255" json:"kiosk_folder_id"`
	ScheduledFolderID *string   `gorm:"size:255" json:"scheduled_folder_id"`
	ActiveFolderID    string    `gorm:"size:255" json:"active_folder_id"`
	ArchiveFolderID   string    `gorm:"size:255" json:"archive_folder_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Complete reports whether all three logical folders are provisioned.
func (m *FolderMapping) Complete() bool {
	return m != nil &&
		m.ScheduledFolderID != nil && *m.ScheduledFolderID != "" &&
		m.ActiveFolderID != "" &&
		m.ArchiveFolderID != ""
}
