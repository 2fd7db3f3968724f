package models

import (
	"time"

	"gorm.io/gorm"
)

type AssetStatus string

const (
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusApproved   AssetStatus = "approved"
	AssetStatusSwapped    AssetStatus = "swapped"
	AssetStatusRejected   AssetStatus = "rejected"
	AssetStatusArchived   AssetStatus = "archived"
)

// MediaAsset is one creative file. ProviderFileID is set on the first
// successful upload and never cleared.
type MediaAsset struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CampaignID     *uint          `gorm:"index" json:"campaign_id"`
	Status         AssetStatus    `gorm:"size:50;default:'processing';index" json:"status"`
	FileName       string         `gorm:"size:500" json:"file_name"`
	MimeType       string         `gorm:"size:255" json:"mime_type"`
	FileReference  string         `gorm:"not null;size:1024" json:"file_reference"`
	ProviderFileID *string        `gorm:"size:255" json:"provider_file_id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
