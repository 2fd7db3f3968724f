package models

import (
	"time"
)

// ErrorLog records failures that need operator attention.
type ErrorLog struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Level            string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source           string     `gorm:"size:100;not null;index" json:"source"` // upload_queue, sync_engine, lifecycle
	ProviderConfigID *uint      `gorm:"index" json:"provider_config_id"`
	KioskID          *uint      `gorm:"index" json:"kiosk_id"`
	UploadJobID      *uint      `gorm:"index" json:"upload_job_id"`
	SyncJobID        *uint      `gorm:"index" json:"sync_job_id"`
	Title            string     `gorm:"size:500;not null" json:"title"`
	Message          string     `gorm:"type:text;not null" json:"message"`
	Context          string     `gorm:"type:jsonb" json:"context"`
	Resolved         bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
