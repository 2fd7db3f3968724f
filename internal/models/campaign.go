package models

import (
	"time"

	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusApproved  CampaignStatus = "approved"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusRejected  CampaignStatus = "rejected"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusPending, CampaignStatusApproved, CampaignStatusActive,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusRejected:
		return true
	}
	return false
}

type Campaign struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"size:255" json:"name"`
	Status           CampaignStatus `gorm:"size:50;default:'draft';index" json:"status"`
	StartDate        time.Time      `gorm:"not null" json:"start_date"`
	EndDate          *time.Time     `json:"end_date"`
	SelectedKioskIDs IDArray        `gorm:"type:bigint[]" json:"selected_kiosk_ids"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
