package models

import (
	"time"

	"gorm.io/gorm"
)

type KioskStatus string

const (
	KioskStatusActive      KioskStatus = "active"
	KioskStatusInactive    KioskStatus = "inactive"
	KioskStatusMaintenance KioskStatus = "maintenance"
)

type Kiosk struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Location  string         `gorm:"size:500" json:"location"`
	Status    KioskStatus    `gorm:"size:50;default:'active';index" json:"status"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
