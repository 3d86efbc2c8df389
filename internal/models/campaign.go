package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign groups queued messages sent on behalf of one creator.
type Campaign struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey;size:36"`
	AgencyID    string         `json:"agency_id" gorm:"column:agency_id;index;not null"`
	CreatorID   string         `json:"creator_id" gorm:"column:creator_id;index"`
	Name        string         `json:"name" gorm:"column:name"`
	Status      CampaignStatus `json:"status" gorm:"column:status;size:16;not null;default:active"`
	CompletedAt *time.Time     `json:"completed_at" gorm:"column:completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CampaignActive
	}
	return nil
}
