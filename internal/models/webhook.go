package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is a received Fanvue webhook delivery. EventKey deduplicates
// repeated deliveries of the same event.
type WebhookEvent struct {
	ID          uint           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	EventKey    string         `json:"event_key" gorm:"column:event_key;uniqueIndex;size:128;not null"`
	EventType   string         `json:"event_type" gorm:"column:event_type;size:32;index"`
	CreatorUUID string         `json:"creator_uuid" gorm:"column:creator_uuid;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"column:payload"`
	ProcessedAt *time.Time     `json:"processed_at" gorm:"column:processed_at"`
	Error       string         `json:"error,omitempty" gorm:"column:error"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
