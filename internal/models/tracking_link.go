package models

import "time"

// TrackingLink is a creator's promotional link and its upstream counters.
type TrackingLink struct {
	ID            uint      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UpstreamUUID  string    `json:"upstream_uuid" gorm:"column:upstream_uuid;uniqueIndex;not null"`
	CreatorID     string    `json:"creator_id" gorm:"column:creator_id;index;not null"`
	Name          string    `json:"name" gorm:"column:name"`
	URL           string    `json:"url" gorm:"column:url"`
	Clicks        int64     `json:"clicks" gorm:"column:clicks"`
	Subscribers   int64     `json:"subscribers" gorm:"column:subscribers"`
	EarningsCents int64     `json:"earnings_cents" gorm:"column:earnings_cents"`
	SyncedAt      time.Time `json:"synced_at" gorm:"column:synced_at"`
}

func (TrackingLink) TableName() string {
	return "tracking_links"
}
