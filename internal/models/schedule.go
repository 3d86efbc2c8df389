package models

import "time"

// Shift is a chatter's scheduled working slot. Only the columns needed by
// the late-shift check are mapped.
type Shift struct {
	ID            string     `json:"id" gorm:"column:id;primaryKey;size:36"`
	AgencyID      string     `json:"agency_id" gorm:"column:agency_id;index"`
	ChatterName   string     `json:"chatter_name" gorm:"column:chatter_name"`
	StartsAt      time.Time  `json:"starts_at" gorm:"column:starts_at;index"`
	ClockedInAt   *time.Time `json:"clocked_in_at" gorm:"column:clocked_in_at"`
	LateAlertedAt *time.Time `json:"late_alerted_at" gorm:"column:late_alerted_at"`
}

func (Shift) TableName() string {
	return "shifts"
}

// ScheduledPost is a content item planned for a creator.
type ScheduledPost struct {
	ID              string     `json:"id" gorm:"column:id;primaryKey;size:36"`
	CreatorID       string     `json:"creator_id" gorm:"column:creator_id;index"`
	Caption         string     `json:"caption" gorm:"column:caption"`
	ScheduledFor    time.Time  `json:"scheduled_for" gorm:"column:scheduled_for;index"`
	PostedAt        *time.Time `json:"posted_at" gorm:"column:posted_at"`
	MissedAlertedAt *time.Time `json:"missed_alerted_at" gorm:"column:missed_alerted_at"`
}

func (ScheduledPost) TableName() string {
	return "scheduled_posts"
}
