package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueueStatus is the state of an outbound message.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueSent       QueueStatus = "sent"
	QueueFailed     QueueStatus = "failed"
)

// queueTransitions is the complete set of legal moves. processing -> pending
// covers both retries and crash recovery.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueuePending:    {QueueProcessing},
	QueueProcessing: {QueueSent, QueuePending, QueueFailed},
}

// CanTransition reports whether a queue item may move from s to next.
func (s QueueStatus) CanTransition(next QueueStatus) bool {
	for _, allowed := range queueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s QueueStatus) Terminal() bool {
	return s == QueueSent || s == QueueFailed
}

// ValidateQueueTransition returns ErrInvalidTransition for illegal moves.
func ValidateQueueTransition(from, to QueueStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: queue item %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// QueueItem is an agency -> fan message waiting to be sent.
type QueueItem struct {
	ID         string  `json:"id" gorm:"column:id;primaryKey;size:36"`
	AgencyID   string  `json:"agency_id" gorm:"column:agency_id;index;not null"`
	CreatorID  string  `json:"creator_id" gorm:"column:creator_id;index;not null"`
	CampaignID *string `json:"campaign_id" gorm:"column:campaign_id;index"`
	FanUUID    string  `json:"fan_uuid" gorm:"column:fan_uuid;not null"`

	Text       string  `json:"text" gorm:"column:text"`
	MediaUUID  *string `json:"media_uuid" gorm:"column:media_uuid"`
	PriceCents *int64  `json:"price_cents" gorm:"column:price_cents"`

	ScheduledFor time.Time   `json:"scheduled_for" gorm:"column:scheduled_for;index;not null"`
	Status       QueueStatus `json:"status" gorm:"column:status;size:16;index;not null;default:pending"`
	RetryCount   int         `json:"retry_count" gorm:"column:retry_count;not null;default:0"`
	// RateLimits counts the requeues within RetryCount caused by rate limits.
	RateLimits   int         `json:"rate_limits" gorm:"column:rate_limits;not null;default:0"`
	LastError    string      `json:"last_error" gorm:"column:last_error"`
	SentAt       *time.Time  `json:"sent_at" gorm:"column:sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// Attempts is the number of failed sends that count against the retry budget.
func (q *QueueItem) Attempts() int {
	return q.RetryCount - q.RateLimits
}

func (QueueItem) TableName() string {
	return "message_queue"
}

func (q *QueueItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = QueuePending
	}
	return nil
}

// QueueUpdate describes a status change of a queue item together with the
// bookkeeping columns that change with it.
type QueueUpdate struct {
	From         QueueStatus
	To           QueueStatus
	RetryCount   *int
	RateLimits   *int
	LastError    *string
	ScheduledFor *time.Time
	SentAt       *time.Time
}
