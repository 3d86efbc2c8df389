package models

import "time"

// Transaction is a single upstream monetary event. Rows are immutable apart
// from attributing an orphaned transaction to a creator.
type Transaction struct {
	ID uint `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// UpstreamID is the Fanvue identifier of the event; re-syncs upsert on it.
	UpstreamID string `json:"upstream_id" gorm:"column:upstream_id;uniqueIndex;not null"`
	AgencyID   string `json:"agency_id" gorm:"column:agency_id;index;not null"`
	// ModelID is the owning creator. Nil marks an orphaned transaction.
	ModelID *string `json:"model_id" gorm:"column:model_id;index"`
	// CounterpartyHandle is the creator handle reported by the upstream event,
	// used to re-attribute orphans.
	CounterpartyHandle string    `json:"counterparty_handle" gorm:"column:counterparty_handle"`
	FanUUID            string    `json:"fan_uuid" gorm:"column:fan_uuid"`
	Amount             int64     `json:"amount" gorm:"column:amount;not null"` // cents
	Currency           string    `json:"currency" gorm:"column:currency;size:8"`
	Category           string    `json:"category" gorm:"column:category;size:32"`
	OccurredAt         time.Time `json:"occurred_at" gorm:"column:occurred_at;index"`
	CreatedAt          time.Time `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
