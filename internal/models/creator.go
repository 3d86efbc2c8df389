package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReconnectMessage is shown to users whose Fanvue authorization can no longer
// be refreshed automatically.
const ReconnectMessage = "Your Fanvue connection has expired. Please reconnect your Fanvue account."

// Creator is a managed Fanvue performer account tracked by an agency.
type Creator struct {
	// ID is the local identifier of the creator.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// AgencyID is the tenant that owns the creator.
	AgencyID string `json:"agency_id" gorm:"column:agency_id;index;not null"`
	// FanvueUUID is the upstream identifier of the creator.
	FanvueUUID string `json:"fanvue_uuid" gorm:"column:fanvue_uuid;uniqueIndex;not null"`
	// Handle is the creator's Fanvue username.
	Handle      string `json:"handle" gorm:"column:handle;index"`
	DisplayName string `json:"display_name" gorm:"column:display_name"`

	// RevenueTotal is a cached SUM(transactions.amount) in cents. It is always
	// recomputed from the transaction set, never incremented.
	RevenueTotal     int64 `json:"revenue_total" gorm:"column:revenue_total;not null;default:0"`
	SubscribersCount int64 `json:"subscribers_count" gorm:"column:subscribers_count;not null;default:0"`
	FollowersCount   int64 `json:"followers_count" gorm:"column:followers_count;not null;default:0"`
	PostsCount       int64 `json:"posts_count" gorm:"column:posts_count;not null;default:0"`

	AccessToken      string           `json:"-" gorm:"column:access_token"`
	RefreshToken     string           `json:"-" gorm:"column:refresh_token"`
	TokenExpiresAt   *time.Time       `json:"token_expires_at" gorm:"column:token_expires_at;index"`
	ConnectionStatus ConnectionStatus `json:"connection_status" gorm:"column:connection_status;size:16;index;not null;default:active"`
	// ConnectionError is the user-facing reason of an expired connection.
	ConnectionError string `json:"connection_error,omitempty" gorm:"column:connection_error"`

	LastTransactionSync  *time.Time `json:"last_transaction_sync" gorm:"column:last_transaction_sync;index"`
	LastTrackingLinkSync *time.Time `json:"last_tracking_link_sync" gorm:"column:last_tracking_link_sync"`
	StatsUpdatedAt       *time.Time `json:"stats_updated_at" gorm:"column:stats_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Creator) TableName() string {
	return "creators"
}

func (c *Creator) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ConnectionStatus == "" {
		c.ConnectionStatus = ConnectionActive
	}
	return nil
}

// Tokens returns the stored token pair of the creator.
func (c *Creator) Tokens() TokenPair {
	pair := TokenPair{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
	if c.TokenExpiresAt != nil {
		pair.ExpiresAt = *c.TokenExpiresAt
	}
	return pair
}

// CreatorStats are the upstream counters cached on a creator.
type CreatorStats struct {
	SubscribersCount int64
	FollowersCount   int64
	PostsCount       int64
}
