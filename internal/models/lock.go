package models

import "time"

// AppLock is a lease held by one job invocation. Overlapping cron triggers of
// the same job see the lease and return without doing any work.
type AppLock struct {
	LockName   string `gorm:"column:lock_name;primaryKey;size:255"`
	InstanceID string `gorm:"column:instance_id;size:255;not null"`
	// Unix seconds, compared without timezone handling on every driver.
	AcquiredAt int64 `gorm:"column:acquired_at;not null"`
	ExpiresAt  int64 `gorm:"column:expires_at;not null;index"`
}

func (AppLock) TableName() string {
	return "app_locks"
}

// Expired reports whether the lease ran past its deadline at now.
func (l AppLock) Expired(now time.Time) bool {
	return l.ExpiresAt < now.Unix()
}
