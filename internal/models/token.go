package models

import "time"

// TokenPair is an OAuth access/refresh token pair with an absolute expiry.
// ExpiresAt already includes the clock-skew safety buffer.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token must be refreshed before use.
func (p TokenPair) Expired(now time.Time) bool {
	return p.AccessToken == "" || !now.Before(p.ExpiresAt)
}

// ConnectionStatus is the health of a creator's upstream authorization.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
)

var connectionTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionActive:  {ConnectionExpired},
	ConnectionExpired: {ConnectionActive}, // interactive reconnect only
}

// CanTransition reports whether a connection may move from s to next.
// Staying in the same state is always allowed.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range connectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
