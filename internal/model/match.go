package model

import "time"

type MatchStatus string

const (
	MatchProposed            MatchStatus = "proposed"
	MatchPendingConfirmation MatchStatus = "pending_confirmation"
	MatchActive              MatchStatus = "active"
	MatchExpired             MatchStatus = "expired"
)

// MatchSession is a time-boxed conversation grant with a previously
// unconnected user. An active session is valid until ExpiresAt; expiry is
// evaluated lazily against the caller's clock rather than by a timer.
type MatchSession struct {
	UserID    int64       `json:"user_id"`
	Nickname  string      `json:"nickname"`
	Avatar    string      `json:"avatar,omitempty"`
	Status    MatchStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
	// Initiator marks that this side sent the confirmation that opened
	// the handshake (the "pending" outcome).
	Initiator bool `json:"initiator,omitempty"`
}

// Expired reports whether the session's grant has lapsed at the given
// instant. Only active sessions carry an expiry; other states never
// expire implicitly.
func (m *MatchSession) Expired(now time.Time) bool {
	return m.Status == MatchActive && now.After(m.ExpiresAt)
}
