package models

import "time"

// SessionIdentity is the cached login identity, persisted as an opaque blob.
type SessionIdentity struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"` // customer, mitra
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Gender string `json:"gender"`
	Token  string `json:"token,omitempty"`
}

// LastLocation is the last known device fix.
type LastLocation struct {
	Coord
	RecordedAt time.Time `json:"recorded_at"`
}
