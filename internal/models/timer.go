package models

import "time"

// ServiceTimerState is the persisted countdown for one booking's active service window.
type ServiceTimerState struct {
	BookingID    int64     `json:"booking_id"`
	StartedAt    time.Time `json:"start_timestamp"`
	TotalSeconds int64     `json:"total_seconds"`
	IsRunning    bool      `json:"is_running"`
}

// Remaining reconstructs the time left from the wall clock.
func (s ServiceTimerState) Remaining(now time.Time) time.Duration {
	left := time.Duration(s.TotalSeconds)*time.Second - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}
