package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"layanan/internal/models"
)

// GetTimer returns nil, nil when no timer is stored for the booking.
func (db *DB) GetTimer(ctx context.Context, bookingID int64) (*models.ServiceTimerState, error) {
	query := `SELECT booking_id, start_ts, total_seconds, is_running FROM timer_states WHERE booking_id = ?`

	var (
		state   models.ServiceTimerState
		startMs int64
	)
	err := db.QueryRowContext(ctx, query, bookingID).Scan(&state.BookingID, &startMs, &state.TotalSeconds, &state.IsRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer %d: %w", bookingID, err)
	}
	state.StartedAt = time.UnixMilli(startMs)
	return &state, nil
}

// SaveTimer upserts the timer state atomically.
func (db *DB) SaveTimer(ctx context.Context, state *models.ServiceTimerState) error {
	if state == nil {
		return fmt.Errorf("timer state is nil")
	}
	query := `INSERT INTO timer_states (booking_id, start_ts, total_seconds, is_running, updated_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(booking_id) DO UPDATE SET
                start_ts = excluded.start_ts,
                total_seconds = excluded.total_seconds,
                is_running = excluded.is_running,
                updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		state.BookingID,
		state.StartedAt.UnixMilli(),
		state.TotalSeconds,
		state.IsRunning,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save timer %d: %w", state.BookingID, err)
	}
	return nil
}

func (db *DB) DeleteTimer(ctx context.Context, bookingID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM timer_states WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("failed to delete timer %d: %w", bookingID, err)
	}
	return nil
}
