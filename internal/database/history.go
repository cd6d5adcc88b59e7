package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"layanan/internal/models"
)

// CacheBookings stores the latest known copy of a user's bookings so history
// can still be listed and exported while offline.
func (db *DB) CacheBookings(ctx context.Context, userID int64, bookings []models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO booking_cache (id, user_id, status, payload, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            user_id = excluded.user_id,
            status = excluded.status,
            payload = excluded.payload,
            updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare booking cache insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i := range bookings {
		data, err := json.Marshal(bookings[i])
		if err != nil {
			return fmt.Errorf("failed to encode booking %d: %w", bookings[i].ID, err)
		}
		if _, err := stmt.ExecContext(ctx, bookings[i].ID, userID, string(bookings[i].Status), string(data), now); err != nil {
			return fmt.Errorf("failed to cache booking %d: %w", bookings[i].ID, err)
		}
	}
	return tx.Commit()
}

// CachedBookings lists cached bookings for a user, newest id first. An empty
// status returns every status.
func (db *DB) CachedBookings(ctx context.Context, userID int64, status models.Status) ([]models.Booking, error) {
	query := `SELECT payload FROM booking_cache WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan cached booking: %w", err)
		}
		var b models.Booking
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			db.logger.Warn().Err(err).Msg("skipping corrupt cached booking")
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
