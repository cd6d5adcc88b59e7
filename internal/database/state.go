package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"layanan/internal/models"
)

const (
	keyLastLocation = "last_location"
	keySession      = "session_identity"
)

func (db *DB) GetLastLocation(ctx context.Context) (*models.LastLocation, error) {
	var loc models.LastLocation
	ok, err := db.getState(ctx, keyLastLocation, &loc)
	if err != nil || !ok {
		return nil, err
	}
	return &loc, nil
}

func (db *DB) SaveLastLocation(ctx context.Context, loc models.LastLocation) error {
	return db.putState(ctx, keyLastLocation, loc)
}

func (db *DB) GetSession(ctx context.Context) (*models.SessionIdentity, error) {
	var s models.SessionIdentity
	ok, err := db.getState(ctx, keySession, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (db *DB) SaveSession(ctx context.Context, session models.SessionIdentity) error {
	return db.putState(ctx, keySession, session)
}

func (db *DB) getState(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM device_state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		db.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt device state")
		return false, nil
	}
	return true, nil
}

func (db *DB) putState(ctx context.Context, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	query := `INSERT INTO device_state (key, value, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, key, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
