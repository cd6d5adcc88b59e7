package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"layanan/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "layanan.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestTimerRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	missing, err := db.GetTimer(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	start := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, db.SaveTimer(ctx, &models.ServiceTimerState{
		BookingID: 1, StartedAt: start, TotalSeconds: 3600, IsRunning: true,
	}))

	got, err := db.GetTimer(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Equal(t, int64(3600), got.TotalSeconds)
	assert.True(t, got.IsRunning)

	require.NoError(t, db.DeleteTimer(ctx, 1))
	got, err = db.GetTimer(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveTimerUpserts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTimer(ctx, &models.ServiceTimerState{BookingID: 5, StartedAt: time.Now(), TotalSeconds: 60, IsRunning: true}))
	require.NoError(t, db.SaveTimer(ctx, &models.ServiceTimerState{BookingID: 5, StartedAt: time.Now(), TotalSeconds: 120, IsRunning: false}))

	got, err := db.GetTimer(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.TotalSeconds)
	assert.False(t, got.IsRunning)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timer_states`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSaveTimerNil(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.SaveTimer(context.Background(), nil))
}

func TestDeviceState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	loc, err := db.GetLastLocation(ctx)
	require.NoError(t, err)
	assert.Nil(t, loc)

	require.NoError(t, db.SaveLastLocation(ctx, models.LastLocation{Coord: models.Coord{Lat: -6.3, Lng: 106.7}}))
	require.NoError(t, db.SaveLastLocation(ctx, models.LastLocation{Coord: models.Coord{Lat: -6.4, Lng: 106.8}}))
	loc, err = db.GetLastLocation(ctx)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, -6.4, loc.Lat)

	require.NoError(t, db.SaveSession(ctx, models.SessionIdentity{UserID: 9, Name: "Rina", Phone: "0812"}))
	s, err := db.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Rina", s.Name)
}

func TestCorruptStateIsDiscarded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO device_state (key, value, updated_at) VALUES (?, ?, ?)`, keySession, "{not json", 0)
	require.NoError(t, err)

	s, err := db.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestBookingCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CacheBookings(ctx, 3, []models.Booking{
		{ID: 1, Status: models.StatusCompleted, ServiceName: "Pijat"},
		{ID: 2, Status: models.StatusCancelled, ServiceName: "Facial"},
	}))
	require.NoError(t, db.CacheBookings(ctx, 3, []models.Booking{
		{ID: 2, Status: models.StatusCancelled, ServiceName: "Facial Premium"},
	}))

	all, err := db.CachedBookings(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ID)
	assert.Equal(t, "Facial Premium", all[0].ServiceName)

	done, err := db.CachedBookings(ctx, 3, models.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, int64(1), done[0].ID)

	none, err := db.CachedBookings(ctx, 4, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}
