package export

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"layanan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubSource struct {
	bookings   []models.Booking
	err        error
	lastStatus models.Status
}

func (s *stubSource) CachedBookings(_ context.Context, _ int64, status models.Status) ([]models.Booking, error) {
	s.lastStatus = status
	return s.bookings, s.err
}

func TestExport(t *testing.T) {
	reason := "berubah rencana"
	src := &stubSource{bookings: []models.Booking{
		{ID: 12, ServiceName: "Antar Barang", Category: models.CategoryGaspol, Status: models.StatusOnProgress, ProgressTracking: "Terapis menuju lokasi", ServicePrice: 25000},
		{ID: 11, ServiceName: "Pijat Tradisional", Variant: "60 menit", Status: models.StatusCancelled, CancelReason: &reason, ScheduledAt: "2026-10-01 09:00"},
	}}
	dir := t.TempDir()
	e := NewExporter(src, dir, nil)
	e.now = func() time.Time { return time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC) }

	path, err := e.Export(context.Background(), 7, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "riwayat_7_20261016_083000.xlsx"), path)
	assert.Equal(t, models.StatusCancelled, src.lastStatus)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])

	assert.Equal(t, "12", rows[1][0])
	assert.Equal(t, "Sedang Berlangsung", rows[1][6])
	assert.Equal(t, "Driver menuju lokasi", rows[1][7])

	assert.Equal(t, "2026-10-01 09:00", rows[2][1])
	assert.Equal(t, "Dibatalkan", rows[2][6])
	assert.Equal(t, "berubah rencana", rows[2][9])
}

func TestExport_Empty(t *testing.T) {
	path, err := NewExporter(&stubSource{}, t.TempDir(), nil).Export(context.Background(), 7, "")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExport_SourceError(t *testing.T) {
	_, err := NewExporter(&stubSource{err: errors.New("db closed")}, t.TempDir(), nil).Export(context.Background(), 7, "")
	assert.ErrorContains(t, err, "db closed")
}
