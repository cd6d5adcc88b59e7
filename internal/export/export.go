package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"layanan/internal/models"
	"layanan/internal/service"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Riwayat"

// HistorySource lists cached bookings; an empty status lists all of them.
type HistorySource interface {
	CachedBookings(ctx context.Context, userID int64, status models.Status) ([]models.Booking, error)
}

// Exporter writes a customer's booking history to an xlsx file.
type Exporter struct {
	source HistorySource
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExporter(source HistorySource, dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{source: source, dir: dir, logger: logger, now: time.Now}
}

var headers = []string{"ID", "Tanggal", "Layanan", "Varian", "Kategori", "Harga", "Status", "Progres", "Alamat", "Alasan Batal"}

var fills = map[string]string{
	"warning": "#FFF2CC",
	"primary": "#DDEBF7",
	"success": "#E2EFDA",
	"danger":  "#F8CBAD",
	"medium":  "#EDEDED",
}

// Export writes the history of userID, filtered by status when set, and
// returns the file path.
func (e *Exporter) Export(ctx context.Context, userID int64, status models.Status) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	bookings, err := e.source.CachedBookings(ctx, userID, status)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	writeHeaders(f)

	styles := make(map[string]int)
	for i := range bookings {
		e.writeRow(f, i+2, &bookings[i], styles)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 18)
	_ = f.SetColWidth(sheetName, "C", "J", 22)
	if len(bookings) > 0 {
		_ = f.AutoFilter(sheetName, fmt.Sprintf("A1:J%d", len(bookings)+1), nil)
	}

	name := fmt.Sprintf("riwayat_%d_%s.xlsx", userID, e.now().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("rows", len(bookings)).Msg("history exported")
	return path, nil
}

func writeHeaders(f *excelize.File) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func (e *Exporter) writeRow(f *excelize.File, row int, b *models.Booking, styles map[string]int) {
	p := service.Present(b.Status, "", b.Category)
	progress := ""
	if b.ProgressTracking != "" {
		progress = service.Present(b.Status, b.ProgressTracking, b.Category).Label
	}

	reason := ""
	if b.CancelReason != nil {
		reason = *b.CancelReason
	}
	date := b.ScheduledAt
	if date == "" && !b.CreatedAt.IsZero() {
		date = b.CreatedAt.Format("2006-01-02 15:04")
	}

	values := []interface{}{b.ID, date, b.ServiceName, b.Variant, b.Category, b.ServicePrice, p.Label, progress, b.Address, reason}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}

	styleID, ok := styles[p.Color]
	if !ok {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{fills[p.Color]}, Pattern: 1},
		})
		if err != nil {
			e.logger.Error().Err(err).Msg("error creating status style")
			return
		}
		styles[p.Color] = id
		styleID = id
	}
	cell, _ := excelize.CoordinatesToCellName(7, row)
	_ = f.SetCellStyle(sheetName, cell, cell, styleID)
}
