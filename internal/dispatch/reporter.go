package dispatch

import (
	"context"
	"errors"

	"layanan/internal/domain"
	"layanan/internal/models"
)

// LocationReporter delivers one location report of a mitra.
type LocationReporter interface {
	Report(ctx context.Context, mitraID int64, coord models.Coord) error
}

// HTTPReporter posts reports to the backend API.
type HTTPReporter struct {
	API domain.LocationAPI
}

func (r HTTPReporter) Report(ctx context.Context, mitraID int64, coord models.Coord) error {
	return r.API.ReportLocation(ctx, mitraID, coord)
}

// MultiReporter fans a report out to every reporter and joins their errors.
type MultiReporter []LocationReporter

func (m MultiReporter) Report(ctx context.Context, mitraID int64, coord models.Coord) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, mitraID, coord); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every reporter holding a connection.
func (m MultiReporter) Close() error {
	var errs []error
	for _, r := range m {
		if c, ok := r.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
