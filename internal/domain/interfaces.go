package domain

import (
	"context"

	"layanan/internal/models"
)

// BookingAPI is the part of the backend the lifecycle controller talks to.
type BookingAPI interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetMitra(ctx context.Context, id int64) (*models.Mitra, error)
	CancelBooking(ctx context.Context, id int64, reason string) error
	SubmitRating(ctx context.Context, rating models.Rating) error
}

// SearchAPI is the part of the backend the matching coordinator talks to.
type SearchAPI interface {
	SearchNearbyMitra(ctx context.Context, criteria models.SearchCriteria) ([]models.Mitra, error)
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
}

type HistoryAPI interface {
	ListBookings(ctx context.Context, userID int64, status models.Status) ([]models.Booking, error)
}

type ProgressAPI interface {
	UpdateProgress(ctx context.Context, bookingID int64, update models.ProgressUpdate) (*models.Booking, error)
}

type LocationAPI interface {
	ReportLocation(ctx context.Context, mitraID int64, coord models.Coord) error
}

// TimerStore persists ServiceTimerState keyed by booking id.
// GetTimer returns nil, nil when no record exists.
type TimerStore interface {
	GetTimer(ctx context.Context, bookingID int64) (*models.ServiceTimerState, error)
	SaveTimer(ctx context.Context, state *models.ServiceTimerState) error
	DeleteTimer(ctx context.Context, bookingID int64) error
}

// StateStore persists device-scoped blobs. Getters return nil, nil when empty.
type StateStore interface {
	GetLastLocation(ctx context.Context) (*models.LastLocation, error)
	SaveLastLocation(ctx context.Context, loc models.LastLocation) error
	GetSession(ctx context.Context) (*models.SessionIdentity, error)
	SaveSession(ctx context.Context, session models.SessionIdentity) error
}

// LocationSource provides the current device position.
type LocationSource interface {
	Current(ctx context.Context) (models.Coord, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
