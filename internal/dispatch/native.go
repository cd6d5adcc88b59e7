package dispatch

import (
	"context"
	"errors"
	"time"

	"layanan/internal/models"
)

var (
	ErrNativeUnavailable = errors.New("native background service unavailable")
	ErrPermissionDenied  = errors.New("background location permission denied")
	ErrNotInitialized    = errors.New("dispatch bridge not initialized")
	ErrBridgeDisposed    = errors.New("dispatch bridge disposed")
)

// NativeConfig is everything the background service needs to run.
type NativeConfig struct {
	APIBaseURL     string
	Identity       models.SessionIdentity
	Location       models.Coord
	ReportInterval time.Duration
}

// NativeModule is the handle of the platform background service.
type NativeModule interface {
	Configure(ctx context.Context, cfg NativeConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	UpdateLocation(ctx context.Context, coord models.Coord) error
	Running() bool
}

// SignalSource is implemented by native modules that surface dispatch signals.
type SignalSource interface {
	Signals() <-chan Signal
}

// Signal is one dispatch event pushed to a mitra, e.g. a new booking offer.
type Signal struct {
	Type       string    `json:"type"`
	BookingID  int64     `json:"booking_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Permissions asks the platform for background location access.
type Permissions interface {
	RequestBackground(ctx context.Context) (bool, error)
}

// AlwaysGranted is used where the platform has no permission dialog.
type AlwaysGranted struct{}

func (AlwaysGranted) RequestBackground(context.Context) (bool, error) { return true, nil }
