package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"layanan/internal/domain"
	"layanan/internal/metrics"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

// HealthProbe checks an out-of-process native daemon.
type HealthProbe interface {
	Check(ctx context.Context) (string, error)
}

// Health reports what the bridge knows, independent of whether the service runs.
type Health struct {
	NativePresent bool   `json:"native_present"`
	IdentityKnown bool   `json:"identity_known"`
	LocationKnown bool   `json:"location_known"`
	Running       bool   `json:"running"`
	DaemonStatus  string `json:"daemon_status,omitempty"`
}

type BridgeOptions struct {
	APIBaseURL     string
	DefaultCoord   models.Coord
	ReportInterval time.Duration
}

// Bridge is the facade over the native background dispatch service. It is
// constructed and owned by the caller: Init, Start, Stop, Dispose.
type Bridge struct {
	native   NativeModule
	perms    Permissions
	location domain.LocationSource
	state    domain.StateStore
	probe    HealthProbe
	opts     BridgeOptions
	logger   *zerolog.Logger

	mu            sync.Mutex
	identity      *models.SessionIdentity
	coord         models.Coord
	locationKnown bool
	configured    bool
	disposed      bool
}

// NewBridge builds a bridge. native may be nil when the platform has no
// background service; every call then degrades softly.
func NewBridge(native NativeModule, perms Permissions, location domain.LocationSource, state domain.StateStore, opts BridgeOptions, logger *zerolog.Logger) *Bridge {
	if perms == nil {
		perms = AlwaysGranted{}
	}
	if opts.DefaultCoord.IsZero() {
		opts.DefaultCoord = models.Coord{Lat: models.DefaultLatitude, Lng: models.DefaultLongitude}
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = models.DefaultReportInterval * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	metrics.SetBridgeFlag("native_present", native != nil)
	return &Bridge{
		native:   native,
		perms:    perms,
		location: location,
		state:    state,
		opts:     opts,
		logger:   logger,
	}
}

// WithProbe attaches a health probe for an out-of-process daemon.
func (b *Bridge) WithProbe(p HealthProbe) *Bridge {
	b.probe = p
	return b
}

// Init configures the native side. Missing module, permission or location fix
// never fail the call: the bridge logs and falls back to the default coordinate.
func (b *Bridge) Init(ctx context.Context, identity models.SessionIdentity, coord *models.Coord) error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return ErrBridgeDisposed
	}
	b.mu.Unlock()

	resolved, known := b.resolveLocation(ctx, coord)

	b.mu.Lock()
	b.identity = &identity
	b.coord = resolved
	b.locationKnown = known
	b.mu.Unlock()

	logger := b.logger.With().Int64("mitra_id", identity.UserID).Logger()
	if !known {
		logger.Warn().Float64("latitude", resolved.Lat).Float64("longitude", resolved.Lng).Msg("no location fix, using default coordinate")
	}
	if b.native == nil {
		logger.Warn().Err(ErrNativeUnavailable).Msg("background dispatch disabled")
		return nil
	}

	err := b.native.Configure(ctx, NativeConfig{
		APIBaseURL:     b.opts.APIBaseURL,
		Identity:       identity,
		Location:       resolved,
		ReportInterval: b.opts.ReportInterval,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("native module configure failed")
		return nil
	}

	b.mu.Lock()
	b.configured = true
	b.mu.Unlock()
	logger.Info().Msg("background dispatch configured")
	return nil
}

func (b *Bridge) resolveLocation(ctx context.Context, coord *models.Coord) (models.Coord, bool) {
	if coord != nil && !coord.IsZero() && validCoord(*coord) {
		return *coord, true
	}
	if b.location != nil {
		c, err := b.location.Current(ctx)
		if err == nil && !c.IsZero() && validCoord(c) {
			return c, true
		}
		if err != nil {
			b.logger.Debug().Err(err).Msg("location source unavailable")
		}
	}
	if b.state != nil {
		loc, err := b.state.GetLastLocation(ctx)
		if err == nil && loc != nil && !loc.Coord.IsZero() {
			return loc.Coord, true
		}
	}
	return b.opts.DefaultCoord, false
}

// Start asks for background permission and starts the native service. A denied
// permission returns ErrPermissionDenied for the caller to retry.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	disposed, configured := b.disposed, b.configured
	b.mu.Unlock()

	if disposed {
		return ErrBridgeDisposed
	}
	if b.native == nil {
		return ErrNativeUnavailable
	}

	granted, err := b.perms.RequestBackground(ctx)
	if err != nil {
		return fmt.Errorf("request permission: %w", err)
	}
	if !granted {
		b.logger.Warn().Msg("background permission denied")
		return ErrPermissionDenied
	}
	if !configured {
		return ErrNotInitialized
	}

	if err := b.native.Start(ctx); err != nil {
		return fmt.Errorf("start native service: %w", err)
	}
	metrics.SetBridgeFlag("running", true)
	b.logger.Info().Msg("background dispatch started")
	return nil
}

func (b *Bridge) Stop(ctx context.Context) error {
	if b.native == nil {
		return nil
	}
	if err := b.native.Stop(ctx); err != nil {
		return fmt.Errorf("stop native service: %w", err)
	}
	metrics.SetBridgeFlag("running", false)
	b.logger.Info().Msg("background dispatch stopped")
	return nil
}

// UpdateLocation reconfigures the running service without a restart and
// persists the fix as the last known location.
func (b *Bridge) UpdateLocation(ctx context.Context, lat, lng float64) error {
	coord := models.Coord{Lat: lat, Lng: lng}
	if !validCoord(coord) {
		return models.NewValidationError("location", "out of range")
	}

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return ErrBridgeDisposed
	}
	b.coord = coord
	b.locationKnown = true
	configured := b.configured
	b.mu.Unlock()

	if b.state != nil {
		if err := b.state.SaveLastLocation(ctx, models.LastLocation{Coord: coord, RecordedAt: time.Now()}); err != nil {
			b.logger.Warn().Err(err).Msg("failed to persist last location")
		}
	}
	if b.native == nil || !configured {
		return nil
	}
	if err := b.native.UpdateLocation(ctx, coord); err != nil {
		b.logger.Warn().Err(err).Msg("native location update failed")
	}
	return nil
}

func (b *Bridge) Health(ctx context.Context) Health {
	b.mu.Lock()
	h := Health{
		NativePresent: b.native != nil,
		IdentityKnown: b.identity != nil && b.identity.UserID > 0,
		LocationKnown: b.locationKnown,
	}
	b.mu.Unlock()

	if b.native != nil {
		h.Running = b.native.Running()
	}
	if b.probe != nil {
		status, err := b.probe.Check(ctx)
		if err != nil {
			status = "UNREACHABLE"
			b.logger.Debug().Err(err).Msg("native daemon probe failed")
		}
		h.DaemonStatus = status
	}
	return h
}

// StatusSnapshot is the JSON view served by the local status endpoint.
func (b *Bridge) StatusSnapshot(ctx context.Context) any {
	return b.Health(ctx)
}

// Events returns dispatch signals received while in background, or nil when
// the native module does not surface them.
func (b *Bridge) Events() <-chan Signal {
	if src, ok := b.native.(SignalSource); ok {
		return src.Signals()
	}
	return nil
}

// Dispose stops the service and releases the native handle. The bridge cannot
// be used afterwards.
func (b *Bridge) Dispose(ctx context.Context) error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil
	}
	b.disposed = true
	b.mu.Unlock()

	var errs []error
	if err := b.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if c, ok := b.native.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
