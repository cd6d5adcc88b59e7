package repository

import (
	"context"
	"sync/atomic"
	"time"

	"layanan/internal/domain"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// failover tracks whether the primary backend is considered down and when it
// was last probed.
type failover struct {
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

// usePrimary reports whether the next call should go to the primary.
func (f *failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	return f.now().Sub(time.Unix(0, f.lastCheck.Load())) > recoveryInterval
}

func (f *failover) markDown(err error) {
	if !f.isDown.Load() {
		f.logger.Error().Err(err).Msg("primary store failed, using fallback")
	}
	f.isDown.Store(true)
	f.lastCheck.Store(f.now().UnixNano())
}

func (f *failover) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary store recovered")
	}
}

// FailoverTimerStore writes to a primary store (redis) and falls back to a
// secondary (memory) while the primary is failing.
type FailoverTimerStore struct {
	failover
	primary  domain.TimerStore
	fallback domain.TimerStore
}

func NewFailoverTimerStore(primary, fallback domain.TimerStore, logger *zerolog.Logger) *FailoverTimerStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverTimerStore{
		failover: failover{logger: logger, now: time.Now},
		primary:  primary,
		fallback: fallback,
	}
}

func (r *FailoverTimerStore) GetTimer(ctx context.Context, bookingID int64) (*models.ServiceTimerState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetTimer(ctx, bookingID)
		if err == nil {
			r.markUp()
			return state, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetTimer(ctx, bookingID)
}

func (r *FailoverTimerStore) SaveTimer(ctx context.Context, state *models.ServiceTimerState) error {
	if r.usePrimary() {
		err := r.primary.SaveTimer(ctx, state)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveTimer(ctx, state)
}

func (r *FailoverTimerStore) DeleteTimer(ctx context.Context, bookingID int64) error {
	// the record may exist in either backend
	fallbackErr := r.fallback.DeleteTimer(ctx, bookingID)
	if r.usePrimary() {
		err := r.primary.DeleteTimer(ctx, bookingID)
		if err == nil {
			r.markUp()
			return fallbackErr
		}
		r.markDown(err)
	}
	return fallbackErr
}

// FailoverStateStore is the StateStore counterpart of FailoverTimerStore.
type FailoverStateStore struct {
	failover
	primary  domain.StateStore
	fallback domain.StateStore
}

func NewFailoverStateStore(primary, fallback domain.StateStore, logger *zerolog.Logger) *FailoverStateStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateStore{
		failover: failover{logger: logger, now: time.Now},
		primary:  primary,
		fallback: fallback,
	}
}

func (r *FailoverStateStore) GetLastLocation(ctx context.Context) (*models.LastLocation, error) {
	if r.usePrimary() {
		loc, err := r.primary.GetLastLocation(ctx)
		if err == nil {
			r.markUp()
			return loc, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetLastLocation(ctx)
}

func (r *FailoverStateStore) SaveLastLocation(ctx context.Context, loc models.LastLocation) error {
	if r.usePrimary() {
		err := r.primary.SaveLastLocation(ctx, loc)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveLastLocation(ctx, loc)
}

func (r *FailoverStateStore) GetSession(ctx context.Context) (*models.SessionIdentity, error) {
	if r.usePrimary() {
		s, err := r.primary.GetSession(ctx)
		if err == nil {
			r.markUp()
			return s, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx)
}

func (r *FailoverStateStore) SaveSession(ctx context.Context, session models.SessionIdentity) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session)
}
