package repository

import (
	"context"
	"sync"

	"layanan/internal/models"
)

type MemoryTimerStore struct {
	timers sync.Map // map[int64]models.ServiceTimerState
}

func NewMemoryTimerStore() *MemoryTimerStore {
	return &MemoryTimerStore{}
}

func (r *MemoryTimerStore) GetTimer(ctx context.Context, bookingID int64) (*models.ServiceTimerState, error) {
	val, ok := r.timers.Load(bookingID)
	if !ok {
		return nil, nil
	}
	state := val.(models.ServiceTimerState)
	return &state, nil
}

func (r *MemoryTimerStore) SaveTimer(ctx context.Context, state *models.ServiceTimerState) error {
	if state == nil {
		return nil
	}
	r.timers.Store(state.BookingID, *state)
	return nil
}

func (r *MemoryTimerStore) DeleteTimer(ctx context.Context, bookingID int64) error {
	r.timers.Delete(bookingID)
	return nil
}

type MemoryStateStore struct {
	mu       sync.RWMutex
	location *models.LastLocation
	session  *models.SessionIdentity
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (r *MemoryStateStore) GetLastLocation(ctx context.Context) (*models.LastLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.location == nil {
		return nil, nil
	}
	loc := *r.location
	return &loc, nil
}

func (r *MemoryStateStore) SaveLastLocation(ctx context.Context, loc models.LastLocation) error {
	r.mu.Lock()
	r.location = &loc
	r.mu.Unlock()
	return nil
}

func (r *MemoryStateStore) GetSession(ctx context.Context) (*models.SessionIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return nil, nil
	}
	s := *r.session
	return &s, nil
}

func (r *MemoryStateStore) SaveSession(ctx context.Context, session models.SessionIdentity) error {
	r.mu.Lock()
	r.session = &session
	r.mu.Unlock()
	return nil
}
