package service

import (
	"context"
	"strings"
	"time"

	"layanan/internal/domain"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

// SessionService persists the logged-in identity and the last device location.
type SessionService struct {
	store  domain.StateStore
	logger *zerolog.Logger
	now    func() time.Time
}

func NewSessionService(store domain.StateStore, logger *zerolog.Logger) *SessionService {
	return &SessionService{
		store:  store,
		logger: nopLogger(logger),
		now:    time.Now,
	}
}

// Save stores the identity returned by the (external) login flow.
func (s *SessionService) Save(ctx context.Context, identity models.SessionIdentity) error {
	identity.Role = strings.ToLower(strings.TrimSpace(identity.Role))
	if identity.UserID <= 0 {
		return models.NewValidationError("user_id", "must be positive")
	}
	if identity.Role != models.RoleCustomer && identity.Role != models.RoleMitra {
		return models.NewValidationError("role", "must be customer or mitra")
	}
	if err := s.store.SaveSession(ctx, identity); err != nil {
		s.logger.Error().Err(err).Int64("user_id", identity.UserID).Msg("failed to save session")
		return err
	}
	return nil
}

// Current returns the stored identity or models.ErrNotFound.
func (s *SessionService) Current(ctx context.Context) (*models.SessionIdentity, error) {
	identity, err := s.store.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, models.ErrNotFound
	}
	return identity, nil
}

func (s *SessionService) RememberLocation(ctx context.Context, coord models.Coord) error {
	return s.store.SaveLastLocation(ctx, models.LastLocation{Coord: coord, RecordedAt: s.now()})
}

// LastLocation returns the last known fix, falling back to the given default.
func (s *SessionService) LastLocation(ctx context.Context, fallback models.Coord) models.Coord {
	loc, err := s.store.GetLastLocation(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read last location")
		return fallback
	}
	if loc == nil || loc.Coord.IsZero() {
		return fallback
	}
	return loc.Coord
}
