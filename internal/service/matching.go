package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"layanan/internal/api"
	"layanan/internal/domain"
	"layanan/internal/events"
	"layanan/internal/metrics"
	"layanan/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SearchState string

const (
	SearchIdle      SearchState = "Idle"
	SearchSearching SearchState = "Searching"
	SearchFound     SearchState = "Found"
	SearchFailed    SearchState = "Failed"
)

// FailureCause distinguishes why a search failed. Users see one failure screen.
type FailureCause string

const (
	CauseNone         FailureCause = ""
	CauseNoCandidates FailureCause = "no_candidates"
	CauseNetwork      FailureCause = "network"
	CauseRejected     FailureCause = "rejected"
)

var (
	ErrSearchInProgress = errors.New("search already in progress")
	ErrNoSearchSession  = errors.New("no search session")
)

// SearchSession is one matching attempt. It lives until confirm or abandon.
type SearchSession struct {
	ID         string                `json:"id"`
	Criteria   models.SearchCriteria `json:"criteria"`
	State      SearchState           `json:"state"`
	Candidates []models.Mitra        `json:"candidates,omitempty"`
	Cause      FailureCause          `json:"cause,omitempty"`
	Err        error                 `json:"-"`
	StartedAt  time.Time             `json:"started_at"`
}

// MatchingService finds and confirms a mitra for a new booking. Retries are
// single-shot and user-triggered.
type MatchingService struct {
	api       domain.SearchAPI
	eventBus  domain.EventPublisher
	logger    *zerolog.Logger
	animation time.Duration
	now       func() time.Time

	mu      sync.Mutex
	session *SearchSession
}

func NewMatchingService(searchAPI domain.SearchAPI, eventBus domain.EventPublisher, animation time.Duration, logger *zerolog.Logger) *MatchingService {
	if animation <= 0 {
		animation = models.DefaultSearchAnimation * time.Second
	}
	return &MatchingService{
		api:       searchAPI,
		eventBus:  eventBus,
		logger:    nopLogger(logger),
		animation: animation,
		now:       time.Now,
	}
}

// StartSearch issues one nearby-mitra search and returns the resulting session.
// A failed search is reported through the session state, not the error.
func (s *MatchingService) StartSearch(ctx context.Context, criteria models.SearchCriteria) (SearchSession, error) {
	if criteria.ServiceID <= 0 {
		return SearchSession{}, models.NewValidationError("service_id", "is required")
	}

	s.mu.Lock()
	if s.session != nil && s.session.State == SearchSearching {
		s.mu.Unlock()
		return SearchSession{}, ErrSearchInProgress
	}
	session := &SearchSession{
		ID:        uuid.NewString(),
		Criteria:  criteria,
		State:     SearchSearching,
		StartedAt: s.now(),
	}
	s.session = session
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", session.ID).
		Int64("service_id", criteria.ServiceID).
		Str("customer_gender", criteria.CustomerGender).
		Msg("mitra search started")

	candidates, err := s.api.SearchNearbyMitra(ctx, criteria)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != session {
		// abandoned or replaced while in flight
		return snapshotSession(session), nil
	}
	s.applyResult(session, candidates, err)
	return snapshotSession(session), nil
}

// Retry re-issues the last search from scratch.
func (s *MatchingService) Retry(ctx context.Context) (SearchSession, error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return SearchSession{}, ErrNoSearchSession
	}
	criteria := s.session.Criteria
	s.mu.Unlock()
	return s.StartSearch(ctx, criteria)
}

func (s *MatchingService) applyResult(session *SearchSession, candidates []models.Mitra, err error) {
	switch {
	case err != nil:
		session.State = SearchFailed
		session.Err = err
		session.Cause = CauseRejected
		if api.IsNetwork(err) {
			session.Cause = CauseNetwork
		}
	case len(candidates) == 0:
		session.State = SearchFailed
		session.Cause = CauseNoCandidates
	default:
		session.State = SearchFound
		session.Candidates = candidates
	}

	payload := events.SearchEventPayload{
		SessionID:  session.ID,
		ServiceID:  session.Criteria.ServiceID,
		Candidates: len(session.Candidates),
		Cause:      string(session.Cause),
	}
	if session.State == SearchFound {
		metrics.IncSearch("found", "")
		publish(s.eventBus, s.logger, events.EventSearchFound, payload)
		s.logger.Info().Str("session_id", session.ID).Int("candidates", len(candidates)).Msg("mitra found")
		return
	}
	metrics.IncSearch("failed", string(session.Cause))
	publish(s.eventBus, s.logger, events.EventSearchFailed, payload)
	s.logger.Warn().Err(err).Str("session_id", session.ID).Str("cause", string(session.Cause)).Msg("mitra search failed")
}

// Confirm creates the booking for a Found session and discards the session.
// The request carries no idempotency key.
func (s *MatchingService) Confirm(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return nil, ErrNoSearchSession
	}
	if session.State != SearchFound {
		state := session.State
		s.mu.Unlock()
		return nil, fmt.Errorf("confirm in state %s: %w", state, models.ErrInvalidState)
	}
	criteria := session.Criteria
	s.mu.Unlock()

	if req.ServiceID == 0 {
		req.ServiceID = criteria.ServiceID
	}
	if req.ServiceName == "" {
		req.ServiceName = criteria.ServiceName
	}
	if req.ServicePrice == 0 {
		req.ServicePrice = criteria.TotalPrice
	}
	if req.Category == "" {
		req.Category = criteria.ServiceCategory
	}
	if req.GenderPreference == "" {
		req.GenderPreference = criteria.CustomerGender
	}
	if req.Latitude == 0 && req.Longitude == 0 {
		req.Latitude = criteria.Location.Lat
		req.Longitude = criteria.Location.Lng
	}
	req.Status = models.StatusPending

	booking, err := s.api.CreateBooking(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("create booking failed")
		return nil, err
	}

	s.mu.Lock()
	if s.session == session {
		s.session = nil
	}
	s.mu.Unlock()

	publish(s.eventBus, s.logger, events.EventBookingCreated, events.BookingEventPayload{
		BookingID: booking.ID,
		Status:    string(booking.Status),
	})
	s.logger.Info().Int64("booking_id", booking.ID).Str("session_id", session.ID).Msg("booking created")
	return booking, nil
}

// Abandon discards the current session. An in-flight result is dropped.
func (s *MatchingService) Abandon() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// Session returns a copy of the current session.
func (s *MatchingService) Session() (SearchSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return SearchSession{State: SearchIdle}, false
	}
	return snapshotSession(s.session), true
}

// Progress is the animation percentage for the current session.
func (s *MatchingService) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return 0
	}
	return SearchProgress(s.now().Sub(s.session.StartedAt), s.animation)
}

func snapshotSession(session *SearchSession) SearchSession {
	out := *session
	out.Candidates = append([]models.Mitra(nil), session.Candidates...)
	return out
}
