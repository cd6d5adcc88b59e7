package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"layanan/internal/domain"
	"layanan/internal/events"
	"layanan/internal/metrics"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

var ErrNoTrackedBooking = errors.New("no tracked booking")

// Snapshot is the latest reconciled view of the tracked booking. After a failed
// fetch the previous booking stays in place and Stale is set.
type Snapshot struct {
	Booking      *models.Booking
	Mitra        *models.Mitra
	Presentation Presentation
	Err          error
	Stale        bool
	FetchedAt    time.Time
}

// Actions are the user actions enabled for the current booking state.
type Actions struct {
	CanCancel bool `json:"can_cancel"`
	CanRate   bool `json:"can_rate"`
}

// LifecycleService keeps one displayed booking in sync with the backend by
// polling and gates cancel and rating by state.
//
// Responses are applied through a fence: the request must be newer than the
// last applied one, its version or updated_at must not be older, and the status
// change must be allowed. Terminal states therefore never regress.
type LifecycleService struct {
	api      domain.BookingAPI
	state    domain.StateStore
	timer    *TimerService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	bookingID  int64
	booking    *models.Booking
	mitra      *models.Mitra
	lastErr    error
	fetchedAt  time.Time
	issuedSeq  uint64
	appliedSeq uint64
	rated      bool
	home       chan struct{}
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

func NewLifecycleService(
	bookingAPI domain.BookingAPI,
	state domain.StateStore,
	timer *TimerService,
	eventBus domain.EventPublisher,
	interval time.Duration,
	logger *zerolog.Logger,
) *LifecycleService {
	if interval <= 0 {
		interval = models.DefaultPollInterval * time.Second
	}
	return &LifecycleService{
		api:      bookingAPI,
		state:    state,
		timer:    timer,
		eventBus: eventBus,
		logger:   nopLogger(logger),
		interval: interval,
		now:      time.Now,
		home:     make(chan struct{}),
	}
}

// Track starts polling a booking, replacing any previous loop. The first fetch
// happens immediately. Polling continues in terminal states until Stop.
func (s *LifecycleService) Track(ctx context.Context, bookingID int64) error {
	if bookingID <= 0 {
		return models.NewValidationError("booking_id", "must be positive")
	}
	s.stopLoop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.bookingID = bookingID
	s.booking = nil
	s.mitra = nil
	s.lastErr = nil
	s.fetchedAt = time.Time{}
	s.rated = false
	s.home = make(chan struct{})
	s.cancelLoop = cancel
	s.loopDone = done
	s.mu.Unlock()

	s.logger.Info().Int64("booking_id", bookingID).Dur("interval", s.interval).Msg("tracking booking")
	go s.loop(loopCtx, bookingID, done)
	return nil
}

func (s *LifecycleService) loop(ctx context.Context, bookingID int64, done chan struct{}) {
	defer close(done)

	_ = s.fetch(ctx, bookingID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.fetch(ctx, bookingID)
		}
	}
}

// Stop ends polling. The last snapshot stays readable.
func (s *LifecycleService) Stop() {
	s.stopLoop()
}

func (s *LifecycleService) stopLoop() {
	s.mu.Lock()
	cancel, done := s.cancelLoop, s.loopDone
	s.cancelLoop, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Refresh fetches the tracked booking once, outside the polling cadence.
func (s *LifecycleService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	id := s.bookingID
	s.mu.Unlock()
	if id == 0 {
		return ErrNoTrackedBooking
	}
	return s.fetch(ctx, id)
}

func (s *LifecycleService) fetch(ctx context.Context, bookingID int64) error {
	s.mu.Lock()
	if s.bookingID != bookingID {
		s.mu.Unlock()
		return ErrNoTrackedBooking
	}
	s.issuedSeq++
	seq := s.issuedSeq
	s.mu.Unlock()

	booking, err := s.api.GetBooking(ctx, bookingID)
	var mitra *models.Mitra
	if err == nil && booking.HasMitra() {
		m, mErr := s.api.GetMitra(ctx, *booking.MitraID)
		if mErr != nil {
			s.logger.Warn().Err(mErr).Int64("mitra_id", *booking.MitraID).Msg("mitra detail fetch failed")
		} else {
			mitra = m
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if s.bookingID != bookingID {
		s.mu.Unlock()
		return ErrNoTrackedBooking
	}
	if err != nil {
		if seq > s.appliedSeq {
			s.lastErr = err
		}
		s.mu.Unlock()
		metrics.IncPoll("error")
		s.logger.Warn().Err(err).Int64("booking_id", bookingID).Uint64("request_seq", seq).Msg("booking fetch failed")
		return err
	}
	prev, applied := s.reconcile(seq, booking, mitra)
	s.mu.Unlock()

	if !applied {
		return nil
	}
	metrics.IncPoll("applied")
	switch {
	case prev != nil && prev.Status != booking.Status:
		s.onStatusChanged(ctx, prev.Status, booking)
	case prev == nil && booking.Status.IsTerminal():
		// already over when first seen, e.g. after a restart
		s.stopTimer(ctx, booking.ID)
	}
	return nil
}

// reconcile applies a response under s.mu and reports the booking it replaced.
func (s *LifecycleService) reconcile(seq uint64, booking *models.Booking, mitra *models.Mitra) (*models.Booking, bool) {
	logger := s.logger.With().Int64("booking_id", booking.ID).Uint64("request_seq", seq).Logger()

	if seq <= s.appliedSeq {
		metrics.IncPoll("stale")
		logger.Debug().Uint64("applied_seq", s.appliedSeq).Msg("dropping response to older request")
		return nil, false
	}

	current := s.booking
	if current != nil {
		if booking.Version > 0 && current.Version > 0 && booking.Version < current.Version {
			metrics.IncPoll("stale")
			logger.Debug().Int64("version", booking.Version).Int64("applied_version", current.Version).Msg("dropping older booking version")
			return nil, false
		}
		if !booking.UpdatedAt.IsZero() && !current.UpdatedAt.IsZero() && booking.UpdatedAt.Before(current.UpdatedAt) {
			metrics.IncPoll("stale")
			logger.Debug().Time("updated_at", booking.UpdatedAt).Msg("dropping older booking update")
			return nil, false
		}
		if booking.Status != current.Status && !models.CanTransition(current.Status, booking.Status) {
			metrics.IncPoll("rejected")
			logger.Warn().
				Str("from_status", string(current.Status)).
				Str("status", string(booking.Status)).
				Msg("ignoring disallowed status transition")
			return nil, false
		}
	}

	s.appliedSeq = seq
	s.booking = booking
	switch {
	case !booking.HasMitra():
		s.mitra = nil
	case mitra != nil:
		s.mitra = mitra
	case s.mitra != nil && s.mitra.ID != *booking.MitraID:
		s.mitra = nil
	}
	s.lastErr = nil
	s.fetchedAt = s.now()
	return current, true
}

func (s *LifecycleService) onStatusChanged(ctx context.Context, from models.Status, booking *models.Booking) {
	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		FromStatus: string(from),
		Status:     string(booking.Status),
		Progress:   booking.ProgressTracking,
	}
	if booking.HasMitra() {
		payload.MitraID = *booking.MitraID
	}
	publish(s.eventBus, s.logger, events.EventBookingStatusChanged, payload)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("from_status", string(from)).
		Str("status", string(booking.Status)).
		Msg("booking status changed")

	if booking.Status.IsTerminal() {
		s.stopTimer(ctx, booking.ID)
	}
}

func (s *LifecycleService) stopTimer(ctx context.Context, bookingID int64) {
	if s.timer == nil {
		return
	}
	if err := s.timer.Stop(ctx, bookingID); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("failed to stop service timer")
	}
}

// Snapshot returns the current view of the tracked booking.
func (s *LifecycleService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Err: s.lastErr, FetchedAt: s.fetchedAt}
	if s.booking != nil {
		b := *s.booking
		snap.Booking = &b
		snap.Presentation = Present(b.Status, b.ProgressTracking, b.Category)
		snap.Stale = s.lastErr != nil
	}
	if s.mitra != nil {
		m := *s.mitra
		snap.Mitra = &m
	}
	return snap
}

// StatusSnapshot is the JSON view served by the local status endpoint.
func (s *LifecycleService) StatusSnapshot(ctx context.Context) any {
	snap := s.Snapshot()
	out := map[string]any{
		"booking":      snap.Booking,
		"mitra":        snap.Mitra,
		"presentation": snap.Presentation,
		"stale":        snap.Stale,
		"actions":      s.Actions(),
	}
	if !snap.FetchedAt.IsZero() {
		out["fetched_at"] = snap.FetchedAt
	}
	if snap.Err != nil {
		out["error"] = snap.Err.Error()
	}
	return out
}

func (s *LifecycleService) Actions() Actions {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booking == nil {
		return Actions{}
	}
	return Actions{
		CanCancel: !s.booking.Status.IsTerminal(),
		CanRate:   s.booking.Status == models.StatusCompleted && s.booking.HasMitra() && !s.rated,
	}
}

// Home is closed after a successful cancel, telling the UI to return home.
func (s *LifecycleService) Home() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.home
}

// Cancel cancels the tracked booking. A blank reason is rejected before any
// request. On success all local state for the booking is discarded.
func (s *LifecycleService) Cancel(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.NewValidationError("cancel_reason", "must not be empty")
	}

	s.mu.Lock()
	id := s.bookingID
	var status models.Status
	if s.booking != nil {
		status = s.booking.Status
	}
	s.mu.Unlock()

	if id == 0 {
		return ErrNoTrackedBooking
	}
	if status.IsTerminal() {
		return fmt.Errorf("cancel booking in status %s: %w", status, models.ErrInvalidState)
	}

	if err := s.api.CancelBooking(ctx, id, reason); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", id).Msg("cancel booking failed")
		return err
	}

	s.stopLoop()

	s.mu.Lock()
	if s.bookingID == id {
		s.bookingID = 0
		s.booking = nil
		s.mitra = nil
		s.lastErr = nil
		s.fetchedAt = time.Time{}
		close(s.home)
	}
	s.mu.Unlock()

	s.stopTimer(ctx, id)

	publish(s.eventBus, s.logger, events.EventBookingCancelled, events.BookingEventPayload{
		BookingID:  id,
		FromStatus: string(status),
		Status:     string(models.StatusCancelled),
		Reason:     reason,
	})
	publish(s.eventBus, s.logger, events.EventReturnHome, events.BookingEventPayload{BookingID: id})
	s.logger.Info().Int64("booking_id", id).Msg("booking cancelled")
	return nil
}

// SubmitRating rates the mitra of a completed booking. Customer name and phone
// come from the stored session identity.
func (s *LifecycleService) SubmitRating(ctx context.Context, score int, mitraID int64, review string) error {
	s.mu.Lock()
	booking := s.booking
	rated := s.rated
	s.mu.Unlock()

	if booking == nil {
		return ErrNoTrackedBooking
	}
	if booking.Status != models.StatusCompleted {
		return fmt.Errorf("rate booking in status %s: %w", booking.Status, models.ErrInvalidState)
	}
	if rated {
		return fmt.Errorf("booking %d already rated: %w", booking.ID, models.ErrInvalidState)
	}
	if mitraID <= 0 || !booking.HasMitra() || *booking.MitraID != mitraID {
		return models.NewValidationError("mitra_id", "is not the mitra of this booking")
	}
	if score < models.MinRating || score > models.MaxRating {
		return models.NewValidationError("rating", fmt.Sprintf("must be between %d and %d", models.MinRating, models.MaxRating))
	}

	rating := models.Rating{MitraID: mitraID, Rating: score, ReviewText: strings.TrimSpace(review)}
	if s.state != nil {
		session, err := s.state.GetSession(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("session identity unavailable for rating")
		} else if session != nil {
			rating.CustomerName = session.Name
			rating.CustomerPhone = session.Phone
		}
	}

	if err := s.api.SubmitRating(ctx, rating); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("submit rating failed")
		return err
	}

	s.mu.Lock()
	if s.booking != nil && s.booking.ID == booking.ID {
		s.rated = true
	}
	s.mu.Unlock()

	publish(s.eventBus, s.logger, events.EventRatingSubmitted, events.BookingEventPayload{
		BookingID: booking.ID,
		MitraID:   mitraID,
		Status:    string(booking.Status),
	})
	return nil
}
