package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"layanan/internal/domain"
	"layanan/internal/events"
	"layanan/internal/metrics"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

var packageMinutes = regexp.MustCompile(`(?i)(\d+)\s*menit`)

// PackageDuration parses "<N> menit" out of a package descriptor such as
// "Paket Relaksasi 90 menit". It returns 0 when nothing matches.
func PackageDuration(descriptor string) time.Duration {
	m := packageMinutes.FindStringSubmatch(descriptor)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Minute
}

// TimerReading is what a consumer sees when (re)attaching to a service timer.
type TimerReading struct {
	BookingID int64
	Found     bool
	Remaining time.Duration
	Running   bool
	Finished  bool
}

// TimerService owns the persisted countdown of a booking's active service window.
// The stored start timestamp is the only authority; in-memory ticks are display only.
type TimerService struct {
	store    domain.TimerStore
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
	tick     time.Duration
	// resync is how many ticks Watch counts locally before re-reading the store.
	resync   int

	mu    sync.Mutex
	stops map[int64]chan struct{}
}

func NewTimerService(store domain.TimerStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *TimerService {
	return &TimerService{
		store:    store,
		eventBus: eventBus,
		logger:   nopLogger(logger),
		now:      time.Now,
		tick:     time.Second,
		resync:   30,
		stops:    make(map[int64]chan struct{}),
	}
}

// Start persists a new running timer for the booking, replacing any previous one.
func (s *TimerService) Start(ctx context.Context, bookingID int64, descriptor string) (*models.ServiceTimerState, error) {
	total := PackageDuration(descriptor)
	state := &models.ServiceTimerState{
		BookingID:    bookingID,
		StartedAt:    s.now(),
		TotalSeconds: int64(total / time.Second),
		IsRunning:    true,
	}
	if err := s.store.SaveTimer(ctx, state); err != nil {
		return nil, fmt.Errorf("start timer: %w", err)
	}
	metrics.IncTimer("started")
	s.logger.Info().
		Int64("booking_id", bookingID).
		Int64("total_seconds", state.TotalSeconds).
		Msg("service timer started")
	return state, nil
}

// Resume reconstructs the remaining time from the wall clock. An expired timer
// is deleted and reported as finished.
func (s *TimerService) Resume(ctx context.Context, bookingID int64) (TimerReading, error) {
	reading := TimerReading{BookingID: bookingID}
	state, err := s.store.GetTimer(ctx, bookingID)
	if err != nil {
		return reading, fmt.Errorf("resume timer: %w", err)
	}
	if state == nil {
		return reading, nil
	}
	reading.Found = true
	reading.Remaining = state.Remaining(s.now())
	if reading.Remaining > 0 {
		reading.Running = true
		return reading, nil
	}

	reading.Finished = true
	if err := s.store.DeleteTimer(ctx, bookingID); err != nil {
		return reading, fmt.Errorf("delete finished timer: %w", err)
	}
	metrics.IncTimer("finished")
	publish(s.eventBus, s.logger, events.EventTimerFinished, events.BookingEventPayload{BookingID: bookingID})
	s.logger.Info().Int64("booking_id", bookingID).Msg("service timer finished")
	return reading, nil
}

// Watch calls onTick once per tick with a locally decremented reading until the
// timer finishes, is stopped, or ctx is done. The reading is rebuilt from the
// store whenever the local counter runs out and every resync ticks, so a timer
// stopped elsewhere ends the watch with Found=false.
func (s *TimerService) Watch(ctx context.Context, bookingID int64, onTick func(TimerReading)) error {
	stopped := s.stopSignal(bookingID)

	reading, err := s.Resume(ctx, bookingID)
	if err != nil {
		return err
	}
	onTick(reading)
	if !reading.Running {
		return nil
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	remaining := reading.Remaining
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			onTick(TimerReading{BookingID: bookingID})
			return nil
		case <-ticker.C:
			ticks++
			remaining -= time.Second
			if remaining > 0 && (s.resync <= 0 || ticks%s.resync != 0) {
				onTick(TimerReading{BookingID: bookingID, Found: true, Remaining: remaining, Running: true})
				continue
			}
			reading, err := s.Resume(ctx, bookingID)
			if err != nil {
				return err
			}
			onTick(reading)
			if !reading.Running {
				return nil
			}
			remaining = reading.Remaining
		}
	}
}

// stopSignal returns the channel closed by the next Stop of bookingID.
func (s *TimerService) stopSignal(bookingID int64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.stops[bookingID]
	if !ok {
		ch = make(chan struct{})
		s.stops[bookingID] = ch
	}
	return ch
}

// Stop deletes the timer. A stopped timer cannot be resumed.
func (s *TimerService) Stop(ctx context.Context, bookingID int64) error {
	if err := s.store.DeleteTimer(ctx, bookingID); err != nil {
		return fmt.Errorf("stop timer: %w", err)
	}

	s.mu.Lock()
	if ch, ok := s.stops[bookingID]; ok {
		close(ch)
		delete(s.stops, bookingID)
	}
	s.mu.Unlock()

	metrics.IncTimer("stopped")
	s.logger.Debug().Int64("booking_id", bookingID).Msg("service timer stopped")
	return nil
}
