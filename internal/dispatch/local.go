package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"layanan/internal/domain"
	"layanan/internal/events"
	"layanan/internal/models"
	"layanan/internal/worker"

	"github.com/rs/zerolog"
)

// SignalListener receives dispatch signals for a mitra until ctx ends.
type SignalListener interface {
	Listen(ctx context.Context, mitraID int64, handle func(Signal)) error
}

// LocalService is the in-process background service: it reports the mitra's
// location on an interval and collects dispatch signals.
type LocalService struct {
	reporter LocationReporter
	listener SignalListener
	eventBus domain.EventPublisher
	health   *HealthServer
	retry    worker.RetryPolicy
	logger   *zerolog.Logger
	signals  chan Signal

	mu         sync.Mutex
	cfg        NativeConfig
	configured bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewLocalService(reporter LocationReporter, listener SignalListener, eventBus domain.EventPublisher, retry worker.RetryPolicy, logger *zerolog.Logger) *LocalService {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LocalService{
		reporter: reporter,
		listener: listener,
		eventBus: eventBus,
		retry:    retry,
		logger:   logger,
		signals:  make(chan Signal, 32),
	}
}

// WithHealth advertises the running state on a gRPC health server.
func (s *LocalService) WithHealth(h *HealthServer) *LocalService {
	s.health = h
	return s
}

func (s *LocalService) Configure(ctx context.Context, cfg NativeConfig) error {
	if cfg.Identity.UserID <= 0 {
		return models.NewValidationError("identity", "mitra id is required")
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = models.DefaultReportInterval * time.Second
	}
	s.mu.Lock()
	s.cfg = cfg
	s.configured = true
	s.mu.Unlock()
	return nil
}

func (s *LocalService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return ErrNotInitialized
	}
	if s.cancel != nil {
		return nil
	}

	// the service outlives the request that started it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(runCtx, s.cfg.Identity.UserID, s.cfg.ReportInterval, done)
	if s.health != nil {
		s.health.SetRunning(true)
	}
	return nil
}

func (s *LocalService) run(ctx context.Context, mitraID int64, interval time.Duration, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	if s.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.listener.Listen(ctx, mitraID, s.deliver)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("dispatch listener stopped")
			}
		}()
	}

	s.report(ctx, mitraID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			s.report(ctx, mitraID)
		}
	}
}

func (s *LocalService) report(ctx context.Context, mitraID int64) {
	if s.reporter == nil {
		return
	}
	s.mu.Lock()
	coord := s.cfg.Location
	s.mu.Unlock()

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.reporter.Report(ctx, mitraID, coord)
	}, func(err error) bool { return !models.IsValidation(err) })
	if err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Int64("mitra_id", mitraID).Msg("location report failed")
	}
}

// deliver queues a signal; the oldest is dropped when nobody drains the queue.
func (s *LocalService) deliver(sig Signal) {
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventDispatchReceived, sig); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish dispatch signal")
		}
	}
	for {
		select {
		case s.signals <- sig:
			return
		default:
		}
		select {
		case dropped := <-s.signals:
			s.logger.Warn().Str("type", dropped.Type).Int64("booking_id", dropped.BookingID).Msg("dispatch signal dropped")
		default:
		}
	}
}

func (s *LocalService) Signals() <-chan Signal {
	return s.signals
}

func (s *LocalService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.health != nil {
		s.health.SetRunning(false)
	}
	return nil
}

// UpdateLocation changes the reported coordinate of the running service.
func (s *LocalService) UpdateLocation(ctx context.Context, coord models.Coord) error {
	s.mu.Lock()
	s.cfg.Location = coord
	s.mu.Unlock()
	return nil
}

func (s *LocalService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close releases the reporter when it holds a connection.
func (s *LocalService) Close() error {
	if c, ok := s.reporter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
