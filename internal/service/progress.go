package service

import (
	"context"
	"strings"

	"layanan/internal/domain"
	"layanan/internal/events"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

// ProgressService posts the mitra's progress notes and drives the service timer
// on the partner side.
type ProgressService struct {
	api      domain.ProgressAPI
	timer    *TimerService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewProgressService(progressAPI domain.ProgressAPI, timer *TimerService, eventBus domain.EventPublisher, logger *zerolog.Logger) *ProgressService {
	return &ProgressService{
		api:      progressAPI,
		timer:    timer,
		eventBus: eventBus,
		logger:   nopLogger(logger),
	}
}

// Post sends a free-text progress note, with an optional proof photo.
func (s *ProgressService) Post(ctx context.Context, bookingID int64, text string, proof []byte, filename string) (*models.Booking, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("progress_tracking", "must not be empty")
	}
	return s.send(ctx, bookingID, models.ProgressUpdate{ProgressTracking: text, ProofImage: proof, ProofFilename: filename})
}

// StartService announces the start of the service window and starts the timer
// for the package descriptor, e.g. "Pijat Tradisional 90 menit".
func (s *ProgressService) StartService(ctx context.Context, bookingID int64, descriptor string) (*models.ServiceTimerState, error) {
	if _, err := s.send(ctx, bookingID, models.ProgressUpdate{ProgressTracking: models.ProgressServiceStarted}); err != nil {
		return nil, err
	}
	return s.timer.Start(ctx, bookingID, descriptor)
}

// Complete marks the booking Completed and stops its timer. A proof photo is
// attached when given.
func (s *ProgressService) Complete(ctx context.Context, bookingID int64, text string, proof []byte, filename string) (*models.Booking, error) {
	if strings.TrimSpace(text) == "" {
		text = "Layanan selesai"
	}
	booking, err := s.send(ctx, bookingID, models.ProgressUpdate{
		ProgressTracking: strings.TrimSpace(text),
		ProofImage:       proof,
		ProofFilename:    filename,
		Complete:         true,
	})
	if err != nil {
		return nil, err
	}
	if s.timer != nil {
		if err := s.timer.Stop(ctx, bookingID); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("failed to stop service timer")
		}
	}
	publish(s.eventBus, s.logger, events.EventBookingStatusChanged, events.BookingEventPayload{
		BookingID:  bookingID,
		FromStatus: string(models.StatusOnProgress),
		Status:     string(models.StatusCompleted),
		Progress:   text,
	})
	return booking, nil
}

func (s *ProgressService) send(ctx context.Context, bookingID int64, update models.ProgressUpdate) (*models.Booking, error) {
	if bookingID <= 0 {
		return nil, models.NewValidationError("booking_id", "must be positive")
	}
	booking, err := s.api.UpdateProgress(ctx, bookingID, update)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("progress update failed")
		return nil, err
	}
	s.logger.Info().
		Int64("booking_id", bookingID).
		Str("progress", update.ProgressTracking).
		Bool("complete", update.Complete).
		Bool("proof", len(update.ProofImage) > 0).
		Msg("progress updated")
	return booking, nil
}
