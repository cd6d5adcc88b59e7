package worker

import (
	"context"
	"errors"
	"time"

	"layanan/internal/domain"
	"layanan/internal/models"

	"github.com/rs/zerolog"
)

// HistoryCache stores the latest booking history for offline listing and export.
type HistoryCache interface {
	CacheBookings(ctx context.Context, userID int64, bookings []models.Booking) error
}

var historyStatuses = []models.Status{
	models.StatusPending,
	models.StatusOnProgress,
	models.StatusCompleted,
	models.StatusCancelled,
}

// HistoryWorker periodically copies a user's bookings from the backend into
// the local cache.
type HistoryWorker struct {
	api         domain.HistoryAPI
	cache       HistoryCache
	userID      int64
	interval    time.Duration
	retryPolicy RetryPolicy
	logger      *zerolog.Logger
}

func NewHistoryWorker(historyAPI domain.HistoryAPI, cache HistoryCache, userID int64, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *HistoryWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HistoryWorker{
		api:         historyAPI,
		cache:       cache,
		userID:      userID,
		interval:    interval,
		retryPolicy: retry,
		logger:      logger,
	}
}

// Start syncs immediately and then on every interval until ctx is done.
func (w *HistoryWorker) Start(ctx context.Context) {
	w.logger.Info().Int64("user_id", w.userID).Dur("interval", w.interval).Msg("history worker started")
	defer w.logger.Info().Msg("history worker stopped")

	if err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn().Err(err).Msg("history sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn().Err(err).Msg("history sync failed")
			}
		}
	}
}

// SyncOnce fetches every status list and caches what arrived. Statuses that
// still fail after retries are reported together.
func (w *HistoryWorker) SyncOnce(ctx context.Context) error {
	var errs []error
	total := 0
	for _, status := range historyStatuses {
		var bookings []models.Booking
		err := w.retryPolicy.Do(ctx, func(ctx context.Context) error {
			var err error
			bookings, err = w.api.ListBookings(ctx, w.userID, status)
			return err
		}, isTransient)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.cache.CacheBookings(ctx, w.userID, bookings); err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(bookings)
	}
	w.logger.Debug().Int64("user_id", w.userID).Int("bookings", total).Msg("history synced")
	return errors.Join(errs...)
}

func isTransient(err error) bool {
	return !errors.Is(err, models.ErrNotFound) && !errors.Is(err, context.Canceled)
}
