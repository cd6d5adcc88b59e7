package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"layanan/internal/api"
	"layanan/internal/events"
	"layanan/internal/models"
	"layanan/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	booking *models.Booking
	err     error
	delay   time.Duration
}

// fakeBookingAPI replays scripted GetBooking responses in call order, then
// keeps returning the last booking it served.
type fakeBookingAPI struct {
	mu        sync.Mutex
	responses []scripted
	last      *models.Booking
	mitras    map[int64]*models.Mitra

	getCalls    int
	mitraCalls  int
	cancelCalls int
	ratingCalls int
	cancelErr   error
	ratingErr   error
	lastReason  string
	lastRating  models.Rating
}

func newFakeBookingAPI(responses ...scripted) *fakeBookingAPI {
	return &fakeBookingAPI{responses: responses, mitras: map[int64]*models.Mitra{}}
}

func (f *fakeBookingAPI) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	f.mu.Lock()
	f.getCalls++
	var r scripted
	if len(f.responses) > 0 {
		r = f.responses[0]
		f.responses = f.responses[1:]
	} else if f.last != nil {
		b := *f.last
		r.booking = &b
	} else {
		r.err = &api.NetworkError{Op: "booking_detail", Err: errors.New("no script")}
	}
	if r.booking != nil {
		b := *r.booking
		f.last = &b
	}
	f.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	b := *r.booking
	return &b, nil
}

func (f *fakeBookingAPI) GetMitra(ctx context.Context, id int64) (*models.Mitra, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mitraCalls++
	m, ok := f.mitras[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (f *fakeBookingAPI) CancelBooking(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.lastReason = reason
	return f.cancelErr
}

func (f *fakeBookingAPI) SubmitRating(ctx context.Context, rating models.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingCalls++
	f.lastRating = rating
	return f.ratingErr
}

func (f *fakeBookingAPI) calls() (get, cancel, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.cancelCalls, f.ratingCalls
}

func mitraID(id int64) *int64 { return &id }

func newTestLifecycle(t *testing.T, fake *fakeBookingAPI, interval time.Duration) *LifecycleService {
	t.Helper()
	svc := NewLifecycleService(fake, repository.NewMemoryStateStore(), nil, nil, interval, nil)
	t.Cleanup(svc.Stop)
	return svc
}

func waitForBooking(t *testing.T, svc *LifecycleService) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return svc.Snapshot().Booking != nil }, time.Second, 2*time.Millisecond)
	return svc.Snapshot()
}

func TestTrackPollsAndExposesSnapshot(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{
		ID: 1, Status: models.StatusOnProgress, MitraID: mitraID(7),
		ProgressTracking: "Terapis menuju lokasi", Category: models.CategoryGaspol,
	}})
	fake.mitras[7] = &models.Mitra{ID: 7, Name: "Budi"}
	svc := newTestLifecycle(t, fake, 10*time.Millisecond)

	require.NoError(t, svc.Track(context.Background(), 1))
	snap := waitForBooking(t, svc)
	assert.Equal(t, models.StatusOnProgress, snap.Booking.Status)
	assert.Equal(t, "Driver menuju lokasi", snap.Presentation.Label)
	require.Eventually(t, func() bool { return svc.Snapshot().Mitra != nil }, time.Second, 2*time.Millisecond)
	assert.Equal(t, "Budi", svc.Snapshot().Mitra.Name)

	require.Eventually(t, func() bool {
		get, _, _ := fake.calls()
		return get >= 3
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, Actions{CanCancel: true}, svc.Actions())
}

func TestStopReleasesPolling(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending}})
	svc := newTestLifecycle(t, fake, 5*time.Millisecond)

	require.NoError(t, svc.Track(context.Background(), 1))
	waitForBooking(t, svc)
	svc.Stop()

	before, _, _ := fake.calls()
	time.Sleep(30 * time.Millisecond)
	after, _, _ := fake.calls()
	assert.Equal(t, before, after)
	assert.NotNil(t, svc.Snapshot().Booking, "last snapshot stays readable")
}

func TestRetrackReplacesLoop(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending}},
		scripted{booking: &models.Booking{ID: 2, Status: models.StatusOnProgress}},
	)
	svc := newTestLifecycle(t, fake, time.Hour)

	require.NoError(t, svc.Track(context.Background(), 1))
	waitForBooking(t, svc)
	require.NoError(t, svc.Track(context.Background(), 2))
	require.Eventually(t, func() bool {
		b := svc.Snapshot().Booking
		return b != nil && b.ID == 2
	}, time.Second, 2*time.Millisecond)

	get, _, _ := fake.calls()
	assert.Equal(t, 2, get)
}

func TestFetchFailureKeepsLastSnapshot(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending, ProgressTracking: "Mencari terapis"}},
		scripted{err: &api.NetworkError{Op: "booking_detail", Err: errors.New("timeout")}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress}},
	)
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	err := svc.Refresh(ctx)
	require.Error(t, err)
	snap := svc.Snapshot()
	require.NotNil(t, snap.Booking)
	assert.Equal(t, models.StatusPending, snap.Booking.Status)
	assert.True(t, snap.Stale)
	assert.True(t, api.IsNetwork(snap.Err))

	require.NoError(t, svc.Refresh(ctx))
	snap = svc.Snapshot()
	assert.Equal(t, models.StatusOnProgress, snap.Booking.Status)
	assert.False(t, snap.Stale)
	assert.NoError(t, snap.Err)
}

func TestOutOfOrderResponsesNewerRequestWins(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending, ProgressTracking: "awal"}},
		// issued at t=0, resolves at t=500ms
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending, ProgressTracking: "Mencari terapis"}, delay: 500 * time.Millisecond},
		// issued at t=100ms, resolves at t=200ms
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, ProgressTracking: "Terapis menuju lokasi"}, delay: 100 * time.Millisecond},
	)
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = svc.Refresh(ctx)
	}()
	require.Eventually(t, func() bool {
		get, _, _ := fake.calls()
		return get == 2
	}, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	go func() {
		defer wg.Done()
		_ = svc.Refresh(ctx)
	}()

	require.Eventually(t, func() bool {
		return svc.Snapshot().Booking.ProgressTracking == "Terapis menuju lokasi"
	}, time.Second, time.Millisecond)
	wg.Wait()

	snap := svc.Snapshot()
	assert.Equal(t, models.StatusOnProgress, snap.Booking.Status)
	assert.Equal(t, "Terapis menuju lokasi", snap.Booking.ProgressTracking)
}

func TestOutOfOrderSameStatusUsesRequestSequence(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, ProgressTracking: "A"}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, ProgressTracking: "B"}, delay: 150 * time.Millisecond},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, ProgressTracking: "C"}},
	)
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	slow := make(chan struct{})
	go func() {
		_ = svc.Refresh(ctx)
		close(slow)
	}()
	require.Eventually(t, func() bool {
		get, _, _ := fake.calls()
		return get == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, svc.Refresh(ctx))
	<-slow

	assert.Equal(t, "C", svc.Snapshot().Booking.ProgressTracking)
}

func TestOlderVersionIsDropped(t *testing.T) {
	now := time.Now()
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, Version: 5, ProgressTracking: "v5"}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, Version: 4, ProgressTracking: "v4"}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, UpdatedAt: now, ProgressTracking: "t1"}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, UpdatedAt: now.Add(-time.Minute), ProgressTracking: "t0"}},
	)
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, "v5", svc.Snapshot().Booking.ProgressTracking)

	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, "t1", svc.Snapshot().Booking.ProgressTracking)

	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, "t1", svc.Snapshot().Booking.ProgressTracking)
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusCompleted, MitraID: mitraID(7)}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, MitraID: mitraID(7)}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusCancelled, MitraID: mitraID(7)}},
	)
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	require.NoError(t, svc.Refresh(ctx))
	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, models.StatusCompleted, svc.Snapshot().Booking.Status)
	assert.False(t, svc.Actions().CanCancel)
}

func TestTerminalStatusStopsTimerAndPublishes(t *testing.T) {
	fake := newFakeBookingAPI(
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress}},
		scripted{booking: &models.Booking{ID: 1, Status: models.StatusCompleted}},
	)
	store := repository.NewMemoryTimerStore()
	timer := NewTimerService(store, nil, nil)
	bus := events.NewEventBus()
	changed := make(chan events.BookingEventPayload, 1)
	bus.Subscribe(events.EventBookingStatusChanged, func(e *events.Event) error {
		var p events.BookingEventPayload
		_ = e.Decode(&p)
		changed <- p
		return nil
	})
	svc := NewLifecycleService(fake, repository.NewMemoryStateStore(), timer, bus, time.Hour, nil)
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	_, err := timer.Start(ctx, 1, "60 menit")
	require.NoError(t, err)

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)
	require.NoError(t, svc.Refresh(ctx))

	select {
	case p := <-changed:
		assert.Equal(t, "OnProgress", p.FromStatus)
		assert.Equal(t, "Completed", p.Status)
	case <-time.After(time.Second):
		t.Fatal("status change not published")
	}
	stored, _ := store.GetTimer(ctx, 1)
	assert.Nil(t, stored)
}

func TestTerminalOnFirstFetchStopsTimer(t *testing.T) {
	for _, status := range []models.Status{models.StatusCancelled, models.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 5, Status: status}})
			store := repository.NewMemoryTimerStore()
			timer := NewTimerService(store, nil, nil)
			svc := NewLifecycleService(fake, repository.NewMemoryStateStore(), timer, nil, time.Hour, nil)
			t.Cleanup(svc.Stop)
			ctx := context.Background()

			_, err := timer.Start(ctx, 5, "60 menit")
			require.NoError(t, err)

			require.NoError(t, svc.Track(ctx, 5))
			assert.Equal(t, status, waitForBooking(t, svc).Booking.Status)
			assert.Eventually(t, func() bool {
				stored, err := store.GetTimer(ctx, 5)
				return err == nil && stored == nil
			}, time.Second, 2*time.Millisecond)
		})
	}
}

func TestActiveOnFirstFetchKeepsTimer(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 5, Status: models.StatusOnProgress}})
	store := repository.NewMemoryTimerStore()
	timer := NewTimerService(store, nil, nil)
	svc := NewLifecycleService(fake, repository.NewMemoryStateStore(), timer, nil, time.Hour, nil)
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	_, err := timer.Start(ctx, 5, "60 menit")
	require.NoError(t, err)

	require.NoError(t, svc.Track(ctx, 5))
	waitForBooking(t, svc)
	require.NoError(t, svc.Refresh(ctx))

	stored, err := store.GetTimer(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestCancelBlankReasonMakesNoCall(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending}})
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	snap := waitForBooking(t, svc)
	assert.False(t, snap.Booking.HasMitra())

	for _, reason := range []string{"", "   ", "\t\n"} {
		err := svc.Cancel(ctx, reason)
		assert.True(t, models.IsValidation(err))
	}
	_, cancels, _ := fake.calls()
	assert.Zero(t, cancels)
	assert.NotNil(t, svc.Snapshot().Booking)
}

func TestCancelSuccessDiscardsStateAndReturnsHome(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress}})
	store := repository.NewMemoryTimerStore()
	timer := NewTimerService(store, nil, nil)
	svc := NewLifecycleService(fake, repository.NewMemoryStateStore(), timer, nil, 5*time.Millisecond, nil)
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	_, err := timer.Start(ctx, 1, "90 menit")
	require.NoError(t, err)
	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)
	home := svc.Home()

	require.NoError(t, svc.Cancel(ctx, "  Salah alamat "))

	select {
	case <-home:
	case <-time.After(time.Second):
		t.Fatal("home signal not sent")
	}
	assert.Nil(t, svc.Snapshot().Booking)
	assert.Equal(t, Actions{}, svc.Actions())
	assert.Equal(t, "Salah alamat", fake.lastReason)

	stored, _ := store.GetTimer(ctx, 1)
	assert.Nil(t, stored)

	before, _, _ := fake.calls()
	time.Sleep(25 * time.Millisecond)
	after, _, _ := fake.calls()
	assert.Equal(t, before, after, "polling stops after cancel")
	assert.ErrorIs(t, svc.Refresh(ctx), ErrNoTrackedBooking)
}

func TestCancelRejectedLeavesStateUnchanged(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress}})
	fake.cancelErr = &api.ServerRejection{StatusCode: 200, Message: "Pesanan tidak dapat dibatalkan"}
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	err := svc.Cancel(ctx, "berubah pikiran")
	require.Error(t, err)
	assert.Equal(t, "Pesanan tidak dapat dibatalkan", UserMessage(err))
	assert.False(t, Retryable(ActionCancel, err))
	assert.NotNil(t, svc.Snapshot().Booking)

	select {
	case <-svc.Home():
		t.Fatal("home must not be signalled")
	default:
	}
}

func TestCancelTerminalIsRejectedLocally(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusCompleted}})
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	assert.ErrorIs(t, svc.Cancel(ctx, "terlambat"), models.ErrInvalidState)
	_, cancels, _ := fake.calls()
	assert.Zero(t, cancels)
}

func TestSubmitRatingOutOfRange(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusCompleted, MitraID: mitraID(7)}})
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)

	for _, score := range []int{0, 6, -1} {
		err := svc.SubmitRating(ctx, score, 7, "")
		assert.True(t, models.IsValidation(err), "score %d", score)
	}
	_, _, ratings := fake.calls()
	assert.Zero(t, ratings)
}

func TestSubmitRatingRequiresCompletedAndKnownMitra(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusOnProgress, MitraID: mitraID(7)}})
	svc := newTestLifecycle(t, fake, time.Hour)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SubmitRating(ctx, 5, 7, ""), ErrNoTrackedBooking)

	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)
	assert.ErrorIs(t, svc.SubmitRating(ctx, 5, 7, ""), models.ErrInvalidState)

	fake2 := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 2, Status: models.StatusCompleted}})
	svc2 := newTestLifecycle(t, fake2, time.Hour)
	require.NoError(t, svc2.Track(ctx, 2))
	waitForBooking(t, svc2)
	assert.True(t, models.IsValidation(svc2.SubmitRating(ctx, 5, 7, "")))
	assert.False(t, svc2.Actions().CanRate)
}

func TestSubmitRatingFillsCustomerAndClearsFlow(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusCompleted, MitraID: mitraID(7)}})
	state := repository.NewMemoryStateStore()
	svc := NewLifecycleService(fake, state, nil, nil, time.Hour, nil)
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	require.NoError(t, state.SaveSession(ctx, models.SessionIdentity{UserID: 3, Name: "Rina", Phone: "08123"}))
	require.NoError(t, svc.Track(ctx, 1))
	waitForBooking(t, svc)
	assert.True(t, svc.Actions().CanRate)

	require.NoError(t, svc.SubmitRating(ctx, 5, 7, " Mantap "))
	assert.Equal(t, models.Rating{MitraID: 7, Rating: 5, ReviewText: "Mantap", CustomerName: "Rina", CustomerPhone: "08123"}, fake.lastRating)
	assert.False(t, svc.Actions().CanRate)
	assert.ErrorIs(t, svc.SubmitRating(ctx, 4, 7, ""), models.ErrInvalidState)
}

func TestStatusSnapshotView(t *testing.T) {
	fake := newFakeBookingAPI(scripted{booking: &models.Booking{ID: 1, Status: models.StatusPending}})
	svc := newTestLifecycle(t, fake, time.Hour)

	require.NoError(t, svc.Track(context.Background(), 1))
	waitForBooking(t, svc)

	view := svc.StatusSnapshot(context.Background()).(map[string]any)
	assert.Equal(t, false, view["stale"])
	assert.Equal(t, Actions{CanCancel: true}, view["actions"])
	assert.NotContains(t, view, "error")
}

func TestTrackValidation(t *testing.T) {
	svc := newTestLifecycle(t, newFakeBookingAPI(), time.Hour)
	assert.True(t, models.IsValidation(svc.Track(context.Background(), 0)))
}
