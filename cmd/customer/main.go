package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"layanan/internal/api"
	"layanan/internal/app"
	"layanan/internal/config"
	"layanan/internal/events"
	"layanan/internal/export"
	"layanan/internal/logging"
	"layanan/internal/models"
	"layanan/internal/service"
	"layanan/internal/worker"

	"github.com/rs/zerolog"
)

const usage = `usage: customer <command> [flags]

commands:
  login    store the session identity
  book     search a mitra and confirm a booking
  track    follow a booking until it ends
  cancel   cancel a booking
  rate     rate the mitra of a completed booking
  timer    show the service timer of a booking
  history  sync and export booking history`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if msg := service.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		log.Fatalf("Fatal error: %v", err)
	}
}

// deps is everything a command may need.
type deps struct {
	cfg       *config.Config
	logger    *zerolog.Logger
	stores    *app.Stores
	client    *api.Client
	eventBus  *events.EventBus
	sessions  *service.SessionService
	timers    *service.TimerService
	lifecycle *service.LifecycleService
	matching  *service.MatchingService
}

func run(command string, args []string) error {
	cfg, logger, closer, err := app.LoadConfigAndLogger("customer")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	stopMetrics := app.StartMetricsServer(cfg, &logger)
	defer stopMetrics()

	d := newDeps(cfg, &logger, stores)

	stopStatus := app.StartStatusServer(cfg, &logger, map[string]api.StatusSource{
		"booking": d.lifecycle,
		"search": api.StatusFunc(func(context.Context) any {
			session, _ := d.matching.Session()
			return map[string]any{"session": session, "progress": d.matching.Progress()}
		}),
	})
	defer stopStatus()

	switch command {
	case "login":
		return d.login(ctx, args)
	case "book":
		return d.book(ctx, args)
	case "track":
		return d.track(ctx, args)
	case "cancel":
		return d.cancel(ctx, args)
	case "rate":
		return d.rate(ctx, args)
	case "timer":
		return d.timer(ctx, args)
	case "history":
		return d.history(ctx, args)
	}
	fmt.Fprintln(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

func newDeps(cfg *config.Config, logger *zerolog.Logger, stores *app.Stores) *deps {
	client := app.NewAPIClient(cfg, stores.Redis, logger)
	eventBus := events.NewEventBus()
	subscribeEvents(eventBus, logger)

	timers := service.NewTimerService(stores.Timers, eventBus, logging.Component(logger, "timer"))
	return &deps{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		client:    client,
		eventBus:  eventBus,
		sessions:  service.NewSessionService(stores.State, logging.Component(logger, "session")),
		timers:    timers,
		lifecycle: service.NewLifecycleService(client, stores.State, timers, eventBus, cfg.Lifecycle.PollInterval, logging.Component(logger, "lifecycle")),
		matching:  service.NewMatchingService(client, eventBus, cfg.Matching.ProgressDuration, logging.Component(logger, "matching")),
	}
}

func subscribeEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		logger.Info().Int64("booking_id", p.BookingID).Str("status", p.Status).Msg("booking created")
		return nil
	})
	bus.Subscribe(events.EventTimerFinished, func(e *events.Event) error {
		logger.Info().Str("event", e.Type).Msg("service window finished")
		return nil
	})
}

func (d *deps) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "user id")
	name := fs.String("name", "", "customer name")
	phone := fs.String("phone", "", "phone number")
	gender := fs.String("gender", "", "gender")
	token := fs.String("token", "", "api token")
	_ = fs.Parse(args)

	return d.sessions.Save(ctx, models.SessionIdentity{
		UserID: *userID,
		Role:   models.RoleCustomer,
		Name:   *name,
		Phone:  *phone,
		Gender: *gender,
		Token:  *token,
	})
}

func (d *deps) book(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	serviceID := fs.Int64("service-id", 0, "service id")
	serviceName := fs.String("service", "", "service name")
	category := fs.String("category", models.CategoryMassage, "Massage, Beauty or Gaspol")
	variant := fs.String("variant", "", "package, e.g. \"60 menit\"")
	price := fs.Int64("price", 0, "total price")
	genderPref := fs.String("gender", "", "preferred mitra gender")
	address := fs.String("address", "", "service address")
	date := fs.String("date", "", "booking date")
	lat := fs.Float64("lat", 0, "latitude")
	lng := fs.Float64("lng", 0, "longitude")
	retries := fs.Int("retries", 0, "extra searches after a failed one")
	follow := fs.Bool("track", true, "track the booking after confirming")
	_ = fs.Parse(args)

	identity, err := d.sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("login first: %w", err)
	}

	coord := models.Coord{Lat: *lat, Lng: *lng}
	if coord.IsZero() {
		coord = d.sessions.LastLocation(ctx, models.Coord{Lat: d.cfg.Dispatch.DefaultLatitude, Lng: d.cfg.Dispatch.DefaultLongitude})
	} else if err := d.sessions.RememberLocation(ctx, coord); err != nil {
		d.logger.Warn().Err(err).Msg("failed to remember location")
	}

	criteria := models.SearchCriteria{
		Location:        coord,
		ServiceID:       *serviceID,
		CustomerGender:  *genderPref,
		TotalPrice:      *price,
		ServiceName:     *serviceName,
		ServiceCategory: *category,
	}

	fmt.Println("Mencari mitra terdekat...")
	session, err := d.matching.StartSearch(ctx, criteria)
	for attempt := 0; err == nil && session.State == service.SearchFailed && attempt < *retries; attempt++ {
		fmt.Println(searchFailureText(session))
		if session.Err != nil && !service.Retryable(service.ActionSearch, session.Err) {
			break
		}
		session, err = d.matching.Retry(ctx)
	}
	if err != nil {
		return err
	}
	if session.State != service.SearchFound {
		fmt.Println(searchFailureText(session))
		d.matching.Abandon()
		return nil
	}

	fmt.Printf("%d mitra ditemukan:\n", len(session.Candidates))
	for _, m := range session.Candidates {
		fmt.Printf("  - %s (%.1f km, rating %.1f)\n", m.Name, m.Distance, m.Rating)
	}

	booking, err := d.matching.Confirm(ctx, models.CreateBookingRequest{
		CustomerID:       identity.UserID,
		Variant:          *variant,
		ScheduledAt:      *date,
		Address:          *address,
		PickupAddress:    *address,
		GenderPreference: *genderPref,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Pesanan #%d dibuat.\n", booking.ID)

	if !*follow {
		return nil
	}
	return d.follow(ctx, booking.ID)
}

func searchFailureText(session service.SearchSession) string {
	if session.Err != nil {
		return service.UserMessage(session.Err)
	}
	return "Belum ada mitra yang tersedia di sekitar Anda."
}

func (d *deps) track(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	_ = fs.Parse(args)
	return d.follow(ctx, *bookingID)
}

// follow polls the booking, printing each new presentation, until it reaches
// a terminal status, is cancelled elsewhere in this process, or ctx ends.
func (d *deps) follow(ctx context.Context, bookingID int64) error {
	if err := d.lifecycle.Track(ctx, bookingID); err != nil {
		return err
	}
	defer d.lifecycle.Stop()

	home := d.lifecycle.Home()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var shown string
	for {
		snap := d.lifecycle.Snapshot()
		if snap.Booking != nil {
			line := snap.Presentation.Label
			if snap.Mitra != nil {
				line += " - " + snap.Mitra.Name
			}
			if snap.Stale {
				line += " (offline)"
			}
			if line != shown {
				fmt.Printf("[%s] %s\n", snap.Booking.Status, line)
				shown = line
			}
			if snap.Booking.Status.IsTerminal() {
				return nil
			}
		} else if snap.Err != nil && service.Retryable(service.ActionFetch, snap.Err) {
			fmt.Println(service.UserMessage(snap.Err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-home:
			return nil
		case <-ticker.C:
		}
	}
}

// load fetches one booking into the lifecycle service without polling.
func (d *deps) load(ctx context.Context, bookingID int64) error {
	if err := d.lifecycle.Track(ctx, bookingID); err != nil {
		return err
	}
	d.lifecycle.Stop()
	return d.lifecycle.Refresh(ctx)
}

func (d *deps) cancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	reason := fs.String("reason", "", "cancel reason")
	_ = fs.Parse(args)

	if err := d.load(ctx, *bookingID); err != nil {
		return err
	}
	if err := d.lifecycle.Cancel(ctx, *reason); err != nil {
		return err
	}
	fmt.Printf("Pesanan #%d dibatalkan.\n", *bookingID)
	return nil
}

func (d *deps) rate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	score := fs.Int("score", 0, "rating 1-5")
	review := fs.String("review", "", "review text")
	_ = fs.Parse(args)

	if err := d.load(ctx, *bookingID); err != nil {
		return err
	}
	snap := d.lifecycle.Snapshot()
	if snap.Booking == nil || !snap.Booking.HasMitra() {
		return models.NewValidationError("mitra_id", "booking has no mitra")
	}
	if err := d.lifecycle.SubmitRating(ctx, *score, *snap.Booking.MitraID, *review); err != nil {
		return err
	}
	fmt.Println("Terima kasih atas penilaian Anda.")
	return nil
}

func (d *deps) timer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("timer", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	watch := fs.Bool("watch", false, "keep counting down")
	_ = fs.Parse(args)

	show := func(r service.TimerReading) {
		switch {
		case !r.Found:
			fmt.Println("Tidak ada timer layanan.")
		case r.Finished:
			fmt.Println("Waktu layanan selesai.")
		default:
			fmt.Printf("Sisa waktu: %s\n", r.Remaining.Truncate(time.Second))
		}
	}

	if !*watch {
		r, err := d.timers.Resume(ctx, *bookingID)
		if err != nil {
			return err
		}
		show(r)
		return nil
	}
	err := d.timers.Watch(ctx, *bookingID, show)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *deps) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	doSync := fs.Bool("sync", true, "refresh from the backend first")
	_ = fs.Parse(args)

	identity, err := d.sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("login first: %w", err)
	}

	if *doSync {
		retry := worker.RetryPolicy{MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2}
		w := worker.NewHistoryWorker(d.client, d.stores.History, identity.UserID, 0, retry, logging.Component(d.logger, "history"))
		if err := w.SyncOnce(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("history sync failed, exporting cached data")
		}
	}

	var filter models.Status
	if *status != "" {
		filter = models.ParseStatus(*status)
	}
	path, err := export.NewExporter(d.stores.History, d.cfg.Exports.Path, d.logger).Export(ctx, identity.UserID, filter)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
