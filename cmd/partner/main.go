package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"layanan/internal/api"
	"layanan/internal/app"
	"layanan/internal/config"
	"layanan/internal/dispatch"
	"layanan/internal/events"
	"layanan/internal/logging"
	"layanan/internal/models"
	"layanan/internal/service"
	"layanan/internal/worker"

	"github.com/rs/zerolog"
)

const usage = `usage: partner <command> [flags]

commands:
  login     store the mitra identity
  online    run background dispatch until interrupted
  start     announce service start and start the timer
  progress  post a progress note
  complete  mark a booking completed
  health    probe the dispatch daemon`

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

func run(command string, args []string) error {
	cfg, logger, closer, err := app.LoadConfigAndLogger("partner")
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

	client := app.NewAPIClient(cfg, stores.Redis, &logger)
	eventBus := events.NewEventBus()
	sessions := service.NewSessionService(stores.State, logging.Component(&logger, "session"))
	timers := service.NewTimerService(stores.Timers, eventBus, logging.Component(&logger, "timer"))
	progress := service.NewProgressService(client, timers, eventBus, logging.Component(&logger, "progress"))

	switch command {
	case "login":
		return login(ctx, sessions, args)
	case "online":
		return online(ctx, cfg, &logger, stores, client, eventBus, sessions)
	case "start":
		return startService(ctx, progress, args)
	case "progress":
		return postProgress(ctx, progress, args)
	case "complete":
		return complete(ctx, progress, args)
	case "health":
		return health(ctx, cfg)
	}
	fmt.Fprintln(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

func login(ctx context.Context, sessions *service.SessionService, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	userID := fs.Int64("mitra-id", 0, "mitra id")
	name := fs.String("name", "", "mitra name")
	phone := fs.String("phone", "", "phone number")
	token := fs.String("token", "", "api token")
	_ = fs.Parse(args)

	return sessions.Save(ctx, models.SessionIdentity{
		UserID: *userID,
		Role:   models.RoleMitra,
		Name:   *name,
		Phone:  *phone,
		Token:  *token,
	})
}

// online runs the in-process dispatch service behind the bridge until ctx ends.
func online(
	ctx context.Context,
	cfg *config.Config,
	logger *zerolog.Logger,
	stores *app.Stores,
	client *api.Client,
	eventBus *events.EventBus,
	sessions *service.SessionService,
) error {
	identity, err := sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("login first: %w", err)
	}

	reporters := dispatch.MultiReporter{dispatch.HTTPReporter{API: client}}
	if len(cfg.Dispatch.Kafka.Brokers) > 0 {
		reporters = append(reporters, dispatch.NewKafkaReporter(cfg.Dispatch.Kafka))
	}

	var listener dispatch.SignalListener
	if cfg.Dispatch.WSURL != "" {
		token := identity.Token
		if token == "" {
			token = cfg.API.Token
		}
		listener = dispatch.NewWSListener(cfg.Dispatch.WSURL, token, logging.Component(logger, "dispatch-ws"))
	}

	retry := worker.RetryPolicy{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	native := dispatch.NewLocalService(reporters, listener, eventBus, retry, logging.Component(logger, "dispatch-service"))

	if cfg.Dispatch.NativeHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.Dispatch.NativeHealthAddr)
		if err != nil {
			return fmt.Errorf("listen dispatch health: %w", err)
		}
		hs := dispatch.NewHealthServer(logging.Component(logger, "dispatch-health"))
		native.WithHealth(hs)
		go func() {
			if err := hs.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("dispatch health server error")
			}
		}()
		defer hs.Stop()
	}

	bridge := dispatch.NewBridge(native, nil, dispatch.StoredLocation{State: stores.State}, stores.State, dispatch.BridgeOptions{
		APIBaseURL:     client.BaseURL(),
		DefaultCoord:   models.Coord{Lat: cfg.Dispatch.DefaultLatitude, Lng: cfg.Dispatch.DefaultLongitude},
		ReportInterval: cfg.Dispatch.ReportInterval,
	}, logging.Component(logger, "dispatch-bridge"))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bridge.Dispose(ctx); err != nil {
			logger.Error().Err(err).Msg("dispatch bridge dispose failed")
		}
	}()

	stopStatus := app.StartStatusServer(cfg, logger, map[string]api.StatusSource{"dispatch": bridge})
	defer stopStatus()

	if err := bridge.Init(ctx, *identity, nil); err != nil {
		return err
	}

	startPolicy := worker.RetryPolicy{MaxRetries: cfg.Dispatch.StartRetries, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2}
	err = startPolicy.Do(ctx, bridge.Start, func(err error) bool {
		return errors.Is(err, dispatch.ErrPermissionDenied)
	})
	if err != nil {
		return err
	}
	fmt.Println("Online. Menunggu pesanan...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-bridge.Events():
			fmt.Printf("[%s] pesanan #%d %s\n", sig.Type, sig.BookingID, sig.Message)
		}
	}
}

func startService(ctx context.Context, progress *service.ProgressService, args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	variant := fs.String("variant", "", "package descriptor, e.g. \"Pijat 90 menit\"")
	_ = fs.Parse(args)

	state, err := progress.StartService(ctx, *bookingID, *variant)
	if err != nil {
		return err
	}
	fmt.Printf("Layanan dimulai, durasi %s.\n", time.Duration(state.TotalSeconds)*time.Second)
	return nil
}

func postProgress(ctx context.Context, progress *service.ProgressService, args []string) error {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	text := fs.String("text", "", "progress note")
	proofPath := fs.String("proof", "", "proof photo")
	_ = fs.Parse(args)

	proof, name, err := readProof(*proofPath)
	if err != nil {
		return err
	}
	_, err = progress.Post(ctx, *bookingID, *text, proof, name)
	return err
}

func complete(ctx context.Context, progress *service.ProgressService, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	bookingID := fs.Int64("booking-id", 0, "booking id")
	text := fs.String("text", "", "closing note")
	proofPath := fs.String("proof", "", "proof photo")
	_ = fs.Parse(args)

	proof, name, err := readProof(*proofPath)
	if err != nil {
		return err
	}
	if _, err := progress.Complete(ctx, *bookingID, *text, proof, name); err != nil {
		return err
	}
	fmt.Printf("Pesanan #%d selesai.\n", *bookingID)
	return nil
}

func readProof(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read proof photo: %w", err)
	}
	return data, filepath.Base(path), nil
}

func health(ctx context.Context, cfg *config.Config) error {
	if cfg.Dispatch.NativeHealthAddr == "" {
		return errors.New("dispatch.native_health_addr is not configured")
	}
	status, err := dispatch.NewGRPCProbe(cfg.Dispatch.NativeHealthAddr).Check(ctx)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
