// Package app wires configuration, storage and servers shared by the
// customer and partner binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"layanan/internal/api"
	"layanan/internal/config"
	"layanan/internal/database"
	"layanan/internal/domain"
	"layanan/internal/logging"
	"layanan/internal/metrics"
	"layanan/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LoadConfigAndLogger reads CONFIG_PATH (default configs/config.yaml) and builds
// the component logger. The closer, if any, owns the log file.
func LoadConfigAndLogger(component string) (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", component).Logger()
	return cfg, logger, closer, nil
}

// Stores are the local persistence ports selected by storage.backend. History
// always lives in sqlite.
type Stores struct {
	Timers  domain.TimerStore
	State   domain.StateStore
	History *database.DB
	Redis   *redis.Client
}

func (s *Stores) Close() error {
	var errs []error
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	if s.Redis != nil {
		errs = append(errs, repository.Close(s.Redis))
	}
	return errors.Join(errs...)
}

func OpenStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Stores, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open database")
		return nil, err
	}
	stores := &Stores{History: db}

	if cfg.Redis.Address != "" {
		stores.Redis = repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, stores.Redis); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable")
		}
	}

	switch cfg.Storage.Backend {
	case "redis":
		stores.Timers = repository.NewFailoverTimerStore(repository.NewRedisTimerStore(stores.Redis), db, logger)
		stores.State = repository.NewFailoverStateStore(repository.NewRedisStateStore(stores.Redis), db, logger)
	case "memory":
		stores.Timers = repository.NewMemoryTimerStore()
		stores.State = repository.NewMemoryStateStore()
	default:
		stores.Timers = db
		stores.State = db
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("storage ready")
	return stores, nil
}

// NewAPIClient builds the backend client, caching mitra details in redis when
// a client is available.
func NewAPIClient(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *api.Client {
	client := api.NewClient(cfg.API, logging.Component(logger, "api-client"))
	if redisClient != nil && cfg.API.MitraCacheTTL > 0 {
		client.UseRedisCache(redisClient, cfg.API.MitraCacheTTL)
	}
	return client
}

// StartStatusServer serves the local status endpoint when enabled. The returned
// function shuts it down.
func StartStatusServer(cfg *config.Config, logger *zerolog.Logger, sources map[string]api.StatusSource) func() {
	if !cfg.API.Status.Enabled {
		return func() {}
	}
	srv := api.NewStatusServer(cfg.API.Status, logging.Component(logger, "status"))
	for name, src := range sources {
		srv.Register(name, src)
	}
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("status server error")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// StartMetricsServer exposes Prometheus metrics on the monitoring port.
func StartMetricsServer(cfg *config.Config, logger *zerolog.Logger) func() {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
