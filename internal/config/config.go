package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"layanan/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Matching   MatchingConfig   `yaml:"matching"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	BaseURL       string             `yaml:"base_url"`
	Token         string             `yaml:"token"`
	Timeout       time.Duration      `yaml:"timeout"`
	MitraCacheTTL time.Duration      `yaml:"mitra_cache_ttl"`
	RateLimit     APIRateLimitConfig `yaml:"rate_limit"`
	Status        StatusServerConfig `yaml:"status"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// StatusServerConfig configures the local read-only status endpoint.
type StatusServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type StorageConfig struct {
	// Backend is one of sqlite, redis, memory.
	Backend string `yaml:"backend"`
}

type LifecycleConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MatchingConfig struct {
	ProgressDuration time.Duration `yaml:"progress_duration"`
}

type DispatchConfig struct {
	ReportInterval   time.Duration `yaml:"report_interval"`
	WSURL            string        `yaml:"ws_url"`
	NativeHealthAddr string        `yaml:"native_health_addr"`
	DefaultLatitude  float64       `yaml:"default_latitude"`
	DefaultLongitude float64       `yaml:"default_longitude"`
	Kafka            KafkaConfig   `yaml:"kafka"`
	StartRetries     int           `yaml:"start_retries"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the process environment.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base_url %q is not an absolute url", c.API.BaseURL)
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite storage")
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address is required for redis storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Lifecycle.PollInterval < time.Second {
		return errors.New("lifecycle poll_interval must be at least 1s")
	}
	if len(c.Dispatch.Kafka.Brokers) > 0 && c.Dispatch.Kafka.Topic == "" {
		return errors.New("dispatch kafka topic is required when brokers are set")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "layanan"
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.API.Status.Enabled && c.API.Status.Port == 0 {
		c.API.Status.Port = 8080
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/layanan.db"
	}
	if c.Lifecycle.PollInterval == 0 {
		c.Lifecycle.PollInterval = models.DefaultPollInterval * time.Second
	}
	if c.Matching.ProgressDuration == 0 {
		c.Matching.ProgressDuration = models.DefaultSearchAnimation * time.Second
	}
	if c.Dispatch.ReportInterval == 0 {
		c.Dispatch.ReportInterval = models.DefaultReportInterval * time.Second
	}
	if c.Dispatch.DefaultLatitude == 0 && c.Dispatch.DefaultLongitude == 0 {
		c.Dispatch.DefaultLatitude = models.DefaultLatitude
		c.Dispatch.DefaultLongitude = models.DefaultLongitude
	}
	if c.Dispatch.StartRetries == 0 {
		c.Dispatch.StartRetries = 3
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
