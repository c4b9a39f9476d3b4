// Package config loads the AutoScan service configuration from an optional
// YAML file, a .env file and AUTOSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUTOSCAN_STORE_DRIVER.
const EnvPrefix = "AUTOSCAN"

// Supported backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	EventsMemory = "memory"
	EventsKafka  = "kafka"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel     string             `mapstructure:"log_level"`
	API          APIConfig          `mapstructure:"api"`
	Store        StoreConfig        `mapstructure:"store"`
	Events       EventsConfig       `mapstructure:"events"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Recon        ReconConfig        `mapstructure:"recon"`
	Janitor      JanitorConfig      `mapstructure:"janitor"`
}

// APIConfig configures the HTTP listeners.
type APIConfig struct {
	Host               string        `mapstructure:"host"`
	DebugHost          string        `mapstructure:"debug_host"`
	MetricsHost        string        `mapstructure:"metrics_host"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// StoreConfig selects and configures the job store.
type StoreConfig struct {
	Driver         string `mapstructure:"driver"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrationsPath string `mapstructure:"migrations_path"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
}

// EventsConfig selects and configures the lifecycle event bus.
type EventsConfig struct {
	Driver        string   `mapstructure:"driver"`
	Brokers       []string `mapstructure:"brokers"`
	AutoScanTopic string   `mapstructure:"autoscan_topic"`
	PhaseTopic    string   `mapstructure:"phase_topic"`
	ClientID      string   `mapstructure:"client_id"`
}

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Probability float64 `mapstructure:"probability"`
	Insecure    bool    `mapstructure:"insecure"`
}

// OrchestratorConfig tunes job execution.
type OrchestratorConfig struct {
	MaxConcurrentJobs      int           `mapstructure:"max_concurrent_jobs"`
	PhaseTimeout           time.Duration `mapstructure:"phase_timeout"`
	PersistRetries         uint64        `mapstructure:"persist_retries"`
	PersistInitialInterval time.Duration `mapstructure:"persist_initial_interval"`
	PersistTimeout         time.Duration `mapstructure:"persist_timeout"`
	ProfilesFile           string        `mapstructure:"profiles_file"`
}

// ReconConfig tunes the bundled collaborators.
type ReconConfig struct {
	WhoisEnabled    bool          `mapstructure:"whois_enabled"`
	WhoisTimeout    time.Duration `mapstructure:"whois_timeout"`
	PortConcurrency int           `mapstructure:"port_concurrency"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// JanitorConfig controls retention of finished jobs.
type JanitorConfig struct {
	Schedule  string        `mapstructure:"schedule"`
	Retention time.Duration `mapstructure:"retention"`
}

var defaults = map[string]any{
	"log_level": "info",

	"api.host":                 "0.0.0.0:8080",
	"api.debug_host":           "0.0.0.0:8090",
	"api.metrics_host":         "0.0.0.0:9090",
	"api.read_timeout":         "5s",
	"api.write_timeout":        "10s",
	"api.idle_timeout":         "120s",
	"api.shutdown_timeout":     "30s",
	"api.cors_allowed_origins": []string{},

	"store.driver":           StoreMemory,
	"store.postgres_dsn":     "",
	"store.max_conns":        10,
	"store.migrations_path":  "file://db/migrations",
	"store.redis_addr":       "localhost:6379",
	"store.redis_password":   "",
	"store.redis_db":         0,
	"store.redis_key_prefix": "autoscan",

	"events.driver":         EventsMemory,
	"events.brokers":        []string{},
	"events.autoscan_topic": "autoscan-events",
	"events.phase_topic":    "autoscan-phase-events",
	"events.client_id":      "autoscan-api",

	"telemetry.endpoint":    "",
	"telemetry.probability": 0.05,
	"telemetry.insecure":    true,

	"orchestrator.max_concurrent_jobs":      8,
	"orchestrator.phase_timeout":            "30m",
	"orchestrator.persist_retries":          5,
	"orchestrator.persist_initial_interval": "200ms",
	"orchestrator.persist_timeout":          "10s",
	"orchestrator.profiles_file":            "",

	"recon.whois_enabled":    true,
	"recon.whois_timeout":    "15s",
	"recon.port_concurrency": 200,
	"recon.dial_timeout":     "3s",

	"janitor.schedule":  "0 * * * *",
	"janitor.retention": "720h",
}

// Load reads the configuration. A .env file in the working directory is
// applied to the environment first. path names an explicit YAML file; when
// empty, autoscan.yaml is looked up in the working directory and
// /etc/recon-armada and may be absent.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("autoscan")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/recon-armada")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks cross field requirements.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Events.Driver {
	case EventsMemory:
	case EventsKafka:
		if len(c.Events.Brokers) == 0 {
			errs = append(errs, errors.New("events.brokers is required for the kafka event bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events driver %q", c.Events.Driver))
	}

	if c.Orchestrator.MaxConcurrentJobs < 0 {
		errs = append(errs, errors.New("orchestrator.max_concurrent_jobs must not be negative"))
	}
	if c.Telemetry.Probability < 0 || c.Telemetry.Probability > 1 {
		errs = append(errs, errors.New("telemetry.probability must be between 0 and 1"))
	}
	if slices.Contains(c.API.CORSAllowedOrigins, "") {
		errs = append(errs, errors.New("api.cors_allowed_origins must not contain empty origins"))
	}

	return errors.Join(errs...)
}
