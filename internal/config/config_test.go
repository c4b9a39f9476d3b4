package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, EventsMemory, cfg.Events.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.API.Host)
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrentJobs)
	assert.Equal(t, 30*time.Minute, cfg.Orchestrator.PhaseTimeout)
	assert.Equal(t, uint64(5), cfg.Orchestrator.PersistRetries)
	assert.True(t, cfg.Recon.WhoisEnabled)
	assert.Equal(t, 720*time.Hour, cfg.Janitor.Retention)
	assert.Equal(t, "0 * * * *", cfg.Janitor.Schedule)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTOSCAN_STORE_DRIVER", "redis")
	t.Setenv("AUTOSCAN_STORE_REDIS_DB", "3")
	t.Setenv("AUTOSCAN_EVENTS_DRIVER", "kafka")
	t.Setenv("AUTOSCAN_EVENTS_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUTOSCAN_ORCHESTRATOR_PHASE_TIMEOUT", "5m")
	t.Setenv("AUTOSCAN_RECON_WHOIS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.Equal(t, EventsKafka, cfg.Events.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.PhaseTimeout)
	assert.False(t, cfg.Recon.WhoisEnabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  driver: postgres
  postgres_dsn: postgres://autoscan@db/autoscan
orchestrator:
  max_concurrent_jobs: 2
  profiles_file: /etc/recon-armada/profiles.yaml
api:
  cors_allowed_origins:
    - https://console.example.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://autoscan@db/autoscan", cfg.Store.PostgresDSN)
	assert.Equal(t, 2, cfg.Orchestrator.MaxConcurrentJobs)
	assert.Equal(t, "/etc/recon-armada/profiles.yaml", cfg.Orchestrator.ProfilesFile)
	assert.Equal(t, []string{"https://console.example.com"}, cfg.API.CORSAllowedOrigins)
	assert.Equal(t, 200, cfg.Recon.PortConcurrency)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Store:     StoreConfig{Driver: StoreMemory},
			Events:    EventsConfig{Driver: EventsMemory},
			Telemetry: TelemetryConfig{Probability: 0.5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: `unknown store driver "sqlite"`},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = StorePostgres }, wantErr: "postgres_dsn is required"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Events.Driver = EventsKafka }, wantErr: "brokers is required"},
		{name: "unknown events", mutate: func(c *Config) { c.Events.Driver = "nats" }, wantErr: `unknown events driver "nats"`},
		{name: "negative concurrency", mutate: func(c *Config) { c.Orchestrator.MaxConcurrentJobs = -1 }, wantErr: "must not be negative"},
		{name: "bad probability", mutate: func(c *Config) { c.Telemetry.Probability = 2 }, wantErr: "probability"},
		{name: "empty origin", mutate: func(c *Config) { c.API.CORSAllowedOrigins = []string{""} }, wantErr: "empty origins"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
