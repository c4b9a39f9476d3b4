package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/recon-armada/internal/api"
	"github.com/ahrav/recon-armada/internal/api/debug"
	"github.com/ahrav/recon-armada/internal/api/mux"
	"github.com/ahrav/recon-armada/internal/api/routes"
	appautoscan "github.com/ahrav/recon-armada/internal/app/autoscan"
	"github.com/ahrav/recon-armada/internal/config"
	"github.com/ahrav/recon-armada/internal/config/fileloader"
	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/internal/infra/eventbus"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/kafka"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/memory"
	"github.com/ahrav/recon-armada/internal/infra/recon"
	memoryStore "github.com/ahrav/recon-armada/internal/infra/storage/autoscan/memory"
	postgresStore "github.com/ahrav/recon-armada/internal/infra/storage/autoscan/postgres"
	redisStore "github.com/ahrav/recon-armada/internal/infra/storage/autoscan/redis"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/common/otel"
)

var build = "develop"

const (
	serviceType = "autoscan-api"
)

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	cfg, err := config.Load(os.Getenv("AUTOSCAN_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("AUTOSCAN-API-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.ParseLevel(cfg.LogLevel), svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, cfg, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg config.Config, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
			"/debug":        {},
			"/metrics":      {},
		},
		Probability: cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(serviceType)
	mp := otel.GetMeterProvider()

	// -------------------------------------------------------------------------
	// Job Store
	log.Info(ctx, "startup", "status", "initializing job store", "driver", cfg.Store.Driver)

	repo, closeStore, err := openStore(ctx, cfg.Store, tracer)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer closeStore()

	// -------------------------------------------------------------------------
	// Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus", "driver", cfg.Events.Driver)

	bus, err := openEventBus(cfg.Events, log, tracer)
	if err != nil {
		return fmt.Errorf("opening event bus: %w", err)
	}
	defer bus.Close()

	// -------------------------------------------------------------------------
	// AutoScan Service
	log.Info(ctx, "startup", "status", "initializing autoscan service")

	scanMetrics, err := appautoscan.NewAutoScanMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating autoscan metrics: %w", err)
	}

	opts := []appautoscan.Option{
		appautoscan.WithPublisher(eventbus.NewDomainEventPublisher(bus)),
		appautoscan.WithMetrics(scanMetrics),
	}
	if path := cfg.Orchestrator.ProfilesFile; path != "" {
		profiles, err := fileloader.NewFileLoader(path).Load(ctx)
		if err != nil {
			return fmt.Errorf("loading settings profiles: %w", err)
		}
		opts = append(opts, appautoscan.WithProfiles(profiles))
		log.Info(ctx, "startup", "status", "settings profiles loaded", "count", len(profiles))
	}

	collaborators := recon.NewCollaborators(recon.Config{
		WhoisEnabled:    cfg.Recon.WhoisEnabled,
		WhoisTimeout:    cfg.Recon.WhoisTimeout,
		PortConcurrency: cfg.Recon.PortConcurrency,
		DialTimeout:     cfg.Recon.DialTimeout,
	}, log, tracer)

	svc := appautoscan.NewService(repo, collaborators, appautoscan.Config{
		MaxConcurrentJobs:      cfg.Orchestrator.MaxConcurrentJobs,
		PhaseTimeout:           cfg.Orchestrator.PhaseTimeout,
		PersistRetries:         cfg.Orchestrator.PersistRetries,
		PersistInitialInterval: cfg.Orchestrator.PersistInitialInterval,
		PersistTimeout:         cfg.Orchestrator.PersistTimeout,
	}, log, tracer, opts...)

	if err := svc.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconciling stored jobs: %w", err)
	}

	janitor, err := appautoscan.NewJanitor(appautoscan.JanitorConfig{
		Schedule:  cfg.Janitor.Schedule,
		Retention: cfg.Janitor.Retention,
	}, svc, log)
	if err != nil {
		return fmt.Errorf("creating janitor: %w", err)
	}
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer janitor.Stop()

	// -------------------------------------------------------------------------
	// Start Debug and Metrics Services

	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.API.DebugHost)

		if err := http.ListenAndServe(cfg.API.DebugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.API.DebugHost, "msg", err)
		}
	}()

	reg, err := common.NewMetricsRegistry(svc.Collector())
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go func() {
		log.Info(ctx, "startup", "status", "metrics server started", "host", cfg.API.MetricsHost)
		if err := common.RunMetricsServer(metricsCtx, cfg.API.MetricsHost, reg); err != nil {
			log.Error(ctx, "shutdown", "status", "metrics server closed", "host", cfg.API.MetricsHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}

	cfgMux := mux.Config{
		Build:   build,
		Log:     log,
		Service: svc,
		Metrics: apiMetrics,
		Tracer:  tracer,
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.API.CORSAllowedOrigins),
	)

	server := http.Server{
		Addr:         cfg.API.Host,
		Handler:      webAPI,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.API.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		// In-flight jobs pause at their next phase boundary and are resumed
		// by Reconcile on the next start.
		if err := svc.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not stop autoscan jobs gracefully: %w", err)
		}
	}

	return nil
}

// openStore builds the configured job repository. The returned func releases
// its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, tracer trace.Tracer) (domain.JobRepository, func(), error) {
	switch cfg.Driver {
	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing db config: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating db pool: %w", err)
		}
		if err := runMigrations(pool, cfg.MigrationsPath); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgresStore.NewJobStore(pool, tracer), pool.Close, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("pinging redis: %w", err)
		}
		store := redisStore.NewJobStore(client, tracer, redisStore.WithKeyPrefix(cfg.RedisKeyPrefix))
		return store, func() { _ = client.Close() }, nil

	default:
		return memoryStore.NewJobStore(), func() {}, nil
	}
}

// runMigrations applies all up migrations found at path.
func runMigrations(pool *pgxpool.Pool, path string) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// openEventBus builds the configured lifecycle event bus.
func openEventBus(cfg config.EventsConfig, log *logger.Logger, tracer trace.Tracer) (events.EventBus, error) {
	if cfg.Driver != config.EventsKafka {
		return memory.NewBroker(), nil
	}

	kcfg := &kafka.Config{
		Brokers:       cfg.Brokers,
		AutoScanTopic: cfg.AutoScanTopic,
		PhaseTopic:    cfg.PhaseTopic,
		ClientID:      cfg.ClientID,
		ServiceType:   serviceType,
	}

	client, err := kafka.NewClient(kcfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	metrics, err := kafka.NewEventBusMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("creating event bus metrics: %w", err)
	}

	bus, err := kafka.ConnectEventBus(kcfg, client, log, metrics, tracer)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connecting event bus: %w", err), client.Close())
	}

	return bus, nil
}
