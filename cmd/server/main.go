package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	attestationhandler "lexlink/internal/attestation/handler"
	attestationservice "lexlink/internal/attestation/service"
	attestationstore "lexlink/internal/attestation/store"
	"lexlink/internal/audit"
	consenthandler "lexlink/internal/consent/handler"
	consentservice "lexlink/internal/consent/service"
	consentstore "lexlink/internal/consent/store"
	jwttoken "lexlink/internal/jwt_token"
	"lexlink/internal/platform/config"
	"lexlink/internal/platform/httpserver"
	"lexlink/internal/platform/kafka"
	"lexlink/internal/platform/logger"
	"lexlink/internal/platform/metrics"
	"lexlink/internal/platform/middleware"
	"lexlink/internal/platform/postgres"
	"lexlink/internal/platform/redis"
	"lexlink/internal/verification"
	"lexlink/pkg/platform/tx"
)

// rateLimitSweepInterval also serves as the idle cutoff for forgetting a
// client's bucket.
const rateLimitSweepInterval = 5 * time.Minute

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("lexlink exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	infra, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	g, gctx := errgroup.WithContext(ctx)

	// The worker outlives the HTTP server so events from in-flight requests
	// are still published; stopServing cancels it after Shutdown returns.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var sink audit.Sink
	if infra.producer != nil {
		worker := audit.NewWorker(infra.producer, cfg.AuditQueueSize, log, m)
		sink = worker
		g.Go(func() error {
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit worker: %w", err)
			}
			return nil
		})
	}
	handlers, err := buildHandlers(cfg, log, m, infra, sink)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	proxies, err := middleware.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	jwtValidator := jwttoken.NewCallerValidator(
		jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
	)

	router := newRouter(routerDeps{
		cfg:          cfg,
		logger:       log,
		metrics:      m,
		limiter:      limiter,
		proxies:      proxies,
		jwtValidator: jwtValidator,
		health:       infra.health,
		handlers:     handlers,
	})
	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout)

	g.Go(func() error {
		log.Info("starting lexlink", "addr", cfg.Addr, "regulated_mode", cfg.RegulatedMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return stopServing(srv, stopWorker, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		ticker := time.NewTicker(rateLimitSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Sweep(rateLimitSweepInterval); n > 0 {
					log.Debug("rate limiter swept idle clients", "count", n)
				}
			}
		}
	})

	return g.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// stopServing shuts the HTTP server down, then stops the audit worker, which
// drains whatever the finishing requests enqueued.
func stopServing(srv shutdowner, stopWorker context.CancelFunc, timeout time.Duration) error {
	defer stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildHandlers wires the audit publisher, verifier and domain services onto
// infra. sink may be nil when audit fan-out is disabled.
func buildHandlers(cfg config.Server, log *slog.Logger, m *metrics.Metrics, infra *infrastructure, sink audit.Sink) ([]routeRegistrar, error) {
	publisherOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if sink != nil {
		publisherOpts = append(publisherOpts, audit.WithSink(sink))
	}
	publisher := audit.NewPublisher(infra.auditStore, publisherOpts...)

	verifier := verification.NewCachedVerifier(
		verification.NewStubVerifier(log),
		infra.verificationCache,
		cfg.VerificationCacheTTL,
		log,
		m,
	)

	attestations, err := attestationservice.New(infra.attestationStore, infra.runner, publisher, verifier,
		attestationservice.WithLogger(log),
		attestationservice.WithMetrics(m),
		attestationservice.WithRegulatedMode(cfg.RegulatedMode),
		attestationservice.WithDefaultVersion(cfg.AttestationVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("attestation service: %w", err)
	}
	consents, err := consentservice.New(infra.consentStore, infra.runner, publisher,
		consentservice.WithLogger(log),
		consentservice.WithMetrics(m),
		consentservice.WithRegulatedMode(cfg.RegulatedMode),
		consentservice.WithPolicyVersion(cfg.ConsentPolicyVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("consent service: %w", err)
	}

	return []routeRegistrar{
		attestationhandler.New(attestations, log),
		consenthandler.New(consents, log),
	}, nil
}

// infrastructure holds the backing stores chosen from config. Without
// DATABASE_URL everything runs in memory.
type infrastructure struct {
	db                *sql.DB
	redis             *redis.Client
	producer          *kafka.Producer
	runner            tx.Runner
	attestationStore  attestationservice.Store
	consentStore      consentservice.Store
	auditStore        audit.Store
	verificationCache verification.Cache
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		infra.db = db
		infra.runner = tx.NewSQLRunner(db)
		infra.attestationStore = attestationstore.NewPostgres(db)
		infra.consentStore = consentstore.NewPostgres(db)
		infra.auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		infra.runner = tx.NewShardedRunner()
		infra.attestationStore = attestationstore.NewInMemoryStore()
		infra.consentStore = consentstore.NewInMemoryStore()
		infra.auditStore = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		infra.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		infra.redis = rc
		infra.verificationCache = verification.NewRedisCache(rc.Client)
	} else {
		infra.verificationCache = verification.NewMemoryCache()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			infra.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		infra.producer = producer
		log.Info("audit fan-out enabled", "topic", cfg.Kafka.AuditTopic)
	}
	return infra, nil
}

// health reports each configured dependency. Unconfigured ones are omitted.
func (i *infrastructure) health(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if i.db != nil {
		checks["postgres"] = i.db.PingContext(ctx)
	}
	if i.redis != nil {
		checks["redis"] = i.redis.Health(ctx)
	}
	if i.producer != nil {
		checks["kafka"] = i.producer.Ping(ctx)
	}
	return checks
}

func (i *infrastructure) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}
