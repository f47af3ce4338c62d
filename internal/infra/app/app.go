package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/config"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/database"
	kafkainfra "github.com/MOCDATA-PTY/eclick-identity/internal/infra/kafka"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/logger"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/notify"
	redisinfra "github.com/MOCDATA-PTY/eclick-identity/internal/infra/redis"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/security"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/telemetry"
	postgresrepo "github.com/MOCDATA-PTY/eclick-identity/internal/repository/postgres"
	redisrepo "github.com/MOCDATA-PTY/eclick-identity/internal/repository/redis"
	"github.com/MOCDATA-PTY/eclick-identity/internal/usecase"
)

// Application owns process-wide wiring: config, storage, the event
// publisher, the usecase services and the metrics endpoint.
type Application struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	metrics  *http.Server

	Login       *usecase.LoginService
	Passcodes   *usecase.PasscodeService
	Credentials *usecase.CredentialService
	Security    *usecase.AccountSecurityService
}

// New builds the application from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			app.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{})
	if err != nil {
		app.closeInfra()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Hour
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	notifier := notify.NewLogNotifier(log)
	passwordValidator := security.DefaultPasswordValidator()

	app.Security = usecase.NewAccountSecurityService(repos.SecurityStates, eventPublisher, cfg.Security.LockThreshold, cfg.Security.LockDuration, log)
	app.Login = usecase.NewLoginService(repos.Principals, app.Security, eventPublisher, metrics, log)
	app.Passcodes = usecase.NewPasscodeService(cfg, repos.Passcodes, repos.Principals, rateLimitStore, eventPublisher, notifier, metrics, log)
	app.Credentials = usecase.NewCredentialService(cfg, repos.Principals, app.Passcodes, passwordValidator, eventPublisher, log)

	return app, nil
}

// Run starts the metrics endpoint and the passcode janitor, then blocks
// until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{
			Addr:    fmt.Sprintf(":%d", a.cfg.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			a.logger.Info("metrics endpoint listening", zap.String("addr", a.metrics.Addr))
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	if a.cfg.Janitor.Enabled {
		go a.runJanitor(ctx)
	}

	<-ctx.Done()
	return a.Shutdown()
}

func (a *Application) runJanitor(ctx context.Context) {
	interval := a.cfg.Janitor.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("passcode janitor started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Passcodes.SweepExpired(ctx, a.cfg.Janitor.Retention); err != nil {
				a.logger.Warn("passcode sweep failed", zap.Error(err))
			}
		}
	}
}

// Shutdown releases every resource the application holds.
func (a *Application) Shutdown() error {
	var errs []error

	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
		cancel()
	}

	a.closeInfra()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.logger.Info("shutdown complete")
	return nil
}

func (a *Application) closeInfra() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis client", zap.Error(err))
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
