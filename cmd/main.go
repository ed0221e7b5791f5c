package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpsouza441/ticker-monitor/internal/adapters/config"
	nooptracker "github.com/rpsouza441/ticker-monitor/internal/adapters/errors/noop"
	sentrytracker "github.com/rpsouza441/ticker-monitor/internal/adapters/errors/sentry"
	"github.com/rpsouza441/ticker-monitor/internal/adapters/postgres"
	"github.com/rpsouza441/ticker-monitor/internal/adapters/quotes"
	"github.com/rpsouza441/ticker-monitor/internal/adapters/rabbitmq"
	"github.com/rpsouza441/ticker-monitor/internal/api/health"
	"github.com/rpsouza441/ticker-monitor/internal/api/stats"
	"github.com/rpsouza441/ticker-monitor/internal/domain/job"
	repo "github.com/rpsouza441/ticker-monitor/internal/repository/postgres"
	"github.com/rpsouza441/ticker-monitor/internal/scheduler"
	"github.com/rpsouza441/ticker-monitor/internal/services/fetch"
	"github.com/rpsouza441/ticker-monitor/internal/services/persistence"
	"github.com/rpsouza441/ticker-monitor/internal/services/ratelimit"
	pkgerrors "github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.LogFormat); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)
	log.Infof("Monitoring %d symbols, daily run at %s %s",
		len(cfg.Symbols()), cfg.Scheduler.ExecutionTime, cfg.Scheduler.Timezone)

	tracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(tracker)

	// Dependencies
	db, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Errorf("Failed to connect to PostgreSQL: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	broker, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		log.Errorf("Failed to connect to RabbitMQ: %v", err)
		os.Exit(1)
	}
	defer broker.Close()

	source := quotes.NewHTTPSource(cfg.Provider, cfg.Fetch.RequestTimeout)

	// Repositories and services
	tickerRepo := repo.NewTickerRepository(db.DB())
	rateLimitRepo := repo.NewRateLimitRepository(db.DB())
	jobRepo := repo.NewJobRepository(db.DB())

	rateLimiter := ratelimit.NewService(rateLimitRepo)
	engine := fetch.NewEngine(source, rateLimiter, fetch.Config{
		BatchSize:       cfg.Fetch.BatchSize,
		InterBatchDelay: cfg.Fetch.InterBatchDelay(),
		BackoffBase:     cfg.Fetch.BackoffBase,
		BackoffMax:      cfg.Fetch.BackoffMaxSeconds,
		MaxRetries:      cfg.Fetch.MaxRetries,
	})
	persister := persistence.NewService(tickerRepo)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		log.Errorf("Invalid timezone: %v", err)
		os.Exit(1)
	}
	hour, minute, err := cfg.Scheduler.ExecutionClock()
	if err != nil {
		log.Errorf("Invalid execution time: %v", err)
		os.Exit(1)
	}

	consumer := scheduler.NewConsumer(broker, engine, persister, jobRepo, scheduler.Config{
		Location:      loc,
		ExecutionHour: hour,
		ExecutionMin:  minute,
		RequeueDelay:  cfg.Scheduler.RequeueDelay,
		MaxRetries:    cfg.RabbitMQ.MaxRetries,
		BackoffBase:   cfg.Fetch.BackoffBase,
		BackoffMax:    cfg.Fetch.BackoffMaxSeconds,
	})

	// Seed the first job when the queue is empty, due immediately.
	if err := seedInitialJob(broker, cfg, loc, log); err != nil {
		log.Warnf("Failed to seed initial job: %v", err)
	}

	// Health, metrics and ops listener
	healthHandler := health.New(db, broker, source, cfg.App.Name)
	mux := healthHandler.Router()
	stats.New(rateLimiter, tickerRepo).Register(mux)
	healthServer := &http.Server{Addr: cfg.Health.Addr, Handler: mux}
	go func() {
		log.Infof("Health listener on %s", cfg.Health.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Health listener failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx)
	}()

	// Wait for shutdown signal or consumer death
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Infof("Received signal %s, shutting down", sig)
		cancel()
		// Grace window for the in-flight job to settle.
		select {
		case <-consumerDone:
		case <-time.After(cfg.Scheduler.ShutdownGrace):
			log.Warn("Shutdown grace expired, closing broker connection")
			_ = broker.Close()
		}
	case err := <-consumerDone:
		if err != nil && !pkgerrors.Is(err, context.Canceled) {
			log.Errorf("Consumer terminated: %v", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthServer.Shutdown(shutdownCtx)
	_ = tracker.Flush(shutdownCtx)

	log.Info("Shutdown complete")
	os.Exit(exitCode)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) pkgerrors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return nooptracker.New()
	}

	tracker, err := sentrytracker.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return nooptracker.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// seedInitialJob enqueues the first collection job when the queue holds
// nothing, so a fresh deployment starts its daily chain.
func seedInitialJob(broker *rabbitmq.Client, cfg *config.Config, loc *time.Location, log *logger.Logger) error {
	depth, err := broker.QueueDepth()
	if err != nil {
		return err
	}
	if depth > 0 {
		log.Infof("Queue already holds %d message(s), skipping seed", depth)
		return nil
	}

	msg := job.NewMessage(cfg.Symbols(), time.Now().In(loc))
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := broker.Publish(ctx, body); err != nil {
		return err
	}

	log.Infof("Seeded initial job %s with %d symbols", msg.JobID, len(msg.TickerList))
	return nil
}
