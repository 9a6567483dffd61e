package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/dayshift/backend/internal/auth"
	"github.com/dayshift/backend/internal/bookings"
	"github.com/dayshift/backend/internal/compliance"
	"github.com/dayshift/backend/internal/config"
	"github.com/dayshift/backend/internal/database"
	"github.com/dayshift/backend/internal/disputes"
	"github.com/dayshift/backend/internal/ledger"
	"github.com/dayshift/backend/internal/metrics"
	"github.com/dayshift/backend/internal/notify"
	"github.com/dayshift/backend/internal/release"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running and DATABASE_URL is correct", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	metrics.Register()

	// Notifications: the emitter's insert func is set after the River client
	// is created (breaks init cycle).
	emitter := notify.NewEmitter(nil, logger)

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable; notifications will be retried by the queue", "error", err)
		}
		notifier = notify.NewRedisNotifier(rdb, cfg.NotifyChannelPrefix)
	}

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(pool, ledgerRepo, ledgerRepo)

	// Compliance
	complianceSvc := compliance.NewService(pool, compliance.NewRepository(pool), cfg.ComplianceLocation)

	// Bookings
	bookingSvc := bookings.NewService(pool, bookings.NewRepository(pool), ledgerSvc, complianceSvc, emitter, logger)
	bookingSvc.ReviewWindow = cfg.ReviewWindow
	bookingSvc.Currency = cfg.DefaultCurrency

	// Disputes
	disputeSvc := disputes.NewService(pool, disputes.NewRepository(pool), bookingSvc, emitter, logger)

	// Release scheduler
	scheduler := release.NewScheduler(bookingSvc, logger)
	scheduler.BatchSize = cfg.ReleaseBatchSize
	scheduler.ItemTimeout = cfg.ReleaseItemTimeout

	workers := river.NewWorkers()
	river.AddWorker(workers, release.NewReleaseDuePaymentsWorker(scheduler, cfg.ReleaseInterval))
	river.AddWorker(workers, notify.NewWorker(notifier))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{release.PeriodicJob(cfg.ReleaseInterval)},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	emitter.SetInsert(func(ctx context.Context, args notify.NotifyArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	})

	// Auth
	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	mux := http.NewServeMux()
	RegisterRoutes(mux, routeDeps{
		pool:       pool,
		auth:       authSvc,
		bookings:   bookingSvc,
		scheduler:  scheduler,
		disputes:   disputeSvc,
		compliance: complianceSvc,
		ledger:     ledgerSvc,
		logger:     logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
