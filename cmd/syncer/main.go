package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"listing_syncer/internal/api"
	"listing_syncer/internal/config"
	"listing_syncer/internal/domain"
	"listing_syncer/internal/publisher"
	"listing_syncer/internal/scheduler"
	"listing_syncer/internal/service"
	"listing_syncer/internal/source/otis"
	"listing_syncer/internal/storage/badger"
	"listing_syncer/internal/storage/postgres"
	"listing_syncer/internal/terms"
	"listing_syncer/internal/translate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	startMode := flag.String("start", "", "schedule an import of this mode at startup (e.g. pois, fields)")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	stateDB, err := badger.Open(cfg.State.Dir)
	if err != nil {
		logger.Error("failed to open state store", "error", err, "dir", cfg.State.Dir)
		os.Exit(1)
	}
	defer stateDB.Close()

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	} else {
		logger.Info("rabbitmq url not set, listing events disabled")
	}

	listingStore := postgres.NewListingStore(db)
	termStore := postgres.NewTermStore(db)
	fieldStore := postgres.NewFieldStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)
	taskStore := postgres.NewTaskStore(db, cfg.Sync.TaskVisibility)
	txManager := postgres.NewTransactionManager(db)
	stateStore := badger.NewStateStore(stateDB, cfg.Sync.StateTTL)

	client := otis.NewClient(otis.ClientConfig{
		BaseURL:                    cfg.API.BaseURL,
		AuthURL:                    cfg.API.AuthURL,
		Username:                   cfg.API.Username,
		Password:                   cfg.API.Password,
		Timeout:                    cfg.API.Timeout,
		RateLimit:                  cfg.API.RateLimit,
		Burst:                      cfg.API.Burst,
		BreakerMaxRequests:         cfg.API.Breaker.MaxRequests,
		BreakerInterval:            cfg.API.Breaker.Interval,
		BreakerTimeout:             cfg.API.Breaker.Timeout,
		BreakerConsecutiveFailures: cfg.API.Breaker.ConsecutiveFailures,
	}, logger)
	source := otis.New(client, logger)

	translator := translate.New(source, fieldStore, cfg.Sync.ApprovedOnly(), logger)
	resolver := terms.NewResolver(termStore, logger)

	syncService := service.NewSyncService(
		source,
		translator,
		resolver,
		listingStore,
		fieldStore,
		syncStateStore,
		stateStore,
		taskStore,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	sched := scheduler.NewScheduler(syncService, scheduler.Intervals{
		Incremental: cfg.Sync.Interval,
		Reconcile:   cfg.Sync.ReconcileInterval,
		Expire:      cfg.Sync.ExpireInterval,
	}, logger)
	worker := scheduler.NewWorker(taskStore, syncService, scheduler.WorkerConfig{
		PollInterval: cfg.Sync.PollInterval,
		Timeout:      cfg.Sync.TaskVisibility,
		MaxAttempts:  cfg.Sync.TaskMaxAttempts,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewHandler(syncService, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *startMode != "" {
		if err := syncService.Start(ctx, domain.Mode(*startMode), service.StartOptions{}); err != nil {
			logger.Error("failed to start import", "mode", *startMode, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("starting listing syncer",
		"source", source.Name(),
		"interval", cfg.Sync.Interval,
		"http_addr", cfg.HTTP.Addr,
	)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
			cancel()
		}
	}()

	go func() {
		defer wg.Done()
		if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker error", "error", err)
			cancel()
		}
	}()

	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	wg.Wait()
	logger.Info("listing syncer stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
