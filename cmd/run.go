package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"creatorpay/api"
	"creatorpay/application"
	"creatorpay/config"
	"creatorpay/database"
	"creatorpay/events"
	"creatorpay/infrastructure"
	"creatorpay/infrastructure/observability"
	"creatorpay/repository"
	"creatorpay/service"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// core holds what every entrypoint needs: storage, publishing and the settlement services
type core struct {
	cfg        *config.Config
	db         *database.DB
	bus        *events.Bus
	natsClient *infrastructure.NATSClient
	publisher  service.EventPublisher
	uowFactory service.UnitOfWorkFactory
	executor   *service.PayoutExecutor
	batch      *service.BatchReconciler
	batchRuns  *repository.BatchRunRepository
	retries    *service.RetryScheduler
}

func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// newCore connects to the database and message broker and builds the services
func newCore(ctx context.Context) (*core, error) {
	cfg := config.Get()
	configureLogging(cfg)

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	c := &core{cfg: cfg, db: db, bus: events.NewBus()}

	if cfg.NATSEnabled {
		log.WithField("servers", cfg.NATSServers).Info("Connecting to NATS...")
		c.natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := c.natsClient.Connect(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}

		mapper := infrastructure.NewEventSubjectMapper()
		if err := c.natsClient.EnsurePaymentEventStream(mapper); err != nil {
			c.close()
			return nil, fmt.Errorf("failed to ensure payment event stream: %w", err)
		}
		if err := c.natsClient.EnsureSettlementEventStream(mapper); err != nil {
			c.close()
			return nil, fmt.Errorf("failed to ensure settlement event stream: %w", err)
		}
		c.publisher = infrastructure.NewNATSEventPublisher(c.natsClient, mapper)
		log.Info("NATS connection established successfully")
	} else {
		log.Info("NATS disabled, settlement events stay in process")
		c.publisher = infrastructure.NewLocalEventPublisher(c.bus)
	}

	c.uowFactory = infrastructure.NewUnitOfWorkFactory(db, c.publisher)

	policy := service.PayoutPolicy{
		MaxRetries: cfg.MaxPayoutRetries,
		Cooldown:   cfg.PayoutRetryCooldown,
		Timeout:    cfg.PayoutTimeout,
	}
	c.executor = service.NewPayoutExecutor(c.uowFactory, infrastructure.NewLoggingPayoutRail(), policy)
	c.batchRuns = repository.NewBatchRunRepository(db)
	c.batch = service.NewBatchReconciler(c.uowFactory, c.executor, cfg.Location(), cfg.BatchPageSize).
		WithRunRecorder(c.batchRuns)
	c.retries = service.NewRetryScheduler(c.uowFactory, c.executor, policy)

	return c, nil
}

func (c *core) close() {
	if c.natsClient != nil {
		if err := c.natsClient.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS client")
		}
	}
	c.bus.Wait()
	log.Info("Closing database connection...")
	c.db.Close()
}

// newJobLock returns a Redis-backed lock when Redis is configured, otherwise an in-process one
func newJobLock(ctx context.Context, cfg *config.Config) (application.JobLock, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("Redis not configured, job locks are process-local")
		return infrastructure.NewLocalJobLock(), nil, nil
	}

	log.WithField("addr", cfg.RedisAddr).Info("Connecting to Redis...")
	client, err := infrastructure.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Redis connection established successfully")
	return infrastructure.NewRedisJobLock(client), client, nil
}

// Run initializes and starts the settlement service
func Run(ctx context.Context) error {
	log.Info("Starting creatorpay...")

	if err := observability.InitializeGlobalMetrics(ctx, config.Get()); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	cfg := c.cfg

	lock, redisClient, err := newJobLock(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Payment event consumers
	reconciler := service.NewIncrementalReconciler(c.uowFactory, cfg.Location())
	paymentHandler := application.NewPaymentEventHandler(reconciler)
	if c.natsClient != nil {
		subscriber := infrastructure.NewNATSEventSubscriber(c.natsClient, infrastructure.NewEventSubjectMapper())
		if err := application.RegisterPaymentSubscriptions(subscriber, paymentHandler); err != nil {
			return fmt.Errorf("failed to subscribe to payment events: %w", err)
		}
	} else {
		application.RegisterLocalPaymentSubscriptions(c.bus, reconciler, paymentHandler)
	}
	log.Info("Payment event consumers registered")

	// Background workers
	batchWorker := application.NewBatchReconcileWorker(c.batch, lock, cfg.BatchRunDay, cfg.BatchRunHour)
	stopBatch := batchWorker.Start(ctx)
	defer stopBatch()

	retryWorker := application.NewPayoutRetryWorker(c.retries, lock, cfg.PayoutRetryInterval)
	stopRetry := retryWorker.Start(ctx)
	defer stopRetry()

	// HTTP API
	queries := service.NewSettlementQueryService(c.uowFactory, cfg.MaxPayoutRetries, cfg.Location())
	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Dependencies{
			Queries:   queries,
			Batch:     c.batch,
			BatchRuns: c.batchRuns,
			Payouts:   c.executor,
			DB:        c.db,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Infof("creatorpay is running in %s mode...", cfg.Environment)
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	log.Info("Shutting down creatorpay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down HTTP server")
	}
	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down metrics")
	}

	log.Info("Shutdown completed")
	return nil
}

// RunBatch sweeps a single period once. An empty period means the month before now.
func RunBatch(ctx context.Context, period string) error {
	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	var summary *service.BatchRunSummary
	if period == "" {
		summary, err = c.batch.RunPreviousPeriod(ctx, time.Now())
	} else {
		summary, err = c.batch.Run(ctx, period)
	}
	if err != nil {
		return fmt.Errorf("batch reconciliation failed: %w", err)
	}

	log.WithFields(log.Fields{
		"period":              summary.Period,
		"settlements_created": summary.SettlementsCreated,
		"skipped_existing":    summary.SkippedExisting,
		"groups_failed":       summary.GroupsFailed,
		"payments_dropped":    summary.PaymentsDropped,
		"payouts_succeeded":   summary.PayoutsSucceeded,
		"payouts_failed":      summary.PayoutsFailed,
	}).Info("Batch reconciliation finished")
	return nil
}

// RunRetries runs one retry pass over failed settlements
func RunRetries(ctx context.Context) error {
	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	summary, err := c.retries.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("payout retry run failed: %w", err)
	}

	log.WithFields(log.Fields{
		"candidates": summary.Candidates,
		"succeeded":  summary.Succeeded,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
		"errors":     summary.Errors,
	}).Info("Payout retry run finished")
	return nil
}
