package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creatorpay/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the settlement engine.
// A nil or disabled provider turns every Record call into a no-op.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	reader        sdkmetric.Reader // overrides the exporter pipeline when set (tests)
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	reconciliationsCounter       metric.Int64Counter
	batchGroupsCounter           metric.Int64Counter
	batchRunDurationHist         metric.Float64Histogram
	payoutAttemptsCounter        metric.Int64Counter
	payoutAmountCounter          metric.Int64Counter
	retryRunsCounter             metric.Int64Counter
	natsMessagesReceivedCounter  metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
	databaseQueriesCounter       metric.Int64Counter
	databaseQueryDurationHist    metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// NewMetricsProviderWithReader creates a provider that exports through the given reader
func NewMetricsProviderWithReader(cfg *config.Config, reader sdkmetric.Reader) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
		reader: reader,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(dialCtx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)

	mp.meter = mp.meterProvider.Meter("creatorpay")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.reconciliationsCounter, err = mp.meter.Int64Counter(
		ReconciliationsTotal,
		metric.WithDescription("Payments reconciled into settlements, by source and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconciliations counter: %w", err)
	}

	mp.batchGroupsCounter, err = mp.meter.Int64Counter(
		BatchGroupsTotal,
		metric.WithDescription("Creator groups processed by the batch sweep, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch groups counter: %w", err)
	}

	mp.batchRunDurationHist, err = mp.meter.Float64Histogram(
		BatchRunDuration,
		metric.WithDescription("Duration of batch sweeps in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch run duration histogram: %w", err)
	}

	mp.payoutAttemptsCounter, err = mp.meter.Int64Counter(
		PayoutAttemptsTotal,
		metric.WithDescription("Payout rail attempts, by mode and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payout attempts counter: %w", err)
	}

	mp.payoutAmountCounter, err = mp.meter.Int64Counter(
		PayoutAmountTotal,
		metric.WithDescription("Total amount paid out to creators in minor units"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payout amount counter: %w", err)
	}

	mp.retryRunsCounter, err = mp.meter.Int64Counter(
		RetryRunsTotal,
		metric.WithDescription("Scheduled retry sweeps executed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry runs counter: %w", err)
	}

	mp.natsMessagesReceivedCounter, err = mp.meter.Int64Counter(
		NATSMessagesReceivedTotal,
		metric.WithDescription("Total number of NATS messages received"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages received counter: %w", err)
	}

	mp.natsMessagesPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	mp.databaseQueriesCounter, err = mp.meter.Int64Counter(
		DatabaseQueriesTotal,
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create database queries counter: %w", err)
	}

	mp.databaseQueryDurationHist, err = mp.meter.Float64Histogram(
		DatabaseQueryDuration,
		metric.WithDescription("Duration of database queries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create database query duration histogram: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordReconciliation records one payment passing through a reconciliation path
func (mp *MetricsProvider) RecordReconciliation(source, outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.reconciliationsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelSource, source),
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// RecordBatchGroup records the outcome of one creator group in a batch sweep
func (mp *MetricsProvider) RecordBatchGroup(outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.batchGroupsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelOutcome, outcome)),
	)
}

// RecordBatchRun records how long a batch sweep took
func (mp *MetricsProvider) RecordBatchRun(duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	mp.batchRunDurationHist.Record(context.Background(), duration.Seconds())
}

// RecordPayoutAttempt records a payout rail attempt and, on success, the amount paid
func (mp *MetricsProvider) RecordPayoutAttempt(mode, outcome string, amount int64) {
	if !mp.isEnabled() {
		return
	}

	mp.payoutAttemptsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelMode, mode),
			attribute.String(LabelOutcome, outcome),
		),
	)
	if outcome == OutcomeSucceeded {
		mp.payoutAmountCounter.Add(context.Background(), amount)
	}
}

// RecordRetryRun records a scheduled retry sweep
func (mp *MetricsProvider) RecordRetryRun() {
	if !mp.isEnabled() {
		return
	}

	mp.retryRunsCounter.Add(context.Background(), 1)
}

// RecordNATSMessageReceived records a NATS message being received
func (mp *MetricsProvider) RecordNATSMessageReceived(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsMessagesReceivedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// RecordDatabaseQuery records a database query with duration
func (mp *MetricsProvider) RecordDatabaseQuery(repository, method string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelRepository, repository),
		attribute.String(LabelMethod, method),
	)

	mp.databaseQueriesCounter.Add(context.Background(), 1, attrs)
	mp.databaseQueryDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// MeasureDatabaseQuery returns a function to measure database query duration
// Usage:
//
//	defer observability.GetMetrics().MeasureDatabaseQuery("settlement", "Search")()
func (mp *MetricsProvider) MeasureDatabaseQuery(repository, method string) func() {
	start := time.Now()
	return func() {
		mp.RecordDatabaseQuery(repository, method, time.Since(start))
	}
}

// isEnabled checks if metrics are enabled and instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider. It is nil until
// InitializeGlobalMetrics runs, which the Record methods tolerate.
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
