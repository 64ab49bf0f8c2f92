package observability

// Metric name prefixes
const (
	MetricPrefix = "creatorpay"
)

// Metric names
const (
	// Reconciliation metrics
	ReconciliationsTotal = MetricPrefix + ".reconciliations_total"
	BatchGroupsTotal     = MetricPrefix + ".batch.groups_total"
	BatchRunDuration     = MetricPrefix + ".batch.run_duration"

	// Payout metrics
	PayoutAttemptsTotal = MetricPrefix + ".payouts.attempts_total"
	PayoutAmountTotal   = MetricPrefix + ".payouts.amount_total"
	RetryRunsTotal      = MetricPrefix + ".payouts.retry_runs_total"

	// NATS metrics
	NATSMessagesReceivedTotal  = MetricPrefix + ".nats.messages_received_total"
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"

	// Database metrics
	DatabaseQueriesTotal  = MetricPrefix + ".database.queries_total"
	DatabaseQueryDuration = MetricPrefix + ".database.query_duration"
)

// Label keys
const (
	LabelOutcome   = "outcome"
	LabelSource    = "source"
	LabelMode      = "mode"
	LabelEventType = "event_type"

	// Database labels
	LabelRepository = "repository"
	LabelMethod     = "method"
)

// Reconciliation sources
const (
	SourceIncremental  = "incremental"
	SourceBatch        = "batch"
	SourceCancellation = "cancellation"
)

// Outcomes
const (
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeSkipped        = "skipped"
	OutcomeCreated        = "created"
	OutcomeFailed         = "failed"
	OutcomeSucceeded      = "succeeded"
	OutcomeRejected       = "rejected"
)
