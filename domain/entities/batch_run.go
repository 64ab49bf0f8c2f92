package entities

import "time"

// BatchRun is the audit record of one batch sweep. A period may be swept more than once.
type BatchRun struct {
	ID                 int64                  `db:"id"`
	Period             string                 `db:"period"`
	SettlementsCreated int                    `db:"settlements_created"`
	PaymentsSettled    int                    `db:"payments_settled"`
	PaymentsDropped    int64                  `db:"payments_dropped"`
	PayoutsSucceeded   int                    `db:"payouts_succeeded"`
	PayoutsFailed      int                    `db:"payouts_failed"`
	ExecutionSummary   map[string]interface{} `db:"execution_summary"`
	StartedAt          time.Time              `db:"started_at"`
	CreatedAt          time.Time              `db:"created_at"`
}
