package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"creatorpay/database"
	"creatorpay/domain/entities"

	"github.com/jackc/pgx/v5"
)

const batchRunColumns = `
	id, period, settlements_created, payments_settled, payments_dropped,
	payouts_succeeded, payouts_failed, execution_summary, started_at, created_at`

// BatchRunRepository stores the audit trail of batch sweeps
type BatchRunRepository struct {
	q Queryable
}

// NewBatchRunRepository creates a new batch run repository
func NewBatchRunRepository(db *database.DB) *BatchRunRepository {
	return &BatchRunRepository{q: db.Pool}
}

func scanBatchRun(row pgx.Row) (*entities.BatchRun, error) {
	var run entities.BatchRun
	var summaryJSON []byte

	err := row.Scan(
		&run.ID,
		&run.Period,
		&run.SettlementsCreated,
		&run.PaymentsSettled,
		&run.PaymentsDropped,
		&run.PayoutsSucceeded,
		&run.PayoutsFailed,
		&summaryJSON,
		&run.StartedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &run.ExecutionSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution summary: %w", err)
		}
	}
	return &run, nil
}

// Create records a finished batch run
func (r *BatchRunRepository) Create(ctx context.Context, run *entities.BatchRun) error {
	var summaryJSON []byte
	if run.ExecutionSummary != nil {
		var err error
		summaryJSON, err = json.Marshal(run.ExecutionSummary)
		if err != nil {
			return fmt.Errorf("failed to marshal execution summary: %w", err)
		}
	}

	query := `
		INSERT INTO settlement_batch_runs
		(period, settlements_created, payments_settled, payments_dropped,
		 payouts_succeeded, payouts_failed, execution_summary, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.q.QueryRow(ctx, query,
		run.Period,
		run.SettlementsCreated,
		run.PaymentsSettled,
		run.PaymentsDropped,
		run.PayoutsSucceeded,
		run.PayoutsFailed,
		summaryJSON,
		run.StartedAt,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create batch run for period %s: %w", run.Period, err)
	}
	return nil
}

// GetLatestByPeriod returns the most recent run for a period, or nil if it was never swept
func (r *BatchRunRepository) GetLatestByPeriod(ctx context.Context, period string) (*entities.BatchRun, error) {
	query := `SELECT` + batchRunColumns + `
		FROM settlement_batch_runs
		WHERE period = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1`

	run, err := scanBatchRun(r.q.QueryRow(ctx, query, period))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest batch run for period %s: %w", period, err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first
func (r *BatchRunRepository) ListRecent(ctx context.Context, limit int) ([]*entities.BatchRun, error) {
	query := `SELECT` + batchRunColumns + `
		FROM settlement_batch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*entities.BatchRun, 0, limit)
	for rows.Next() {
		run, err := scanBatchRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over batch run rows: %w", err)
	}
	return runs, nil
}
