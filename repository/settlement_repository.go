package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creatorpay/database"
	"creatorpay/domain/entities"
	"creatorpay/infrastructure/observability"

	"github.com/jackc/pgx/v5"
)

const settlementColumns = `
	s.id, s.creator_id, s.period,
	s.total_sales_amount, s.platform_fee_amount, s.payout_amount,
	s.status, s.settled_at, s.retry_count, s.last_retry_at,
	s.created_at, s.updated_at`

// SettlementRepository implements the SettlementRepository interface
type SettlementRepository struct {
	q Queryable
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *database.DB) *SettlementRepository {
	return &SettlementRepository{q: db.Pool}
}

// newSettlementRepositoryWithTx creates a new settlement repository with a transaction
func newSettlementRepositoryWithTx(tx Queryable) *SettlementRepository {
	return &SettlementRepository{q: tx}
}

func scanSettlement(row pgx.Row, extra ...any) (*entities.Settlement, error) {
	var s entities.Settlement
	dest := []any{
		&s.ID, &s.CreatorID, &s.Period,
		&s.TotalSalesAmount, &s.PlatformFeeAmount, &s.PayoutAmount,
		&s.Status, &s.SettledAt, &s.RetryCount, &s.LastRetryAt,
		&s.CreatedAt, &s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettlementRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Settlement, error) {
	s, err := scanSettlement(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetByID retrieves a settlement by ID
func (r *SettlementRepository) GetByID(ctx context.Context, id int64) (*entities.Settlement, error) {
	s, err := r.getOne(ctx, `SELECT`+settlementColumns+` FROM settlements s WHERE s.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement %d: %w", id, err)
	}
	return s, nil
}

// GetByIDForUpdate retrieves a settlement by ID and locks its row
func (r *SettlementRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Settlement, error) {
	s, err := r.getOne(ctx, `SELECT`+settlementColumns+` FROM settlements s WHERE s.id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock settlement %d: %w", id, err)
	}
	return s, nil
}

// GetByCreatorAndPeriod retrieves the settlement for a creator and period
func (r *SettlementRepository) GetByCreatorAndPeriod(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	s, err := r.getOne(ctx, `SELECT`+settlementColumns+` FROM settlements s WHERE s.creator_id = $1 AND s.period = $2`, creatorID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement for creator %d period %s: %w", creatorID, period, err)
	}
	return s, nil
}

// GetByCreatorAndPeriodForUpdate retrieves and locks the settlement for a creator and period
func (r *SettlementRepository) GetByCreatorAndPeriodForUpdate(ctx context.Context, creatorID int64, period string) (*entities.Settlement, error) {
	s, err := r.getOne(ctx, `SELECT`+settlementColumns+` FROM settlements s WHERE s.creator_id = $1 AND s.period = $2 FOR UPDATE`, creatorID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to lock settlement for creator %d period %s: %w", creatorID, period, err)
	}
	return s, nil
}

// Create inserts a settlement. A concurrent or earlier insert for the same
// creator and period yields entities.ErrDuplicateSettlement.
func (r *SettlementRepository) Create(ctx context.Context, settlement *entities.Settlement) error {
	query := `
		INSERT INTO settlements (
			creator_id, period, total_sales_amount, platform_fee_amount, payout_amount,
			status, settled_at, retry_count, last_retry_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (creator_id, period) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := r.q.QueryRow(ctx, query,
		settlement.CreatorID,
		settlement.Period,
		settlement.TotalSalesAmount,
		settlement.PlatformFeeAmount,
		settlement.PayoutAmount,
		settlement.Status,
		settlement.SettledAt,
		settlement.RetryCount,
		settlement.LastRetryAt,
	).Scan(&settlement.ID, &settlement.CreatedAt, &settlement.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: creator %d period %s", entities.ErrDuplicateSettlement, settlement.CreatorID, settlement.Period)
	}
	if err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

// UpdateAmounts persists total, fee and payout in one statement
func (r *SettlementRepository) UpdateAmounts(ctx context.Context, settlement *entities.Settlement) error {
	query := `
		UPDATE settlements
		SET total_sales_amount = $2, platform_fee_amount = $3, payout_amount = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRow(ctx, query,
		settlement.ID,
		settlement.TotalSalesAmount,
		settlement.PlatformFeeAmount,
		settlement.PayoutAmount,
	).Scan(&settlement.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", entities.ErrSettlementNotFound, settlement.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update settlement %d amounts: %w", settlement.ID, err)
	}
	return nil
}

// UpdatePayoutState persists the payout lifecycle fields
func (r *SettlementRepository) UpdatePayoutState(ctx context.Context, settlement *entities.Settlement) error {
	query := `
		UPDATE settlements
		SET status = $2, settled_at = $3, retry_count = $4, last_retry_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRow(ctx, query,
		settlement.ID,
		settlement.Status,
		settlement.SettledAt,
		settlement.RetryCount,
		settlement.LastRetryAt,
	).Scan(&settlement.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", entities.ErrSettlementNotFound, settlement.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update settlement %d payout state: %w", settlement.ID, err)
	}
	return nil
}

// ListByCreator returns every settlement of a creator, newest period first
func (r *SettlementRepository) ListByCreator(ctx context.Context, creatorID int64) ([]*entities.Settlement, error) {
	query := `SELECT` + settlementColumns + `
		FROM settlements s
		WHERE s.creator_id = $1
		ORDER BY s.period DESC`

	rows, err := r.q.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements for creator %d: %w", creatorID, err)
	}
	defer rows.Close()

	settlements := make([]*entities.Settlement, 0)
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over settlement rows: %w", err)
	}
	return settlements, nil
}

// Search returns one page of settlements joined with creator names, plus the total match count
func (r *SettlementRepository) Search(ctx context.Context, filter entities.SettlementFilter) ([]*entities.SettlementSummary, int64, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("settlement", "Search")()

	filter.Normalize()
	where, args := buildSettlementWhere(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM settlements s JOIN creators c ON c.id = s.creator_id` + where
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	query := fmt.Sprintf(`SELECT%s, c.display_name
		FROM settlements s
		JOIN creators c ON c.id = s.creator_id%s
		ORDER BY s.period DESC, s.id DESC
		LIMIT $%d OFFSET $%d`, settlementColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Size, filter.Offset())

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search settlements: %w", err)
	}
	defer rows.Close()

	items := make([]*entities.SettlementSummary, 0, filter.Size)
	for rows.Next() {
		var name string
		s, err := scanSettlement(rows, &name)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan settlement summary: %w", err)
		}
		items = append(items, &entities.SettlementSummary{Settlement: *s, CreatorName: name})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over settlement rows: %w", err)
	}
	return items, total, nil
}

func buildSettlementWhere(f entities.SettlementFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.CreatorID != nil {
		args = append(args, *f.CreatorID)
		clauses = append(clauses, fmt.Sprintf("s.creator_id = $%d", len(args)))
	}
	if f.CreatorName != "" {
		args = append(args, "%"+escapeLike(f.CreatorName)+"%")
		clauses = append(clauses, fmt.Sprintf("c.display_name ILIKE $%d", len(args)))
	}
	if f.Period != "" {
		args = append(args, f.Period)
		clauses = append(clauses, fmt.Sprintf("s.period = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		clauses = append(clauses, fmt.Sprintf("s.status = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetRetryCandidates returns FAILED settlements with retries left whose last
// attempt happened before lastRetryBefore, oldest attempt first
func (r *SettlementRepository) GetRetryCandidates(ctx context.Context, maxRetries int, lastRetryBefore time.Time, limit int) ([]*entities.Settlement, error) {
	query := `SELECT` + settlementColumns + `
		FROM settlements s
		WHERE s.status = 'FAILED'
		  AND s.retry_count < $1
		  AND (s.last_retry_at IS NULL OR s.last_retry_at < $2)
		ORDER BY s.last_retry_at ASC NULLS FIRST, s.id ASC
		LIMIT $3`

	rows, err := r.q.Query(ctx, query, maxRetries, lastRetryBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get retry candidates: %w", err)
	}
	defer rows.Close()

	settlements := make([]*entities.Settlement, 0)
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over settlement rows: %w", err)
	}
	return settlements, nil
}

// GetStats aggregates payout totals and status counts in one pass
func (r *SettlementRepository) GetStats(ctx context.Context, currentPeriod string, maxRetries int) (*entities.SettlementStats, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("settlement", "GetStats")()

	query := `
		SELECT
			COALESCE(SUM(payout_amount) FILTER (WHERE status = 'COMPLETED'), 0)::BIGINT,
			COALESCE(SUM(payout_amount) FILTER (WHERE status = 'COMPLETED' AND period = $1), 0)::BIGINT,
			COUNT(*) FILTER (WHERE status = 'READY'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'FAILED' AND retry_count < $2),
			COUNT(*) FILTER (WHERE status = 'FAILED' AND retry_count >= $2)
		FROM settlements`

	stats := &entities.SettlementStats{CurrentPeriod: currentPeriod}
	err := r.q.QueryRow(ctx, query, currentPeriod, maxRetries).Scan(
		&stats.TotalCompletedPayout,
		&stats.CurrentPeriodCompletedPayout,
		&stats.ReadyCount,
		&stats.CompletedCount,
		&stats.FailedCount,
		&stats.RetryableCount,
		&stats.RetryExhaustedCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement stats: %w", err)
	}
	return stats, nil
}
