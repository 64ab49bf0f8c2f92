package repository

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/database"
	"creatorpay/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SettlementReversalRepository implements the SettlementReversalRepository interface
type SettlementReversalRepository struct {
	q Queryable
}

// NewSettlementReversalRepository creates a new settlement reversal repository
func NewSettlementReversalRepository(db *database.DB) *SettlementReversalRepository {
	return &SettlementReversalRepository{q: db.Pool}
}

func newSettlementReversalRepositoryWithTx(tx Queryable) *SettlementReversalRepository {
	return &SettlementReversalRepository{q: tx}
}

// CreateIfAbsent records a cancelled payment's subtraction. Returns false on replay.
func (r *SettlementReversalRepository) CreateIfAbsent(ctx context.Context, reversal *entities.SettlementReversal) (bool, error) {
	query := `
		INSERT INTO settlement_reversals (settlement_id, payment_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (settlement_id, payment_id) DO NOTHING
		RETURNING id, created_at`

	err := r.q.QueryRow(ctx, query, reversal.SettlementID, reversal.PaymentID, reversal.Amount).
		Scan(&reversal.ID, &reversal.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create settlement reversal for payment %d: %w", reversal.PaymentID, err)
	}
	return true, nil
}

// GetBySettlement returns every reversal of a settlement
func (r *SettlementReversalRepository) GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementReversal, error) {
	query := `
		SELECT id, settlement_id, payment_id, amount, created_at
		FROM settlement_reversals
		WHERE settlement_id = $1
		ORDER BY id`

	rows, err := r.q.Query(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reversals for settlement %d: %w", settlementID, err)
	}
	defer rows.Close()

	reversals := make([]*entities.SettlementReversal, 0)
	for rows.Next() {
		var rv entities.SettlementReversal
		if err := rows.Scan(&rv.ID, &rv.SettlementID, &rv.PaymentID, &rv.Amount, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement reversal: %w", err)
		}
		reversals = append(reversals, &rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reversal rows: %w", err)
	}
	return reversals, nil
}
