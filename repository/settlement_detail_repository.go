package repository

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/database"
	"creatorpay/domain/entities"

	"github.com/jackc/pgx/v5"
)

// SettlementDetailRepository implements the SettlementDetailRepository interface
type SettlementDetailRepository struct {
	q Queryable
}

// NewSettlementDetailRepository creates a new settlement detail repository
func NewSettlementDetailRepository(db *database.DB) *SettlementDetailRepository {
	return &SettlementDetailRepository{q: db.Pool}
}

func newSettlementDetailRepositoryWithTx(tx Queryable) *SettlementDetailRepository {
	return &SettlementDetailRepository{q: tx}
}

// CreateIfAbsent records a payment against a settlement. The unique
// (settlement_id, payment_id) constraint makes replays return false.
func (r *SettlementDetailRepository) CreateIfAbsent(ctx context.Context, detail *entities.SettlementDetail) (bool, error) {
	query := `
		INSERT INTO settlement_details (settlement_id, payment_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (settlement_id, payment_id) DO NOTHING
		RETURNING id, created_at`

	err := r.q.QueryRow(ctx, query, detail.SettlementID, detail.PaymentID, detail.Amount).
		Scan(&detail.ID, &detail.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create settlement detail for payment %d: %w", detail.PaymentID, err)
	}
	return true, nil
}

// GetBySettlementAndPayment returns the detail for a payment on a settlement, or nil
func (r *SettlementDetailRepository) GetBySettlementAndPayment(ctx context.Context, settlementID, paymentID int64) (*entities.SettlementDetail, error) {
	query := `
		SELECT id, settlement_id, payment_id, amount, created_at
		FROM settlement_details
		WHERE settlement_id = $1 AND payment_id = $2`

	var d entities.SettlementDetail
	err := r.q.QueryRow(ctx, query, settlementID, paymentID).Scan(
		&d.ID, &d.SettlementID, &d.PaymentID, &d.Amount, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement detail for payment %d: %w", paymentID, err)
	}
	return &d, nil
}

// GetBySettlement returns every detail of a settlement in application order
func (r *SettlementDetailRepository) GetBySettlement(ctx context.Context, settlementID int64) ([]*entities.SettlementDetail, error) {
	query := `
		SELECT id, settlement_id, payment_id, amount, created_at
		FROM settlement_details
		WHERE settlement_id = $1
		ORDER BY id`

	rows, err := r.q.Query(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get details for settlement %d: %w", settlementID, err)
	}
	defer rows.Close()

	details := make([]*entities.SettlementDetail, 0)
	for rows.Next() {
		var d entities.SettlementDetail
		if err := rows.Scan(&d.ID, &d.SettlementID, &d.PaymentID, &d.Amount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement detail: %w", err)
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over detail rows: %w", err)
	}
	return details, nil
}
