package repository

import (
	"context"
	"fmt"
	"time"

	"creatorpay/database"
	"creatorpay/domain/entities"
	"creatorpay/infrastructure/observability"
)

// attributedPayments derives each payment's creator through
// orders -> contents | subscriptions -> subscription_plans -> channels -> creators.
// creator_id is NULL when any link is missing.
const attributedPayments = `
	WITH derived AS (
		SELECT
			p.id AS payment_id,
			p.order_id,
			p.amount,
			p.approved_at,
			COALESCE(content_channel.creator_id, plan_channel.creator_id) AS derived_creator_id
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		LEFT JOIN contents ct ON ct.id = o.content_id
		LEFT JOIN channels content_channel ON content_channel.id = ct.channel_id
		LEFT JOIN subscriptions sub ON sub.id = o.subscription_id
		LEFT JOIN subscription_plans sp ON sp.id = sub.plan_id
		LEFT JOIN channels plan_channel ON plan_channel.id = sp.channel_id
		WHERE p.status = 'CONFIRMED'
		  AND p.approved_at >= $1
		  AND p.approved_at < $2
	),
	attributed AS (
		SELECT d.payment_id, d.order_id, d.amount, d.approved_at, c.id AS creator_id
		FROM derived d
		LEFT JOIN creators c ON c.id = d.derived_creator_id
	)`

// PaymentRepository reads confirmed payments for the batch sweep
type PaymentRepository struct {
	q Queryable
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{q: db.Pool}
}

func newPaymentRepositoryWithTx(tx Queryable) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// ListConfirmedBetween returns up to limit attributable payments approved in
// [from, to), ordered by (creator_id, payment_id), strictly after the cursor
func (r *PaymentRepository) ListConfirmedBetween(ctx context.Context, from, to time.Time, after entities.PaymentCursor, limit int) ([]*entities.PaymentRecord, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("payment", "ListConfirmedBetween")()

	query := attributedPayments + `
		SELECT payment_id, order_id, creator_id, amount, approved_at
		FROM attributed
		WHERE creator_id IS NOT NULL
		  AND (creator_id, payment_id) > ($3, $4)
		ORDER BY creator_id, payment_id
		LIMIT $5`

	rows, err := r.q.Query(ctx, query, from, to, after.CreatorID, after.PaymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*entities.PaymentRecord, 0, limit)
	for rows.Next() {
		var p entities.PaymentRecord
		if err := rows.Scan(&p.PaymentID, &p.OrderID, &p.CreatorID, &p.Amount, &p.ApprovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over payment rows: %w", err)
	}
	return payments, nil
}

// CountUnattributedBetween counts confirmed payments in [from, to) with no derivable creator
func (r *PaymentRepository) CountUnattributedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := attributedPayments + `
		SELECT COUNT(*) FROM attributed WHERE creator_id IS NULL`

	var count int64
	if err := r.q.QueryRow(ctx, query, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unattributed payments: %w", err)
	}
	return count, nil
}
