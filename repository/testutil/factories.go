package testutil

import (
	"context"
	"testing"
	"time"

	"creatorpay/database"
	"creatorpay/domain/entities"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// Catalog is a creator with one channel, one content item and one subscription plan
type Catalog struct {
	CreatorID int64
	ChannelID int64
	ContentID int64
	PlanID    int64
}

// CreateTestCatalog inserts a creator and the catalog rows that point back at them
func CreateTestCatalog(t *testing.T, db *database.DB, displayName string) *Catalog {
	ctx := context.Background()
	c := &Catalog{}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO creators (display_name) VALUES ($1) RETURNING id`,
			displayName).Scan(&c.CreatorID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO channels (creator_id, name) VALUES ($1, $2) RETURNING id`,
			c.CreatorID, displayName+" channel").Scan(&c.ChannelID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO contents (channel_id, title, price) VALUES ($1, 'lesson', 5000) RETURNING id`,
			c.ChannelID).Scan(&c.ContentID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO subscription_plans (channel_id, name, price) VALUES ($1, 'monthly', 3000) RETURNING id`,
			c.ChannelID).Scan(&c.PlanID)
	})
	require.NoError(t, err)
	return c
}

// CreateTestOrphanChannel inserts a channel whose creator_id matches no creator row
func CreateTestOrphanChannel(t *testing.T, db *database.DB) *Catalog {
	ctx := context.Background()
	c := &Catalog{CreatorID: 999999}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO channels (creator_id, name) VALUES ($1, 'orphan') RETURNING id`,
			c.CreatorID).Scan(&c.ChannelID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO contents (channel_id, title, price) VALUES ($1, 'orphan content', 1000) RETURNING id`,
			c.ChannelID).Scan(&c.ContentID)
	})
	require.NoError(t, err)
	return c
}

// CreateTestContentOrder inserts an order for a content item and returns its ID
func CreateTestContentOrder(t *testing.T, db *database.DB, contentID, amount int64) int64 {
	var orderID int64
	err := db.QueryRow(context.Background(), `
		INSERT INTO orders (buyer_id, content_id, original_amount, final_amount)
		VALUES (1, $1, $2, $2)
		RETURNING id`, contentID, amount).Scan(&orderID)
	require.NoError(t, err)
	return orderID
}

// CreateTestSubscriptionOrder inserts a subscription on the plan and an order for it
func CreateTestSubscriptionOrder(t *testing.T, db *database.DB, planID, amount int64) int64 {
	ctx := context.Background()
	var orderID int64

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var subscriptionID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO subscriptions (plan_id, subscriber_id) VALUES ($1, 1) RETURNING id`,
			planID).Scan(&subscriptionID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO orders (buyer_id, subscription_id, original_amount, final_amount)
			VALUES (1, $1, $2, $2)
			RETURNING id`, subscriptionID, amount).Scan(&orderID)
	})
	require.NoError(t, err)
	return orderID
}

// CreateTestConfirmedPayment inserts a CONFIRMED payment for the order
func CreateTestConfirmedPayment(t *testing.T, db *database.DB, orderID, amount int64, approvedAt time.Time) *entities.PaymentConfirmation {
	p := &entities.PaymentConfirmation{
		OrderID:    orderID,
		Amount:     amount,
		ApprovedAt: approvedAt,
	}
	err := db.QueryRow(context.Background(), `
		INSERT INTO payments (order_id, amount, status, approved_at)
		VALUES ($1, $2, 'CONFIRMED', $3)
		RETURNING id`, orderID, amount, approvedAt).Scan(&p.PaymentID)
	require.NoError(t, err)
	return p
}

// CreateTestPaymentWithStatus inserts a payment in an arbitrary state
func CreateTestPaymentWithStatus(t *testing.T, db *database.DB, orderID, amount int64, status string, approvedAt *time.Time) int64 {
	var paymentID int64
	err := db.QueryRow(context.Background(), `
		INSERT INTO payments (order_id, amount, status, approved_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, orderID, amount, status, approvedAt).Scan(&paymentID)
	require.NoError(t, err)
	return paymentID
}

// CreateTestSettlement builds a READY settlement value without persisting it
func CreateTestSettlement(creatorID int64, period string, total int64) *entities.Settlement {
	s, err := entities.NewSettlement(creatorID, period, total)
	if err != nil {
		panic(err)
	}
	return s
}

// CreateTestBatchRun builds a batch run record with plausible counts
func CreateTestBatchRun(period string, startedAt time.Time) *entities.BatchRun {
	return &entities.BatchRun{
		Period:             period,
		SettlementsCreated: 2,
		PaymentsSettled:    5,
		PaymentsDropped:    1,
		PayoutsSucceeded:   2,
		PayoutsFailed:      0,
		ExecutionSummary: map[string]interface{}{
			"groups_seen": 2,
		},
		StartedAt: startedAt,
	}
}
