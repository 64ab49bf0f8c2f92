package repository

import (
	"context"
	"errors"
	"fmt"

	"creatorpay/database"
	"creatorpay/domain/entities"

	"github.com/jackc/pgx/v5"
)

// CreatorRepository resolves creators from the catalog and order tables
type CreatorRepository struct {
	q Queryable
}

// NewCreatorRepository creates a new creator repository
func NewCreatorRepository(db *database.DB) *CreatorRepository {
	return &CreatorRepository{q: db.Pool}
}

func newCreatorRepositoryWithTx(tx Queryable) *CreatorRepository {
	return &CreatorRepository{q: tx}
}

// ResolveCreatorID follows an order to the creator who owns what was bought.
// Content orders go through the content's channel; subscription orders go
// through the plan's channel.
func (r *CreatorRepository) ResolveCreatorID(ctx context.Context, orderID int64) (int64, error) {
	query := `
		SELECT c.id
		FROM orders o
		LEFT JOIN contents ct ON ct.id = o.content_id
		LEFT JOIN channels content_channel ON content_channel.id = ct.channel_id
		LEFT JOIN subscriptions sub ON sub.id = o.subscription_id
		LEFT JOIN subscription_plans sp ON sp.id = sub.plan_id
		LEFT JOIN channels plan_channel ON plan_channel.id = sp.channel_id
		JOIN creators c ON c.id = COALESCE(content_channel.creator_id, plan_channel.creator_id)
		WHERE o.id = $1`

	var creatorID int64
	err := r.q.QueryRow(ctx, query, orderID).Scan(&creatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: order %d", entities.ErrUnattributableCreator, orderID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve creator for order %d: %w", orderID, err)
	}
	return creatorID, nil
}

// GetDisplayName returns the creator's display name, or "" if the creator is unknown
func (r *CreatorRepository) GetDisplayName(ctx context.Context, creatorID int64) (string, error) {
	var name string
	err := r.q.QueryRow(ctx, `SELECT display_name FROM creators WHERE id = $1`, creatorID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name for creator %d: %w", creatorID, err)
	}
	return name, nil
}
