package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dailyverse/internal/model"
)

type SubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SubscriptionRepository) ListActiveByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	query := `
        SELECT id, user_id, endpoint, auth_key, p256dh_key, is_active, created_at
        FROM push_subscriptions
        WHERE user_id = $1 AND is_active = TRUE
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", userID, err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Endpoint,
			&s.AuthKey,
			&s.P256dhKey,
			&s.IsActive,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Deactivate flags a subscription inactive; the row is kept for history.
func (r *SubscriptionRepository) Deactivate(ctx context.Context, subscriptionID int64) error {
	query := `
        UPDATE push_subscriptions
        SET is_active = FALSE, updated_at = NOW()
        WHERE id = $1 AND is_active = TRUE
    `
	result, err := r.db.Exec(ctx, query, subscriptionID)
	if err != nil {
		return fmt.Errorf("deactivate subscription %d: %w", subscriptionID, err)
	}
	if result.RowsAffected() > 0 {
		r.logger.Info("Deactivated push subscription",
			zap.Int64("subscription_id", subscriptionID),
		)
	}
	return nil
}
