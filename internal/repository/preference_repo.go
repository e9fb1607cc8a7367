package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dailyverse/internal/model"
	"dailyverse/pkg/metrics"
)

type PreferenceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPreferenceRepository(db *pgxpool.Pool, logger *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{
		db:     db,
		logger: logger,
	}
}

const preferenceColumns = `
        p.user_id, COALESCE(u.email, ''), COALESCE(p.timezone, ''), COALESCE(p.preferred_time, ''),
        p.push_enabled, p.email_enabled, p.is_active, COALESCE(p.experience_level, '')
`

// ListEligible returns active recipients with at least one channel enabled.
func (r *PreferenceRepository) ListEligible(ctx context.Context) ([]model.RecipientPreference, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("select", "notification_preferences", time.Since(start)) }()

	query := `
        SELECT` + preferenceColumns + `
        FROM notification_preferences p
        LEFT JOIN users u ON u.id = p.user_id
        WHERE p.is_active = TRUE
          AND (p.push_enabled = TRUE OR p.email_enabled = TRUE)
        ORDER BY p.user_id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible recipients: %w", err)
	}
	defer rows.Close()

	var prefs []model.RecipientPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// GetByUserID re-reads one recipient's preferences. Returns ErrNotFound when absent.
func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID string) (*model.RecipientPreference, error) {
	query := `
        SELECT` + preferenceColumns + `
        FROM notification_preferences p
        LEFT JOIN users u ON u.id = p.user_id
        WHERE p.user_id = $1
    `
	p, err := scanPreference(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences for %s: %w", userID, err)
	}
	return &p, nil
}

func scanPreference(row pgx.Row) (model.RecipientPreference, error) {
	var (
		p    model.RecipientPreference
		tier string
	)
	err := row.Scan(
		&p.UserID,
		&p.Email,
		&p.Timezone,
		&p.PreferredLocalTime,
		&p.PushEnabled,
		&p.EmailEnabled,
		&p.IsActive,
		&tier,
	)
	p.ExperienceTier = model.ParseTier(tier)
	return p, err
}
