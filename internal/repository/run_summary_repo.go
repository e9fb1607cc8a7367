package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/model"
	"dailyverse/pkg/outbox"
)

type RunSummaryRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewRunSummaryRepository(db *pgxpool.Pool, logger *zap.Logger) *RunSummaryRepository {
	return &RunSummaryRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

// Insert appends the run summary together with its completion event and, when
// alert is non-nil, the error-rate alert event.
func (r *RunSummaryRepository) Insert(ctx context.Context, s *model.RunSummary, alert *mqcontracts.ErrorRateAlertPayload) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO delivery_runs
            (id, run_time, users_processed, notifications_sent, errors, timezone, duration_ms, error_rate, alerted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	if _, err := tx.Exec(ctx, query,
		s.ID,
		s.RunTime,
		s.UsersProcessed,
		s.NotificationsSent,
		s.Errors,
		s.Timezone,
		s.DurationMs,
		s.ErrorRate,
		s.Alerted,
	); err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}

	completed := mqcontracts.RunCompletedPayload{
		RunID:             s.ID,
		RunTime:           s.RunTime,
		UsersProcessed:    s.UsersProcessed,
		NotificationsSent: s.NotificationsSent,
		Errors:            s.Errors,
		ErrorRate:         s.ErrorRate,
		DurationMs:        s.DurationMs,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "delivery_run", s.ID, mqcontracts.RoutingKeyRunCompleted, completed); err != nil {
		return err
	}
	if alert != nil {
		if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "delivery_run", s.ID, mqcontracts.RoutingKeyErrorRateAlert, alert); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run summary: %w", err)
	}
	return nil
}
