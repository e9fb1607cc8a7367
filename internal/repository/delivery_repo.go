package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/model"
	"dailyverse/pkg/metrics"
	"dailyverse/pkg/outbox"
	"dailyverse/pkg/trace"
	"dailyverse/pkg/util"
)

type DeliveryRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewDeliveryRepository(db *pgxpool.Pool, logger *zap.Logger) *DeliveryRepository {
	return &DeliveryRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

// HasSentToday reports whether a non-test sent record exists for userID on day (UTC).
func (r *DeliveryRepository) HasSentToday(ctx context.Context, userID string, day time.Time) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM delivery_records
            WHERE user_id = $1
              AND delivery_date = $2
              AND status = 'sent'
              AND is_test = FALSE
        )
    `
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, model.UTCDay(day)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check sent today for %s: %w", userID, err)
	}
	return exists, nil
}

// HasRecordToday reports whether any non-test record, sent or failed, exists
// for userID on day (UTC).
func (r *DeliveryRepository) HasRecordToday(ctx context.Context, userID string, day time.Time) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM delivery_records
            WHERE user_id = $1
              AND delivery_date = $2
              AND is_test = FALSE
        )
    `
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, model.UTCDay(day)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check records today for %s: %w", userID, err)
	}
	return exists, nil
}

// Insert appends rec and its outbox event in one transaction.
// A second sent record for the same user and day yields ErrDuplicateDelivery.
func (r *DeliveryRepository) Insert(ctx context.Context, rec *model.DeliveryRecord) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "delivery_records", time.Since(start)) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO delivery_records
            (user_id, notification_type, title, message, status, is_test, delivery_date, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query,
		rec.UserID,
		rec.NotificationType,
		rec.Title,
		rec.Message,
		string(rec.Status),
		rec.IsTest,
		model.UTCDay(rec.DeliveryDate),
		rec.Metadata,
	).Scan(&rec.ID, &rec.CreatedAt)
	if util.IsUniqueViolation(err) {
		return ErrDuplicateDelivery
	}
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}

	routingKey, payload := deliveryEvent(ctx, rec)
	if err := outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "delivery_record", strconv.FormatInt(rec.ID, 10), routingKey, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery record: %w", err)
	}
	return nil
}

func deliveryEvent(ctx context.Context, rec *model.DeliveryRecord) (string, any) {
	runID := trace.FromContext(ctx)
	if rec.Status == model.DeliveryStatusSent {
		channel, _ := rec.Metadata["channel"].(string)
		return mqcontracts.RoutingKeyNotificationDelivered, mqcontracts.NotificationDeliveredPayload{
			RunID:            runID,
			DeliveryRecordID: rec.ID,
			UserID:           rec.UserID,
			Channel:          channel,
			Title:            rec.Title,
			IsTest:           rec.IsTest,
			SentAt:           rec.CreatedAt,
		}
	}
	errDetail, _ := rec.Metadata["error"].(string)
	return mqcontracts.RoutingKeyNotificationFailed, mqcontracts.NotificationFailedPayload{
		RunID:            runID,
		DeliveryRecordID: rec.ID,
		UserID:           rec.UserID,
		Error:            errDetail,
		IsTest:           rec.IsTest,
		FailedAt:         rec.CreatedAt,
	}
}
