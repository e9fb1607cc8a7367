// Package audit persists delivery outcomes and run summaries and raises the
// error-rate alert.
package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
	"dailyverse/pkg/logger"
	"dailyverse/pkg/metrics"
)

const DefaultAlertThreshold = 0.10

type DeliveryWriter interface {
	Insert(ctx context.Context, rec *model.DeliveryRecord) error
}

type RunWriter interface {
	Insert(ctx context.Context, s *model.RunSummary, alert *mqcontracts.ErrorRateAlertPayload) error
}

type Recorder struct {
	deliveries DeliveryWriter
	runs       RunWriter
	threshold  float64
	logger     *zap.Logger
	now        func() time.Time
}

func NewRecorder(deliveries DeliveryWriter, runs RunWriter, threshold float64, logger *zap.Logger) *Recorder {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return &Recorder{
		deliveries: deliveries,
		runs:       runs,
		threshold:  threshold,
		logger:     logger,
		now:        time.Now,
	}
}

// RecordOutcome appends one delivery record. repository.ErrDuplicateDelivery is
// returned unchanged so callers can treat it as benign.
func (r *Recorder) RecordOutcome(ctx context.Context, rec *model.DeliveryRecord) error {
	log := logger.WithTrace(ctx, r.logger)

	err := r.deliveries.Insert(ctx, rec)
	switch {
	case errors.Is(err, repository.ErrDuplicateDelivery):
		metrics.RecordDeliveryRecord("duplicate")
		log.Info("Delivery already recorded for today, skipping",
			zap.String("user_id", rec.UserID),
		)
		return err
	case err != nil:
		log.Error("Failed to persist delivery record",
			zap.String("user_id", rec.UserID),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
		return err
	}

	metrics.RecordDeliveryRecord(string(rec.Status))
	log.Debug("Delivery record persisted",
		zap.Int64("record_id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.String("status", string(rec.Status)),
	)
	return nil
}

// RecordRunSummary fills ErrorRate and Alerted, emits metrics and persists s.
// The alert is advisory and never fails the run.
func (r *Recorder) RecordRunSummary(ctx context.Context, s *model.RunSummary) error {
	log := logger.WithTrace(ctx, r.logger)

	s.ErrorRate = ComputeErrorRate(s.Errors, s.UsersProcessed)
	s.Alerted = s.ErrorRate > r.threshold
	metrics.RecordRun(time.Duration(s.DurationMs)*time.Millisecond, s.ErrorRate)

	var alert *mqcontracts.ErrorRateAlertPayload
	if s.Alerted {
		metrics.Alerts.WithLabelValues("error_rate").Inc()
		log.Error("Delivery error rate above threshold",
			zap.String("severity", "high"),
			zap.Float64("error_rate", s.ErrorRate),
			zap.Float64("threshold", r.threshold),
			zap.Int("errors", s.Errors),
			zap.Int("users_processed", s.UsersProcessed),
		)
		alert = &mqcontracts.ErrorRateAlertPayload{
			RunID:     s.ID,
			Severity:  "high",
			ErrorRate: s.ErrorRate,
			Threshold: r.threshold,
			Errors:    s.Errors,
			Processed: s.UsersProcessed,
			RaisedAt:  r.now().UTC(),
		}
	}

	if err := r.runs.Insert(ctx, s, alert); err != nil {
		log.Error("Failed to persist run summary", zap.Error(err))
		return err
	}

	log.Info("Delivery run completed",
		zap.Int("users_processed", s.UsersProcessed),
		zap.Int("notifications_sent", s.NotificationsSent),
		zap.Int("errors", s.Errors),
		zap.Float64("error_rate", s.ErrorRate),
		zap.Int64("duration_ms", s.DurationMs),
	)
	return nil
}

// ComputeErrorRate returns errors/processed, or 0 when nothing was processed.
func ComputeErrorRate(errs, processed int) float64 {
	if processed <= 0 {
		return 0
	}
	return float64(errs) / float64(processed)
}
