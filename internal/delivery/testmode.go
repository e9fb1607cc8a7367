package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dailyverse/internal/message"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
	"dailyverse/pkg/logger"
	"dailyverse/pkg/otel"
	"dailyverse/pkg/trace"
)

// TestResult reports what a manual test send did for one user.
type TestResult struct {
	RunID    string               `json:"run_id"`
	UserID   string               `json:"user_id"`
	Status   model.DeliveryStatus `json:"status"`
	Channel  string               `json:"channel,omitempty"`
	Title    string               `json:"title"`
	RecordID int64                `json:"record_id,omitempty"`
	Errors   []string             `json:"errors,omitempty"`
}

// RunTest sends one prefixed message to userID regardless of today's history or
// the delivery window. The record is written with IsTest set.
func (o *Orchestrator) RunTest(ctx context.Context, userID string) (res *TestResult, err error) {
	runID := trace.NewRunID()
	ctx = trace.WithContext(ctx, runID)
	ctx, span := otel.StartSpan(ctx, "delivery.RunTest")
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, o.logger).With(zap.String("user_id", userID))

	pref, err := o.deps.Recipients.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load preferences: %w", ErrSystemFailure, err)
	}

	now := o.now()
	msg := message.AsTest(o.deps.Messages.Generate(pref.ExperienceTier))
	rec := o.deliver(ctx, log, now, *pref, msg, true)

	res = &TestResult{
		RunID:  runID,
		UserID: userID,
		Status: rec.Status,
		Title:  rec.Title,
	}
	if ch, ok := rec.Metadata["channel"].(string); ok {
		res.Channel = ch
	}
	if errs, ok := rec.Metadata["errors"].([]string); ok {
		res.Errors = errs
	}

	if err := o.deps.Recorder.RecordOutcome(ctx, rec); err != nil {
		return res, fmt.Errorf("persist test delivery: %w", err)
	}
	res.RecordID = rec.ID

	log.Info("Test notification processed",
		zap.String("status", string(res.Status)),
		zap.String("channel", res.Channel),
	)
	return res, nil
}
