// Package delivery runs one delivery cycle: select eligible recipients, send the
// daily message over their enabled channels and leave an audit trail.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dailyverse/internal/channel"
	"dailyverse/internal/eligibility"
	"dailyverse/internal/message"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
	"dailyverse/pkg/logger"
	"dailyverse/pkg/metrics"
	"dailyverse/pkg/otel"
	"dailyverse/pkg/trace"
)

var (
	// ErrSystemFailure fails the whole invocation: datastore unreachable or a
	// channel left unconfigured.
	ErrSystemFailure = errors.New("system failure")
	ErrRecipientData = errors.New("recipient data failure")
)

const claimHandler = "daily_delivery"

type RecipientStore interface {
	ListEligible(ctx context.Context) ([]model.RecipientPreference, error)
	GetByUserID(ctx context.Context, userID string) (*model.RecipientPreference, error)
}

type SubscriptionStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	Deactivate(ctx context.Context, subscriptionID int64) error
}

// DeliveryLog answers history questions for one user and UTC day. Test
// records are ignored by both methods.
type DeliveryLog interface {
	HasSentToday(ctx context.Context, userID string, day time.Time) (bool, error)
	HasRecordToday(ctx context.Context, userID string, day time.Time) (bool, error)
}

type Recorder interface {
	RecordOutcome(ctx context.Context, rec *model.DeliveryRecord) error
	RecordRunSummary(ctx context.Context, s *model.RunSummary) error
}

// Claimer guards a (user, day) pair across overlapping invocations.
type Claimer interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type MessageSource interface {
	Generate(tier model.ExperienceTier) model.GeneratedMessage
}

type Config struct {
	Workers     int
	Timezone    string
	SendTimeout time.Duration
	Retry       RetryPolicy
}

// Deps groups the collaborators of an Orchestrator. Claimer may be nil.
type Deps struct {
	Recipients    RecipientStore
	Subscriptions SubscriptionStore
	Deliveries    DeliveryLog
	Recorder      Recorder
	Claimer       Claimer
	Push          channel.PushSender
	Email         channel.EmailSender
	Messages      MessageSource
}

type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Push == nil:
		return nil, fmt.Errorf("%w: push sender not configured", ErrSystemFailure)
	case deps.Email == nil:
		return nil, fmt.Errorf("%w: email sender not configured", ErrSystemFailure)
	case deps.Recipients == nil || deps.Subscriptions == nil || deps.Deliveries == nil || deps.Recorder == nil:
		return nil, fmt.Errorf("%w: datastore not configured", ErrSystemFailure)
	}
	if deps.Messages == nil {
		deps.Messages = message.NewTimeSeededGenerator()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	cfg.Retry = cfg.Retry.normalized()

	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}, nil
}

type tally struct {
	mu        sync.Mutex
	processed int
	sent      int
	errors    int
}

func (t *tally) add(r result) {
	if r == resultSkipped {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	switch r {
	case resultSent:
		t.sent++
	case resultFailed:
		t.errors++
	}
}

type result int

const (
	resultSkipped result = iota
	resultSent
	resultFailed
	// resultDuplicate: another invocation recorded today's delivery first.
	resultDuplicate
)

// RunCycle processes every eligible recipient once for the instant now.
// A cancelled ctx stops scheduling; recipients already started run to completion
// and their records stand, but the summary is not persisted.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) (summary *model.RunSummary, err error) {
	runID := trace.NewRunID()
	ctx = trace.WithContext(ctx, runID)
	ctx, span := otel.StartSpan(ctx, "delivery.RunCycle")
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, o.logger)
	start := o.now()

	recipients, err := o.deps.Recipients.ListEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load recipients: %w", ErrSystemFailure, err)
	}
	span.SetAttributes(attribute.Int("delivery.candidates", len(recipients)))
	log.Info("Delivery run started",
		zap.Time("now", now),
		zap.Int("candidates", len(recipients)),
		zap.Int("workers", o.cfg.Workers),
	)

	var (
		t tally
		g errgroup.Group
	)
	g.SetLimit(o.cfg.Workers)
	for _, pref := range recipients {
		if ctx.Err() != nil {
			break
		}
		pref := pref
		g.Go(func() error {
			t.add(o.processRecipient(ctx, now, pref))
			return nil
		})
	}
	_ = g.Wait()

	summary = &model.RunSummary{
		ID:                runID,
		RunTime:           now,
		UsersProcessed:    t.processed,
		NotificationsSent: t.sent,
		Errors:            t.errors,
		Timezone:          o.cfg.Timezone,
		DurationMs:        o.now().Sub(start).Milliseconds(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("Delivery run cancelled, summary not persisted",
			zap.Int("users_processed", summary.UsersProcessed),
			zap.Int("notifications_sent", summary.NotificationsSent),
		)
		return summary, fmt.Errorf("delivery run cancelled: %w", ctxErr)
	}

	if err := o.deps.Recorder.RecordRunSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("persist run summary: %w", err)
	}
	return summary, nil
}

func (o *Orchestrator) processRecipient(parent context.Context, now time.Time, pref model.RecipientPreference) (res result) {
	// Detached so a cancelled run does not abort a half-finished recipient.
	ctx := context.WithoutCancel(parent)
	ctx, span := otel.StartSpan(ctx, "delivery.processRecipient",
		oteltrace.WithAttributes(attribute.String("user.id", pref.UserID)),
	)
	log := logger.WithTrace(ctx, o.logger).With(zap.String("user_id", pref.UserID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recipient processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			detail := fmt.Sprintf("panic: %v", r)
			res = o.recordFailure(ctx, log, now, pref.UserID, detail)
			otel.EndSpan(span, errors.New(detail))
			return
		}
		span.SetAttributes(attribute.Int("delivery.result", int(res)))
		otel.EndSpan(span, nil)
	}()

	dayKey := pref.UserID + ":" + model.UTCDay(now).Format(time.DateOnly)
	if o.deps.Claimer != nil {
		if !o.deps.Claimer.AcquireOnce(ctx, claimHandler, dayKey) {
			return resultSkipped
		}
		defer o.deps.Claimer.Release(ctx, claimHandler, dayKey)
	}

	fresh, err := o.deps.Recipients.GetByUserID(ctx, pref.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Recipient preferences removed since load")
		return o.recordFailure(ctx, log, now, pref.UserID,
			fmt.Sprintf("%s: preferences not found", ErrRecipientData))
	}
	if err != nil {
		log.Error("Failed to reload recipient preferences", zap.Error(err))
		return o.recordFailure(ctx, log, now, pref.UserID, "reload preferences: "+err.Error())
	}

	sent, err := o.deps.Deliveries.HasSentToday(ctx, fresh.UserID, now)
	if err != nil {
		log.Error("Failed to check today's deliveries", zap.Error(err))
		return o.recordFailure(ctx, log, now, pref.UserID, "check delivery history: "+err.Error())
	}
	if !eligibility.IsEligible(now, *fresh, sent) {
		return resultSkipped
	}
	// One record per recipient per day: a failed attempt earlier in the
	// window is not retried on a later tick.
	attempted, err := o.deps.Deliveries.HasRecordToday(ctx, fresh.UserID, now)
	if err != nil {
		log.Error("Failed to check today's deliveries", zap.Error(err))
		return o.recordFailure(ctx, log, now, pref.UserID, "check delivery history: "+err.Error())
	}
	if attempted {
		log.Debug("Recipient already attempted today, skipping")
		return resultSkipped
	}

	msg := o.deps.Messages.Generate(fresh.ExperienceTier)
	rec := o.deliver(ctx, log, now, *fresh, msg, false)

	if err := o.deps.Recorder.RecordOutcome(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateDelivery) {
			return resultDuplicate
		}
		return resultFailed
	}
	if rec.Status == model.DeliveryStatusSent {
		return resultSent
	}
	return resultFailed
}

// recordFailure audits a recipient that failed before any channel was tried.
func (o *Orchestrator) recordFailure(ctx context.Context, log *zap.Logger, now time.Time, userID, detail string) result {
	rec := &model.DeliveryRecord{
		UserID:           userID,
		NotificationType: model.NotificationTypeDaily,
		Status:           model.DeliveryStatusFailed,
		DeliveryDate:     model.UTCDay(now),
		Metadata:         map[string]any{"error": detail},
	}
	if runID := trace.FromContext(ctx); runID != "" {
		rec.Metadata["run_id"] = runID
	}
	if err := o.deps.Recorder.RecordOutcome(ctx, rec); err != nil {
		log.Error("Failed to record delivery failure", zap.Error(err))
	}
	return resultFailed
}

// deliver fans msg out to every enabled channel and folds the outcomes into one record.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, now time.Time, pref model.RecipientPreference, msg model.GeneratedMessage, isTest bool) *model.DeliveryRecord {
	var (
		delivered []string
		failures  []string
	)
	if pref.PushEnabled {
		if ok, detail := o.deliverPush(ctx, log, pref.UserID, msg); ok {
			delivered = append(delivered, model.ChannelPush)
		} else {
			failures = append(failures, model.ChannelPush+": "+detail)
		}
	}
	if pref.EmailEnabled {
		if ok, detail := o.deliverEmail(ctx, pref.Email, msg); ok {
			delivered = append(delivered, model.ChannelEmail)
		} else {
			failures = append(failures, model.ChannelEmail+": "+detail)
		}
	}
	if !pref.HasChannel() {
		failures = append(failures, "no channel enabled")
	}

	rec := &model.DeliveryRecord{
		UserID:           pref.UserID,
		NotificationType: model.NotificationTypeDaily,
		Title:            msg.Title,
		Message:          msg.Body,
		IsTest:           isTest,
		DeliveryDate:     model.UTCDay(now),
		Metadata: map[string]any{
			"scripture_reference": msg.ScriptureReference,
			"tier":                string(msg.Tier),
		},
	}
	if runID := trace.FromContext(ctx); runID != "" {
		rec.Metadata["run_id"] = runID
	}
	if len(failures) > 0 {
		rec.Metadata["errors"] = failures
	}

	if len(delivered) > 0 {
		rec.Status = model.DeliveryStatusSent
		rec.Metadata["channel"] = delivered[0]
		rec.Metadata["channels"] = delivered
		log.Info("Notification delivered",
			zap.Strings("channels", delivered),
			zap.Strings("failures", failures),
		)
	} else {
		rec.Status = model.DeliveryStatusFailed
		rec.Metadata["error"] = strings.Join(failures, "; ")
		log.Warn("Notification not delivered on any channel",
			zap.Strings("failures", failures),
		)
	}
	return rec
}

func (o *Orchestrator) deliverPush(ctx context.Context, log *zap.Logger, userID string, msg model.GeneratedMessage) (bool, string) {
	subs, err := o.deps.Subscriptions.ListActiveByUser(ctx, userID)
	if err != nil {
		return false, "load subscriptions: " + err.Error()
	}
	if len(subs) == 0 {
		return false, "no active push subscriptions"
	}

	var (
		ok      bool
		details []string
	)
	for _, sub := range subs {
		out := o.sendPush(ctx, log, sub, msg)
		switch out.Kind {
		case channel.Delivered:
			ok = true
		case channel.PermanentFailure:
			details = append(details, out.Detail)
			if err := o.deps.Subscriptions.Deactivate(ctx, sub.ID); err != nil {
				log.Error("Failed to deactivate subscription",
					zap.Int64("subscription_id", sub.ID),
					zap.Error(err),
				)
				continue
			}
			metrics.SubscriptionsDeactivated.Inc()
			log.Info("Deactivated expired push subscription", zap.Int64("subscription_id", sub.ID))
		default:
			details = append(details, out.Detail)
		}
	}
	return ok, strings.Join(details, "; ")
}

// sendPush applies the retry policy to one subscription. Only transient
// failures are retried.
func (o *Orchestrator) sendPush(ctx context.Context, log *zap.Logger, sub model.PushSubscription, msg model.GeneratedMessage) channel.Outcome {
	policy := o.cfg.Retry
	var out channel.Outcome
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		metrics.RecordAttempt(model.ChannelPush)
		sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
		out = o.deps.Push.Send(sendCtx, sub, msg)
		cancel()

		if out.Kind != channel.TransientFailure || attempt == policy.MaxAttempts {
			break
		}
		delay := policy.Delay(attempt)
		metrics.RecordRetry(model.ChannelPush)
		log.Debug("Retrying push delivery",
			zap.Int64("subscription_id", sub.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("detail", out.Detail),
		)
		if err := o.sleep(ctx, delay); err != nil {
			break
		}
	}
	metrics.RecordOutcome(model.ChannelPush, out.Kind.String())
	return out
}

func (o *Orchestrator) deliverEmail(ctx context.Context, address string, msg model.GeneratedMessage) (bool, string) {
	if strings.TrimSpace(address) == "" {
		metrics.RecordOutcome(model.ChannelEmail, "recipient_data_failure")
		return false, fmt.Sprintf("%s: missing email address", ErrRecipientData)
	}
	metrics.RecordAttempt(model.ChannelEmail)
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	defer cancel()
	out := o.deps.Email.Send(sendCtx, address, msg)
	metrics.RecordOutcome(model.ChannelEmail, out.Kind.String())
	return out.Delivered(), out.Detail
}
