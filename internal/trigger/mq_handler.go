package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/repository"
	"dailyverse/pkg/mq"
)

// NewRunRequestHandler turns delivery.run.requested messages into runs.
// A request that arrives while a cycle is running is acked and dropped; the
// running cycle already covers it.
func NewRunRequestHandler(s *Scheduler, logger *zap.Logger) mq.MessageHandler {
	return func(ctx context.Context, data json.RawMessage) error {
		var req mqcontracts.RunRequestedPayload
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: decode run request: %v", mq.ErrPoisonMessage, err)
		}

		if req.TestUserID != "" {
			res, err := s.TriggerTest(ctx, req.TestUserID)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %v", mq.ErrPoisonMessage, err)
			}
			if err != nil {
				return err
			}
			logger.Info("Queued test run completed",
				zap.String("user_id", req.TestUserID),
				zap.String("status", string(res.Status)),
			)
			return nil
		}

		summary, err := s.Trigger(ctx)
		if errors.Is(err, ErrRunInProgress) {
			logger.Info("Run request dropped, run already in progress",
				zap.String("requested_by", req.RequestedBy),
			)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Queued run completed",
			zap.String("run_id", summary.ID),
			zap.String("requested_by", req.RequestedBy),
		)
		return nil
	}
}
