package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/diagnoml/platform/pkg/common/logger"
)

// Scheduler drives periodic evaluation ticks. It is the only clock in the
// control loop; external triggers go straight to Tick.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
}

func NewScheduler(o *Orchestrator, interval time.Duration) *Scheduler {
	return &Scheduler{orchestrator: o, interval: interval}
}

// Run blocks until the context is cancelled. A tick that finds another
// evaluation in flight is dropped, not queued: the next interval will look
// at the same data anyway.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.orchestrator.Tick(ctx, TriggerSchedule)
			if errors.Is(err, ErrEvaluationInProgress) {
				logger.Log.Debug("scheduled tick dropped: evaluation in progress")
				continue
			}
			if err != nil {
				logger.Log.WithError(err).Error("scheduled evaluation failed")
				continue
			}
			logger.Log.WithFields(map[string]interface{}{
				"action":         result.Action,
				"feedback_count": result.FeedbackCount,
			}).Info("scheduled evaluation complete")
		}
	}
}
