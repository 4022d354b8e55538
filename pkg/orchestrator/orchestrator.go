// Package orchestrator owns the retraining decision for one model lineage.
// It runs the state machine IDLE → EVALUATING → TRAINING → VALIDATING →
// {PROMOTING | REJECTED} → IDLE, and it is the only writer of model status
// transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnoml/platform/pkg/common/config"
	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/common/retry"
	"github.com/diagnoml/platform/pkg/drift"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/feedback"
	"github.com/diagnoml/platform/pkg/monitoring"
	"github.com/diagnoml/platform/pkg/observability/metrics"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/training"
	"github.com/diagnoml/platform/pkg/warehouse"
)

const (
	StateIdle       = "IDLE"
	StateEvaluating = "EVALUATING"
	StateTraining   = "TRAINING"
	StateValidating = "VALIDATING"
	StatePromoting  = "PROMOTING"
	StateRejected   = "REJECTED"
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerFeedback Trigger = "feedback"
	TriggerManual   Trigger = "manual"
)

// ErrEvaluationInProgress rejects a tick while another one is running for
// the same lineage. The orchestrator is not reentrant.
var ErrEvaluationInProgress = errors.New("evaluation already in progress for this lineage")

// Action summarizes what a tick did.
const (
	ActionNone         = "none"
	ActionInconclusive = "inconclusive"
	ActionSkipped      = "skipped"
	ActionPromoted     = "promoted"
	ActionRejected     = "rejected"
)

type TickResult struct {
	Trigger       Trigger                `json:"trigger"`
	Action        string                 `json:"action"`
	FeedbackCount int                    `json:"feedback_count"`
	Drift         *models.DriftReport    `json:"drift,omitempty"`
	Candidate     *registry.ModelVersion `json:"candidate,omitempty"`
}

type Orchestrator struct {
	study    config.Study
	registry registry.Store
	records  warehouse.Store
	feedback *feedback.Service
	trainer  *training.Trainer
	detector *drift.Detector
	emitter  monitoring.Emitter
	ioRetry  retry.Policy
	space    training.SearchSpace

	busy  atomic.Bool
	mu    sync.RWMutex
	state string
	now   func() time.Time
}

func New(study config.Study, reg registry.Store, records warehouse.Store, fb *feedback.Service, trainer *training.Trainer, detector *drift.Detector, emitter monitoring.Emitter, ioRetry retry.Policy) *Orchestrator {
	return &Orchestrator{
		study:    study,
		registry: reg,
		records:  records,
		feedback: fb,
		trainer:  trainer,
		detector: detector,
		emitter:  emitter,
		ioRetry:  ioRetry,
		space:    training.DefaultSearchSpace(),
		state:    StateIdle,
		now:      time.Now,
	}
}

// State reports the current lifecycle state for monitoring endpoints.
func (o *Orchestrator) State() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Tick runs one full evaluation cycle. Exactly one tick can be in flight;
// concurrent callers get ErrEvaluationInProgress and no work happens twice.
func (o *Orchestrator) Tick(ctx context.Context, trig Trigger) (TickResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return TickResult{}, ErrEvaluationInProgress
	}
	defer func() {
		o.transition(ctx, o.State(), StateIdle)
		o.busy.Store(false)
	}()

	result := TickResult{Trigger: trig, Action: ActionNone}
	o.transition(ctx, StateIdle, StateEvaluating)

	feedbackCount, err := o.feedback.CountSinceWatermark(ctx)
	if err != nil {
		return result, fmt.Errorf("counting feedback: %w", err)
	}
	result.FeedbackCount = feedbackCount

	report, inconclusive, err := o.evaluateDrift(ctx)
	if err != nil {
		return result, err
	}
	result.Drift = report

	drifted := report != nil && report.Verdict == models.VerdictDrifted
	shouldTrain := drifted || feedbackCount >= o.study.MinFeedbackCount || trig == TriggerManual
	if !shouldTrain {
		if inconclusive {
			result.Action = ActionInconclusive
		}
		return result, nil
	}

	o.transition(ctx, StateEvaluating, StateTraining)

	// The watermark is consumed when training starts so the same feedback
	// records cannot trigger a second cycle, even if this run is skipped.
	if err := o.feedback.ConsumeWatermark(ctx); err != nil {
		return result, fmt.Errorf("consuming feedback watermark: %w", err)
	}

	candidate, err := o.train(ctx)
	if err != nil {
		if training.IsInsufficientData(err) {
			logger.Log.WithError(err).Info("training skipped")
			metrics.TrainingRuns.WithLabelValues("skipped").Inc()
			o.emitter.Emit(ctx, monitoring.EventTrainingSkipped, map[string]interface{}{"reason": err.Error()})
			result.Action = ActionSkipped
			return result, nil
		}
		return result, fmt.Errorf("training: %w", err)
	}
	result.Candidate = &candidate

	o.transition(ctx, StateTraining, StateValidating)

	promote, production, err := o.shouldPromote(ctx, candidate)
	if err != nil {
		return result, err
	}

	if promote {
		o.transition(ctx, StateValidating, StatePromoting)
		if err := o.ioRetry.Do(ctx, func() error { return o.registry.Promote(ctx, candidate.Version) }); err != nil {
			return result, fmt.Errorf("promoting version %d: %w", candidate.Version, err)
		}
		metrics.TrainingRuns.WithLabelValues("promoted").Inc()
		metrics.ProductionModelVersion.Set(float64(candidate.Version))
		o.emitter.Emit(ctx, monitoring.EventModelPromoted, map[string]interface{}{
			"version":        candidate.Version,
			"validation_auc": candidate.Metrics.ValidationAUC,
			"replaced":       productionVersion(production),
		})
		result.Action = ActionPromoted
		return result, nil
	}

	o.transition(ctx, StateValidating, StateRejected)
	if err := o.ioRetry.Do(ctx, func() error { return o.registry.Retire(ctx, candidate.Version) }); err != nil {
		return result, fmt.Errorf("retiring rejected candidate %d: %w", candidate.Version, err)
	}
	metrics.TrainingRuns.WithLabelValues("rejected").Inc()
	o.emitter.Emit(ctx, monitoring.EventModelRejected, map[string]interface{}{
		"version":          candidate.Version,
		"validation_auc":   candidate.Metrics.ValidationAUC,
		"production_auc":   production.Metrics.ValidationAUC,
		"promotion_margin": o.study.PromotionMargin,
	})
	result.Action = ActionRejected
	return result, nil
}

// evaluateDrift scores the recent serving window against the window the
// production model was trained on. No production model, or a window below
// the configured minimum, makes the result inconclusive rather than stable.
func (o *Orchestrator) evaluateDrift(ctx context.Context) (*models.DriftReport, bool, error) {
	production, err := o.registry.Production(ctx)
	if errors.Is(err, registry.ErrNoProduction) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolving production model: %w", err)
	}

	encoder, err := features.Restore(production.EncoderState)
	if err != nil {
		return nil, false, fmt.Errorf("restoring production encoder: %w", err)
	}

	now := o.now().UTC()
	reference, err := o.records.Window(ctx, production.CreatedAt.Add(-o.study.DriftWindow), production.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("loading reference window: %w", err)
	}
	current, err := o.records.Window(ctx, now.Add(-o.study.DriftWindow), now)
	if err != nil {
		return nil, false, fmt.Errorf("loading current window: %w", err)
	}

	refVectors, err := encoder.EncodeBatch(reference)
	if err != nil {
		return nil, false, fmt.Errorf("encoding reference window: %w", err)
	}
	curVectors, err := encoder.EncodeBatch(current)
	if err != nil {
		return nil, false, fmt.Errorf("encoding current window: %w", err)
	}

	refID := fmt.Sprintf("train-v%d", production.Version)
	curID := fmt.Sprintf("serving-%s", now.Format("2006-01-02T15:04"))
	report, err := o.detector.Detect(ctx, refID, curID, refVectors, curVectors, encoder.Names)
	if err != nil {
		if drift.IsInsufficientWindow(err) {
			logger.Log.WithError(err).Info("drift check inconclusive")
			return nil, true, nil
		}
		return nil, false, err
	}

	metrics.DriftAggregateScore.Set(report.AggregateScore)
	o.emitter.Emit(ctx, monitoring.EventDriftReport, map[string]interface{}{
		"reference_window": report.ReferenceWindowID,
		"current_window":   report.CurrentWindowID,
		"aggregate_score":  report.AggregateScore,
		"verdict":          report.Verdict,
	})
	return &report, false, nil
}

func (o *Orchestrator) train(ctx context.Context) (registry.ModelVersion, error) {
	now := o.now().UTC()
	records, err := o.records.Window(ctx, time.Time{}, now)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("loading training records: %w", err)
	}
	labels, err := o.feedback.All(ctx)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("loading feedback: %w", err)
	}
	snapshot := warehouse.BuildSnapshot(records, labels)
	return o.trainer.Train(ctx, snapshot, o.space)
}

// shouldPromote applies the gating rule: without a production model the
// first valid candidate always wins; otherwise the candidate must beat
// production by at least the configured margin.
func (o *Orchestrator) shouldPromote(ctx context.Context, candidate registry.ModelVersion) (bool, registry.ModelVersion, error) {
	production, err := o.registry.Production(ctx)
	if errors.Is(err, registry.ErrNoProduction) {
		return true, registry.ModelVersion{}, nil
	}
	if err != nil {
		return false, registry.ModelVersion{}, fmt.Errorf("resolving production model: %w", err)
	}
	gain := candidate.Metrics.ValidationAUC - production.Metrics.ValidationAUC
	return gain >= o.study.PromotionMargin, production, nil
}

func (o *Orchestrator) transition(ctx context.Context, from, to string) {
	if from == to {
		return
	}
	o.mu.Lock()
	o.state = to
	o.mu.Unlock()

	logger.Log.WithFields(map[string]interface{}{"from": from, "to": to}).Debug("orchestrator transition")
	metrics.OrchestratorTransitions.WithLabelValues(from, to).Inc()
	o.emitter.Emit(ctx, monitoring.EventStateTransition, map[string]interface{}{"from": from, "to": to})
}

func productionVersion(mv registry.ModelVersion) int {
	return mv.Version
}
