package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/ml/linear"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/warehouse"
)

// InsufficientDataError means the snapshot cannot support a trustworthy
// fit. The orchestrator treats it as a skip, not a failure.
type InsufficientDataError struct {
	Class string
	Have  int
	Need  int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: class %q has %d labeled examples, need %d", e.Class, e.Have, e.Need)
}

func IsInsufficientData(err error) bool {
	var ide InsufficientDataError
	return errors.As(err, &ide)
}

// SearchSpace is the hyperparameter grid searched per training run.
type SearchSpace struct {
	LearningRates []float64
	Epochs        []int
}

func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		LearningRates: []float64{0.01, 0.05, 0.1},
		Epochs:        []int{100, 200, 400},
	}
}

const (
	validationFraction = 0.2
	splitSeed          = 42
)

// Trainer fits candidates on dataset snapshots. Each run emits exactly one
// candidate via the registry; existing versions are never touched.
type Trainer struct {
	registry    registry.Store
	minPerClass int
}

func NewTrainer(reg registry.Store, minExamplesPerClass int) *Trainer {
	return &Trainer{registry: reg, minPerClass: minExamplesPerClass}
}

// Train searches the grid, selects the candidate by validation AUC (ties
// broken by fewer epochs, then shorter measured training time) and
// registers it with the exact schema hash and encoder state it was fitted
// with.
func (t *Trainer) Train(ctx context.Context, snapshot warehouse.Snapshot, space SearchSpace) (registry.ModelVersion, error) {
	positives, negatives := countClasses(snapshot)
	if positives < t.minPerClass {
		return registry.ModelVersion{}, InsufficientDataError{Class: "positive", Have: positives, Need: t.minPerClass}
	}
	if negatives < t.minPerClass {
		return registry.ModelVersion{}, InsufficientDataError{Class: "negative", Have: negatives, Need: t.minPerClass}
	}

	records := snapshotRecords(snapshot)
	encoder, err := features.Fit(records)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("fitting encoder: %w", err)
	}
	samples, err := encoder.EncodeBatch(records)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	labels := snapshotLabels(snapshot)

	trainX, trainY, valX, valY := linear.Split(samples, labels, validationFraction, splitSeed)

	best, found := searchGrid(ctx, trainX, trainY, valX, valY, space)
	if !found {
		return registry.ModelVersion{}, errors.New("empty hyperparameter space")
	}

	state, err := encoder.State()
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("serializing encoder state: %w", err)
	}

	candidate, err := t.registry.RegisterCandidate(ctx, registry.ModelVersion{
		SnapshotID:   snapshot.ID,
		SchemaHash:   encoder.SchemaHash(),
		EncoderState: state,
		Weights:      best.weights,
		Hyperparameters: linear.Options{
			Epochs:       best.opts.Epochs,
			LearningRate: best.opts.LearningRate,
		},
		Metrics: registry.Metrics{
			ValidationAUC: best.valMetrics.AUC,
			TrainAUC:      best.trainMetrics.AUC,
			Loss:          best.valMetrics.Loss,
			Accuracy:      best.valMetrics.Accuracy,
		},
		TrainingTime: best.elapsed,
	})
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("registering candidate: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"version":        candidate.Version,
		"snapshot_id":    snapshot.ID,
		"validation_auc": candidate.Metrics.ValidationAUC,
		"epochs":         candidate.Hyperparameters.Epochs,
		"learning_rate":  candidate.Hyperparameters.LearningRate,
	}).Info("candidate registered")

	return candidate, nil
}

type gridResult struct {
	opts         linear.Options
	weights      linear.Weights
	trainMetrics linear.Metrics
	valMetrics   linear.Metrics
	elapsed      time.Duration
}

// betterThan orders candidates: higher validation AUC wins, then lower
// model complexity (fewer epochs), then shorter training time.
func (r gridResult) betterThan(other gridResult) bool {
	if r.valMetrics.AUC != other.valMetrics.AUC {
		return r.valMetrics.AUC > other.valMetrics.AUC
	}
	if r.opts.Epochs != other.opts.Epochs {
		return r.opts.Epochs < other.opts.Epochs
	}
	return r.elapsed < other.elapsed
}

func searchGrid(ctx context.Context, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, space SearchSpace) (gridResult, bool) {
	var best gridResult
	found := false
	for _, lr := range space.LearningRates {
		for _, epochs := range space.Epochs {
			if ctx.Err() != nil {
				return best, found
			}
			opts := linear.Options{Epochs: epochs, LearningRate: lr}
			start := time.Now()
			weights, trainMetrics := linear.TrainLogistic(trainX, trainY, opts)
			elapsed := time.Since(start)
			valMetrics := linear.Evaluate(weights, valX, valY)

			result := gridResult{
				opts:         opts,
				weights:      weights,
				trainMetrics: trainMetrics,
				valMetrics:   valMetrics,
				elapsed:      elapsed,
			}
			if !found || result.betterThan(best) {
				best = result
				found = true
			}
		}
	}
	return best, found
}

func countClasses(snapshot warehouse.Snapshot) (positives, negatives int) {
	for _, ex := range snapshot.Examples {
		if ex.Outcome {
			positives++
		} else {
			negatives++
		}
	}
	return positives, negatives
}

func snapshotRecords(snapshot warehouse.Snapshot) []models.MinimalRecord {
	records := make([]models.MinimalRecord, 0, len(snapshot.Examples))
	for _, ex := range snapshot.Examples {
		records = append(records, ex.Record)
	}
	return records
}

func snapshotLabels(snapshot warehouse.Snapshot) []float64 {
	labels := make([]float64, 0, len(snapshot.Examples))
	for _, ex := range snapshot.Examples {
		if ex.Outcome {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}
	return labels
}
