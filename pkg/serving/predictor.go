package serving

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/ml/linear"
	"github.com/diagnoml/platform/pkg/observability/metrics"
	"github.com/diagnoml/platform/pkg/registry"
)

// RecordSource serves the latest minimal record for a subject. The Redis
// feature cache implements it in production; the warehouse store does in
// tests.
type RecordSource interface {
	LatestByPID(ctx context.Context, pid string) (models.MinimalRecord, error)
}

// RiskCategory maps a probability to its bounded category. Boundaries are
// fixed: p < 0.3 low, 0.3 <= p < 0.7 medium, p >= 0.7 high.
func RiskCategory(probability float64) string {
	switch {
	case probability < 0.3:
		return models.RiskLow
	case probability < 0.7:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// Confidence is the scaled margin from the decision boundary: predictions
// near 0 or 1 score near 1, predictions near 0.5 score near 0.
func Confidence(probability float64) float64 {
	c := 2 * (probability - 0.5)
	if c < 0 {
		c = -c
	}
	return c
}

// Predictor serves inference against promoted model versions. Loaded
// artifacts are cached per version; versions are immutable so the cache
// never goes stale.
type Predictor struct {
	registry registry.Store
	source   RecordSource
	store    PredictionStore

	mu     sync.RWMutex
	loaded map[int]*loadedModel
}

type loadedModel struct {
	weights linear.Weights
	encoder *features.Encoder
}

func NewPredictor(reg registry.Store, source RecordSource, store PredictionStore) *Predictor {
	return &Predictor{
		registry: reg,
		source:   source,
		store:    store,
		loaded:   make(map[int]*loadedModel),
	}
}

// Predict runs inference for a subject. Version 0 resolves the current
// production model; any other version must exist in the registry. One
// immutable Prediction record is appended as a side effect.
func (p *Predictor) Predict(ctx context.Context, pid string, version int) (models.Prediction, error) {
	mv, err := p.resolve(ctx, version)
	if err != nil {
		return models.Prediction{}, err
	}

	model, err := p.load(mv)
	if err != nil {
		return models.Prediction{}, err
	}

	rec, err := p.source.LatestByPID(ctx, pid)
	if err != nil {
		return models.Prediction{}, err
	}

	vector, err := model.encoder.Encode(rec)
	if err != nil {
		return models.Prediction{}, err
	}

	probability := linear.Predict(model.weights, vector)
	prediction := models.Prediction{
		ID:           uuid.New().String(),
		PID:          pid,
		Probability:  probability,
		RiskCategory: RiskCategory(probability),
		Confidence:   Confidence(probability),
		ModelVersion: mv.Version,
		Timestamp:    time.Now().UTC(),
	}

	if err := p.store.Append(ctx, prediction); err != nil {
		return models.Prediction{}, fmt.Errorf("persisting prediction: %w", err)
	}
	metrics.PredictionsServed.WithLabelValues(prediction.RiskCategory).Inc()

	return prediction, nil
}

func (p *Predictor) resolve(ctx context.Context, version int) (registry.ModelVersion, error) {
	if version == 0 {
		return p.registry.Production(ctx)
	}
	return p.registry.Get(ctx, version)
}

// load restores the version's encoder once and verifies the schema hash
// recorded at training time before the artifact is ever used.
func (p *Predictor) load(mv registry.ModelVersion) (*loadedModel, error) {
	p.mu.RLock()
	model, ok := p.loaded[mv.Version]
	p.mu.RUnlock()
	if ok {
		return model, nil
	}

	encoder, err := features.Restore(mv.EncoderState)
	if err != nil {
		return nil, fmt.Errorf("restoring encoder for version %d: %w", mv.Version, err)
	}
	if encoder.SchemaHash() != mv.SchemaHash {
		return nil, features.SchemaMismatchError{
			Field: "schema_hash",
			Value: encoder.SchemaHash(),
		}
	}

	model = &loadedModel{weights: mv.Weights, encoder: encoder}
	p.mu.Lock()
	p.loaded[mv.Version] = model
	p.mu.Unlock()
	return model, nil
}

// IsNotFound reports registry misses a caller should surface as 404.
func IsNotFound(err error) bool {
	return errors.Is(err, registry.ErrModelNotFound) || errors.Is(err, registry.ErrNoProduction)
}
