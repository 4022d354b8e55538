// Package registry owns model version state. Versions are strictly
// monotonic, statuses move candidate → production → retired (or candidate →
// retired for rejected models), and at most one version is in production at
// any time. Promotion is atomic: readers never observe two production
// versions, or none where one existed.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/diagnoml/platform/pkg/ml/linear"
)

var (
	ErrModelNotFound = errors.New("model version not found")
	ErrNoProduction  = errors.New("no production model")
	ErrNotCandidate  = errors.New("model version is not a candidate")
)

const (
	StatusCandidate  = "candidate"
	StatusProduction = "production"
	StatusRetired    = "retired"
)

// Metrics are the evaluation results recorded with a trained version.
// ValidationAUC is the selection and promotion metric.
type Metrics struct {
	ValidationAUC float64 `json:"validation_auc"`
	TrainAUC      float64 `json:"train_auc"`
	Loss          float64 `json:"loss"`
	Accuracy      float64 `json:"accuracy"`
}

// ModelVersion is a trained, evaluated model artifact. Once registered it
// is never mutated except for its status and the matching timestamps.
type ModelVersion struct {
	Version         int            `json:"version"`
	SnapshotID      string         `json:"snapshot_id"`
	SchemaHash      string         `json:"schema_hash"`
	EncoderState    []byte         `json:"encoder_state"`
	Weights         linear.Weights `json:"weights"`
	Hyperparameters linear.Options `json:"hyperparameters"`
	Metrics         Metrics        `json:"metrics"`
	TrainingTime    time.Duration  `json:"training_time"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	PromotedAt      *time.Time     `json:"promoted_at"`
	RetiredAt       *time.Time     `json:"retired_at"`
}

// Store is the only mutation surface of the model lineage. Reads must be
// served even while a promotion is in flight.
type Store interface {
	// RegisterCandidate assigns the next version id and persists the
	// artifact with status candidate.
	RegisterCandidate(ctx context.Context, mv ModelVersion) (ModelVersion, error)
	Get(ctx context.Context, version int) (ModelVersion, error)
	// Production returns the current production version or ErrNoProduction.
	Production(ctx context.Context) (ModelVersion, error)
	// Promote flips the candidate to production and the former production
	// to retired in one atomic step.
	Promote(ctx context.Context, version int) error
	// Retire marks a version retired; rejected candidates take this path
	// without ever serving traffic.
	Retire(ctx context.Context, version int) error
	List(ctx context.Context, limit int) ([]ModelVersion, error)
}
