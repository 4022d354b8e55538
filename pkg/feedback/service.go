// Package feedback accepts ground-truth outcomes from the downstream
// clinical process. Records are append-only; a sequence watermark ensures
// one batch of feedback can trigger at most one retraining cycle.
package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
)

var (
	// ErrUnknownPID rejects feedback for a subject with no prior
	// prediction.
	ErrUnknownPID        = errors.New("feedback references a PID with no prior prediction")
	ErrMissingOutcomePID = errors.New("feedback requires a pseudonym")
)

// PredictionChecker answers whether a subject has ever been predicted.
// The serving store implements it.
type PredictionChecker interface {
	HasPrediction(ctx context.Context, pid string) (bool, error)
}

type Service struct {
	store       Store
	predictions PredictionChecker
}

func NewService(store Store, predictions PredictionChecker) *Service {
	return &Service{store: store, predictions: predictions}
}

// Submit validates and appends one feedback record.
func (s *Service) Submit(ctx context.Context, fb models.FeedbackRecord) (models.FeedbackRecord, error) {
	if fb.PID == "" {
		return models.FeedbackRecord{}, ErrMissingOutcomePID
	}
	known, err := s.predictions.HasPrediction(ctx, fb.PID)
	if err != nil {
		return models.FeedbackRecord{}, err
	}
	if !known {
		return models.FeedbackRecord{}, ErrUnknownPID
	}

	fb.ID = uuid.New().String()
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	if _, err := s.store.Append(ctx, fb); err != nil {
		return models.FeedbackRecord{}, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"pid":     fb.PID,
		"outcome": fb.Outcome,
	}).Info("feedback accepted")
	return fb, nil
}

// All returns the full feedback history for snapshot building.
func (s *Service) All(ctx context.Context) ([]models.FeedbackRecord, error) {
	return s.store.All(ctx)
}

// CountSinceWatermark reports how many records arrived after the last
// consumed watermark.
func (s *Service) CountSinceWatermark(ctx context.Context) (int, error) {
	watermark, err := s.store.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.CountAfter(ctx, watermark)
}

// ConsumeWatermark advances the watermark to the newest record so the same
// feedback cannot trigger a second retraining cycle.
func (s *Service) ConsumeWatermark(ctx context.Context) error {
	latest, err := s.store.LatestSeq(ctx)
	if err != nil {
		return err
	}
	return s.store.SetWatermark(ctx, latest)
}
