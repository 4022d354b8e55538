package serving

import (
	"context"
	"sync"

	"github.com/diagnoml/platform/pkg/common/models"
)

// PredictionStore appends immutable prediction records and answers the
// feedback boundary's "has this PID ever been predicted" question.
type PredictionStore interface {
	Append(ctx context.Context, p models.Prediction) error
	HasPrediction(ctx context.Context, pid string) (bool, error)
	ListByPID(ctx context.Context, pid string, limit int) ([]models.Prediction, error)
}

type MemoryPredictionStore struct {
	mu          sync.RWMutex
	predictions []models.Prediction
	byPID       map[string]struct{}
}

func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{byPID: make(map[string]struct{})}
}

func (s *MemoryPredictionStore) Append(_ context.Context, p models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, p)
	s.byPID[p.PID] = struct{}{}
	return nil
}

func (s *MemoryPredictionStore) HasPrediction(_ context.Context, pid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPID[pid]
	return ok, nil
}

func (s *MemoryPredictionStore) ListByPID(_ context.Context, pid string, limit int) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Prediction
	for i := len(s.predictions) - 1; i >= 0; i-- {
		if s.predictions[i].PID == pid {
			out = append(out, s.predictions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
