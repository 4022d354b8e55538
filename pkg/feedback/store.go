package feedback

import (
	"context"
	"sync"

	"github.com/diagnoml/platform/pkg/common/models"
)

// Store is append-only. Every record gets a monotonically increasing
// sequence number; the watermark marks the last sequence consumed by a
// retraining decision.
type Store interface {
	Append(ctx context.Context, fb models.FeedbackRecord) (seq int64, err error)
	All(ctx context.Context) ([]models.FeedbackRecord, error)
	CountAfter(ctx context.Context, seq int64) (int, error)
	LatestSeq(ctx context.Context) (int64, error)
	Watermark(ctx context.Context) (int64, error)
	SetWatermark(ctx context.Context, seq int64) error
}

type MemoryStore struct {
	mu        sync.RWMutex
	records   []models.FeedbackRecord
	watermark int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, fb models.FeedbackRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, fb)
	return int64(len(s.records)), nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FeedbackRecord(nil), s.records...), nil
}

func (s *MemoryStore) CountAfter(_ context.Context, seq int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := int64(len(s.records)) - seq
	if count < 0 {
		count = 0
	}
	return int(count), nil
}

func (s *MemoryStore) LatestSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *MemoryStore) Watermark(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, nil
}

func (s *MemoryStore) SetWatermark(_ context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.watermark {
		s.watermark = seq
	}
	return nil
}
