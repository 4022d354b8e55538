// Package warehouse is the append-only home of minimal dataset records and
// the builder of training snapshots. Historical rows are never mutated or
// deleted; every write is a new versioned row keyed by PID.
package warehouse

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnoml/platform/pkg/common/models"
)

var ErrRecordNotFound = errors.New("minimal record not found")

type Store interface {
	// Append persists one minimal record. Records are immutable once
	// written.
	Append(ctx context.Context, rec models.MinimalRecord) error
	// Window returns the records created in [from, to), oldest first.
	Window(ctx context.Context, from, to time.Time) ([]models.MinimalRecord, error)
	// LatestByPID returns the most recent record for a subject.
	LatestByPID(ctx context.Context, pid string) (models.MinimalRecord, error)
}

// LabeledExample joins a subject's latest minimal record with their
// confirmed outcome.
type LabeledExample struct {
	Record  models.MinimalRecord
	Outcome bool
}

// Snapshot is an immutable training dataset: the labeled examples that
// existed when it was taken, identified for later reproducibility.
type Snapshot struct {
	ID       string
	TakenAt  time.Time
	Examples []LabeledExample
}

// BuildSnapshot joins records with feedback by PID. The latest record and
// the latest feedback per subject win; subjects without feedback are
// excluded, since only labeled examples can train.
func BuildSnapshot(records []models.MinimalRecord, feedback []models.FeedbackRecord) Snapshot {
	latestRecord := make(map[string]models.MinimalRecord)
	for _, rec := range records {
		if existing, ok := latestRecord[rec.PID]; !ok || rec.CreatedAt.After(existing.CreatedAt) {
			latestRecord[rec.PID] = rec
		}
	}

	latestOutcome := make(map[string]models.FeedbackRecord)
	for _, fb := range feedback {
		if existing, ok := latestOutcome[fb.PID]; !ok || fb.Timestamp.After(existing.Timestamp) {
			latestOutcome[fb.PID] = fb
		}
	}

	snapshot := Snapshot{ID: uuid.New().String(), TakenAt: time.Now().UTC()}
	for pid, fb := range latestOutcome {
		rec, ok := latestRecord[pid]
		if !ok {
			continue
		}
		snapshot.Examples = append(snapshot.Examples, LabeledExample{Record: rec, Outcome: fb.Outcome})
	}
	// Fixed ordering keeps the downstream train/validation split
	// reproducible for identical inputs.
	sort.Slice(snapshot.Examples, func(i, j int) bool {
		return snapshot.Examples[i].Record.PID < snapshot.Examples[j].Record.PID
	})
	return snapshot
}

// MemoryStore holds records in arrival order for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.MinimalRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec models.MinimalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Window(_ context.Context, from, to time.Time) ([]models.MinimalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MinimalRecord
	for _, rec := range s.records {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) LatestByPID(_ context.Context, pid string) (models.MinimalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].PID == pid {
			return s.records[i], nil
		}
	}
	return models.MinimalRecord{}, ErrRecordNotFound
}
