package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the lineage under one RWMutex. Promotion holds the
// write lock for the whole flip, so concurrent readers see either the old
// production or the new one, never both and never neither.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[int]ModelVersion
	next     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[int]ModelVersion), next: 1}
}

func (s *MemoryStore) RegisterCandidate(_ context.Context, mv ModelVersion) (ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv.Version = s.next
	s.next++
	mv.Status = StatusCandidate
	mv.CreatedAt = time.Now().UTC()
	mv.PromotedAt = nil
	mv.RetiredAt = nil
	s.versions[mv.Version] = mv
	return mv, nil
}

func (s *MemoryStore) Get(_ context.Context, version int) (ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mv, ok := s.versions[version]
	if !ok {
		return ModelVersion{}, ErrModelNotFound
	}
	return mv, nil
}

func (s *MemoryStore) Production(_ context.Context) (ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, mv := range s.versions {
		if mv.Status == StatusProduction {
			return mv, nil
		}
	}
	return ModelVersion{}, ErrNoProduction
}

func (s *MemoryStore) Promote(_ context.Context, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, ok := s.versions[version]
	if !ok {
		return ErrModelNotFound
	}
	if candidate.Status != StatusCandidate {
		return ErrNotCandidate
	}

	now := time.Now().UTC()
	for v, mv := range s.versions {
		if mv.Status == StatusProduction {
			mv.Status = StatusRetired
			mv.RetiredAt = &now
			s.versions[v] = mv
		}
	}
	candidate.Status = StatusProduction
	candidate.PromotedAt = &now
	s.versions[version] = candidate
	return nil
}

func (s *MemoryStore) Retire(_ context.Context, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv, ok := s.versions[version]
	if !ok {
		return ErrModelNotFound
	}
	now := time.Now().UTC()
	mv.Status = StatusRetired
	mv.RetiredAt = &now
	s.versions[version] = mv
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]ModelVersion, 0, len(s.versions))
	for _, mv := range s.versions {
		all = append(all, mv)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version > all[j].Version })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
