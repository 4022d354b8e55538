package pseudonym

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrMappingNotFound = errors.New("pseudonym mapping not found")

// Mapping is one identity↔PID audit entry. It lives strictly inside the
// boundary that also holds raw identity and is never exported with minimal
// datasets.
type Mapping struct {
	PID                 string
	IdentityFingerprint string
	CreatedAt           time.Time
}

type AuditStore interface {
	Save(ctx context.Context, m Mapping) error
	GetByPID(ctx context.Context, pid string) (Mapping, error)
}

// MemoryStore backs the audit vault in tests and single-node development.
type MemoryStore struct {
	mu    sync.RWMutex
	byPID map[string]Mapping
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPID: make(map[string]Mapping)}
}

func (s *MemoryStore) Save(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.byPID[m.PID] = m
	return nil
}

func (s *MemoryStore) GetByPID(_ context.Context, pid string) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byPID[pid]
	if !ok {
		return Mapping{}, ErrMappingNotFound
	}
	return m, nil
}
