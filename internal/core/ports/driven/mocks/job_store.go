package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Ensure MockJobStore implements JobStore
var _ driven.JobStore = (*MockJobStore)(nil)

// MockJobStore is an in-memory JobStore for testing. Snapshots are
// cloned on the way in and out so tests never share job state with the
// scheduler by accident.
type MockJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	Saves int
}

// NewMockJobStore creates an empty MockJobStore.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[string]*domain.Job)}
}

// Save stores a cloned snapshot of the job.
func (s *MockJobStore) Save(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a clone of the stored job.
func (s *MockJobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// List returns stored jobs, newest first.
func (s *MockJobStore) List(_ context.Context, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *MockJobStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MockJobStore) Close() error { return nil }
