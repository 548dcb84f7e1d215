package job

import (
	"context"
	"slices"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in process memory. Stored values are private
// clones; every read hands out a fresh clone.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Job
	order []string // IDs by first Save
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Job)}
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.byID[snapshot.ID]; !known {
		r.order = append(r.order, snapshot.ID)
	}
	r.byID[snapshot.ID] = snapshot
	return nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	stored, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return stored.Clone(), nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, statuses ...Status) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		stored := r.byID[id]
		if len(statuses) > 0 && !slices.Contains(statuses, stored.GetStatus()) {
			continue
		}
		jobs = append(jobs, stored.Clone())
	}
	return jobs, nil
}
