package service

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry keeps job ownership in process. Used when redis is not configured.
type MemoryRegistry struct {
	mu   sync.Mutex
	jobs map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]struct{})}
}

func (r *MemoryRegistry) Acquire(ctx context.Context, videoId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[videoId]; ok {
		return false, nil
	}
	r.jobs[videoId] = struct{}{}
	return true, nil
}

func (r *MemoryRegistry) Release(ctx context.Context, videoId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, videoId)
	return nil
}

func (r *MemoryRegistry) Active(ctx context.Context, videoId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.jobs[videoId]
	return ok, nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
