package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository implements Repository with an in-memory map.
// Registrations do not survive restarts; it backs deployments that run
// without a database file, and tests.
type MemoryRepository struct {
	mu   sync.Mutex
	regs map[string]Registration
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{regs: make(map[string]Registration)}
}

// List retrieves all registrations in creation order.
func (r *MemoryRepository) List(_ context.Context) ([]Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].CreatedAt.Equal(regs[j].CreatedAt) {
			return regs[i].Name < regs[j].Name
		}
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

// Create inserts a new registration.
func (r *MemoryRepository) Create(_ context.Context, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regs[reg.Name]; ok {
		return ErrAlreadyRegistered
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	r.regs[reg.Name] = reg
	return nil
}

// Delete removes a registration by name.
func (r *MemoryRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regs[name]; !ok {
		return ErrNotFound
	}
	delete(r.regs, name)
	return nil
}
