package job

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when a record cannot be found by job ID.
var ErrNotFound = errors.New("job: record not found")

// Registry is a thread-safe in-memory index of tracked jobs for the process
// lifetime. There is no durable persistence across restarts.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Save stores a clone of the record, replacing any previous entry with the
// same ID. Cloning keeps the caller's copy exclusively owned.
func (g *Registry) Save(rec *Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[rec.ID] = rec.Clone()
}

// Find returns a clone of the record with the given job ID.
func (g *Registry) Find(id string) (*Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns clones of all tracked records, newest submission first.
func (g *Registry) List() []*Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Record, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Delete removes a record from the registry.
func (g *Registry) Delete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[id]; !ok {
		return ErrNotFound
	}
	delete(g.records, id)
	return nil
}

// Len reports how many jobs are tracked.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
