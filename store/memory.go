package store

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/trace"
	"golang.org/x/exp/maps"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string]*trace.Trace
}

func NewMemoryStore() RunStore {
	return &inMemory{}
}

func (m *inMemory) Save(ctx context.Context, tr *trace.Trace) error {
	if tr == nil || tr.RunID == "" {
		return errors.New("run ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]*trace.Trace)
	}
	m.storage[tr.RunID] = tr
	return nil
}

func (m *inMemory) Get(ctx context.Context, runID string) (*trace.Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.storage[runID]
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "run %s", runID)
	}
	return tr, nil
}

func (m *inMemory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, nil
	}
	ids := maps.Keys(m.storage)
	slices.Sort(ids)
	return ids, nil
}

func (m *inMemory) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, runID)
	}
	return nil
}
