package report

import (
	"context"
	"sync"

	"github.com/babblebase/filecount/internal/counter"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// MemoryStore keeps the most recent reports in process. It stands in for
// Store when PostgreSQL is not configured.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*counter.Report
	order    []string
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore keeps up to capacity reports, dropping the oldest first.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		capacity: capacity,
		byID:     make(map[string]*counter.Report, capacity),
	}
}

func (m *MemoryStore) Save(_ context.Context, r *counter.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.ID]; ok {
		return nil
	}
	if len(m.order) == m.capacity {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	m.byID[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*counter.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "report %s", id)
	}
	return r, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*counter.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*counter.Report, 0, min(limit, len(m.order)))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[m.order[i]])
	}
	return out, nil
}
