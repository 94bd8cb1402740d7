package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ridepool/internal/models"
)

// MemoryStore is an in-memory SessionStore for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.RiderSession
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.RiderSession)}
}

func (m *MemoryStore) Search(ctx context.Context, q Query) ([]models.RiderSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RiderSession, 0)
	skipped := 0
	for _, id := range m.order {
		s := m.sessions[id]
		if !matches(s, q.Conditions) {
			continue
		}
		if q.StartRow > 0 && skipped < q.StartRow {
			skipped++
			continue
		}
		out = append(out, *s)
		if q.RowCount > 0 && len(out) >= q.RowCount {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, s *models.RiderSession) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.ID = newID()
	m.sessions[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return cp.ID, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, columns map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("store: no session with id %s", id)
	}
	return applyColumns(s, columns)
}

// Get is a test convenience not part of the SessionStore contract.
func (m *MemoryStore) Get(id string) (models.RiderSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.RiderSession{}, false
	}
	return *s, true
}

func matches(s *models.RiderSession, conds []Condition) bool {
	for _, c := range conds {
		v, ok := columnValue(s, c.Column)
		if !ok {
			return false
		}
		equal := fmt.Sprint(v) == fmt.Sprint(c.Value)
		switch c.Op {
		case OpNeq:
			if equal {
				return false
			}
		default:
			if !equal {
				return false
			}
		}
	}
	return true
}
