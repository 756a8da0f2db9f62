package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // insertion order
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}

	now := m.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.records[rec.ID] = rec.clone()
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (m *MemoryStore) ListByFarmer(_ context.Context, farmerID string) ([]Record, error) {
	return m.list(func(r *Record) bool { return r.FarmerID == farmerID }), nil
}

func (m *MemoryStore) ListUnclaimed(_ context.Context) ([]Record, error) {
	return m.list(func(r *Record) bool { return !r.IsClaimed }), nil
}

func (m *MemoryStore) ListClaimedBy(_ context.Context, claimedBy string) ([]Record, error) {
	return m.list(func(r *Record) bool {
		return r.IsClaimed && r.ClaimedBy != nil && *r.ClaimedBy == claimedBy
	}), nil
}

// list returns matching records newest first
func (m *MemoryStore) list(match func(*Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Record{}
	for _, id := range slices.Backward(m.order) {
		if rec := m.records[id]; match(rec) {
			out = append(out, *rec.clone())
		}
	}
	return out
}

func (m *MemoryStore) Claim(_ context.Context, id, claimedBy string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.IsClaimed && rec.ClaimedBy != nil && *rec.ClaimedBy != claimedBy {
		return nil, ErrAlreadyClaimed
	}

	rec.IsClaimed = true
	rec.ClaimedBy = &claimedBy
	rec.UpdatedAt = m.now().UTC()
	return rec.clone(), nil
}

func (m *MemoryStore) Unclaim(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	rec.IsClaimed = false
	rec.ClaimedBy = nil
	rec.UpdatedAt = m.now().UTC()
	return rec.clone(), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
