package journal

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
)

// MemoryRepository keeps runs for the life of the process. It is used when
// no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record), now: time.Now}
}

func (m *MemoryRepository) Save(_ context.Context, result domain.RunResult, _ json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[result.ID]; exists {
		return nil
	}
	m.records[result.ID] = Record{ID: result.ID, Result: result, CreatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRepository) ListByAccount(_ context.Context, network domain.Network, account string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	out := m.filter(func(r Record) bool {
		return r.Result.Network == network && r.Result.Account == account
	})
	slices.SortFunc(out, func(a, b Record) int { return b.Result.StartedAt.Compare(a.Result.StartedAt) })
	return lo.Subset(out, 0, uint(limit)), nil
}

func (m *MemoryRepository) ListSince(_ context.Context, since time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	out := m.filter(func(r Record) bool { return !r.Result.StartedAt.Before(since) })
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(a.Result.StartedAt.Compare(b.Result.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return lo.Subset(out, 0, uint(limit)), nil
}

func (m *MemoryRepository) filter(keep func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Filter(lo.Values(m.records), func(r Record, _ int) bool { return keep(r) })
}
