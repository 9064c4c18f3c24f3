package outcomes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tradeyard/riskcore/internal/idgen"
)

// MemoryStore is an in-memory Store for tests and dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStore creates an empty in-memory outcome store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// Append stores a new outcome record.
func (m *MemoryStore) Append(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("out_")
	}
	if rec.OutcomeDate.IsZero() {
		rec.OutcomeDate = time.Now()
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

// ListWindow returns records whose outcome date falls in [from, to).
func (m *MemoryStore) ListWindow(ctx context.Context, from, to time.Time) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if !r.OutcomeDate.Before(from) && r.OutcomeDate.Before(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutcomeDate.Before(out[j].OutcomeDate) })
	return out, nil
}

// ListByPartner returns the most recent records for one partner.
func (m *MemoryStore) ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.PartnerID == partnerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutcomeDate.After(out[j].OutcomeDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
