package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDecisionStore is an in-memory DecisionStore for tests and dev
// mode. Keeps at most maxDecisions, dropping the oldest.
type MemoryDecisionStore struct {
	mu        sync.RWMutex
	decisions []*Decision
	max       int
}

const defaultMaxDecisions = 10000

// NewMemoryDecisionStore creates an empty in-memory decision store.
func NewMemoryDecisionStore() *MemoryDecisionStore {
	return &MemoryDecisionStore{max: defaultMaxDecisions}
}

// Compile-time interface check
var _ DecisionStore = (*MemoryDecisionStore)(nil)

// Record stores a decision.
func (m *MemoryDecisionStore) Record(ctx context.Context, dec *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *dec
	m.decisions = append(m.decisions, &cp)
	if len(m.decisions) > m.max {
		m.decisions = m.decisions[len(m.decisions)-m.max:]
	}
	return nil
}

// ListWindow returns decisions created in [from, to).
func (m *MemoryDecisionStore) ListWindow(ctx context.Context, from, to time.Time) ([]*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Decision
	for _, d := range m.decisions {
		if !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListByPartner returns the most recent decisions for one partner.
func (m *MemoryDecisionStore) ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Decision
	for _, d := range m.decisions {
		if d.PartnerID == partnerID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
