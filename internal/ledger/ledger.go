// Package ledger provides the engine's read-only views of the trading
// platform: unsettled positions, executed trade history, party identity,
// and the compliance blocklist. The Postgres implementation reads the
// platform's own tables; the in-memory implementation serves tests and
// dev mode.
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// Memory is an in-memory ledger, safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	positions  []risk.Position
	trades     []risk.Trade
	parties    map[string]*risk.PartyIdentifiers
	sanctioned map[string]struct{} // lowercased names and tax IDs
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		parties:    make(map[string]*risk.PartyIdentifiers),
		sanctioned: make(map[string]struct{}),
	}
}

// Compile-time interface checks
var (
	_ risk.PositionReader = (*Memory)(nil)
	_ risk.TradeReader    = (*Memory)(nil)
	_ risk.PartyDirectory = (*Memory)(nil)
	_ risk.Blocklist      = (*Memory)(nil)
)

// AddPosition registers a position.
func (m *Memory) AddPosition(p risk.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, p)
}

// AddTrade registers an executed trade.
func (m *Memory) AddTrade(t risk.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
}

// PutParty registers party identity.
func (m *Memory) PutParty(ids *risk.PartyIdentifiers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties[ids.PartnerID] = ids
}

// AddSanctioned adds a name or identifier to the blocklist.
func (m *Memory) AddSanctioned(nameOrID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sanctioned[strings.ToLower(nameOrID)] = struct{}{}
}

// UnsettledPositions returns the partner's open positions in a commodity.
func (m *Memory) UnsettledPositions(ctx context.Context, partnerID, commodityID string) ([]risk.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []risk.Position
	for _, p := range m.positions {
		if p.PartnerID == partnerID && p.CommodityID == commodityID && p.State.Unsettled() {
			out = append(out, p)
		}
	}
	return out, nil
}

// TradeHistory returns the partner's trades in a commodity within the window.
func (m *Memory) TradeHistory(ctx context.Context, partnerID, commodityID string, window time.Duration) ([]risk.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	var out []risk.Trade
	for _, t := range m.trades {
		if t.CommodityID != commodityID {
			continue
		}
		if t.BuyerID != partnerID && t.SellerID != partnerID {
			continue
		}
		if t.ExecutedAt.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// PartyIdentifiers returns the identity record for a partner. Unknown
// partners yield an empty record rather than an error; absence of
// identity data is not an infrastructure failure.
func (m *Memory) PartyIdentifiers(ctx context.Context, partnerID string) (*risk.PartyIdentifiers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ids, ok := m.parties[partnerID]; ok {
		cp := *ids
		return &cp, nil
	}
	return &risk.PartyIdentifiers{PartnerID: partnerID}, nil
}

// IsSanctioned checks the party's name and tax ID against the blocklist.
func (m *Memory) IsSanctioned(ctx context.Context, ids *risk.PartyIdentifiers) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ids.Name != "" {
		if _, ok := m.sanctioned[strings.ToLower(ids.Name)]; ok {
			return true, nil
		}
	}
	if ids.TaxID != "" {
		if _, ok := m.sanctioned[strings.ToLower(ids.TaxID)]; ok {
			return true, nil
		}
	}
	return false, nil
}
