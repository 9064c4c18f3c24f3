package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tradeyard/riskcore/internal/risk"
)

// Postgres reads the trading platform's tables through a read replica
// connection. It never writes to them; Migrate exists so dev and test
// environments can bootstrap the schema.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed ledger view.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Compile-time interface checks
var (
	_ risk.PositionReader = (*Postgres)(nil)
	_ risk.TradeReader    = (*Postgres)(nil)
	_ risk.PartyDirectory = (*Postgres)(nil)
	_ risk.Blocklist      = (*Postgres)(nil)
)

// Migrate creates the ledger tables if they don't exist. In production
// these tables belong to the trading subsystem; this bootstrap serves
// dev and integration-test databases.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			id           VARCHAR(40) PRIMARY KEY,
			partner_id   VARCHAR(64) NOT NULL,
			commodity_id VARCHAR(64) NOT NULL,
			side         VARCHAR(4) NOT NULL CHECK (side IN ('BUY', 'SELL')),
			quantity     NUMERIC(18,4) NOT NULL,
			state        VARCHAR(20) NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_positions_partner
			ON positions (partner_id, commodity_id);

		CREATE TABLE IF NOT EXISTS trades (
			id           VARCHAR(40) PRIMARY KEY,
			buyer_id     VARCHAR(64) NOT NULL,
			seller_id    VARCHAR(64) NOT NULL,
			commodity_id VARCHAR(64) NOT NULL,
			amount       NUMERIC(18,4) NOT NULL,
			executed_at  TIMESTAMPTZ NOT NULL,
			outcome      VARCHAR(16) NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_trades_buyer
			ON trades (buyer_id, commodity_id, executed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_trades_seller
			ON trades (seller_id, commodity_id, executed_at DESC);

		CREATE TABLE IF NOT EXISTS parties (
			partner_id         VARCHAR(64) PRIMARY KEY,
			name               VARCHAR(256) NOT NULL DEFAULT '',
			tax_id             VARCHAR(64) NOT NULL DEFAULT '',
			contact_channels   TEXT[] NOT NULL DEFAULT '{}',
			org_unit           VARCHAR(64) NOT NULL DEFAULT '',
			self_trade_allowed BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS blocklist (
			identifier VARCHAR(256) PRIMARY KEY
		)
	`)
	return err
}

// UnsettledPositions returns the partner's open positions in a commodity.
func (s *Postgres) UnsettledPositions(ctx context.Context, partnerID, commodityID string) ([]risk.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partner_id, commodity_id, side, quantity, state
		FROM positions
		WHERE partner_id = $1 AND commodity_id = $2
		  AND state IN ('DRAFT', 'ACTIVE', 'RESERVED', 'PARTIALLY_FILLED')
	`, partnerID, commodityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []risk.Position
	for rows.Next() {
		var (
			p        risk.Position
			side     string
			quantity string
			state    string
		)
		if err := rows.Scan(&p.ID, &p.PartnerID, &p.CommodityID, &side, &quantity, &state); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		q, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to parse position quantity: %w", err)
		}
		p.Side = risk.Side(side)
		p.Quantity = q
		p.State = risk.PositionState(state)
		out = append(out, p)
	}
	return out, rows.Err()
}

// TradeHistory returns the partner's trades in a commodity within the window.
func (s *Postgres) TradeHistory(ctx context.Context, partnerID, commodityID string, window time.Duration) ([]risk.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, buyer_id, seller_id, commodity_id, amount, executed_at, outcome
		FROM trades
		WHERE (buyer_id = $1 OR seller_id = $1)
		  AND commodity_id = $2
		  AND executed_at >= $3
		ORDER BY executed_at DESC
	`, partnerID, commodityID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []risk.Trade
	for rows.Next() {
		var (
			t       risk.Trade
			amount  string
			outcome string
		)
		if err := rows.Scan(&t.ID, &t.BuyerID, &t.SellerID, &t.CommodityID, &amount, &t.ExecutedAt, &outcome); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trade amount: %w", err)
		}
		t.Amount = amt
		t.Outcome = risk.TradeOutcome(outcome)
		out = append(out, t)
	}
	return out, rows.Err()
}

// PartyIdentifiers returns the identity record for a partner. Unknown
// partners yield an empty record, matching the in-memory behavior.
func (s *Postgres) PartyIdentifiers(ctx context.Context, partnerID string) (*risk.PartyIdentifiers, error) {
	var ids risk.PartyIdentifiers
	var channels pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		SELECT partner_id, name, tax_id, contact_channels, org_unit, self_trade_allowed
		FROM parties
		WHERE partner_id = $1
	`, partnerID).Scan(&ids.PartnerID, &ids.Name, &ids.TaxID, &channels, &ids.OrgUnit, &ids.SelfTradeAllowed)
	if err == sql.ErrNoRows {
		return &risk.PartyIdentifiers{PartnerID: partnerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query party identifiers: %w", err)
	}
	ids.ContactChannels = []string(channels)
	return &ids, nil
}

// IsSanctioned checks the party's name and tax ID against the blocklist.
func (s *Postgres) IsSanctioned(ctx context.Context, ids *risk.PartyIdentifiers) (bool, error) {
	candidates := make([]string, 0, 2)
	if ids.Name != "" {
		candidates = append(candidates, strings.ToLower(ids.Name))
	}
	if ids.TaxID != "" {
		candidates = append(candidates, strings.ToLower(ids.TaxID))
	}
	if len(candidates) == 0 {
		return false, nil
	}

	var hit bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocklist WHERE LOWER(identifier) = ANY($1)
		)
	`, pq.Array(candidates)).Scan(&hit)
	if err != nil {
		return false, fmt.Errorf("failed to query blocklist: %w", err)
	}
	return hit, nil
}
