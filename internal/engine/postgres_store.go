package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// PostgresDecisionStore persists issued decisions in PostgreSQL.
type PostgresDecisionStore struct {
	db *sql.DB
}

// NewPostgresDecisionStore creates a PostgreSQL-backed decision store.
func NewPostgresDecisionStore(db *sql.DB) *PostgresDecisionStore {
	return &PostgresDecisionStore{db: db}
}

// Compile-time interface check
var _ DecisionStore = (*PostgresDecisionStore)(nil)

// Migrate creates the risk_decisions table if it doesn't exist.
func (s *PostgresDecisionStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_decisions (
			id           VARCHAR(40) PRIMARY KEY,
			partner_id   VARCHAR(64) NOT NULL,
			commodity_id VARCHAR(64) NOT NULL,
			side         VARCHAR(4) NOT NULL CHECK (side IN ('BUY', 'SELL')),
			score        NUMERIC(6,3) NOT NULL,
			status       VARCHAR(8) NOT NULL CHECK (status IN ('PASS', 'WARN', 'FAIL')),
			tier         VARCHAR(16) NOT NULL,
			method       VARCHAR(16) NOT NULL,
			result       JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_decisions_partner
			ON risk_decisions (partner_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_decisions_window
			ON risk_decisions (created_at);

		CREATE INDEX IF NOT EXISTS idx_risk_decisions_blocks
			ON risk_decisions (created_at DESC) WHERE tier = 'INSTANT_BLOCK'
	`)
	return err
}

// Record stores a decision.
func (s *PostgresDecisionStore) Record(ctx context.Context, dec *Decision) error {
	resultJSON, err := json.Marshal(dec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal decision result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_decisions
			(id, partner_id, commodity_id, side, score, status, tier, method, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		dec.ID,
		dec.PartnerID,
		dec.CommodityID,
		string(dec.Side),
		dec.Result.Score,
		string(dec.Result.Status),
		string(dec.Result.Tier),
		string(dec.Result.Method),
		resultJSON,
		dec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListWindow returns decisions created in [from, to).
func (s *PostgresDecisionStore) ListWindow(ctx context.Context, from, to time.Time) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partner_id, commodity_id, side, result, created_at
		FROM risk_decisions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// ListByPartner returns the most recent decisions for one partner.
func (s *PostgresDecisionStore) ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partner_id, commodity_id, side, result, created_at
		FROM risk_decisions
		WHERE partner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, partnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions by partner: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]*Decision, error) {
	var out []*Decision
	for rows.Next() {
		var (
			dec        Decision
			side       string
			resultJSON []byte
		)
		if err := rows.Scan(&dec.ID, &dec.PartnerID, &dec.CommodityID, &side, &resultJSON, &dec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		dec.Side = risk.Side(side)
		if err := json.Unmarshal(resultJSON, &dec.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision result: %w", err)
		}
		out = append(out, &dec)
	}
	return out, rows.Err()
}
