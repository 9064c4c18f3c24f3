package outcomes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeyard/riskcore/internal/idgen"
	"github.com/tradeyard/riskcore/internal/risk"
)

// PostgresStore persists outcome records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed outcome store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the outcome_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outcome_records (
			id               VARCHAR(40) PRIMARY KEY,
			partner_id       VARCHAR(64) NOT NULL,
			commodity_id     VARCHAR(64) NOT NULL DEFAULT '',
			amount           NUMERIC(18,4) NOT NULL DEFAULT 0,
			predicted_score  NUMERIC(6,3) NOT NULL,
			predicted_status VARCHAR(8) NOT NULL CHECK (predicted_status IN ('PASS', 'WARN', 'FAIL')),
			actual_outcome   VARCHAR(16) NOT NULL,
			prediction_date  TIMESTAMPTZ NOT NULL,
			outcome_date     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_outcome_records_partner
			ON outcome_records (partner_id, outcome_date DESC);

		CREATE INDEX IF NOT EXISTS idx_outcome_records_window
			ON outcome_records (outcome_date);
	`)
	return err
}

// Append stores a new outcome record.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("out_")
	}
	if rec.OutcomeDate.IsZero() {
		rec.OutcomeDate = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcome_records
			(id, partner_id, commodity_id, amount, predicted_score, predicted_status, actual_outcome, prediction_date, outcome_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.PartnerID,
		rec.CommodityID,
		rec.Amount.String(),
		rec.PredictedScore,
		string(rec.PredictedStatus),
		string(rec.Actual),
		rec.PredictionDate,
		rec.OutcomeDate,
	)
	if err != nil {
		return fmt.Errorf("failed to append outcome record: %w", err)
	}
	return nil
}

// ListWindow returns records whose outcome date falls in [from, to).
func (s *PostgresStore) ListWindow(ctx context.Context, from, to time.Time) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partner_id, commodity_id, amount, predicted_score, predicted_status, actual_outcome, prediction_date, outcome_date
		FROM outcome_records
		WHERE outcome_date >= $1 AND outcome_date < $2
		ORDER BY outcome_date ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcome records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByPartner returns the most recent records for one partner.
func (s *PostgresStore) ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partner_id, commodity_id, amount, predicted_score, predicted_status, actual_outcome, prediction_date, outcome_date
		FROM outcome_records
		WHERE partner_id = $1
		ORDER BY outcome_date DESC
		LIMIT $2
	`, partnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcome records by partner: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var (
			rec     Record
			amount  string
			status  string
			outcome string
		)
		if err := rows.Scan(
			&rec.ID, &rec.PartnerID, &rec.CommodityID, &amount, &rec.PredictedScore,
			&status, &outcome, &rec.PredictionDate, &rec.OutcomeDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome record: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse outcome amount: %w", err)
		}
		rec.Amount = amt
		rec.PredictedStatus = risk.Status(status)
		rec.Actual = Outcome(outcome)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
