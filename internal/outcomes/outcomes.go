// Package outcomes stores settlement ground truth for past risk
// assessments. Records are appended by the settlement flow when an
// outcome becomes known and are never mutated afterwards; the training
// collector and live accuracy tracking consume them.
package outcomes

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeyard/riskcore/internal/risk"
)

var ErrNotFound = errors.New("outcome record not found")

// Outcome is the materialized settlement result.
type Outcome string

const (
	PaidOnTime Outcome = "PAID_ON_TIME"
	Late       Outcome = "LATE"
	Defaulted  Outcome = "DEFAULTED"
	Disputed   Outcome = "DISPUTED"
)

// Valid reports whether the outcome value is one the engine understands.
func (o Outcome) Valid() bool {
	switch o {
	case PaidOnTime, Late, Defaulted, Disputed:
		return true
	default:
		return false
	}
}

// Record links a past prediction to its actual outcome. Append-only.
type Record struct {
	ID              string          `json:"id"`
	PartnerID       string          `json:"partnerId"`
	CommodityID     string          `json:"commodityId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PredictedScore  float64         `json:"predictedScore"`
	PredictedStatus risk.Status     `json:"predictedStatus"`
	Actual          Outcome         `json:"actualOutcome"`
	PredictionDate  time.Time       `json:"predictionDate"`
	OutcomeDate     time.Time       `json:"outcomeDate"`
}

// Store persists outcome records.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	ListWindow(ctx context.Context, from, to time.Time) ([]*Record, error)
	ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Record, error)
}

// Agrees reports whether the predicted status matches the actual outcome:
// PASS expects on-time payment, WARN tolerates lateness, FAIL expects a
// default or dispute. This is the accuracy definition used by both holdout
// evaluation and live tracking.
func Agrees(predicted risk.Status, actual Outcome) bool {
	switch predicted {
	case risk.StatusPass:
		return actual == PaidOnTime
	case risk.StatusWarn:
		return actual == PaidOnTime || actual == Late
	case risk.StatusFail:
		return actual == Defaulted || actual == Disputed
	default:
		return false
	}
}

// Accuracy returns the fraction of records whose predicted status agrees
// with the actual outcome. Returns 1.0 for an empty set so a quiet period
// never looks like a model regression.
func Accuracy(records []*Record) float64 {
	if len(records) == 0 {
		return 1.0
	}
	var agree int
	for _, r := range records {
		if Agrees(r.PredictedStatus, r.Actual) {
			agree++
		}
	}
	return float64(agree) / float64(len(records))
}
