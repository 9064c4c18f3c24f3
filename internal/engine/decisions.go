package engine

import (
	"context"
	"time"

	"github.com/tradeyard/riskcore/internal/idgen"
	"github.com/tradeyard/riskcore/internal/risk"
)

// Decision is one issued ScoreResult, kept for the audit trail and for
// live accuracy tracking against later outcome records.
type Decision struct {
	ID          string           `json:"id"`
	PartnerID   string           `json:"partnerId"`
	CommodityID string           `json:"commodityId"`
	Side        risk.Side        `json:"side"`
	Result      risk.ScoreResult `json:"result"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// DecisionStore persists issued decisions.
type DecisionStore interface {
	Record(ctx context.Context, dec *Decision) error
	ListWindow(ctx context.Context, from, to time.Time) ([]*Decision, error)
	ListByPartner(ctx context.Context, partnerID string, limit int) ([]*Decision, error)
}

func decisionFrom(subject *risk.Subject, result *risk.ScoreResult) *Decision {
	return &Decision{
		ID:          idgen.WithPrefix("asm_"),
		PartnerID:   subject.PartnerID,
		CommodityID: subject.CommodityID,
		Side:        subject.Side,
		Result:      *result,
		CreatedAt:   time.Now(),
	}
}
