// Package risk defines the shared domain model for the two-tier risk
// decision pipeline: the subject under evaluation, the read-only views of
// the trading ledger it is judged against, and the ScoreResult returned
// to the trading flow.
//
// Evaluation always runs in two tiers: deterministic instant-block rules
// first, then blended scoring. A blocked subject never reaches tier two.
package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a prospective transaction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other trade direction.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Subject is the party and transaction being evaluated. It is constructed
// per call and never persisted by this engine.
type Subject struct {
	PartnerID      string          `json:"partnerId"`
	CounterpartyID string          `json:"counterpartyId,omitempty"`
	Side           Side            `json:"side"`
	CommodityID    string          `json:"commodityId"`
	Amount         decimal.Decimal `json:"amount"`
}

// PositionState is the lifecycle state of a trading position.
type PositionState string

const (
	PositionDraft           PositionState = "DRAFT"
	PositionActive          PositionState = "ACTIVE"
	PositionReserved        PositionState = "RESERVED"
	PositionPartiallyFilled PositionState = "PARTIALLY_FILLED"
	PositionSettled         PositionState = "SETTLED"
	PositionCancelled       PositionState = "CANCELLED"
)

// Unsettled reports whether the position still represents open exposure.
// Settled and cancelled positions are terminal and do not block trading.
func (s PositionState) Unsettled() bool {
	switch s {
	case PositionDraft, PositionActive, PositionReserved, PositionPartiallyFilled:
		return true
	default:
		return false
	}
}

// Position is a party's outstanding position in one commodity. Owned by the
// trading subsystem; this engine only reads it.
type Position struct {
	ID          string          `json:"id"`
	PartnerID   string          `json:"partnerId"`
	CommodityID string          `json:"commodityId"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	State       PositionState   `json:"state"`
}

// TradeOutcome is the settlement outcome of a historical trade, when known.
type TradeOutcome string

const (
	OutcomePaidOnTime TradeOutcome = "PAID_ON_TIME"
	OutcomeLate       TradeOutcome = "LATE"
	OutcomeDefaulted  TradeOutcome = "DEFAULTED"
	OutcomeDisputed   TradeOutcome = "DISPUTED"
	OutcomePending    TradeOutcome = ""
)

// Trade is one executed trade from the platform history.
type Trade struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyerId"`
	SellerID    string          `json:"sellerId"`
	CommodityID string          `json:"commodityId"`
	Amount      decimal.Decimal `json:"amount"`
	ExecutedAt  time.Time       `json:"executedAt"`
	Outcome     TradeOutcome    `json:"outcome,omitempty"`
}

// Direction returns the side the given partner took in this trade.
func (t Trade) Direction(partnerID string) Side {
	if t.BuyerID == partnerID {
		return SideBuy
	}
	return SideSell
}

// PartyIdentifiers holds the legal and contact identity of a partner, used
// for related-party, intra-organization, and sanctions checks.
type PartyIdentifiers struct {
	PartnerID        string   `json:"partnerId"`
	Name             string   `json:"name"`
	TaxID            string   `json:"taxId"`
	ContactChannels  []string `json:"contactChannels"`
	OrgUnit          string   `json:"orgUnit,omitempty"`
	SelfTradeAllowed bool     `json:"selfTradeAllowed"`
}

// Status is the pass/warn/fail outcome of an assessment.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Tier identifies which evaluation stage produced the result.
type Tier string

const (
	TierInstantBlock Tier = "INSTANT_BLOCK"
	TierScored       Tier = "SCORED"
)

// Method identifies how the score was produced.
type Method string

const (
	MethodHybrid    Method = "hybrid"     // rules + predictive blend
	MethodRulesOnly Method = "rules_only" // predictor unavailable or circuit open
	MethodFallback  Method = "fallback"   // instant block, no scoring ran
)

// ScoreResult is the sole return value of the orchestrator. The caller
// decides what, if anything, to persist.
type ScoreResult struct {
	Score           float64  `json:"score"` // 0-100
	Status          Status   `json:"status"`
	Tier            Tier     `json:"tier"`
	Method          Method   `json:"method"`
	RuleScore       float64  `json:"ruleScore"`
	PredictiveScore *float64 `json:"predictiveScore,omitempty"`
	RiskFactors     []string `json:"riskFactors"`

	// Populated only for instant blocks.
	Violation string            `json:"violation,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Evidence  map[string]string `json:"evidence,omitempty"`

	// Observability tags: which engines ran and the breaker state after
	// the call, so degraded results are distinguishable downstream.
	EnginesRan   []string  `json:"enginesRan"`
	BreakerState string    `json:"breakerState,omitempty"`
	EvaluatedAt  time.Time `json:"evaluatedAt"`
	LatencyMS    int64     `json:"latencyMs"`
}

// PositionReader exposes the trading subsystem's unsettled positions.
type PositionReader interface {
	UnsettledPositions(ctx context.Context, partnerID, commodityID string) ([]Position, error)
}

// PartyDirectory exposes partner legal identity and contact channels.
type PartyDirectory interface {
	PartyIdentifiers(ctx context.Context, partnerID string) (*PartyIdentifiers, error)
}

// Blocklist checks a party against the external sanctions/compliance list.
type Blocklist interface {
	IsSanctioned(ctx context.Context, ids *PartyIdentifiers) (bool, error)
}

// TradeReader exposes executed trade history, used by the wash-trading rule
// and by predictive feature extraction.
type TradeReader interface {
	TradeHistory(ctx context.Context, partnerID, commodityID string, window time.Duration) ([]Trade, error)
}
