package fusion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// RuleScorer computes the deterministic tier-two credit score from trade
// history aggregates. It starts from a clean 100 and deducts for limit
// breaches, poor payment conduct, and thin history, appending a
// human-readable factor for every deduction.
type RuleScorer struct {
	trades risk.TradeReader
	window time.Duration

	// BaseCreditLimit anchors the volume-scaled deterministic limit.
	baseCreditLimit float64
}

// NewRuleScorer creates the deterministic scorer over the given history
// window. baseCreditLimit is the limit granted to an established partner
// at full volume scaling.
func NewRuleScorer(trades risk.TradeReader, window time.Duration, baseCreditLimit float64) *RuleScorer {
	if window <= 0 {
		window = 180 * 24 * time.Hour
	}
	if baseCreditLimit <= 0 {
		baseCreditLimit = 100000
	}
	return &RuleScorer{trades: trades, window: window, baseCreditLimit: baseCreditLimit}
}

// Score evaluates the subject's deterministic credit standing. Errors are
// infrastructure failures (history unavailable); the orchestrator treats
// them as a degraded neutral score rather than a veto, since tier-one
// integrity rules have already passed.
func (s *RuleScorer) Score(ctx context.Context, subject *risk.Subject) (RuleResult, error) {
	history, err := s.trades.TradeHistory(ctx, subject.PartnerID, subject.CommodityID, s.window)
	if err != nil {
		return RuleResult{}, fmt.Errorf("trade history lookup: %w", err)
	}

	var (
		score   = 100.0
		factors []string
	)

	var (
		volume   float64
		settled  int
		onTime   int
		defaults int
	)
	for _, t := range history {
		volume += t.Amount.InexactFloat64()
		switch t.Outcome {
		case risk.OutcomePaidOnTime:
			settled++
			onTime++
		case risk.OutcomeLate:
			settled++
		case risk.OutcomeDefaulted, risk.OutcomeDisputed:
			settled++
			defaults++
		}
	}

	// Volume-scaled credit limit: half the base limit with no history,
	// the full base limit from ~$1M traded volume.
	volumeFactor := math.Min(1.0, 0.5+0.5*(math.Log10(volume+1)/6))
	limit := s.baseCreditLimit * volumeFactor

	amount := subject.Amount.InexactFloat64()
	if amount > limit {
		over := math.Min((amount-limit)/limit, 1.0)
		score -= 25 * over
		factors = append(factors, fmt.Sprintf("amount exceeds deterministic credit limit (%.0f > %.0f)", amount, limit))
	}

	if settled >= 5 {
		onTimeRate := float64(onTime) / float64(settled)
		if onTimeRate < 0.95 {
			score -= 30 * (0.95 - onTimeRate) / 0.95
			factors = append(factors, fmt.Sprintf("on-time settlement rate %.0f%% below 95%% threshold", onTimeRate*100))
		}
		if defaults > 0 {
			score -= math.Min(20, float64(defaults)*10)
			factors = append(factors, fmt.Sprintf("%d defaulted or disputed settlement(s) in window", defaults))
		}
	} else {
		score -= 10
		factors = append(factors, "insufficient settled trading history")
	}

	if score < 0 {
		score = 0
	}
	return RuleResult{Score: round3(score), Factors: factors}, nil
}
