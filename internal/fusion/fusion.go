// Package fusion implements the hybrid scoring tier: deterministic
// credit/limit rule scoring and the weighted combination of rule and
// predictive scores into one ScoreResult.
//
// Combine is a pure function of its inputs plus the configured weights,
// so boundary behavior is unit-testable without any collaborator.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tradeyard/riskcore/internal/predict"
	"github.com/tradeyard/riskcore/internal/risk"
)

// Config holds the fusion weights and status thresholds. Instances are
// immutable; the engine swaps whole snapshots on administrative change.
type Config struct {
	RuleWeight float64 `json:"ruleWeight"`
	MLWeight   float64 `json:"mlWeight"`
	WarnFloor  float64 `json:"warnFloor"` // below this: FAIL
	PassFloor  float64 `json:"passFloor"` // at or above: PASS
}

// DefaultConfig returns the production fusion parameters: 0.70/0.30
// weights, FAIL below 60, PASS at 80 and above.
func DefaultConfig() Config {
	return Config{
		RuleWeight: 0.70,
		MLWeight:   0.30,
		WarnFloor:  60,
		PassFloor:  80,
	}
}

// Validate checks weight and threshold consistency.
func (c Config) Validate() error {
	if c.RuleWeight < 0 || c.MLWeight < 0 {
		return errors.New("weights must be non-negative")
	}
	if math.Abs(c.RuleWeight+c.MLWeight-1.0) > 1e-9 {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", c.RuleWeight+c.MLWeight)
	}
	if c.WarnFloor >= c.PassFloor {
		return fmt.Errorf("warn floor %.1f must be below pass floor %.1f", c.WarnFloor, c.PassFloor)
	}
	return nil
}

// RuleResult is the deterministic tier-two rule score with its factors,
// ordered as discovered.
type RuleResult struct {
	Score   float64  `json:"score"` // 0-100
	Factors []string `json:"factors"`
}

// StatusFor maps a score onto PASS/WARN/FAIL. Boundaries are inclusive
// upward: exactly 80 is PASS, exactly 60 is WARN.
func (c Config) StatusFor(score float64) risk.Status {
	switch {
	case score >= c.PassFloor:
		return risk.StatusPass
	case score >= c.WarnFloor:
		return risk.StatusWarn
	default:
		return risk.StatusFail
	}
}

// Combine blends the rule result with the predictive result. A nil
// prediction (predictor unavailable or circuit open) yields a rules-only
// result; downstream consumers distinguish confidence by Method. Risk
// factors keep rule factors first, then predictive factors, each in
// discovery order.
func Combine(rr RuleResult, pred *predict.Prediction, cfg Config) risk.ScoreResult {
	result := risk.ScoreResult{
		Tier:        risk.TierScored,
		RuleScore:   rr.Score,
		RiskFactors: append([]string(nil), rr.Factors...),
		EvaluatedAt: time.Now(),
	}

	if pred == nil {
		result.Score = round3(rr.Score)
		result.Method = risk.MethodRulesOnly
	} else {
		ps := pred.Score
		result.PredictiveScore = &ps
		result.Score = round3(cfg.RuleWeight*rr.Score + cfg.MLWeight*pred.Score)
		result.Method = risk.MethodHybrid
		result.RiskFactors = append(result.RiskFactors, pred.Factors...)
	}

	result.Status = cfg.StatusFor(result.Score)
	return result
}

// round3 trims float noise without disturbing status boundaries
// (79.999 must stay below a pass floor of 80).
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
