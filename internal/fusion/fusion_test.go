package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/riskcore/internal/predict"
	"github.com/tradeyard/riskcore/internal/risk"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MLWeight = 0.4
	assert.Error(t, bad.Validate(), "weights must sum to 1")

	bad = DefaultConfig()
	bad.RuleWeight = -0.1
	bad.MLWeight = 1.1
	assert.Error(t, bad.Validate(), "negative weight")

	bad = DefaultConfig()
	bad.WarnFloor = 85
	assert.Error(t, bad.Validate(), "warn floor above pass floor")

	zeroML := Config{RuleWeight: 1.0, MLWeight: 0, WarnFloor: 60, PassFloor: 80}
	assert.NoError(t, zeroML.Validate(), "a zero ML weight is a valid rules-only configuration")
}

func TestStatusFor_BoundariesInclusiveUpward(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		score float64
		want  risk.Status
	}{
		{100, risk.StatusPass},
		{80.0, risk.StatusPass}, // exactly at the pass floor
		{79.999, risk.StatusWarn},
		{60.0, risk.StatusWarn}, // exactly at the warn floor
		{59.999, risk.StatusFail},
		{0, risk.StatusFail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.StatusFor(tt.score), "score %v", tt.score)
	}
}

func TestCombine_WeightedBlend(t *testing.T) {
	cfg := DefaultConfig()
	rr := RuleResult{Score: 90, Factors: []string{"rule factor"}}
	pred := &predict.Prediction{Score: 70, Factors: []string{"predictive factor"}}

	result := Combine(rr, pred, cfg)

	// 0.70*90 + 0.30*70 = 84
	assert.Equal(t, 84.0, result.Score)
	assert.Equal(t, risk.StatusPass, result.Status)
	assert.Equal(t, risk.TierScored, result.Tier)
	assert.Equal(t, risk.MethodHybrid, result.Method)
	assert.Equal(t, 90.0, result.RuleScore)
	require.NotNil(t, result.PredictiveScore)
	assert.Equal(t, 70.0, *result.PredictiveScore)
}

func TestCombine_ScoreJustBelowPassFloorStaysWarn(t *testing.T) {
	cfg := DefaultConfig()

	// 0.70*79.999 + 0.30*79.999 = 79.999; rounding must not lift it to 80.
	rr := RuleResult{Score: 79.999}
	pred := &predict.Prediction{Score: 79.999}

	result := Combine(rr, pred, cfg)
	assert.Equal(t, 79.999, result.Score)
	assert.Equal(t, risk.StatusWarn, result.Status)

	rr.Score = 80.0
	pred.Score = 80.0
	result = Combine(rr, pred, cfg)
	assert.Equal(t, 80.0, result.Score)
	assert.Equal(t, risk.StatusPass, result.Status)
}

func TestCombine_NilPredictionIsRulesOnly(t *testing.T) {
	cfg := DefaultConfig()
	rr := RuleResult{Score: 75, Factors: []string{"thin history"}}

	result := Combine(rr, nil, cfg)

	assert.Equal(t, 75.0, result.Score)
	assert.Equal(t, risk.MethodRulesOnly, result.Method)
	assert.Nil(t, result.PredictiveScore)
	assert.Equal(t, risk.StatusWarn, result.Status)
}

func TestCombine_ZeroMLWeightMatchesRulesOnly(t *testing.T) {
	cfg := Config{RuleWeight: 1.0, MLWeight: 0, WarnFloor: 60, PassFloor: 80}
	require.NoError(t, cfg.Validate())

	rr := RuleResult{Score: 72.5}
	pred := &predict.Prediction{Score: 10} // must not influence the blend

	withPred := Combine(rr, pred, cfg)
	withoutPred := Combine(rr, nil, cfg)

	assert.Equal(t, withoutPred.Score, withPred.Score)
	assert.Equal(t, withoutPred.Status, withPred.Status)
}

func TestCombine_RuleFactorsFirst(t *testing.T) {
	cfg := DefaultConfig()
	rr := RuleResult{Score: 50, Factors: []string{"r1", "r2"}}
	pred := &predict.Prediction{Score: 50, Factors: []string{"p1"}}

	result := Combine(rr, pred, cfg)
	assert.Equal(t, []string{"r1", "r2", "p1"}, result.RiskFactors)
}

func TestCombine_DoesNotAliasInputFactors(t *testing.T) {
	cfg := DefaultConfig()
	factors := []string{"r1"}
	rr := RuleResult{Score: 50, Factors: factors}

	result := Combine(rr, nil, cfg)
	result.RiskFactors[0] = "mutated"
	assert.Equal(t, "r1", factors[0])
}
