package predict

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/riskcore/internal/risk"
)

type stubTrades struct {
	history []risk.Trade
	err     error
}

func (s stubTrades) TradeHistory(_ context.Context, _, _ string, _ time.Duration) ([]risk.Trade, error) {
	return s.history, s.err
}

func subject(amount string) *risk.Subject {
	return &risk.Subject{
		PartnerID:   "partner-1",
		Side:        risk.SideBuy,
		CommodityID: "WHEAT",
		Amount:      decimal.RequireFromString(amount),
	}
}

func settledTrade(amount string, age time.Duration, outcome risk.TradeOutcome) risk.Trade {
	return risk.Trade{
		ID:          "t-" + amount,
		BuyerID:     "partner-1",
		SellerID:    "partner-2",
		CommodityID: "WHEAT",
		Amount:      decimal.RequireFromString(amount),
		ExecutedAt:  time.Now().Add(-age),
		Outcome:     outcome,
	}
}

func TestFeaturesFromHistory_ColdStart(t *testing.T) {
	f := FeaturesFromHistory(nil, subject("1000"), time.Now())

	assert.Equal(t, 0.0, f.TradeCount)
	assert.Equal(t, 0.5, f.OnTimeRatio, "no history should score a neutral on-time ratio")
	assert.Equal(t, 0.0, f.Utilization)
	assert.Equal(t, 1.0, f.AmountRatio)
	assert.Equal(t, float64(window30), f.DaysSinceLast)
}

func TestFeaturesFromHistory_EstablishedPartner(t *testing.T) {
	now := time.Now()
	var history []risk.Trade
	for i := 0; i < 6; i++ {
		tr := settledTrade("1000", time.Duration(i+1)*24*time.Hour, risk.OutcomePaidOnTime)
		history = append(history, tr)
	}
	history[5].Outcome = risk.OutcomeLate

	f := FeaturesFromHistory(history, subject("1000"), now)

	assert.InDelta(t, math.Log10(7), f.TradeCount, 1e-9)
	assert.InDelta(t, 5.0/6.0, f.OnTimeRatio, 1e-9, "one late trade out of six settled")
	assert.InDelta(t, 1.0, f.AmountRatio, 1e-9)
	assert.InDelta(t, 0.0, f.Volatility, 1e-9, "identical amounts have no variance")
	assert.InDelta(t, 1.0, f.DaysSinceLast, 0.01)
	// 1000 requested against 6000 of 30-day volume.
	assert.InDelta(t, 1000.0/7000.0, f.Utilization, 1e-9)
}

func TestFeaturesFromHistory_FewSettledKeepsNeutralRatio(t *testing.T) {
	history := []risk.Trade{
		settledTrade("500", 24*time.Hour, risk.OutcomeDefaulted),
		settledTrade("500", 48*time.Hour, risk.OutcomePending),
	}

	f := FeaturesFromHistory(history, subject("500"), time.Now())

	assert.Equal(t, 0.5, f.OnTimeRatio, "under five settled trades the ratio stays neutral")
}

func TestFeaturesFromHistory_CapsOutliers(t *testing.T) {
	history := []risk.Trade{settledTrade("10", 90*24*time.Hour, risk.OutcomePaidOnTime)}

	f := FeaturesFromHistory(history, subject("1000000"), time.Now())

	assert.Equal(t, 10.0, f.AmountRatio, "amount ratio is capped at 10x typical ticket")
	assert.Equal(t, float64(window30), f.DaysSinceLast, "recency is capped at 30 days")
}

func TestDeriveScore_Monotonic(t *testing.T) {
	base := deriveScore(0.1, 0.1, 0.1)

	assert.Less(t, deriveScore(0.5, 0.1, 0.1), base, "higher default probability must lower the score")
	assert.Less(t, deriveScore(0.1, 0.8, 0.1), base, "higher anomaly score must lower the score")
	assert.Less(t, deriveScore(0.1, 0.1, 0.9), base, "higher utilization must lower the score")

	assert.Equal(t, 0.0, deriveScore(1, 1, 1))
	assert.Equal(t, 100.0, deriveScore(0, 0, 0))
}

func TestScorer_Predict(t *testing.T) {
	history := []risk.Trade{
		settledTrade("1000", 24*time.Hour, risk.OutcomePaidOnTime),
		settledTrade("1100", 48*time.Hour, risk.OutcomePaidOnTime),
		settledTrade("900", 72*time.Hour, risk.OutcomePaidOnTime),
	}
	s := NewScorer(stubTrades{history: history}, nil)

	pred, err := s.Predict(context.Background(), subject("1000"))

	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.DefaultProbability, 0.0)
	assert.LessOrEqual(t, pred.DefaultProbability, 1.0)
	assert.GreaterOrEqual(t, pred.AnomalyScore, 0.0)
	assert.LessOrEqual(t, pred.AnomalyScore, 1.0)
	assert.GreaterOrEqual(t, pred.RecommendedLimit, 0.0)
	assert.GreaterOrEqual(t, pred.Score, 0.0)
	assert.LessOrEqual(t, pred.Score, 100.0)
	assert.Equal(t, 0, pred.SnapshotVersion)
}

func TestFeaturesAndPredictors_Deterministic(t *testing.T) {
	now := time.Now()
	history := []risk.Trade{
		settledTrade("1000", 24*time.Hour, risk.OutcomePaidOnTime),
		settledTrade("2500", 72*time.Hour, risk.OutcomeLate),
	}
	snap := DefaultSnapshot()

	first := FeaturesFromHistory(history, subject("3000"), now)
	firstProb := snap.Classifier.Predict(first)
	for i := 0; i < 5; i++ {
		again := FeaturesFromHistory(history, subject("3000"), now)
		assert.Equal(t, first, again)
		assert.Equal(t, firstProb, snap.Classifier.Predict(again))
	}
}

func TestScorer_Predict_HistoryErrorWrapsUnavailable(t *testing.T) {
	s := NewScorer(stubTrades{err: errors.New("ledger down")}, nil)

	pred, err := s.Predict(context.Background(), subject("1000"))

	assert.Nil(t, pred)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "ledger down")
}

func TestScorer_Predict_NaNWrapsUnavailable(t *testing.T) {
	snap := DefaultSnapshot()
	snap.Regressor.Weights = []float64{math.NaN(), 0, 0, 0, 0, 0}
	s := NewScorer(stubTrades{history: []risk.Trade{settledTrade("100", time.Hour, risk.OutcomePaidOnTime)}}, snap)

	pred, err := s.Predict(context.Background(), subject("1000"))

	assert.Nil(t, pred, "no partial result on predictor failure")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScorer_Swap(t *testing.T) {
	s := NewScorer(stubTrades{}, nil)
	require.Equal(t, 0, s.Snapshot().Version)

	next := DefaultSnapshot()
	next.Version = 3
	next.TrainedAt = time.Now()
	s.Swap(next)

	assert.Equal(t, 3, s.Snapshot().Version)

	pred, err := s.Predict(context.Background(), subject("1000"))
	require.NoError(t, err)
	assert.Equal(t, 3, pred.SnapshotVersion, "predictions carry the active snapshot version")
}

func TestDeriveFactors(t *testing.T) {
	amt := subject("90000")

	p := &Prediction{DefaultProbability: 0.45, AnomalyScore: 0.7, RecommendedLimit: 50000}
	factors := deriveFactors(p, amt)
	require.Len(t, factors, 3)
	assert.Contains(t, factors[0], "elevated default probability")
	assert.Contains(t, factors[1], "anomalous trading pattern")
	assert.Contains(t, factors[2], "exceeds recommended limit")

	quiet := &Prediction{DefaultProbability: 0.05, AnomalyScore: 0.1, RecommendedLimit: 100000}
	assert.Empty(t, deriveFactors(quiet, amt))
}

func TestClassifierParams_Predict(t *testing.T) {
	p := DefaultSnapshot().Classifier

	risky := Features{OnTimeRatio: 0, Utilization: 1, AmountRatio: 10, Volatility: 5, DaysSinceLast: 30}
	safe := Features{TradeCount: 2, OnTimeRatio: 1, Utilization: 0.05, AmountRatio: 1}

	assert.Greater(t, p.Predict(risky), p.Predict(safe))
	assert.GreaterOrEqual(t, p.Predict(risky), 0.0)
	assert.LessOrEqual(t, p.Predict(risky), 1.0)
}

func TestRegressorParams_Predict(t *testing.T) {
	p := RegressorParams{Weights: []float64{1, 0, 0, 0, 0, 0}, Bias: -10, Scale: 100}
	assert.Equal(t, 0.0, p.Predict(Features{TradeCount: 1}), "negative regression output clamps to zero")

	p = RegressorParams{Weights: []float64{1, 0, 0, 0, 0, 0}, Bias: 0}
	assert.Equal(t, 2.0, p.Predict(Features{TradeCount: 2}), "non-positive scale falls back to identity")
}

func TestAnomalyParams_Predict(t *testing.T) {
	p := DefaultSnapshot().Anomaly

	atMeans := Features{
		TradeCount:    p.Means[0],
		OnTimeRatio:   p.Means[1],
		Utilization:   p.Means[2],
		AmountRatio:   p.Means[3],
		Volatility:    p.Means[4],
		DaysSinceLast: p.Means[5],
	}
	assert.Equal(t, 0.0, p.Predict(atMeans))

	far := Features{TradeCount: 50, OnTimeRatio: 0, Utilization: 1, AmountRatio: 10, Volatility: 5, DaysSinceLast: 30}
	assert.Greater(t, p.Predict(far), 0.5)

	mismatched := AnomalyParams{Means: []float64{1}, Stddev: []float64{1}}
	assert.Equal(t, 0.0, mismatched.Predict(far), "malformed parameter set scores neutral")
}
