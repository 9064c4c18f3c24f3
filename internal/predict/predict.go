// Package predict implements the tier-two predictive scorer.
//
// Three independently trained predictors sit behind one interface: a
// logistic classifier for payment-default probability, a linear regressor
// for a recommended credit limit, and an unsupervised anomaly detector for
// fraud-like patterns. The scorer either answers in full or fails with a
// single typed error; degradation on failure is the orchestrator's call,
// never this package's.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// ErrUnavailable is returned when any internal predictor cannot produce a
// result. The circuit breaker records it; the caller falls back to
// rules-only scoring.
var ErrUnavailable = errors.New("prediction unavailable")

// Prediction is the composite output of the three predictors.
type Prediction struct {
	DefaultProbability float64  `json:"defaultProbability"` // 0-1
	RecommendedLimit   float64  `json:"recommendedLimit"`   // currency units
	AnomalyScore       float64  `json:"anomalyScore"`       // 0-1
	Score              float64  `json:"score"`              // derived, 0-100
	Factors            []string `json:"factors"`
	SnapshotVersion    int      `json:"snapshotVersion"`
}

// Predictor is one trained model: a feature vector in, a scalar out.
// The scorer composes three of these without knowing their internals.
type Predictor interface {
	Predict(f Features) float64
}

// Scorer wraps the three predictors behind the active parameter snapshot.
type Scorer struct {
	trades risk.TradeReader
	window time.Duration
	snap   atomic.Pointer[Snapshot]
}

// NewScorer creates a predictive scorer reading features from the given
// trade history and starting from the provided snapshot (typically
// DefaultSnapshot until the first retraining run).
func NewScorer(trades risk.TradeReader, snap *Snapshot) *Scorer {
	s := &Scorer{
		trades: trades,
		window: DefaultFeatureWindow,
	}
	if snap == nil {
		snap = DefaultSnapshot()
	}
	s.snap.Store(snap)
	return s
}

// Snapshot returns the active trained-parameter snapshot.
func (s *Scorer) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Swap atomically replaces the active snapshot. Readers see either the old
// or the new snapshot in full, never a mix.
func (s *Scorer) Swap(snap *Snapshot) {
	s.snap.Store(snap)
}

// Predict extracts features for the subject and runs all three predictors
// against the active snapshot. Any internal failure surfaces as a single
// error wrapping ErrUnavailable; there is no partial result.
func (s *Scorer) Predict(ctx context.Context, subject *risk.Subject) (*Prediction, error) {
	feats, err := ExtractFeatures(ctx, s.trades, subject, s.window)
	if err != nil {
		return nil, fmt.Errorf("%w: feature extraction: %v", ErrUnavailable, err)
	}

	snap := s.snap.Load()
	p := snap.Classifier.Predict(feats)
	limit := snap.Regressor.Predict(feats)
	anomaly := snap.Anomaly.Predict(feats)

	if math.IsNaN(p) || math.IsNaN(limit) || math.IsNaN(anomaly) {
		return nil, fmt.Errorf("%w: predictor returned NaN (snapshot v%d)", ErrUnavailable, snap.Version)
	}

	pred := &Prediction{
		DefaultProbability: clamp01(p),
		RecommendedLimit:   math.Max(0, limit),
		AnomalyScore:       clamp01(anomaly),
		SnapshotVersion:    snap.Version,
	}
	pred.Score = deriveScore(pred.DefaultProbability, pred.AnomalyScore, feats.Utilization)
	pred.Factors = deriveFactors(pred, subject)
	return pred, nil
}

// deriveScore maps the predictor outputs onto the 0-100 scale used by
// fusion. Monotonic decreasing in default probability and anomaly score,
// with a penalty for high credit utilization.
func deriveScore(defaultProb, anomaly, utilization float64) float64 {
	base := 100 * (1 - defaultProb) * (1 - 0.5*anomaly)
	penalty := 15 * clamp01(utilization)
	return math.Round(math.Max(0, base-penalty)*10) / 10
}

func deriveFactors(p *Prediction, subject *risk.Subject) []string {
	var factors []string
	if p.DefaultProbability >= 0.30 {
		factors = append(factors, fmt.Sprintf("elevated default probability (%.0f%%)", p.DefaultProbability*100))
	}
	if p.AnomalyScore >= 0.50 {
		factors = append(factors, "anomalous trading pattern detected")
	}
	if amt := subject.Amount.InexactFloat64(); p.RecommendedLimit > 0 && amt > p.RecommendedLimit {
		factors = append(factors, fmt.Sprintf("amount exceeds recommended limit (%.0f > %.0f)", amt, p.RecommendedLimit))
	}
	return factors
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
