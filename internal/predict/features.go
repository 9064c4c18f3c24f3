package predict

import (
	"context"
	"math"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// DefaultFeatureWindow bounds how much trade history feeds the feature
// vector. Six months balances stability against staleness.
const DefaultFeatureWindow = 180 * 24 * time.Hour

// Features is the input vector shared by all predictors. The exact feature
// set is a modeling choice, not a contract; it is documented here and kept
// pluggable behind the Predictor interface.
//
//	TradeCount    log-scaled count of trades in the window
//	OnTimeRatio   settled-on-time fraction (0.5 neutral below 5 trades)
//	Utilization   requested amount relative to recent traded volume
//	AmountRatio   requested amount vs. the partner's typical ticket
//	Volatility    coefficient of variation of historical trade amounts
//	DaysSinceLast recency of the partner's last executed trade
type Features struct {
	TradeCount    float64
	OnTimeRatio   float64
	Utilization   float64
	AmountRatio   float64
	Volatility    float64
	DaysSinceLast float64
}

// Vector returns the features in canonical order. Trained parameter sets
// index into this order, so it must stay stable across retraining.
func (f Features) Vector() []float64 {
	return []float64{
		f.TradeCount,
		f.OnTimeRatio,
		f.Utilization,
		f.AmountRatio,
		f.Volatility,
		f.DaysSinceLast,
	}
}

// NumFeatures is the length of the canonical feature vector.
const NumFeatures = 6

// ExtractFeatures derives the feature vector for a subject from its trade
// history. A partner with no history yields a cold-start vector (neutral
// on-time ratio, zero utilization), not an error.
func ExtractFeatures(ctx context.Context, trades risk.TradeReader, subject *risk.Subject, window time.Duration) (Features, error) {
	history, err := trades.TradeHistory(ctx, subject.PartnerID, subject.CommodityID, window)
	if err != nil {
		return Features{}, err
	}
	return FeaturesFromHistory(history, subject, time.Now()), nil
}

// FeaturesFromHistory computes the feature vector from an already-fetched
// history slice. Split out so the trainer can reuse it on collected rows.
func FeaturesFromHistory(history []risk.Trade, subject *risk.Subject, now time.Time) Features {
	amount := subject.Amount.InexactFloat64()

	if len(history) == 0 {
		return Features{
			OnTimeRatio:   0.5, // neutral until there is evidence either way
			Utilization:   0,
			AmountRatio:   1,
			DaysSinceLast: window30,
		}
	}

	var (
		total, sumSq float64
		onTime       int
		settled      int
		volume30d    float64
		lastExecuted time.Time
	)
	for _, t := range history {
		amt := t.Amount.InexactFloat64()
		total += amt
		sumSq += amt * amt
		if t.Outcome != risk.OutcomePending {
			settled++
			if t.Outcome == risk.OutcomePaidOnTime {
				onTime++
			}
		}
		if now.Sub(t.ExecutedAt) <= 30*24*time.Hour {
			volume30d += amt
		}
		if t.ExecutedAt.After(lastExecuted) {
			lastExecuted = t.ExecutedAt
		}
	}

	n := float64(len(history))
	mean := total / n

	onTimeRatio := 0.5
	if settled >= 5 {
		onTimeRatio = float64(onTime) / float64(settled)
	}

	volatility := 0.0
	if mean > 0 && n > 1 {
		variance := sumSq/n - mean*mean
		if variance > 0 {
			volatility = math.Sqrt(variance) / mean
		}
	}

	amountRatio := 1.0
	if mean > 0 {
		amountRatio = amount / mean
	}

	utilization := 0.0
	if volume30d+amount > 0 {
		utilization = amount / (volume30d + amount)
	}

	days := now.Sub(lastExecuted).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days > window30 {
		days = window30
	}

	return Features{
		TradeCount:    math.Log10(n + 1),
		OnTimeRatio:   onTimeRatio,
		Utilization:   utilization,
		AmountRatio:   math.Min(amountRatio, 10),
		Volatility:    math.Min(volatility, 5),
		DaysSinceLast: days,
	}
}

// window30 caps the recency feature so a single dormant partner cannot
// dominate the vector's scale.
const window30 = 30
