package training

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeyard/riskcore/internal/outcomes"
	"github.com/tradeyard/riskcore/internal/predict"
	"github.com/tradeyard/riskcore/internal/risk"
)

// Row is one labeled training sample: the feature vector a prediction
// would have seen, plus the settlement ground truth.
type Row struct {
	Features  predict.Features
	Defaulted bool    // DEFAULTED or DISPUTED settlement
	Amount    float64 // transaction amount, regression target input
}

// Dataset is a labeled sample set collected from one outcome window.
type Dataset struct {
	Rows []Row
	From time.Time
	To   time.Time
}

// Collector extracts labeled outcome rows for training and accuracy
// auditing from the outcome store and trade history.
type Collector struct {
	outcomes   outcomes.Store
	trades     risk.TradeReader
	minSamples int
}

// NewCollector creates a collector requiring at least minSamples labeled
// rows per window before a training run is considered trustworthy.
func NewCollector(store outcomes.Store, trades risk.TradeReader, minSamples int) *Collector {
	if minSamples <= 0 {
		minSamples = DefaultConfig().MinSamples
	}
	return &Collector{outcomes: store, trades: trades, minSamples: minSamples}
}

// Collect aggregates outcome records from the trailing window into
// labeled feature rows. Fewer than the minimum sample count yields
// ErrInsufficientData rather than a dataset too small to trust.
func (c *Collector) Collect(ctx context.Context, window time.Duration) (*Dataset, error) {
	now := time.Now()
	from := now.Add(-window)

	records, err := c.outcomes.ListWindow(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("list outcome window: %w", err)
	}
	if len(records) < c.minSamples {
		return nil, fmt.Errorf("%w: %d samples in window, need %d",
			ErrInsufficientData, len(records), c.minSamples)
	}

	ds := &Dataset{From: from, To: now, Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		subject := &risk.Subject{
			PartnerID:   rec.PartnerID,
			CommodityID: rec.CommodityID,
			Amount:      rec.Amount,
		}
		// Feature reconstruction uses current history as a proxy for the
		// state at prediction time; outcome windows are short enough that
		// the drift is tolerable.
		history, err := c.trades.TradeHistory(ctx, rec.PartnerID, rec.CommodityID, predict.DefaultFeatureWindow)
		if err != nil {
			return nil, fmt.Errorf("trade history for %s: %w", rec.PartnerID, err)
		}
		ds.Rows = append(ds.Rows, Row{
			Features:  predict.FeaturesFromHistory(history, subject, rec.PredictionDate),
			Defaulted: rec.Actual == outcomes.Defaulted || rec.Actual == outcomes.Disputed,
			Amount:    rec.Amount.InexactFloat64(),
		})
	}
	return ds, nil
}
