// Package training closes the feedback loop: it assembles labeled
// datasets from settlement outcomes, re-fits the predictors, and swaps
// new parameter snapshots in atomically, but only when the candidate
// does not regress accuracy. Predictors train on actual outcomes, never
// on synthetic data.
package training

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientData means the collection window held fewer labeled
	// samples than the configured minimum; retraining is skipped and the
	// previous snapshot stays active.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrAccuracyRegression means the candidate snapshot scored below the
	// accuracy floor or materially below the active snapshot; it is
	// discarded and the previous snapshot stays active.
	ErrAccuracyRegression = errors.New("candidate snapshot regresses accuracy")
)

// Config holds the retraining parameters.
type Config struct {
	MinSamples       int     // below this, Collect refuses to produce a dataset
	AccuracyFloor    float64 // candidate snapshots below this are rejected
	RegressionMargin float64 // tolerated drop vs. the active snapshot

	LightInterval time.Duration // periodic light refresh cadence
	FullInterval  time.Duration // periodic full refresh cadence
	LightWindow   time.Duration // outcome window for a light refresh
	FullWindow    time.Duration // outcome window for a full refresh

	CheckInterval  time.Duration // live-accuracy polling cadence
	AccuracyWindow time.Duration // outcome window for live accuracy
	AccuracyAlert  float64       // live accuracy below this triggers retraining
}

// DefaultConfig returns the production retraining parameters: weekly
// light refresh, monthly full refresh, on-demand when live accuracy
// drops below 75%.
func DefaultConfig() Config {
	return Config{
		MinSamples:       100,
		AccuracyFloor:    0.70,
		RegressionMargin: 0.05,
		LightInterval:    7 * 24 * time.Hour,
		FullInterval:     30 * 24 * time.Hour,
		LightWindow:      90 * 24 * time.Hour,
		FullWindow:       365 * 24 * time.Hour,
		CheckInterval:    6 * time.Hour,
		AccuracyWindow:   30 * 24 * time.Hour,
		AccuracyAlert:    0.75,
	}
}
