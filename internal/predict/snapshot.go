package predict

import "time"

// Compile-time interface checks.
var (
	_ Predictor = ClassifierParams{}
	_ Predictor = RegressorParams{}
	_ Predictor = AnomalyParams{}
)

// AccuracyMetrics records how the snapshot performed on its hold-out set.
type AccuracyMetrics struct {
	HoldoutAccuracy float64   `json:"holdoutAccuracy"` // 0-1
	SampleCount     int       `json:"sampleCount"`
	EvaluatedAt     time.Time `json:"evaluatedAt"`
}

// Snapshot is one versioned, immutable trained-parameter set for all three
// predictors. The retraining scheduler builds a new snapshot off to the
// side and swaps it in atomically; live parameters are never mutated in
// place.
type Snapshot struct {
	Version    int              `json:"version"`
	TrainedAt  time.Time        `json:"trainedAt"`
	Classifier ClassifierParams `json:"classifier"`
	Regressor  RegressorParams  `json:"regressor"`
	Anomaly    AnomalyParams    `json:"anomaly"`
	Accuracy   AccuracyMetrics  `json:"accuracy"`
}

// DefaultSnapshot returns the version-0 hand-set priors used before the
// first successful retraining run. The signs encode domain knowledge:
// default risk falls with trade count and on-time ratio, rises with
// utilization, oversized tickets, volatility, and dormancy.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Version:   0,
		TrainedAt: time.Time{},
		Classifier: ClassifierParams{
			// Order: TradeCount, OnTimeRatio, Utilization, AmountRatio,
			// Volatility, DaysSinceLast.
			Weights: []float64{-0.8, -3.0, 1.5, 0.4, 0.6, 0.05},
			Bias:    0.2,
		},
		Regressor: RegressorParams{
			Weights: []float64{0.9, 1.5, -0.5, 0.0, -0.3, -0.02},
			Bias:    0.5,
			Scale:   50000,
		},
		Anomaly: AnomalyParams{
			Means:  []float64{1.0, 0.85, 0.25, 1.0, 0.5, 5},
			Stddev: []float64{0.6, 0.15, 0.20, 0.8, 0.5, 7},
		},
	}
}
