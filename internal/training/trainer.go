package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tradeyard/riskcore/internal/metrics"
	"github.com/tradeyard/riskcore/internal/predict"
)

// Trainer re-fits all three predictors on a collected dataset and swaps
// the resulting snapshot into the live scorer when it passes the
// accuracy gate.
type Trainer struct {
	collector *Collector
	scorer    *predict.Scorer
	cfg       Config
	logger    *slog.Logger
}

// NewTrainer creates a trainer feeding the given live scorer.
func NewTrainer(collector *Collector, scorer *predict.Scorer, cfg Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{collector: collector, scorer: scorer, cfg: cfg, logger: logger}
}

// Retrain collects the window, fits a candidate snapshot, and evaluates
// it on a 20% hold-out split. The candidate is swapped in only if its
// hold-out accuracy clears the configured floor and does not fall more
// than the regression margin below the active snapshot; otherwise the
// previous snapshot remains active and the rejection is logged.
func (t *Trainer) Retrain(ctx context.Context, window time.Duration) (*predict.Snapshot, error) {
	ds, err := t.collector.Collect(ctx, window)
	if err != nil {
		if isInsufficient(err) {
			metrics.RetrainingRunsTotal.WithLabelValues("insufficient_data").Inc()
			t.logger.Warn("retraining skipped", "error", err)
		} else {
			metrics.RetrainingRunsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	// Chronological split: train on the older 80%, hold out the newest 20%
	// so evaluation never sees the future.
	cut := len(ds.Rows) * 4 / 5
	train, holdout := ds.Rows[:cut], ds.Rows[cut:]

	prev := t.scorer.Snapshot()
	candidate := &predict.Snapshot{
		Version:    prev.Version + 1,
		TrainedAt:  time.Now(),
		Classifier: fitClassifier(train),
		Regressor:  fitRegressor(train),
		Anomaly:    fitAnomaly(train),
	}
	acc := holdoutAccuracy(candidate.Classifier, holdout)
	candidate.Accuracy = predict.AccuracyMetrics{
		HoldoutAccuracy: acc,
		SampleCount:     len(holdout),
		EvaluatedAt:     time.Now(),
	}

	if acc < t.cfg.AccuracyFloor {
		metrics.RetrainingRunsTotal.WithLabelValues("regression").Inc()
		t.logger.Warn("candidate snapshot rejected: below accuracy floor",
			"holdout_accuracy", acc, "floor", t.cfg.AccuracyFloor, "active_version", prev.Version)
		return nil, fmt.Errorf("%w: holdout accuracy %.3f below floor %.3f",
			ErrAccuracyRegression, acc, t.cfg.AccuracyFloor)
	}
	// Version 0 is hand-set priors with no measured accuracy; only gate
	// against snapshots that have been evaluated.
	if prev.Version > 0 && acc < prev.Accuracy.HoldoutAccuracy-t.cfg.RegressionMargin {
		metrics.RetrainingRunsTotal.WithLabelValues("regression").Inc()
		t.logger.Warn("candidate snapshot rejected: regresses active snapshot",
			"holdout_accuracy", acc, "active_accuracy", prev.Accuracy.HoldoutAccuracy,
			"active_version", prev.Version)
		return nil, fmt.Errorf("%w: holdout accuracy %.3f vs active %.3f",
			ErrAccuracyRegression, acc, prev.Accuracy.HoldoutAccuracy)
	}

	t.scorer.Swap(candidate)
	metrics.RetrainingRunsTotal.WithLabelValues("accepted").Inc()
	metrics.SnapshotVersion.Set(float64(candidate.Version))
	t.logger.Info("predictor snapshot swapped",
		"version", candidate.Version, "holdout_accuracy", acc,
		"train_rows", len(train), "holdout_rows", len(holdout))
	return candidate, nil
}

func isInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// fitClassifier runs logistic-regression gradient descent on the default
// label.
func fitClassifier(rows []Row) predict.ClassifierParams {
	const (
		epochs = 300
		lr     = 0.05
	)
	weights := make([]float64, predict.NumFeatures)
	var bias float64

	n := float64(len(rows))
	for epoch := 0; epoch < epochs; epoch++ {
		grad := make([]float64, predict.NumFeatures)
		var gradBias float64
		for _, row := range rows {
			x := row.Features.Vector()
			z := bias
			for i, w := range weights {
				z += w * x[i]
			}
			p := 1 / (1 + math.Exp(-z))
			y := 0.0
			if row.Defaulted {
				y = 1.0
			}
			diff := p - y
			for i := range grad {
				grad[i] += diff * x[i]
			}
			gradBias += diff
		}
		for i := range weights {
			weights[i] -= lr * grad[i] / n
		}
		bias -= lr * gradBias / n
	}
	return predict.ClassifierParams{Weights: weights, Bias: bias}
}

// fitRegressor fits the recommended-limit regressor by least squares
// gradient descent. The target gives good payers headroom above their
// ticket and cuts defaulters below it.
func fitRegressor(rows []Row) predict.RegressorParams {
	const (
		epochs = 300
		lr     = 0.05
	)

	var maxTarget float64
	targets := make([]float64, len(rows))
	for i, row := range rows {
		if row.Defaulted {
			targets[i] = row.Amount * 0.5
		} else {
			targets[i] = row.Amount * 1.5
		}
		if targets[i] > maxTarget {
			maxTarget = targets[i]
		}
	}
	if maxTarget <= 0 {
		maxTarget = 1
	}

	weights := make([]float64, predict.NumFeatures)
	var bias float64
	n := float64(len(rows))
	for epoch := 0; epoch < epochs; epoch++ {
		grad := make([]float64, predict.NumFeatures)
		var gradBias float64
		for i, row := range rows {
			x := row.Features.Vector()
			out := bias
			for j, w := range weights {
				out += w * x[j]
			}
			diff := out - targets[i]/maxTarget
			for j := range grad {
				grad[j] += diff * x[j]
			}
			gradBias += diff
		}
		for j := range weights {
			weights[j] -= lr * grad[j] / n
		}
		bias -= lr * gradBias / n
	}
	return predict.RegressorParams{Weights: weights, Bias: bias, Scale: maxTarget}
}

// fitAnomaly computes per-feature means and standard deviations over the
// training rows.
func fitAnomaly(rows []Row) predict.AnomalyParams {
	means := make([]float64, predict.NumFeatures)
	stddev := make([]float64, predict.NumFeatures)
	n := float64(len(rows))
	if n == 0 {
		return predict.AnomalyParams{Means: means, Stddev: stddev}
	}

	for _, row := range rows {
		for i, v := range row.Features.Vector() {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= n
	}
	for _, row := range rows {
		for i, v := range row.Features.Vector() {
			d := v - means[i]
			stddev[i] += d * d
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / n)
	}
	return predict.AnomalyParams{Means: means, Stddev: stddev}
}

// holdoutAccuracy measures binary default-prediction accuracy at the 0.5
// decision boundary.
func holdoutAccuracy(params predict.ClassifierParams, holdout []Row) float64 {
	if len(holdout) == 0 {
		return 0
	}
	var correct int
	for _, row := range holdout {
		predicted := params.Predict(row.Features) >= 0.5
		if predicted == row.Defaulted {
			correct++
		}
	}
	return float64(correct) / float64(len(holdout))
}
