package predict

import "math"

// ClassifierParams is a trained logistic-regression parameter set for the
// payment-default classifier. Output is a default probability in [0, 1].
type ClassifierParams struct {
	Weights []float64 `json:"weights"` // indexed by Features.Vector order
	Bias    float64   `json:"bias"`
}

// Predict returns the default probability for the feature vector.
func (p ClassifierParams) Predict(f Features) float64 {
	return sigmoid(dot(p.Weights, f.Vector()) + p.Bias)
}

// RegressorParams is a trained linear-regression parameter set for the
// recommended-credit-limit regressor. Output is a limit in currency units.
type RegressorParams struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	// Scale converts the normalized regression output to currency units.
	Scale float64 `json:"scale"`
}

// Predict returns the recommended credit limit for the feature vector.
func (p RegressorParams) Predict(f Features) float64 {
	out := dot(p.Weights, f.Vector()) + p.Bias
	if out < 0 {
		out = 0
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return out * scale
}

// AnomalyParams holds per-feature means and standard deviations for the
// unsupervised anomaly detector. The score is the mean absolute z-score of
// the vector, squashed into [0, 1]; roughly, 4 standard deviations of
// average displacement saturate the score.
type AnomalyParams struct {
	Means  []float64 `json:"means"`
	Stddev []float64 `json:"stddev"`
}

// Predict returns the anomaly score for the feature vector.
func (p AnomalyParams) Predict(f Features) float64 {
	vec := f.Vector()
	if len(p.Means) != len(vec) || len(p.Stddev) != len(vec) {
		return 0
	}
	var total float64
	var counted int
	for i, v := range vec {
		sd := p.Stddev[i]
		if sd <= 0 {
			continue
		}
		total += math.Abs(v-p.Means[i]) / sd
		counted++
	}
	if counted == 0 {
		return 0
	}
	meanZ := total / float64(counted)
	return clamp01(meanZ / 4)
}

func dot(w, x []float64) float64 {
	n := len(w)
	if len(x) < n {
		n = len(x)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
