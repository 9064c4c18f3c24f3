// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskcore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts risk assessments by method, status, and tier.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "assessments_total",
			Help:      "Total risk assessments by scoring method, status, and tier.",
		},
		[]string{"method", "status", "tier"},
	)

	// AssessmentDuration observes assessment latency by scoring method.
	AssessmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskcore",
			Name:      "assessment_duration_seconds",
			Help:      "Risk assessment duration in seconds.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method"},
	)

	// AssessmentScores observes the distribution of issued scores.
	AssessmentScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskcore",
			Name:      "assessment_scores",
			Help:      "Distribution of issued risk scores (0-100).",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// PredictorErrorsTotal counts absorbed predictor failures by kind.
	PredictorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "predictor_errors_total",
			Help:      "Predictor failures absorbed by the orchestrator, by error kind.",
		},
		[]string{"kind"},
	)

	// OutcomesRecorded counts settlement outcomes appended by result.
	OutcomesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "outcomes_recorded_total",
			Help:      "Settlement outcome records appended, by actual outcome.",
		},
		[]string{"outcome"},
	)

	// RetrainingRunsTotal counts retraining attempts by result.
	RetrainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskcore",
			Name:      "retraining_runs_total",
			Help:      "Retraining runs by result (accepted, insufficient_data, regression, error).",
		},
		[]string{"result"},
	)

	// SnapshotVersion tracks the active predictor snapshot version.
	SnapshotVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcore",
		Name:      "predictor_snapshot_version",
		Help:      "Version of the active predictor parameter snapshot.",
	})

	// LiveAccuracy tracks prediction accuracy measured from outcomes.
	LiveAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcore",
		Name:      "prediction_live_accuracy",
		Help:      "Live prediction accuracy from outcome records (0-1).",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcore", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcore", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcore", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentDuration,
		AssessmentScores,
		PredictorErrorsTotal,
		OutcomesRecorded,
		RetrainingRunsTotal,
		SnapshotVersion,
		LiveAccuracy,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveAssessment records one completed assessment: the per-call metrics
// record {method, latency, score, status, errorKind}.
func ObserveAssessment(method, status, tier string, score float64, latency time.Duration, errorKind string) {
	AssessmentsTotal.WithLabelValues(method, status, tier).Inc()
	AssessmentDuration.WithLabelValues(method).Observe(latency.Seconds())
	AssessmentScores.Observe(score)
	if errorKind != "" {
		PredictorErrorsTotal.WithLabelValues(errorKind).Inc()
	}
}

// StartDBStatsCollector periodically samples sql.DBStats and the runtime
// goroutine count into Prometheus gauges. Call in a goroutine; exits when
// ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
