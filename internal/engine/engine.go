// Package engine implements the risk orchestrator: the single entry point
// that enforces the two-tier pipeline. Instant-block rules always run
// first and short-circuit on a veto; only then does the predictive scorer
// run, gated by the circuit breaker, and the fusion layer blends the two
// tiers into one ScoreResult. A predictor failure is never an error to
// the caller: it degrades to a rules-only result.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradeyard/riskcore/internal/circuitbreaker"
	"github.com/tradeyard/riskcore/internal/fusion"
	"github.com/tradeyard/riskcore/internal/metrics"
	"github.com/tradeyard/riskcore/internal/outcomes"
	"github.com/tradeyard/riskcore/internal/predict"
	"github.com/tradeyard/riskcore/internal/risk"
	"github.com/tradeyard/riskcore/internal/rules"
)

// neutralRuleScore stands in when the deterministic credit score cannot be
// computed after tier one has already passed. Tier-two infrastructure
// failures degrade, they never veto.
const neutralRuleScore = 50

// RuleScorer is the deterministic tier-two credit scorer.
type RuleScorer interface {
	Score(ctx context.Context, subject *risk.Subject) (fusion.RuleResult, error)
}

// PredictiveScorer is the tier-two statistical scorer. Implemented by
// *predict.Scorer; narrowed to an interface so tests can spy on calls.
type PredictiveScorer interface {
	Predict(ctx context.Context, subject *risk.Subject) (*predict.Prediction, error)
}

// Engine is the risk orchestrator.
type Engine struct {
	rules      *rules.Checker
	ruleScorer RuleScorer
	predictor  PredictiveScorer
	breaker    *circuitbreaker.Breaker
	cfg        atomic.Pointer[fusion.Config]
	decisions  DecisionStore
	outcomes   outcomes.Store
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDecisionStore sets the audit store for issued score results.
func WithDecisionStore(store DecisionStore) Option {
	return func(e *Engine) { e.decisions = store }
}

// WithOutcomeStore sets the store receiving settlement ground truth.
func WithOutcomeStore(store outcomes.Store) Option {
	return func(e *Engine) { e.outcomes = store }
}

// New creates the orchestrator. The fusion config is copied into an
// atomically swapped snapshot; administrative setters replace the whole
// snapshot so concurrent assessments see consistent weights.
func New(
	checker *rules.Checker,
	ruleScorer RuleScorer,
	predictor PredictiveScorer,
	breaker *circuitbreaker.Breaker,
	cfg fusion.Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		rules:      checker,
		ruleScorer: ruleScorer,
		predictor:  predictor,
		breaker:    breaker,
		logger:     slog.Default(),
		tracer:     otel.Tracer("github.com/tradeyard/riskcore/internal/engine"),
	}
	e.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(e)
	}
	breaker.OnTransition(func(from, to circuitbreaker.State) {
		e.logger.Warn("predictor circuit breaker transition", "from", from.String(), "to", to.String())
	})
	return e
}

// Assess runs the full two-tier pipeline for one subject. It never
// returns an error for predictor trouble; callers should bound the call
// with a request-level timeout, which surfaces as a breaker-recorded
// predictor failure and a rules-only result.
func (e *Engine) Assess(ctx context.Context, subject *risk.Subject) *risk.ScoreResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Assess",
		trace.WithAttributes(
			attribute.String("risk.partner_id", subject.PartnerID),
			attribute.String("risk.commodity_id", subject.CommodityID),
			attribute.String("risk.side", string(subject.Side)),
		))
	defer span.End()

	// Tier one, always first. A block short-circuits the pipeline and the
	// predictive scorer is never consulted.
	verdict := e.rules.Evaluate(ctx, subject)
	if verdict.Blocked {
		result := e.blockedResult(subject, verdict, start)
		e.finish(ctx, span, subject, result, "")
		return result
	}

	// Tier two: deterministic credit score. Infrastructure failure here
	// degrades to a neutral score; tier one has already vouched for the
	// transaction's integrity.
	rr, err := e.ruleScorer.Score(ctx, subject)
	if err != nil {
		e.logger.Warn("rule scorer unavailable, using neutral score",
			"partner_id", subject.PartnerID, "error", err)
		rr = fusion.RuleResult{
			Score:   neutralRuleScore,
			Factors: []string{"credit history unavailable, neutral rule score applied"},
		}
	}
	// Tier-one advisories (e.g. shared contact channel) lead the factor list.
	if len(verdict.Warnings) > 0 {
		rr.Factors = append(append([]string(nil), verdict.Warnings...), rr.Factors...)
	}

	pred, errorKind := e.predictFused(ctx, subject)

	result := fusion.Combine(rr, pred, *e.cfg.Load())
	result.BreakerState = e.breaker.State().String()
	result.EnginesRan = enginesRan(pred != nil)
	result.LatencyMS = time.Since(start).Milliseconds()

	e.finish(ctx, span, subject, &result, errorKind)
	return &result
}

// predictFused calls the predictive scorer through the circuit breaker.
// Returns nil (and an error kind for metrics) on any failure or when the
// breaker refuses the call.
func (e *Engine) predictFused(ctx context.Context, subject *risk.Subject) (*predict.Prediction, string) {
	if !e.breaker.Allow() {
		return nil, "circuit_open"
	}

	pred, err := e.predictor.Predict(ctx, subject)
	if err != nil {
		e.breaker.RecordFailure()
		kind := "prediction_unavailable"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = "prediction_timeout"
		}
		e.logger.Warn("predictive scorer unavailable, falling back to rules only",
			"partner_id", subject.PartnerID, "error", err, "breaker", e.breaker.State().String())
		return nil, kind
	}
	e.breaker.RecordSuccess()
	return pred, ""
}

func (e *Engine) blockedResult(subject *risk.Subject, verdict rules.Verdict, start time.Time) *risk.ScoreResult {
	return &risk.ScoreResult{
		Score:       0,
		Status:      risk.StatusFail,
		Tier:        risk.TierInstantBlock,
		Method:      risk.MethodFallback,
		Violation:   string(verdict.Violation),
		Reason:      verdict.Reason,
		Evidence:    verdict.Evidence,
		RiskFactors: append([]string(nil), verdict.Warnings...),
		EnginesRan:  []string{"rules"},
		EvaluatedAt: time.Now(),
		LatencyMS:   time.Since(start).Milliseconds(),
	}
}

func (e *Engine) finish(ctx context.Context, span trace.Span, subject *risk.Subject, result *risk.ScoreResult, errorKind string) {
	span.SetAttributes(
		attribute.String("risk.tier", string(result.Tier)),
		attribute.String("risk.method", string(result.Method)),
		attribute.String("risk.status", string(result.Status)),
		attribute.Float64("risk.score", result.Score),
	)
	metrics.ObserveAssessment(string(result.Method), string(result.Status), string(result.Tier),
		result.Score, time.Duration(result.LatencyMS)*time.Millisecond, errorKind)

	if e.decisions != nil {
		// Best-effort audit trail; feeds live accuracy tracking.
		dec := decisionFrom(subject, result)
		go func() {
			if err := e.decisions.Record(context.Background(), dec); err != nil {
				e.logger.Warn("failed to record decision", "error", err)
			}
		}()
	}
}

func enginesRan(predictive bool) []string {
	if predictive {
		return []string{"rules", "hybrid", "predictive"}
	}
	return []string{"rules", "hybrid"}
}

// EvaluateRules runs only the instant-block tier. Debug/reconciliation
// entry point; the result is not recorded.
func (e *Engine) EvaluateRules(ctx context.Context, subject *risk.Subject) rules.Verdict {
	return e.rules.Evaluate(ctx, subject)
}

// PredictOnly runs only the predictive scorer, bypassing the circuit
// breaker. Debug/reconciliation entry point; failures are returned, not
// recorded against the breaker.
func (e *Engine) PredictOnly(ctx context.Context, subject *risk.Subject) (*predict.Prediction, error) {
	return e.predictor.Predict(ctx, subject)
}

// Weights returns the active fusion configuration.
func (e *Engine) Weights() fusion.Config {
	return *e.cfg.Load()
}

// SetWeights atomically replaces the fusion weights. The pair must sum to
// 1.0.
func (e *Engine) SetWeights(ruleWeight, mlWeight float64) error {
	next := *e.cfg.Load()
	next.RuleWeight = ruleWeight
	next.MLWeight = mlWeight
	if err := next.Validate(); err != nil {
		return err
	}
	e.cfg.Store(&next)
	e.logger.Info("fusion weights updated", "rule_weight", ruleWeight, "ml_weight", mlWeight)
	return nil
}

// SetThresholds atomically replaces the status boundaries.
func (e *Engine) SetThresholds(warnFloor, passFloor float64) error {
	next := *e.cfg.Load()
	next.WarnFloor = warnFloor
	next.PassFloor = passFloor
	if err := next.Validate(); err != nil {
		return err
	}
	e.cfg.Store(&next)
	e.logger.Info("fusion thresholds updated", "warn_floor", warnFloor, "pass_floor", passFloor)
	return nil
}

// SetBreakerParams adjusts the circuit breaker at runtime.
func (e *Engine) SetBreakerParams(threshold int, timeout time.Duration) {
	e.breaker.SetParams(threshold, timeout)
	e.logger.Info("breaker params updated", "threshold", threshold, "timeout", timeout)
}

// ResetBreaker forces the breaker closed.
func (e *Engine) ResetBreaker() {
	e.breaker.Reset()
	e.logger.Info("breaker manually reset")
}

// BreakerStatus returns the administrative breaker view.
func (e *Engine) BreakerStatus() circuitbreaker.Status {
	return e.breaker.CurrentStatus()
}

// RecordOutcome appends settlement ground truth for a past assessment.
// Called by the settlement collaborator once an outcome is known.
func (e *Engine) RecordOutcome(ctx context.Context, rec *outcomes.Record) error {
	if e.outcomes == nil {
		return errors.New("no outcome store configured")
	}
	if !rec.Actual.Valid() {
		return errors.New("unknown outcome value: " + string(rec.Actual))
	}
	if err := e.outcomes.Append(ctx, rec); err != nil {
		return err
	}
	metrics.OutcomesRecorded.WithLabelValues(string(rec.Actual)).Inc()
	return nil
}
