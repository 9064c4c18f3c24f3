// Package rules implements the tier-one instant-block rule set.
//
// Checks run in a fixed severity order: circular trading, wash trading,
// related party, intra-organization, sanctions. The first blocking
// violation short-circuits evaluation. Checks read only committed ledger
// state and never call the predictive scorer; an infrastructure failure
// inside any check fails closed with a CHECK_UNAVAILABLE verdict, because
// an inability to verify trading integrity is itself a risk signal.
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// ViolationType identifies which integrity rule a subject tripped.
type ViolationType string

const (
	ViolationNone             ViolationType = ""
	ViolationUnsettledSell    ViolationType = "UNSETTLED_SELL_EXISTS"
	ViolationUnsettledBuy     ViolationType = "UNSETTLED_BUY_EXISTS"
	ViolationSameDayReversal  ViolationType = "SAME_DAY_REVERSAL"
	ViolationSameTaxID        ViolationType = "SAME_TAX_ID"
	ViolationSanctionsMatch   ViolationType = "SANCTIONS_MATCH"
	ViolationIntraOrgTrade    ViolationType = "INTRA_ORG_TRADE"
	ViolationCheckUnavailable ViolationType = "CHECK_UNAVAILABLE"
)

// Severity distinguishes hard blocks from advisory warnings.
type Severity string

const (
	SeverityBlock Severity = "BLOCK"
	SeverityWarn  Severity = "WARN"
)

// Verdict is the result of one tier-one evaluation. Created fresh per call
// and never persisted here; the caller's audit collaborator logs it.
type Verdict struct {
	Blocked   bool              `json:"blocked"`
	Violation ViolationType     `json:"violation,omitempty"`
	Severity  Severity          `json:"severity,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Evidence  map[string]string `json:"evidence,omitempty"`

	// Warnings are non-blocking advisories (e.g. shared contact channel)
	// surfaced to the scored tier as risk factors. They require manual
	// approval downstream but do not veto the transaction.
	Warnings []string `json:"warnings,omitempty"`
}

// Check is a single deterministic integrity rule. Evaluate returns a
// blocking or warning verdict, or nil when the rule passes.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error)
}

// Config holds the tunable parameters of the rule set.
type Config struct {
	// WashTradeWindow bounds the same-party reversal lookback. The check
	// still requires the opposite trade to fall on the same calendar day;
	// the window only bounds how much history is fetched.
	WashTradeWindow time.Duration
}

// DefaultConfig returns the production rule parameters.
func DefaultConfig() Config {
	return Config{WashTradeWindow: 24 * time.Hour}
}

// Checker runs the instant-block rule set in fixed order.
type Checker struct {
	checks []Check
	logger *slog.Logger
}

// NewChecker builds the rule set against the given ledger views, ordered
// most severe first.
func NewChecker(
	positions risk.PositionReader,
	trades risk.TradeReader,
	parties risk.PartyDirectory,
	blocklist risk.Blocklist,
	cfg Config,
	logger *slog.Logger,
) *Checker {
	if cfg.WashTradeWindow <= 0 {
		cfg.WashTradeWindow = DefaultConfig().WashTradeWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		checks: []Check{
			&circularTradingCheck{positions: positions},
			&washTradingCheck{trades: trades, window: cfg.WashTradeWindow},
			&relatedPartyCheck{parties: parties},
			&intraOrgCheck{parties: parties},
			&sanctionsCheck{parties: parties, blocklist: blocklist},
		},
		logger: logger,
	}
}

// Evaluate runs all checks in order. The first blocking verdict wins and
// the remaining checks are skipped. Non-blocking warnings from earlier
// checks are accumulated onto the final verdict. Deterministic: the same
// subject against unchanged ledger state yields the same verdict.
func (c *Checker) Evaluate(ctx context.Context, subject *risk.Subject) Verdict {
	var warnings []string
	for _, check := range c.checks {
		v, err := check.Evaluate(ctx, subject)
		if err != nil {
			// Fail closed: blocked, but distinguishable from a real violation.
			c.logger.Warn("integrity check unavailable, failing closed",
				"check", check.Name(), "partner_id", subject.PartnerID, "error", err)
			return Verdict{
				Blocked:   true,
				Violation: ViolationCheckUnavailable,
				Severity:  SeverityBlock,
				Reason:    "integrity check " + check.Name() + " unavailable",
				Warnings:  warnings,
			}
		}
		if v == nil {
			continue
		}
		if v.Blocked {
			v.Warnings = append(warnings, v.Warnings...)
			return *v
		}
		warnings = append(warnings, v.Warnings...)
	}
	return Verdict{Warnings: warnings}
}
