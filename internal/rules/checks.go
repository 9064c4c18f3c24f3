package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tradeyard/riskcore/internal/risk"
)

// ---------------------------------------------------------------------------
// Circular trading: an unsettled opposite-side position in the same
// commodity blocks the request. Settled positions never block, so
// legitimate sequential trading is unaffected.
// ---------------------------------------------------------------------------

type circularTradingCheck struct {
	positions risk.PositionReader
}

func (c *circularTradingCheck) Name() string { return "circular_trading" }

func (c *circularTradingCheck) Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error) {
	open, err := c.positions.UnsettledPositions(ctx, subject.PartnerID, subject.CommodityID)
	if err != nil {
		return nil, fmt.Errorf("unsettled positions lookup: %w", err)
	}

	opposite := subject.Side.Opposite()
	var offending []string
	for _, p := range open {
		if p.Side == opposite && p.State.Unsettled() {
			offending = append(offending, p.ID)
		}
	}
	if len(offending) == 0 {
		return nil, nil
	}

	violation := ViolationUnsettledSell
	if opposite == risk.SideBuy {
		violation = ViolationUnsettledBuy
	}
	return &Verdict{
		Blocked:   true,
		Violation: violation,
		Severity:  SeverityBlock,
		Reason: fmt.Sprintf("partner holds %d unsettled %s position(s) in commodity %s",
			len(offending), opposite, subject.CommodityID),
		Evidence: map[string]string{"positionIds": strings.Join(offending, ",")},
	}, nil
}

// ---------------------------------------------------------------------------
// Wash trading: an opposite-direction trade between the same two parties in
// the same commodity on the same calendar day is presumed manipulative.
// ---------------------------------------------------------------------------

type washTradingCheck struct {
	trades risk.TradeReader
	window time.Duration
}

func (c *washTradingCheck) Name() string { return "wash_trading" }

func (c *washTradingCheck) Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error) {
	if subject.CounterpartyID == "" {
		return nil, nil // no designated counterparty yet, nothing to reverse
	}

	history, err := c.trades.TradeHistory(ctx, subject.PartnerID, subject.CommodityID, c.window)
	if err != nil {
		return nil, fmt.Errorf("trade history lookup: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	opposite := subject.Side.Opposite()
	for _, t := range history {
		if !c.betweenPair(t, subject) {
			continue
		}
		if t.Direction(subject.PartnerID) != opposite {
			continue
		}
		if !t.ExecutedAt.UTC().Truncate(24 * time.Hour).Equal(today) {
			continue
		}
		return &Verdict{
			Blocked:   true,
			Violation: ViolationSameDayReversal,
			Severity:  SeverityBlock,
			Reason: fmt.Sprintf("opposite-direction trade with %s in commodity %s on the same day",
				subject.CounterpartyID, subject.CommodityID),
			Evidence: map[string]string{"tradeId": t.ID},
		}, nil
	}
	return nil, nil
}

func (c *washTradingCheck) betweenPair(t risk.Trade, subject *risk.Subject) bool {
	return (t.BuyerID == subject.PartnerID && t.SellerID == subject.CounterpartyID) ||
		(t.SellerID == subject.PartnerID && t.BuyerID == subject.CounterpartyID)
}

// ---------------------------------------------------------------------------
// Related party: identical legal tax identifier blocks outright; a merely
// shared contact channel downgrades to a non-blocking warning that routes
// the transaction to manual approval.
// ---------------------------------------------------------------------------

type relatedPartyCheck struct {
	parties risk.PartyDirectory
}

func (c *relatedPartyCheck) Name() string { return "related_party" }

func (c *relatedPartyCheck) Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error) {
	if subject.CounterpartyID == "" {
		return nil, nil
	}

	own, err := c.parties.PartyIdentifiers(ctx, subject.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("party identifiers lookup (%s): %w", subject.PartnerID, err)
	}
	other, err := c.parties.PartyIdentifiers(ctx, subject.CounterpartyID)
	if err != nil {
		return nil, fmt.Errorf("party identifiers lookup (%s): %w", subject.CounterpartyID, err)
	}

	if own.TaxID != "" && own.TaxID == other.TaxID {
		return &Verdict{
			Blocked:   true,
			Violation: ViolationSameTaxID,
			Severity:  SeverityBlock,
			Reason:    "buyer and seller share a legal tax identifier",
			Evidence:  map[string]string{"taxId": own.TaxID},
		}, nil
	}

	if ch := sharedChannel(own.ContactChannels, other.ContactChannels); ch != "" {
		return &Verdict{
			Severity: SeverityWarn,
			Warnings: []string{fmt.Sprintf("counterparties share contact channel %s; manual approval required", ch)},
		}, nil
	}
	return nil, nil
}

func sharedChannel(a, b []string) string {
	seen := make(map[string]struct{}, len(a))
	for _, ch := range a {
		seen[normalizeChannel(ch)] = struct{}{}
	}
	for _, ch := range b {
		if _, ok := seen[normalizeChannel(ch)]; ok {
			return ch
		}
	}
	return ""
}

// normalizeChannel lowercases and reduces emails to their domain so that
// two addresses at the same company domain count as a shared channel.
func normalizeChannel(ch string) string {
	ch = strings.ToLower(strings.TrimSpace(ch))
	if at := strings.LastIndex(ch, "@"); at >= 0 {
		return ch[at+1:]
	}
	return ch
}

// ---------------------------------------------------------------------------
// Intra-organization: both parties in the same internal org unit, and that
// unit is configured to disallow self-trading.
// ---------------------------------------------------------------------------

type intraOrgCheck struct {
	parties risk.PartyDirectory
}

func (c *intraOrgCheck) Name() string { return "intra_org" }

func (c *intraOrgCheck) Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error) {
	if subject.CounterpartyID == "" {
		return nil, nil
	}

	own, err := c.parties.PartyIdentifiers(ctx, subject.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("party identifiers lookup (%s): %w", subject.PartnerID, err)
	}
	other, err := c.parties.PartyIdentifiers(ctx, subject.CounterpartyID)
	if err != nil {
		return nil, fmt.Errorf("party identifiers lookup (%s): %w", subject.CounterpartyID, err)
	}

	if own.OrgUnit == "" || own.OrgUnit != other.OrgUnit {
		return nil, nil
	}
	if own.SelfTradeAllowed {
		return nil, nil
	}
	return &Verdict{
		Blocked:   true,
		Violation: ViolationIntraOrgTrade,
		Severity:  SeverityBlock,
		Reason:    fmt.Sprintf("organizational unit %s disallows self-trading", own.OrgUnit),
		Evidence:  map[string]string{"orgUnit": own.OrgUnit},
	}, nil
}

// ---------------------------------------------------------------------------
// Sanctions: the subject (or its counterparty) matches the external
// blocklist by name or identifier.
// ---------------------------------------------------------------------------

type sanctionsCheck struct {
	parties   risk.PartyDirectory
	blocklist risk.Blocklist
}

func (c *sanctionsCheck) Name() string { return "sanctions" }

func (c *sanctionsCheck) Evaluate(ctx context.Context, subject *risk.Subject) (*Verdict, error) {
	partyIDs := []string{subject.PartnerID}
	if subject.CounterpartyID != "" {
		partyIDs = append(partyIDs, subject.CounterpartyID)
	}
	for _, id := range partyIDs {
		ids, err := c.parties.PartyIdentifiers(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("party identifiers lookup (%s): %w", id, err)
		}
		hit, err := c.blocklist.IsSanctioned(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("blocklist lookup (%s): %w", id, err)
		}
		if hit {
			return &Verdict{
				Blocked:   true,
				Violation: ViolationSanctionsMatch,
				Severity:  SeverityBlock,
				Reason:    "party matches sanctions/compliance blocklist",
				Evidence:  map[string]string{"partnerId": id},
			}, nil
		}
	}
	return nil, nil
}
