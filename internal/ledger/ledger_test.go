package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/riskcore/internal/risk"
)

func position(partnerID, commodityID string, side risk.Side, state risk.PositionState) risk.Position {
	return risk.Position{
		ID:          "pos-1",
		PartnerID:   partnerID,
		CommodityID: commodityID,
		Side:        side,
		Quantity:    decimal.RequireFromString("100"),
		State:       state,
	}
}

func TestMemory_UnsettledPositions(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	mem.AddPosition(position("p1", "WHEAT", risk.SideSell, risk.PositionActive))
	mem.AddPosition(position("p1", "WHEAT", risk.SideBuy, risk.PositionReserved))
	mem.AddPosition(position("p1", "WHEAT", risk.SideSell, risk.PositionSettled))
	mem.AddPosition(position("p1", "WHEAT", risk.SideSell, risk.PositionCancelled))
	mem.AddPosition(position("p1", "CORN", risk.SideSell, risk.PositionActive))
	mem.AddPosition(position("other", "WHEAT", risk.SideSell, risk.PositionActive))

	got, err := mem.UnsettledPositions(ctx, "p1", "WHEAT")
	require.NoError(t, err)
	assert.Len(t, got, 2, "settled and cancelled positions are not exposure")

	none, err := mem.UnsettledPositions(ctx, "p1", "BARLEY")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_TradeHistoryWindow(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	now := time.Now()

	mem.AddTrade(risk.Trade{ID: "recent-buy", BuyerID: "p1", SellerID: "x", CommodityID: "WHEAT",
		Amount: decimal.RequireFromString("100"), ExecutedAt: now.Add(-12 * time.Hour)})
	mem.AddTrade(risk.Trade{ID: "recent-sell", BuyerID: "x", SellerID: "p1", CommodityID: "WHEAT",
		Amount: decimal.RequireFromString("200"), ExecutedAt: now.Add(-36 * time.Hour)})
	mem.AddTrade(risk.Trade{ID: "stale", BuyerID: "p1", SellerID: "x", CommodityID: "WHEAT",
		Amount: decimal.RequireFromString("300"), ExecutedAt: now.Add(-10 * 24 * time.Hour)})
	mem.AddTrade(risk.Trade{ID: "corn", BuyerID: "p1", SellerID: "x", CommodityID: "CORN",
		Amount: decimal.RequireFromString("400"), ExecutedAt: now.Add(-time.Hour)})
	mem.AddTrade(risk.Trade{ID: "unrelated", BuyerID: "a", SellerID: "b", CommodityID: "WHEAT",
		Amount: decimal.RequireFromString("500"), ExecutedAt: now.Add(-time.Hour)})

	got, err := mem.TradeHistory(ctx, "p1", "WHEAT", 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 2, "history is bounded by commodity, party, and window")
	assert.Equal(t, "recent-buy", got[0].ID)
	assert.Equal(t, "recent-sell", got[1].ID, "both buy and sell sides count")
}

func TestMemory_PartyIdentifiers(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	mem.PutParty(&risk.PartyIdentifiers{
		PartnerID:       "p1",
		Name:            "Acme Grain",
		TaxID:           "TAX-001",
		ContactChannels: []string{"ops@acme-grain.example"},
		OrgUnit:         "trading-emea",
	})

	got, err := mem.PartyIdentifiers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Grain", got.Name)
	assert.Equal(t, "trading-emea", got.OrgUnit)

	// Returned records are copies.
	got.TaxID = "TAMPERED"
	again, err := mem.PartyIdentifiers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "TAX-001", again.TaxID)
}

func TestMemory_UnknownPartyYieldsEmptyRecord(t *testing.T) {
	mem := NewMemory()

	got, err := mem.PartyIdentifiers(context.Background(), "ghost")

	require.NoError(t, err, "missing identity data is not an infrastructure failure")
	assert.Equal(t, "ghost", got.PartnerID)
	assert.Empty(t, got.Name)
	assert.Empty(t, got.TaxID)
}

func TestMemory_IsSanctioned(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	mem.AddSanctioned("Shadow Commodities Ltd")
	mem.AddSanctioned("tax-666")

	hit, err := mem.IsSanctioned(ctx, &risk.PartyIdentifiers{Name: "SHADOW COMMODITIES LTD"})
	require.NoError(t, err)
	assert.True(t, hit, "name matching is case-insensitive")

	hit, err = mem.IsSanctioned(ctx, &risk.PartyIdentifiers{Name: "Clean Co", TaxID: "TAX-666"})
	require.NoError(t, err)
	assert.True(t, hit, "tax ID matches independently of name")

	hit, err = mem.IsSanctioned(ctx, &risk.PartyIdentifiers{Name: "Clean Co", TaxID: "TAX-001"})
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = mem.IsSanctioned(ctx, &risk.PartyIdentifiers{PartnerID: "anon"})
	require.NoError(t, err)
	assert.False(t, hit, "a party with no name or tax ID cannot match")
}
