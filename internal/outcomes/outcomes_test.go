package outcomes

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/riskcore/internal/risk"
)

func record(partnerID string, status risk.Status, actual Outcome, outcomeDate time.Time) *Record {
	return &Record{
		PartnerID:       partnerID,
		CommodityID:     "WHEAT",
		Amount:          decimal.RequireFromString("2500"),
		PredictedScore:  72.5,
		PredictedStatus: status,
		Actual:          actual,
		PredictionDate:  outcomeDate.Add(-30 * 24 * time.Hour),
		OutcomeDate:     outcomeDate,
	}
}

func TestOutcome_Valid(t *testing.T) {
	for _, o := range []Outcome{PaidOnTime, Late, Defaulted, Disputed} {
		assert.True(t, o.Valid(), string(o))
	}
	assert.False(t, Outcome("SETTLED_EARLY").Valid())
	assert.False(t, Outcome("").Valid())
}

func TestAgrees(t *testing.T) {
	tests := []struct {
		predicted risk.Status
		actual    Outcome
		want      bool
	}{
		{risk.StatusPass, PaidOnTime, true},
		{risk.StatusPass, Late, false},
		{risk.StatusPass, Defaulted, false},
		{risk.StatusWarn, PaidOnTime, true},
		{risk.StatusWarn, Late, true},
		{risk.StatusWarn, Defaulted, false},
		{risk.StatusFail, Defaulted, true},
		{risk.StatusFail, Disputed, true},
		{risk.StatusFail, PaidOnTime, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Agrees(tt.predicted, tt.actual),
			"%s vs %s", tt.predicted, tt.actual)
	}
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 1.0, Accuracy(nil), "empty window must not read as a regression")

	now := time.Now()
	records := []*Record{
		record("p1", risk.StatusPass, PaidOnTime, now),
		record("p2", risk.StatusPass, Defaulted, now),
		record("p3", risk.StatusFail, Defaulted, now),
		record("p4", risk.StatusWarn, Late, now),
	}
	assert.InDelta(t, 0.75, Accuracy(records), 1e-9)
}

func TestMemoryStore_AppendAssignsDefaults(t *testing.T) {
	store := NewMemoryStore()
	rec := record("p1", risk.StatusPass, PaidOnTime, time.Time{})
	rec.OutcomeDate = time.Time{}

	require.NoError(t, store.Append(context.Background(), rec))

	assert.NotEmpty(t, rec.ID)
	assert.Contains(t, rec.ID, "out_")
	assert.False(t, rec.OutcomeDate.IsZero())
}

func TestMemoryStore_ListWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, record("p1", risk.StatusPass, PaidOnTime, base.Add(48*time.Hour))))
	require.NoError(t, store.Append(ctx, record("p2", risk.StatusWarn, Late, base)))
	require.NoError(t, store.Append(ctx, record("p3", risk.StatusFail, Defaulted, base.Add(30*24*time.Hour))))

	got, err := store.ListWindow(ctx, base, base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].PartnerID, "window results are ordered by outcome date")
	assert.Equal(t, "p1", got[1].PartnerID)

	// The window is half-open: a record exactly at the upper bound is excluded.
	got, err = store.ListWindow(ctx, base, base.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStore_ListByPartner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, record("p1", risk.StatusPass, PaidOnTime, base.Add(time.Duration(i)*24*time.Hour))))
	}
	require.NoError(t, store.Append(ctx, record("other", risk.StatusFail, Defaulted, base)))

	got, err := store.ListByPartner(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(48*time.Hour), got[0].OutcomeDate, "most recent first")
	assert.Equal(t, base.Add(24*time.Hour), got[1].OutcomeDate)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, record("p1", risk.StatusPass, PaidOnTime, base)))

	first, err := store.ListByPartner(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Actual = Defaulted

	second, err := store.ListByPartner(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, PaidOnTime, second[0].Actual, "callers must not be able to mutate stored records")
}
