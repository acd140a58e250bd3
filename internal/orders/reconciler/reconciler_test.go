package reconciler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

func newReconciler(c clock.Clock) *QuoteReconciler {
	tc := NewTickConverter(0.01, fixedpoint.DefaultPriceScale)
	return New(fixedpoint.Qty(1), 1, tc, c)
}

func TestDiffOnEmptyLayerProducesNew(t *testing.T) {
	c := clock.NewManual(1000)
	r := newReconciler(c)
	lb := NewLayerBook()

	acts := r.Diff([]QuoteIntent{{Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: fixedpoint.Price(100 * fixedpoint.DefaultPriceScale), Qty: 1}}, lb)
	require.Len(t, acts.News, 1)
	require.Empty(t, acts.Replaces)
}

func TestDiffReplacesLiveSlotOnPriceDrift(t *testing.T) {
	c := clock.NewManual(1000)
	r := newReconciler(c)
	lb := NewLayerBook()
	sb := lb.SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.Slots[0] = Slot{State: Live, Price: fixedpoint.Price(100 * fixedpoint.DefaultPriceScale), Qty: 1, ClOrderID: 42}
	sb.LayerTicks[0] = r.tickConv.ToTicksRaw(int64(sb.Slots[0].Price))

	acts := r.Diff([]QuoteIntent{{Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: fixedpoint.Price(101 * fixedpoint.DefaultPriceScale), Qty: 1}}, lb)
	require.Len(t, acts.Replaces, 1)
	require.Equal(t, 0, acts.Replaces[0].Layer)
	require.Equal(t, fixedpoint.OrderId(42), acts.Replaces[0].OriginalClOrderID)
	require.Equal(t, fixedpoint.Qty(1), acts.Replaces[0].LastQty)
}

func TestDiffSameIntentTwiceIsNoOpOnSecondCall(t *testing.T) {
	c := clock.NewManual(1000)
	r := newReconciler(c)
	lb := NewLayerBook()
	intents := []QuoteIntent{{Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: fixedpoint.Price(100 * fixedpoint.DefaultPriceScale), Qty: 1}}

	acts := r.Diff(intents, lb)
	require.Len(t, acts.News, 1)

	sb := lb.SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.Slots[acts.News[0].Layer] = Slot{
		State:     Live,
		Price:     acts.News[0].Price,
		Qty:       acts.News[0].Qty,
		ClOrderID: acts.News[0].ClOrderID,
	}
	sb.LayerTicks[acts.News[0].Layer] = r.tickConv.ToTicksRaw(int64(acts.News[0].Price))

	acts2 := r.Diff(intents, lb)
	require.True(t, acts2.Empty())
}

func TestEmptyIntentsProducesEmptyActionsSoftPullDisabled(t *testing.T) {
	c := clock.NewManual(1000)
	r := newReconciler(c)
	lb := NewLayerBook()
	sb := lb.SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.Slots[0] = Slot{State: Live, Price: 100, Qty: 1, ClOrderID: 1}

	acts := r.Diff(nil, lb)
	require.True(t, acts.Empty())
}

func TestVenuePolicyDropsActionsWithinTimeGap(t *testing.T) {
	lb := NewLayerBook()
	sb := lb.SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.LastSendNs = 1000

	vp := NewVenuePolicy(0, 0, 1_000_000, 500, 1)
	acts := Actions{News: []ActionNew{{Side: fixedpoint.SideBuy, PositionSide: fixedpoint.PositionBoth, Qty: 10, Price: 100}}}
	vp.Filter("BTCUSDT", &acts, 1200, lb)
	require.Empty(t, acts.News)
}

func TestVenuePolicyRaisesQtyToNotionalFloor(t *testing.T) {
	lb := NewLayerBook()
	vp := NewVenuePolicy(100*fixedpoint.DefaultPriceScale, 0, fixedpoint.Qty(1_000_000*fixedpoint.DefaultQtyScale), 0, 1)
	acts := Actions{News: []ActionNew{{Side: fixedpoint.SideBuy, Price: fixedpoint.Price(10 * fixedpoint.DefaultPriceScale), Qty: 1}}}
	vp.Filter("BTCUSDT", &acts, 1000, lb)
	require.Len(t, acts.News, 1)
	notional := int64(acts.News[0].Price) * int64(acts.News[0].Qty) / fixedpoint.DefaultQtyScale
	require.GreaterOrEqual(t, notional, int64(100*fixedpoint.DefaultPriceScale))
}
