package manager

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
	"github.com/abdoElHodaky/hft-core/internal/orders/state"
	"github.com/abdoElHodaky/hft-core/internal/risk"
)

type fakeGateway struct {
	sent []Request
}

func (g *fakeGateway) SendRequest(req Request) { g.sent = append(g.sent, req) }

// newTestManager wires an OrderManager with an identity tick converter
// (matching cmd/hftd's own wiring, where the book grid already carries
// raw tick indices) so test prices can be plain small integers.
func newTestManager(c clock.Clock, riskCfg config.RiskConfig) (*OrderManager, *fakeGateway) {
	gw := &fakeGateway{}
	venue := reconciler.NewVenuePolicy(0, 0, 1_000_000, 0, 1)
	cfg := Config{
		Ticker:              "BTCUSDT",
		TickConv:            reconciler.NewTickConverter(1, 1),
		MinReplaceQtyDelta:  1,
		MinReplaceTickDelta: 1,
		Venue:               venue,
		Risk:                riskCfg,
		TTLReservedNs:       1_000_000,
		TTLLiveNs:           30_000_000_000,
	}
	om := New(cfg, c, gw, risk.NewPositionKeeper(zap.NewNop()), nil, zap.NewNop())
	return om, gw
}

func TestApplyNewOrderReservesSlotAndSendsRequest(t *testing.T) {
	c := clock.NewManual(1000)
	om, gw := newTestManager(c, config.RiskConfig{MaxOrderQty: 1000, MaxPosition: 1000, MinPosition: -1000})

	intents := []reconciler.QuoteIntent{{
		Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 100, Qty: 1,
	}}
	om.Apply(intents)

	require.Len(t, gw.sent, 1)
	require.Equal(t, ReqNewOrder, gw.sent[0].ReqType)

	sb := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	require.Equal(t, reconciler.Reserved, sb.Slots[0].State)
	require.Equal(t, int64(1), om.Reserved().Net())
}

// A too-large order is dropped while a smaller sibling in the same batch
// still goes out.
func TestApplyRiskRejectionLeavesOtherActionsAlone(t *testing.T) {
	c := clock.NewManual(1000)
	maxOrderQty := int64(500)
	om, gw := newTestManager(c, config.RiskConfig{MaxOrderQty: maxOrderQty, MaxPosition: 1_000_000, MinPosition: -1_000_000})

	intents := []reconciler.QuoteIntent{
		{Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 100, Qty: 100},
		{Ticker: "BTCUSDT", Side: fixedpoint.SideSell, Price: 200, Qty: 10000},
	}
	om.Apply(intents)

	require.Len(t, gw.sent, 1, "only the order within the per-order max should be sent")
	require.Equal(t, fixedpoint.SideBuy, gw.sent[0].Side)

	buySB := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	require.Equal(t, reconciler.Reserved, buySB.Slots[0].State)

	sellSB := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideSell, fixedpoint.PositionBoth)
	require.Equal(t, reconciler.Invalid, sellSB.Slots[0].State, "the rejected action must never touch the slot book")
}

// A Reserved slot whose TTL
// has passed gets swept into a cancel on the next Apply pass, even with
// no new intents.
func TestSweepExpiredFiresCancel(t *testing.T) {
	c := clock.NewManual(0)
	om, gw := newTestManager(c, config.RiskConfig{MaxOrderQty: 1_000_000, MaxPosition: 1_000_000, MinPosition: -1_000_000})

	intents := []reconciler.QuoteIntent{{
		Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 100, Qty: 1,
	}}
	om.Apply(intents)
	require.Len(t, gw.sent, 1)

	c.Advance(2 * 1_000_000) // past TTLReservedNs
	om.Apply(nil)

	require.Len(t, gw.sent, 2)
	require.Equal(t, ReqCancel, gw.sent[1].ReqType)

	sb := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	require.Equal(t, reconciler.CancelReserved, sb.Slots[0].State)
}

// The venue's LOT_SIZE step size, delivered via exchangeInfo, replaces
// the default 1-raw-unit qty increment in the venue policy filter.
func TestOnInstrumentInfoAppliesStepSize(t *testing.T) {
	c := clock.NewManual(1000)
	gw := &fakeGateway{}
	venue := reconciler.NewVenuePolicy(0, 0, fixedpoint.Qty(10_000_000_000), 0, 1)
	cfg := Config{
		Ticker:              "BTCUSDT",
		TickConv:            reconciler.NewTickConverter(1, 1),
		MinReplaceQtyDelta:  1,
		MinReplaceTickDelta: 1,
		Venue:               venue,
		Risk:                config.RiskConfig{MaxOrderQty: 10_000_000_000, MaxPosition: 10_000_000_000, MinPosition: -10_000_000_000},
		TTLReservedNs:       1_000_000,
		TTLLiveNs:           30_000_000_000,
	}
	om := New(cfg, c, gw, risk.NewPositionKeeper(zap.NewNop()), nil, zap.NewNop())

	om.OnInstrumentInfo(&decoder.ExchangeInfo{Symbols: []decoder.SymbolInfo{
		{Symbol: "BTCUSDT", StepSize: "0.50000000"},
	}}, fixedpoint.DefaultPrecision())

	om.Apply([]reconciler.QuoteIntent{{
		Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 100, Qty: 60_000_000,
	}})

	require.Len(t, gw.sent, 1)
	require.Equal(t, fixedpoint.Qty(100_000_000), gw.sent[0].Qty, "qty rounds up to the venue step")
}

// An expiry entry whose client order id no longer matches the slot is
// a stale pop: the sweep discards it without emitting anything.
func TestSweepDiscardsStaleExpiryEntry(t *testing.T) {
	c := clock.NewManual(0)
	om, gw := newTestManager(c, config.RiskConfig{MaxOrderQty: 1_000_000, MaxPosition: 1_000_000, MinPosition: -1_000_000})

	om.Apply([]reconciler.QuoteIntent{{
		Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 100, Qty: 1,
	}})
	require.Len(t, gw.sent, 1)

	sb := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.Slots[0].ClOrderID = 777 // the slot has since been reused

	c.Advance(2 * 1_000_000)
	om.Apply(nil)

	require.Len(t, gw.sent, 1, "a stale entry must not fire a cancel")
	require.Equal(t, 0, om.expiry.PendingCount())
	require.Equal(t, reconciler.Reserved, sb.Slots[0].State)
}

// A replace emission chained into a Rejected execution report
// rollback restores the pre-replace slot.
func TestReplaceThenVenueRejectRollsBackSlot(t *testing.T) {
	c := clock.NewManual(1000)
	om, gw := newTestManager(c, config.RiskConfig{MaxOrderQty: 1_000_000, MaxPosition: 1_000_000, MinPosition: -1_000_000})

	sb := om.LayerBook().SideBook("BTCUSDT", fixedpoint.SideBuy, fixedpoint.PositionBoth)
	sb.Slots[0] = reconciler.Slot{State: reconciler.Live, Price: 100, Qty: 1, ClOrderID: 42}
	sb.LayerTicks[0] = om.cfg.TickConv.ToTicksRaw(100)
	om.Reserved().AddReserved(fixedpoint.SideBuy, 1)

	intents := []reconciler.QuoteIntent{{Ticker: "BTCUSDT", Side: fixedpoint.SideBuy, Price: 105, Qty: 1}}
	om.Apply(intents)

	require.Len(t, gw.sent, 1)
	require.Equal(t, reconciler.CancelReserved, sb.Slots[0].State)
	newID := sb.Slots[0].ClOrderID
	require.NotEqual(t, fixedpoint.OrderId(42), newID)

	om.OnExecutionReport(&state.ExecutionReport{
		Symbol: "BTCUSDT", Side: fixedpoint.SideBuy, ClOrderID: newID,
		OrdStatus: state.OrdStatusRejected,
	})

	require.Equal(t, reconciler.Live, sb.Slots[0].State)
	require.Equal(t, fixedpoint.Price(100), sb.Slots[0].Price)
	require.Equal(t, fixedpoint.OrderId(42), sb.Slots[0].ClOrderID)
	require.Equal(t, int64(1), om.Reserved().Net())
}
