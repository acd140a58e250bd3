// Package reconciler translates a strategy's desired resting-order set
// into a minimal new/replace/cancel action set against the slot book,
// then applies the venue's time-gap pacing, notional floor, and qty
// rounding rules.
package reconciler

import (
	"math"

	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

// QuoteIntent is one desired resting order for one reconciliation tick.
type QuoteIntent struct {
	Ticker          string
	Side            fixedpoint.Side
	PositionSide    fixedpoint.PositionSide
	HasPositionSide bool
	Price           fixedpoint.Price
	Qty             fixedpoint.Qty
}

// ActionNew places a brand new resting order.
type ActionNew struct {
	Layer        int
	Price        fixedpoint.Price
	Qty          fixedpoint.Qty
	Side         fixedpoint.Side
	PositionSide fixedpoint.PositionSide
	ClOrderID    fixedpoint.OrderId
}

// ActionReplace cancels OriginalClOrderID and places ClOrderID in its
// place, carrying the old qty so risk/reserved-tracker deltas can be
// computed.
type ActionReplace struct {
	Layer              int
	Price              fixedpoint.Price
	Qty                fixedpoint.Qty
	Side               fixedpoint.Side
	PositionSide       fixedpoint.PositionSide
	ClOrderID          fixedpoint.OrderId
	OriginalClOrderID  fixedpoint.OrderId
	LastQty            fixedpoint.Qty
}

// ActionCancel cancels a resting order outright.
type ActionCancel struct {
	Layer             int
	Side              fixedpoint.Side
	PositionSide      fixedpoint.PositionSide
	ClOrderID         fixedpoint.OrderId
	OriginalClOrderID fixedpoint.OrderId
}

// Actions is one reconciliation cycle's output.
type Actions struct {
	News     []ActionNew
	Replaces []ActionReplace
	Cancels  []ActionCancel
}

// Empty reports whether no action was produced.
func (a Actions) Empty() bool {
	return len(a.News) == 0 && len(a.Replaces) == 0 && len(a.Cancels) == 0
}

// TickConverter maps a decimal tick size to a fast integer-tick
// conversion. Where the tick size is an exact power of ten it uses a
// single integer division (the fast path); otherwise it falls back to
// floating-point rounding.
type TickConverter struct {
	scaleInt int64 // 0 means the slow path applies
	inv      float64
}

// NewTickConverter builds a TickConverter for tick (e.g. 0.01) given
// the venue's PriceScale.
func NewTickConverter(tick float64, priceScale int64) TickConverter {
	const digitMax = 9
	const diff = 1e-12
	for digit := 0; digit <= digitMax; digit++ {
		powered := math.Pow(10, float64(digit))
		if math.Abs(tick*powered-1.0) < diff {
			return TickConverter{scaleInt: priceScale / int64(powered)}
		}
	}
	return TickConverter{inv: 1.0 / tick}
}

// ToTicksRaw converts an already-scaled price into a tick index.
func (tc TickConverter) ToTicksRaw(priceRaw int64) int64 {
	if tc.scaleInt > 0 {
		return priceRaw / tc.scaleInt
	}
	return int64(float64(priceRaw)*tc.inv + 0.5)
}

// SoftPullHook rewrites the intent set ahead of a Diff, the extension
// point for cancelling stale resting orders no intent covers. The exact
// policy (age threshold, inside-BBO distance, minimum resting qty) is
// deliberately undefined; the default hook is the identity, which keeps
// soft-pull disabled.
type SoftPullHook func(intents []QuoteIntent) []QuoteIntent

// QuoteReconciler plans the minimal action set that converges the
// slot book onto the strategy's desired quotes.
type QuoteReconciler struct {
	minReplaceQtyDelta  fixedpoint.Qty
	minReplaceTickDelta int64
	tickConv            TickConverter
	clock               clock.Clock

	// SoftPull may be replaced after construction; it is never nil.
	SoftPull SoftPullHook
}

// New creates a QuoteReconciler.
func New(minReplaceQtyDelta fixedpoint.Qty, minReplaceTickDelta int64, tickConv TickConverter, c clock.Clock) *QuoteReconciler {
	return &QuoteReconciler{
		minReplaceQtyDelta:  minReplaceQtyDelta,
		minReplaceTickDelta: minReplaceTickDelta,
		tickConv:            tickConv,
		clock:               c,
		SoftPull:            func(intents []QuoteIntent) []QuoteIntent { return intents },
	}
}

// Diff compares intents against lb's current slot state and returns
// the action set needed to converge. Soft-pull (cancelling resting
// orders no longer covered by any intent) is disabled unless a
// deployment installs its own SoftPull hook; an empty intents set
// therefore yields an empty Actions, not a sweep of cancels.
func (r *QuoteReconciler) Diff(intents []QuoteIntent, lb *LayerBook) Actions {
	var acts Actions
	intents = r.SoftPull(intents)
	if len(intents) == 0 {
		return acts
	}
	now := fixedpoint.OrderId(r.clock.NowNanos())

	for _, side := range [2]fixedpoint.Side{fixedpoint.SideBuy, fixedpoint.SideSell} {
		for _, intent := range intents {
			if intent.Side != side {
				continue
			}
			if intent.Price <= 0 || intent.Qty <= 0 {
				continue
			}

			posSide := intent.PositionSide
			sb := lb.SideBook(intent.Ticker, side, posSide)
			tick := r.tickConv.ToTicksRaw(int64(intent.Price))
			layer, victim := planLayer(sb, tick)

			if victim != nil {
				vslot := sb.Slots[*victim]
				acts.Replaces = append(acts.Replaces, ActionReplace{
					Layer:             *victim,
					Price:             intent.Price,
					Qty:               intent.Qty,
					Side:              side,
					PositionSide:      posSide,
					ClOrderID:         now,
					OriginalClOrderID: vslot.ClOrderID,
					LastQty:           vslot.Qty,
				})
				continue
			}

			slot := sb.Slots[layer]
			switch slot.State {
			case Invalid, Dead:
				acts.News = append(acts.News, ActionNew{
					Layer:        layer,
					Price:        intent.Price,
					Qty:          intent.Qty,
					Side:         side,
					PositionSide: posSide,
					ClOrderID:    now,
				})
			case Live:
				slotTick := r.tickConv.ToTicksRaw(int64(slot.Price))
				priceDiff := absInt64(slotTick-tick) >= r.minReplaceTickDelta
				qtyDiff := absInt64(int64(slot.Qty)-int64(intent.Qty)) >= int64(r.minReplaceQtyDelta)
				if priceDiff || qtyDiff {
					acts.Replaces = append(acts.Replaces, ActionReplace{
						Layer:             layer,
						Price:             intent.Price,
						Qty:               intent.Qty,
						Side:              side,
						PositionSide:      posSide,
						ClOrderID:         now,
						OriginalClOrderID: slot.ClOrderID,
						LastQty:           slot.Qty,
					})
				}
			}
		}
	}
	return acts
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
