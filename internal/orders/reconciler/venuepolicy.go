package reconciler

import "github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"

// VenuePolicy applies venue pacing and sizing rules to a reconciled
// Actions set: per-(side, position_side) minimum time
// gap, notional floor, qty bounds, and qty-step rounding.
type VenuePolicy struct {
	minUSDT      int64 // price*qty scale
	minQty       fixedpoint.Qty
	maxQty       fixedpoint.Qty
	minTimeGapNs int64
	qtyIncrement int64
}

// NewVenuePolicy creates a VenuePolicy. qtyIncrement defaults to 1 raw
// unit if zero.
func NewVenuePolicy(minUSDT int64, minQty, maxQty fixedpoint.Qty, minTimeGapNs int64, qtyIncrement int64) *VenuePolicy {
	if qtyIncrement <= 0 {
		qtyIncrement = 1
	}
	return &VenuePolicy{
		minUSDT:      minUSDT,
		minQty:       minQty,
		maxQty:       maxQty,
		minTimeGapNs: minTimeGapNs,
		qtyIncrement: qtyIncrement,
	}
}

// SetQtyIncrement updates the qty-step rounding unit, typically from a
// venue's exchangeInfo LOT_SIZE filter once it arrives. A non-positive value is ignored.
func (v *VenuePolicy) SetQtyIncrement(inc int64) {
	if inc > 0 {
		v.qtyIncrement = inc
	}
}

// roundQty rounds qty up to the nearest multiple of the qty increment.
func (v *VenuePolicy) roundQty(qty fixedpoint.Qty) fixedpoint.Qty {
	steps := (int64(qty) + v.qtyIncrement - 1) / v.qtyIncrement
	return fixedpoint.Qty(steps * v.qtyIncrement)
}

// Filter applies the venue rules to acts in place: actions whose
// (side, position_side) bucket is still inside the minimum time gap
// are dropped outright; surviving new/replace actions get their qty
// (and, for replaces, last_qty) floored to the notional minimum,
// clamped to [minQty, maxQty], and rounded to the qty increment.
// Pacing is tracked per SideBook, so each (side, position_side)
// combination — long-buy, long-sell, short-buy, short-sell — paces
// independently.
func (v *VenuePolicy) Filter(ticker string, acts *Actions, now int64, lb *LayerBook) {
	tooRecent := func(side fixedpoint.Side, pos fixedpoint.PositionSide) bool {
		last := lb.SideBook(ticker, side, pos).LastSendNs
		return last > 0 && now-last < v.minTimeGapNs
	}

	news := acts.News[:0]
	for _, a := range acts.News {
		if tooRecent(a.Side, a.PositionSide) {
			continue
		}
		news = append(news, a)
	}
	acts.News = news

	repls := acts.Replaces[:0]
	for _, a := range acts.Replaces {
		if tooRecent(a.Side, a.PositionSide) {
			continue
		}
		repls = append(repls, a)
	}
	acts.Replaces = repls

	cancels := acts.Cancels[:0]
	for _, a := range acts.Cancels {
		if tooRecent(a.Side, a.PositionSide) {
			continue
		}
		cancels = append(cancels, a)
	}
	acts.Cancels = cancels

	for i := range acts.News {
		acts.News[i].Qty = v.sizeQty(acts.News[i].Price, acts.News[i].Qty)
	}
	for i := range acts.Replaces {
		acts.Replaces[i].Qty = v.sizeQty(acts.Replaces[i].Price, acts.Replaces[i].Qty)
		acts.Replaces[i].LastQty = v.roundQty(acts.Replaces[i].LastQty)
	}
}

// sizeQty applies the notional floor, qty bounds, and qty-step
// rounding to one order's qty at the given price.
func (v *VenuePolicy) sizeQty(price fixedpoint.Price, qty fixedpoint.Qty) fixedpoint.Qty {
	if qty < v.minQty {
		qty = v.minQty
	}
	orderUSDT := int64(price) * int64(qty) / int64(fixedpoint.DefaultQtyScale)
	if orderUSDT < v.minUSDT && price > 0 {
		qty = fixedpoint.Qty(v.minUSDT * fixedpoint.DefaultQtyScale / int64(price))
	}
	if qty > v.maxQty {
		qty = v.maxQty
	}
	return v.roundQty(qty)
}
