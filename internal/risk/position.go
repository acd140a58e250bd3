// Package risk implements per-symbol fills accounting (PositionKeeper)
// and the pre-trade risk check. Both are owned
// exclusively by the trade engine thread; neither type is safe for
// concurrent use.
package risk

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/book"
)

// PositionInfo is one symbol's running position and PnL, all scaled
// int64 quantities. Long and short exposure are tracked separately (a
// venue that allows simultaneous long/short inventory, or the interval
// between a closing and a re-opening fill on spot, needs both) and
// combined into Position/RealPnl/UnrealPnl/TotalPnl.
type PositionInfo struct {
	Position          fixedpoint.Qty
	LongPositionRaw   fixedpoint.Qty
	ShortPositionRaw  fixedpoint.Qty
	LongCost          int64 // price*qty scale
	ShortCost         int64
	LongRealPnl       int64
	ShortRealPnl      int64
	LongUnrealPnl     int64
	ShortUnrealPnl    int64
	RealPnl           int64
	UnrealPnl         int64
	TotalPnl          int64
	OpenVWAP          [2]fixedpoint.Price // index via fixedpoint.SideToIndex
	Volume            fixedpoint.Qty
}

// AddFill folds one execution-report fill into the position: it first
// closes any opposite-side exposure (recognizing realized PnL against
// that side's open VWAP), then opens/extends the fill's own side with
// any remaining qty.
func (p *PositionInfo) AddFill(side fixedpoint.Side, price fixedpoint.Price, qty fixedpoint.Qty) {
	switch side {
	case fixedpoint.SideBuy:
		p.addBuyFill(price, qty)
	case fixedpoint.SideSell:
		p.addSellFill(price, qty)
	default:
		return
	}
	p.Position = p.LongPositionRaw - p.ShortPositionRaw
	p.RealPnl = p.LongRealPnl + p.ShortRealPnl
	p.TotalPnl = p.RealPnl + p.UnrealPnl
	p.Volume += qty
}

func (p *PositionInfo) addBuyFill(price fixedpoint.Price, qty fixedpoint.Qty) {
	closing := qty
	if closing > p.ShortPositionRaw {
		closing = p.ShortPositionRaw
	}
	if closing > 0 {
		p.ShortRealPnl += int64(p.OpenVWAP[1]-price) * int64(closing)
		p.ShortCost -= int64(p.OpenVWAP[1]) * int64(closing)
		p.ShortPositionRaw -= closing
		if p.ShortPositionRaw > 0 {
			p.OpenVWAP[1] = fixedpoint.Price(p.ShortCost / int64(p.ShortPositionRaw))
		} else {
			p.ShortCost, p.OpenVWAP[1] = 0, 0
		}
	}
	if opening := qty - closing; opening > 0 {
		p.LongCost += int64(price) * int64(opening)
		p.LongPositionRaw += opening
		p.OpenVWAP[0] = fixedpoint.Price(p.LongCost / int64(p.LongPositionRaw))
	}
}

func (p *PositionInfo) addSellFill(price fixedpoint.Price, qty fixedpoint.Qty) {
	closing := qty
	if closing > p.LongPositionRaw {
		closing = p.LongPositionRaw
	}
	if closing > 0 {
		p.LongRealPnl += int64(price-p.OpenVWAP[0]) * int64(closing)
		p.LongCost -= int64(p.OpenVWAP[0]) * int64(closing)
		p.LongPositionRaw -= closing
		if p.LongPositionRaw > 0 {
			p.OpenVWAP[0] = fixedpoint.Price(p.LongCost / int64(p.LongPositionRaw))
		} else {
			p.LongCost, p.OpenVWAP[0] = 0, 0
		}
	}
	if opening := qty - closing; opening > 0 {
		p.ShortCost += int64(price) * int64(opening)
		p.ShortPositionRaw += opening
		p.OpenVWAP[1] = fixedpoint.Price(p.ShortCost / int64(p.ShortPositionRaw))
	}
}

// UpdateBBO marks the position to market off the ladder's cached BBO:
// long exposure marks at the bid (what it could sell into now), short
// exposure marks at the ask (what it would cost to buy back).
func (p *PositionInfo) UpdateBBO(bbo book.BBO) {
	if p.LongPositionRaw > 0 && bbo.BidPrice != 0 {
		p.LongUnrealPnl = int64(bbo.BidPrice-p.OpenVWAP[0]) * int64(p.LongPositionRaw)
	}
	if p.ShortPositionRaw > 0 && bbo.AskPrice != 0 {
		p.ShortUnrealPnl = int64(p.OpenVWAP[1]-bbo.AskPrice) * int64(p.ShortPositionRaw)
	}
	p.UnrealPnl = p.LongUnrealPnl + p.ShortUnrealPnl
	p.TotalPnl = p.RealPnl + p.UnrealPnl
}

// PositionKeeper tracks PositionInfo per symbol.
type PositionKeeper struct {
	log       *zap.Logger
	positions map[string]*PositionInfo
}

// NewPositionKeeper creates an empty PositionKeeper.
func NewPositionKeeper(log *zap.Logger) *PositionKeeper {
	return &PositionKeeper{log: log, positions: make(map[string]*PositionInfo)}
}

// AddFill records a fill against ticker's position, creating it on
// first use.
func (k *PositionKeeper) AddFill(ticker string, side fixedpoint.Side, price fixedpoint.Price, qty fixedpoint.Qty) *PositionInfo {
	pi := k.positions[ticker]
	if pi == nil {
		pi = &PositionInfo{}
		k.positions[ticker] = pi
	}
	pi.AddFill(side, price, qty)
	return pi
}

// UpdateBBO marks ticker's position to market, if one exists.
func (k *PositionKeeper) UpdateBBO(ticker string, bbo book.BBO) {
	if pi, ok := k.positions[ticker]; ok {
		pi.UpdateBBO(bbo)
	}
}

// Get returns ticker's PositionInfo, or false if no fill has been
// recorded for it yet.
func (k *PositionKeeper) Get(ticker string) (*PositionInfo, bool) {
	pi, ok := k.positions[ticker]
	return pi, ok
}
