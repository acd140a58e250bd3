// Package feature computes the trade engine's derived signals: a
// rolling VWAP over the last N trades (power-of-two windowed so the
// ring index is a mask, not a modulo), mkt_price/spread off the cached
// BBO, the aggressor trade's qty ratio against the opposite side's
// top-of-book qty, and order-book imbalance over the top N levels.
// Outputs are exposed as float64 — strategies consume
// them for signal math, the hot-path book/ladder stays fixed-point.
package feature

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/book"
)

// DefaultVWAPSize is the VWAP ring buffer's depth; must be a power of
// two so the index wraps via a bitmask.
const DefaultVWAPSize = 64

// Engine holds the feature state for one symbol. It is not
// thread-safe; like the book it is owned by the trade engine thread.
type Engine struct {
	log *zap.Logger

	vwapSize  uint32
	vwapMask  uint32
	vwapPrice []float64
	vwapQty   []float64
	vwapIndex uint32

	accVWAPQty float64
	accVWAP    float64
	vwap       float64

	mktPrice          float64
	spread            float64
	aggTradeQtyRatio  float64

	bookTickerBid, bookTickerAsk       float64
	bookTickerBidQty, bookTickerAskQty float64
}

// NewEngine creates a feature Engine with a vwapSize-deep trade window.
// vwapSize must be a power of two; it is rounded up to the next one if
// not.
func NewEngine(vwapSize int, log *zap.Logger) *Engine {
	if vwapSize <= 0 {
		vwapSize = DefaultVWAPSize
	}
	vwapSize = nextPowerOfTwo(vwapSize)
	return &Engine{
		log:       log,
		vwapSize:  uint32(vwapSize),
		vwapMask:  uint32(vwapSize - 1),
		vwapPrice: make([]float64, vwapSize),
		vwapQty:   make([]float64, vwapSize),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// OnTrade folds one trade print into the rolling VWAP and, if the BBO
// is valid, the aggressor qty ratio against the opposite side's
// top-of-book.
func (e *Engine) OnTrade(price fixedpoint.Price, qty fixedpoint.Qty, side fixedpoint.Side, bbo book.BBO) {
	if bbo.BidPrice != 0 && bbo.AskPrice != 0 {
		oppositeQty := float64(bbo.BidQty)
		if side == fixedpoint.SideBuy {
			oppositeQty = float64(bbo.AskQty)
		}
		if oppositeQty > 0 {
			e.aggTradeQtyRatio = float64(qty) / oppositeQty
		}
	}

	idx := e.vwapIndex & e.vwapMask
	if e.vwapIndex >= e.vwapSize {
		e.accVWAPQty -= e.vwapQty[idx]
		e.accVWAP -= e.vwapPrice[idx] * e.vwapQty[idx]
	}
	e.vwapPrice[idx] = float64(price)
	e.vwapQty[idx] = float64(qty)
	e.accVWAPQty += e.vwapQty[idx]
	e.accVWAP += e.vwapPrice[idx] * e.vwapQty[idx]
	if e.accVWAPQty > 0 {
		e.vwap = e.accVWAP / e.accVWAPQty
	}
	e.vwapIndex++
}

// OnBookTicker records a direct top-of-book update for GetMidPrice /
// GetSpreadFast, independent of the ladder-derived mkt price/spread.
func (e *Engine) OnBookTicker(price fixedpoint.Price, qty fixedpoint.Qty, side fixedpoint.Side) {
	if side == fixedpoint.SideBuy {
		e.bookTickerBid, e.bookTickerBidQty = float64(price), float64(qty)
	} else {
		e.bookTickerAsk, e.bookTickerAskQty = float64(price), float64(qty)
	}
}

// OnBookUpdate recomputes mkt_price/spread off the ladder's cached BBO.
func (e *Engine) OnBookUpdate(bbo book.BBO) {
	if bbo.BidPrice == 0 || bbo.AskPrice == 0 {
		return
	}
	bidQty, askQty := float64(bbo.BidQty), float64(bbo.AskQty)
	if bidQty+askQty == 0 {
		return
	}
	e.mktPrice = (float64(bbo.BidPrice)*askQty + float64(bbo.AskPrice)*bidQty) / (bidQty + askQty)
	e.spread = float64(bbo.AskPrice - bbo.BidPrice)
}

// MktPrice returns the book-quantity-weighted mid price.
func (e *Engine) MktPrice() float64 { return e.mktPrice }

// Spread returns the ladder-derived ask-minus-bid spread.
func (e *Engine) Spread() float64 { return e.spread }

// MidPrice returns the simple average of the last BookTicker update.
func (e *Engine) MidPrice() float64 { return (e.bookTickerBid + e.bookTickerAsk) * 0.5 }

// SpreadFast returns the last BookTicker update's ask-minus-bid spread.
func (e *Engine) SpreadFast() float64 { return e.bookTickerAsk - e.bookTickerBid }

// VWAP returns the current rolling VWAP.
func (e *Engine) VWAP() float64 { return e.vwap }

// AggTradeQtyRatio returns the last trade's qty as a fraction of the
// opposite side's top-of-book qty at the time it printed.
func (e *Engine) AggTradeQtyRatio() float64 { return e.aggTradeQtyRatio }

// OrderBookImbalanceFromLevels returns
// clamp((sum(bid)-sum(ask))/(sum(bid)+sum(ask)), -1, +1) over the
// shared prefix of bids/asks, folding in any remaining entries from the
// longer side unpaired. A non-positive total returns 0.
func OrderBookImbalanceFromLevels(bids, asks []fixedpoint.Qty) float64 {
	minLen := len(bids)
	if len(asks) < minLen {
		minLen = len(asks)
	}

	var total, diff float64
	for i := 0; i < minLen; i++ {
		b, a := float64(bids[i]), float64(asks[i])
		total += b + a
		diff += b - a
	}
	for j := minLen; j < len(bids); j++ {
		b := float64(bids[j])
		total += b
		diff += b
	}
	for j := minLen; j < len(asks); j++ {
		a := float64(asks[j])
		total += a
		diff -= a
	}

	if total <= 0 {
		return 0
	}
	result := diff / total
	if result > 1 {
		return 1
	}
	if result < -1 {
		return -1
	}
	return result
}

// VWAPFromLevels returns the quantity-weighted average price of level,
// or 0 if it carries no quantity.
func VWAPFromLevels(levels []book.LevelView) float64 {
	var num, den float64
	for _, lvl := range levels {
		num += float64(lvl.Price) * float64(lvl.Qty)
		den += float64(lvl.Qty)
	}
	if den <= 0 {
		return 0
	}
	return num / den
}
