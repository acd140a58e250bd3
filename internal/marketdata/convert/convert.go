// Package convert turns decoded wire messages into the internal domain
// events the rest of the pipeline (order book, feature engine, trade
// engine) consumes. It is the one place the pool-backed MarketData
// lifecycle applies: entries are allocated on
// conversion and must be released by the caller once the trade engine
// has finished with them.
package convert

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/common/pool"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
)

// Converter turns one decoder.WireMessage into a MarketUpdateData,
// allocating its MarketData entries from a bounded pool.
type Converter struct {
	pool *pool.Bounded[MarketData]
	log  *zap.Logger
}

// NewConverter creates a Converter backed by a pool sized for
// poolCapacity concurrently-live MarketData entries.
func NewConverter(poolCapacity int, log *zap.Logger) *Converter {
	return &Converter{pool: pool.NewBounded[MarketData](poolCapacity), log: log}
}

// Convert turns wm into a MarketUpdateData, or nil if wm carries nothing
// convertible (KindNone, or an allocation failure partway through —
// logged and the partially built update is released before returning).
func (c *Converter) Convert(wm decoder.WireMessage) *MarketUpdateData {
	switch wm.Kind() {
	case decoder.KindDepthSnapshot:
		snap, _ := wm.DepthSnapshot()
		return c.convertSnapshot(snap)
	case decoder.KindDepthDiff:
		diff, _ := wm.DepthDiff()
		return c.convertDiff(diff)
	case decoder.KindTrades:
		trades, _ := wm.Trades()
		return c.convertTrades(trades)
	case decoder.KindBestBidAsk:
		bba, _ := wm.BestBidAsk()
		return c.convertBestBidAsk(bba)
	default:
		return nil
	}
}

// Release returns every MarketData entry mu owns back to the pool. Safe
// to call on a nil mu.
func (c *Converter) Release(mu *MarketUpdateData) {
	if mu == nil {
		return
	}
	for _, e := range mu.Entries {
		if e == nil {
			continue
		}
		if err := c.pool.Deallocate(e); err != nil {
			c.log.Error("market data release failed", zap.Error(err))
		}
	}
	mu.Entries = nil
}

func (c *Converter) alloc(e MarketData) *MarketData {
	p := c.pool.Allocate(e)
	if p == nil {
		c.log.Warn("market data pool exhausted", zap.Int("capacity", c.pool.Capacity()))
	}
	return p
}

func (c *Converter) convertSnapshot(snap *decoder.DepthSnapshot) *MarketUpdateData {
	entries := make([]*MarketData, 0, 1+len(snap.Bids)+len(snap.Asks))
	if clear := c.alloc(MarketData{Type: Clear, Ticker: snap.Symbol}); clear != nil {
		entries = append(entries, clear)
	}
	entries = append(entries, c.levelEntries(snap.Symbol, fixedpoint.SideBuy, Add, snap.Bids)...)
	entries = append(entries, c.levelEntries(snap.Symbol, fixedpoint.SideSell, Add, snap.Asks)...)
	return &MarketUpdateData{
		Kind:       KindSnapshot,
		StartSeq:   snap.LastUpdateID,
		EndSeq:     snap.LastUpdateID,
		PrevEndSeq: snap.LastUpdateID,
		Entries:    entries,
	}
}

func (c *Converter) convertDiff(diff *decoder.DepthDiff) *MarketUpdateData {
	entries := make([]*MarketData, 0, len(diff.Bids)+len(diff.Asks))
	entries = append(entries, c.diffLevelEntries(diff.Symbol, fixedpoint.SideBuy, diff.Bids)...)
	entries = append(entries, c.diffLevelEntries(diff.Symbol, fixedpoint.SideSell, diff.Asks)...)
	return &MarketUpdateData{
		Kind:       KindDepthDiff,
		StartSeq:   diff.FirstBookUpdateID,
		EndSeq:     diff.LastBookUpdateID,
		PrevEndSeq: diff.PrevBookUpdateID,
		Entries:    entries,
	}
}

// diffLevelEntries maps a zero-qty diff level to Cancel and a positive
// one to Modify — a diff never introduces a brand new resting price via
// Add, it only ever states the new absolute qty at a level.
func (c *Converter) diffLevelEntries(ticker string, side fixedpoint.Side, levels []decoder.PriceLevel) []*MarketData {
	out := make([]*MarketData, 0, len(levels))
	for _, lvl := range levels {
		typ := Modify
		if lvl.Qty <= 0 {
			typ = Cancel
		}
		if md := c.alloc(MarketData{Type: typ, Ticker: ticker, Side: side, Price: lvl.Price, Qty: lvl.Qty}); md != nil {
			out = append(out, md)
		}
	}
	return out
}

func (c *Converter) levelEntries(ticker string, side fixedpoint.Side, typ MarketDataType, levels []decoder.PriceLevel) []*MarketData {
	out := make([]*MarketData, 0, len(levels))
	for _, lvl := range levels {
		if md := c.alloc(MarketData{Type: typ, Ticker: ticker, Side: side, Price: lvl.Price, Qty: lvl.Qty}); md != nil {
			out = append(out, md)
		}
	}
	return out
}

// convertTrades maps each trade print to a Trade-typed MarketData entry.
// The trade's side is the aggressor's side: IsBuyerMaker means the
// taker sold into the resting bid.
func (c *Converter) convertTrades(tb *decoder.TradeBatch) *MarketUpdateData {
	entries := make([]*MarketData, 0, len(tb.Trades))
	for _, t := range tb.Trades {
		side := fixedpoint.SideBuy
		if t.IsBuyerMaker {
			side = fixedpoint.SideSell
		}
		if md := c.alloc(MarketData{
			Type:    Trade,
			OrderID: uint64(t.ID),
			Ticker:  tb.Symbol,
			Side:    side,
			Price:   t.Price,
			Qty:     t.Qty,
		}); md != nil {
			entries = append(entries, md)
		}
	}
	return &MarketUpdateData{
		Kind:       KindTrade,
		StartSeq:   noSeq,
		EndSeq:     noSeq,
		PrevEndSeq: noSeq,
		Entries:    entries,
	}
}

func (c *Converter) convertBestBidAsk(bba *decoder.BestBidAsk) *MarketUpdateData {
	entries := make([]*MarketData, 0, 2)
	if bid := c.alloc(MarketData{Type: BookTicker, Ticker: bba.Symbol, Side: fixedpoint.SideBuy, Price: bba.BidPrice, Qty: bba.BidQty}); bid != nil {
		entries = append(entries, bid)
	}
	if ask := c.alloc(MarketData{Type: BookTicker, Ticker: bba.Symbol, Side: fixedpoint.SideSell, Price: bba.AskPrice, Qty: bba.AskQty}); ask != nil {
		entries = append(entries, ask)
	}
	return &MarketUpdateData{
		Kind:       KindBookTicker,
		StartSeq:   noSeq,
		EndSeq:     noSeq,
		PrevEndSeq: noSeq,
		Entries:    entries,
	}
}
