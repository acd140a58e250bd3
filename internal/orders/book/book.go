// Package book implements the bucketed, bitmap-indexed price ladder:
// a contiguous array of price slots per side, grouped
// into fixed-size buckets, each tracked by a bitmap, with a per-side
// summary bitmap marking non-empty buckets. Best-level lookup scans the
// summary then the bucket's own bitmap; both are O(1) in the common
// case and bounded by word count in the worst case.
package book

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/common/pool"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/convert"
	"github.com/abdoElHodaky/hft-core/internal/orders"
)

var errPoolExhausted = orders.ErrPoolExhausted

// BucketSize is the number of price slots grouped into one bucket; also
// the number of bits in a bucket's own bitmap (64 words of 64 bits).
const (
	BucketSize         = 4096
	bitsPerWord        = 64
	bucketBitmapWords  = BucketSize / bitsPerWord
)

// Grid describes one side's fixed price index space: index 0 maps to
// MinPriceInt, the last index to MaxPriceInt. Price values are already
// tick-scaled (fixedpoint.PrecisionConfig.PriceScale is chosen to equal
// the venue's tick size), so index = price - MinPriceInt directly.
type Grid struct {
	MinPriceInt  int64
	MaxPriceInt  int64
	NumLevels    int
	BucketCount  int
	SummaryWords int
}

// NewGrid derives the bucket/summary layout from a price range.
func NewGrid(minPriceInt, maxPriceInt int64) Grid {
	numLevels := int(maxPriceInt-minPriceInt) + 1
	bucketCount := (numLevels + BucketSize - 1) / BucketSize
	summaryWords := (bucketCount + bitsPerWord - 1) / bitsPerWord
	return Grid{
		MinPriceInt:  minPriceInt,
		MaxPriceInt:  maxPriceInt,
		NumLevels:    numLevels,
		BucketCount:  bucketCount,
		SummaryWords: summaryWords,
	}
}

// PriceToIndex maps a price to its ladder index, or false if it falls
// outside [MinPriceInt, MaxPriceInt].
func (g Grid) PriceToIndex(p fixedpoint.Price) (int, bool) {
	v := int64(p)
	if v < g.MinPriceInt || v > g.MaxPriceInt {
		return 0, false
	}
	return int(v - g.MinPriceInt), true
}

// IndexToPrice is PriceToIndex's inverse.
func (g Grid) IndexToPrice(idx int) fixedpoint.Price {
	return fixedpoint.Price(g.MinPriceInt + int64(idx))
}

// BBO is the cached top-of-book, kept in sync with every ladder
// mutation and with direct BookTicker updates.
type BBO struct {
	BidPrice fixedpoint.Price
	AskPrice fixedpoint.Price
	BidQty   fixedpoint.Qty
	AskQty   fixedpoint.Qty
}

type bucket struct {
	qty         [BucketSize]fixedpoint.Qty
	bitmap      [bucketBitmapWords]uint64
	activeCount int
}

func (b *bucket) setBit(off int)   { b.bitmap[off>>6] |= uint64(1) << uint(off&63) }
func (b *bucket) clearBit(off int) { b.bitmap[off>>6] &^= uint64(1) << uint(off&63) }
func (b *bucket) bitSet(off int) bool {
	return b.bitmap[off>>6]&(uint64(1)<<uint(off&63)) != 0
}

type ladder struct {
	buckets []*bucket
	summary []uint64
	pool    *pool.Bounded[bucket]
}

func newLadder(grid Grid, p *pool.Bounded[bucket]) ladder {
	return ladder{
		buckets: make([]*bucket, grid.BucketCount),
		summary: make([]uint64, grid.SummaryWords),
		pool:    p,
	}
}

func setSummaryBit(summary []uint64, bi int)   { summary[bi>>6] |= uint64(1) << uint(bi&63) }
func clearSummaryBit(summary []uint64, bi int) { summary[bi>>6] &^= uint64(1) << uint(bi&63) }

// Book is one symbol's pair of price ladders plus cached BBO.
type Book struct {
	Ticker string
	Grid   Grid

	bids ladder
	asks ladder
	bbo  BBO

	log *zap.Logger
}

// New creates an empty Book. bucketPoolCapacity bounds the number of
// buckets (summed across both sides) that may be live at once.
func New(ticker string, grid Grid, bucketPoolCapacity int, log *zap.Logger) *Book {
	p := pool.NewBounded[bucket](bucketPoolCapacity)
	return &Book{
		Ticker: ticker,
		Grid:   grid,
		bids:   newLadder(grid, p),
		asks:   newLadder(grid, p),
		log:    log,
	}
}

func (bk *Book) sideLadder(side fixedpoint.Side) *ladder {
	if side == fixedpoint.SideBuy {
		return &bk.bids
	}
	return &bk.asks
}

// BBO returns the book's cached top-of-book.
func (bk *Book) BBO() BBO { return bk.bbo }

// OnUpdate applies one MarketData event, dispatching on its Type.
// A price outside the grid is logged and dropped
// without mutating the book; a non-positive qty on Add/Modify is
// treated as a Cancel.
func (bk *Book) OnUpdate(ev *convert.MarketData) error {
	switch ev.Type {
	case convert.Clear:
		bk.clear()
		return nil
	case convert.BookTicker:
		bk.applyBookTicker(ev)
		return nil
	case convert.Add, convert.Modify:
		if ev.Qty <= 0 {
			return bk.cancel(ev)
		}
		return bk.addOrModify(ev)
	case convert.Cancel:
		return bk.cancel(ev)
	case convert.Trade:
		return bk.trade(ev)
	default:
		return nil
	}
}

func (bk *Book) clear() {
	for bi, b := range bk.bids.buckets {
		if b != nil {
			bk.bids.pool.Deallocate(b)
			bk.bids.buckets[bi] = nil
		}
	}
	for bi, b := range bk.asks.buckets {
		if b != nil {
			bk.asks.pool.Deallocate(b)
			bk.asks.buckets[bi] = nil
		}
	}
	for i := range bk.bids.summary {
		bk.bids.summary[i] = 0
	}
	for i := range bk.asks.summary {
		bk.asks.summary[i] = 0
	}
	bk.bbo = BBO{}
}

func (bk *Book) applyBookTicker(ev *convert.MarketData) {
	if ev.Side == fixedpoint.SideBuy {
		bk.bbo.BidPrice = ev.Price
		bk.bbo.BidQty = ev.Qty
	} else {
		bk.bbo.AskPrice = ev.Price
		bk.bbo.AskQty = ev.Qty
	}
}

func (bk *Book) addOrModify(ev *convert.MarketData) error {
	idx, ok := bk.Grid.PriceToIndex(ev.Price)
	if !ok {
		bk.log.Error("price outside book grid, dropping event",
			zap.String("ticker", ev.Ticker), zap.Int64("price", int64(ev.Price)))
		return nil
	}
	l := bk.sideLadder(ev.Side)
	if err := l.setActive(idx, ev.Qty); err != nil {
		bk.log.Error("bucket pool exhausted", zap.Error(err))
		return err
	}
	bk.refreshBBOSide(ev.Side)
	return nil
}

func (bk *Book) cancel(ev *convert.MarketData) error {
	idx, ok := bk.Grid.PriceToIndex(ev.Price)
	if !ok {
		return nil
	}
	l := bk.sideLadder(ev.Side)
	l.setInactive(idx)
	bk.refreshBBOSide(ev.Side)
	return nil
}

func (bk *Book) trade(ev *convert.MarketData) error {
	idx, ok := bk.Grid.PriceToIndex(ev.Price)
	if !ok {
		return nil
	}
	l := bk.sideLadder(ev.Side)
	b := l.buckets[idx/BucketSize]
	if b == nil {
		return nil
	}
	off := idx % BucketSize
	if !b.bitSet(off) {
		return nil
	}
	remaining := b.qty[off] - ev.Qty
	if remaining <= 0 {
		l.setInactive(idx)
	} else {
		b.qty[off] = remaining
	}
	bk.refreshBBOSide(ev.Side)
	return nil
}

func (bk *Book) refreshBBOSide(side fixedpoint.Side) {
	idx, ok := bk.sideLadder(side).bestIdx(side == fixedpoint.SideBuy)
	if side == fixedpoint.SideBuy {
		if !ok {
			bk.bbo.BidPrice, bk.bbo.BidQty = 0, 0
			return
		}
		bk.bbo.BidPrice = bk.Grid.IndexToPrice(idx)
		bk.bbo.BidQty = bk.bids.buckets[idx/BucketSize].qty[idx%BucketSize]
		return
	}
	if !ok {
		bk.bbo.AskPrice, bk.bbo.AskQty = 0, 0
		return
	}
	bk.bbo.AskPrice = bk.Grid.IndexToPrice(idx)
	bk.bbo.AskQty = bk.asks.buckets[idx/BucketSize].qty[idx%BucketSize]
}

// setActive ensures the bucket for idx exists (allocating from the pool
// if needed) and marks idx active with qty.
func (l *ladder) setActive(idx int, qty fixedpoint.Qty) error {
	bi, off := idx/BucketSize, idx%BucketSize
	b := l.buckets[bi]
	if b == nil {
		b = l.pool.Allocate(bucket{})
		if b == nil {
			return errPoolExhausted
		}
		l.buckets[bi] = b
		setSummaryBit(l.summary, bi)
	}
	wasActive := b.bitSet(off)
	b.qty[off] = qty
	if !wasActive {
		b.setBit(off)
		b.activeCount++
	}
	return nil
}

// setInactive clears idx. A cancel of an already-inactive slot is a
// no-op.
func (l *ladder) setInactive(idx int) {
	bi, off := idx/BucketSize, idx%BucketSize
	b := l.buckets[bi]
	if b == nil || !b.bitSet(off) {
		return
	}
	b.clearBit(off)
	b.qty[off] = 0
	b.activeCount--
	if b.activeCount == 0 {
		l.pool.Deallocate(b)
		l.buckets[bi] = nil
		clearSummaryBit(l.summary, bi)
	}
}

// bestIdx returns the best (highest for buy, lowest for sell) active
// global index on this ladder.
func (l *ladder) bestIdx(buy bool) (int, bool) {
	if buy {
		bi, ok := highestSetBit(l.summary, len(l.summary)*bitsPerWord-1)
		if !ok {
			return 0, false
		}
		pos, ok := highestSetBit(l.buckets[bi].bitmap[:], BucketSize-1)
		if !ok {
			return 0, false
		}
		return bi*BucketSize + pos, true
	}
	bi, ok := lowestSetBit(l.summary, 0)
	if !ok {
		return 0, false
	}
	pos, ok := lowestSetBit(l.buckets[bi].bitmap[:], 0)
	if !ok {
		return 0, false
	}
	return bi*BucketSize + pos, true
}

// NextActiveIdx returns the next active index strictly worse than from
// on the given side (lower for buy, higher for sell) — used by
// PeekLevelsWithQty to walk the ladder outward from the best.
func (bk *Book) NextActiveIdx(side fixedpoint.Side, from int) (int, bool) {
	return bk.sideLadder(side).nextActiveIdx(side == fixedpoint.SideBuy, from)
}

// BestBidIdx returns the best bid's global ladder index.
func (bk *Book) BestBidIdx() (int, bool) { return bk.bids.bestIdx(true) }

// BestAskIdx returns the best ask's global ladder index.
func (bk *Book) BestAskIdx() (int, bool) { return bk.asks.bestIdx(false) }

func (l *ladder) nextActiveIdx(buy bool, from int) (int, bool) {
	bi, off := from/BucketSize, from%BucketSize
	if buy {
		if off > 0 {
			if b := l.buckets[bi]; b != nil {
				if pos, ok := highestSetBit(b.bitmap[:], off-1); ok {
					return bi*BucketSize + pos, true
				}
			}
		}
		if bi == 0 {
			return 0, false
		}
		pbi, ok := highestSetBit(l.summary, bi-1)
		if !ok {
			return 0, false
		}
		pos, ok := highestSetBit(l.buckets[pbi].bitmap[:], BucketSize-1)
		if !ok {
			return 0, false
		}
		return pbi*BucketSize + pos, true
	}

	if off < BucketSize-1 {
		if b := l.buckets[bi]; b != nil {
			if pos, ok := lowestSetBit(b.bitmap[:], off+1); ok {
				return bi*BucketSize + pos, true
			}
		}
	}
	if bi == len(l.buckets)-1 {
		return 0, false
	}
	nbi, ok := lowestSetBit(l.summary, bi+1)
	if !ok {
		return 0, false
	}
	pos, ok := lowestSetBit(l.buckets[nbi].bitmap[:], 0)
	if !ok {
		return 0, false
	}
	return nbi*BucketSize + pos, true
}

// LevelView is one ladder level returned by PeekLevelsWithQty.
type LevelView struct {
	Index int
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

// PeekLevelsWithQty fills up to n levels walking outward from the best
// on side.
func (bk *Book) PeekLevelsWithQty(side fixedpoint.Side, n int) []LevelView {
	out := make([]LevelView, 0, n)
	l := bk.sideLadder(side)
	idx, ok := l.bestIdx(side == fixedpoint.SideBuy)
	for ok && len(out) < n {
		b := l.buckets[idx/BucketSize]
		out = append(out, LevelView{Index: idx, Price: bk.Grid.IndexToPrice(idx), Qty: b.qty[idx%BucketSize]})
		idx, ok = l.nextActiveIdx(side == fixedpoint.SideBuy, idx)
	}
	return out
}

// PeekQty is PeekLevelsWithQty's zero-allocation-friendlier sibling
// used by the feature engine's OBI computation: it returns parallel qty
// and index slices without the fixed-point price conversion.
func (bk *Book) PeekQty(side fixedpoint.Side, n int) (qtys []fixedpoint.Qty, idxs []int) {
	l := bk.sideLadder(side)
	idx, ok := l.bestIdx(side == fixedpoint.SideBuy)
	for ok && len(qtys) < n {
		b := l.buckets[idx/BucketSize]
		qtys = append(qtys, b.qty[idx%BucketSize])
		idxs = append(idxs, idx)
		idx, ok = l.nextActiveIdx(side == fixedpoint.SideBuy, idx)
	}
	return qtys, idxs
}

// highestSetBit returns the highest set bit at or below fromBit
// (inclusive), scanning words from high to low.
func highestSetBit(words []uint64, fromBit int) (int, bool) {
	if fromBit < 0 {
		return 0, false
	}
	wordIdx := fromBit >> 6
	if wordIdx >= len(words) {
		wordIdx = len(words) - 1
		fromBit = wordIdx*64 + 63
	}
	bitIdx := fromBit & 63
	for wordIdx >= 0 {
		w := words[wordIdx]
		if bitIdx < 63 {
			w &= (uint64(1) << uint(bitIdx+1)) - 1
		}
		if w != 0 {
			return wordIdx*64 + 63 - bits.LeadingZeros64(w), true
		}
		wordIdx--
		bitIdx = 63
	}
	return 0, false
}

// lowestSetBit returns the lowest set bit at or above fromBit
// (inclusive), scanning words from low to high.
func lowestSetBit(words []uint64, fromBit int) (int, bool) {
	if fromBit >= len(words)*64 {
		return 0, false
	}
	wordIdx := fromBit >> 6
	if wordIdx < 0 {
		wordIdx = 0
		fromBit = 0
	}
	bitIdx := fromBit & 63
	for wordIdx < len(words) {
		w := words[wordIdx]
		if bitIdx > 0 {
			w &^= (uint64(1) << uint(bitIdx)) - 1
		}
		if w != 0 {
			return wordIdx*64 + bits.TrailingZeros64(w), true
		}
		wordIdx++
		bitIdx = 0
	}
	return 0, false
}
