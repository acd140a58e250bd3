package convert

import "github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"

// noSeq marks sequence fields that don't apply to a given update kind
// (trade, book-ticker); only depth-kind updates carry real sequence
// numbers.
const noSeq int64 = -1

// MarketDataType identifies what one MarketData entry does to the book.
type MarketDataType int

const (
	Clear MarketDataType = iota
	Add
	Modify
	Cancel
	Trade
	BookTicker
)

func (t MarketDataType) String() string {
	switch t {
	case Clear:
		return "Clear"
	case Add:
		return "Add"
	case Modify:
		return "Modify"
	case Cancel:
		return "Cancel"
	case Trade:
		return "Trade"
	case BookTicker:
		return "BookTicker"
	default:
		return "Unknown"
	}
}

// MarketData is one level-update event.
type MarketData struct {
	Type    MarketDataType
	OrderID uint64
	Ticker  string
	Side    fixedpoint.Side
	Price   fixedpoint.Price
	Qty     fixedpoint.Qty
}

// UpdateKind distinguishes the payload a MarketUpdateData carries.
type UpdateKind int

const (
	KindDepthDiff UpdateKind = iota
	KindSnapshot
	KindTrade
	KindBookTicker
)

func (k UpdateKind) String() string {
	switch k {
	case KindDepthDiff:
		return "DepthDiff"
	case KindSnapshot:
		return "Snapshot"
	case KindTrade:
		return "Trade"
	case KindBookTicker:
		return "BookTicker"
	default:
		return "Unknown"
	}
}

// MarketUpdateData is one decoded message, carrying an ordered sequence
// of MarketData entries plus the sequence-number range the sequencer
// already validated. It owns the MarketData pointers it
// carries; release them via Converter.Release once the trade engine is
// done, arena-style (children first, then the parent is discarded).
type MarketUpdateData struct {
	Kind       UpdateKind
	StartSeq   int64
	EndSeq     int64
	PrevEndSeq int64
	Entries    []*MarketData
}
