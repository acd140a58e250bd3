// Package decoder turns raw transport payloads (JSON text frames or
// binary SBE frames) into typed wire messages the sequencer can apply.
// Two decoders share one result type so the sequencer does not care
// which wire format produced a given message.
package decoder

import "github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"

// WireMessage is the decoded result of one transport payload. Exactly
// one of its typed accessors returns non-nil/true; an empty WireMessage
// (Kind() == KindNone) means the payload was a control frame, an
// unrecognized message, or failed to parse — the caller logs and moves
// on, it never propagates as a Go error on the hot path.
type WireMessage struct {
	kind Kind

	depthDiff     *DepthDiff
	depthSnapshot *DepthSnapshot
	trades        *TradeBatch
	bestBidAsk    *BestBidAsk
	exchangeInfo  *ExchangeInfo
	apiResponse   *ApiResponse
	execReport    *ExecReport
}

// Kind identifies which payload a WireMessage carries.
type Kind int

const (
	KindNone Kind = iota
	KindDepthDiff
	KindDepthSnapshot
	KindTrades
	KindBestBidAsk
	KindExchangeInfo
	KindApiResponse
	KindExecutionReport
)

func (m WireMessage) Kind() Kind { return m.kind }

func (m WireMessage) DepthDiff() (*DepthDiff, bool)         { return m.depthDiff, m.kind == KindDepthDiff }
func (m WireMessage) DepthSnapshot() (*DepthSnapshot, bool) {
	return m.depthSnapshot, m.kind == KindDepthSnapshot
}
func (m WireMessage) Trades() (*TradeBatch, bool)       { return m.trades, m.kind == KindTrades }
func (m WireMessage) BestBidAsk() (*BestBidAsk, bool)   { return m.bestBidAsk, m.kind == KindBestBidAsk }
func (m WireMessage) ExchangeInfo() (*ExchangeInfo, bool) {
	return m.exchangeInfo, m.kind == KindExchangeInfo
}
func (m WireMessage) ApiResponse() (*ApiResponse, bool) { return m.apiResponse, m.kind == KindApiResponse }
func (m WireMessage) ExecutionReport() (*ExecReport, bool) {
	return m.execReport, m.kind == KindExecutionReport
}

// NewDepthDiffMessage wraps an already-validated diff (typically one
// the sequencer has just cleared through continuity checking) back into
// a WireMessage for the trade engine.
func NewDepthDiffMessage(d *DepthDiff) WireMessage {
	return WireMessage{kind: KindDepthDiff, depthDiff: d}
}

// NewDepthSnapshotMessage wraps a snapshot back into a WireMessage.
func NewDepthSnapshotMessage(s *DepthSnapshot) WireMessage {
	return WireMessage{kind: KindDepthSnapshot, depthSnapshot: s}
}

// NewTradesMessage wraps a decoded trade batch into a WireMessage.
// Exported alongside the diff/snapshot constructors above so callers
// outside this package (the sequencer's immediate-forward path for
// non-depth kinds, tests) can build one without depending on which
// concrete decoder produced it.
func NewTradesMessage(t *TradeBatch) WireMessage {
	return WireMessage{kind: KindTrades, trades: t}
}

// NewBestBidAskMessage wraps a decoded top-of-book update into a
// WireMessage.
func NewBestBidAskMessage(b *BestBidAsk) WireMessage {
	return WireMessage{kind: KindBestBidAsk, bestBidAsk: b}
}

// NewExecutionReportMessage wraps a decoded execution report into a
// WireMessage.
func NewExecutionReportMessage(r *ExecReport) WireMessage {
	return WireMessage{kind: KindExecutionReport, execReport: r}
}

// PriceLevel is one bid or ask entry, already converted to fixed point.
type PriceLevel struct {
	Price fixedpoint.Price
	Qty   fixedpoint.Qty
}

// DepthDiff is an incremental order book update, carrying the update-id
// range the sequencer uses to detect gaps).
type DepthDiff struct {
	Symbol            string
	EventTime         int64
	FirstBookUpdateID int64
	LastBookUpdateID  int64
	// PrevBookUpdateID is the perpetual-futures venue's "pu" field (the
	// final update id of the previous diff). Zero on spot, where
	// continuity is instead checked via FirstBookUpdateID.
	PrevBookUpdateID int64
	Bids             []PriceLevel
	Asks             []PriceLevel
}

// DepthSnapshot is a full order-book snapshot used to recover after a
// sequence gap or on initial connect.
type DepthSnapshot struct {
	Symbol         string
	EventTime      int64
	LastUpdateID   int64
	Bids           []PriceLevel
	Asks           []PriceLevel
}

// Trade is a single executed trade print.
type Trade struct {
	ID           int64
	Price        fixedpoint.Price
	Qty          fixedpoint.Qty
	IsBuyerMaker bool
	IsBestMatch  bool
}

// TradeBatch groups the trades carried in one SBE TradesStreamEvent, or
// a single trade decoded off the JSON trade stream.
type TradeBatch struct {
	Symbol        string
	EventTime     int64
	TransactTime  int64
	Trades        []Trade
}

// BestBidAsk is a top-of-book-only update (SBE template 10001); the
// JSON feed has no equivalent, top of book there is inferred from depth
// updates instead.
type BestBidAsk struct {
	Symbol       string
	EventTime    int64
	BookUpdateID int64
	BidPrice     fixedpoint.Price
	BidQty       fixedpoint.Qty
	AskPrice     fixedpoint.Price
	AskQty       fixedpoint.Qty
}

// ExchangeInfo and ApiResponse are control-plane JSON messages; their
// field shapes live in internal/marketdata/external since they mirror
// the venue wire format verbatim rather than an internal domain type.
type ExchangeInfo struct {
	Timezone   string
	ServerTime int64
	Symbols    []SymbolInfo
}

// SymbolInfo carries the per-symbol trading filters decoded from
// exchangeInfo (tick size, step size, min notional); the order
// manager's OnInstrumentInfo reads the step size.
type SymbolInfo struct {
	Symbol             string
	Status             string
	BaseAsset          string
	QuoteAsset         string
	BaseAssetPrecision int
	QuotePrecision     int
	TickSize           string
	StepSize           string
	MinNotional        string
}

// ExecReport is a normalized order-entry acknowledgement: lifecycle
// status, fill quantities, and identifiers parsed into fixed point,
// with the venue's status/execution-type tokens passed through for the
// order state machine to dispatch on.
type ExecReport struct {
	Symbol          string
	EventTime       int64
	ClOrderID       fixedpoint.OrderId
	OrigClOrderID   fixedpoint.OrderId
	Side            fixedpoint.Side
	PositionSide    fixedpoint.PositionSide
	HasPositionSide bool
	ExecType        string
	OrdStatus       string
	Price           fixedpoint.Price
	LastFilledPrice fixedpoint.Price
	LastFilledQty   fixedpoint.Qty
	CumQty          fixedpoint.Qty
	LeavesQty       fixedpoint.Qty
	RejectReason    string
	IsMaker         bool
}

// ApiResponse is a generic request/response envelope (order ack, error,
// ping reply) that doesn't belong to the streaming market-data types.
// ID is the echoed request id as a string: a bare number for
// subscribe/ping envelopes, "<action>_<cl_order_id>" for order-entry
// requests.
type ApiResponse struct {
	ID     string
	Status int
	Result interface{}
	Error  *ApiError
}

// ApiError mirrors the venue's {code, msg} error shape.
type ApiError struct {
	Code int
	Msg  string
}
