package external

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Session holds one venue WebSocket connection. Dialing, TLS, and
// reconnect policy are the transport collaborator's job (out of scope
// here); this type only gives the decoder and sequencer a concrete
// *websocket.Conn to read frames from.
type Session struct {
	Conn   *websocket.Conn
	Symbol string
}

// Filter carries one Binance-style instrument trading-rule filter. The
// exchangeInfo decode copies TickSize, StepSize and MinNotional into
// decoder.SymbolInfo, and only StepSize reaches the venue policy filter
// (as its qty increment); the rest pass through for completeness of the
// exchangeInfo decode.
type Filter struct {
	FilterType    string `json:"filterType"`
	MinPrice      string `json:"minPrice,omitempty"`
	MaxPrice      string `json:"maxPrice,omitempty"`
	TickSize      string `json:"tickSize,omitempty"`
	MinQty        string `json:"minQty,omitempty"`
	MaxQty        string `json:"maxQty,omitempty"`
	StepSize      string `json:"stepSize,omitempty"`
	MinNotional   string `json:"minNotional,omitempty"`
	ApplyToMarket bool   `json:"applyToMarket,omitempty"`
}

// BinanceSymbol describes one tradeable instrument as returned by the
// exchangeInfo endpoint.
type BinanceSymbol struct {
	Symbol                 string   `json:"symbol"`
	Status                 string   `json:"status"`
	BaseAsset              string   `json:"baseAsset"`
	QuoteAsset             string   `json:"quoteAsset"`
	BaseAssetPrecision     int      `json:"baseAssetPrecision"`
	QuotePrecision         int      `json:"quotePrecision"`
	OrderTypes             []string `json:"orderTypes"`
	CancelReplaceAllowed   bool     `json:"cancelReplaceAllowed"`
	Filters                []Filter `json:"filters"`
}

// BinanceExchangeInfo is the decoded response to an exchangeInfo request.
type BinanceExchangeInfo struct {
	Timezone        string          `json:"timezone"`
	ServerTime      int64           `json:"serverTime"`
	ExchangeFilters []Filter        `json:"exchangeFilters"`
	Symbols         []BinanceSymbol `json:"symbols"`
}

// BinanceStreamDepth is one depth-diff event on the combined WebSocket
// stream. Field tags match the venue's own short keys exactly — this is
// the wire shape the JSON decoder dispatches to on the "@depth"
// substring (see internal/marketdata/decoder).
type BinanceStreamDepth struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId int64      `json:"U"`
	FinalUpdateId int64      `json:"u"`
	// PrevFinalUpdateId ("pu") is only present on the perpetual-futures
	// stream; the spot stream omits it and the field decodes as zero.
	PrevFinalUpdateId int64      `json:"pu,omitempty"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

// DepthSnapshot is the REST depth-snapshot response used to (re-)seed
// the book after a gap (see sequencer.Sequencer.OnSnapshot).
type DepthSnapshot struct {
	LastUpdateId int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// BinanceStreamTrade is one public trade print on the combined stream.
type BinanceStreamTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeId      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// BinanceExecutionReport is one order-lifecycle update on the user
// data stream. Field tags are the venue's short keys; quantities and
// prices arrive as decimal strings like every other stream payload.
type BinanceExecutionReport struct {
	EventType         string `json:"e"`
	EventTime         int64  `json:"E"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	Side              string `json:"S"`
	OrderType         string `json:"o"`
	TimeInForce       string `json:"f"`
	OrigQty           string `json:"q"`
	Price             string `json:"p"`
	ExecutionType     string `json:"x"`
	OrderStatus       string `json:"X"`
	RejectReason      string `json:"r"`
	OrderID           int64  `json:"i"`
	LastExecutedQty   string `json:"l"`
	CumQty            string `json:"z"`
	LastExecutedPrice string `json:"L"`
	// OrigClientOrderID is set on cancel acknowledgements and on the
	// cancel half of a replace, echoing the order being cancelled.
	OrigClientOrderID string `json:"C,omitempty"`
	// PositionSide is only present on perpetual-futures venues.
	PositionSide string `json:"ps,omitempty"`
	IsMaker      bool   `json:"m"`
}

// BinanceError is a venue API error envelope.
type BinanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e BinanceError) Error() string {
	return fmt.Sprintf("venue API error %d: %s", e.Code, e.Msg)
}

// ApiResponse is the fallback shape tried once the JSON decoder has
// ruled out every known stream/control message. Id is kept raw: the
// venue echoes whatever the request carried, which is a bare number on
// subscribe/ping envelopes but an "<action>_<cl_order_id>" string on
// order-entry requests (see internal/orders/encode).
type ApiResponse struct {
	Result interface{}     `json:"result,omitempty"`
	Id     json.RawMessage `json:"id,omitempty"`
	Status int             `json:"status,omitempty"`
	Error  *BinanceError   `json:"error,omitempty"`
}

// Stream framing constants used by the JSON decoder's substring
// dispatch, in priority order.
const (
	DepthStreamMarker     = "@depth"
	TradeStreamMarker     = "@trade"
	SnapshotMarker        = "snapshot"
	ExchangeInfoMarker    = "exchangeInfo"
	ExecutionReportMarker = "executionReport"

	ConnectedSentinel = "__CONNECTED__"
)

// BinanceConfig carries the non-credential transport knobs a dialer
// would need. Credential material (APIKey/APISecret) and the dial/
// reconnect loop itself stay with the transport collaborator, out of
// scope here.
type BinanceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	WebSocketURL string        `yaml:"websocket_url"`
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
}
