package decoder

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	hfterrors "github.com/abdoElHodaky/hft-core/internal/common/errors"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/external"
)

// JSON decodes the venue's text WebSocket frames. Dispatch is by
// substring match against a fixed priority order (depth before trade
// before snapshot before exchangeInfo, falling back to a generic API
// envelope) — the same order the wire format is disambiguated in,
// because a payload can legitimately contain more than one marker
// substring and the first match wins.
type JSON struct {
	precision fixedpoint.PrecisionConfig
	log       *zap.Logger
}

// NewJSON creates a JSON decoder. precision controls how bid/ask/trade
// decimal strings are scaled into fixedpoint.Price/Qty.
func NewJSON(precision fixedpoint.PrecisionConfig, log *zap.Logger) *JSON {
	return &JSON{precision: precision, log: log}
}

// Decode turns one text frame into a WireMessage. An empty, connect
// sentinel, or unparseable payload returns a zero WireMessage (Kind ==
// KindNone) rather than an error — malformed market data is logged and
// skipped, never fatal to the read loop.
func (d *JSON) Decode(payload string) WireMessage {
	if payload == "" || payload == external.ConnectedSentinel {
		return WireMessage{}
	}

	if strings.Contains(payload, external.DepthStreamMarker) {
		return d.decodeDepthDiff(payload)
	}
	if strings.Contains(payload, external.TradeStreamMarker) {
		return d.decodeTrade(payload)
	}
	if strings.Contains(payload, external.SnapshotMarker) || strings.Contains(payload, `"lastUpdateId"`) {
		return d.decodeSnapshot(payload)
	}
	if strings.Contains(payload, external.ExchangeInfoMarker) {
		return d.decodeExchangeInfo(payload)
	}
	if strings.Contains(payload, external.ExecutionReportMarker) {
		return d.decodeExecutionReport(payload)
	}

	var api external.ApiResponse
	if err := json.Unmarshal([]byte(payload), &api); err == nil {
		return WireMessage{kind: KindApiResponse, apiResponse: toApiResponse(api)}
	}

	const logPreview = 100
	preview := payload
	if len(preview) > logPreview {
		preview = preview[:logPreview]
	}
	d.log.Warn("unhandled websocket payload", zap.String("preview", preview))
	return WireMessage{}
}

// logMalformed classifies a decode failure and logs it; used by every
// top-level payload decoder before it gives up and returns an empty
// WireMessage.
func (d *JSON) logMalformed(stage string, err error, payload string) {
	wrapped := hfterrors.Wrap(err, hfterrors.ErrMalformedMessage, "json-decoder", "failed to decode %s", stage)
	d.log.Error("decode failure", zap.Error(wrapped), zap.String("payload", payload))
}

func (d *JSON) decodeDepthDiff(payload string) WireMessage {
	var ev external.BinanceStreamDepth
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logMalformed("depth stream", err, payload)
		return WireMessage{}
	}
	bids, err := d.levels(ev.Bids)
	if err != nil {
		d.log.Error("failed to decode depth bids", zap.Error(err))
		return WireMessage{}
	}
	asks, err := d.levels(ev.Asks)
	if err != nil {
		d.log.Error("failed to decode depth asks", zap.Error(err))
		return WireMessage{}
	}
	return WireMessage{
		kind: KindDepthDiff,
		depthDiff: &DepthDiff{
			Symbol:            ev.Symbol,
			EventTime:         ev.EventTime,
			FirstBookUpdateID: ev.FirstUpdateId,
			LastBookUpdateID:  ev.FinalUpdateId,
			PrevBookUpdateID:  ev.PrevFinalUpdateId,
			Bids:              bids,
			Asks:              asks,
		},
	}
}

func (d *JSON) decodeTrade(payload string) WireMessage {
	var ev external.BinanceStreamTrade
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logMalformed("trade stream", err, payload)
		return WireMessage{}
	}
	price, err := fixedpoint.ParsePrice(ev.Price, d.precision)
	if err != nil {
		d.log.Error("failed to parse trade price", zap.Error(err))
		return WireMessage{}
	}
	qty, err := fixedpoint.ParseQty(ev.Quantity, d.precision)
	if err != nil {
		d.log.Error("failed to parse trade qty", zap.Error(err))
		return WireMessage{}
	}
	return WireMessage{
		kind: KindTrades,
		trades: &TradeBatch{
			Symbol:       ev.Symbol,
			EventTime:    ev.EventTime,
			TransactTime: ev.TradeTime,
			Trades: []Trade{{
				ID:           ev.TradeId,
				Price:        price,
				Qty:          qty,
				IsBuyerMaker: ev.IsBuyerMaker,
				IsBestMatch:  true,
			}},
		},
	}
}

func (d *JSON) decodeSnapshot(payload string) WireMessage {
	var ev external.DepthSnapshot
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logMalformed("depth snapshot", err, payload)
		return WireMessage{}
	}
	bids, err := d.levels(ev.Bids)
	if err != nil {
		d.log.Error("failed to decode snapshot bids", zap.Error(err))
		return WireMessage{}
	}
	asks, err := d.levels(ev.Asks)
	if err != nil {
		d.log.Error("failed to decode snapshot asks", zap.Error(err))
		return WireMessage{}
	}
	return WireMessage{
		kind: KindDepthSnapshot,
		depthSnapshot: &DepthSnapshot{
			LastUpdateID: ev.LastUpdateId,
			Bids:         bids,
			Asks:         asks,
		},
	}
}

func (d *JSON) decodeExchangeInfo(payload string) WireMessage {
	var ev external.BinanceExchangeInfo
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logMalformed("exchangeInfo", err, payload)
		return WireMessage{}
	}
	symbols := make([]SymbolInfo, 0, len(ev.Symbols))
	for _, s := range ev.Symbols {
		info := SymbolInfo{
			Symbol:             s.Symbol,
			Status:             s.Status,
			BaseAsset:          s.BaseAsset,
			QuoteAsset:         s.QuoteAsset,
			BaseAssetPrecision: s.BaseAssetPrecision,
			QuotePrecision:     s.QuotePrecision,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				info.TickSize = f.TickSize
			case "LOT_SIZE":
				info.StepSize = f.StepSize
			case "MIN_NOTIONAL", "NOTIONAL":
				info.MinNotional = f.MinNotional
			}
		}
		symbols = append(symbols, info)
	}
	return WireMessage{
		kind: KindExchangeInfo,
		exchangeInfo: &ExchangeInfo{
			Timezone:   ev.Timezone,
			ServerTime: ev.ServerTime,
			Symbols:    symbols,
		},
	}
}

// decodeExecutionReport normalizes one user-data-stream order update.
// Quantity/price fields the venue leaves empty decode as zero; leaves
// qty is derived from orig minus cumulative since the stream doesn't
// carry it directly.
func (d *JSON) decodeExecutionReport(payload string) WireMessage {
	var ev external.BinanceExecutionReport
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.logMalformed("execution report", err, payload)
		return WireMessage{}
	}

	rpt := &ExecReport{
		Symbol:        ev.Symbol,
		EventTime:     ev.EventTime,
		ClOrderID:     parseClOrderID(ev.ClientOrderID),
		OrigClOrderID: parseClOrderID(ev.OrigClientOrderID),
		Side:          fixedpoint.ValueToSide(ev.Side),
		ExecType:      ev.ExecutionType,
		OrdStatus:     ev.OrderStatus,
		RejectReason:  ev.RejectReason,
		IsMaker:       ev.IsMaker,
	}
	if ev.PositionSide != "" {
		rpt.PositionSide = fixedpoint.ValueToPositionSide(ev.PositionSide)
		rpt.HasPositionSide = true
	}

	rpt.Price = d.optPrice(ev.Price)
	rpt.LastFilledPrice = d.optPrice(ev.LastExecutedPrice)
	rpt.LastFilledQty = d.optQty(ev.LastExecutedQty)
	rpt.CumQty = d.optQty(ev.CumQty)
	if orig := d.optQty(ev.OrigQty); orig > rpt.CumQty {
		rpt.LeavesQty = orig - rpt.CumQty
	}

	return WireMessage{kind: KindExecutionReport, execReport: rpt}
}

// optPrice parses a possibly-empty decimal string, treating absence as
// zero rather than a decode failure.
func (d *JSON) optPrice(s string) fixedpoint.Price {
	if s == "" {
		return 0
	}
	p, err := fixedpoint.ParsePrice(s, d.precision)
	if err != nil {
		return 0
	}
	return p
}

func (d *JSON) optQty(s string) fixedpoint.Qty {
	if s == "" {
		return 0
	}
	q, err := fixedpoint.ParseQty(s, d.precision)
	if err != nil {
		return 0
	}
	return q
}

// parseClOrderID parses the decimal client order ids this client
// generates (nanosecond timestamps); anything else maps to the invalid
// id and is filtered by the slot book's id lookup.
func parseClOrderID(s string) fixedpoint.OrderId {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fixedpoint.InvalidOrderId
	}
	return fixedpoint.OrderId(v)
}

func (d *JSON) levels(raw [][]string) ([]PriceLevel, error) {
	out := make([]PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := fixedpoint.ParsePrice(pair[0], d.precision)
		if err != nil {
			return nil, err
		}
		qty, err := fixedpoint.ParseQty(pair[1], d.precision)
		if err != nil {
			return nil, err
		}
		out = append(out, PriceLevel{Price: price, Qty: qty})
	}
	return out, nil
}

func toApiResponse(a external.ApiResponse) *ApiResponse {
	out := &ApiResponse{
		ID:     strings.Trim(string(a.Id), `"`),
		Status: a.Status,
		Result: a.Result,
	}
	if a.Error != nil {
		out.Error = &ApiError{Code: a.Error.Code, Msg: a.Error.Msg}
	}
	return out
}
