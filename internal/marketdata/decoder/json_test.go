package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

func newTestJSON() *JSON {
	return NewJSON(fixedpoint.DefaultPrecision(), zap.NewNop())
}

func TestJSONDecodeEmptyAndConnectedSentinel(t *testing.T) {
	d := newTestJSON()
	require.Equal(t, KindNone, d.Decode("").Kind())
	require.Equal(t, KindNone, d.Decode("__CONNECTED__").Kind())
}

func TestJSONDecodeDepthDiff(t *testing.T) {
	d := newTestJSON()
	payload := `{"e":"depthUpdate@depth","E":123,"s":"BTCUSDT","U":10,"u":15,"b":[["27000.5","1.25"]],"a":[["27001.0","2.0"]]}`
	msg := d.Decode(payload)
	require.Equal(t, KindDepthDiff, msg.Kind())
	diff, ok := msg.DepthDiff()
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", diff.Symbol)
	require.Equal(t, int64(10), diff.FirstBookUpdateID)
	require.Equal(t, int64(15), diff.LastBookUpdateID)
	require.Len(t, diff.Bids, 1)
	require.Equal(t, fixedpoint.Price(27000_500000), diff.Bids[0].Price)
}

func TestJSONDecodeTradeStream(t *testing.T) {
	d := newTestJSON()
	payload := `{"e":"trade@trade","E":123,"s":"ETHUSDT","t":55,"p":"1800.25","q":"0.5","T":456,"m":true}`
	msg := d.Decode(payload)
	require.Equal(t, KindTrades, msg.Kind())
	tb, ok := msg.Trades()
	require.True(t, ok)
	require.Len(t, tb.Trades, 1)
	require.Equal(t, int64(55), tb.Trades[0].ID)
	require.True(t, tb.Trades[0].IsBuyerMaker)
}

func TestJSONDecodeSnapshot(t *testing.T) {
	d := newTestJSON()
	payload := `{"lastUpdateId":99,"bids":[["100.0","1"]],"asks":[["101.0","2"]]}`
	msg := d.Decode(payload)
	require.Equal(t, KindDepthSnapshot, msg.Kind())
	snap, ok := msg.DepthSnapshot()
	require.True(t, ok)
	require.Equal(t, int64(99), snap.LastUpdateID)
}

func TestJSONDecodeExecutionReport(t *testing.T) {
	d := newTestJSON()
	payload := `{"e":"executionReport","E":1700000000000,"s":"BTCUSDT","c":"123456789","S":"BUY","o":"LIMIT","f":"GTC","q":"2.00000000","p":"27000.50000000","x":"TRADE","X":"PARTIALLY_FILLED","r":"NONE","i":555,"l":"0.50000000","z":"0.75000000","L":"27000.40000000","m":true}`
	msg := d.Decode(payload)
	require.Equal(t, KindExecutionReport, msg.Kind())

	rpt, ok := msg.ExecutionReport()
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", rpt.Symbol)
	require.Equal(t, fixedpoint.OrderId(123456789), rpt.ClOrderID)
	require.Equal(t, fixedpoint.SideBuy, rpt.Side)
	require.Equal(t, "PARTIALLY_FILLED", rpt.OrdStatus)
	require.Equal(t, "TRADE", rpt.ExecType)
	require.Equal(t, fixedpoint.Price(27000_500000), rpt.Price)
	require.Equal(t, fixedpoint.Price(27000_400000), rpt.LastFilledPrice)
	require.Equal(t, fixedpoint.Qty(50_000_000), rpt.LastFilledQty)
	require.Equal(t, fixedpoint.Qty(75_000_000), rpt.CumQty)
	require.Equal(t, fixedpoint.Qty(125_000_000), rpt.LeavesQty, "leaves is orig minus cumulative")
	require.True(t, rpt.IsMaker)
	require.False(t, rpt.HasPositionSide)
}

func TestJSONDecodeExecutionReportPositionSide(t *testing.T) {
	d := newTestJSON()
	payload := `{"e":"executionReport","s":"BTCUSDT","c":"42","S":"SELL","X":"NEW","ps":"SHORT"}`
	msg := d.Decode(payload)
	rpt, ok := msg.ExecutionReport()
	require.True(t, ok)
	require.True(t, rpt.HasPositionSide)
	require.Equal(t, fixedpoint.PositionShort, rpt.PositionSide)
	require.Equal(t, fixedpoint.SideSell, rpt.Side)
}

func TestJSONDecodeApiErrorKeepsEnvelopeID(t *testing.T) {
	d := newTestJSON()
	payload := `{"id":"orderplace_42","status":400,"error":{"code":-1013,"msg":"Filter failure"}}`
	msg := d.Decode(payload)
	require.Equal(t, KindApiResponse, msg.Kind())

	resp, ok := msg.ApiResponse()
	require.True(t, ok)
	require.Equal(t, "orderplace_42", resp.ID)
	require.Equal(t, 400, resp.Status)
	require.NotNil(t, resp.Error)
	require.Equal(t, -1013, resp.Error.Code)
}

func TestJSONDecodeUnrecognizedPayloadReturnsNone(t *testing.T) {
	d := newTestJSON()
	msg := d.Decode("not json at all and no markers")
	require.Equal(t, KindNone, msg.Kind())
}

func TestJSONDecodeMalformedDepthLogsAndReturnsNone(t *testing.T) {
	d := newTestJSON()
	msg := d.Decode(`{"e":"@depth" malformed`)
	require.Equal(t, KindNone, msg.Kind())
}
