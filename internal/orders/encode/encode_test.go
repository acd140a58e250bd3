package encode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/manager"
)

func testEncoder() *Encoder {
	prec := Precision{Price: fixedpoint.DefaultPrecision(), Qty: fixedpoint.DefaultPrecision()}
	return New(prec, func() int64 { return 1_700_000_000_000 })
}

func TestEncodeNewOrderLimitIncludesPriceAndTIF(t *testing.T) {
	e := testEncoder()
	req := manager.Request{
		ReqType:      manager.ReqNewOrder,
		ClOrderID:    fixedpoint.OrderId(42),
		Symbol:       "BTCUSDT",
		Side:         fixedpoint.SideBuy,
		Qty:          fixedpoint.Qty(100_000_000),
		Price:        fixedpoint.Price(27_000_000_000),
		OrdType:      manager.OrderTypeLimit,
		TimeInForce:  manager.TIFGoodTillCancel,
	}
	raw, err := e.Encode(req)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "orderplace_42", env.ID)
	require.Equal(t, "order.place", env.Method)

	params, ok := env.Params.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", params["symbol"])
	require.Equal(t, "BUY", params["side"])
	require.Equal(t, "LIMIT", params["type"])
	require.Equal(t, "27000.000000", params["price"])
	require.Equal(t, "1.00000000", params["quantity"])
	require.Equal(t, "GTC", params["timeInForce"])
	require.Equal(t, "42", params["newClientOrderId"])
}

func TestEncodeNewOrderMarketOmitsPriceAndTIF(t *testing.T) {
	e := testEncoder()
	req := manager.Request{
		ReqType:   manager.ReqNewOrder,
		ClOrderID: fixedpoint.OrderId(7),
		Symbol:    "ETHUSDT",
		Side:      fixedpoint.SideSell,
		Qty:       fixedpoint.Qty(50_000_000),
		OrdType:   manager.OrderTypeMarket,
	}
	raw, err := e.Encode(req)
	require.NoError(t, err)

	var params map[string]interface{}
	var env struct {
		Params json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.NoError(t, json.Unmarshal(env.Params, &params))
	_, hasPrice := params["price"]
	_, hasTIF := params["timeInForce"]
	require.False(t, hasPrice)
	require.False(t, hasTIF)
	require.Equal(t, "MARKET", params["type"])
}

func TestEncodeCancelUsesOrigClOrderID(t *testing.T) {
	e := testEncoder()
	req := manager.Request{
		ReqType:       manager.ReqCancel,
		ClOrderID:     fixedpoint.OrderId(5),
		OrigClOrderID: fixedpoint.OrderId(5),
		Symbol:        "BTCUSDT",
	}
	raw, err := e.Encode(req)
	require.NoError(t, err)

	var env struct {
		ID     string `json:"id"`
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "ordercancel_5", env.ID)
	require.Equal(t, "order.cancel", env.Method)
}

func TestEncodeCancelAndReorderCarriesBothIDs(t *testing.T) {
	e := testEncoder()
	req := manager.Request{
		ReqType:          manager.ReqCancelAndReorder,
		ClOrderID:        fixedpoint.OrderId(101),
		CancelNewOrderID: fixedpoint.OrderId(100),
		OrigClOrderID:    fixedpoint.OrderId(50),
		Symbol:           "BTCUSDT",
		Side:             fixedpoint.SideBuy,
		Qty:              fixedpoint.Qty(200_000_000),
		Price:            fixedpoint.Price(26_500_000_000),
		OrdType:          manager.OrderTypeLimit,
		TimeInForce:      manager.TIFGoodTillCancel,
	}
	raw, err := e.Encode(req)
	require.NoError(t, err)

	var env struct {
		ID     string                 `json:"id"`
		Method string                 `json:"method"`
		Params map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "orderreplace_101", env.ID)
	require.Equal(t, "order.cancelReplace", env.Method)
	require.Equal(t, "50", env.Params["cancelOrigClientOrderId"])
	require.Equal(t, "100", env.Params["cancelNewClientOrderId"])
	require.Equal(t, "101", env.Params["newClientOrderId"])
}

func TestEncodePositionSideOmittedWhenNotHedgeMode(t *testing.T) {
	e := testEncoder()
	req := manager.Request{
		ReqType:   manager.ReqNewOrder,
		ClOrderID: fixedpoint.OrderId(9),
		Symbol:    "BTCUSDT",
		Side:      fixedpoint.SideBuy,
		Qty:       fixedpoint.Qty(1_00000000),
		Price:     fixedpoint.Price(1),
		OrdType:   manager.OrderTypeLimit,
	}
	raw, err := e.Encode(req)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "positionSide")
}

func TestCancelAllMessageFormat(t *testing.T) {
	raw, err := CancelAllMessage("BTCUSDT", fixedpoint.OrderId(9), 1_700_000_000_000)
	require.NoError(t, err)

	var env struct {
		ID     string                 `json:"id"`
		Method string                 `json:"method"`
		Params map[string]interface{} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "ordercancelAll_9", env.ID)
	require.Equal(t, "openOrders.cancelAll", env.Method)
	require.Equal(t, "BTCUSDT", env.Params["symbol"])
}

func TestLoginMessageFormat(t *testing.T) {
	raw, err := LoginMessage("key123", "sig456", 1_700_000_000_000)
	require.NoError(t, err)

	var env struct {
		ID     string `json:"id"`
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "login_1700000000000", env.ID)
	require.Equal(t, "session.logon", env.Method)
}
