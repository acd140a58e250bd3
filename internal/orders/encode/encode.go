// Package encode builds the outgoing order-entry JSON envelopes:
// `{id, method, params}` where id encodes both the
// client-order id and the action kind so the inbound decoder can route
// a reply back to the right request without parsing its method field.
package encode

import (
	"encoding/json"
	"fmt"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/manager"
)

// Precision carries the scale factors the encoder renders price and
// quantity fields at; it is set apart from the decoder's PrecisionConfig
// so a venue's displayed precision can differ from the internal
// fixed-point scale.
type Precision struct {
	Price fixedpoint.PrecisionConfig
	Qty   fixedpoint.PrecisionConfig
}

func orderTypeString(t manager.OrderType) string {
	switch t {
	case manager.OrderTypeMarket:
		return "MARKET"
	case manager.OrderTypeStopLoss:
		return "STOP_LOSS"
	case manager.OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "LIMIT"
	}
}

func tifString(t manager.TimeInForce) string {
	switch t {
	case manager.TIFImmediateOrCancel:
		return "IOC"
	case manager.TIFFillOrKill:
		return "FOK"
	default:
		return "GTC"
	}
}

func positionSideString(s fixedpoint.PositionSide) string {
	switch s {
	case fixedpoint.PositionLong:
		return "LONG"
	case fixedpoint.PositionShort:
		return "SHORT"
	default:
		return "BOTH"
	}
}

// orderPlaceParams, orderCancelParams, and orderReplaceParams mirror
// the venue's request.params field shapes byte for byte.
type orderPlaceParams struct {
	Symbol               string `json:"symbol"`
	Side                 string `json:"side"`
	Type                 string `json:"type"`
	Quantity             string `json:"quantity"`
	Price                string `json:"price,omitempty"`
	TimeInForce          string `json:"timeInForce,omitempty"`
	NewClientOrderID     string `json:"newClientOrderId"`
	PositionSide         string `json:"positionSide,omitempty"`
	SelfTradePreventMode string `json:"selfTradePreventionMode,omitempty"`
	Timestamp            int64  `json:"timestamp"`
}

type orderCancelParams struct {
	Symbol            string `json:"symbol"`
	NewClientOrderID  string `json:"newClientOrderId"`
	OrigClientOrderID string `json:"origClientOrderId"`
	PositionSide      string `json:"positionSide,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

type orderReplaceParams struct {
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Type                string `json:"type"`
	Quantity            string `json:"quantity"`
	Price               string `json:"price,omitempty"`
	TimeInForce         string `json:"timeInForce,omitempty"`
	CancelOrigClOrderID string `json:"cancelOrigClientOrderId"`
	CancelNewClOrderID  string `json:"cancelNewClientOrderId"`
	NewClientOrderID    string `json:"newClientOrderId"`
	PositionSide        string `json:"positionSide,omitempty"`
	Timestamp           int64  `json:"timestamp"`
}

type envelope struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Encoder builds outbound JSON order requests at a fixed venue display
// precision. Pure: input is a manager.Request, output is bytes, no
// shared state.
type Encoder struct {
	precision Precision
	nowMillis func() int64
}

// New creates an Encoder. nowMillis supplies the outbound `timestamp`
// field; pass a clock-backed closure in production and a fixed value in
// tests.
func New(precision Precision, nowMillis func() int64) *Encoder {
	return &Encoder{precision: precision, nowMillis: nowMillis}
}

// Encode renders req as its venue JSON envelope, keyed by an `id` of the
// form `<action>_<cl_order_id>`.
func (e *Encoder) Encode(req manager.Request) ([]byte, error) {
	switch req.ReqType {
	case manager.ReqNewOrder:
		return e.encodeNew(req)
	case manager.ReqCancelAndReorder:
		return e.encodeReplace(req)
	case manager.ReqModify:
		return e.encodeModify(req)
	case manager.ReqCancel:
		return e.encodeCancel(req)
	default:
		return nil, fmt.Errorf("encode: unknown request type %d", req.ReqType)
	}
}

func (e *Encoder) encodeNew(req manager.Request) ([]byte, error) {
	params := orderPlaceParams{
		Symbol:           req.Symbol,
		Side:             fixedpoint.SideToValue(req.Side),
		Type:             orderTypeString(req.OrdType),
		Quantity:         req.Qty.String(e.precision.Qty),
		NewClientOrderID: orderIDString(req.ClOrderID),
		Timestamp:        e.nowMillis(),
	}
	if req.HasPositionSide {
		params.PositionSide = positionSideString(req.PositionSide)
	}
	if req.OrdType == manager.OrderTypeLimit {
		params.Price = req.Price.String(e.precision.Price)
		params.TimeInForce = tifString(req.TimeInForce)
	}
	return json.Marshal(envelope{
		ID:     "orderplace_" + orderIDString(req.ClOrderID),
		Method: "order.place",
		Params: params,
	})
}

func (e *Encoder) encodeCancel(req manager.Request) ([]byte, error) {
	params := orderCancelParams{
		Symbol:            req.Symbol,
		NewClientOrderID:  orderIDString(req.ClOrderID),
		OrigClientOrderID: orderIDString(req.OrigClOrderID),
		Timestamp:         e.nowMillis(),
	}
	if req.HasPositionSide {
		params.PositionSide = positionSideString(req.PositionSide)
	}
	return json.Marshal(envelope{
		ID:     "ordercancel_" + orderIDString(req.OrigClOrderID),
		Method: "order.cancel",
		Params: params,
	})
}

func (e *Encoder) encodeModify(req manager.Request) ([]byte, error) {
	params := orderPlaceParams{
		Symbol:           req.Symbol,
		Side:             fixedpoint.SideToValue(req.Side),
		Type:             orderTypeString(req.OrdType),
		Quantity:         req.Qty.String(e.precision.Qty),
		Price:            req.Price.String(e.precision.Price),
		TimeInForce:      tifString(req.TimeInForce),
		NewClientOrderID: orderIDString(req.ClOrderID),
		Timestamp:        e.nowMillis(),
	}
	if req.HasPositionSide {
		params.PositionSide = positionSideString(req.PositionSide)
	}
	return json.Marshal(envelope{
		ID:     "ordermodify_" + orderIDString(req.ClOrderID),
		Method: "order.modify",
		Params: params,
	})
}

// encodeReplace renders the combined cancel-and-reorder message venues
// with SupportsCancelAndReorder accept in one round trip: it carries
// both the original order's id and the
// cl_new_order_id-1 cancel id alongside the new order's own fields.
func (e *Encoder) encodeReplace(req manager.Request) ([]byte, error) {
	params := orderReplaceParams{
		Symbol:              req.Symbol,
		Side:                fixedpoint.SideToValue(req.Side),
		Type:                orderTypeString(req.OrdType),
		Quantity:            req.Qty.String(e.precision.Qty),
		Price:               req.Price.String(e.precision.Price),
		TimeInForce:         tifString(req.TimeInForce),
		CancelOrigClOrderID: orderIDString(req.OrigClOrderID),
		CancelNewClOrderID:  orderIDString(req.CancelNewOrderID),
		NewClientOrderID:    orderIDString(req.ClOrderID),
		Timestamp:           e.nowMillis(),
	}
	if req.HasPositionSide {
		params.PositionSide = positionSideString(req.PositionSide)
	}
	return json.Marshal(envelope{
		ID:     "orderreplace_" + orderIDString(req.ClOrderID),
		Method: "order.cancelReplace",
		Params: params,
	})
}

func orderIDString(id fixedpoint.OrderId) string {
	return fmt.Sprintf("%d", uint64(id))
}

// LoginMessage builds the session logon envelope; request signing is
// the credential layer's job, the signature arrives here pre-computed.
func LoginMessage(apiKey, signature string, tsMillis int64) ([]byte, error) {
	return json.Marshal(envelope{
		ID:     fmt.Sprintf("login_%d", tsMillis),
		Method: "session.logon",
		Params: map[string]interface{}{
			"apiKey":     apiKey,
			"signature":  signature,
			"timestamp":  tsMillis,
			"recvWindow": 5000,
		},
	})
}

// CancelAllMessage builds the cancel-every-open-order envelope, used on
// session teardown and by kill-switch handling.
func CancelAllMessage(symbol string, id fixedpoint.OrderId, tsMillis int64) ([]byte, error) {
	return json.Marshal(envelope{
		ID:     "ordercancelAll_" + orderIDString(id),
		Method: "openOrders.cancelAll",
		Params: map[string]interface{}{
			"symbol":    symbol,
			"timestamp": tsMillis,
		},
	})
}

// SubscribeMessage builds the user-data-stream subscribe envelope.
func SubscribeMessage(tsMillis int64) ([]byte, error) {
	return json.Marshal(envelope{
		ID:     fmt.Sprintf("subscribe_%d", tsMillis),
		Method: "userDataStream.subscribe",
		Params: map[string]interface{}{},
	})
}
