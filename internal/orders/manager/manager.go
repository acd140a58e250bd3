// Package manager implements the order manager: it
// turns a reconciler.Actions set into live slot-book state and
// outbound requests, applies the venue's cancel-and-reorder encoding
// when the venue trait calls for it, and runs the TTL sweep every
// cycle. Everything here runs exclusively on the trade-engine thread.
package manager

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/hft/metrics"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
	"github.com/abdoElHodaky/hft-core/internal/orders/state"
	"github.com/abdoElHodaky/hft-core/internal/risk"
)

// OrderType mirrors the venue's outbound order type enumeration.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeStopLoss
	OrderTypeStopLimit
)

// TimeInForce mirrors the venue's outbound time-in-force enumeration.
type TimeInForce int

const (
	TIFGoodTillCancel TimeInForce = iota
	TIFImmediateOrCancel
	TIFFillOrKill
)

// ReqType identifies which outbound action a Request encodes.
type ReqType int

const (
	ReqNewOrder ReqType = iota
	ReqCancelAndReorder
	ReqModify
	ReqCancel
)

// Request is the domain-level outbound order-entry action the order
// manager hands to the Gateway. internal/orders/encode turns a Request
// into the venue's JSON envelope; the manager itself knows
// nothing about wire framing.
type Request struct {
	ReqType          ReqType
	ClOrderID        fixedpoint.OrderId
	CancelNewOrderID fixedpoint.OrderId // only set for ReqCancelAndReorder
	OrigClOrderID    fixedpoint.OrderId
	Symbol           string
	Side             fixedpoint.Side
	PositionSide     fixedpoint.PositionSide
	HasPositionSide  bool
	Qty              fixedpoint.Qty
	Price            fixedpoint.Price
	OrdType          OrderType
	TimeInForce      TimeInForce
}

// Gateway is the order-entry transport collaborator: it receives a
// fully formed Request and is responsible
// for encoding and writing it to the OE-write thread's outbound
// channel.
type Gateway interface {
	SendRequest(req Request)
}

// Config carries the per-symbol tunables the order manager is built
// from.
type Config struct {
	Ticker                   string
	TickConv                 reconciler.TickConverter
	MinReplaceQtyDelta       fixedpoint.Qty
	MinReplaceTickDelta      int64
	Venue                    *reconciler.VenuePolicy
	Risk                     config.RiskConfig
	TTLReservedNs            int64
	TTLLiveNs                int64
	SupportsCancelAndReorder bool
}

// OrderManager owns the slot
// book, the reserved-position tracker, and the expiry heap, and is the
// sole writer of all three. Not safe for concurrent use — the trade
// engine is its only caller.
type OrderManager struct {
	cfg       Config
	layerBook *reconciler.LayerBook
	recon     *reconciler.QuoteReconciler
	state     *state.Manager
	expiry    *ExpiryManager
	reserved  ReservedPositionTracker
	pending   *PendingRequestRegistry

	clock     clock.Clock
	gateway   Gateway
	positions *risk.PositionKeeper
	metrics   *metrics.PipelineMetrics
	log       *zap.Logger
}

// New creates an OrderManager.
func New(cfg Config, clk clock.Clock, gateway Gateway, positions *risk.PositionKeeper, m *metrics.PipelineMetrics, log *zap.Logger) *OrderManager {
	return &OrderManager{
		cfg:       cfg,
		layerBook: reconciler.NewLayerBook(),
		recon:     reconciler.New(cfg.MinReplaceQtyDelta, cfg.MinReplaceTickDelta, cfg.TickConv, clk),
		state:     state.New(log),
		expiry:    NewExpiryManager(cfg.TTLReservedNs, cfg.TTLLiveNs),
		pending:   NewPendingRequestRegistry(),
		clock:     clk,
		gateway:   gateway,
		positions: positions,
		metrics:   m,
		log:       log,
	}
}

// Pending exposes the pending-request registry to the
// OE-read thread so it can synthesize a Rejected execution report for
// an API error that doesn't echo the original order's fields.
func (om *OrderManager) Pending() *PendingRequestRegistry { return om.pending }

// LayerBook exposes the slot book for read-only inspection (tests,
// diagnostics dumps).
func (om *OrderManager) LayerBook() *reconciler.LayerBook { return om.layerBook }

// Reserved exposes the reserved-position tracker.
func (om *OrderManager) Reserved() *ReservedPositionTracker { return &om.reserved }

// Apply reconciles intents against the live slot book, filters the
// resulting action set through the venue policy and pre-trade risk
// checks, and emits new/replace/cancel requests in that fixed order.
// An empty intents set only sweeps expired orders.
func (om *OrderManager) Apply(intents []reconciler.QuoteIntent) {
	now := om.clock.NowNanos()

	if len(intents) == 0 {
		om.sweepExpired(now)
		return
	}

	var stopwatch metrics.Stopwatch
	if om.metrics != nil {
		stopwatch = om.metrics.StartApply()
		defer stopwatch.Finish()
	}

	ticker := intents[0].Ticker
	actions := om.recon.Diff(intents, om.layerBook)

	before := len(actions.News) + len(actions.Replaces) + len(actions.Cancels)
	om.cfg.Venue.Filter(ticker, &actions, now, om.layerBook)
	if om.metrics != nil {
		after := len(actions.News) + len(actions.Replaces) + len(actions.Cancels)
		om.metrics.VenueRejections.Add(float64(before - after))
	}
	om.filterByRisk(ticker, &actions)

	om.processNew(ticker, &actions, now)
	om.processReplace(ticker, &actions, now)
	om.processCancel(ticker, &actions, now)
	om.sweepExpired(now)
}

// sideSign returns +1 for buy, -1 for sell, 0 otherwise.
func sideSign(side fixedpoint.Side) int64 {
	switch side {
	case fixedpoint.SideBuy:
		return 1
	case fixedpoint.SideSell:
		return -1
	default:
		return 0
	}
}

// filterByRisk runs the pre-trade risk check against each
// surviving new/replace action in order, dropping any action the check
// rejects and folding allowed deltas into a running reserved total
// seeded from the reserved-position tracker.
func (om *OrderManager) filterByRisk(ticker string, acts *reconciler.Actions) {
	var pos risk.PositionInfo
	if p, ok := om.positions.Get(ticker); ok {
		pos = *p
	}
	running := om.reserved.Net()

	news := acts.News[:0]
	for _, a := range acts.News {
		delta := a.Qty
		if risk.CheckPreTradeRisk(om.cfg.Risk, &pos, a.Side, delta, running) == risk.Allowed {
			running += sideSign(a.Side) * int64(delta)
			news = append(news, a)
		} else if om.metrics != nil {
			om.metrics.RiskRejections.Inc()
		}
	}
	acts.News = news

	repls := acts.Replaces[:0]
	for _, a := range acts.Replaces {
		delta := fixedpoint.Qty(int64(a.Qty) - int64(a.LastQty))
		if risk.CheckPreTradeRisk(om.cfg.Risk, &pos, a.Side, delta, running) == risk.Allowed {
			running += sideSign(a.Side) * int64(delta)
			repls = append(repls, a)
		} else if om.metrics != nil {
			om.metrics.RiskRejections.Inc()
		}
	}
	acts.Replaces = repls
}

func (om *OrderManager) processNew(ticker string, acts *reconciler.Actions, now int64) {
	for _, a := range acts.News {
		sb := om.layerBook.SideBook(ticker, a.Side, a.PositionSide)
		tick := om.cfg.TickConv.ToTicksRaw(int64(a.Price))
		if existing := reconciler.FindLayerByTicks(sb, tick); existing >= 0 && existing != a.Layer {
			continue
		}

		sb.LayerTicks[a.Layer] = tick
		slot := &sb.Slots[a.Layer]
		slot.Price = a.Price
		slot.Qty = a.Qty
		slot.ClOrderID = a.ClOrderID
		slot.State = reconciler.Reserved
		slot.LastUsedNs = now

		om.newOrder(ticker, a.Price, a.Side, a.Qty, a.ClOrderID, a.PositionSide)
		sb.LastSendNs = now
		om.reserved.AddReserved(a.Side, int64(a.Qty))

		om.expiry.RegisterExpiry(ticker, a.Side, a.PositionSide, a.Layer, a.ClOrderID, reconciler.Reserved, now)
	}
}

func (om *OrderManager) processReplace(ticker string, acts *reconciler.Actions, now int64) {
	for _, a := range acts.Replaces {
		sb := om.layerBook.SideBook(ticker, a.Side, a.PositionSide)
		tick := om.cfg.TickConv.ToTicksRaw(int64(a.Price))
		if existing := reconciler.FindLayerByTicks(sb, tick); existing >= 0 && existing != a.Layer {
			continue
		}

		slot := &sb.Slots[a.Layer]
		originalPrice := slot.Price
		originalTick := sb.LayerTicks[a.Layer]

		sb.LayerTicks[a.Layer] = tick
		slot.Price = a.Price
		slot.Qty = a.Qty
		slot.ClOrderID = a.ClOrderID
		slot.State = reconciler.CancelReserved
		slot.LastUsedNs = now

		for id, layer := range sb.NewIDToLayer {
			if layer == a.Layer {
				delete(sb.NewIDToLayer, id)
			}
		}

		pending := &reconciler.PendingReplace{
			OldPrice:     originalPrice,
			OldTick:      originalTick,
			OldQty:       a.LastQty,
			OldClOrderID: a.OriginalClOrderID,
		}

		if om.cfg.SupportsCancelAndReorder {
			cancelNewID := fixedpoint.OrderId(uint64(a.ClOrderID) - 1)
			sb.OrigIDToLayer[cancelNewID] = a.Layer
			sb.NewIDToLayer[a.ClOrderID] = a.Layer
			sb.PendingReplace[a.Layer] = pending
			om.modifyOrder(ticker, cancelNewID, a.ClOrderID, a.OriginalClOrderID, a.Price, a.Side, a.Qty, a.PositionSide)
		} else {
			sb.NewIDToLayer[a.OriginalClOrderID] = a.Layer
			sb.PendingReplace[a.Layer] = pending
			om.modifyOrder(ticker, a.OriginalClOrderID, a.OriginalClOrderID, a.OriginalClOrderID, a.Price, a.Side, a.Qty, a.PositionSide)
		}

		sb.LastSendNs = now
		delta := int64(a.Qty) - int64(a.LastQty)
		om.reserved.AddReserved(a.Side, delta)

		om.expiry.RegisterExpiry(ticker, a.Side, a.PositionSide, a.Layer, a.ClOrderID, reconciler.CancelReserved, now)
	}
}

func (om *OrderManager) processCancel(ticker string, acts *reconciler.Actions, now int64) {
	for _, a := range acts.Cancels {
		sb := om.layerBook.SideBook(ticker, a.Side, a.PositionSide)
		slot := &sb.Slots[a.Layer]
		slot.State = reconciler.CancelReserved
		slot.LastUsedNs = now
		sb.LastSendNs = now
		om.cancelOrder(ticker, a.OriginalClOrderID, a.PositionSide)
	}
}

// sweepExpired pops every past-deadline expiry entry, re-validates it
// against the live slot, and cancels what's still outstanding.
func (om *OrderManager) sweepExpired(now int64) {
	var stopwatch metrics.Stopwatch
	if om.metrics != nil {
		stopwatch = om.metrics.StartSweep()
		defer stopwatch.Finish()
	}

	for _, key := range om.expiry.SweepExpired(now) {
		sb := om.layerBook.SideBook(key.Symbol, key.Side, key.PositionSide)
		if key.Layer < 0 || key.Layer >= reconciler.SlotsPerSide {
			continue
		}
		slot := &sb.Slots[key.Layer]
		if slot.ClOrderID != key.ClOrderID {
			continue
		}
		if slot.State == reconciler.Dead || slot.State == reconciler.CancelReserved {
			continue
		}
		if slot.State == reconciler.Live || slot.State == reconciler.Reserved {
			slot.State = reconciler.CancelReserved
			slot.LastUsedNs = now
			om.cancelOrder(key.Symbol, slot.ClOrderID, key.PositionSide)
		}
	}
}

// OnExecutionReport dispatches report against the matching side book
// and, on a New or PartiallyFilled
// ack, (re-)registers the slot's Live expiry.
func (om *OrderManager) OnExecutionReport(report *state.ExecutionReport) {
	sb := om.layerBook.SideBook(report.Symbol, report.Side, report.PositionSide)
	now := om.clock.NowNanos()

	release := func(delta int64) {
		if delta >= 0 {
			om.reserved.AddReserved(fixedpoint.SideBuy, -delta)
		} else {
			om.reserved.AddReserved(fixedpoint.SideSell, delta)
		}
	}

	layer := om.state.Handle(report, sb, om.positions, release, now)

	switch report.OrdStatus {
	case state.OrdStatusNew:
		if layer < 0 {
			if l, ok := sb.NewIDToLayer[report.ClOrderID]; ok {
				layer = l
			}
		}
		if layer >= 0 {
			om.expiry.RegisterExpiry(report.Symbol, report.Side, report.PositionSide, layer, report.ClOrderID, reconciler.Live, now)
		}
		// Acknowledged: the venue has now seen this id, so a later bare
		// API error referencing it is a real rejection, not a routing
		// miss — but the fields are no longer needed to synthesize one.
		om.pending.Delete(report.ClOrderID)
	case state.OrdStatusPartiallyFilled:
		if layer >= 0 && sb.Slots[layer].State == reconciler.Live {
			om.expiry.RegisterExpiry(report.Symbol, report.Side, report.PositionSide, layer, report.ClOrderID, reconciler.Live, now)
		}
	case state.OrdStatusFilled, state.OrdStatusCanceled, state.OrdStatusExpired, state.OrdStatusRejected:
		om.pending.Delete(report.ClOrderID)
	}

	om.log.Debug("order updated",
		zap.Uint64("cl_order_id", uint64(report.ClOrderID)),
		zap.String("ord_status", report.OrdStatus.String()),
		zap.Int64("reserved_net", om.reserved.Net()))
}

// SynthesizeReject builds a Rejected execution report from the pending
// registry for a raw API error that doesn't echo the original order's
// fields, and forgets the pending entry. Returns false
// if id is unknown (already resolved, or never ours).
func SynthesizeReject(pending *PendingRequestRegistry, id fixedpoint.OrderId) (*state.ExecutionReport, bool) {
	req, ok := pending.Take(id)
	if !ok {
		return nil, false
	}
	return &state.ExecutionReport{
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		ClOrderID:    id,
		OrdStatus:    state.OrdStatusRejected,
		Price:        req.Price,
		LeavesQty:    req.Qty,
	}, true
}

// OnInstrumentInfo applies the venue's LOT_SIZE step size for this
// manager's ticker to the venue policy filter.
func (om *OrderManager) OnInstrumentInfo(info *decoder.ExchangeInfo, precision fixedpoint.PrecisionConfig) {
	if info == nil {
		return
	}
	for _, sym := range info.Symbols {
		if sym.Symbol != om.cfg.Ticker {
			continue
		}
		if step, err := fixedpoint.ParseQty(sym.StepSize, precision); err == nil && step > 0 {
			om.cfg.Venue.SetQtyIncrement(int64(step))
		}
		om.log.Info("updated qty increment from instrument info", zap.String("symbol", sym.Symbol), zap.String("step_size", sym.StepSize))
		return
	}
}

func (om *OrderManager) newOrder(ticker string, price fixedpoint.Price, side fixedpoint.Side, qty fixedpoint.Qty, id fixedpoint.OrderId, posSide fixedpoint.PositionSide) {
	req := Request{
		ReqType:      ReqNewOrder,
		ClOrderID:    id,
		Symbol:       ticker,
		Side:         side,
		PositionSide: posSide,
		Qty:          qty,
		Price:        price,
		OrdType:      OrderTypeLimit,
		TimeInForce:  TIFGoodTillCancel,
	}
	om.pending.Put(id, PendingRequest{
		Symbol: ticker, Side: side, PositionSide: posSide,
		Price: price, Qty: qty, OrdType: OrderTypeLimit, TimeInForce: TIFGoodTillCancel,
	})
	om.gateway.SendRequest(req)
	om.log.Info("sent new order", zap.Uint64("cl_order_id", uint64(id)), zap.String("symbol", ticker), zap.String("side", side.String()))
}

func (om *OrderManager) modifyOrder(ticker string, cancelNewID, newID, origID fixedpoint.OrderId, price fixedpoint.Price, side fixedpoint.Side, qty fixedpoint.Qty, posSide fixedpoint.PositionSide) {
	om.pending.Put(newID, PendingRequest{
		Symbol: ticker, Side: side, PositionSide: posSide,
		Price: price, Qty: qty, OrdType: OrderTypeLimit, TimeInForce: TIFGoodTillCancel,
	})
	if om.cfg.SupportsCancelAndReorder {
		req := Request{
			ReqType:          ReqCancelAndReorder,
			CancelNewOrderID: cancelNewID,
			ClOrderID:        newID,
			OrigClOrderID:    origID,
			Symbol:           ticker,
			Side:             side,
			PositionSide:     posSide,
			Qty:              qty,
			Price:            price,
			OrdType:          OrderTypeLimit,
			TimeInForce:      TIFGoodTillCancel,
		}
		om.gateway.SendRequest(req)
		om.log.Info("sent cancel-and-reorder", zap.Uint64("new_id", uint64(newID)), zap.Uint64("orig_id", uint64(origID)))
		return
	}
	req := Request{
		ReqType:       ReqModify,
		ClOrderID:     newID,
		OrigClOrderID: origID,
		Symbol:        ticker,
		Side:          side,
		PositionSide:  posSide,
		Qty:           qty,
		Price:         price,
		OrdType:       OrderTypeLimit,
		TimeInForce:   TIFGoodTillCancel,
	}
	om.gateway.SendRequest(req)
	om.log.Info("sent modify order", zap.Uint64("new_id", uint64(newID)), zap.Uint64("orig_id", uint64(origID)))
}

func (om *OrderManager) cancelOrder(ticker string, origID fixedpoint.OrderId, posSide fixedpoint.PositionSide) {
	req := Request{
		ReqType:         ReqCancel,
		ClOrderID:       origID,
		OrigClOrderID:   origID,
		Symbol:          ticker,
		PositionSide:    posSide,
		HasPositionSide: true,
	}
	om.gateway.SendRequest(req)
	om.log.Info("sent cancel", zap.Uint64("orig_id", uint64(origID)), zap.String("symbol", ticker))
}
