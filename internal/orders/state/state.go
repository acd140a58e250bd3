// Package state dispatches order-gateway execution reports against the
// reconciler's slot book and the position keeper.
package state

import (
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
	"github.com/abdoElHodaky/hft-core/internal/risk"
)

// OrdStatus is the execution report's lifecycle status.
type OrdStatus int

const (
	OrdStatusNew OrdStatus = iota
	OrdStatusPartiallyFilled
	OrdStatusFilled
	OrdStatusCanceled
	OrdStatusRejected
	OrdStatusPendingNew
	OrdStatusPendingCancel
	OrdStatusExpired
)

func (s OrdStatus) String() string {
	switch s {
	case OrdStatusNew:
		return "New"
	case OrdStatusPartiallyFilled:
		return "PartiallyFilled"
	case OrdStatusFilled:
		return "Filled"
	case OrdStatusCanceled:
		return "Canceled"
	case OrdStatusRejected:
		return "Rejected"
	case OrdStatusPendingNew:
		return "PendingNew"
	case OrdStatusPendingCancel:
		return "PendingCancel"
	case OrdStatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// OrdStatusFromString maps the venue's order-status token to its
// OrdStatus, reporting false for a token the dispatch table has no
// transition for.
func OrdStatusFromString(s string) (OrdStatus, bool) {
	switch s {
	case "NEW":
		return OrdStatusNew, true
	case "PARTIALLY_FILLED":
		return OrdStatusPartiallyFilled, true
	case "FILLED":
		return OrdStatusFilled, true
	case "CANCELED":
		return OrdStatusCanceled, true
	case "REJECTED":
		return OrdStatusRejected, true
	case "PENDING_NEW":
		return OrdStatusPendingNew, true
	case "PENDING_CANCEL":
		return OrdStatusPendingCancel, true
	case "EXPIRED":
		return OrdStatusExpired, true
	default:
		return OrdStatusNew, false
	}
}

// ExecutionReport is one order-gateway execution report, allocated on
// decode and routed through the trade engine.
type ExecutionReport struct {
	Symbol            string
	Side              fixedpoint.Side
	PositionSide      fixedpoint.PositionSide
	ClOrderID         fixedpoint.OrderId
	OrigClOrderID     fixedpoint.OrderId
	OrdStatus         OrdStatus
	Price             fixedpoint.Price
	LastFilledPrice   fixedpoint.Price
	LastFilledQty     fixedpoint.Qty
	LeavesQty         fixedpoint.Qty
}

// Manager dispatches execution reports onto a reconciler.SideBook and
// forwards fills to a risk.PositionKeeper. It holds no state of its
// own: the slot book and position keeper are owned by the caller
// (typically manager.OrderManager), so a Manager value can be reused
// across every symbol.
type Manager struct {
	log *zap.Logger
}

// New creates a Manager.
func New(log *zap.Logger) *Manager {
	return &Manager{log: log}
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

// Handle dispatches report against sb by ord_status and
// forwards fills to positions. release is called with the same
// signed (sideSign × qty) delta that was added to the reserved
// tracker when the order was placed or replaced; the tracker
// subtracts it. It reports the slot's layer index, or -1 if the
// report's client order id could not be resolved to a layer.
func (m *Manager) Handle(report *ExecutionReport, sb *reconciler.SideBook, positions *risk.PositionKeeper, release func(delta int64), now int64) int {
	layer := reconciler.FindLayerByID(sb, report.ClOrderID)
	if layer < 0 {
		layer = reconciler.FindLayerByID(sb, report.OrigClOrderID)
	}
	if layer < 0 {
		if l, ok := sb.NewIDToLayer[report.ClOrderID]; ok {
			layer = l
		}
	}

	switch report.OrdStatus {
	case OrdStatusNew:
		if layer < 0 {
			return -1
		}
		slot := &sb.Slots[layer]
		slot.State = reconciler.Live
		slot.LastUsedNs = now
		delete(sb.NewIDToLayer, report.ClOrderID)
	case OrdStatusPartiallyFilled:
		if layer < 0 {
			return -1
		}
		slot := &sb.Slots[layer]
		slot.State = reconciler.Live
		slot.LastUsedNs = now
		if positions != nil && report.LastFilledQty > 0 {
			positions.AddFill(report.Symbol, report.Side, report.LastFilledPrice, report.LastFilledQty)
		}
	case OrdStatusFilled:
		if positions != nil && report.LastFilledQty > 0 {
			positions.AddFill(report.Symbol, report.Side, report.LastFilledPrice, report.LastFilledQty)
		}
		if layer >= 0 {
			slot := &sb.Slots[layer]
			release(sideSign(report.Side) * int64(slot.Qty))
			slot.State = reconciler.Dead
			slot.LastUsedNs = now
		}
	case OrdStatusCanceled, OrdStatusExpired:
		if layer < 0 {
			return -1
		}
		slot := &sb.Slots[layer]
		if sb.PendingReplace[layer] != nil {
			// The canceled leg of a replace: the slot already carries
			// the new order's id and qty, so the layer stays — only the
			// stale pending-replace snapshot is cleared. The reserved
			// tracker was adjusted by the qty delta at replace time, so
			// there is nothing further to release here. The new order's
			// own fate arrives as a separate New/Filled/Rejected report.
			sb.PendingReplace[layer] = nil
		} else if slot.ClOrderID == report.ClOrderID || slot.ClOrderID == report.OrigClOrderID {
			release(sideSign(report.Side) * int64(slot.Qty))
			slot.State = reconciler.Dead
			slot.LastUsedNs = now
		}
	case OrdStatusRejected:
		if layer < 0 {
			return -1
		}
		slot := &sb.Slots[layer]
		pr := sb.PendingReplace[layer]
		attempted := int64(slot.Qty)
		if pr != nil {
			attempted -= int64(pr.OldQty)
			sb.LayerTicks[layer] = pr.OldTick
			slot.Price = pr.OldPrice
			slot.Qty = pr.OldQty
			slot.ClOrderID = pr.OldClOrderID
			slot.State = reconciler.Live
			sb.PendingReplace[layer] = nil
		} else {
			slot.State = reconciler.Dead
		}
		slot.LastUsedNs = now
		release(sideSign(report.Side) * attempted)
	case OrdStatusPendingNew, OrdStatusPendingCancel:
		// No slot transition; the caller logs.
	}

	return layer
}
