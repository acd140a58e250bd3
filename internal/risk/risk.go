package risk

import (
	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

// CheckResult is the pre-trade risk check's verdict.
type CheckResult int

const (
	Invalid CheckResult = iota
	OrderTooLarge
	PositionTooLarge
	PositionTooSmall
	LossTooLarge
	Allowed
)

func (r CheckResult) String() string {
	switch r {
	case OrderTooLarge:
		return "ORDER_TOO_LARGE"
	case PositionTooLarge:
		return "POSITION_TOO_LARGE"
	case PositionTooSmall:
		return "POSITION_TOO_SMALL"
	case LossTooLarge:
		return "LOSS_TOO_LARGE"
	case Allowed:
		return "ALLOWED"
	default:
		return "INVALID"
	}
}

// CheckPreTradeRisk evaluates one order-manager action's delta qty
// against the per-symbol limits. runningReserved is the signed
// reserved-inventory total already committed this reconciliation cycle
// (positive for buy-side reservations, negative for sell-side),
// seeded from the reserved-position tracker and updated by the caller
// after each Allowed verdict.
func CheckPreTradeRisk(cfg config.RiskConfig, pos *PositionInfo, side fixedpoint.Side, deltaQty fixedpoint.Qty, runningReserved int64) CheckResult {
	if deltaQty <= 0 {
		return Allowed
	}
	if int64(deltaQty) > cfg.MaxOrderQty {
		return OrderTooLarge
	}

	sign := int64(1)
	if side == fixedpoint.SideSell {
		sign = -1
	}
	projected := int64(pos.Position) + runningReserved + sign*int64(deltaQty)
	if projected > cfg.MaxPosition {
		return PositionTooLarge
	}
	if projected < cfg.MinPosition {
		return PositionTooSmall
	}

	if pos.LongRealPnl < 0 && -pos.LongRealPnl > cfg.MaxLossPerSide {
		return LossTooLarge
	}
	if pos.ShortRealPnl < 0 && -pos.ShortRealPnl > cfg.MaxLossPerSide {
		return LossTooLarge
	}

	return Allowed
}
