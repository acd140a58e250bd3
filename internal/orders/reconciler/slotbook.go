package reconciler

import (
	"math"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

// SlotsPerSide is the fixed number of simultaneous resting orders the
// slot book tracks per (ticker, side, position_side).
const SlotsPerSide = 8

// TicksInvalid marks a layer with no assigned tick.
const TicksInvalid int64 = -1

// SlotState is one slot's lifecycle stage.
type SlotState int

const (
	Invalid SlotState = iota
	Reserved
	Live
	CancelReserved
	Dead
)

func (s SlotState) String() string {
	switch s {
	case Reserved:
		return "Reserved"
	case Live:
		return "Live"
	case CancelReserved:
		return "CancelReserved"
	case Dead:
		return "Dead"
	default:
		return "Invalid"
	}
}

// Slot is one resting (or about-to-rest) order.
type Slot struct {
	State      SlotState
	Price      fixedpoint.Price
	Qty        fixedpoint.Qty
	LastUsedNs int64
	ClOrderID  fixedpoint.OrderId
}

// PendingReplace snapshots a slot's pre-replace price/qty/id so a
// venue Reject can roll it back.
type PendingReplace struct {
	OldPrice     fixedpoint.Price
	OldTick      int64
	OldQty       fixedpoint.Qty
	OldClOrderID fixedpoint.OrderId
}

// SideBook is the slot array for one (ticker, side, position_side).
type SideBook struct {
	Slots          [SlotsPerSide]Slot
	LayerTicks     [SlotsPerSide]int64
	OrigIDToLayer  map[fixedpoint.OrderId]int
	NewIDToLayer   map[fixedpoint.OrderId]int
	PendingReplace [SlotsPerSide]*PendingReplace
	LastSendNs     int64
}

func newSideBook() *SideBook {
	sb := &SideBook{
		OrigIDToLayer: make(map[fixedpoint.OrderId]int),
		NewIDToLayer:  make(map[fixedpoint.OrderId]int),
	}
	for i := range sb.LayerTicks {
		sb.LayerTicks[i] = TicksInvalid
	}
	return sb
}

// sideKey identifies one (ticker, side, position_side) bucket.
type sideKey struct {
	ticker string
	side   fixedpoint.Side
	pos    fixedpoint.PositionSide
}

// LayerBook owns every symbol's per-side-per-position-side SideBook.
type LayerBook struct {
	books map[sideKey]*SideBook
}

// NewLayerBook creates an empty LayerBook.
func NewLayerBook() *LayerBook {
	return &LayerBook{books: make(map[sideKey]*SideBook)}
}

// SideBook returns the SideBook for (ticker, side, posSide), creating
// it on first use.
func (lb *LayerBook) SideBook(ticker string, side fixedpoint.Side, posSide fixedpoint.PositionSide) *SideBook {
	k := sideKey{ticker, side, posSide}
	sb, ok := lb.books[k]
	if !ok {
		sb = newSideBook()
		lb.books[k] = sb
	}
	return sb
}

// FindLayerByID returns the layer index of the slot currently holding
// id, or -1 if none does.
func FindLayerByID(sb *SideBook, id fixedpoint.OrderId) int {
	if id == fixedpoint.InvalidOrderId {
		return -1
	}
	for i, s := range sb.Slots {
		if s.ClOrderID == id {
			return i
		}
	}
	if l, ok := sb.OrigIDToLayer[id]; ok {
		return l
	}
	return -1
}

// planLayer assigns an intent at the given tick to a layer: a layer
// already resting at that tick wins, then the first free (Invalid or
// Dead) layer, then the oldest-used Live layer as a replace victim.
func planLayer(sb *SideBook, tick int64) (layer int, victim *int) {
	for i, t := range sb.LayerTicks {
		if t == tick && sb.Slots[i].State != Invalid && sb.Slots[i].State != Dead {
			return i, nil
		}
	}
	for i, s := range sb.Slots {
		if s.State == Invalid || s.State == Dead {
			return i, nil
		}
	}
	oldestIdx, oldestTime := -1, int64(math.MaxInt64)
	for i, s := range sb.Slots {
		if s.State == Live && s.LastUsedNs < oldestTime {
			oldestTime, oldestIdx = s.LastUsedNs, i
		}
	}
	if oldestIdx == -1 {
		return 0, nil
	}
	v := oldestIdx
	return oldestIdx, &v
}
