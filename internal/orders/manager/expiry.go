package manager

import (
	"container/heap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
)

// ExpiryKey identifies one slot's registered TTL deadline.
type ExpiryKey struct {
	ExpireTs     int64
	Symbol       string
	Side         fixedpoint.Side
	PositionSide fixedpoint.PositionSide
	Layer        int
	ClOrderID    fixedpoint.OrderId
}

// expiryHeap is a container/heap min-heap ordered on ExpireTs.
type expiryHeap []ExpiryKey

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].ExpireTs < h[j].ExpireTs }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(ExpiryKey)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ExpiryManager is the one priority queue shared across every
// (symbol, side, position_side, layer) tracked by the order manager.
type ExpiryManager struct {
	pq                 expiryHeap
	ttlReservedNs      int64
	ttlLiveNs          int64
}

// NewExpiryManager creates an ExpiryManager with the given TTLs.
func NewExpiryManager(ttlReservedNs, ttlLiveNs int64) *ExpiryManager {
	return &ExpiryManager{ttlReservedNs: ttlReservedNs, ttlLiveNs: ttlLiveNs}
}

// RegisterExpiry pushes a deadline for (symbol, side, posSide, layer,
// id), choosing TTLReserved for Reserved/CancelReserved states and
// TTLLive otherwise.
func (m *ExpiryManager) RegisterExpiry(symbol string, side fixedpoint.Side, posSide fixedpoint.PositionSide, layer int, id fixedpoint.OrderId, state reconciler.SlotState, nowNs int64) {
	ttl := m.ttlLiveNs
	if state == reconciler.Reserved || state == reconciler.CancelReserved {
		ttl = m.ttlReservedNs
	}
	heap.Push(&m.pq, ExpiryKey{
		ExpireTs:     nowNs + ttl,
		Symbol:       symbol,
		Side:         side,
		PositionSide: posSide,
		Layer:        layer,
		ClOrderID:    id,
	})
}

// SweepExpired pops and returns every entry whose deadline has passed.
func (m *ExpiryManager) SweepExpired(nowNs int64) []ExpiryKey {
	var expired []ExpiryKey
	for m.pq.Len() > 0 && m.pq[0].ExpireTs <= nowNs {
		expired = append(expired, heap.Pop(&m.pq).(ExpiryKey))
	}
	return expired
}

// ConfigureTTL updates the live TTLs.
func (m *ExpiryManager) ConfigureTTL(ttlReservedNs, ttlLiveNs int64) {
	m.ttlReservedNs, m.ttlLiveNs = ttlReservedNs, ttlLiveNs
}

// PendingCount reports how many entries are still queued.
func (m *ExpiryManager) PendingCount() int { return m.pq.Len() }
