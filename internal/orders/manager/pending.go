package manager

import (
	"sync"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

// PendingRequest is the request-field snapshot the registry keeps per
// outstanding cl_order_id, so a
// Rejected execution report can be synthesized even when the venue's
// error envelope doesn't echo the original order's fields.
type PendingRequest struct {
	Symbol       string
	Side         fixedpoint.Side
	PositionSide fixedpoint.PositionSide
	Price        fixedpoint.Price
	Qty          fixedpoint.Qty
	OrdType      OrderType
	TimeInForce  TimeInForce
}

// PendingRequestRegistry maps outstanding client order ids to their
// request fields: the trade-engine thread writes one entry per new/replace/cancel it
// emits; the OE-read thread reads it (and deletes on a terminal report)
// when a raw API error needs a compensating synthetic reject. The
// critical section is always a single map slot read/write/delete, so a
// plain mutex-guarded map is enough without reaching for a
// third-party concurrent-map library.
type PendingRequestRegistry struct {
	mu      sync.RWMutex
	entries map[fixedpoint.OrderId]PendingRequest
}

// NewPendingRequestRegistry creates an empty registry.
func NewPendingRequestRegistry() *PendingRequestRegistry {
	return &PendingRequestRegistry{entries: make(map[fixedpoint.OrderId]PendingRequest)}
}

// Put records (or overwrites) the pending request fields for id.
func (r *PendingRequestRegistry) Put(id fixedpoint.OrderId, req PendingRequest) {
	r.mu.Lock()
	r.entries[id] = req
	r.mu.Unlock()
}

// Delete erases id's entry once its fate (ack, fill, terminal reject)
// is known and no longer needs a synthetic reject.
func (r *PendingRequestRegistry) Delete(id fixedpoint.OrderId) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Take looks up and removes id's entry in one critical section — the
// OE-read thread's synthesize-then-forget access pattern.
func (r *PendingRequestRegistry) Take(id fixedpoint.OrderId) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return req, ok
}

// Len reports the number of outstanding entries (diagnostics only).
func (r *PendingRequestRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
