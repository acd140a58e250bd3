package manager

import "github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"

// ReservedPositionTracker is the pair of scaled int64 counters
// `{long_reserved, short_reserved}` tracking outstanding qty committed
// to open orders but not yet confirmed filled or canceled, updated on
// submit/fill/cancel.
type ReservedPositionTracker struct {
	longReserved  int64
	shortReserved int64
}

// AddReserved adds delta (unsigned) to the counter matching side.
func (t *ReservedPositionTracker) AddReserved(side fixedpoint.Side, delta int64) {
	switch side {
	case fixedpoint.SideBuy:
		t.longReserved += delta
	case fixedpoint.SideSell:
		t.shortReserved += delta
	}
}

// Long returns the outstanding long-side reserved qty.
func (t *ReservedPositionTracker) Long() int64 { return t.longReserved }

// Short returns the outstanding short-side reserved qty.
func (t *ReservedPositionTracker) Short() int64 { return t.shortReserved }

// Net returns long minus short — the signed running total the risk
// filter seeds its per-cycle projection from.
func (t *ReservedPositionTracker) Net() int64 { return t.longReserved - t.shortReserved }
