// Package sequencer owns the per-symbol market-data state machine:
// buffering diffs while a snapshot is in flight, validating continuity
// once it lands, and detecting gaps once running. The spot and
// perpetual-futures venues check continuity differently (see
// validateFirstDiffSpot / validateFirstDiffPerp below) and that split
// is kept explicit rather than unified behind one generic rule.
package sequencer

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	hfterrors "github.com/abdoElHodaky/hft-core/internal/common/errors"
	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/hft/metrics"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
)

// State is the sequencer's per-symbol lifecycle stage.
type State int

const (
	AwaitingSnapshot State = iota
	Buffering
	ApplyingSnapshot
	Running
)

func (s State) String() string {
	switch s {
	case AwaitingSnapshot:
		return "AwaitingSnapshot"
	case Buffering:
		return "Buffering"
	case ApplyingSnapshot:
		return "ApplyingSnapshot"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// Config carries the sequencer's retry/backoff knobs.
type Config struct {
	MarketKind        config.MarketKind
	MaxRetries        int
	MaxBufferedEvents int
	RetryBackoff      time.Duration

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.PipelineMetrics
}

// SessionFailedFunc is invoked when the sequencer exhausts its retries;
// the caller decides whether that means tearing down the connection,
// tripping a circuit breaker, or exiting the process.
type SessionFailedFunc func(reason string)

// Sequencer drives one symbol's market-data session through
// AwaitingSnapshot -> Buffering -> ApplyingSnapshot -> Running, handing
// validated events to onMarketData as they become safe to forward.
type Sequencer struct {
	cfg    Config
	log    *zap.Logger
	onData func(decoder.WireMessage)
	onFail SessionFailedFunc

	state            State
	updateIndex      int64
	buffered         []decoder.DepthDiff
	firstBufferedSeq int64
	breaker          *gobreaker.CircuitBreaker
}

// New creates a Sequencer for one symbol/venue-kind combination. A
// snapshot-recovery failure trips the circuit breaker open after
// cfg.MaxRetries consecutive attempts; once open, further recovery
// attempts are refused immediately and onFail is invoked instead of
// retrying forever, giving the caller a breaker state it can observe
// and react to.
func New(cfg Config, log *zap.Logger, onData func(decoder.WireMessage), onFail SessionFailedFunc) *Sequencer {
	s := &Sequencer{
		cfg:    cfg,
		log:    log,
		onData: onData,
		onFail: onFail,
		state:  AwaitingSnapshot,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sequencer-recovery",
		MaxRequests: 1,
		Timeout:     cfg.RetryBackoff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.MaxRetries
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("sequencer recovery breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return s
}

// State returns the sequencer's current lifecycle stage.
func (s *Sequencer) State() State { return s.state }

// UpdateIndex returns the last update id the sequencer has validated
// and forwarded.
func (s *Sequencer) UpdateIndex() int64 { return s.updateIndex }

// OnSubscribed transitions to Buffering ahead of a snapshot request.
func (s *Sequencer) OnSubscribed() {
	s.state = Buffering
	s.buffered = s.buffered[:0]
	s.firstBufferedSeq = 0
}

// OnDepthDiff handles one incoming diff according to the current state:
// buffered while waiting on a snapshot, forwarded immediately with a
// continuity check while Running, dropped with a log while
// AwaitingSnapshot (no subscription active yet). requestSnapshot is the
// transport's snapshot-refetch hook, invoked when a continuity failure
// forces gap recovery.
func (s *Sequencer) OnDepthDiff(diff decoder.DepthDiff, requestSnapshot func()) {
	switch s.state {
	case Buffering, ApplyingSnapshot:
		s.bufferDiff(diff)
	case Running:
		s.applyRunningDiff(diff, requestSnapshot)
	case AwaitingSnapshot:
		s.log.Warn("dropping depth diff before subscription", zap.String("symbol", diff.Symbol))
	}
}

// lowerBound returns the update-id field a diff's venue uses to mark
// the start of its range: prev_end_seq on perpetual futures (first_seq
// is always zero there), first_seq on spot.
func (s *Sequencer) lowerBound(diff decoder.DepthDiff) int64 {
	if s.cfg.MarketKind == config.MarketKindPerp {
		return diff.PrevBookUpdateID
	}
	return diff.FirstBookUpdateID
}

func (s *Sequencer) bufferDiff(diff decoder.DepthDiff) {
	if len(s.buffered) == 0 {
		s.firstBufferedSeq = s.lowerBound(diff)
	}
	if len(s.buffered) >= s.cfg.MaxBufferedEvents {
		s.buffered = s.buffered[1:]
		if len(s.buffered) > 0 {
			s.firstBufferedSeq = s.lowerBound(s.buffered[0])
		}
		s.log.Warn("buffered event cap reached, dropping oldest",
			zap.Int("cap", s.cfg.MaxBufferedEvents))
	}
	s.buffered = append(s.buffered, diff)
}

// OnSnapshot handles a depth-snapshot arrival: rejects it as too old if
// it predates the buffer, otherwise forwards it and drains the buffer.
func (s *Sequencer) OnSnapshot(snap decoder.DepthSnapshot, requestSnapshot func()) {
	if s.state == Buffering && len(s.buffered) > 0 && snap.LastUpdateID < s.firstBufferedSeq {
		wrapped := hfterrors.New(hfterrors.ErrSnapshotTooOld, "sequencer",
			"snapshot end %d predates first buffered seq %d, refetching",
			snap.LastUpdateID, s.firstBufferedSeq)
		s.log.Warn("snapshot too old", zap.Error(wrapped))
		s.retryOrFail(hfterrors.ErrSnapshotTooOld, "snapshot too old", requestSnapshot)
		return
	}

	s.state = ApplyingSnapshot
	s.updateIndex = snap.LastUpdateID
	s.forwardSnapshot(snap)

	if !s.drainBuffered(requestSnapshot) {
		return
	}

	s.state = Running
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SnapshotRecoveries.Inc()
	}
	s.breaker.Execute(func() (interface{}, error) { return nil, nil })
}

func (s *Sequencer) forwardSnapshot(snap decoder.DepthSnapshot) {
	wm := snap
	s.onData(wrapSnapshot(&wm))
}

// drainBuffered validates and forwards every buffered diff in order.
// Returns false if a gap was found (gap recovery has already been
// kicked off and the caller must not continue to Running).
func (s *Sequencer) drainBuffered(requestSnapshot func()) bool {
	first := true
	for _, diff := range s.buffered {
		var valid bool
		if first {
			valid = s.validateFirstDiff(diff)
			first = false
		} else {
			valid = s.validateContinuation(diff)
		}

		if !valid {
			wrapped := hfterrors.New(hfterrors.ErrSequenceGap, "sequencer",
				"buffered event gap at update_index %d (diff first %d, last %d, prev %d)",
				s.updateIndex, diff.FirstBookUpdateID, diff.LastBookUpdateID, diff.PrevBookUpdateID)
			s.log.Error("buffered event gap detected", zap.Error(wrapped))
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.SequenceGaps.Inc()
			}
			s.buffered = s.buffered[:0]
			s.firstBufferedSeq = 0
			s.state = Buffering
			s.retryOrFail(hfterrors.ErrSequenceGap, "gap while draining buffer", requestSnapshot)
			return false
		}

		s.updateIndex = diff.LastBookUpdateID
		d := diff
		s.onData(wrapDiff(&d))
	}
	s.buffered = s.buffered[:0]
	return true
}

// applyRunningDiff checks one live diff's continuity against
// updateIndex, forwarding on success or starting gap recovery on
// failure: clear state, return to Buffering, and re-request a snapshot
// (bounded by the recovery breaker).
func (s *Sequencer) applyRunningDiff(diff decoder.DepthDiff, requestSnapshot func()) {
	if !s.validateContinuation(diff) {
		wrapped := hfterrors.New(hfterrors.ErrSequenceGap, "sequencer",
			"sequence gap at update_index %d (diff first %d, prev %d), entering recovery",
			s.updateIndex, diff.FirstBookUpdateID, diff.PrevBookUpdateID)
		s.log.Error("sequence gap detected", zap.Error(wrapped))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SequenceGaps.Inc()
		}
		s.state = Buffering
		s.buffered = s.buffered[:0]
		s.firstBufferedSeq = 0
		s.retryOrFail(hfterrors.ErrSequenceGap, "sequence gap while running", requestSnapshot)
		return
	}
	s.updateIndex = diff.LastBookUpdateID
	d := diff
	s.onData(wrapDiff(&d))
}

// retryOrFail records one recovery failure against the circuit breaker
// and either retries (breaker still closed/half-open) or gives up
// (breaker tripped open after cfg.MaxRetries consecutive failures).
func (s *Sequencer) retryOrFail(code hfterrors.ErrorCode, reason string, requestSnapshot func()) {
	cause := hfterrors.New(code, "sequencer", "%s", reason)
	s.breaker.Execute(func() (interface{}, error) {
		return nil, cause
	})
	if s.breaker.State() == gobreaker.StateOpen {
		wrapped := hfterrors.Wrap(cause, hfterrors.ErrRecoveryExhausted, "sequencer", "recovery circuit breaker open")
		s.log.Error("recovery exhausted", zap.Error(wrapped))
		s.onFail(wrapped.Error())
		return
	}
	time.Sleep(s.cfg.RetryBackoff)
	requestSnapshot()
}

// validateFirstDiff applies the venue-specific first-after-snapshot
// continuity rule.
func (s *Sequencer) validateFirstDiff(diff decoder.DepthDiff) bool {
	if s.cfg.MarketKind == config.MarketKindPerp {
		return validateFirstDiffPerp(diff, s.updateIndex)
	}
	return validateFirstDiffSpot(diff, s.updateIndex)
}

// validateContinuation applies the venue-specific steady-state
// continuity rule.
func (s *Sequencer) validateContinuation(diff decoder.DepthDiff) bool {
	if s.cfg.MarketKind == config.MarketKindPerp {
		return validateContinuationPerp(diff, s.updateIndex)
	}
	return validateContinuationSpot(diff, s.updateIndex)
}

// validateFirstDiffSpot implements the spot venue's rule: the first
// buffered diff after a snapshot must straddle the snapshot's update
// id, i.e. start_seq <= update_index+1 <= end_seq. Kept as its own
// function rather than folded into the perp variant: the two venues
// encode continuity in structurally different fields (spot has no
// prev_end_seq at all) and a unified "clever" rule would obscure that.
func validateFirstDiffSpot(diff decoder.DepthDiff, updateIndex int64) bool {
	return diff.FirstBookUpdateID <= updateIndex+1 && updateIndex+1 <= diff.LastBookUpdateID
}

// validateContinuationSpot implements the spot venue's steady-state
// rule: each diff's start_seq must pick up exactly where the last one
// ended.
func validateContinuationSpot(diff decoder.DepthDiff, updateIndex int64) bool {
	return diff.FirstBookUpdateID == updateIndex+1
}

// validateFirstDiffPerp implements the perpetual-futures venue's rule:
// the first buffered diff must have a prev_end_seq at or before the
// snapshot's update id, with its own end_seq at or after it.
func validateFirstDiffPerp(diff decoder.DepthDiff, updateIndex int64) bool {
	return diff.PrevBookUpdateID <= updateIndex && diff.LastBookUpdateID >= updateIndex
}

// validateContinuationPerp implements the perpetual-futures venue's
// steady-state rule: each diff's prev_end_seq must equal the last
// forwarded diff's end_seq exactly.
func validateContinuationPerp(diff decoder.DepthDiff, updateIndex int64) bool {
	return diff.PrevBookUpdateID == updateIndex
}

// OnMessage dispatches one decoded wire message to the sequencer's
// per-kind handling. Depth snapshots and diffs go through the
// buffer/continuity state machine; trades and best-bid/ask updates are
// not part of the depth invariant and are forwarded to the trade
// engine immediately regardless of state.
// Exchange-info and API-response control messages, and anything the
// decoder could not classify, are not part of the depth stream at all
// and are dropped here (a caller wanting instrument filters or order
// acks reads those wire messages directly, upstream of the sequencer).
func (s *Sequencer) OnMessage(wm decoder.WireMessage, requestSnapshot func()) {
	switch wm.Kind() {
	case decoder.KindDepthSnapshot:
		if snap, ok := wm.DepthSnapshot(); ok {
			s.OnSnapshot(*snap, requestSnapshot)
		}
	case decoder.KindDepthDiff:
		if diff, ok := wm.DepthDiff(); ok {
			s.OnDepthDiff(*diff, requestSnapshot)
		}
	case decoder.KindTrades, decoder.KindBestBidAsk:
		s.onData(wm)
	default:
		s.log.Debug("dropping non-depth wire message ahead of sequencer", zap.Int("kind", int(wm.Kind())))
	}
}

func wrapDiff(d *decoder.DepthDiff) decoder.WireMessage {
	return decoder.NewDepthDiffMessage(d)
}

func wrapSnapshot(s *decoder.DepthSnapshot) decoder.WireMessage {
	return decoder.NewDepthSnapshotMessage(s)
}
