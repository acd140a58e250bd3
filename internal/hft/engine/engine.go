// Package engine implements the trade engine's single-threaded event
// loop: it drains the inbound market-data and execution-report SPSC
// queues in bounded
// batches, fans updates out to the order book and feature engine,
// forwards fills and acks to the order manager, and runs one
// reconciliation cycle per pass so expired orders are swept even when
// nothing new arrived.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/feature"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/hft/metrics"
	"github.com/abdoElHodaky/hft-core/internal/hft/queue"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/convert"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
	"github.com/abdoElHodaky/hft-core/internal/orders/book"
	"github.com/abdoElHodaky/hft-core/internal/orders/manager"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
	"github.com/abdoElHodaky/hft-core/internal/orders/state"
	"github.com/abdoElHodaky/hft-core/internal/risk"
)

// Strategy is the abstract signal/decision layer the trade engine
// drives on every book, trade, and execution-report update. Concrete
// strategies are out of scope; DesiredQuotes is what the
// engine asks for once per loop pass to feed the order manager.
type Strategy interface {
	OnOrderBookUpdated(ticker string, price fixedpoint.Price, side fixedpoint.Side, bbo book.BBO)
	OnTradeUpdated(ticker string, md *convert.MarketData, bbo book.BBO)
	OnOrderUpdated(report *state.ExecutionReport)
	DesiredQuotes(ticker string, bbo book.BBO, feat *feature.Engine) []reconciler.QuoteIntent
}

// NoopStrategy implements Strategy with no opinions: useful for wiring
// the pipeline end to end, or for a gateway-only deployment that just
// mirrors the book without quoting.
type NoopStrategy struct{}

func (NoopStrategy) OnOrderBookUpdated(string, fixedpoint.Price, fixedpoint.Side, book.BBO) {}
func (NoopStrategy) OnTradeUpdated(string, *convert.MarketData, book.BBO)                   {}
func (NoopStrategy) OnOrderUpdated(*state.ExecutionReport)                                  {}
func (NoopStrategy) DesiredQuotes(string, book.BBO, *feature.Engine) []reconciler.QuoteIntent {
	return nil
}

const (
	marketDataBatchLimit = 128
	execReportBatchLimit = 64
	idleMaxBackoff       = 2 * time.Millisecond
)

// Config carries the engine's fixed per-symbol wiring.
type Config struct {
	Ticker             string
	MarketDataCapacity int
	ExecReportCapacity int
}

// Engine owns the single-threaded reconciliation loop for one symbol.
// Every field below is touched exclusively from Run's goroutine except
// OnMarketDataUpdated/OnExecutionReportUpdated, which are the SPSC
// queues' producer-side entry points and may be called from a separate
// decoder/OE-read goroutine.
type Engine struct {
	cfg Config

	mdQueue *queue.SPSC[decoder.WireMessage]
	erQueue *queue.SPSC[*state.ExecutionReport]

	converter *convert.Converter
	book      *book.Book
	feature   *feature.Engine
	positions *risk.PositionKeeper
	manager   *manager.OrderManager
	strategy  Strategy

	clock   clock.Clock
	metrics *metrics.PipelineMetrics
	log     *zap.Logger

	running atomic.Bool
}

// New creates an Engine for one symbol. Every collaborator is
// constructed by the caller (cmd/hftd's fx graph) and handed in fully
// formed; the Engine itself does no allocation of its dependencies.
func New(
	cfg Config,
	converter *convert.Converter,
	bk *book.Book,
	feat *feature.Engine,
	positions *risk.PositionKeeper,
	om *manager.OrderManager,
	strategy Strategy,
	clk clock.Clock,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) *Engine {
	if strategy == nil {
		strategy = NoopStrategy{}
	}
	return &Engine{
		cfg:       cfg,
		mdQueue:   queue.NewSPSC[decoder.WireMessage](cfg.MarketDataCapacity),
		erQueue:   queue.NewSPSC[*state.ExecutionReport](cfg.ExecReportCapacity),
		converter: converter,
		book:      bk,
		feature:   feat,
		positions: positions,
		manager:   om,
		strategy:  strategy,
		clock:     clk,
		metrics:   m,
		log:       log,
	}
}

// OnMarketDataUpdated enqueues a decoded wire message for the engine
// thread to process. Called from the decoder goroutine; returns false
// if the queue is saturated (the caller logs and drops).
func (e *Engine) OnMarketDataUpdated(wm decoder.WireMessage) bool {
	ok := e.mdQueue.TryPush(wm) == nil
	if e.metrics != nil {
		e.metrics.MarketDataQueueDepth.Set(float64(e.mdQueue.Len()))
	}
	return ok
}

// OnExecutionReportUpdated enqueues a decoded execution report. Called
// from the OE-read goroutine.
func (e *Engine) OnExecutionReportUpdated(report *state.ExecutionReport) bool {
	ok := e.erQueue.TryPush(report) == nil
	if e.metrics != nil {
		e.metrics.ExecReportQueueDepth.Set(float64(e.erQueue.Len()))
	}
	return ok
}

// Stop asks Run to return at the next loop iteration.
func (e *Engine) Stop() { e.running.Store(false) }

// Run drains both queues in bounded batches until ctx is canceled or
// Stop is called, reconciling once per pass. Intended to be the body of
// a dedicated goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	idle := 0

	for e.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mdProcessed := e.drainMarketData()
		erProcessed := e.drainExecReports()
		e.reconcile()

		if mdProcessed == 0 && erProcessed == 0 {
			idle = e.backoff(idle)
		} else {
			idle = 0
		}
	}
}

// backoff escalates from a pure scheduler yield up to idleMaxBackoff of
// sleep the longer the loop finds nothing to do, and resets to zero the
// moment activity resumes.
func (e *Engine) backoff(idle int) int {
	idle++
	sleep := time.Duration(idle) * 10 * time.Microsecond
	if sleep > idleMaxBackoff {
		sleep = idleMaxBackoff
	}
	time.Sleep(sleep)
	return idle
}

func (e *Engine) drainMarketData() int {
	var stopwatch metrics.Stopwatch
	processed := 0

	for processed < marketDataBatchLimit {
		wm, err := e.mdQueue.TryPop()
		if err != nil {
			break
		}
		if e.metrics != nil {
			stopwatch = e.metrics.StartApply()
		}
		e.applyMarketUpdate(wm)
		if e.metrics != nil {
			stopwatch.Finish()
		}
		processed++
	}
	return processed
}

func (e *Engine) applyMarketUpdate(wm decoder.WireMessage) {
	mu := e.converter.Convert(wm)
	if mu == nil {
		return
	}
	defer e.converter.Release(mu)

	for _, ev := range mu.Entries {
		if ev == nil {
			continue
		}
		if err := e.book.OnUpdate(ev); err != nil {
			e.log.Error("order book update failed", zap.String("ticker", ev.Ticker), zap.Error(err))
			continue
		}

		bbo := e.book.BBO()
		if e.positions != nil {
			e.positions.UpdateBBO(ev.Ticker, bbo)
		}
		switch ev.Type {
		case convert.Trade:
			e.feature.OnTrade(ev.Price, ev.Qty, ev.Side, bbo)
			e.strategy.OnTradeUpdated(ev.Ticker, ev, bbo)
		case convert.BookTicker:
			e.feature.OnBookTicker(ev.Price, ev.Qty, ev.Side)
			e.feature.OnBookUpdate(bbo)
			e.strategy.OnOrderBookUpdated(ev.Ticker, ev.Price, ev.Side, bbo)
		case convert.Add, convert.Modify, convert.Cancel:
			e.feature.OnBookUpdate(bbo)
			e.strategy.OnOrderBookUpdated(ev.Ticker, ev.Price, ev.Side, bbo)
		case convert.Clear:
			// Book reset only; nothing meaningful to forward yet.
		}
	}
}

func (e *Engine) drainExecReports() int {
	processed := 0
	for processed < execReportBatchLimit {
		report, err := e.erQueue.TryPop()
		if err != nil {
			break
		}
		e.onOrderUpdated(report)
		processed++
	}
	return processed
}

func (e *Engine) onOrderUpdated(report *state.ExecutionReport) {
	e.strategy.OnOrderUpdated(report)
	e.manager.OnExecutionReport(report)
}

// reconcile asks the strategy for its current desired resting-order set
// and runs one order-manager apply cycle against it. Called once per
// loop pass regardless of whether anything new arrived, so TTL sweeps
// keep running during quiet periods.
func (e *Engine) reconcile() {
	bbo := e.book.BBO()
	intents := e.strategy.DesiredQuotes(e.cfg.Ticker, bbo, e.feature)
	e.manager.Apply(intents)
}
