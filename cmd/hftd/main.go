// Command hftd wires one symbol's latency-critical pipeline end to
// end: config load, clock, pools, decoders, sequencer, order book,
// feature engine, position keeper, quote reconciler, order manager,
// and the trade-engine event loop — then runs it until signaled.
// Market-data and order-entry transport are out of scope;
// this binary exposes the attachment points (Engine.OnMarketDataUpdated,
// Engine.OnExecutionReportUpdated, the Gateway interface) a transport
// layer would drive, and logs in place of one for now.
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/common"
	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/hft/clock"
	"github.com/abdoElHodaky/hft-core/internal/hft/engine"
	"github.com/abdoElHodaky/hft-core/internal/hft/feature"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
	"github.com/abdoElHodaky/hft-core/internal/hft/metrics"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/convert"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/sequencer"
	"github.com/abdoElHodaky/hft-core/internal/orders/book"
	"github.com/abdoElHodaky/hft-core/internal/orders/encode"
	"github.com/abdoElHodaky/hft-core/internal/orders/manager"
	"github.com/abdoElHodaky/hft-core/internal/orders/reconciler"
	"github.com/abdoElHodaky/hft-core/internal/orders/state"
	"github.com/abdoElHodaky/hft-core/internal/risk"
)

var configPath = flag.String("config", "config.yaml", "path to the HFT pipeline config file")

func main() {
	flag.Parse()

	app := fx.New(
		fx.Provide(
			newConfigManager,
			newLogger,
			newPipelineMetrics,
			newClock,
			newConverter,
			newOrderBook,
			newFeatureEngine,
			newPositionKeeper,
			newGateway,
			newOrderManager,
			newEngine,
			newSequencer,
			newMDIngest,
			newOEIngest,
		),
		fx.Invoke(runEngine),
	)

	app.Run()
}

func newConfigManager() (*config.HFTConfigManager, error) {
	return config.NewHFTConfigManager(*configPath, envOrDefault())
}

func envOrDefault() string {
	if e := os.Getenv("HFT_ENV"); e != "" {
		return e
	}
	return "development"
}

func newLogger(cfgMgr *config.HFTConfigManager) (*zap.Logger, error) {
	return common.NewLogger(cfgMgr.GetConfig().Environment)
}

func newPipelineMetrics(cfgMgr *config.HFTConfigManager) *metrics.PipelineMetrics {
	if !cfgMgr.GetConfig().Monitoring.EnablePrometheus {
		return nil
	}
	return metrics.NewPipelineMetrics()
}

func newClock() clock.Clock {
	return clock.NewSystemClock(0)
}

func newOrderBook(cfgMgr *config.HFTConfigManager, log *zap.Logger) *book.Book {
	cfg := cfgMgr.GetConfig()
	grid := book.NewGrid(cfg.Book.MinPriceInt, cfg.Book.MaxPriceInt)
	// Both side ladders draw from one bucket pool, so size it for a
	// fully populated book on each side.
	return book.New(cfg.Symbol, grid, 2*grid.BucketCount, log)
}

func newFeatureEngine(log *zap.Logger) *feature.Engine {
	return feature.NewEngine(64, log)
}

func newConverter(cfgMgr *config.HFTConfigManager, log *zap.Logger) *convert.Converter {
	return convert.NewConverter(cfgMgr.GetConfig().Pools.Events, log)
}

func newPositionKeeper(log *zap.Logger) *risk.PositionKeeper {
	return risk.NewPositionKeeper(log)
}

// loggingGateway stands in for the out-of-scope OE-write transport: it
// encodes every outbound request and logs the wire bytes a real
// transport would write to the socket.
type loggingGateway struct {
	enc *encode.Encoder
	log *zap.Logger
}

func newGateway(clk clock.Clock, log *zap.Logger) manager.Gateway {
	precision := fixedpoint.DefaultPrecision()
	enc := encode.New(encode.Precision{
		Price: precision,
		Qty:   precision,
	}, func() int64 { return clk.NowNanos() / 1_000_000 })
	return &loggingGateway{enc: enc, log: log.Named("oe-gateway")}
}

func (g *loggingGateway) SendRequest(req manager.Request) {
	payload, err := g.enc.Encode(req)
	if err != nil {
		g.log.Error("failed to encode order request", zap.Error(err))
		return
	}
	g.log.Info("order request ready for transport",
		zap.Int("req_type", int(req.ReqType)),
		zap.String("symbol", req.Symbol),
		zap.ByteString("payload", payload))
}

func newOrderManager(
	cfgMgr *config.HFTConfigManager,
	clk clock.Clock,
	gw manager.Gateway,
	positions *risk.PositionKeeper,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) *manager.OrderManager {
	cfg := cfgMgr.GetConfig()

	venue := reconciler.NewVenuePolicy(
		cfg.Venue.MinNotional,
		fixedpoint.Qty(cfg.Venue.MinQty),
		fixedpoint.Qty(cfg.Venue.MaxQty),
		int64(cfg.Venue.MinTimeGap),
		cfg.Venue.QtyStep,
	)

	// The book's grid already carries prices as raw tick indices (see
	// orders/book.Grid), so the reconciler's tick converter is the
	// identity map. cfg.Book.TickMultiplier is not read here or by the
	// grid.
	omCfg := manager.Config{
		Ticker:                   cfg.Symbol,
		TickConv:                 reconciler.NewTickConverter(1, 1),
		MinReplaceQtyDelta:       fixedpoint.Qty(1),
		MinReplaceTickDelta:      1,
		Venue:                    venue,
		Risk:                     cfg.Risk,
		TTLReservedNs:            int64(cfg.Expiry.TTLReserved),
		TTLLiveNs:                int64(cfg.Expiry.TTLLive),
		SupportsCancelAndReorder: cfg.Venue.SupportsCancelAndReorder,
	}
	return manager.New(omCfg, clk, gw, positions, m, log.Named("order-manager"))
}

// newSequencer wires the market-data sequencer ahead of the engine's
// inbound queue: a future MD-read transport decodes a frame and calls
// Sequencer.OnMessage, which runs the snapshot/diff continuity state
// machine before anything reaches Engine.OnMarketDataUpdated.
// An unrecoverable session failure exits the process with a non-zero
// status.
func newSequencer(cfgMgr *config.HFTConfigManager, e *engine.Engine, m *metrics.PipelineMetrics, log *zap.Logger) *sequencer.Sequencer {
	cfg := cfgMgr.GetConfig()
	seqLog := log.Named("sequencer")
	return sequencer.New(sequencer.Config{
		MarketKind:        cfg.Venue.MarketKind,
		MaxRetries:        cfg.Sequencer.MaxRetries,
		MaxBufferedEvents: cfg.Sequencer.MaxBufferedEvents,
		RetryBackoff:      cfg.Sequencer.RetryBackoff,
		Metrics:           m,
	}, seqLog, func(wm decoder.WireMessage) {
		if !e.OnMarketDataUpdated(wm) {
			seqLog.Error("market-data queue saturated, dropping validated update")
		}
	}, func(reason string) {
		seqLog.Error("market-data session failed, exiting", zap.String("reason", reason))
		os.Exit(1)
	})
}

// mdIngest is the MD-read thread's per-frame entry point: decode one
// transport payload (SBE with JSON control fallback) and run it through
// the sequencer. A transport layer calls OnFrame for every WebSocket
// frame it reads; requestSnapshot is the transport's snapshot-refetch
// hook. Exchange-info control frames never enter the sequencer: their
// instrument filters go straight to the order manager's venue policy.
type mdIngest struct {
	dec       *decoder.Binary
	seq       *sequencer.Sequencer
	om        *manager.OrderManager
	precision fixedpoint.PrecisionConfig
	metrics   *metrics.PipelineMetrics
}

func newMDIngest(seq *sequencer.Sequencer, om *manager.OrderManager, m *metrics.PipelineMetrics, log *zap.Logger) *mdIngest {
	precision := fixedpoint.DefaultPrecision()
	jsonDec := decoder.NewJSON(precision, log.Named("json-decoder"))
	return &mdIngest{
		dec:       decoder.NewBinary(precision, jsonDec, log.Named("sbe-decoder")),
		seq:       seq,
		om:        om,
		precision: precision,
		metrics:   m,
	}
}

// OnFrame decodes one raw frame and feeds the sequencer (or, for
// exchange-info payloads, the order manager's instrument filters).
func (in *mdIngest) OnFrame(payload []byte, requestSnapshot func()) {
	var stopwatch metrics.Stopwatch
	if in.metrics != nil {
		stopwatch = in.metrics.StartDecode()
	}
	wm := in.dec.Decode(payload)
	if in.metrics != nil {
		stopwatch.Finish()
		if wm.Kind() != decoder.KindNone {
			in.metrics.MessagesDecoded.Inc()
		}
	}
	if info, ok := wm.ExchangeInfo(); ok {
		in.om.OnInstrumentInfo(info, in.precision)
		return
	}
	in.seq.OnMessage(wm, requestSnapshot)
}

// oeIngest is the OE-read thread's per-frame entry point: decode one
// order-entry frame and push execution reports onto the engine's
// response queue. An API error envelope that doesn't echo the order's
// fields is synthesized into a Rejected report via the order manager's
// pending-request registry.
type oeIngest struct {
	dec *decoder.JSON
	eng *engine.Engine
	om  *manager.OrderManager
	log *zap.Logger
}

func newOEIngest(e *engine.Engine, om *manager.OrderManager, log *zap.Logger) *oeIngest {
	return &oeIngest{
		dec: decoder.NewJSON(fixedpoint.DefaultPrecision(), log.Named("oe-decoder")),
		eng: e,
		om:  om,
		log: log.Named("oe-ingest"),
	}
}

// OnFrame decodes one order-entry frame and routes it to the engine.
func (in *oeIngest) OnFrame(payload []byte) {
	wm := in.dec.Decode(string(payload))
	switch wm.Kind() {
	case decoder.KindExecutionReport:
		rpt, _ := wm.ExecutionReport()
		status, ok := state.OrdStatusFromString(rpt.OrdStatus)
		if !ok {
			in.log.Warn("execution report with unknown status, dropping",
				zap.String("ord_status", rpt.OrdStatus),
				zap.Uint64("cl_order_id", uint64(rpt.ClOrderID)))
			return
		}
		report := &state.ExecutionReport{
			Symbol:          rpt.Symbol,
			Side:            rpt.Side,
			PositionSide:    rpt.PositionSide,
			ClOrderID:       rpt.ClOrderID,
			OrigClOrderID:   rpt.OrigClOrderID,
			OrdStatus:       status,
			Price:           rpt.Price,
			LastFilledPrice: rpt.LastFilledPrice,
			LastFilledQty:   rpt.LastFilledQty,
			LeavesQty:       rpt.LeavesQty,
		}
		if !in.eng.OnExecutionReportUpdated(report) {
			in.log.Error("execution-report queue saturated, dropping report",
				zap.Uint64("cl_order_id", uint64(report.ClOrderID)))
		}
	case decoder.KindApiResponse:
		resp, _ := wm.ApiResponse()
		if resp.Error == nil && (resp.Status == 0 || resp.Status == 200) {
			return
		}
		id, ok := requestIDFromEnvelope(resp.ID)
		if !ok {
			in.log.Warn("API error with unroutable id", zap.String("id", resp.ID))
			return
		}
		if report, found := manager.SynthesizeReject(in.om.Pending(), id); found {
			if !in.eng.OnExecutionReportUpdated(report) {
				in.log.Error("execution-report queue saturated, dropping synthetic reject",
					zap.Uint64("cl_order_id", uint64(id)))
			}
		}
	}
}

// requestIDFromEnvelope recovers the client order id from an
// "<action>_<cl_order_id>" request id.
func requestIDFromEnvelope(id string) (fixedpoint.OrderId, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return fixedpoint.InvalidOrderId, false
	}
	v, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return fixedpoint.InvalidOrderId, false
	}
	return fixedpoint.OrderId(v), true
}

func newEngine(
	cfgMgr *config.HFTConfigManager,
	conv *convert.Converter,
	bk *book.Book,
	feat *feature.Engine,
	positions *risk.PositionKeeper,
	om *manager.OrderManager,
	clk clock.Clock,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) *engine.Engine {
	cfg := cfgMgr.GetConfig()
	eCfg := engine.Config{
		Ticker:             cfg.Symbol,
		MarketDataCapacity: cfg.Queues.MarketDataCapacity,
		ExecReportCapacity: cfg.Queues.ExecReportCapacity,
	}
	return engine.New(eCfg, conv, bk, feat, positions, om, nil, clk, m, log.Named("trade-engine"))
}

// runEngine starts the trade-engine loop on its own goroutine and stops
// it when fx tears down the app (SIGINT/SIGTERM or app.Stop), mirroring
// the dedicated, never-blocking trade-engine thread model.
func runEngine(lc fx.Lifecycle, e *engine.Engine, seq *sequencer.Sequencer, ingest *mdIngest, oe *oeIngest, cfgMgr *config.HFTConfigManager, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting trade engine",
				zap.String("symbol", cfgMgr.GetConfig().Symbol),
				zap.Bool("md_ingest_ready", ingest != nil),
				zap.Bool("oe_ingest_ready", oe != nil))
			seq.OnSubscribed()
			go e.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			e.Stop()
			cancel()
			return cfgMgr.Close()
		},
	})
}
