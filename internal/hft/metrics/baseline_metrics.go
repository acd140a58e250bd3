package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics instruments the stages of the market-data-to-order
// pipeline: decode, sequencer recovery, order-manager apply cycles, and
// queue backpressure.
type PipelineMetrics struct {
	DecodeLatency  prometheus.Histogram
	ApplyLatency   prometheus.Histogram
	SweepLatency   prometheus.Histogram

	MessagesDecoded   prometheus.Counter
	SequenceGaps      prometheus.Counter
	SnapshotRecoveries prometheus.Counter
	RiskRejections    prometheus.Counter
	VenueRejections   prometheus.Counter

	MarketDataQueueDepth prometheus.Gauge
	ExecReportQueueDepth prometheus.Gauge
}

// NewPipelineMetrics registers and returns the pipeline's Prometheus
// instruments. Call once per process; promauto registers into the
// default registry.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		DecodeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hft_decode_latency_nanoseconds",
			Help:    "Wire-message decode latency in nanoseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		}),
		ApplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hft_manager_apply_latency_nanoseconds",
			Help:    "Order manager apply() latency in nanoseconds",
			Buckets: []float64{1000, 5000, 10000, 25000, 50000, 100000, 250000},
		}),
		SweepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hft_expiry_sweep_latency_nanoseconds",
			Help:    "Expiry manager sweep latency in nanoseconds",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 25000},
		}),
		MessagesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hft_messages_decoded_total",
			Help: "Total wire messages successfully decoded",
		}),
		SequenceGaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hft_sequence_gaps_total",
			Help: "Total sequence gaps detected by the market-data sequencer",
		}),
		SnapshotRecoveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hft_snapshot_recoveries_total",
			Help: "Total snapshot-plus-diff recoveries performed",
		}),
		RiskRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hft_risk_rejections_total",
			Help: "Total intents rejected by the pre-trade risk filter",
		}),
		VenueRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hft_venue_rejections_total",
			Help: "Total intents dropped by the venue policy filter",
		}),
		MarketDataQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hft_market_data_queue_depth",
			Help: "Current occupancy of the inbound market-data SPSC queue",
		}),
		ExecReportQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hft_exec_report_queue_depth",
			Help: "Current occupancy of the inbound execution-report SPSC queue",
		}),
	}
}

// Stopwatch measures an operation's wall-clock duration and records it
// into one of PipelineMetrics' histograms on Finish.
type Stopwatch struct {
	start time.Time
	obs   prometheus.Observer
}

func (m *PipelineMetrics) StartDecode() Stopwatch { return Stopwatch{time.Now(), m.DecodeLatency} }
func (m *PipelineMetrics) StartApply() Stopwatch  { return Stopwatch{time.Now(), m.ApplyLatency} }
func (m *PipelineMetrics) StartSweep() Stopwatch  { return Stopwatch{time.Now(), m.SweepLatency} }

// Finish records the elapsed time since the stopwatch started.
func (s Stopwatch) Finish() {
	s.obs.Observe(float64(time.Since(s.start).Nanoseconds()))
}
