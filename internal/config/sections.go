package config

import "time"

// MarketKind distinguishes spot from perpetual-futures venues. The two
// carry different snapshot-recovery and continuity rules (see
// sequencer.Sequencer) and must never be unified behind one code path.
type MarketKind string

const (
	MarketKindSpot MarketKind = "spot"
	MarketKindPerp MarketKind = "perp"
)

// VenueConfig carries the exchange-specific constants the quote
// reconciler and order manager need: notional/qty bounds, tick/step
// rounding, and venue traits that gate protocol-level behavior.
type VenueConfig struct {
	Name       string     `yaml:"name" default:"binance" mapstructure:"name"`
	MarketKind MarketKind `yaml:"market_kind" default:"spot" mapstructure:"market_kind"`

	MinNotional     int64 `yaml:"min_notional" mapstructure:"min_notional"`      // scaled by PriceScale*QtyScale
	MinQty          int64 `yaml:"min_qty" mapstructure:"min_qty"`            // scaled by QtyScale
	MaxQty          int64 `yaml:"max_qty" mapstructure:"max_qty"`            // scaled by QtyScale
	QtyStep         int64 `yaml:"qty_step" mapstructure:"qty_step"`            // scaled by QtyScale
	TickSize        int64 `yaml:"tick_size" mapstructure:"tick_size"`           // scaled by PriceScale
	MinTimeGap      time.Duration `yaml:"min_time_gap" default:"50ms" mapstructure:"min_time_gap"`

	// SupportsCancelAndReorder gates the cl_new_order_id-1 combined
	// cancel-and-replace id encoding in the order manager.
	SupportsCancelAndReorder bool `yaml:"supports_cancel_and_reorder" default:"false" mapstructure:"supports_cancel_and_reorder"`
}

// RiskConfig carries per-symbol pre-trade risk limits.
type RiskConfig struct {
	MaxOrderQty    int64 `yaml:"max_order_qty" mapstructure:"max_order_qty"`
	MaxPosition    int64 `yaml:"max_position" mapstructure:"max_position"`
	MinPosition    int64 `yaml:"min_position" mapstructure:"min_position"`
	MaxLossPerSide int64 `yaml:"max_loss_per_side" mapstructure:"max_loss_per_side"`
}

// PoolConfig sizes the bounded memory pools (see internal/common/pool).
type PoolConfig struct {
	OrderSlots   int `yaml:"order_slots" default:"4096" mapstructure:"order_slots"`
	Events       int `yaml:"events" default:"16384" mapstructure:"events"`
	PendingRepl  int `yaml:"pending_replacements" default:"1024" mapstructure:"pending_replacements"`
}

// QueueConfig sizes the SPSC ring buffers carrying market data and
// execution reports into the trade engine. Capacities must be a power
// of two.
type QueueConfig struct {
	MarketDataCapacity int `yaml:"market_data_capacity" default:"65536" mapstructure:"market_data_capacity"`
	ExecReportCapacity int `yaml:"exec_report_capacity" default:"8192" mapstructure:"exec_report_capacity"`
}

// ExpiryConfig carries the TTLs the expiry manager applies to orders
// depending on their lifecycle state.
type ExpiryConfig struct {
	TTLReserved time.Duration `yaml:"ttl_reserved" default:"250ms" mapstructure:"ttl_reserved"`
	TTLLive     time.Duration `yaml:"ttl_live" default:"30s" mapstructure:"ttl_live"`
}

// BookConfig carries the order book's fixed price grid. MinPriceInt and
// MaxPriceInt are raw tick-scaled bounds (fixedpoint.Price's PriceScale
// is chosen to equal the venue's tick size, so a Price's int64 value is
// already a tick index — see internal/orders/book).
type BookConfig struct {
	MinPriceInt    int64 `yaml:"min_price_int" default:"100000" mapstructure:"min_price_int"`
	MaxPriceInt    int64 `yaml:"max_price_int" default:"30000000" mapstructure:"max_price_int"`
	TickMultiplier int64 `yaml:"tick_multiplier_int" default:"100" mapstructure:"tick_multiplier_int"`
}

// SequencerConfig carries the market-data recovery tunables.
type SequencerConfig struct {
	MaxRetries          int `yaml:"max_retries" default:"3" mapstructure:"max_retries"`
	MaxBufferedEvents   int `yaml:"max_buffered_events" default:"4096" mapstructure:"max_buffered_events"`
	RetryBackoff        time.Duration `yaml:"retry_backoff" default:"10s" mapstructure:"retry_backoff"`
}

// MonitoringConfig controls the ambient metrics/logging surface.
type MonitoringConfig struct {
	EnablePrometheus bool          `yaml:"enable_prometheus" default:"true" mapstructure:"enable_prometheus"`
	MetricsInterval  time.Duration `yaml:"metrics_interval" default:"10s" mapstructure:"metrics_interval"`
	LogLevel         string        `yaml:"log_level" default:"info" mapstructure:"log_level"`
}

// HFTManagerConfig is the root configuration document. INI loading
// mechanics and credential
// material stay outside this struct; it only carries the sections this
// core pipeline itself consumes.
type HFTManagerConfig struct {
	Environment string `yaml:"environment" default:"development" mapstructure:"environment"`
	Symbol      string `yaml:"symbol" mapstructure:"symbol"`

	Venue      VenueConfig      `yaml:"venue" mapstructure:"venue"`
	Risk       RiskConfig       `yaml:"risk" mapstructure:"risk"`
	Pools      PoolConfig       `yaml:"pools" mapstructure:"pools"`
	Queues     QueueConfig      `yaml:"queues" mapstructure:"queues"`
	Expiry     ExpiryConfig     `yaml:"expiry" mapstructure:"expiry"`
	Book       BookConfig       `yaml:"book" mapstructure:"book"`
	Sequencer  SequencerConfig  `yaml:"sequencer" mapstructure:"sequencer"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}
