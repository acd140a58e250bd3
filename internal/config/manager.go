package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	hfterrors "github.com/abdoElHodaky/hft-core/internal/common/errors"
)

// HFTConfigManager owns the hot-reloadable configuration for one venue
// connection. Readers call GetConfig; nothing downstream holds a pointer
// across a reload, they reload it from the manager every time they need
// it (the hot path reads it once at the top of a sweep/apply cycle).
type HFTConfigManager struct {
	viper      *viper.Viper
	configPath string
	env        string

	config atomic.Value // *HFTManagerConfig

	watcher    *fsnotify.Watcher
	reloadChan chan struct{}

	callbacks []func(*HFTManagerConfig)
	cbLock    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHFTConfigManager creates a manager, loads the initial configuration
// from configPath, and starts watching it for changes.
func NewHFTConfigManager(configPath string, env string) (*HFTConfigManager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &HFTConfigManager{
		viper:      viper.New(),
		configPath: configPath,
		env:        env,
		watcher:    watcher,
		reloadChan: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	mgr.viper.SetConfigFile(configPath)
	mgr.viper.SetEnvPrefix("HFT")
	mgr.viper.AutomaticEnv()
	mgr.setDefaults()

	if err := mgr.loadConfig(); err != nil {
		cancel()
		return nil, err
	}

	if err := mgr.startWatcher(); err != nil {
		cancel()
		return nil, err
	}

	return mgr, nil
}

func (m *HFTConfigManager) setDefaults() {
	m.viper.SetDefault("environment", "development")

	m.viper.SetDefault("venue.name", "binance")
	m.viper.SetDefault("venue.market_kind", "spot")
	m.viper.SetDefault("venue.min_time_gap", "50ms")
	m.viper.SetDefault("venue.supports_cancel_and_reorder", false)

	m.viper.SetDefault("pools.order_slots", 4096)
	m.viper.SetDefault("pools.events", 16384)
	m.viper.SetDefault("pools.pending_replacements", 1024)

	m.viper.SetDefault("queues.market_data_capacity", 65536)
	m.viper.SetDefault("queues.exec_report_capacity", 8192)

	m.viper.SetDefault("expiry.ttl_reserved", "250ms")
	m.viper.SetDefault("expiry.ttl_live", "30s")

	m.viper.SetDefault("book.min_price_int", 100000)
	m.viper.SetDefault("book.max_price_int", 30000000)
	m.viper.SetDefault("book.tick_multiplier_int", 100)

	m.viper.SetDefault("sequencer.max_retries", 3)
	m.viper.SetDefault("sequencer.max_buffered_events", 4096)
	m.viper.SetDefault("sequencer.retry_backoff", "10s")

	m.viper.SetDefault("monitoring.enable_prometheus", true)
	m.viper.SetDefault("monitoring.metrics_interval", "10s")
	m.viper.SetDefault("monitoring.log_level", "info")
}

func (m *HFTConfigManager) loadConfig() error {
	if _, err := os.Stat(m.configPath); err == nil {
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &HFTManagerConfig{}
	if err := m.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = m.env

	if err := ValidateHFTConfig(cfg); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.notifyCallbacks(cfg)
	return nil
}

func (m *HFTConfigManager) startWatcher() error {
	configDir := filepath.Dir(m.configPath)
	if err := m.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	m.wg.Add(1)
	go m.watchLoop()
	return nil
}

func (m *HFTConfigManager) watchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Name == m.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				select {
				case m.reloadChan <- struct{}{}:
				default:
				}
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		case <-m.reloadChan:
			time.Sleep(100 * time.Millisecond)
			_ = m.loadConfig()
		}
	}
}

func (m *HFTConfigManager) notifyCallbacks(cfg *HFTManagerConfig) {
	m.cbLock.RLock()
	defer m.cbLock.RUnlock()
	for _, cb := range m.callbacks {
		go cb(cfg)
	}
}

// GetConfig returns the current configuration snapshot.
func (m *HFTConfigManager) GetConfig() *HFTManagerConfig {
	return m.config.Load().(*HFTManagerConfig)
}

// RegisterCallback registers a function invoked (in its own goroutine)
// after every successful reload.
func (m *HFTConfigManager) RegisterCallback(cb func(*HFTManagerConfig)) {
	m.cbLock.Lock()
	defer m.cbLock.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Close stops the watcher goroutine.
func (m *HFTConfigManager) Close() error {
	m.cancel()
	m.wg.Wait()
	return m.watcher.Close()
}

// ValidateHFTConfig rejects configurations the rest of the pipeline
// cannot run with (capacities must be powers of two — see
// internal/hft/queue — bounds must be internally consistent).
func ValidateHFTConfig(cfg *HFTManagerConfig) error {
	if cfg == nil {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config", "config cannot be nil")
	}

	if !isPowerOfTwo(cfg.Queues.MarketDataCapacity) {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config",
			"queues.market_data_capacity must be a power of two, got %d", cfg.Queues.MarketDataCapacity)
	}
	if !isPowerOfTwo(cfg.Queues.ExecReportCapacity) {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config",
			"queues.exec_report_capacity must be a power of two, got %d", cfg.Queues.ExecReportCapacity)
	}
	if cfg.Risk.MaxOrderQty < 0 || cfg.Risk.MaxPosition < 0 {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config", "risk limits cannot be negative")
	}
	if cfg.Venue.MarketKind != MarketKindSpot && cfg.Venue.MarketKind != MarketKindPerp {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config",
			"invalid venue.market_kind %q", cfg.Venue.MarketKind)
	}
	if cfg.Sequencer.MaxRetries <= 0 {
		return hfterrors.New(hfterrors.ErrInvalidConfig, "config", "sequencer.max_retries must be positive")
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// LoadConfigFromFile loads configuration from a YAML file without
// starting hot-reload — used by tests and one-shot tools.
func LoadConfigFromFile(path string) (*HFTManagerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg HFTManagerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SaveConfigToFile writes configuration to a YAML file.
func SaveConfigToFile(cfg *HFTManagerConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
