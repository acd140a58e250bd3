package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *HFTManagerConfig {
	return &HFTManagerConfig{
		Environment: "test",
		Symbol:      "BTCUSDT",
		Venue:       VenueConfig{MarketKind: MarketKindSpot},
		Queues:      QueueConfig{MarketDataCapacity: 1024, ExecReportCapacity: 256},
		Risk:        RiskConfig{MaxOrderQty: 100, MaxPosition: 1000},
		Sequencer:   SequencerConfig{MaxRetries: 3},
	}
}

func TestValidateHFTConfigAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, ValidateHFTConfig(validConfig()))
}

func TestValidateHFTConfigRejectsNil(t *testing.T) {
	require.Error(t, ValidateHFTConfig(nil))
}

func TestValidateHFTConfigRejectsNonPowerOfTwoQueueCapacity(t *testing.T) {
	cfg := validConfig()
	cfg.Queues.MarketDataCapacity = 1000
	err := ValidateHFTConfig(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "market_data_capacity")
}

func TestValidateHFTConfigRejectsNegativeRiskLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxOrderQty = -1
	require.Error(t, ValidateHFTConfig(cfg))
}

func TestValidateHFTConfigRejectsUnknownMarketKind(t *testing.T) {
	cfg := validConfig()
	cfg.Venue.MarketKind = "margin"
	require.Error(t, ValidateHFTConfig(cfg))
}

func TestValidateHFTConfigRejectsNonPositiveMaxRetries(t *testing.T) {
	cfg := validConfig()
	cfg.Sequencer.MaxRetries = 0
	require.Error(t, ValidateHFTConfig(cfg))
}

func TestSaveAndLoadConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := validConfig()
	cfg.Venue.TickSize = 10
	require.NoError(t, SaveConfigToFile(cfg, path))

	loaded, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Symbol, loaded.Symbol)
	require.Equal(t, cfg.Venue.TickSize, loaded.Venue.TickSize)
	require.Equal(t, cfg.Risk.MaxOrderQty, loaded.Risk.MaxOrderQty)
}

func TestLoadConfigFromFileMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(os.TempDir(), "definitely-not-there.yaml"))
	require.Error(t, err)
}
