package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/config"
	"github.com/abdoElHodaky/hft-core/internal/marketdata/decoder"
)

func newTestSequencer(kind config.MarketKind) (*Sequencer, *[]decoder.WireMessage, *[]string) {
	var received []decoder.WireMessage
	var failures []string
	cfg := Config{
		MarketKind:        kind,
		MaxRetries:        3,
		MaxBufferedEvents: 4,
		RetryBackoff:      time.Millisecond,
	}
	s := New(cfg, zap.NewNop(), func(m decoder.WireMessage) {
		received = append(received, m)
	}, func(reason string) {
		failures = append(failures, reason)
	})
	return s, &received, &failures
}

func TestSpotHappyPathSnapshotThenDiffs(t *testing.T) {
	s, received, _ := newTestSequencer(config.MarketKindSpot)
	s.OnSubscribed()
	require.Equal(t, Buffering, s.State())

	s.OnDepthDiff(decoder.DepthDiff{FirstBookUpdateID: 101, LastBookUpdateID: 105}, func() {})

	s.OnSnapshot(decoder.DepthSnapshot{LastUpdateID: 104}, func() {})
	require.Equal(t, Running, s.State())
	require.Equal(t, int64(105), s.UpdateIndex())
	require.Len(t, *received, 2) // snapshot + one diff

	s.OnDepthDiff(decoder.DepthDiff{FirstBookUpdateID: 106, LastBookUpdateID: 110}, func() {})
	require.Equal(t, int64(110), s.UpdateIndex())
	require.Len(t, *received, 3)
}

func TestSpotGapDuringRunningEntersBuffering(t *testing.T) {
	s, _, _ := newTestSequencer(config.MarketKindSpot)
	s.OnSubscribed()
	s.OnSnapshot(decoder.DepthSnapshot{LastUpdateID: 100}, func() {})
	require.Equal(t, Running, s.State())

	s.OnDepthDiff(decoder.DepthDiff{FirstBookUpdateID: 150, LastBookUpdateID: 160}, func() {})
	require.Equal(t, Buffering, s.State())
}

func TestSnapshotTooOldRetriesThenFails(t *testing.T) {
	s, _, failures := newTestSequencer(config.MarketKindSpot)
	requestCount := 0
	requestSnapshot := func() { requestCount++ }

	s.OnSubscribed()
	s.OnDepthDiff(decoder.DepthDiff{FirstBookUpdateID: 500, LastBookUpdateID: 505}, func() {})

	for i := 0; i < 3; i++ {
		s.OnSnapshot(decoder.DepthSnapshot{LastUpdateID: 10}, requestSnapshot)
	}
	require.Len(t, *failures, 1)
}

func TestPerpFirstDiffUsesPrevEndSeq(t *testing.T) {
	s, received, _ := newTestSequencer(config.MarketKindPerp)
	s.OnSubscribed()

	s.OnDepthDiff(decoder.DepthDiff{PrevBookUpdateID: 95, LastBookUpdateID: 105}, func() {})
	s.OnSnapshot(decoder.DepthSnapshot{LastUpdateID: 100}, func() {})

	require.Equal(t, Running, s.State())
	require.Equal(t, int64(105), s.UpdateIndex())
	require.Len(t, *received, 2)
}

func TestPerpContinuationRequiresExactPrevEndSeq(t *testing.T) {
	s, _, _ := newTestSequencer(config.MarketKindPerp)
	s.OnSubscribed()
	s.OnSnapshot(decoder.DepthSnapshot{LastUpdateID: 100}, func() {})
	require.Equal(t, Running, s.State())

	s.OnDepthDiff(decoder.DepthDiff{PrevBookUpdateID: 100, LastBookUpdateID: 110}, func() {})
	require.Equal(t, Running, s.State())
	require.Equal(t, int64(110), s.UpdateIndex())

	s.OnDepthDiff(decoder.DepthDiff{PrevBookUpdateID: 999, LastBookUpdateID: 1010}, func() {})
	require.Equal(t, Buffering, s.State())
}

func TestOnMessageForwardsTradesImmediatelyWhileBuffering(t *testing.T) {
	s, received, _ := newTestSequencer(config.MarketKindSpot)
	s.OnSubscribed()
	require.Equal(t, Buffering, s.State())

	trade := decoder.TradeBatch{Symbol: "BTCUSDT"}
	s.OnMessage(decoder.NewTradesMessage(&trade), func() {})
	require.Len(t, *received, 1)
	require.Equal(t, Buffering, s.State())

	kind := (*received)[0].Kind()
	require.Equal(t, decoder.KindTrades, kind)
}

func TestOnMessageDispatchesSnapshotAndDiff(t *testing.T) {
	s, received, _ := newTestSequencer(config.MarketKindSpot)
	s.OnSubscribed()

	diff := decoder.DepthDiff{FirstBookUpdateID: 101, LastBookUpdateID: 105}
	s.OnMessage(decoder.NewDepthDiffMessage(&diff), func() {})
	require.Equal(t, Buffering, s.State())

	snap := decoder.DepthSnapshot{LastUpdateID: 104}
	s.OnMessage(decoder.NewDepthSnapshotMessage(&snap), func() {})
	require.Equal(t, Running, s.State())
	require.Len(t, *received, 2)
}

func TestRunningGapViaOnMessageRequestsSnapshot(t *testing.T) {
	s, _, _ := newTestSequencer(config.MarketKindSpot)
	requested := 0
	requestSnapshot := func() { requested++ }

	s.OnSubscribed()
	snap := decoder.DepthSnapshot{LastUpdateID: 100}
	s.OnMessage(decoder.NewDepthSnapshotMessage(&snap), requestSnapshot)
	require.Equal(t, Running, s.State())

	gapped := decoder.DepthDiff{FirstBookUpdateID: 150, LastBookUpdateID: 160}
	s.OnMessage(decoder.NewDepthDiffMessage(&gapped), requestSnapshot)

	require.Equal(t, Buffering, s.State())
	require.Equal(t, 1, requested, "a running-state gap must re-request a snapshot")
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	s, _, _ := newTestSequencer(config.MarketKindSpot)
	s.OnSubscribed()
	for i := 0; i < 10; i++ {
		s.OnDepthDiff(decoder.DepthDiff{FirstBookUpdateID: int64(i), LastBookUpdateID: int64(i)}, func() {})
	}
	require.LessOrEqual(t, len(s.buffered), s.cfg.MaxBufferedEvents)
}
