package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCollector_CountsByOutcome(t *testing.T) {
	sc := NewStatsCollector(10)

	sc.Record(RequestLog{ID: "1", Router: "greeting"}, 5*time.Millisecond, 3)
	sc.Record(RequestLog{ID: "2", Router: "greeting"}, 5*time.Millisecond, 3)
	sc.Record(RequestLog{ID: "3", Router: "fallback", Proxied: true}, 50*time.Millisecond, 0)
	sc.Record(RequestLog{ID: "4", Router: "fallback", Proxied: true, Error: "upstream returned HTTP 503"}, 1*time.Millisecond, 0)

	snap := sc.Snapshot()
	assert.Equal(t, int64(4), snap.Requests.Total)
	assert.Equal(t, int64(2), snap.Requests.Local)
	assert.Equal(t, int64(1), snap.Requests.Proxied)
	assert.Equal(t, int64(1), snap.Requests.Errors)
	assert.Equal(t, int64(2), snap.RouterHits["greeting"])
	assert.Equal(t, int64(2), snap.RouterHits["fallback"])
	assert.Equal(t, int64(6), snap.TokensServed, "proxied and errored requests must not count served tokens")
	assert.InDelta(t, 15.25, snap.AvgLatencyMS, 0.01)
}

func TestStatsCollector_RecentRingIsBounded(t *testing.T) {
	sc := NewStatsCollector(3)
	for i := 0; i < 5; i++ {
		sc.Record(RequestLog{ID: string(rune('a' + i)), Router: "quick"}, time.Millisecond, 0)
	}

	logs := sc.RecentLogs(0)
	require.Len(t, logs, 3)
	// Newest first.
	assert.Equal(t, "e", logs[0].ID)
	assert.Equal(t, "d", logs[1].ID)
	assert.Equal(t, "c", logs[2].ID)
}

func TestStatsCollector_RecentLogsLimit(t *testing.T) {
	sc := NewStatsCollector(100)
	for i := 0; i < 10; i++ {
		sc.Record(RequestLog{ID: "x", Router: "echo"}, time.Millisecond, 0)
	}
	assert.Len(t, sc.RecentLogs(4), 4)
	assert.Len(t, sc.RecentLogs(0), 10)
	assert.Len(t, sc.RecentLogs(50), 10)
}

func TestStatsCollector_EmptySnapshot(t *testing.T) {
	sc := NewStatsCollector(10)
	snap := sc.Snapshot()
	assert.Equal(t, int64(0), snap.Requests.Total)
	assert.Equal(t, 0.0, snap.AvgLatencyMS)
	assert.Empty(t, snap.RouterHits)
	assert.NotEmpty(t, snap.Uptime)
}

func TestHeuristicCount(t *testing.T) {
	assert.Equal(t, 0, heuristicCount(""))
	assert.Equal(t, 0, heuristicCount("   "))
	assert.Equal(t, 1, heuristicCount("hi"))
	assert.Equal(t, 5, heuristicCount("12345678901234567890"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2h 3m", formatDuration(2*time.Hour+3*time.Minute))
	assert.Equal(t, "1d 1h 0m", formatDuration(25*time.Hour))
}
