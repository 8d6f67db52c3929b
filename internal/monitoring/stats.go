// Package monitoring - stats.go provides in-memory request statistics.
//
// DESIGN: Lightweight counters plus a bounded ring of recent request logs:
//   - requests/local/proxied/errors: outcome counts
//   - router_hits:                   per-router match counts
//   - latency:                       running total for the average
//   - tokens_served:                 estimated tokens of locally served replies
//
// Persistence and live fan-out are layered on top (Store, Broadcaster);
// the collector itself never blocks a request on I/O.
package monitoring

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RequestLog is one routed request as recorded for the dashboard. Message
// and Response are pre-truncated by the caller; Trace is the serialized
// cascade audit trail.
type RequestLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Router    string    `json:"router"`
	Message   string    `json:"message"`
	Response  string    `json:"response,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Proxied   bool      `json:"proxied"`
	Error     string    `json:"error,omitempty"`
	Tried     []string  `json:"tried,omitempty"`
	Trace     string    `json:"trace,omitempty"`
}

// StatsCollector accumulates request statistics for the lifetime of the
// process. Safe for concurrent use.
type StatsCollector struct {
	startedAt time.Time

	requests  atomic.Int64
	localHits atomic.Int64
	proxied   atomic.Int64
	errors    atomic.Int64

	totalLatency atomic.Int64 // nanoseconds
	tokensServed atomic.Int64

	mu         sync.Mutex
	routerHits map[string]int64
	recent     []RequestLog
	maxRecent  int
}

// NewStatsCollector creates a collector keeping at most maxRecent logs.
func NewStatsCollector(maxRecent int) *StatsCollector {
	if maxRecent <= 0 {
		maxRecent = 1
	}
	return &StatsCollector{
		startedAt:  time.Now(),
		routerHits: make(map[string]int64),
		maxRecent:  maxRecent,
	}
}

// Record folds one completed request into the counters and the recent ring.
func (sc *StatsCollector) Record(entry RequestLog, latency time.Duration, servedTokens int) {
	sc.requests.Add(1)
	sc.totalLatency.Add(int64(latency))
	entry.LatencyMS = latency.Milliseconds()

	switch {
	case entry.Error != "":
		sc.errors.Add(1)
	case entry.Proxied:
		sc.proxied.Add(1)
	default:
		sc.localHits.Add(1)
		sc.tokensServed.Add(int64(servedTokens))
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.routerHits[entry.Router]++
	sc.recent = append(sc.recent, entry)
	if len(sc.recent) > sc.maxRecent {
		sc.recent = sc.recent[len(sc.recent)-sc.maxRecent:]
	}
}

// StartedAt returns when the collector was created.
func (sc *StatsCollector) StartedAt() time.Time { return sc.startedAt }

// RecentLogs returns up to limit most recent logs, newest first.
// limit <= 0 means all retained logs.
func (sc *StatsCollector) RecentLogs(limit int) []RequestLog {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	n := len(sc.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RequestLog, n)
	for i := 0; i < n; i++ {
		out[i] = sc.recent[len(sc.recent)-1-i]
	}
	return out
}

// Snapshot returns the current statistics for the /api/stats endpoint.
func (sc *StatsCollector) Snapshot() StatsResponse {
	uptime := time.Since(sc.startedAt)
	requests := sc.requests.Load()

	var avgLatencyMS float64
	if requests > 0 {
		avgLatencyMS = float64(sc.totalLatency.Load()) / float64(requests) / float64(time.Millisecond)
	}

	sc.mu.Lock()
	hits := make(map[string]int64, len(sc.routerHits))
	for name, count := range sc.routerHits {
		hits[name] = count
	}
	sc.mu.Unlock()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     sc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:   requests,
			Local:   sc.localHits.Load(),
			Proxied: sc.proxied.Load(),
			Errors:  sc.errors.Load(),
		},
		RouterHits:   hits,
		AvgLatencyMS: avgLatencyMS,
		TokensServed: sc.tokensServed.Load(),
	}
}

// StatsResponse is the structured body of the /api/stats endpoint.
type StatsResponse struct {
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartedAt     string           `json:"started_at"`
	Requests      RequestStats     `json:"requests"`
	RouterHits    map[string]int64 `json:"router_hits"`
	AvgLatencyMS  float64          `json:"avg_latency_ms"`
	TokensServed  int64            `json:"tokens_served"`

	// Connections is filled in by the serving layer.
	Connections int `json:"live_connections"`
}

// RequestStats holds request outcome counts.
type RequestStats struct {
	Total   int64 `json:"total"`
	Local   int64 `json:"local"`
	Proxied int64 `json:"proxied"`
	Errors  int64 `json:"errors"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
