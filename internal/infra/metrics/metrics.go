// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_total",
			Help: "Decoded stream messages by kind.",
		},
		[]string{"kind"},
	)

	streamReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_reconnects_total",
			Help: "Reconnect attempts per stream scope (resource/global).",
		},
		[]string{"scope"},
	)

	streamTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_terminal_errors_total",
			Help: "Streams parked in error after exhausting reconnect attempts.",
		},
		[]string{"scope"},
	)

	pollDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_duration_ms",
			Help:    "Job poll fetch latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"success"},
	)

	pollSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_notifications_suppressed_total",
			Help: "Poll results dropped because nothing materially changed.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Parent records removed by the eviction sweep, by pass (age/cap).",
		},
		[]string{"pass"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			streamMessagesTotal, streamReconnectsTotal, streamTerminalTotal,
			pollDurationMs, pollSuppressedTotal, cacheEvictionsTotal,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Stream helpers --------

func IncStreamMessage(kind string) {
	streamMessagesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncStreamReconnect(scope string) {
	streamReconnectsTotal.WithLabelValues(norm(scope)).Inc()
}

func IncStreamTerminal(scope string) {
	streamTerminalTotal.WithLabelValues(norm(scope)).Inc()
}

// -------- Poll helpers --------

func ObservePoll(latencyMs int64, success bool) {
	lbl := "false"
	if success {
		lbl = "true"
	}
	pollDurationMs.WithLabelValues(lbl).Observe(float64(latencyMs))
}

func IncPollSuppressed() { pollSuppressedTotal.Inc() }

// -------- Cache helpers --------

func AddCacheEvictions(pass string, n int) {
	if n > 0 {
		cacheEvictionsTotal.WithLabelValues(norm(pass)).Add(float64(n))
	}
}
