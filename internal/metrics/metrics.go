// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting msgport runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 1. Internal State (Source of Truth)
var (
	sends         int64
	sendsFailed   int64
	quietSkips    int64
	relayAccepted int64
	relayRejected int64
	lastSend      int64
)

const counterInc int64 = 1

// 2. Prometheus Collectors
var (
	promSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgport_sends_total",
			Help: "Total successful provider sends",
		},
		[]string{"provider"},
	)
	promSendsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgport_sends_failed_total",
			Help: "Total provider sends that exhausted retries",
		},
		[]string{"provider"},
	)
	promQuietSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msgport_quiet_hours_suppressed_total",
			Help: "Total dispatches suppressed by quiet hours",
		},
	)
	promRelayAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msgport_relay_accepted_total",
			Help: "Total messages accepted by the relay API",
		},
	)
	promRelayRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msgport_relay_rejected_total",
			Help: "Total relay API requests rejected as invalid",
		},
	)
	promSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "msgport_send_duration_seconds",
			Help: "Duration of provider send operations including retries",
			Buckets: []float64{
				0.05,
				0.1,
				0.25,
				0.5,
				1,
				2,
				5,
				10,
				30,
			},
		},
	)
	promLastSend = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "msgport_last_send_timestamp_seconds",
			Help: "Unix timestamp of the last successful send",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promSends,
		promSendsFailed,
		promQuietSkips,
		promRelayAccepted,
		promRelayRejected,
		promSendDuration,
		promLastSend,
	)
}

// 3. Public API (Updates both Atomic and Prometheus)

// IncSend increments the successful send counter for a provider.
func IncSend(provider string) {
	atomic.AddInt64(&sends, counterInc)
	promSends.WithLabelValues(provider).Inc()
}

// IncSendFailed increments the failed send counter for a provider.
func IncSendFailed(provider string) {
	atomic.AddInt64(&sendsFailed, counterInc)
	promSendsFailed.WithLabelValues(provider).Inc()
}

// IncQuietSuppressed increments the counter for dispatches suppressed by
// quiet hours.
func IncQuietSuppressed() {
	atomic.AddInt64(&quietSkips, counterInc)
	promQuietSkips.Inc()
}

// IncRelayAccepted increments the counter for messages accepted over the
// relay API.
func IncRelayAccepted() {
	atomic.AddInt64(&relayAccepted, counterInc)
	promRelayAccepted.Inc()
}

// IncRelayRejected increments the counter for rejected relay API requests.
func IncRelayRejected() {
	atomic.AddInt64(&relayRejected, counterInc)
	promRelayRejected.Inc()
}

// ObserveSendDuration records the duration (in seconds) of a provider send
// in the Prometheus histogram.
func ObserveSendDuration(seconds float64) {
	promSendDuration.Observe(seconds)
}

// SetLastSend stores the provided time as the last successful send and
// updates the corresponding Prometheus gauge.
func SetLastSend(t time.Time) {
	atomic.StoreInt64(&lastSend, t.Unix())
	promLastSend.Set(float64(t.Unix()))
}

// 4. JSON Snapshot Struct (For status endpoints)

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Sends         int64  `json:"sends"`
	SendsFailed   int64  `json:"sends_failed"`
	QuietSkips    int64  `json:"quiet_hours_suppressed"`
	RelayAccepted int64  `json:"relay_accepted"`
	RelayRejected int64  `json:"relay_rejected"`
	LastSend      int64  `json:"last_send_timestamp"`
	LastSendHuman string `json:"last_send_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastSend)
	return StatsSnapshot{
		Sends:         atomic.LoadInt64(&sends),
		SendsFailed:   atomic.LoadInt64(&sendsFailed),
		QuietSkips:    atomic.LoadInt64(&quietSkips),
		RelayAccepted: atomic.LoadInt64(&relayAccepted),
		RelayRejected: atomic.LoadInt64(&relayRejected),
		LastSend:      ts,
		LastSendHuman: time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// 5. Handlers

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
