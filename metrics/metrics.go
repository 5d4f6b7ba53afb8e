// Package metrics exposes Prometheus counters for the A2DP media pipeline.
// Every series carries a "role" label: "sink" or "source".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Role label values.
const (
	RoleSink   = "sink"
	RoleSource = "source"
)

// Gauges
var (
	BufferedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "a2dp_buffered_bytes",
		Help: "Bytes currently held in the jitter buffer or transmit queue",
	}, []string{"role"})
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "a2dp_active_sessions",
		Help: "Number of open media sessions",
	}, []string{"role"})
)

// Counters
var (
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "a2dp_packets_total",
		Help: "Media packets received (sink) or sent (source)",
	}, []string{"role"})
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "a2dp_frames_total",
		Help: "Encoded frames buffered (sink) or sent (source)",
	}, []string{"role"})
	DroppedPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "a2dp_dropped_packets_total",
		Help: "Packets dropped by reason",
	}, []string{"role", "reason"})
	SendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "a2dp_send_failures_total",
		Help: "Transport send failures on the source",
	})
	UnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "a2dp_underruns_total",
		Help: "Times the sink ran out of buffered frames while playing",
	})
	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "a2dp_codec_errors_total",
		Help: "Codec failures by operation",
	}, []string{"op"})
)

// Drop reasons.
const (
	ReasonMalformed = "malformed"
	ReasonOverrun   = "overrun"
	ReasonPaused    = "paused"
	ReasonClosed    = "closed"
)
