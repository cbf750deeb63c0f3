package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolwire",
			Subsystem: "frame",
			Name:      "decoded_total",
			Help:      "Frames decoded into messages.",
		},
		[]string{"schema", "message"},
	)
	framesEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolwire",
			Subsystem: "frame",
			Name:      "encoded_total",
			Help:      "Messages encoded into frames.",
		},
		[]string{"schema", "message"},
	)
	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poolwire",
			Subsystem: "frame",
			Name:      "body_bytes",
			Help:      "Frame body size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 10),
		},
		[]string{"schema", "direction"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolwire",
			Subsystem: "frame",
			Name:      "errors_total",
			Help:      "Frame decode failures by kind.",
		},
		[]string{"schema", "kind"},
	)
	poolQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "poolwire",
			Subsystem: "payload_pool",
			Name:      "queued",
			Help:      "Deferred payload tasks waiting for a worker.",
		},
	)
	poolTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poolwire",
			Subsystem: "payload_pool",
			Name:      "task_duration_seconds",
			Help:      "Deferred payload conversion time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesDecoded, framesEncoded, frameBytes, frameErrors, poolQueued, poolTaskDuration)
	})
}

func RecordFrameDecoded(schema, message string, bodyLen int) {
	RegisterMetrics()
	framesDecoded.WithLabelValues(schema, message).Inc()
	frameBytes.WithLabelValues(schema, "in").Observe(float64(bodyLen))
}

func RecordFrameEncoded(schema, message string, bodyLen int) {
	RegisterMetrics()
	framesEncoded.WithLabelValues(schema, message).Inc()
	frameBytes.WithLabelValues(schema, "out").Observe(float64(bodyLen))
}

// RecordFrameError counts a rejected frame. kind is "size" or "decode".
func RecordFrameError(schema, kind string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(schema, kind).Inc()
}

func RecordPoolQueued(delta int) {
	RegisterMetrics()
	poolQueued.Add(float64(delta))
}

func RecordPoolTask(op string, duration time.Duration) {
	RegisterMetrics()
	poolTaskDuration.WithLabelValues(op).Observe(duration.Seconds())
}
