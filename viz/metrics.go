package viz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a frame or record is dropped.
const (
	DropQueueFull        = "queue_full"
	DropUnknownType      = "unknown_type"
	DropMalformed        = "malformed"
	DropUnsupportedPixel = "unsupported_pixel_format"
	DropStale            = "stale"
	DropRecordQueueFull  = "record_queue_full"
)

// Metrics collects pipeline counters. A nil Registerer keeps them
// unregistered, which lets several consoles coexist in one process.
type Metrics struct {
	FramesReceived     *prometheus.CounterVec
	FramesDecoded      *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	RecordsDelivered   prometheus.Counter
	Connections        prometheus.Gauge
	Reconnects         prometheus.Counter
	DirectoryConnected prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viz",
			Name:      "frames_received_total",
			Help:      "Raw frames received on data channels.",
		}, []string{"topic"}),
		FramesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viz",
			Name:      "frames_decoded_total",
			Help:      "Frames decoded into records.",
		}, []string{"kind"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viz",
			Name:      "frames_dropped_total",
			Help:      "Frames or records dropped before reaching a view.",
		}, []string{"reason"}),
		RecordsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "viz",
			Name:      "records_delivered_total",
			Help:      "Records applied to views.",
		}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "viz",
			Name:      "connections_open",
			Help:      "Open data channel connections.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "viz",
			Name:      "reconnects_total",
			Help:      "Connection attempts scheduled after a failure or an involuntary close.",
		}),
		DirectoryConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "viz",
			Name:      "directory_connected",
			Help:      "1 while the control channel is open.",
		}),
	}
}

func (m *Metrics) dropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}
