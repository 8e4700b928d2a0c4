package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Reject reasons recorded by pipes.
const (
	RejectLength    = "length"
	RejectVersion   = "version"
	RejectDecode    = "decode"
	RejectEncode    = "encode"
	RejectTooLarge  = "too_large"
	RejectTransport = "transport"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport.",
		},
		[]string{"transport"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "bytes_sent_total",
			Help:      "Framed bytes handed to the transport.",
		},
		[]string{"transport"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "frames_received_total",
			Help:      "Frames received and decoded.",
		},
		[]string{"transport"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "bytes_received_total",
			Help:      "Bytes delivered by the transport.",
		},
		[]string{"transport"},
	)
	remoteClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "remote_closed_total",
			Help:      "Receives that observed the remote side closing.",
		},
		[]string{"transport"},
	)
	frameRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipcwire",
			Subsystem: "pipe",
			Name:      "frame_failures_total",
			Help:      "Send and receive failures by reason.",
		},
		[]string{"transport", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, bytesSent, framesReceived, bytesReceived, remoteClosed, frameRejects)
	})
}

func RecordSend(transport string, n int) {
	RegisterMetrics()
	framesSent.WithLabelValues(transport).Inc()
	bytesSent.WithLabelValues(transport).Add(float64(n))
}

func RecordReceive(transport string, n int) {
	RegisterMetrics()
	framesReceived.WithLabelValues(transport).Inc()
	bytesReceived.WithLabelValues(transport).Add(float64(n))
}

func RecordRemoteClosed(transport string) {
	RegisterMetrics()
	remoteClosed.WithLabelValues(transport).Inc()
}

func RecordFailure(transport, reason string) {
	RegisterMetrics()
	frameRejects.WithLabelValues(transport, reason).Inc()
}
