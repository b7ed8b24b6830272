package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/ftpfs/pkg/session"
)

// sessionMetrics is the Prometheus implementation of the session.Metrics
// interface.
//
// This implementation collects metrics about FTP session activity:
//   - Command counts per verb and status
//   - Dial counts and connection setup latency
//   - Bytes transferred in each direction
type sessionMetrics struct {
	commands     *prometheus.CounterVec
	dials        *prometheus.CounterVec
	dialDuration prometheus.Histogram
	bytesIn      prometheus.Counter
	bytesOut     prometheus.Counter
}

// NewSessionMetrics creates a new Prometheus-backed session metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes sessions to use the built-in no-op implementation.
func NewSessionMetrics() session.Metrics {
	if !IsEnabled() {
		return nil // Sessions will use session.NoopMetrics
	}

	reg := GetRegistry()

	return &sessionMetrics{
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpfs_session_commands_total",
				Help: "Total number of FTP commands sent, by verb and status",
			},
			[]string{"verb", "status"},
		),
		dials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpfs_session_dials_total",
				Help: "Total number of FTP connection attempts, by status",
			},
			[]string{"status"},
		),
		dialDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "ftpfs_session_dial_duration_seconds",
				Help: "Duration of FTP connection setup including login",
				Buckets: []float64{
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
		),
		bytesIn: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftpfs_session_bytes_received_total",
				Help: "Total bytes received over data connections",
			},
		),
		bytesOut: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftpfs_session_bytes_sent_total",
				Help: "Total bytes sent over data connections",
			},
		),
	}
}

// RecordCommand implements session.Metrics.RecordCommand
func (m *sessionMetrics) RecordCommand(verb string, err error) {
	m.commands.WithLabelValues(verb, statusLabel(err)).Inc()
}

// RecordDial implements session.Metrics.RecordDial
func (m *sessionMetrics) RecordDial(duration time.Duration, err error) {
	m.dials.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		m.dialDuration.Observe(duration.Seconds())
	}
}

// RecordBytesIn implements session.Metrics.RecordBytesIn
func (m *sessionMetrics) RecordBytesIn(n int64) {
	m.bytesIn.Add(float64(n))
}

// RecordBytesOut implements session.Metrics.RecordBytesOut
func (m *sessionMetrics) RecordBytesOut(n int64) {
	m.bytesOut.Add(float64(n))
}

// statusLabel maps an error to the status label value.
func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
