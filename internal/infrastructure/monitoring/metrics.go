package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by the sync counters
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the applet server's Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Applet metrics
	AppletsCreated  prometheus.Counter
	AppletsReplaced prometheus.Counter
	StorageWrites   prometheus.Counter
	Uploads         *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON health endpoint
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalDuration float64 `json:"total_duration_seconds"`
	Uptime        float64 `json:"uptime_seconds"`
}

// NewMetrics registers the server metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appletsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appletsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appletsync_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appletsync_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		AppletsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appletsync_applets_created_total",
				Help: "Total number of applets created",
			},
		),
		AppletsReplaced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appletsync_applets_replaced_total",
				Help: "Total number of applets regenerated from a change request",
			},
		),
		StorageWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appletsync_storage_puts_total",
				Help: "Total number of storage snapshots accepted",
			},
		),
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appletsync_uploads_total",
				Help: "Audio uploads by outcome",
			},
			[]string{"result"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "appletsync_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordUpload records an audio upload outcome
func (m *Metrics) RecordUpload(result string) {
	m.Uploads.WithLabelValues(result).Inc()
}

// Snapshot returns the current request totals
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Uptime = time.Since(m.startTime).Seconds()
	return s
}

// SyncMetrics holds the sync engine's counters. A nil *SyncMetrics is valid
// and records nothing.
type SyncMetrics struct {
	Probes          *prometheus.CounterVec
	Reloads         *prometheus.CounterVec
	Writes          *prometheus.CounterVec
	ChangesDetected prometheus.Counter
}

// NewSyncMetrics registers the sync engine counters on reg
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		Probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appletsync_probes_total",
				Help: "Change detection probe cycles by outcome",
			},
			[]string{"result"},
		),
		Reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appletsync_reloads_total",
				Help: "Applet loads by outcome",
			},
			[]string{"result"},
		),
		Writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appletsync_writes_total",
				Help: "Storage write-backs by outcome",
			},
			[]string{"result"},
		),
		ChangesDetected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appletsync_changes_detected_total",
				Help: "Remote changes observed by the detector",
			},
		),
	}
}

// RecordProbe records one probe cycle
func (m *SyncMetrics) RecordProbe(err error) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(result(err)).Inc()
}

// RecordReload records one load attempt
func (m *SyncMetrics) RecordReload(err error) {
	if m == nil {
		return
	}
	m.Reloads.WithLabelValues(result(err)).Inc()
}

// RecordWrite records one storage write-back
func (m *SyncMetrics) RecordWrite(err error) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(result(err)).Inc()
}

// IncChanges counts a detected remote change
func (m *SyncMetrics) IncChanges() {
	if m == nil {
		return
	}
	m.ChangesDetected.Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
