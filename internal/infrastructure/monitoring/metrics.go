package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Configuration metrics
	ConfigState       prometheus.Gauge
	ConfigTransitions *prometheus.CounterVec
	ConfigProtection  *prometheus.CounterVec
	StartupPhases     *prometheus.HistogramVec

	// VM metrics
	VMsActive      prometheus.Gauge
	VMsCreated     prometheus.Counter
	ScriptDuration prometheus.Histogram
	ScriptErrors   prometheus.Counter

	// Interpreter metrics
	Dispatches *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests   int64   `json:"totalRequests"`
	TotalErrors     int64   `json:"totalErrors"`
	ActiveVMs       int64   `json:"activeVMs"`
	ScriptsExecuted int64   `json:"scriptsExecuted"`
	ScriptErrors    int64   `json:"scriptErrors"`
	Dispatches      uint64  `json:"dispatches"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a metrics collector registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsruntime_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsruntime_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsruntime_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// Configuration metrics
	m.ConfigState = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsruntime_config_state",
			Help: "Lifecycle state of the runtime configuration (0 uninitialized .. 5 unprotected)",
		},
	)
	m.ConfigTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsruntime_config_transitions_total",
			Help: "Runtime configuration state transitions",
		},
		[]string{"from", "to"},
	)
	m.ConfigProtection = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsruntime_config_protection_total",
			Help: "Page protection changes of the runtime configuration",
		},
		[]string{"op", "status"},
	)
	m.StartupPhases = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsruntime_startup_phase_duration_seconds",
			Help:    "Duration of startup phases",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"phase", "status"},
	)

	// VM metrics
	m.VMsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsruntime_vms_active",
			Help: "Number of live JavaScript VMs",
		},
	)
	m.VMsCreated = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "jsruntime_vms_created_total",
			Help: "Total number of JavaScript VMs created",
		},
	)
	m.ScriptDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jsruntime_script_duration_seconds",
			Help:    "Script execution time in seconds",
			Buckets: []float64{.0001, .001, .01, .1, .5, 1, 5, 10, 30},
		},
	)
	m.ScriptErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "jsruntime_script_errors_total",
			Help: "Total number of scripts that failed",
		},
	)

	// Interpreter metrics
	m.Dispatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsruntime_interpreter_dispatch_total",
			Help: "Instructions dispatched through each table",
		},
		[]string{"table"},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "jsruntime_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// StateChanged implements rtconfig.Observer.
func (m *Metrics) StateChanged(from, to rtconfig.State) {
	m.ConfigState.Set(float64(to))
	m.ConfigTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// Protection implements rtconfig.Observer.
func (m *Metrics) Protection(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ConfigProtection.WithLabelValues(op, status).Inc()
}

// VMCreated implements vm.Observer.
func (m *Metrics) VMCreated() {
	m.VMsCreated.Inc()
	m.VMsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveVMs++
	m.mu.Unlock()
}

// VMClosed implements vm.Observer.
func (m *Metrics) VMClosed() {
	m.VMsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveVMs--
	m.mu.Unlock()
}

// ScriptExecuted implements vm.Observer.
func (m *Metrics) ScriptExecuted(d time.Duration, err error) {
	m.ScriptDuration.Observe(d.Seconds())
	m.mu.Lock()
	m.snapshot.ScriptsExecuted++
	if err != nil {
		m.snapshot.ScriptErrors++
	}
	m.mu.Unlock()
	if err != nil {
		m.ScriptErrors.Inc()
	}
}

// Dispatched implements interpreter.Observer.
func (m *Metrics) Dispatched(kind rtconfig.DispatchKind, n uint64) {
	m.Dispatches.WithLabelValues(kind.String()).Add(float64(n))
	m.mu.Lock()
	m.snapshot.Dispatches += n
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
