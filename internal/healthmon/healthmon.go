// Package healthmon implements the health monitor from spec §4.G: a
// per-tick aggregator that rolls up per-stream metrics, raises alerts into
// a bounded ring-buffered event log, and produces a HealthReport on demand.
// It is complementary to, not a replacement for, internal/watchdog — the
// control-plane stall detector and this metrics-plane one use independent
// thresholds, per spec's Open Questions resolution.
package healthmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/destenson/dsl-rs-go/internal/lifecycle"
	"github.com/destenson/dsl-rs-go/internal/stream"
)

// Severity is one of Info, Warning, Error, Critical.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return "info"
	}
}

// Alert is a HealthAlert (spec §3): one entry in the bounded event log.
type Alert struct {
	Timestamp time.Time
	Severity  Severity
	StreamID  string // empty for system-wide alerts
	Message   string
}

// Status is the HealthReport's overall rollup.
type Status int

const (
	Healthy Status = iota
	Degraded
	Critical_ // trailing underscore avoids colliding with Severity's Critical in the same package
)

func (s Status) String() string {
	switch s {
	case Degraded:
		return "degraded"
	case Critical_:
		return "critical"
	default:
		return "healthy"
	}
}

// SystemMetrics is the HealthReport's system-wide rollup.
type SystemMetrics struct {
	TotalStreams    int
	ActiveStreams   int
	FailedStreams   int
	TotalMemoryMB   uint64
	TotalCPUPercent float64
	PipelineUptime  time.Duration
}

// Report is a HealthReport: a point-in-time snapshot.
type Report struct {
	Timestamp     time.Time
	Overall       Status
	StreamHealth  map[string]stream.Snapshot
	SystemMetrics SystemMetrics
	Alerts        []Alert
}

// Config mirrors MonitorConfig's thresholds.
type Config struct {
	CheckInterval       time.Duration
	DeadlockTimeout     time.Duration
	MemoryThresholdMB   uint64
	CPUThresholdPercent float64
	FPSThreshold        float64
	ErrorThreshold      uint64
	EventLogSize        int
}

// DefaultConfig matches the source's defaults: check_interval=1s,
// deadlock_timeout=10s, memory_threshold_mb=1024, cpu_threshold_percent=80,
// fps_threshold=10, error_threshold=100, event_log_size=1000.
func DefaultConfig() Config {
	return Config{
		CheckInterval:       time.Second,
		DeadlockTimeout:     10 * time.Second,
		MemoryThresholdMB:   1024,
		CPUThresholdPercent: 80.0,
		FPSThreshold:        10.0,
		ErrorThreshold:      100,
		EventLogSize:        1000,
	}
}

// Monitor is the process-wide health monitor.
type Monitor struct {
	cfg       Config
	startTime time.Time
	now       func() time.Time

	mu      sync.RWMutex
	streams map[string]*stream.Health

	logMu sync.Mutex
	log   []Alert

	checksMu sync.Mutex
	checks   uint64
}

// New constructs a Monitor with no registered streams.
func New(cfg Config) *Monitor {
	if cfg.EventLogSize <= 0 {
		cfg.EventLogSize = 1000
	}
	return &Monitor{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		streams:   make(map[string]*stream.Health),
		log:       make([]Alert, 0, cfg.EventLogSize),
	}
}

// NewWithClock is New with an injectable clock.
func NewWithClock(cfg Config, now func() time.Time) *Monitor {
	m := New(cfg)
	if now != nil {
		m.now = now
		m.startTime = now()
	}
	return m
}

// RegisterStream associates id with h and logs an Info alert.
func (m *Monitor) RegisterStream(id string, h *stream.Health) {
	m.mu.Lock()
	m.streams[id] = h
	m.mu.Unlock()
	m.logEvent(Alert{Timestamp: m.now(), Severity: Info, StreamID: id, Message: "stream registered"})
}

// UnregisterStream removes id and logs an Info alert.
func (m *Monitor) UnregisterStream(id string) {
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
	m.logEvent(Alert{Timestamp: m.now(), Severity: Info, StreamID: id, Message: "stream unregistered"})
}

func (m *Monitor) logEvent(a Alert) {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.log = append(m.log, a)
	if over := len(m.log) - m.cfg.EventLogSize; over > 0 {
		m.log = m.log[over:]
	}
}

// RecentAlerts returns the last count alerts (or fewer if the log is
// shorter), newest last.
func (m *Monitor) RecentAlerts(count int) []Alert {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if count <= 0 || count > len(m.log) {
		count = len(m.log)
	}
	out := make([]Alert, count)
	copy(out, m.log[len(m.log)-count:])
	return out
}

// ClearAlerts empties the event log.
func (m *Monitor) ClearAlerts() {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.log = m.log[:0]
}

// EventLogLen returns the current event log length (<= EventLogSize).
func (m *Monitor) EventLogLen() int {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return len(m.log)
}

// Tick runs the per-interval checks from spec §4.G over every registered
// stream: stall detection, low-FPS warning, and high-error-count warning.
func (m *Monitor) Tick() {
	m.mu.RLock()
	type entry struct {
		id string
		h  *stream.Health
	}
	entries := make([]entry, 0, len(m.streams))
	for id, h := range m.streams {
		entries = append(entries, entry{id, h})
	}
	m.mu.RUnlock()

	now := m.now()
	for _, e := range entries {
		snap := e.h.Snapshot()

		m.checksMu.Lock()
		m.checks++
		m.checksMu.Unlock()

		if snap.Metrics.LastFrameTime != nil && now.Sub(*snap.Metrics.LastFrameTime) > m.cfg.DeadlockTimeout {
			m.logEvent(Alert{Timestamp: now, Severity: Critical, StreamID: e.id,
				Message: fmt.Sprintf("no activity for %s", now.Sub(*snap.Metrics.LastFrameTime))})
		}
		if snap.State == lifecycle.Running && snap.Metrics.FPS < m.cfg.FPSThreshold {
			m.logEvent(Alert{Timestamp: now, Severity: Warning, StreamID: e.id,
				Message: fmt.Sprintf("low fps: %.2f", snap.Metrics.FPS)})
		}
		if snap.Metrics.Errors > m.cfg.ErrorThreshold {
			m.logEvent(Alert{Timestamp: now, Severity: Error, StreamID: e.id,
				Message: fmt.Sprintf("high error count: %d", snap.Metrics.Errors)})
		}
	}
}

// ChecksPerformed returns the number of per-stream checks performed across
// all ticks, the counter backing the stream_health_checks metric.
func (m *Monitor) ChecksPerformed() uint64 {
	m.checksMu.Lock()
	defer m.checksMu.Unlock()
	return m.checks
}

// GenerateReport produces a HealthReport: rollup rules are Critical if any
// stream is Failed or total CPU exceeds threshold; else Degraded if fewer
// streams are active than total; else Healthy. The Monitor does not measure
// CPU: SystemMetrics.TotalCPUPercent is left at 0, so the CPU rule never
// raises the status.
func (m *Monitor) GenerateReport() Report {
	m.mu.RLock()
	streamHealth := make(map[string]stream.Snapshot, len(m.streams))
	var active, failed int
	for id, h := range m.streams {
		snap := h.Snapshot()
		streamHealth[id] = snap
		switch snap.State {
		case lifecycle.Running, lifecycle.Paused:
			active++
		case lifecycle.Failed:
			failed++
		}
	}
	total := len(m.streams)
	m.mu.RUnlock()

	sysMetrics := SystemMetrics{
		TotalStreams:   total,
		ActiveStreams:  active,
		FailedStreams:  failed,
		PipelineUptime: m.now().Sub(m.startTime),
	}

	var overall Status
	switch {
	case failed > 0 || sysMetrics.TotalCPUPercent > m.cfg.CPUThresholdPercent:
		overall = Critical_
	case active < total:
		overall = Degraded
	default:
		overall = Healthy
	}

	return Report{
		Timestamp:     m.now(),
		Overall:       overall,
		StreamHealth:  streamHealth,
		SystemMetrics: sysMetrics,
		Alerts:        m.RecentAlerts(0),
	}
}

// Serve runs the tick loop until ctx is cancelled, matching suture.Service.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick()
		}
	}
}

func (m *Monitor) String() string { return "health-monitor" }
