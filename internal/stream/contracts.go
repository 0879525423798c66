// Package stream holds the domain types shared across the supervision core:
// the Source/Sink capability contracts (spec §4.I, §6), StreamMetrics,
// StreamHealth, and the stream/queue configuration surfaces. It does not
// implement a concrete source or sink — those are external collaborators
// the caller constructs and hands to the supervisor at registration.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/destenson/dsl-rs-go/internal/lifecycle"
	"github.com/destenson/dsl-rs-go/internal/retry"
)

// RecoveryAction is the supervisor's vocabulary of responses to a failure,
// returned by handle_error and by the recovery manager's decision (spec
// §4.D/§4.I).
type RecoveryAction int

const (
	ActionIgnore RecoveryAction = iota
	ActionRetry
	ActionRestart
	ActionReplace
	ActionRemove
	ActionEscalate
)

func (a RecoveryAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionRestart:
		return "restart"
	case ActionReplace:
		return "replace"
	case ActionRemove:
		return "remove"
	case ActionEscalate:
		return "escalate"
	default:
		return "ignore"
	}
}

// Metrics is StreamMetrics (spec §3): updated by the source/sink via the
// controller, never speculatively.
type Metrics struct {
	FPS             float64
	BitrateBps      uint64
	FramesProcessed uint64
	FramesDropped   uint64
	Errors          uint64
	Uptime          time.Duration
	LastFrameTime   *time.Time
}

// Source is the polymorphic capability set a caller-supplied stream source
// must honor (spec §6.1). Connect/Disconnect/HandleError may suspend.
type Source interface {
	Name() string
	Element() any
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	State() lifecycle.State
	Metrics() Metrics
	SetRetryConfig(cfg retry.Config)
	HandleError(ctx context.Context, err error) (RecoveryAction, error)
}

// Sink is the polymorphic capability set a caller-supplied stream sink must
// honor (spec §6.2). Prepare/Cleanup/HandleError may suspend.
type Sink interface {
	Name() string
	Element() any
	Prepare(ctx context.Context) error
	Cleanup(ctx context.Context) error
	State() lifecycle.State
	Metrics() Metrics
	HandleError(ctx context.Context, err error) (RecoveryAction, error)
}

// QueueConfig is the decoupling queue's size/backpressure policy (spec
// §4.J/§6.4). Defaults mirror the source's QueueConfig::default().
type QueueConfig struct {
	MaxSizeBuffers      int
	MaxSizeBytes        uint64
	MaxSizeTime         time.Duration
	MinThresholdBuffers int
	// Leaky selects drop-oldest ("downstream") queue behavior when true
	// (the default, preserving liveness); false blocks, exposing
	// back-pressure at the cost of potential stalls.
	Leaky bool
}

// DefaultQueueConfig returns max_size_buffers=200, max_size_bytes=10MB,
// max_size_time=1s, min_threshold_buffers=10, leaky=true.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxSizeBuffers:      200,
		MaxSizeBytes:        10 * 1024 * 1024,
		MaxSizeTime:         time.Second,
		MinThresholdBuffers: 10,
		Leaky:               true,
	}
}

// Config is the per-stream registration configuration (spec §6.4).
type Config struct {
	Name            string
	BufferSize      int
	MaxLatency      time.Duration
	EnableIsolation bool
	QueueProperties QueueConfig
}

// Health is StreamHealth (spec §3): one per registered stream, destroyed on
// removal, protected by its own lock so watchdog/health-monitor readers
// never contend with each other or with the owning stream's writes beyond a
// single field access.
type Health struct {
	mu sync.Mutex

	state             lifecycle.State
	lastError         error
	consecutiveErrors int
	recoveryAttempts  int
	metrics           Metrics
}

// NewHealth returns a Health record in lifecycle.Idle with zeroed counters.
func NewHealth() *Health {
	return &Health{state: lifecycle.Idle}
}

// Snapshot is an immutable point-in-time read of a Health record.
type Snapshot struct {
	State             lifecycle.State
	LastError         error
	ConsecutiveErrors int
	RecoveryAttempts  int
	Metrics           Metrics
}

// IsHealthy implements the invariant from spec §3:
// is_healthy == (state ∈ {Running, Paused}) ∧ consecutive_errors < 3.
func (s Snapshot) IsHealthy() bool {
	return (s.State == lifecycle.Running || s.State == lifecycle.Paused) && s.ConsecutiveErrors < 3
}

// Snapshot returns a consistent read of h.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		State:             h.state,
		LastError:         h.lastError,
		ConsecutiveErrors: h.consecutiveErrors,
		RecoveryAttempts:  h.recoveryAttempts,
		Metrics:           h.metrics,
	}
}

// SetState updates the tracked lifecycle state, independent of the
// authoritative lifecycle.Table entry; callers keep the two in sync by
// always driving state changes through lifecycle.Table.Transition first and
// mirroring the result here.
func (h *Health) SetState(s lifecycle.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// RecordError records err, incrementing the consecutive-error counter.
func (h *Health) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = err
	h.consecutiveErrors++
}

// RecordSuccess clears the consecutive-error counter without touching
// LastError (kept for diagnostics).
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveErrors = 0
}

// IncrementRecoveryAttempts bumps the recovery-attempt counter.
func (h *Health) IncrementRecoveryAttempts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recoveryAttempts++
}

// UpdateMetrics replaces the tracked metrics snapshot.
func (h *Health) UpdateMetrics(m Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}
