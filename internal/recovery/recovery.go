// Package recovery implements the recovery manager from spec §4.D: for each
// (stream, error, attempt) it consults the stream's circuit breaker and
// retry policy, sleeps the computed delay in a way that observes
// cancellation, classifies the error against the action matrix, and
// reports back a RecoveryAction while recording failure history and
// telemetry.
package recovery

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/destenson/dsl-rs-go/internal/breaker"
	"github.com/destenson/dsl-rs-go/internal/dslerr"
	"github.com/destenson/dsl-rs-go/internal/retry"
	"github.com/destenson/dsl-rs-go/internal/stream"
)

// ClassifierFunc maps an error to a preferred RecoveryAction, independent of
// retry-budget bookkeeping. The default classifier below implements the
// action matrix from spec §4.D, supplemented with the exact substring
// classifiers from the source's rtsp/file source error handlers.
type ClassifierFunc func(err error) stream.RecoveryAction

// SourceOptions parameterizes the default classifier for a stream.
type SourceOptions struct {
	// LoopOnEOF mirrors the source's loop_on_eof: when a Source error's
	// message contains "End of file", Ignore is returned if true (after the
	// caller performs its own seek-to-beginning), Remove otherwise.
	LoopOnEOF bool
	// RetryOn401 mirrors retry_on_401: when a Network error's message
	// contains "401", Replace is returned if true.
	RetryOn401 bool
}

// FailurePattern is one entry in the bounded failure history (spec §3).
type FailurePattern struct {
	Timestamp time.Time
	Kind      dslerr.Kind
	StreamID  string
}

// Stats is the recovery manager's telemetry snapshot.
type Stats struct {
	TotalRecoveries  uint64
	FailedRecoveries uint64
	CircuitTrips     uint64
	AvgRecoveryTime  time.Duration
}

type telemetry struct {
	mu               sync.Mutex
	totalRecoveries  uint64
	failedRecoveries uint64
	circuitTrips     uint64
	recoveryTimes    []time.Duration
}

func (t *telemetry) recordRecovery(d time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		t.totalRecoveries++
	} else {
		t.failedRecoveries++
	}
	t.recoveryTimes = append(t.recoveryTimes, d)
}

func (t *telemetry) recordCircuitTrip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.circuitTrips++
}

func (t *telemetry) stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var avg time.Duration
	if len(t.recoveryTimes) > 0 {
		var sum time.Duration
		for _, d := range t.recoveryTimes {
			sum += d
		}
		avg = sum / time.Duration(len(t.recoveryTimes))
	}
	return Stats{
		TotalRecoveries:  t.totalRecoveries,
		FailedRecoveries: t.failedRecoveries,
		CircuitTrips:     t.circuitTrips,
		AvgRecoveryTime:  avg,
	}
}

type streamOpts struct {
	policy     retry.Policy
	hasPolicy  bool
	retryCfg   retry.Config
	br         *breaker.Breaker
	classifier ClassifierFunc
	source     SourceOptions
}

// Manager is the per-process recovery manager; one instance serves every
// stream, keyed by stream id.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*streamOpts

	historyMu sync.Mutex
	history   []FailurePattern

	telemetry telemetry
	rng       *rand.Rand
}

// New returns a Manager with no per-stream overrides registered; streams
// default to the Exponential policy with retry.DefaultConfig() and no
// circuit breaker (should_attempt_recovery treats an unregistered breaker
// as always-allow, matching the source).
func New() *Manager {
	return &Manager{
		streams: make(map[string]*streamOpts),
		history: make([]FailurePattern, 0, 1000),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// NewWithRand is New with an injected jitter source, for deterministic
// tests of Exponential-with-jitter delays.
func NewWithRand(rng *rand.Rand) *Manager {
	m := New()
	if rng != nil {
		m.rng = rng
	}
	return m
}

func (m *Manager) opts(streamID string) *streamOpts {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.streams[streamID]
	if !ok {
		o = &streamOpts{retryCfg: retry.DefaultConfig()}
		m.streams[streamID] = o
	}
	return o
}

// SetPolicy overrides the recovery policy for streamID.
func (m *Manager) SetPolicy(streamID string, policy retry.Policy) {
	o := m.opts(streamID)
	m.mu.Lock()
	o.policy = policy
	o.hasPolicy = true
	m.mu.Unlock()
}

// SetRetryConfig overrides the attempt budget / exponential parameters for
// streamID.
func (m *Manager) SetRetryConfig(streamID string, cfg retry.Config) {
	o := m.opts(streamID)
	m.mu.Lock()
	o.retryCfg = cfg
	m.mu.Unlock()
}

// EnableCircuitBreaker attaches a circuit breaker to streamID.
func (m *Manager) EnableCircuitBreaker(streamID string, cfg breaker.Config) {
	o := m.opts(streamID)
	m.mu.Lock()
	o.br = breaker.New(cfg)
	m.mu.Unlock()
}

// SetClassifier overrides the default action-matrix classifier for
// streamID.
func (m *Manager) SetClassifier(streamID string, fn ClassifierFunc) {
	o := m.opts(streamID)
	m.mu.Lock()
	o.classifier = fn
	m.mu.Unlock()
}

// SetSourceOptions configures the parameters the default classifier
// consults for streamID.
func (m *Manager) SetSourceOptions(streamID string, opts SourceOptions) {
	o := m.opts(streamID)
	m.mu.Lock()
	o.source = opts
	m.mu.Unlock()
}

// ShouldAttemptRecovery reports whether streamID's circuit breaker (if any)
// currently allows a recovery attempt.
func (m *Manager) ShouldAttemptRecovery(streamID string) bool {
	o := m.opts(streamID)
	m.mu.Lock()
	br := o.br
	m.mu.Unlock()
	if br == nil {
		return true
	}
	return br.ShouldAllowRequest()
}

// ExecuteRecovery runs the seven-step flow from spec §4.D for a single
// (stream, error, attempt) and returns the action to apply.
func (m *Manager) ExecuteRecovery(ctx context.Context, streamID string, err error, attempt int) (stream.RecoveryAction, error) {
	start := time.Now()

	// Step 1: circuit breaker gate.
	if !m.ShouldAttemptRecovery(streamID) {
		return stream.ActionEscalate, nil
	}

	// Step 2: record failure in history.
	m.recordFailure(streamID, err)

	o := m.opts(streamID)
	m.mu.Lock()
	policy := o.policy
	hasPolicy := o.hasPolicy
	cfg := o.retryCfg
	classifier := o.classifier
	srcOpts := o.source
	br := o.br
	m.mu.Unlock()

	if !hasPolicy {
		policy = retry.Exponential(cfg)
	}

	// Step 4: compute delay, sleep observing cancellation.
	delay := policy.Delay(attempt, m.rng)
	if err := sleepContext(ctx, delay); err != nil {
		return stream.ActionEscalate, nil
	}

	// Step 5: classify by kind, then reconcile with the attempt budget.
	if classifier == nil {
		classifier = defaultClassifier(srcOpts)
	}
	action := classifier(err)

	switch action {
	case stream.ActionRemove, stream.ActionReplace, stream.ActionIgnore:
		// terminal per the action matrix; retry budget does not apply.
	default:
		if attempt >= cfg.MaxAttempts {
			action = stream.ActionEscalate
		}
	}

	// Step 6/7: update circuit breaker + telemetry.
	success := action == stream.ActionRetry || action == stream.ActionIgnore || action == stream.ActionRestart
	m.telemetry.recordRecovery(time.Since(start), success)

	if br != nil {
		if success {
			br.OnSuccess()
		} else {
			br.OnFailure()
			if br.State() == breaker.Open {
				m.telemetry.recordCircuitTrip()
			}
		}
	}

	return action, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) recordFailure(streamID string, err error) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history = append(m.history, FailurePattern{
		Timestamp: time.Now(),
		Kind:      dslerr.KindOf(err),
		StreamID:  streamID,
	})
	if len(m.history) > 1000 {
		m.history = m.history[len(m.history)-1000:]
	}
}

// FailurePatterns returns the error kinds recorded for streamID, oldest
// first.
func (m *Manager) FailurePatterns(streamID string) []dslerr.Kind {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	var kinds []dslerr.Kind
	for _, p := range m.history {
		if p.StreamID == streamID {
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds
}

// RecentFailures returns history entries newer than now-window.
func (m *Manager) RecentFailures(window time.Duration) []FailurePattern {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	cutoff := time.Now().Add(-window)
	var out []FailurePattern
	for _, p := range m.history {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// HistoryLen returns the current failure-history length (≤1000).
func (m *Manager) HistoryLen() int {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	return len(m.history)
}

// Telemetry returns the manager's current stats.
func (m *Manager) Telemetry() Stats {
	return m.telemetry.stats()
}

// ResetStreamState force-closes streamID's circuit breaker, if any.
func (m *Manager) ResetStreamState(streamID string) {
	o := m.opts(streamID)
	m.mu.Lock()
	br := o.br
	m.mu.Unlock()
	if br != nil {
		br.Reset()
	}
}

// CircuitState returns streamID's breaker state, if a breaker is enabled.
func (m *Manager) CircuitState(streamID string) (breaker.State, bool) {
	o := m.opts(streamID)
	m.mu.Lock()
	br := o.br
	m.mu.Unlock()
	if br == nil {
		return breaker.Closed, false
	}
	return br.State(), true
}

// defaultClassifier implements the action matrix from spec §4.D,
// supplemented by the exact substring rules from
// source/rtsp_source_robust.rs::classify_network_error and
// source/file_source_robust.rs::handle_error.
func defaultClassifier(opts SourceOptions) ClassifierFunc {
	return func(err error) stream.RecoveryAction {
		if err == nil {
			return stream.ActionIgnore
		}
		kind := dslerr.KindOf(err)
		msg := err.Error()

		switch kind {
		case dslerr.KindSource:
			if strings.Contains(msg, "End of file") {
				if opts.LoopOnEOF {
					return stream.ActionIgnore
				}
				return stream.ActionRemove
			}
			return stream.ActionRestart
		case dslerr.KindFileIO:
			return stream.ActionRetry
		case dslerr.KindNetwork:
			switch {
			case strings.Contains(msg, "401") && opts.RetryOn401:
				return stream.ActionReplace
			case containsAny(msg, "timeout", "Timeout"):
				return stream.ActionRetry
			case strings.Contains(msg, "404"):
				return stream.ActionRemove
			case strings.Contains(msg, "connection refused"):
				return stream.ActionRetry
			default:
				return stream.ActionRestart
			}
		case dslerr.KindResourceExhaustion:
			return stream.ActionRemove
		case dslerr.KindConfiguration:
			return stream.ActionRemove
		default:
			return stream.ActionRestart
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
