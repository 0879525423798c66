// Package breaker implements the per-stream circuit breaker gate described
// in spec §3/§4.C: a Closed/Open/HalfOpen state machine that prevents
// unbounded retry storms against a consistently failing stream.
package breaker

import (
	"sync"
	"time"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config carries the breaker's thresholds. DefaultConfig matches the
// source's compiled-in production defaults; spec §8 scenario 3 uses its own
// fast values (failure_threshold=2, timeout=100ms) constructed directly by
// the caller, not by this default.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenAttempts int
}

// DefaultConfig returns failure_threshold=5, success_threshold=2,
// timeout=30s, half_open_attempts=3.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		HalfOpenAttempts: 3,
	}
}

// Breaker is a single stream's circuit breaker. Zero value is not usable;
// construct with New.
type Breaker struct {
	mu sync.Mutex

	cfg Config
	now func() time.Time

	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	hasFailed       bool
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, now: time.Now}
}

// NewWithClock constructs a Breaker whose notion of "now" is supplied by the
// caller, for deterministic tests of the Open->HalfOpen timeout transition.
func NewWithClock(cfg Config, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, state: Closed, now: now}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnSuccess records a successful recovery action. In HalfOpen it counts
// toward success_threshold and may close the breaker; in Closed it resets
// failure_count; any other state is a no-op.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	case Closed:
		b.failureCount = 0
	}
}

// OnFailure records a failed recovery action. In Closed it counts toward
// failure_threshold and may open the breaker; in HalfOpen any failure
// returns immediately to Open and zeroes both counters.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = b.now()
	b.hasFailed = true

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
		b.failureCount = 0
		b.successCount = 0
	}
}

// ShouldAllowRequest reports whether a recovery attempt may proceed. Closed
// always allows; Open allows (and flips to HalfOpen) only once the timeout
// has elapsed since the last failure; HalfOpen allows while
// success_count < half_open_attempts, capping concurrent probes.
func (b *Breaker) ShouldAllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if !b.hasFailed {
			return false
		}
		if b.now().Sub(b.lastFailureTime) >= b.cfg.Timeout {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false
	case HalfOpen:
		return b.successCount < b.cfg.HalfOpenAttempts
	default:
		return false
	}
}

// Reset forces the breaker back to Closed with both counters zeroed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

// Counts returns the current failure and success counters, for telemetry
// and tests.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.successCount
}
