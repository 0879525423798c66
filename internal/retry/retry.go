// Package retry computes next-attempt delays for stream recovery.
//
// The engine is pure and deterministic when jitter is disabled: callers
// supply an attempt number and a Policy and get back a delay, never a
// side-effecting sleep. Sleeping (and respecting cancellation while doing
// so) is the caller's job, mirroring stream.Backoff's separation between
// delay computation and Wait/WaitContext in the teacher repo.
package retry

import (
	"math/rand"
	"time"
)

// Kind tags which variant of RetryPolicy a Policy value holds. Comparisons
// across the module must switch on Kind, never on the zero-valued fields of
// variants that do not apply.
type Kind int

const (
	KindImmediate Kind = iota
	KindFixedDelay
	KindExponential
	KindCustom
)

// CustomFunc computes a delay for a zero-based attempt number. It replaces
// the source's "Custom(strategy)" trait object. The source's Clone impl for
// Box<dyn RecoveryStrategy> silently substituted a default strategy for any
// Custom policy it tried to clone; Policy sidesteps the whole problem by
// being an immutable value (funcs are not deep-cloned in Go the way a boxed
// trait object would be, and Policy is never mutated after construction by
// NewCustom) rather than a handle that could be cloned incorrectly.
type CustomFunc func(attempt int) time.Duration

// Policy is the tagged variant from spec §3: Immediate | FixedDelay(d) |
// Exponential{initial,max,base,jitter} | Custom(strategy).
type Policy struct {
	kind  Kind
	fixed time.Duration
	exp   Config
	name  string
	fn    CustomFunc
}

// Config is RetryConfig: the exponential parameters plus the attempt
// budget. DefaultConfig matches the source's compiled-in defaults.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultConfig returns the source's defaults: 10 attempts, 100ms initial,
// 30s cap, base 2.0, jitter on.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Immediate returns a Policy that never delays.
func Immediate() Policy { return Policy{kind: KindImmediate} }

// FixedDelay returns a Policy that always waits d.
func FixedDelay(d time.Duration) Policy { return Policy{kind: KindFixedDelay, fixed: d} }

// Exponential returns a Policy driven by cfg's initial/max/base/jitter
// fields; cfg.MaxAttempts is the caller's budget, enforced by the recovery
// manager, not by this package.
func Exponential(cfg Config) Policy { return Policy{kind: KindExponential, exp: cfg} }

// NewCustom builds a Custom Policy from a named strategy function. name is
// carried for logging/telemetry only.
func NewCustom(name string, fn CustomFunc) Policy {
	return Policy{kind: KindCustom, name: name, fn: fn}
}

// Kind reports which variant p holds.
func (p Policy) Kind() Kind { return p.kind }

// Name returns the Custom policy's name, or "" for built-in variants.
func (p Policy) Name() string { return p.name }

// Delay computes the delay for a zero-based attempt under p, perturbing by
// uniform jitter in [-0.2*delay, +0.2*delay] when the variant has jitter
// enabled, clamped at 0. rng may be nil, in which case jitter is treated as
// disabled regardless of the variant's own Jitter flag — this is the
// package's deterministic test seam alongside Config.Jitter=false.
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	switch p.kind {
	case KindImmediate:
		return 0
	case KindFixedDelay:
		return p.fixed
	case KindExponential:
		return exponentialDelay(attempt, p.exp, rng)
	case KindCustom:
		if p.fn == nil {
			return 0
		}
		return p.fn(attempt)
	default:
		return 0
	}
}

// Delay computes delay(attempt, cfg) = min(initial * base^attempt, max),
// the pure Exponential form without constructing a Policy wrapper.
func Delay(attempt int, cfg Config, rng *rand.Rand) time.Duration {
	return exponentialDelay(attempt, cfg, rng)
}

func exponentialDelay(attempt int, cfg Config, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := cfg.ExponentialBase
	if base <= 0 {
		base = 2.0
	}
	raw := float64(cfg.InitialDelay) * pow(base, attempt)
	capped := raw
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && capped > max {
		capped = max
	}

	if cfg.Jitter && rng != nil {
		perturb := capped * 0.2 * (2*rng.Float64() - 1)
		capped += perturb
	}
	if capped < 0 {
		capped = 0
	}
	return time.Duration(capped)
}

// pow is a tiny integer-exponent power function; math.Pow pulls in no extra
// dependency but attempt counts are always small non-negative integers, so
// a multiply loop avoids a float64 exponent argument entirely.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// NewRand returns a seeded, non-cryptographic random source suitable for
// jitter. Tests should construct their own *rand.Rand with a fixed seed
// instead of calling this, to keep delay assertions reproducible.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
