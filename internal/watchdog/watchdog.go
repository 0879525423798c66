// Package watchdog implements the stall detector from spec §4.F: a
// periodic tick that demotes any stream whose last-activity witness has
// gone quiet past a configured timeout, emitting a Critical alert (a
// supplement over the source's WatchdogTimer, which demoted silently).
//
// Watchdog implements suture.Service's Serve(ctx) error shape so it can be
// registered directly with the controller's ambient suture.Supervisor.
package watchdog

import (
	"context"
	"sync"
	"time"
)

// Severity mirrors healthmon.Severity's values; duplicated here (rather
// than imported) to keep watchdog free of a dependency on healthmon, since
// the controller is what turns a watchdog trip into a logged Critical
// alert.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
)

// Trip is reported to OnTrip whenever a stream's liveness window expires.
type Trip struct {
	StreamID          string
	ConsecutiveErrors int
	Severity          Severity
	Message           string
}

// Config controls the tick cadence and stall threshold.
type Config struct {
	TickInterval time.Duration
	Timeout      time.Duration
}

// DefaultConfig returns tick_interval=1s, timeout=10s (spec's own stated
// default, matching PipelineConfig.watchdog_timeout in original_source).
func DefaultConfig() Config {
	return Config{TickInterval: time.Second, Timeout: 10 * time.Second}
}

type entry struct {
	mu                sync.Mutex
	lastActivity       time.Time
	consecutiveErrors int
}

// Watchdog ticks on its own schedule, never blocking on a stream's lock: if
// an entry's mutex is contended it is skipped for that tick and retried
// next time around.
type Watchdog struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	streams map[string]*entry

	// OnTrip is invoked (outside any internal lock) when a stream stalls.
	// Demote is invoked first to let the caller drive the stream's
	// lifecycle transition (Running -> Recovering); if Demote returns false
	// (e.g. the stream was not in Running) OnTrip is still called so the
	// Critical alert is not silently dropped, but no further action is
	// implied.
	OnTrip func(Trip)
	Demote func(streamID string) bool
}

// New constructs a Watchdog. onTrip may be nil (ticks still run but emit no
// alerts); demote may be nil (no lifecycle coupling, useful for isolated
// unit tests of the tick mechanics alone).
func New(cfg Config, demote func(streamID string) bool, onTrip func(Trip)) *Watchdog {
	return &Watchdog{
		cfg:     cfg,
		now:     time.Now,
		streams: make(map[string]*entry),
		OnTrip:  onTrip,
		Demote:  demote,
	}
}

// NewWithClock is New with an injectable clock, for deterministic tests of
// the trip timing.
func NewWithClock(cfg Config, now func() time.Time, demote func(streamID string) bool, onTrip func(Trip)) *Watchdog {
	w := New(cfg, demote, onTrip)
	if now != nil {
		w.now = now
	}
	return w
}

// Register adds streamID with last_activity = now.
func (w *Watchdog) Register(streamID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streams[streamID] = &entry{lastActivity: w.now()}
}

// Unregister removes streamID.
func (w *Watchdog) Unregister(streamID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.streams, streamID)
}

// Feed resets streamID's last-activity witness to now, monotonically
// forward. It is a no-op for an unregistered stream.
func (w *Watchdog) Feed(streamID string) {
	w.mu.RLock()
	e, ok := w.streams[streamID]
	w.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := w.now()
	if now.After(e.lastActivity) {
		e.lastActivity = now
	}
	e.consecutiveErrors = 0
}

// LastActivity returns streamID's last-fed instant, for tests.
func (w *Watchdog) LastActivity(streamID string) (time.Time, bool) {
	w.mu.RLock()
	e, ok := w.streams[streamID]
	w.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity, true
}

// Tick runs a single pass over all registered streams, demoting and
// emitting Critical alerts for any stream whose liveness window has
// expired. It never blocks on a contended entry.
func (w *Watchdog) Tick() {
	w.mu.RLock()
	ids := make([]string, 0, len(w.streams))
	entries := make([]*entry, 0, len(w.streams))
	for id, e := range w.streams {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	w.mu.RUnlock()

	now := w.now()
	for i, e := range entries {
		if !e.mu.TryLock() {
			continue // contended; retry next tick rather than block
		}
		expired := now.Sub(e.lastActivity) > w.cfg.Timeout
		if expired {
			e.consecutiveErrors++
		}
		consecutive := e.consecutiveErrors
		e.mu.Unlock()

		if !expired {
			continue
		}

		streamID := ids[i]
		demoted := true
		if w.Demote != nil {
			demoted = w.Demote(streamID)
		}
		if w.OnTrip != nil {
			msg := "stall detected"
			if !demoted {
				msg = "stall detected (stream not in a demotable state)"
			}
			w.OnTrip(Trip{StreamID: streamID, ConsecutiveErrors: consecutive, Severity: Critical, Message: msg})
		}
	}
}

// Serve runs the tick loop until ctx is cancelled, matching suture.Service.
func (w *Watchdog) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick()
		}
	}
}

// String identifies the service for suture's logging, per the supervisor
// tree's fmt.Stringer convention.
func (w *Watchdog) String() string { return "watchdog" }
