// Package lifecycle implements the per-stream state machine from spec §4.E:
// a small, total transition table gating which control-plane actions are
// legal from a stream's current state. The machine lives in a single
// concurrent map keyed by stream id, one entry per registered stream, with
// conditions compared by tag (never by any payload a condition might carry).
package lifecycle

import (
	"sync"

	"github.com/destenson/dsl-rs-go/internal/dslerr"
)

// State is one of the seven lifecycle states.
type State int

const (
	Idle State = iota
	Starting
	Running
	Paused
	Recovering
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Recovering:
		return "recovering"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Condition tags the trigger for a transition. Implementations must compare
// by this tag, never by any value a caller might associate with it.
type Condition int

const (
	OnSuccess Condition = iota
	OnError
	OnRecovery
	OnTimeout
	OnStop
)

func (c Condition) String() string {
	switch c {
	case OnError:
		return "on_error"
	case OnRecovery:
		return "on_recovery"
	case OnTimeout:
		return "on_timeout"
	case OnStop:
		return "on_stop"
	default:
		return "on_success"
	}
}

type transitionKey struct {
	from State
	cond Condition
}

// table is the closed transition set from spec §4.E. OnStop is handled
// separately below since it is legal from every state (a spec.md addition
// over the original's hardcoded table, which had no Stop transition at
// all — stopping there was handled out-of-band by dropping the pipeline).
var table = map[transitionKey]State{
	{Idle, OnSuccess}:       Starting,
	{Starting, OnSuccess}:   Running,
	{Starting, OnError}:     Failed,
	{Running, OnError}:      Recovering,
	{Recovering, OnRecovery}: Running,
	{Recovering, OnTimeout}:  Failed,
	{Running, OnSuccess}:    Paused,
	{Paused, OnSuccess}:     Running,
}

// Table is the concurrent per-stream state table. Zero value is not usable;
// construct with New.
type Table struct {
	mu      sync.RWMutex
	streams map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state State
}

// New returns an empty Table.
func New() *Table {
	return &Table{streams: make(map[string]*entry)}
}

// Register adds stream id in state Idle. Returns a Stream-kind error if id
// is already registered.
func (t *Table) Register(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.streams[id]; exists {
		return dslerr.New(dslerr.KindStream, "stream already registered: "+id)
	}
	t.streams[id] = &entry{state: Idle}
	return nil
}

// Unregister removes id's entry entirely. It is a no-op if id is absent.
func (t *Table) Unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, id)
}

// State returns id's current state. The second return is false if id is not
// registered.
func (t *Table) State(id string) (State, bool) {
	t.mu.RLock()
	e, ok := t.streams[id]
	t.mu.RUnlock()
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Transition applies cond to id's current state, returning the new state.
// A Stream error is returned if id is unknown, and a StateTransition error if
// the transition is not legal from its current state; the state is left
// unchanged in either case.
func (t *Table) Transition(id string, cond Condition) (State, error) {
	t.mu.RLock()
	e, ok := t.streams[id]
	t.mu.RUnlock()
	if !ok {
		return 0, dslerr.New(dslerr.KindStream, "unknown stream: "+id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cond == OnStop {
		e.state = Stopped
		return Stopped, nil
	}

	next, legal := table[transitionKey{e.state, cond}]
	if !legal {
		return e.state, dslerr.New(dslerr.KindStateTransition,
			"no transition from "+e.state.String()+" on "+cond.String())
	}
	e.state = next
	return next, nil
}

// Count returns the number of registered streams, for invariant checks
// (exactly one StreamHealth per state-table entry is asserted alongside
// this elsewhere).
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.streams)
}

// IDs returns a snapshot of all currently registered stream ids.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.streams))
	for id := range t.streams {
		ids = append(ids, id)
	}
	return ids
}
