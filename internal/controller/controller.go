// Package controller is the top-level pipeline controller from spec §4.K:
// it owns admission control, the Idle/Starting/Running lifecycle table,
// the recovery engine, and the ambient services: the watchdog tick and
// health monitor tick run under a suture.Supervisor tree, and the health
// HTTP listener is started and stopped directly, outside that tree. It is
// grounded on the Rust RobustPipeline's responsibilities (start/stop/
// pause/resume, a bus-message-shaped event dispatch, max_streams admission,
// trigger_recovery) reworked onto the teacher's service-lifecycle idiom.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/destenson/dsl-rs-go/internal/dslerr"
	"github.com/destenson/dsl-rs-go/internal/graph"
	"github.com/destenson/dsl-rs-go/internal/healthmon"
	"github.com/destenson/dsl-rs-go/internal/isolator"
	"github.com/destenson/dsl-rs-go/internal/lifecycle"
	"github.com/destenson/dsl-rs-go/internal/recovery"
	"github.com/destenson/dsl-rs-go/internal/stream"
	"github.com/destenson/dsl-rs-go/internal/supervisor"
	"github.com/destenson/dsl-rs-go/internal/watchdog"
)

// EventKind is a PipelineEvent discriminant (spec §4.K), corresponding to
// the Rust bus-message variants the controller dispatches on.
type EventKind int

const (
	EventError EventKind = iota
	EventWarning
	EventEos
	EventStateChanged
	EventStreamStatus
)

// Event is a single dispatched PipelineEvent.
type Event struct {
	Kind     EventKind
	StreamID string
	Err      error
	State    lifecycle.State
}

// Config controls controller construction.
type Config struct {
	MaxStreams  int
	HealthAddr  string // empty disables the health HTTP listener
	Logger      *slog.Logger
	Watchdog    watchdog.Config
	Health      healthmon.Config
	EventBuffer int
}

// DefaultConfig matches PipelineConfig's defaults (spec §6.3): max_streams=32,
// watchdog and health monitor enabled with their own package defaults.
func DefaultConfig() Config {
	return Config{
		MaxStreams:  32,
		Logger:      slog.Default(),
		Watchdog:    watchdog.DefaultConfig(),
		Health:      healthmon.DefaultConfig(),
		EventBuffer: 256,
	}
}

// Controller is the top-level supervisory control plane for a single
// process's streams.
type Controller struct {
	cfg Config

	lifecycle *lifecycle.Table
	recovery  *recovery.Manager
	watchdog  *watchdog.Watchdog
	health    *healthmon.Monitor
	isolator  *isolator.Isolator
	sup       *supervisor.Supervisor

	events chan Event

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	httpStop  func()
	sutureSup *suture.Supervisor
}

// New constructs a Controller. builder is the graph.Builder used for every
// subsequent AddSource assembly.
func New(cfg Config, builder graph.Builder) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = DefaultConfig().MaxStreams
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	c := &Controller{
		cfg:       cfg,
		lifecycle: lifecycle.New(),
		recovery:  recovery.New(),
		isolator:  isolator.New(isolator.Config{Logger: cfg.Logger}),
		sup:       supervisor.New(supervisor.Config{Builder: builder}),
		events:    make(chan Event, cfg.EventBuffer),
	}
	c.health = healthmon.New(cfg.Health)
	c.watchdog = watchdog.New(cfg.Watchdog, c.demote, c.onWatchdogTrip)
	return c
}

// demote is the watchdog's Demote callback: it drives a Running stream to
// Recovering via the lifecycle table, reporting whether the demotion was
// legal from the stream's current state.
func (c *Controller) demote(streamID string) bool {
	_, err := c.lifecycle.Transition(streamID, lifecycle.OnError)
	return err == nil
}

func (c *Controller) onWatchdogTrip(t watchdog.Trip) {
	// slog has no Critical level: the Critical alert is logged at Error with
	// severity=critical.
	c.cfg.Logger.Error("stream stall detected", "severity", "critical", "stream_id", t.StreamID, "consecutive_errors", t.ConsecutiveErrors, "message", t.Message)
	c.events <- Event{Kind: EventError, StreamID: t.StreamID, Err: dslerr.New(dslerr.KindStream, t.Message)}
}

// eventLoopService adapts Controller's event dispatch into a suture.Service.
type eventLoopService struct{ c *Controller }

func (e eventLoopService) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.c.events:
			e.c.dispatch(ev)
		}
	}
}

func (e eventLoopService) String() string { return "event-dispatch" }

// dispatch implements spec §4.K's event handler: Error transitions the
// stream to Recovering and hands off to the recovery manager; Warning is
// logged; Eos applies the per-source loop-or-remove policy; StateChanged is
// logged at debug; StreamStatus feeds the watchdog.
func (c *Controller) dispatch(ev Event) {
	switch ev.Kind {
	case EventError:
		c.cfg.Logger.Error("stream error", "stream_id", ev.StreamID, "error", ev.Err)
		if _, err := c.lifecycle.Transition(ev.StreamID, lifecycle.OnError); err != nil {
			return
		}
		go c.recover(ev.StreamID, ev.Err)
	case EventWarning:
		c.cfg.Logger.Warn("stream warning", "stream_id", ev.StreamID, "error", ev.Err)
	case EventEos:
		c.cfg.Logger.Info("end of stream", "stream_id", ev.StreamID)
		handle, ok := c.sup.Handle(ev.StreamID)
		if ok {
			if action, err := handle.Source.HandleError(context.Background(), dslerr.New(dslerr.KindSource, "End of file reached")); err == nil && action == stream.ActionRemove {
				_ = c.sup.RemoveSource(context.Background(), ev.StreamID)
				c.lifecycle.Unregister(ev.StreamID)
			}
		}
	case EventStateChanged:
		c.cfg.Logger.Debug("stream state changed", "stream_id", ev.StreamID, "state", ev.State)
	case EventStreamStatus:
		c.watchdog.Feed(ev.StreamID)
	}
}

func (c *Controller) recover(streamID string, cause error) {
	attempt := 0
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}
	action, err := c.recovery.ExecuteRecovery(runCtx, streamID, cause, attempt)
	if err != nil {
		return
	}
	switch action {
	case stream.ActionRetry, stream.ActionRestart:
		if _, err := c.lifecycle.Transition(streamID, lifecycle.OnRecovery); err == nil {
			if handle, ok := c.sup.Handle(streamID); ok {
				handle.Health.IncrementRecoveryAttempts()
				handle.Health.SetState(lifecycle.Running)
			}
		}
	case stream.ActionRemove, stream.ActionEscalate:
		if _, err := c.lifecycle.Transition(streamID, lifecycle.OnTimeout); err == nil {
			if handle, ok := c.sup.Handle(streamID); ok {
				handle.Health.SetState(lifecycle.Failed)
			}
		}
		_ = c.sup.RemoveSource(context.Background(), streamID)
	}
}

// TriggerRecovery is the operator-invoked equivalent of the Rust
// trigger_recovery: forces a Recovering->Running transition outside the
// normal error path (e.g. from the admin menu after manual intervention).
func (c *Controller) TriggerRecovery(streamID string) error {
	state, err := c.lifecycle.Transition(streamID, lifecycle.OnRecovery)
	if err != nil {
		return dslerr.Wrap(dslerr.KindStateTransition, "cannot recover stream "+streamID+" from current state", err)
	}
	if handle, ok := c.sup.Handle(streamID); ok {
		handle.Health.SetState(state)
		handle.Health.IncrementRecoveryAttempts()
	}
	return nil
}

// AddSource runs the admission check against MaxStreams, then assembles
// the stream and drives it Idle->Starting->Running.
func (c *Controller) AddSource(ctx context.Context, src stream.Source, cfg stream.Config) (string, error) {
	if c.sup.StreamCount() >= c.cfg.MaxStreams {
		return "", dslerr.New(dslerr.KindResourceExhaustion,
			fmt.Sprintf("maximum streams (%d) reached", c.cfg.MaxStreams))
	}

	streamID, err := c.sup.AddSource(ctx, src, cfg)
	if err != nil {
		return "", err
	}

	if err := c.lifecycle.Register(streamID); err != nil {
		_ = c.sup.RemoveSource(ctx, streamID)
		return "", err
	}
	if _, err := c.lifecycle.Transition(streamID, lifecycle.OnSuccess); err != nil { // Idle->Starting
		return "", err
	}
	if _, err := c.lifecycle.Transition(streamID, lifecycle.OnSuccess); err != nil { // Starting->Running
		return "", err
	}

	c.isolator.IsolateStream(streamID, isolator.DefaultQuota())
	c.watchdog.Register(streamID)
	if handle, ok := c.sup.Handle(streamID); ok {
		c.health.RegisterStream(streamID, handle.Health)
	}

	return streamID, nil
}

// RemoveSource tears streamID down across every component that tracks it.
func (c *Controller) RemoveSource(ctx context.Context, streamID string) error {
	err := c.sup.RemoveSource(ctx, streamID)
	c.lifecycle.Unregister(streamID)
	c.watchdog.Unregister(streamID)
	c.isolator.RemoveStream(streamID)
	c.health.UnregisterStream(streamID)
	return err
}

// PauseStream and ResumeStream delegate to the supervisor and mirror the
// resulting state into the lifecycle table.
func (c *Controller) PauseStream(streamID string) error {
	if err := c.sup.PauseStream(streamID); err != nil {
		return err
	}
	_, err := c.lifecycle.Transition(streamID, lifecycle.OnSuccess)
	return err
}

func (c *Controller) ResumeStream(streamID string) error {
	if err := c.sup.ResumeStream(streamID); err != nil {
		return err
	}
	_, err := c.lifecycle.Transition(streamID, lifecycle.OnSuccess)
	return err
}

// ListStreams returns every currently assembled stream id.
func (c *Controller) ListStreams() []string { return c.sup.ListStreams() }

// HealthReport returns the process-wide HealthReport.
func (c *Controller) HealthReport() healthmon.Report { return c.health.GenerateReport() }

// StreamState returns streamID's lifecycle state.
func (c *Controller) StreamState(streamID string) (lifecycle.State, bool) {
	return c.lifecycle.State(streamID)
}

// PostEvent queues ev for dispatch; it is the seam external bus-message
// sources (e.g. a real media framework's message bus) feed events through.
func (c *Controller) PostEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Warn("event queue full, dropping event", "kind", ev.Kind, "stream_id", ev.StreamID)
	}
}

// Start builds the suture supervision tree for the controller's ambient
// services (event dispatch, watchdog tick, health monitor tick) and runs it
// in the background; the health HTTP listener, when HealthAddr is set, is
// started directly and is not supervised by suture. It does not block.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return dslerr.New(dslerr.KindPipeline, "controller already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.cancel = cancel
	c.done = make(chan struct{})

	c.sutureSup = suture.New("controller", suture.Spec{})
	c.sutureSup.Add(eventLoopService{c})
	c.sutureSup.Add(c.watchdog)
	c.sutureSup.Add(c.health)

	if c.cfg.HealthAddr != "" {
		addr, stop, err := healthmon.ListenAndServeReady(c.cfg.HealthAddr, healthmon.NewHandler(c.health))
		if err != nil {
			cancel()
			return dslerr.Wrap(dslerr.KindNetwork, "start health listener", err)
		}
		c.httpStop = stop
		c.cfg.Logger.Info("health listener started", "addr", addr)
	}

	c.running = true
	go func() {
		defer close(c.done)
		_ = c.sutureSup.Serve(runCtx)
	}()

	c.cfg.Logger.Info("controller started")
	return nil
}

// Stop cancels the supervision tree, transitions every registered stream to
// Stopped via the lifecycle table's StopTransition, and waits (up to
// timeout) for the supervision tree to drain.
func (c *Controller) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	httpStop := c.httpStop
	c.running = false
	c.mu.Unlock()

	if httpStop != nil {
		httpStop()
	}
	cancel()

	for _, id := range c.sup.ListStreams() {
		state, err := c.lifecycle.Transition(id, lifecycle.OnStop)
		if err != nil {
			continue
		}
		if handle, ok := c.sup.Handle(id); ok {
			handle.Health.SetState(state)
		}
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return dslerr.New(dslerr.KindPipeline, "shutdown timeout exceeded")
	}
}

// Pause pauses every currently assembled stream, collecting the first
// error encountered but attempting every stream regardless.
func (c *Controller) Pause() error {
	var firstErr error
	for _, id := range c.sup.ListStreams() {
		if err := c.PauseStream(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resume resumes every currently assembled stream.
func (c *Controller) Resume() error {
	var firstErr error
	for _, id := range c.sup.ListStreams() {
		if err := c.ResumeStream(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
