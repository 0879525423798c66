// Package testkit holds the mock Source/Sink doubles and the resource-leak
// tracker used by this module's own package tests and by the component-L
// chaos/property tests (spec §4.L). It is imported only from _test.go
// files; nothing under cmd/ or internal/ (other than tests) depends on it.
package testkit

import (
	"context"
	"strings"
	"sync"

	"github.com/destenson/dsl-rs-go/internal/graph"
	"github.com/destenson/dsl-rs-go/internal/lifecycle"
	"github.com/destenson/dsl-rs-go/internal/retry"
	"github.com/destenson/dsl-rs-go/internal/stream"
	"github.com/destenson/dsl-rs-go/internal/util"
)

// Element is a graph.Element double so a MockSource/MockSink can be handed
// straight to internal/supervisor's AddSource/AddSink, exercising the real
// nine-step assembly sequence in integration-level tests.
type Element struct {
	NameVal string
	st      graph.ElementState
	Linked  graph.Element
}

func (e *Element) Name() string { return e.NameVal }
func (e *Element) SetState(s graph.ElementState) error {
	e.st = s
	return nil
}
func (e *Element) State() graph.ElementState { return e.st }
func (e *Element) Link(downstream graph.Element) error {
	e.Linked = downstream
	return nil
}

// MockSource is a configurable stream.Source double. Connect/Disconnect
// fail when the corresponding *Err field is set; HandleError returns
// Action (default stream.ActionRetry). Connect and Disconnect calls are
// counted, for tests asserting retry/backoff behavior drove the expected
// number of attempts.
type MockSource struct {
	mu sync.Mutex

	NameVal       string
	ConnectErr    error
	DisconnectErr error
	Action        stream.RecoveryAction
	HandleErrErr  error

	connectCalls    int
	disconnectCalls int
	state           lifecycle.State
	metrics         stream.Metrics
	retryCfg        retry.Config
}

// NewMockSource returns a MockSource named name, defaulting HandleError's
// action to stream.ActionRetry.
func NewMockSource(name string) *MockSource {
	return &MockSource{NameVal: name, Action: stream.ActionRetry}
}

func (m *MockSource) Name() string { return m.NameVal }
func (m *MockSource) Element() any { return &Element{NameVal: m.NameVal} }

func (m *MockSource) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.state = lifecycle.Running
	return nil
}

func (m *MockSource) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCalls++
	m.state = lifecycle.Stopped
	return m.DisconnectErr
}

func (m *MockSource) State() lifecycle.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockSource) Metrics() stream.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *MockSource) SetRetryConfig(cfg retry.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCfg = cfg
}

func (m *MockSource) HandleError(ctx context.Context, err error) (stream.RecoveryAction, error) {
	return m.Action, m.HandleErrErr
}

// ConnectCalls returns the number of times Connect has been invoked.
func (m *MockSource) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

// DisconnectCalls returns the number of times Disconnect has been invoked.
func (m *MockSource) DisconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectCalls
}

// MockSink is a configurable stream.Sink double, mirroring MockSource.
type MockSink struct {
	mu sync.Mutex

	NameVal    string
	PrepareErr error
	CleanupErr error
	Action     stream.RecoveryAction

	prepareCalls int
	cleanupCalls int
	state        lifecycle.State
}

// NewMockSink returns a MockSink named name, defaulting HandleError's
// action to stream.ActionRetry.
func NewMockSink(name string) *MockSink {
	return &MockSink{NameVal: name, Action: stream.ActionRetry}
}

func (m *MockSink) Name() string { return m.NameVal }
func (m *MockSink) Element() any { return &Element{NameVal: m.NameVal} }

func (m *MockSink) Prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareCalls++
	if m.PrepareErr != nil {
		return m.PrepareErr
	}
	m.state = lifecycle.Running
	return nil
}

func (m *MockSink) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalls++
	m.state = lifecycle.Stopped
	return m.CleanupErr
}

func (m *MockSink) State() lifecycle.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockSink) Metrics() stream.Metrics { return stream.Metrics{} }

func (m *MockSink) HandleError(ctx context.Context, err error) (stream.RecoveryAction, error) {
	return m.Action, nil
}

// PrepareCalls returns the number of times Prepare has been invoked.
func (m *MockSink) PrepareCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepareCalls
}

// ResourceTracker wraps the teacher's generic util.ResourceTracker to
// verify that every per-stream goroutine token the isolator hands out
// during a test is released by the time the test ends. Tokens are tracked
// as named resources rather than files/processes, since a stream's
// in-process worker has no os.File/os.Process to track.
type ResourceTracker struct {
	inner *util.ResourceTracker
}

// NewResourceTracker returns an empty ResourceTracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{inner: util.NewResourceTracker()}
}

// TrackGoroutine registers a running stream goroutine under streamID/label.
func (rt *ResourceTracker) TrackGoroutine(streamID, label string) {
	rt.inner.TrackResource(streamID+":"+label, struct{}{})
}

// ReleaseGoroutine marks streamID/label's goroutine as finished.
func (rt *ResourceTracker) ReleaseGoroutine(streamID, label string) {
	rt.inner.UntrackResource(streamID + ":" + label)
}

// Leaked returns the names of every goroutine still marked running; a
// non-empty result at test teardown indicates a leak.
func (rt *ResourceTracker) Leaked() []string {
	leaked := rt.inner.LeakedResources()
	for i, name := range leaked {
		leaked[i] = strings.TrimPrefix(name, "resource:")
	}
	return leaked
}

// Count returns the number of goroutines currently tracked as running.
func (rt *ResourceTracker) Count() int {
	return rt.inner.ResourceCount()
}
