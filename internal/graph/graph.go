// Package graph abstracts the multimedia pipeline graph (bins, elements,
// pads, queues) that internal/supervisor assembles per stream. The
// underlying media framework is explicitly out of scope (spec's
// Non-goals); this package exists so internal/supervisor can perform the
// GhostPad/Queue assembly sequence from spec §4.J against an interface,
// grounded on the teacher corpus's GStreamer-shaped assembly in
// stream_manager.rs, without this module taking a real GStreamer (or any
// other media framework) dependency.
package graph

import (
	"fmt"
	"sync"
)

// ElementState mirrors a GStreamer-style element state machine, reduced to
// the states spec §4.J's assembly sequence actually drives.
type ElementState int

const (
	StateNull ElementState = iota
	StatePaused
	StatePlaying
)

func (s ElementState) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "null"
	}
}

// Element is a single node in the graph: a source, a sink, or a queue.
// Link connects this element's output to downstream, the step spec §4.J
// uses both for source -> input-queue and for queue -> queue.
type Element interface {
	Name() string
	SetState(ElementState) error
	State() ElementState
	Link(downstream Element) error
}

// Pad is a bin's externally visible connection point (a "ghost pad").
type Pad interface {
	Name() string
	Active() bool
	SetActive(bool)
}

// Queue is a decoupling element between two stages of a stream, sized by
// QueueConfig (spec §6.4).
type Queue interface {
	Element
}

// QueueConfig mirrors the source's gstreamer queue property set.
type QueueConfig struct {
	MaxSizeBuffers      uint32
	MaxSizeBytes        uint32
	MaxSizeTimeNanos    uint64
	MinThresholdBuffers uint32
	Leaky               bool
}

// DefaultQueueConfig matches QueueConfig::default(): 200 buffers, 10MB,
// 1-second max time, 10-buffer min threshold, leaky.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxSizeBuffers:      200,
		MaxSizeBytes:        10 * 1024 * 1024,
		MaxSizeTimeNanos:    1_000_000_000,
		MinThresholdBuffers: 10,
		Leaky:               true,
	}
}

// Bin is an isolated sub-graph owning a source element, its queues, and a
// single ghost pad exposing its output, exactly as assembled in
// spec §4.J steps 2-6.
type Bin interface {
	Name() string
	Add(Element) error
	AddPad(Pad) error
	SetState(ElementState) error
	State() ElementState
	SourceQueue() Queue
	SinkQueue() Queue
	GhostPad() Pad
}

// Builder constructs Bins and the queues/pads that populate them. The only
// implementation in this module is FakeBuilder; a media-framework-backed
// builder is out of this module's scope.
type Builder interface {
	NewBin(name string) Bin
	NewQueue(name string, cfg QueueConfig) Queue
	NewGhostPad(name string, target Element) Pad
}

// fakeElement is an in-memory Element used by the fake Builder and by
// package tests; it performs no real media processing.
type fakeElement struct {
	mu     sync.Mutex
	name   string
	state  ElementState
	linked Element
}

func (e *fakeElement) Name() string { return e.name }

func (e *fakeElement) SetState(s ElementState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	return nil
}

func (e *fakeElement) State() ElementState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeElement) Link(downstream Element) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linked = downstream
	return nil
}

type fakeQueue struct {
	fakeElement
	cfg QueueConfig
}

type fakePad struct {
	name   string
	active bool
}

func (p *fakePad) Name() string    { return p.name }
func (p *fakePad) Active() bool    { return p.active }
func (p *fakePad) SetActive(a bool) { p.active = a }

type fakeBin struct {
	mu          sync.Mutex
	name        string
	state       ElementState
	elements    []Element
	pads        []Pad
	sourceQueue Queue
	sinkQueue   Queue
	ghostPad    Pad
}

func (b *fakeBin) Name() string { return b.name }

func (b *fakeBin) Add(e Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements = append(b.elements, e)
	return nil
}

func (b *fakeBin) AddPad(p Pad) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pads = append(b.pads, p)
	if b.ghostPad == nil {
		b.ghostPad = p
	}
	return nil
}

func (b *fakeBin) SetState(s ElementState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	return nil
}

func (b *fakeBin) State() ElementState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBin) SourceQueue() Queue { return b.sourceQueue }
func (b *fakeBin) SinkQueue() Queue   { return b.sinkQueue }
func (b *fakeBin) GhostPad() Pad      { return b.ghostPad }

// FakeBuilder is an in-memory Builder with no real media-framework
// dependency, used by the internal/supervisor and internal/controller tests
// and by cmd/dslsupervisor.
type FakeBuilder struct {
	mu       sync.Mutex
	sequence int
}

// NewFakeBuilder constructs a FakeBuilder.
func NewFakeBuilder() *FakeBuilder { return &FakeBuilder{} }

func (f *FakeBuilder) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

func (f *FakeBuilder) NewBin(name string) Bin {
	b := &fakeBin{name: name}
	b.sourceQueue = f.NewQueue(fmt.Sprintf("%s_queue_in", name), DefaultQueueConfig())
	b.sinkQueue = f.NewQueue(fmt.Sprintf("%s_queue_out", name), DefaultQueueConfig())
	return b
}

func (f *FakeBuilder) NewQueue(name string, cfg QueueConfig) Queue {
	return &fakeQueue{fakeElement: fakeElement{name: name}, cfg: cfg}
}

func (f *FakeBuilder) NewGhostPad(name string, target Element) Pad {
	return &fakePad{name: name}
}
