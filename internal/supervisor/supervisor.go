// Package supervisor assembles and tears down per-stream sub-graphs: the
// AddSource/AddSink/RemoveSource sequence from spec §4.J. It is the direct
// descendant of the teacher's supervisor registry (map+mutex+entries,
// logf-style logging) but not its restart-loop: per-stream recovery here
// goes through internal/recovery and internal/breaker, never a blind
// restart-and-retry loop, and the generic service-restart role moves to
// internal/controller's suture wiring.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/destenson/dsl-rs-go/internal/dslerr"
	"github.com/destenson/dsl-rs-go/internal/graph"
	"github.com/destenson/dsl-rs-go/internal/lifecycle"
	"github.com/destenson/dsl-rs-go/internal/stream"
)

// StreamHandle is the live record of one assembled stream, mirroring the
// source's StreamHandle.
type StreamHandle struct {
	ID          string
	Bin         graph.Bin
	SourceQueue graph.Queue
	SinkQueue   graph.Queue
	Health      *stream.Health
	Source      stream.Source
}

// Config controls supervisor construction.
type Config struct {
	Builder graph.Builder
	Logger  io.Writer
}

// Supervisor owns the set of assembled streams and their attached sinks.
type Supervisor struct {
	cfg Config

	mu      sync.RWMutex
	streams map[string]*StreamHandle
	sinks   map[string]stream.Sink

	logMu sync.Mutex
}

// New constructs a Supervisor backed by cfg.Builder.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		streams: make(map[string]*StreamHandle),
		sinks:   make(map[string]stream.Sink),
	}
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.cfg.Logger == nil {
		return
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	fmt.Fprintf(s.cfg.Logger, "[supervisor] "+format+"\n", args...)
}

func asElement(v any, what string) (graph.Element, error) {
	e, ok := v.(graph.Element)
	if !ok {
		return nil, dslerr.New(dslerr.KindStream, what+" does not implement graph.Element")
	}
	return e, nil
}

// AddSource runs the nine-step assembly sequence: generate a stream id,
// build an isolated bin, add the source element, create input/output
// queues, link source -> source_queue -> sink_queue, create and activate a
// ghost pad exposing the bin's output, connect the source, record the
// StreamHandle, and start the bin playing.
func (s *Supervisor) AddSource(ctx context.Context, src stream.Source, cfg stream.Config) (string, error) {
	streamID := fmt.Sprintf("%s_%s", cfg.Name, uuid.NewString())

	bin := s.cfg.Builder.NewBin(streamID)

	srcElem, err := asElement(src.Element(), "source")
	if err != nil {
		return "", err
	}
	if err := bin.Add(srcElem); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "add source to bin", err)
	}

	qcfg := graph.QueueConfig{
		MaxSizeBuffers:      uint32(cfg.QueueProperties.MaxSizeBuffers),
		MaxSizeBytes:        uint32(cfg.QueueProperties.MaxSizeBytes),
		MaxSizeTimeNanos:    uint64(cfg.QueueProperties.MaxSizeTime.Nanoseconds()),
		MinThresholdBuffers: uint32(cfg.QueueProperties.MinThresholdBuffers),
		Leaky:               cfg.QueueProperties.Leaky,
	}
	sourceQueue := s.cfg.Builder.NewQueue(streamID+"_queue_in", qcfg)
	if err := bin.Add(sourceQueue); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "add source queue to bin", err)
	}
	if err := srcElem.Link(sourceQueue); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "link source to input queue", err)
	}
	sinkQueue := s.cfg.Builder.NewQueue(streamID+"_queue_out", qcfg)
	if err := bin.Add(sinkQueue); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "add sink queue to bin", err)
	}

	if err := sourceQueue.Link(sinkQueue); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "link stream elements", err)
	}

	ghostPad := s.cfg.Builder.NewGhostPad(streamID+"_src", sinkQueue)
	ghostPad.SetActive(true)
	if err := bin.AddPad(ghostPad); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "add ghost pad to bin", err)
	}

	if err := src.Connect(ctx); err != nil {
		return "", err
	}

	health := stream.NewHealth()
	health.SetState(lifecycle.Running)

	handle := &StreamHandle{
		ID:          streamID,
		Bin:         bin,
		SourceQueue: sourceQueue,
		SinkQueue:   sinkQueue,
		Health:      health,
		Source:      src,
	}

	s.mu.Lock()
	s.streams[streamID] = handle
	s.mu.Unlock()

	if err := bin.SetState(graph.StatePlaying); err != nil {
		return "", dslerr.Wrap(dslerr.KindStream, "start stream bin", err)
	}

	s.logf("added source stream: %s", streamID)
	return streamID, nil
}

// AddSink prepares sink and attaches it to streamID's bin, linking the
// bin's sink queue to the sink element.
func (s *Supervisor) AddSink(ctx context.Context, streamID string, sink stream.Sink) error {
	handle, ok := s.get(streamID)
	if !ok {
		return dslerr.New(dslerr.KindStream, "stream not found: "+streamID)
	}

	if err := sink.Prepare(ctx); err != nil {
		return err
	}

	sinkElem, err := asElement(sink.Element(), "sink")
	if err != nil {
		return err
	}
	if err := handle.Bin.Add(sinkElem); err != nil {
		return dslerr.Wrap(dslerr.KindStream, "add sink to bin", err)
	}
	if err := handle.SinkQueue.Link(sinkElem); err != nil {
		return dslerr.Wrap(dslerr.KindStream, "link sink to queue", err)
	}
	if err := sinkElem.SetState(handle.Bin.State()); err != nil {
		return dslerr.Wrap(dslerr.KindStream, "sync sink state", err)
	}

	s.mu.Lock()
	s.sinks[streamID+"_"+sink.Name()] = sink
	s.mu.Unlock()

	s.logf("added sink to stream: %s", streamID)
	return nil
}

// RemoveSource tears down streamID. Unlike the source this is grounded on,
// a source.Disconnect error is logged as a warning and swallowed rather
// than propagated: a stream already being removed must not be blocked by
// a misbehaving source.
func (s *Supervisor) RemoveSource(ctx context.Context, streamID string) error {
	s.mu.Lock()
	handle, ok := s.streams[streamID]
	if ok {
		delete(s.streams, streamID)
	}
	s.mu.Unlock()
	if !ok {
		return dslerr.New(dslerr.KindStream, "stream not found: "+streamID)
	}

	if err := handle.Source.Disconnect(ctx); err != nil {
		s.logf("warning: source disconnect failed for %s: %v", streamID, err)
	}

	s.logf("removed source stream: %s", streamID)
	return nil
}

// PauseStream sets streamID's bin and health state to Paused.
func (s *Supervisor) PauseStream(streamID string) error {
	handle, ok := s.get(streamID)
	if !ok {
		return dslerr.New(dslerr.KindStream, "stream not found: "+streamID)
	}
	if err := handle.Bin.SetState(graph.StatePaused); err != nil {
		return dslerr.Wrap(dslerr.KindStream, "pause stream", err)
	}
	handle.Health.SetState(lifecycle.Paused)
	s.logf("paused stream: %s", streamID)
	return nil
}

// ResumeStream sets streamID's bin and health state back to Running.
func (s *Supervisor) ResumeStream(streamID string) error {
	handle, ok := s.get(streamID)
	if !ok {
		return dslerr.New(dslerr.KindStream, "stream not found: "+streamID)
	}
	if err := handle.Bin.SetState(graph.StatePlaying); err != nil {
		return dslerr.Wrap(dslerr.KindStream, "resume stream", err)
	}
	handle.Health.SetState(lifecycle.Running)
	s.logf("resumed stream: %s", streamID)
	return nil
}

func (s *Supervisor) get(streamID string) (*StreamHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.streams[streamID]
	return h, ok
}

// GetStreamHealth returns streamID's current health snapshot.
func (s *Supervisor) GetStreamHealth(streamID string) (stream.Snapshot, bool) {
	handle, ok := s.get(streamID)
	if !ok {
		return stream.Snapshot{}, false
	}
	return handle.Health.Snapshot(), true
}

// ListStreams returns every currently assembled stream id.
func (s *Supervisor) ListStreams() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	return ids
}

// StreamCount returns the number of currently assembled streams.
func (s *Supervisor) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// Handle returns streamID's StreamHandle, for the controller's recovery
// wiring.
func (s *Supervisor) Handle(streamID string) (*StreamHandle, bool) {
	return s.get(streamID)
}
