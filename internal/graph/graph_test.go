package graph

import "testing"

func TestDefaultQueueConfigMatchesSourceDefaults(t *testing.T) {
	cfg := DefaultQueueConfig()
	if cfg.MaxSizeBuffers != 200 {
		t.Fatalf("MaxSizeBuffers = %d, want 200", cfg.MaxSizeBuffers)
	}
	if cfg.MaxSizeBytes != 10*1024*1024 {
		t.Fatalf("MaxSizeBytes = %d, want 10MB", cfg.MaxSizeBytes)
	}
	if !cfg.Leaky {
		t.Fatal("expected Leaky to default true")
	}
}

func TestFakeBuilderAssemblesBinWithQueuesAndGhostPad(t *testing.T) {
	b := NewFakeBuilder()
	bin := b.NewBin("stream-1")

	if bin.SourceQueue() == nil || bin.SinkQueue() == nil {
		t.Fatal("expected NewBin to pre-create source and sink queues")
	}

	src := &fakeElement{name: "source"}
	if err := bin.Add(src); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := src.Link(bin.SourceQueue()); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if src.linked != bin.SourceQueue() {
		t.Fatal("expected source to be linked to the input queue")
	}
	if err := bin.SourceQueue().Link(bin.SinkQueue()); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	pad := b.NewGhostPad("stream-1_src", bin.SinkQueue())
	pad.SetActive(true)
	if err := bin.AddPad(pad); err != nil {
		t.Fatalf("AddPad() error = %v", err)
	}
	if bin.GhostPad() == nil || !bin.GhostPad().Active() {
		t.Fatal("expected an active ghost pad after AddPad")
	}

	if err := bin.SetState(StatePlaying); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if bin.State() != StatePlaying {
		t.Fatalf("State() = %v, want StatePlaying", bin.State())
	}
}

func TestFakeQueueNamesAreUnique(t *testing.T) {
	b := NewFakeBuilder()
	bin1 := b.NewBin("a")
	bin2 := b.NewBin("b")
	if bin1.SourceQueue().Name() == bin2.SourceQueue().Name() {
		t.Fatal("expected distinct queue names per bin")
	}
}
