package testkit

import (
	"context"
	"errors"
	"testing"

	"github.com/destenson/dsl-rs-go/internal/stream"
)

func TestMockSourceConnectCountsCalls(t *testing.T) {
	src := NewMockSource("cam1")
	ctx := context.Background()

	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if src.ConnectCalls() != 2 {
		t.Errorf("ConnectCalls() = %d, want 2", src.ConnectCalls())
	}
}

func TestMockSourceConnectErrPropagates(t *testing.T) {
	src := NewMockSource("cam1")
	src.ConnectErr = errors.New("refused")

	if err := src.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to return ConnectErr")
	}
}

func TestMockSourceHandleErrorReturnsConfiguredAction(t *testing.T) {
	src := NewMockSource("cam1")
	src.Action = stream.ActionRemove

	action, err := src.HandleError(context.Background(), errors.New("boom"))
	if err != nil {
		t.Fatalf("HandleError() error = %v", err)
	}
	if action != stream.ActionRemove {
		t.Errorf("action = %v, want ActionRemove", action)
	}
}

func TestMockSinkPrepareCountsCalls(t *testing.T) {
	sink := NewMockSink("file1")
	if err := sink.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if sink.PrepareCalls() != 1 {
		t.Errorf("PrepareCalls() = %d, want 1", sink.PrepareCalls())
	}
}

func TestResourceTrackerDetectsLeak(t *testing.T) {
	rt := NewResourceTracker()
	rt.TrackGoroutine("stream1", "worker")

	if rt.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", rt.Count())
	}
	if leaked := rt.Leaked(); len(leaked) != 1 {
		t.Fatalf("Leaked() = %v, want one entry", leaked)
	}

	rt.ReleaseGoroutine("stream1", "worker")
	if leaked := rt.Leaked(); len(leaked) != 0 {
		t.Fatalf("Leaked() after release = %v, want none", leaked)
	}
}

func TestChaosMaybeFailRespectsProbabilityBounds(t *testing.T) {
	c := NewChaos(42)
	if err := c.MaybeFail(0); err != nil {
		t.Fatalf("MaybeFail(0) error = %v, want nil", err)
	}
	if err := c.MaybeFail(1); err != ErrChaosInjected {
		t.Fatalf("MaybeFail(1) error = %v, want ErrChaosInjected", err)
	}
}

func TestChaosIsDeterministicForASeed(t *testing.T) {
	a := NewChaos(7)
	b := NewChaos(7)

	for i := 0; i < 20; i++ {
		av := a.IntnPositive(100)
		bv := b.IntnPositive(100)
		if av != bv {
			t.Fatalf("seeded Chaos diverged at iteration %d: %d != %d", i, av, bv)
		}
	}
}
