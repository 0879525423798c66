package stream

import (
	"errors"
	"testing"

	"github.com/destenson/dsl-rs-go/internal/lifecycle"
)

func TestHealthIsHealthyInvariant(t *testing.T) {
	h := NewHealth()
	h.SetState(lifecycle.Running)

	if !h.Snapshot().IsHealthy() {
		t.Fatal("expected Running with 0 consecutive errors to be healthy")
	}

	h.RecordError(errors.New("boom"))
	h.RecordError(errors.New("boom"))
	h.RecordError(errors.New("boom"))
	if h.Snapshot().IsHealthy() {
		t.Fatal("expected 3 consecutive errors to make the stream unhealthy")
	}

	h.RecordSuccess()
	if !h.Snapshot().IsHealthy() {
		t.Fatal("expected RecordSuccess to restore health")
	}
}

func TestHealthUnhealthyWhenNotRunningOrPaused(t *testing.T) {
	h := NewHealth()
	h.SetState(lifecycle.Recovering)
	if h.Snapshot().IsHealthy() {
		t.Fatal("expected Recovering state to be unhealthy regardless of error count")
	}

	h.SetState(lifecycle.Paused)
	if !h.Snapshot().IsHealthy() {
		t.Fatal("expected Paused with 0 errors to be healthy")
	}
}

func TestRecoveryActionString(t *testing.T) {
	cases := map[RecoveryAction]string{
		ActionIgnore: "ignore", ActionRetry: "retry", ActionRestart: "restart",
		ActionReplace: "replace", ActionRemove: "remove", ActionEscalate: "escalate",
	}
	for action, want := range cases {
		if got := action.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	if cfg.MaxSizeBuffers != 200 || cfg.MinThresholdBuffers != 10 || !cfg.Leaky {
		t.Fatalf("DefaultQueueConfig() = %+v, unexpected", cfg)
	}
}
