package lifecycle

import (
	"testing"

	"github.com/destenson/dsl-rs-go/internal/dslerr"
)

func TestCleanLifecycleScenario(t *testing.T) {
	tbl := New()
	const id = "s1"
	if err := tbl.Register(id); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if st, _ := tbl.State(id); st != Idle {
		t.Fatalf("initial state = %v, want Idle", st)
	}

	if _, err := tbl.Transition(id, OnSuccess); err != nil {
		t.Fatalf("Idle->Starting: %v", err)
	}
	if st, _ := tbl.State(id); st != Starting {
		t.Fatalf("state = %v, want Starting", st)
	}

	if _, err := tbl.Transition(id, OnSuccess); err != nil {
		t.Fatalf("Starting->Running: %v", err)
	}
	if st, _ := tbl.State(id); st != Running {
		t.Fatalf("state = %v, want Running", st)
	}

	if _, err := tbl.Transition(id, OnStop); err != nil {
		t.Fatalf("any->Stopped: %v", err)
	}
	if st, _ := tbl.State(id); st != Stopped {
		t.Fatalf("state = %v, want Stopped", st)
	}

	tbl.Unregister(id)
	if tbl.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after Unregister", tbl.Count())
	}
}

func TestIllegalTransitionFails(t *testing.T) {
	tbl := New()
	tbl.Register("s1")

	_, err := tbl.Transition("s1", OnRecovery)
	if err == nil {
		t.Fatal("expected error for Idle+OnRecovery")
	}
	if dslerr.KindOf(err) != dslerr.KindStateTransition {
		t.Fatalf("KindOf = %v, want KindStateTransition", dslerr.KindOf(err))
	}

	if st, _ := tbl.State("s1"); st != Idle {
		t.Fatalf("state after illegal transition = %v, want unchanged Idle", st)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	tbl := New()
	tbl.Register("s1")
	tbl.Transition("s1", OnSuccess) // Idle->Starting
	tbl.Transition("s1", OnSuccess) // Starting->Running

	tbl.Transition("s1", OnSuccess) // Running->Paused
	if st, _ := tbl.State("s1"); st != Paused {
		t.Fatalf("state = %v, want Paused", st)
	}
	tbl.Transition("s1", OnSuccess) // Paused->Running
	if st, _ := tbl.State("s1"); st != Running {
		t.Fatalf("state = %v, want Running", st)
	}
}

func TestStopFromEveryState(t *testing.T) {
	starts := []func(tbl *Table, id string){
		func(tbl *Table, id string) {},
		func(tbl *Table, id string) { tbl.Transition(id, OnSuccess) },
		func(tbl *Table, id string) { tbl.Transition(id, OnSuccess); tbl.Transition(id, OnSuccess) },
	}
	for i, setup := range starts {
		tbl := New()
		id := "s"
		tbl.Register(id)
		setup(tbl, id)
		if _, err := tbl.Transition(id, OnStop); err != nil {
			t.Fatalf("case %d: OnStop failed: %v", i, err)
		}
		if st, _ := tbl.State(id); st != Stopped {
			t.Fatalf("case %d: state = %v, want Stopped", i, st)
		}
	}
}

func TestUnknownStreamTransitionFails(t *testing.T) {
	tbl := New()
	_, err := tbl.Transition("missing", OnSuccess)
	if err == nil || dslerr.KindOf(err) != dslerr.KindStream {
		t.Fatalf("expected KindStream error for unknown stream, got %v", err)
	}
}
