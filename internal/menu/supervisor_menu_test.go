package menu

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/destenson/dsl-rs-go/internal/healthmon"
	"github.com/destenson/dsl-rs-go/internal/lifecycle"
)

type fakeController struct {
	streams       []string
	state         lifecycle.State
	report        healthmon.Report
	recoveryErr   error
	pauseErr      error
	resumeErr     error
	recoveredID   string
	pauseCalled   bool
	resumeCalled  bool
}

func (f *fakeController) ListStreams() []string { return f.streams }
func (f *fakeController) StreamState(streamID string) (lifecycle.State, bool) {
	return f.state, true
}
func (f *fakeController) HealthReport() healthmon.Report { return f.report }
func (f *fakeController) TriggerRecovery(streamID string) error {
	f.recoveredID = streamID
	return f.recoveryErr
}
func (f *fakeController) Pause() error {
	f.pauseCalled = true
	return f.pauseErr
}
func (f *fakeController) Resume() error {
	f.resumeCalled = true
	return f.resumeErr
}

func TestBuildMainMenuListsStreams(t *testing.T) {
	ctrl := &fakeController{streams: []string{"cam1_abcd"}, state: lifecycle.Running}
	input := strings.NewReader("1\n\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if !strings.Contains(output.String(), "cam1_abcd") {
		t.Errorf("output = %q, want it to contain the stream id", output.String())
	}
}

func TestBuildMainMenuHealthReport(t *testing.T) {
	ctrl := &fakeController{
		report: healthmon.Report{
			Overall: healthmon.Healthy,
			SystemMetrics: healthmon.SystemMetrics{
				TotalStreams: 2, ActiveStreams: 2, PipelineUptime: time.Minute,
			},
		},
	}
	input := strings.NewReader("2\n\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if !strings.Contains(output.String(), "total=2") {
		t.Errorf("output = %q, want system metrics rollup", output.String())
	}
}

func TestBuildMainMenuForceRecovery(t *testing.T) {
	ctrl := &fakeController{}
	input := strings.NewReader("3\ncam1_abcd\n\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if ctrl.recoveredID != "cam1_abcd" {
		t.Errorf("recoveredID = %q, want cam1_abcd", ctrl.recoveredID)
	}
}

func TestBuildMainMenuForceRecoveryPropagatesError(t *testing.T) {
	ctrl := &fakeController{recoveryErr: errors.New("not recovering")}
	input := strings.NewReader("3\ncam1_abcd\n\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if !strings.Contains(output.String(), "Error:") {
		t.Errorf("output = %q, want the recovery error surfaced", output.String())
	}
}

func TestBuildMainMenuPauseRequiresConfirmation(t *testing.T) {
	ctrl := &fakeController{}
	input := strings.NewReader("4\nn\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if ctrl.pauseCalled {
		t.Error("Pause() should not be called when confirmation is declined")
	}
}

func TestBuildMainMenuPauseConfirmed(t *testing.T) {
	ctrl := &fakeController{}
	input := strings.NewReader("4\ny\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if !ctrl.pauseCalled {
		t.Error("Pause() should be called once confirmed")
	}
}

func TestBuildMainMenuResume(t *testing.T) {
	ctrl := &fakeController{}
	input := strings.NewReader("5\n0\n")
	output := &bytes.Buffer{}

	m := BuildMainMenu(ctrl, input, output)
	if err := m.displayWithScanner(); err != nil {
		t.Fatalf("displayWithScanner() error = %v", err)
	}
	if !ctrl.resumeCalled {
		t.Error("Resume() should be called")
	}
}
