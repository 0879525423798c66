package menu

import (
	"fmt"
	"io"
	"os"

	"github.com/destenson/dsl-rs-go/internal/healthmon"
	"github.com/destenson/dsl-rs-go/internal/lifecycle"
)

// Controller is the subset of *controller.Controller the menu drives. A
// narrow interface keeps this package's tests free of a real suture
// supervisor / graph builder.
type Controller interface {
	ListStreams() []string
	StreamState(streamID string) (lifecycle.State, bool)
	HealthReport() healthmon.Report
	TriggerRecovery(streamID string) error
	Pause() error
	Resume() error
}

// oneByteReader returns at most one byte per Read, so each bufio.Scanner
// layered over the same non-terminal input stops at the end of its own line
// and leaves the rest for the next prompt.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

// BuildMainMenu constructs the operator menu over ctrl, reading from r and
// writing to w (os.Stdin/os.Stdout in production, buffers in tests).
func BuildMainMenu(ctrl Controller, r io.Reader, w io.Writer) *Menu {
	if r != os.Stdin {
		r = oneByteReader{r}
	}
	opts := []Option{WithInput(r), WithOutput(w)}
	if r == os.Stdin {
		opts = append(opts, WithClearScreen(true))
	} else {
		opts = append(opts, WithClearScreen(false))
	}

	m := New("Pipeline Supervisor", opts...)

	m.AddItem(MenuItem{
		Key:   "1",
		Label: "List Streams",
		Action: func() error {
			ids := ctrl.ListStreams()
			if len(ids) == 0 {
				fmt.Fprintln(w, "no streams registered")
				WaitForKey(r, w, "")
				return nil
			}
			for _, id := range ids {
				state, _ := ctrl.StreamState(id)
				fmt.Fprintf(w, "  %s  %s\n", id, state)
			}
			WaitForKey(r, w, "")
			return nil
		},
	})

	m.AddItem(MenuItem{
		Key:   "2",
		Label: "Health Report",
		Action: func() error {
			report := ctrl.HealthReport()
			fmt.Fprintf(w, "overall: %s\n", report.Overall)
			fmt.Fprintf(w, "streams: total=%d active=%d failed=%d uptime=%s\n",
				report.SystemMetrics.TotalStreams, report.SystemMetrics.ActiveStreams,
				report.SystemMetrics.FailedStreams, report.SystemMetrics.PipelineUptime)
			for _, a := range report.Alerts {
				fmt.Fprintf(w, "  alert[%s] %s: %s\n", a.Severity, a.StreamID, a.Message)
			}
			WaitForKey(r, w, "")
			return nil
		},
	})

	m.AddItem(MenuItem{
		Key:   "3",
		Label: "Force Recovery",
		Action: func() error {
			id := Input(r, w, "stream id")
			if id == "" {
				return nil
			}
			if err := ctrl.TriggerRecovery(id); err != nil {
				return err
			}
			fmt.Fprintf(w, "recovery triggered for %s\n", id)
			WaitForKey(r, w, "")
			return nil
		},
	})

	m.AddItem(MenuItem{
		Key:   "4",
		Label: "Pause All Streams",
		Action: func() error {
			if !Confirm(r, w, "pause every registered stream?") {
				return nil
			}
			return ctrl.Pause()
		},
	})

	m.AddItem(MenuItem{
		Key:   "5",
		Label: "Resume All Streams",
		Action: func() error {
			return ctrl.Resume()
		},
	})

	m.AddSeparator()

	m.AddItem(MenuItem{
		Key:    "0",
		Label:  "Exit",
		Action: nil,
	})

	return m
}
