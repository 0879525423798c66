package healthmon

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Handler exposes a Monitor over HTTP: GET /healthz for a liveness probe
// (200 when overall health is not Critical, 503 otherwise) and GET /metrics
// for the telemetry counters/gauges named in spec §6.6, in hand-rolled
// Prometheus text exposition format (no client library dependency, matching
// the teacher's own choice in internal/health/health.go).
type Handler struct {
	monitor *Monitor
}

// NewHandler wraps monitor for HTTP exposition.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/metrics":
		h.serveMetrics(w)
	case "/healthz":
		h.serveHealthz(w)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveHealthz(w http.ResponseWriter) {
	report := h.monitor.GenerateReport()
	status := http.StatusOK
	if report.Overall == Critical_ {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":%q,"total_streams":%d,"active_streams":%d,"failed_streams":%d}`,
		report.Overall, report.SystemMetrics.TotalStreams, report.SystemMetrics.ActiveStreams,
		report.SystemMetrics.FailedStreams)
}

func (h *Handler) serveMetrics(w http.ResponseWriter) {
	report := h.monitor.GenerateReport()

	var b strings.Builder
	b.WriteString("# HELP stream_health_checks Total per-stream health checks performed.\n")
	b.WriteString("# TYPE stream_health_checks counter\n")
	fmt.Fprintf(&b, "stream_health_checks %d\n", h.monitor.ChecksPerformed())

	ids := make([]string, 0, len(report.StreamHealth))
	for id := range report.StreamHealth {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("# HELP stream_fps Current frames-per-second for a stream.\n")
	b.WriteString("# TYPE stream_fps gauge\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "stream_fps{stream=%q} %g\n", id, report.StreamHealth[id].Metrics.FPS)
	}

	b.WriteString("# HELP stream_errors Cumulative error count for a stream.\n")
	b.WriteString("# TYPE stream_errors gauge\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "stream_errors{stream=%q} %d\n", id, report.StreamHealth[id].Metrics.Errors)
	}

	b.WriteString("# HELP stream_frames_processed Cumulative frames processed for a stream.\n")
	b.WriteString("# TYPE stream_frames_processed counter\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "stream_frames_processed{stream=%q} %d\n", id, report.StreamHealth[id].Metrics.FramesProcessed)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(b.String()))
}

// ListenAndServeReady binds addr synchronously (so callers know immediately
// whether the port is available) then serves in the background, returning
// the bound listener's address and a stop function. This mirrors the
// teacher's bind-before-goroutine pattern in health.ListenAndServeReady.
func ListenAndServeReady(addr string, handler http.Handler) (boundAddr string, stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	server := &http.Server{Handler: handler}
	go func() {
		_ = server.Serve(ln)
	}()

	return ln.Addr().String(), func() { _ = server.Close() }, nil
}
