// Package output renders run summaries and pool layouts for the terminal
// and as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/dmagro/acct-xmlrpc/internal/forwarder"
	"github.com/dmagro/acct-xmlrpc/internal/metrics"
	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var headerFmt = color.New(color.FgCyan, color.Underline).SprintfFunc()

// RunReport is everything printed after a serve run.
type RunReport struct {
	Timestamp time.Time
	URL       string
	Method    string
	Mode      string
	Summary   metrics.Summary
}

// RenderRunTerminal writes the run report to w.
func RenderRunTerminal(w io.Writer, r *RunReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s %s\n", cyan("──"), bold("Accounting forward summary"), cyan(r.Timestamp.Format("2006-01-02 15:04:05 MST")))
	fmt.Fprintf(w, "  Endpoint: %s  method %s  mode %s\n", r.URL, cyan(r.Method), r.Mode)
	fmt.Fprintln(w)

	s := r.Summary
	fmt.Fprintf(w, "  Events %d   Delivered %s   Skipped %d   Failed %s   in %s\n",
		s.Events, green(s.Delivered), s.Skipped, formatErrorCount(s.Failed), formatDuration(s.Elapsed))
	fmt.Fprintf(w, "  Success %s   p50 %s   p95 %s   p99 %s   max %s\n",
		formatSuccessRate(s.SuccessRate(), s.Delivered+s.Failed),
		formatDuration(s.Latency.P50), formatDuration(s.Latency.P95),
		formatDuration(s.Latency.P99), formatDuration(s.Latency.Max))
	fmt.Fprintln(w)

	renderHandles(w, s.Handles)
	renderFailures(w, s)
	renderBalance(w, s.Balance)
}

func renderHandles(w io.Writer, handles []metrics.HandleMetrics) {
	if len(handles) == 0 {
		return
	}
	fmt.Fprintln(w, bold("Handles"))
	tbl := table.New("Handle", "Calls", "Delivered", "Failed", "p50", "p95", "Max").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, h := range handles {
		tbl.AddRow(h.Handle, h.Calls(), h.Delivered, formatErrorCount(h.Failed),
			formatDuration(h.Latency.P50), formatDuration(h.Latency.P95), formatDuration(h.Latency.Max))
	}
	tbl.Print()
	fmt.Fprintln(w)
}

func renderFailures(w io.Writer, s metrics.Summary) {
	if s.Failed == 0 {
		fmt.Fprintln(w, green("No failures."))
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w, bold("Failures"))
	tbl := table.New("Stage", "Count").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, st := range sortedKeys(s.ByStage) {
		tbl.AddRow(st, red(s.ByStage[st]))
	}
	tbl.Print()
	fmt.Fprintln(w)

	tbl = table.New("Error type", "Count").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, et := range sortedKeys(s.ByType) {
		name := string(et)
		if et == rpc.ErrorTypeNone {
			name = "-"
		}
		tbl.AddRow(name, red(s.ByType[et]))
	}
	tbl.Print()
	fmt.Fprintln(w)
}

func renderBalance(w io.Writer, b metrics.Balance) {
	if b.Even {
		fmt.Fprintf(w, "%s Calls spread evenly (max spread %d)\n", green("✓"), b.Spread)
	} else {
		fmt.Fprintf(w, "%s Uneven call spread (%d..%d)\n", yellow("⚠"), b.MinCalls, b.MaxCalls)
	}
	for _, issue := range b.Issues {
		fmt.Fprintf(w, "  %s %s\n", yellow("⚠"), issue)
	}
	fmt.Fprintln(w)
}

// RenderResult writes a one-line outcome of a single forward.
func RenderResult(w io.Writer, r *forwarder.Result) {
	switch r.Outcome {
	case forwarder.OutcomeOK:
		fmt.Fprintf(w, "%s delivered %s via handle %d in %s\n", green("✓"), r.EventID, r.Handle, formatDuration(r.Latency))
	case forwarder.OutcomeNoOp:
		fmt.Fprintf(w, "%s skipped %s (no Acct-Status-Type)\n", yellow("-"), r.EventID)
	default:
		fmt.Fprintf(w, "%s failed %s at %s: %v\n", red("✗"), r.EventID, r.Stage, r.Err)
	}
}

func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "—"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatSuccessRate(rate float64, attempted int) string {
	if attempted == 0 {
		return "—"
	}
	str := fmt.Sprintf("%.1f%%", rate)
	if rate >= 99.0 {
		return green(str)
	}
	if rate >= 90.0 {
		return yellow(str)
	}
	return red(str)
}

func formatErrorCount(count int) string {
	if count == 0 {
		return green("0")
	}
	return red(fmt.Sprintf("%d", count))
}

// DisableColors turns off color output.
func DisableColors() {
	color.NoColor = true
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
