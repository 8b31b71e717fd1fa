package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmagro/acct-xmlrpc/internal/config"
	"github.com/dmagro/acct-xmlrpc/internal/stats"
)

// JSONRunReport is the machine-readable run summary.
type JSONRunReport struct {
	Metadata JSONMetadata `json:"metadata"`
	Totals   JSONTotals   `json:"totals"`
	Latency  JSONLatency  `json:"latency_ms"`
	Failures JSONFailures `json:"failures"`
	Handles  []JSONHandle `json:"handles"`
	Balance  JSONBalance  `json:"balance"`
}

// JSONMetadata holds report metadata.
type JSONMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Mode      string    `json:"mode"`
	Version   string    `json:"version"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

// JSONTotals holds event counts.
type JSONTotals struct {
	Events      int     `json:"events"`
	Delivered   int     `json:"delivered"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// JSONLatency holds latency percentiles in milliseconds.
type JSONLatency struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// JSONFailures breaks failures down by stage and error type.
type JSONFailures struct {
	ByStage map[string]int `json:"by_stage"`
	ByType  map[string]int `json:"by_type"`
}

// JSONHandle holds per-handle counters.
type JSONHandle struct {
	Handle    int         `json:"handle"`
	Calls     int         `json:"calls"`
	Delivered int         `json:"delivered"`
	Failed    int         `json:"failed"`
	Latency   JSONLatency `json:"latency_ms"`
}

// JSONBalance holds the call spread check.
type JSONBalance struct {
	Even   bool     `json:"even"`
	Spread int      `json:"spread"`
	Issues []string `json:"issues,omitempty"`
}

// RenderRunJSON writes r as indented JSON.
func RenderRunJSON(w io.Writer, r *RunReport) error {
	s := r.Summary
	out := JSONRunReport{
		Metadata: JSONMetadata{
			Timestamp: r.Timestamp,
			URL:       r.URL,
			Method:    r.Method,
			Mode:      r.Mode,
			Version:   config.Version,
			ElapsedMs: msec(s.Elapsed),
		},
		Totals: JSONTotals{
			Events:      s.Events,
			Delivered:   s.Delivered,
			Skipped:     s.Skipped,
			Failed:      s.Failed,
			SuccessRate: s.SuccessRate(),
		},
		Latency: jsonLatency(s.Latency),
		Failures: JSONFailures{
			ByStage: make(map[string]int, len(s.ByStage)),
			ByType:  make(map[string]int, len(s.ByType)),
		},
		Handles: make([]JSONHandle, 0, len(s.Handles)),
		Balance: JSONBalance{Even: s.Balance.Even, Spread: s.Balance.Spread, Issues: s.Balance.Issues},
	}
	for k, v := range s.ByStage {
		out.Failures.ByStage[string(k)] = v
	}
	for k, v := range s.ByType {
		out.Failures.ByType[string(k)] = v
	}
	for _, h := range s.Handles {
		out.Handles = append(out.Handles, JSONHandle{
			Handle:    h.Handle,
			Calls:     h.Calls(),
			Delivered: h.Delivered,
			Failed:    h.Failed,
			Latency:   jsonLatency(h.Latency),
		})
	}
	return writeJSON(w, out)
}

// RenderCheckJSON writes r as indented JSON.
func RenderCheckJSON(w io.Writer, r *CheckReport) error {
	return writeJSON(w, r)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func jsonLatency(l stats.Latency) JSONLatency {
	return JSONLatency{
		Avg: msec(l.Avg),
		P50: msec(l.P50),
		P95: msec(l.P95),
		P99: msec(l.P99),
		Max: msec(l.Max),
	}
}

func msec(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
