package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteRunFile writes the JSON run report to dir as
// acctfwd-{YYYYMMDD-HHMMSS}.json (UTC, from r.Timestamp) and returns its
// path. dir is created if needed.
func WriteRunFile(dir string, r *RunReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	path := filepath.Join(dir, "acctfwd-"+ts.UTC().Format("20060102-150405")+".json")

	var buf bytes.Buffer
	if err := RenderRunJSON(&buf, r); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
