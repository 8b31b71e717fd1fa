package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmagro/acct-xmlrpc/internal/output"
	"github.com/dmagro/acct-xmlrpc/internal/rpc/rpctest"
)

func writeConfig(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "acctfwd.yaml")
	content := "url: " + url + "\nmethod: acct.record\ninterface: 127.0.0.1\npool_size: 2\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestServeForwardsDetailFile(t *testing.T) {
	srv := rpctest.NewServer(t)
	cfg := writeConfig(t, srv.URL+"/RPC2")

	input := filepath.Join(t.TempDir(), "detail")
	detail := `Tue Oct 14 09:12:44 2026
	User-Name = "a"
	Acct-Status-Type = Start

Tue Oct 14 09:12:45 2026
	User-Name = "b"

Tue Oct 14 09:12:46 2026
	User-Name = "c"
	Acct-Status-Type = Stop
`
	if err := os.WriteFile(input, []byte(detail), 0o600); err != nil {
		t.Fatal(err)
	}

	reports := filepath.Join(t.TempDir(), "reports")
	out, err := run(t, "serve", "--config", cfg, "--input", input, "--format", "json", "--workers", "2", "--report-dir", reports)
	if err != nil {
		t.Fatalf("serve: %v\n%s", err, out)
	}
	var report output.JSONRunReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("serve output is not JSON: %v\n%s", err, out)
	}
	if report.Totals.Events != 3 || report.Totals.Delivered != 2 || report.Totals.Skipped != 1 {
		t.Errorf("Totals = %+v", report.Totals)
	}
	if n := len(srv.Calls()); n != 2 {
		t.Errorf("server received %d calls, want 2", n)
	}
	if files, _ := filepath.Glob(filepath.Join(reports, "acctfwd-*.json")); len(files) != 1 {
		t.Errorf("report files = %v, want one", files)
	}
}

func TestServeReportsFailures(t *testing.T) {
	srv := rpctest.NewServer(t)
	srv.SetFault(3, "rejected")
	cfg := writeConfig(t, srv.URL+"/RPC2")

	input := filepath.Join(t.TempDir(), "detail")
	if err := os.WriteFile(input, []byte("\tAcct-Status-Type = Start\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "serve", "--config", cfg, "--input", input, "--format", "json")
	if err == nil || !strings.Contains(err.Error(), "1 of 1 events failed") {
		t.Errorf("serve error = %v, want failure count", err)
	}
}

func TestSend(t *testing.T) {
	srv := rpctest.NewServer(t)
	cfg := writeConfig(t, srv.URL+"/RPC2")

	out, err := run(t, "send", "--config", cfg, "User-Name = bob", "Acct-Status-Type = Start")
	if err != nil {
		t.Fatalf("send: %v\n%s", err, out)
	}
	if !strings.Contains(out, "delivered") {
		t.Errorf("send output = %q", out)
	}
	calls := srv.Calls()
	if len(calls) != 1 || len(calls[0].Params) != 1 || len(calls[0].Params[0].Strings) != 2 {
		t.Fatalf("server calls = %+v", calls)
	}

	out, err = run(t, "send", "--config", cfg, "User-Name = bob")
	if err != nil {
		t.Fatalf("send unmarked: %v", err)
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("send unmarked output = %q", out)
	}
}

func TestCheck(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:9/RPC2")

	out, err := run(t, "check", "--config", cfg, "--format", "json")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	var report output.CheckReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("check output is not JSON: %v\n%s", err, out)
	}
	if report.Size != 2 || len(report.Handles) != 2 || report.Teardown != "ok" {
		t.Errorf("CheckReport = %+v", report)
	}
}

func TestCheckBadConfig(t *testing.T) {
	if _, err := run(t, "check", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
	if _, err := run(t, "check", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
