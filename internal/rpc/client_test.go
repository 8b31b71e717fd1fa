package rpc_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dmagro/acct-xmlrpc/internal/rpc"
	"github.com/dmagro/acct-xmlrpc/internal/rpc/rpctest"
)

func newTestClient(t *testing.T) (*rpc.Environment, *rpc.Client) {
	t.Helper()
	env, err := rpc.NewEnvironment(rpc.TransportParams{UserAgent: "acct-xmlrpc/test"})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	c, err := env.NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		env.Close()
	})
	return env, c
}

func buildParams(t *testing.T, c *rpc.Client, attrs ...string) rpc.ArrayValue {
	t.Helper()
	params, err := c.NewArray()
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	inner, err := c.NewArray()
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	for _, a := range attrs {
		s, err := c.NewString(a)
		if err != nil {
			t.Fatalf("NewString(%q): %v", a, err)
		}
		if err := inner.Append(s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := params.Append(inner); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return params
}

func TestClientCallEncodesNestedArray(t *testing.T) {
	srv := rpctest.NewServer(t)
	_, c := newTestClient(t)

	server, err := rpc.NewServerInfo(srv.URL + "/RPC2")
	if err != nil {
		t.Fatalf("NewServerInfo: %v", err)
	}

	params := buildParams(t, c, "Acct-Status-Type = Start", "User-Name = alice")
	result, err := c.Call(context.Background(), server, "acct", params)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	result.Release()

	calls := srv.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.Method != "acct" {
		t.Errorf("Method = %q, want %q", call.Method, "acct")
	}
	if len(call.Params) != 1 || !call.Params[0].IsArray {
		t.Fatalf("Params = %+v, want one array param", call.Params)
	}
	want := []string{"Acct-Status-Type = Start", "User-Name = alice"}
	got := call.Params[0].Strings
	if len(got) != len(want) {
		t.Fatalf("Strings = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Strings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ua := call.Header.Get("User-Agent"); ua != "acct-xmlrpc/test" {
		t.Errorf("User-Agent = %q, want %q", ua, "acct-xmlrpc/test")
	}
	if ct := call.Header.Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
}

func TestClientCallFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *rpctest.Server)
		wantType rpc.ErrorType
	}{
		{
			name:     "fault",
			setup:    func(s *rpctest.Server) { s.SetFault(4, "Too many parameters") },
			wantType: rpc.ErrorTypeFault,
		},
		{
			name:     "http_500",
			setup:    func(s *rpctest.Server) { s.SetStatus(http.StatusInternalServerError) },
			wantType: rpc.ErrorTypeHTTP,
		},
		{
			name:     "http_404",
			setup:    func(s *rpctest.Server) { s.SetStatus(http.StatusNotFound) },
			wantType: rpc.ErrorTypeHTTP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rpctest.NewServer(t)
			tt.setup(srv)
			_, c := newTestClient(t)
			server, _ := rpc.NewServerInfo(srv.URL)

			result, err := c.Call(context.Background(), server, "acct", buildParams(t, c, "A = 1"))
			if err == nil {
				result.Release()
				t.Fatal("expected error")
			}
			if got := rpc.Classify(err); got != tt.wantType {
				t.Errorf("Classify() = %q, want %q (err: %v)", got, tt.wantType, err)
			}
		})
	}
}

func TestClientCallFaultDetails(t *testing.T) {
	srv := rpctest.NewServer(t)
	srv.SetFault(-32601, "method not found")
	_, c := newTestClient(t)
	server, _ := rpc.NewServerInfo(srv.URL)

	_, err := c.Call(context.Background(), server, "acct", buildParams(t, c, "A = 1"))
	var f *rpc.Fault
	if !errors.As(err, &f) {
		t.Fatalf("error %v is not a *rpc.Fault", err)
	}
	if f.Code != -32601 || f.Message != "method not found" {
		t.Errorf("Fault = %+v, want code -32601 'method not found'", f)
	}
}

func TestClientCallDeadline(t *testing.T) {
	srv := rpctest.NewServer(t)
	srv.SetHook(func(_ http.ResponseWriter, r *http.Request) bool {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return true
	})
	_, c := newTestClient(t)
	server, _ := rpc.NewServerInfo(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, server, "acct", buildParams(t, c, "A = 1"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := rpc.Classify(err); got != rpc.ErrorTypeTimeout {
		t.Errorf("Classify() = %q, want timeout (err: %v)", got, err)
	}
}

func TestClientClosed(t *testing.T) {
	env, c := newTestClient(t)
	if env.Open() != 1 {
		t.Fatalf("Open() = %d, want 1", env.Open())
	}
	if !c.Close() {
		t.Fatal("first Close() = false, want true")
	}
	if c.Close() {
		t.Error("second Close() = true, want false")
	}
	if env.Open() != 0 {
		t.Errorf("Open() = %d, want 0", env.Open())
	}

	if _, err := c.NewArray(); !errors.Is(err, rpc.ErrClientClosed) {
		t.Errorf("NewArray() error = %v, want ErrClientClosed", err)
	}
	if _, err := c.NewString("x"); !errors.Is(err, rpc.ErrClientClosed) {
		t.Errorf("NewString() error = %v, want ErrClientClosed", err)
	}
}

func TestNewStringRejectsInvalidText(t *testing.T) {
	_, c := newTestClient(t)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", "User-Name = alice", false},
		{"tab_newline", "Class = a\tb\n", false},
		{"unicode", "User-Name = zoë", false},
		{"nul", "User-Name = a\x00b", true},
		{"control", "User-Name = \x07", true},
		{"invalid_utf8", "User-Name = \xff\xfe", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.NewString(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if v != nil {
				v.Release()
			}
		})
	}
}

func TestArrayUseAfterRelease(t *testing.T) {
	_, c := newTestClient(t)
	arr, _ := c.NewArray()
	s, _ := c.NewString("A = 1")
	arr.Release()
	if err := arr.Append(s); !errors.Is(err, rpc.ErrReleased) {
		t.Errorf("Append after Release error = %v, want ErrReleased", err)
	}
}

func TestEnvironmentClose(t *testing.T) {
	env, err := rpc.NewEnvironment(rpc.TransportParams{})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	c, err := env.NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.Close()
	if err := env.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	if err := env.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if _, err := env.NewClient(); !errors.Is(err, rpc.ErrEnvironmentClosed) {
		t.Errorf("NewClient after Close error = %v, want ErrEnvironmentClosed", err)
	}
}

func TestEnvironmentUnknownInterface(t *testing.T) {
	if _, err := rpc.NewEnvironment(rpc.TransportParams{Interface: "no-such-if0"}); err == nil {
		t.Error("expected error for unknown interface")
	}
}

func TestEnvironmentLiteralAddress(t *testing.T) {
	srv := rpctest.NewServer(t)
	env, err := rpc.NewEnvironment(rpc.TransportParams{Interface: "127.0.0.1"})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	c, _ := env.NewClient()
	defer c.Close()
	server, _ := rpc.NewServerInfo(srv.URL)

	result, err := c.Call(context.Background(), server, "acct", buildParams(t, c, "A = 1"))
	if err != nil {
		t.Fatalf("Call via 127.0.0.1: %v", err)
	}
	result.Release()
}
