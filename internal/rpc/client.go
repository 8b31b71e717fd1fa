package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kolo/xmlrpc"
)

// Client issues XML-RPC calls over HTTP. It is safe for concurrent use;
// per-call state lives in the values passed to and returned from Call.
type Client struct {
	env       *Environment
	transport *http.Transport
	userAgent string

	// One http.Client per server descriptor, so stateful auth transports
	// (digest nonces, NTLM handshakes) survive across calls.
	mu      sync.Mutex
	servers map[*ServerInfo]*http.Client

	closed atomic.Bool
}

func newClient(env *Environment, tr *http.Transport, userAgent string) *Client {
	return &Client{
		env:       env,
		transport: tr,
		userAgent: userAgent,
		servers:   make(map[*ServerInfo]*http.Client),
	}
}

// NewArray constructs an empty array value.
func (c *Client) NewArray() (ArrayValue, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return &Array{}, nil
}

// NewString constructs a string value. Text that cannot be represented in
// an XML document is rejected.
func (c *Client) NewString(s string) (Value, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := validText(s); err != nil {
		return nil, fmt.Errorf("string value: %w", err)
	}
	return &String{s: s}, nil
}

// Call invokes method on server with params as the positional parameter
// list and waits for the response. The returned value must be released by
// the caller. Any HTTP status other than 200, a transport error or an
// XML-RPC fault is returned as a *CallError.
func (c *Client) Call(ctx context.Context, server *ServerInfo, method string, params ArrayValue) (Value, error) {
	if c.closed.Load() {
		return nil, &CallError{Type: ErrorTypeTransport, Err: ErrClientClosed}
	}

	arr, ok := params.(*Array)
	if !ok {
		return nil, &CallError{Type: ErrorTypeEncode, Err: fmt.Errorf("unsupported params type %T", params)}
	}
	args, err := arr.args()
	if err != nil {
		return nil, &CallError{Type: ErrorTypeEncode, Err: err}
	}
	body, err := xmlrpc.EncodeMethodCall(method, args...)
	if err != nil {
		return nil, &CallError{Type: ErrorTypeEncode, Err: fmt.Errorf("encode call: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Type: ErrorTypeOther, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := server.authorize(req); err != nil {
		return nil, &CallError{Type: ErrorTypeOther, Err: err}
	}

	resp, err := c.httpClient(server).Do(req)
	if err != nil {
		return nil, &CallError{Type: ErrorTypeTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &CallError{
			Type:       ErrorTypeHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	buf := getBuffer()
	if _, err := io.Copy(buf, resp.Body); err != nil {
		putBuffer(buf)
		return nil, &CallError{Type: ErrorTypeTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	if err := xmlrpc.Response(buf.Bytes()).Err(); err != nil {
		putBuffer(buf)
		var fe xmlrpc.FaultError
		if errors.As(err, &fe) {
			return nil, &CallError{Type: ErrorTypeFault, Err: &Fault{Code: fe.Code, Message: fe.String}}
		}
		return nil, &CallError{Type: ErrorTypeOther, Err: fmt.Errorf("invalid response: %w", err)}
	}

	return &Result{buf: buf}, nil
}

func (c *Client) httpClient(server *ServerInfo) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.servers[server]; ok {
		return hc
	}
	hc := &http.Client{
		Transport: server.wrap(c.transport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if c.servers != nil {
		c.servers[server] = hc
	}
	return hc
}

// Close drops idle connections and marks the client unusable. It reports
// whether this call performed the close.
func (c *Client) Close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	c.transport.CloseIdleConnections()

	c.mu.Lock()
	c.servers = nil
	c.mu.Unlock()

	if c.env != nil {
		c.env.clientClosed()
	}
	return true
}
