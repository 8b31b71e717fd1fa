// Package rpctest provides an in-process XML-RPC endpoint for tests.
package rpctest

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Call is one request received by the server.
type Call struct {
	Method string
	Params []Param
	Header http.Header
}

// Param is a decoded positional parameter. Only strings and arrays of
// strings are decoded; that is all the forwarder sends.
type Param struct {
	String  string
	Strings []string
	IsArray bool
}

// Server is a recording XML-RPC endpoint.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	calls     []Call
	status    int
	faultCode int
	faultMsg  string
	hook      func(w http.ResponseWriter, r *http.Request) bool
	auths     []string
}

// NewServer starts a server that answers every call with a boolean true.
// It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetStatus makes the server answer with the given HTTP status.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

// SetFault makes the server answer every call with an XML-RPC fault.
func (s *Server) SetFault(code int, msg string) {
	s.mu.Lock()
	s.faultCode, s.faultMsg = code, msg
	s.mu.Unlock()
}

// SetHook installs fn to run before a call is recorded. Returning false
// makes the server reply 401 without recording; fn may set response
// headers such as WWW-Authenticate first.
func (s *Server) SetHook(fn func(w http.ResponseWriter, r *http.Request) bool) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

// Authorizations returns the Authorization header of every request
// received, rejected ones included. A request without one records "".
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.auths))
	copy(out, s.auths)
	return out
}

// Calls returns a copy of the calls received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

type methodCall struct {
	Name   string  `xml:"methodName"`
	Params []value `xml:"params>param>value"`
}

type value struct {
	String *string `xml:"string"`
	Array  *struct {
		Data []value `xml:"data>value"`
	} `xml:"array"`
	Text string `xml:",chardata"`
}

func (v value) text() string {
	if v.String != nil {
		return *v.String
	}
	return v.Text
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.auths = append(s.auths, r.Header.Get("Authorization"))
	hook := s.hook
	s.mu.Unlock()
	if hook != nil && !hook(w, r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var mc methodCall
	if err := xml.Unmarshal(body, &mc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call := Call{Method: mc.Name, Header: r.Header.Clone()}
	for _, p := range mc.Params {
		if p.Array == nil {
			call.Params = append(call.Params, Param{String: p.text()})
			continue
		}
		param := Param{IsArray: true, Strings: []string{}}
		for _, item := range p.Array.Data {
			param.Strings = append(param.Strings, item.text())
		}
		call.Params = append(call.Params, param)
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	status, code, msg := s.status, s.faultCode, s.faultMsg
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	if msg != "" {
		fmt.Fprintf(w, faultBody, code, xmlEscape(msg))
		return
	}
	io.WriteString(w, okBody)
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const okBody = `<?xml version="1.0"?>
<methodResponse><params><param><value><boolean>1</boolean></value></param></params></methodResponse>`

const faultBody = `<?xml version="1.0"?>
<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>%d</int></value></member>
<member><name>faultString</name><value><string>%s</string></value></member>
</struct></value></fault></methodResponse>`
