package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType categorizes call failures for reporting.
type ErrorType string

const (
	ErrorTypeNone      ErrorType = ""
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeHTTP      ErrorType = "http"
	ErrorTypeFault     ErrorType = "fault"
	ErrorTypeTransport ErrorType = "transport"
	ErrorTypeEncode    ErrorType = "encode"
	ErrorTypeOther     ErrorType = "other"
)

// Fault is an XML-RPC <fault> returned by the remote endpoint.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}

// CallError describes a failed call.
type CallError struct {
	Type       ErrorType
	StatusCode int // set for ErrorTypeHTTP
	Err        error
}

func (e *CallError) Error() string {
	if e.Type == ErrorTypeHTTP {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Err.Error()
}

func (e *CallError) Unwrap() error { return e.Err }

// Classify returns the ErrorType of err. Errors not produced by this
// package are classified by inspecting the chain.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.Type != ErrorTypeTimeout && !isTimeout(ce.Err) {
		return ce.Type
	}
	if isTimeout(err) {
		return ErrorTypeTimeout
	}
	var f *Fault
	if errors.As(err, &f) {
		return ErrorTypeFault
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ErrorTypeTransport
	}
	return ErrorTypeOther
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
