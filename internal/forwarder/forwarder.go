// Package forwarder turns accounting events into XML-RPC calls.
//
// Each marked event becomes one call of the configured method with a
// single parameter: an array of the event's attributes rendered as
// strings, in order. Unmarked events are skipped without using the pool.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmagro/acct-xmlrpc/internal/event"
	"github.com/dmagro/acct-xmlrpc/internal/logging"
	"github.com/dmagro/acct-xmlrpc/internal/pool"
	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

// Component is the name failure records are logged under.
const Component = "xmlrpc"

// ErrEmptyEvent is returned for a marked event with no attributes.
var ErrEmptyEvent = errors.New("forwarder: event has no attributes")

// Stage names the step of a forward that failed.
type Stage string

const (
	StageAcquire      Stage = "acquire"
	StageArrayCreate  Stage = "array-create"
	StageStringAppend Stage = "string-append"
	StageCallDispatch Stage = "call-dispatch"
)

// ForwardError is a failed forward.
type ForwardError struct {
	Stage Stage
	Err   error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// Outcome is what happened to one event.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeNoOp   Outcome = "noop"
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of forwarding one event.
type Result struct {
	EventID   string
	Outcome   Outcome
	Handle    int // -1 if no handle was used
	Latency   time.Duration
	Err       error
	ErrorType rpc.ErrorType
	Stage     Stage
}

// Success reports whether the event was delivered.
func (r *Result) Success() bool { return r.Outcome == OutcomeOK }

// Taker dispenses pool handles. *pool.Pool implements it.
type Taker interface {
	Take(ctx context.Context) (*pool.Handle, func(), error)
}

// Forwarder sends events through a shared pool.
type Forwarder struct {
	pool    Taker
	method  string
	timeout time.Duration
	sink    logging.Sink
}

// Options configures a Forwarder.
type Options struct {
	Method  string
	Timeout time.Duration // 0 means no per-call deadline
	Sink    logging.Sink
}

// New returns a Forwarder over p.
func New(p Taker, opts Options) (*Forwarder, error) {
	if p == nil {
		return nil, errors.New("forwarder: nil pool")
	}
	if opts.Method == "" {
		return nil, errors.New("forwarder: method is required")
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("forwarder: negative timeout %s", opts.Timeout)
	}
	sink := opts.Sink
	if sink == nil {
		sink = logging.Nop()
	}
	return &Forwarder{pool: p, method: opts.Method, timeout: opts.Timeout, sink: sink}, nil
}

// Forward delivers ev if it carries an Acct-Status-Type attribute.
func (f *Forwarder) Forward(ctx context.Context, ev event.Event) *Result {
	if !ev.HasStatusType {
		f.sink.Skipped(ev.ID, "no "+event.StatusTypeAttribute+" attribute")
		return &Result{EventID: ev.ID, Outcome: OutcomeNoOp, Handle: -1}
	}
	if len(ev.Attributes) == 0 {
		return f.fail(&Result{EventID: ev.ID, Handle: -1}, StageAcquire, ErrEmptyEvent)
	}

	h, done, err := f.pool.Take(ctx)
	if err != nil {
		return f.fail(&Result{EventID: ev.ID, Handle: -1}, StageAcquire, err)
	}
	defer done()
	return f.ForwardWith(ctx, ev, h)
}

// ForwardWith delivers ev over h as one call whose single parameter is
// the array of ev's attribute strings.
//
// Parameters:
//   - ctx: Bounds the call; Options.Timeout is applied on top when set
//   - ev: Event to send (not checked for the status marker here)
//   - h: Handle to dispatch on; the caller owns its acquisition
//
// Returns:
//   - *Result: Outcome, handle, latency and, on failure, the failing Stage
//
// Steps: array-create (params and inner array), string-append (one per
// attribute), call-dispatch. The first failing step ends the call and
// every value built before it, the reply included, is released.
func (f *Forwarder) ForwardWith(ctx context.Context, ev event.Event, h *pool.Handle) *Result {
	res := &Result{EventID: ev.ID, Handle: h.ID}
	start := time.Now()

	var built []rpc.Value
	defer func() {
		for i := len(built) - 1; i >= 0; i-- {
			built[i].Release()
		}
	}()

	params, err := h.Client.NewArray()
	if err != nil {
		return f.fail(res, StageArrayCreate, err)
	}
	built = append(built, params)

	list, err := h.Client.NewArray()
	if err != nil {
		return f.fail(res, StageArrayCreate, err)
	}
	built = append(built, list)

	for _, attr := range ev.Attributes {
		s, err := h.Client.NewString(attr)
		if err != nil {
			return f.fail(res, StageStringAppend, err)
		}
		built = append(built, s)
		if err := list.Append(s); err != nil {
			return f.fail(res, StageStringAppend, err)
		}
	}
	if err := params.Append(list); err != nil {
		return f.fail(res, StageStringAppend, err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	reply, err := h.Client.Call(ctx, h.Server, f.method, params)
	res.Latency = time.Since(start)
	if err != nil {
		return f.fail(res, StageCallDispatch, err)
	}
	if reply != nil {
		reply.Release()
	}

	res.Outcome = OutcomeOK
	f.sink.Delivered(ev.ID, h.ID, res.Latency)
	return res
}

func (f *Forwarder) fail(res *Result, stage Stage, err error) *Result {
	res.Outcome = OutcomeFailed
	res.Stage = stage
	res.Err = &ForwardError{Stage: stage, Err: err}
	res.ErrorType = rpc.Classify(err)
	f.sink.Failure(logging.FailureRecord{
		Component: Component,
		Stage:     string(stage),
		Message:   err.Error(),
		EventID:   res.EventID,
		Handle:    res.Handle,
	})
	return res
}
