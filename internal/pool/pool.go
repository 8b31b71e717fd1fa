// Package pool provides a fixed-size pool of XML-RPC client handles shared
// by concurrent forwarders.
//
// Handles are created once by New and released once, together, by
// Teardown. The pool never replaces or reconnects a handle.
//
// Two dispensing modes exist:
//
//	rotate    Acquire hands out the next handle in ring order and never
//	          blocks. Two callers may hold the same handle at once; that
//	          is safe because a handle carries no per-call state.
//	checkout  Checkout blocks until a handle is free and the caller has
//	          sole use of it until Return. At most N calls are in flight.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

// ErrClosed is returned once Teardown has started.
var ErrClosed = errors.New("pool: closed")

// Mode selects how handles are dispensed.
type Mode string

const (
	ModeRotate   Mode = "rotate"
	ModeCheckout Mode = "checkout"
)

// ParseMode validates s as a Mode. The empty string means rotate.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", ModeRotate:
		return ModeRotate, nil
	case ModeCheckout:
		return m, nil
	default:
		return "", fmt.Errorf("unknown pool mode %q (expected rotate|checkout)", s)
	}
}

// Caller is the RPC capability a handle exposes. *rpc.Client implements it.
type Caller interface {
	NewArray() (rpc.ArrayValue, error)
	NewString(s string) (rpc.Value, error)
	Call(ctx context.Context, server *rpc.ServerInfo, method string, params rpc.ArrayValue) (rpc.Value, error)
	Close() bool
}

// Handle is one client bound to the endpoint descriptor it calls.
type Handle struct {
	ID     int
	Client Caller
	Server *rpc.ServerInfo
}

// Pool is a ring of N handles.
type Pool struct {
	mode    Mode
	handles []*Handle
	env     Environment

	mu     sync.Mutex
	cursor int
	busy   []bool // checkout mode only

	sem *semaphore.Weighted

	// life is read-held by every Take in progress and write-held by
	// Teardown, so teardown waits for in-flight calls.
	life    sync.RWMutex
	closed  bool
	closing context.Context
	cancel  context.CancelFunc

	once sync.Once
}

// Size returns the number of handles.
func (p *Pool) Size() int { return len(p.handles) }

// Mode returns the dispensing mode.
func (p *Pool) Mode() Mode { return p.mode }

// Handles returns the handles in ring order.
func (p *Pool) Handles() []*Handle {
	out := make([]*Handle, len(p.handles))
	copy(out, p.handles)
	return out
}

// Next returns the handle that follows h in the ring.
func (p *Pool) Next(h *Handle) *Handle {
	return p.handles[(h.ID+1)%len(p.handles)]
}

// Acquire returns the handle under the cursor and advances the cursor by
// one. It never blocks on in-flight calls and never fails. The caller
// does not get exclusive use of the handle.
func (p *Pool) Acquire() *Handle {
	p.mu.Lock()
	h := p.handles[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.handles)
	p.mu.Unlock()
	return h
}

// Checkout waits for a free handle and reserves it for the caller. The
// search starts at the cursor, so handles returned in order are handed out
// in ring order. Every successful Checkout must be paired with Return.
func (p *Pool) Checkout(ctx context.Context) (*Handle, error) {
	if p.sem == nil {
		return nil, fmt.Errorf("pool: checkout in %s mode", p.mode)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closing, cancel)
	defer stop()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		if p.closing.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	if p.closing.Err() != nil {
		p.sem.Release(1)
		return nil, ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.handles)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if !p.busy[idx] {
			p.busy[idx] = true
			p.cursor = (idx + 1) % n
			return p.handles[idx], nil
		}
	}
	// The semaphore admits at most n holders, so a free slot must exist.
	p.sem.Release(1)
	return nil, errors.New("pool: no free handle")
}

// Return gives a handle obtained from Checkout back to the pool.
func (p *Pool) Return(h *Handle) {
	if p.sem == nil || h == nil {
		return
	}
	p.mu.Lock()
	if !p.busy[h.ID] {
		p.mu.Unlock()
		return
	}
	p.busy[h.ID] = false
	p.mu.Unlock()
	p.sem.Release(1)
}

// Take obtains a handle according to the pool's mode. The returned
// function must be called when the caller is done with the handle; it
// is safe to call more than once.
func (p *Pool) Take(ctx context.Context) (*Handle, func(), error) {
	p.life.RLock()
	if p.closed {
		p.life.RUnlock()
		return nil, nil, ErrClosed
	}

	if p.mode == ModeRotate {
		var once sync.Once
		return p.Acquire(), func() { once.Do(p.life.RUnlock) }, nil
	}

	h, err := p.Checkout(ctx)
	if err != nil {
		p.life.RUnlock()
		return nil, nil, err
	}
	var once sync.Once
	return h, func() {
		once.Do(func() {
			p.Return(h)
			p.life.RUnlock()
		})
	}, nil
}
