package pool

import (
	"context"
	"errors"
	"fmt"
)

// Teardown releases every handle exactly once and then the shared
// environment.
//
// Order:
//  1. Cancel the pool; blocked Checkout calls fail with ErrClosed
//  2. Wait for calls in progress through Take and, in checkout mode, for
//     every checked-out handle to be returned
//  3. Walk the ring by count (Size steps from handle 0), releasing the
//     server info and closing the client of each handle
//  4. Close the environment
//
// Returns:
//   - error: Every release failure joined; nil on success
//
// Only the first call does any work; later calls return nil.
func (p *Pool) Teardown() error {
	var err error
	p.once.Do(func() {
		p.cancel()

		p.life.Lock()
		p.closed = true
		p.life.Unlock()

		if p.sem != nil {
			_ = p.sem.Acquire(context.Background(), int64(len(p.handles)))
		}

		var errs []error
		// Walk by count: the ring has no end to stop at.
		for i := 0; i < len(p.handles); i++ {
			errs = append(errs, releaseHandle(p.handles[i]))
		}
		errs = append(errs, p.env.Close())
		err = errors.Join(errs...)
	})
	return err
}

func releaseHandle(h *Handle) error {
	if h.Server != nil {
		h.Server.Release()
	}
	if h.Client != nil && !h.Client.Close() {
		return fmt.Errorf("handle %d: client already closed", h.ID)
	}
	return nil
}
