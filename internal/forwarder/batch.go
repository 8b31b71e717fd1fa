package forwarder

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/dmagro/acct-xmlrpc/internal/event"
)

// DefaultWorkers is the worker count used when none is given.
const DefaultWorkers = 4

// ForwardAll forwards events with up to workers concurrent calls sharing
// the pool. Results are returned in input order, not completion order.
//
// A failed event does not stop the others; its failure is recorded in its
// Result. Cancelling ctx makes the remaining forwards fail at acquisition
// or dispatch.
func (f *Forwarder) ForwardAll(ctx context.Context, events []event.Event, workers int) []*Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]*Result, len(events))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			// Each goroutine owns its own slot.
			results[i] = f.Forward(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Source yields events until it returns io.EOF. *event.Reader
// implements it.
type Source interface {
	Next() (event.Event, error)
}

// Run reads events from src and forwards them with workers goroutines.
// emit is called once per event from the worker that handled it, so it
// must be safe for concurrent use. Run stops reading when ctx is done and
// returns after every event already read has been forwarded. A read error
// other than io.EOF is returned.
func (f *Forwarder) Run(ctx context.Context, src Source, workers int, emit func(*Result)) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	jobs := make(chan event.Event)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for {
			ev, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- ev:
			case <-gctx.Done():
				return nil
			}
		}
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for ev := range jobs {
				emit(f.Forward(ctx, ev))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
