// Package module is the seam between a host that produces accounting
// events and the XML-RPC forwarder.
package module

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dmagro/acct-xmlrpc/internal/config"
	"github.com/dmagro/acct-xmlrpc/internal/event"
	"github.com/dmagro/acct-xmlrpc/internal/forwarder"
	"github.com/dmagro/acct-xmlrpc/internal/logging"
	"github.com/dmagro/acct-xmlrpc/internal/pool"
)

// ErrNotInitialized is reported for events handled before Initialize or
// after Shutdown.
var ErrNotInitialized = errors.New("module: not initialized")

// Module is the lifecycle a host drives.
type Module interface {
	Initialize(cfg *config.Config) error
	HandleEvent(ctx context.Context, ev event.Event) *forwarder.Result
	Shutdown() error
}

// XMLRPC forwards accounting events to an XML-RPC endpoint.
type XMLRPC struct {
	log *zap.Logger

	mu   sync.RWMutex
	pool *pool.Pool
	fwd  *forwarder.Forwarder
}

var _ Module = (*XMLRPC)(nil)

// New returns an uninitialized module logging to log. A nil log discards.
func New(log *zap.Logger) *XMLRPC {
	if log == nil {
		log = zap.NewNop()
	}
	return &XMLRPC{log: log}
}

// Initialize builds the client pool from cfg. Calling it on an
// initialized module is an error.
func (m *XMLRPC) Initialize(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("module: nil config")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		return errors.New("module: already initialized")
	}

	p, err := pool.Open(cfg.PoolOptions(), cfg.TransportParams())
	if err != nil {
		return err
	}
	fwd, err := forwarder.New(p, forwarder.Options{
		Method:  cfg.Method,
		Timeout: cfg.Timeout,
		Sink:    logging.NewZapSink(m.log),
	})
	if err != nil {
		if terr := p.Teardown(); terr != nil {
			err = fmt.Errorf("%w (teardown: %v)", err, terr)
		}
		return err
	}

	m.pool, m.fwd = p, fwd
	m.log.Info("xmlrpc module initialized",
		zap.String("url", cfg.URL),
		zap.String("method", cfg.Method),
		zap.Int("pool_size", p.Size()),
		zap.String("mode", string(p.Mode())),
		zap.String("auth", cfg.AuthType))
	return nil
}

// HandleEvent forwards ev.
func (m *XMLRPC) HandleEvent(ctx context.Context, ev event.Event) *forwarder.Result {
	m.mu.RLock()
	fwd := m.fwd
	m.mu.RUnlock()
	if fwd == nil {
		return &forwarder.Result{
			EventID: ev.ID,
			Outcome: forwarder.OutcomeFailed,
			Handle:  -1,
			Err:     ErrNotInitialized,
			Stage:   forwarder.StageAcquire,
		}
	}
	return fwd.Forward(ctx, ev)
}

// Pool returns the pool, or nil before Initialize.
func (m *XMLRPC) Pool() *pool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// Forwarder returns the forwarder, or nil before Initialize.
func (m *XMLRPC) Forwarder() *forwarder.Forwarder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fwd
}

// Shutdown tears the pool down. It waits for events in flight. Calling
// it again, or before Initialize, does nothing.
func (m *XMLRPC) Shutdown() error {
	m.mu.Lock()
	p := m.pool
	m.pool, m.fwd = nil, nil
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	err := p.Teardown()
	m.log.Info("xmlrpc module shut down", zap.Error(err))
	return err
}
