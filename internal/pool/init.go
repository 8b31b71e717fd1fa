package pool

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

// DefaultSize is the pool size used when none is configured.
const DefaultSize = 5

// Stage names the initialization step that failed.
type Stage string

const (
	StageClientCreate  Stage = "client-create"
	StageServerInfo    Stage = "server-info"
	StageCredentialSet Stage = "credential-set"
	StageAuthEnable    Stage = "auth-enable"
)

// InitError reports a failed pool construction. Nothing built before the
// failure survives it.
type InitError struct {
	Stage  Stage
	Handle int // index of the handle being built, -1 for pool-wide steps
	Err    error
}

func (e *InitError) Error() string {
	if e.Handle < 0 {
		return fmt.Sprintf("pool init (%s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pool init (%s, handle %d): %v", e.Stage, e.Handle, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Environment creates clients and owns the process-wide transport state
// they share.
type Environment interface {
	NewClient() (Caller, error)
	Close() error
}

// Options configures a pool.
type Options struct {
	URL  string
	Size int
	Mode Mode

	Auth       rpc.AuthMode
	User       string
	Password   string
	Realm      string
	SPN        string
	Krb5Config string
}

// Open builds the shared transport from params and then the pool on top
// of it.
func Open(opts Options, params rpc.TransportParams) (*Pool, error) {
	env, err := rpc.NewEnvironment(params)
	if err != nil {
		return nil, &InitError{Stage: StageClientCreate, Handle: -1, Err: err}
	}
	return New(opts, rpcEnvironment{env})
}

// New creates opts.Size handles from env and links them into a ring.
//
// Parameters:
//   - opts: Endpoint, size (0 means DefaultSize), mode and auth settings
//   - env: Source of clients; owned by the pool from here on
//
// Returns:
//   - *Pool: Ready ring whose cursor starts at handle 0
//   - error: *InitError naming the failing stage and handle
//
// Per handle, in order: client-create, server-info and, unless auth is
// none, credential-set then auth-enable. On any failure every handle
// created so far is released, env is closed and no pool is returned.
func New(opts Options, env Environment) (*Pool, error) {
	n := opts.Size
	if n == 0 {
		n = DefaultSize
	}
	if n < 0 {
		return nil, fmt.Errorf("pool: invalid size %d", opts.Size)
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	auth := opts.Auth
	if auth == "" {
		auth = rpc.AuthNone
	}

	handles := make([]*Handle, 0, n)
	fail := func(stage Stage, i int, err error) (*Pool, error) {
		var errs []error
		for _, h := range handles {
			errs = append(errs, releaseHandle(h))
		}
		errs = append(errs, env.Close())
		if cleanup := errors.Join(errs...); cleanup != nil {
			err = fmt.Errorf("%w (cleanup: %v)", err, cleanup)
		}
		return nil, &InitError{Stage: stage, Handle: i, Err: err}
	}

	for i := 0; i < n; i++ {
		client, err := env.NewClient()
		if err != nil {
			return fail(StageClientCreate, i, err)
		}
		h := &Handle{ID: i, Client: client}
		handles = append(handles, h)

		server, err := rpc.NewServerInfo(opts.URL)
		if err != nil {
			return fail(StageServerInfo, i, err)
		}
		h.Server = server

		if auth == rpc.AuthNone {
			continue
		}
		server.SetRealm(opts.Realm)
		server.SetKerberos(opts.SPN, opts.Krb5Config)
		if err := server.SetCredentials(opts.User, opts.Password); err != nil {
			return fail(StageCredentialSet, i, err)
		}
		if err := server.EnableAuth(auth); err != nil {
			return fail(StageAuthEnable, i, err)
		}
	}

	closing, cancel := context.WithCancel(context.Background())
	p := &Pool{
		mode:    mode,
		handles: handles,
		env:     env,
		closing: closing,
		cancel:  cancel,
	}
	if mode == ModeCheckout {
		p.busy = make([]bool, n)
		p.sem = semaphore.NewWeighted(int64(n))
	}
	return p, nil
}

// rpcEnvironment adapts *rpc.Environment to Environment.
type rpcEnvironment struct {
	env *rpc.Environment
}

func (e rpcEnvironment) NewClient() (Caller, error) {
	c, err := e.env.NewClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e rpcEnvironment) Close() error { return e.env.Close() }
