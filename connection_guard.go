package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ConnectionState is the guard's lifecycle state
type ConnectionState string

const (
	StateUnconnected ConnectionState = "unconnected"
	StateConnecting  ConnectionState = "connecting"
	StateConnected   ConnectionState = "connected"
	StateFailed      ConnectionState = "failed"
)

// DefaultConnectTimeout bounds one connection attempt
const DefaultConnectTimeout = 10 * time.Second

const connectFlightKey = "connect"

// ConnectionGuard lazily opens the store connection and shares it across
// the process. At most one connection attempt is in flight at any time and
// every caller waiting on an attempt observes the same outcome.
type ConnectionGuard struct {
	connector Connector
	timeout   time.Duration
	logger    Logger
	onConnect []func(ctx context.Context, conn Connection) error

	flight singleflight.Group

	mu      sync.RWMutex
	state   ConnectionState
	conn    Connection
	lastErr error
	// epoch changes on every Close so an attempt that was in flight at
	// the time can tell its handle is no longer wanted
	epoch uint64
}

// ConnectionGuardOption configures a ConnectionGuard
type ConnectionGuardOption func(*ConnectionGuard)

// WithConnectTimeout bounds each connection attempt, bootstrap included
func WithConnectTimeout(d time.Duration) ConnectionGuardOption {
	return func(g *ConnectionGuard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGuardLogger sets the guard logger
func WithGuardLogger(l Logger) ConnectionGuardOption {
	return func(g *ConnectionGuard) {
		g.logger = normalizeLogger(l)
	}
}

// WithOnConnect registers a hook that runs once per established
// connection, before any waiter is released. Hook errors are logged.
func WithOnConnect(hook func(ctx context.Context, conn Connection) error) ConnectionGuardOption {
	return func(g *ConnectionGuard) {
		if hook != nil {
			g.onConnect = append(g.onConnect, hook)
		}
	}
}

// NewConnectionGuard returns a guard in the Unconnected state
func NewConnectionGuard(connector Connector, opts ...ConnectionGuardOption) *ConnectionGuard {
	g := &ConnectionGuard{
		connector: connector,
		timeout:   DefaultConnectTimeout,
		logger:    defLogger(),
		state:     StateUnconnected,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// State returns the current lifecycle state without triggering I/O
func (g *ConnectionGuard) State() ConnectionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// LastError returns the error of the most recent failed attempt
func (g *ConnectionGuard) LastError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastErr
}

// Acquire returns the shared connection, opening it if needed. A caller
// whose ctx ends while waiting gets ctx's error; the attempt itself keeps
// running for the other waiters and is bounded only by the guard timeout.
func (g *ConnectionGuard) Acquire(ctx context.Context) (Connection, error) {
	if conn := g.cached(); conn != nil {
		return conn, nil
	}

	ch := g.flight.DoChan(connectFlightKey, func() (any, error) {
		return g.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Connection), nil
	case <-ctx.Done():
		return nil, wrapSentinel(ErrStoreUnavailable, ctx.Err(), map[string]any{
			"reason": "caller gave up waiting for connection",
		})
	}
}

// Store adapts Acquire to an AccountStore view
func (g *ConnectionGuard) Store(ctx context.Context) (AccountStore, error) {
	return g.Acquire(ctx)
}

// Close releases the connection and returns the guard to Unconnected
func (g *ConnectionGuard) Close(ctx context.Context) error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.state = StateUnconnected
	g.epoch++
	g.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

// Reset drops a connection the caller found broken so the next Acquire
// opens a fresh one. It is a no-op if conn is no longer the cached handle.
func (g *ConnectionGuard) Reset(ctx context.Context, conn Connection, cause error) {
	g.mu.Lock()
	if conn == nil || g.conn != conn {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	g.state = StateFailed
	g.lastErr = cause
	g.mu.Unlock()

	g.logger.Warn("store connection reset", "error", cause)
	if err := conn.Close(ctx); err != nil {
		g.logger.Debug("closing reset connection failed", "error", err)
	}
}

func (g *ConnectionGuard) cached() Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state == StateConnected {
		return g.conn
	}
	return nil
}

// connect runs inside the single flight, so only one goroutine executes it
// at a time.
func (g *ConnectionGuard) connect(parent context.Context) (Connection, error) {
	g.mu.Lock()
	if g.state == StateConnected && g.conn != nil {
		conn := g.conn
		g.mu.Unlock()
		return conn, nil
	}
	g.state = StateConnecting
	epoch := g.epoch
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	started := time.Now()
	g.logger.Info("connecting to store", "timeout", g.timeout)

	conn, err := g.connector.Connect(ctx)
	if err == nil && conn == nil {
		err = ErrStoreUnavailable
	}
	if err != nil {
		g.fail(epoch, err)
		g.logger.Error("store connection failed", "error", err, "elapsed", time.Since(started))
		return nil, wrapSentinel(ErrStoreUnavailable, err, nil)
	}

	for _, hook := range g.onConnect {
		if hookErr := hook(ctx, conn); hookErr != nil {
			g.logger.Error("store connect hook failed", "error", hookErr)
		}
	}

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		g.logger.Info("guard closed while connecting, dropping connection")
		if closeErr := conn.Close(parent); closeErr != nil {
			g.logger.Debug("closing abandoned connection failed", "error", closeErr)
		}
		return nil, wrapSentinel(ErrStoreUnavailable, nil, map[string]any{
			"reason": "connection guard closed",
		})
	}
	g.conn = conn
	g.state = StateConnected
	g.lastErr = nil
	g.mu.Unlock()

	g.logger.Info("store connected", "elapsed", time.Since(started))
	return conn, nil
}

func (g *ConnectionGuard) fail(epoch uint64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return
	}
	g.conn = nil
	g.state = StateFailed
	g.lastErr = err
}
