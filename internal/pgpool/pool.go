// Package pgpool is a fixed-size pool of pinned PostgreSQL connections.
//
// Each slot owns at most one physical connection (a *sql.Conn taken from the
// underlying *sql.DB). A slot is handed to exactly one holder at a time, so a
// connection is never shared between two executors. Broken slots reconnect
// the next time they are acquired or ensured.
package pgpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// DefaultSize is the pool size when WithSize is not given.
const DefaultSize = 3

// Pool hands out connection slots.
type Pool struct {
	db             *sql.DB
	ownsDB         bool
	slots          []*Conn
	free           chan *Conn
	acquireTimeout time.Duration
	logger         *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

type options struct {
	size           int
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Pool.
type Option func(*options)

// WithSize sets the number of slots. Values below 1 are ignored.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a free slot.
// Zero waits until the caller's context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) { o.acquireTimeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open connects to PostgreSQL through lib/pq and returns a pool over the new
// handle. The database is pinged once; an unreachable database is
// ErrConnection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Pool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrConnection, err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, alerr.Wrap(alerr.ErrConnection, err, "failed to connect to database")
	}

	p := New(db, opts...)
	p.ownsDB = true
	return p, nil
}

// New builds a pool over an existing handle. The handle's own pool is sized
// to match so pinned connections never wait on database/sql.
func New(db *sql.DB, opts ...Option) *Pool {
	o := options{size: DefaultSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	db.SetMaxOpenConns(o.size)
	db.SetMaxIdleConns(0)

	p := &Pool{
		db:             db,
		slots:          make([]*Conn, o.size),
		free:           make(chan *Conn, o.size),
		acquireTimeout: o.acquireTimeout,
		logger:         o.logger,
		done:           make(chan struct{}),
	}
	for i := range p.slots {
		c := &Conn{pool: p, id: i}
		p.slots[i] = c
		p.free <- c
	}
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int { return len(p.slots) }

// DB returns the underlying handle.
func (p *Pool) DB() *sql.DB { return p.db }

// Acquire waits for a free slot and makes sure it is connected.
//
// The wait ends with the caller's context error if ctx ends, with
// ErrPoolExhausted if the acquire timeout elapses first, and with
// ErrConnection if the pool is closed or the slot cannot reconnect.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, alerr.New(alerr.ErrConnection, "connection pool is closed")
	}

	var timeout <-chan time.Time
	if p.acquireTimeout > 0 {
		timer := time.NewTimer(p.acquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var c *Conn
	select {
	case c = <-p.free:
	case <-p.done:
		return nil, alerr.New(alerr.ErrConnection, "connection pool is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, alerr.Newf(alerr.ErrPoolExhausted,
			"no connection became available within %s", p.acquireTimeout).
			With("pool_size", p.Size())
	}
	c.inUse.Store(true)

	if err := c.Ensure(ctx); err != nil {
		p.Release(c)
		return nil, err
	}
	return c, nil
}

// Release returns a slot to the pool. Releasing a slot twice is a no-op.
// After Close, released slots are disconnected instead.
func (p *Pool) Release(c *Conn) {
	if c == nil || !c.inUse.CompareAndSwap(true, false) {
		return
	}
	if p.closed.Load() {
		c.disconnect()
		return
	}
	p.free <- c
}

// Stats is a point-in-time view of slot usage.
type Stats struct {
	Size  int `json:"size"`
	Idle  int `json:"idle"`
	InUse int `json:"in_use"`
}

// Stats reports slot usage.
func (p *Pool) Stats() Stats {
	idle := len(p.free)
	return Stats{Size: p.Size(), Idle: idle, InUse: p.Size() - idle}
}

// Close disconnects idle slots and wakes blocked acquirers. Slots still held
// are disconnected when released. The underlying handle is closed when the
// pool opened it.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)

	drain:
		for {
			select {
			case c := <-p.free:
				c.disconnect()
			default:
				break drain
			}
		}

		if p.ownsDB {
			err = p.db.Close()
		}
	})
	return err
}

// IsConnectionError reports whether err means the connection itself is
// unusable: driver.ErrBadConn, sql.ErrConnDone, network and EOF errors, and
// PostgreSQL class 08 (connection exception) errors.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
