package pgpool

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// Conn is one pool slot. It is used by a single goroutine at a time.
type Conn struct {
	pool  *Pool
	id    int
	inUse atomic.Bool

	mu     sync.Mutex
	conn   *sql.Conn
	broken bool
}

// ID returns the slot index.
func (c *Conn) ID() int { return c.id }

// MarkBroken flags the connection for replacement before its next use.
func (c *Conn) MarkBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// Broken reports whether the slot is waiting to reconnect.
func (c *Conn) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// Ensure connects the slot if it has no connection or was marked broken.
// A broken connection is pinged first and only replaced if the ping fails.
func (c *Conn) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.broken {
		return nil
	}

	if c.conn != nil {
		if err := c.conn.PingContext(ctx); err == nil {
			c.broken = false
			return nil
		}
		c.pool.logger.Warn("database connection lost, reconnecting", "slot", c.id)
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.pool.db.Conn(ctx)
	if err != nil {
		c.broken = true
		return alerr.Wrap(alerr.ErrConnection, err, "failed to connect to database").With("slot", c.id)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		c.broken = true
		return alerr.Wrap(alerr.ErrConnection, err, "failed to connect to database").With("slot", c.id)
	}

	c.conn = conn
	c.broken = false
	return nil
}

// QueryContext runs a query on the pinned connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the pinned connection.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.QueryRowContext(ctx, query, args...), nil
}

func (c *Conn) current() (*sql.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, alerr.New(alerr.ErrConnection, "connection slot is not connected").With("slot", c.id)
	}
	return c.conn, nil
}

func (c *Conn) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
