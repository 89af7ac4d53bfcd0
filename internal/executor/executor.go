// Package executor runs blocking database work off the request path.
//
// An Executor owns N worker goroutines fed from one shared, unbuffered task
// queue: any idle worker takes the next task. Each worker acquires one pool
// slot on its first task and keeps it until Close, so no two workers ever
// share a connection and at most N queries run at once.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/introspect"
	"github.com/hlop3z/tilehouse/internal/pgpool"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/tile"
)

// Executor is a fixed set of database workers.
type Executor struct {
	pool    *pgpool.Pool
	logger  *slog.Logger
	workers int

	tasks  chan task
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
}

type task struct {
	ctx  context.Context
	run  func(ctx context.Context, conn *pgpool.Conn)
	fail func(err error)
}

// New starts one worker per pool slot. A nil logger uses slog.Default().
func New(pool *pgpool.Pool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		pool:    pool,
		logger:  logger,
		workers: pool.Size(),
		tasks:   make(chan task),
		done:    make(chan struct{}),
	}

	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.work(i)
	}
	return e
}

// Workers returns the number of workers.
func (e *Executor) Workers() int { return e.workers }

func (e *Executor) work(id int) {
	defer e.wg.Done()

	var conn *pgpool.Conn
	defer func() {
		if conn != nil {
			e.pool.Release(conn)
		}
	}()

	for {
		select {
		case <-e.done:
			return
		case t := <-e.tasks:
			if conn == nil {
				c, err := e.pool.Acquire(t.ctx)
				if err != nil {
					e.logger.Error("executor could not acquire a connection", "worker", id, "error", err)
					t.fail(err)
					continue
				}
				conn = c
			} else if err := conn.Ensure(t.ctx); err != nil {
				e.logger.Error("executor could not reconnect", "worker", id, "error", err)
				t.fail(err)
				continue
			}
			t.run(t.ctx, conn)
		}
	}
}

// Close stops the workers and releases their connections. Tasks already
// taken by a worker run to completion first. Close does not close the pool.
func (e *Executor) Close() {
	e.once.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.wg.Wait()
	})
}

type outcome[T any] struct {
	value T
	err   error
}

// do hands fn to the next idle worker and waits for its result.
//
// The work runs detached from ctx: if ctx ends first the caller gets
// ctx.Err() at once, the query still runs to completion and its result is
// discarded. Connection-class failures mark the worker's slot broken so it
// reconnects before its next task.
func do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, conn *pgpool.Conn) (T, error)) (T, error) {
	var zero T
	if e.closed.Load() {
		return zero, alerr.New(alerr.ErrConnection, "executor is closed")
	}

	results := make(chan outcome[T], 1)
	t := task{
		ctx: context.WithoutCancel(ctx),
		run: func(ctx context.Context, conn *pgpool.Conn) {
			v, err := fn(ctx, conn)
			if pgpool.IsConnectionError(err) {
				conn.MarkBroken()
			}
			results <- outcome[T]{value: v, err: err}
		},
		fail: func(err error) {
			results <- outcome[T]{err: err}
		},
	}

	select {
	case e.tasks <- t:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-e.done:
		return zero, alerr.New(alerr.ErrConnection, "executor is closed")
	}

	select {
	case o := <-results:
		return o.value, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ScanTableSources runs a table metadata scan on a worker connection.
func (e *Executor) ScanTableSources(ctx context.Context) (*source.Catalog, error) {
	return do(ctx, e, func(ctx context.Context, conn *pgpool.Conn) (*source.Catalog, error) {
		return introspect.New(conn, e.logger).TableSources(ctx)
	})
}

// ScanFunctionSources runs a function metadata scan on a worker connection.
func (e *Executor) ScanFunctionSources(ctx context.Context) (*source.Catalog, error) {
	return do(ctx, e, func(ctx context.Context, conn *pgpool.Conn) (*source.Catalog, error) {
		return introspect.New(conn, e.logger).FunctionSources(ctx)
	})
}

// FetchTile renders the tile at xyz. Query synthesis errors are returned
// before any database work is scheduled.
func (e *Executor) FetchTile(ctx context.Context, src source.Source, xyz tile.XYZ, params source.Params) ([]byte, error) {
	queries, err := src.Queries(xyz, params)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, queries)
}

// Run executes the queries in order on one connection and concatenates the
// first column of every row they return. No rows, or SQL NULL, contribute
// nothing; the payload is empty but non-nil when nothing matched.
func (e *Executor) Run(ctx context.Context, queries []source.Query) ([]byte, error) {
	return do(ctx, e, func(ctx context.Context, conn *pgpool.Conn) ([]byte, error) {
		payload := []byte{}
		for _, q := range queries {
			b, err := runQuery(ctx, conn, q)
			if err != nil {
				return nil, err
			}
			payload = append(payload, b...)
		}
		return payload, nil
	})
}

func runQuery(ctx context.Context, conn *pgpool.Conn, q source.Query) ([]byte, error) {
	rows, err := conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify(err, q)
	}
	defer rows.Close()

	var out []byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, classify(err, q)
		}
		out = append(out, b...)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, q)
	}
	return out, nil
}

// classify types a database failure as ErrConnection or ErrQuery.
func classify(err error, q source.Query) error {
	if alerr.HasCode(err) {
		return err
	}
	if pgpool.IsConnectionError(err) {
		return alerr.Wrap(alerr.ErrConnection, err, "database connection failed").WithSource(q.Source)
	}
	return alerr.WrapQuery(err, "fetch tile", q.Source).WithSQL(q.SQL)
}
