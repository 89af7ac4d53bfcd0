package executor

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/pgpool"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/testutil"
	"github.com/hlop3z/tilehouse/internal/tile"
)

func newExecutor(t *testing.T, size int) *Executor {
	t.Helper()
	pool := pgpool.New(testutil.SetupSQLite(t), pgpool.WithSize(size))
	e := New(pool, nil)
	t.Cleanup(func() {
		e.Close()
		pool.Close()
	})
	return e
}

// -----------------------------------------------------------------------------
// Run Tests
// -----------------------------------------------------------------------------

func TestRunConcatenatesPayloads(t *testing.T) {
	e := newExecutor(t, 2)

	got, err := e.Run(context.Background(), []source.Query{
		{Source: "a", SQL: "SELECT x'0102'"},
		{Source: "b", SQL: "SELECT NULL"},
		{Source: "c", SQL: "SELECT x'03'"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("payload = %x, want 010203", got)
	}
}

func TestRunEmptyPayload(t *testing.T) {
	e := newExecutor(t, 1)

	tests := []struct {
		name string
		sql  string
	}{
		{name: "no_rows", sql: "SELECT x'01' WHERE 1 = 0"},
		{name: "null", sql: "SELECT NULL"},
		{name: "empty_blob", sql: "SELECT x''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Run(context.Background(), []source.Query{{Source: "s", SQL: tt.sql}})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("payload = %#v, want empty non-nil", got)
			}
		})
	}
}

func TestRunQueryError(t *testing.T) {
	e := newExecutor(t, 1)

	_, err := e.Run(context.Background(), []source.Query{{Source: "public.roads", SQL: "SELECT * FROM missing_table"}})
	testutil.AssertError(t, err, alerr.ErrQuery)

	var ae *alerr.Error
	if !errors.As(err, &ae) || ae.GetContext()["source"] != "public.roads" {
		t.Errorf("error does not carry the source id: %v", err)
	}

	// The worker's connection stays usable after a query error.
	if _, err := e.Run(context.Background(), []source.Query{{Source: "s", SQL: "SELECT x'01'"}}); err != nil {
		t.Errorf("Run after query error: %v", err)
	}
}

func TestFetchTileRejectsBeforeDatabase(t *testing.T) {
	e := newExecutor(t, 1)

	bad := &source.Table{Schema: "public", TableName: "roads", GeometryColumn: "geom", SRID: 0}
	_, err := e.FetchTile(context.Background(), bad, tile.New(0, 0, 0), nil)
	testutil.AssertError(t, err, alerr.ErrMalformedMetadata)
}

// -----------------------------------------------------------------------------
// Concurrency Tests
// -----------------------------------------------------------------------------

func TestConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 2
	e := newExecutor(t, workers)

	var active, peak atomic.Int32
	var mu sync.Mutex
	slots := map[int]bool{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := do(context.Background(), e, func(ctx context.Context, conn *pgpool.Conn) (struct{}, error) {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				mu.Lock()
				slots[conn.ID()] = true
				mu.Unlock()

				time.Sleep(15 * time.Millisecond)
				active.Add(-1)
				return struct{}{}, nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency = %d, want <= %d", p, workers)
	}
	if len(slots) > workers {
		t.Errorf("used %d connection slots, want <= %d", len(slots), workers)
	}
}

func TestCallerCancellation(t *testing.T) {
	e := newExecutor(t, 1)

	release := make(chan struct{})
	finished := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := do(ctx, e, func(ctx context.Context, conn *pgpool.Conn) (int, error) {
			<-release
			if ctx.Err() != nil {
				t.Error("task context was cancelled with the caller")
			}
			close(finished)
			return 1, nil
		})
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("caller not released on cancellation")
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("detached task did not run to completion")
	}

	// The worker is free again.
	if _, err := e.Run(context.Background(), []source.Query{{Source: "s", SQL: "SELECT x'01'"}}); err != nil {
		t.Errorf("Run after cancellation: %v", err)
	}
}

func TestConnectionErrorMarksBroken(t *testing.T) {
	e := newExecutor(t, 1)

	var held *pgpool.Conn
	_, err := do(context.Background(), e, func(ctx context.Context, conn *pgpool.Conn) (int, error) {
		held = conn
		return 0, alerr.Wrap(alerr.ErrConnection, driver.ErrBadConn, "lost")
	})
	testutil.AssertError(t, err, alerr.ErrConnection)
	if !held.Broken() {
		t.Fatal("connection not marked broken")
	}

	if _, err := e.Run(context.Background(), []source.Query{{Source: "s", SQL: "SELECT x'01'"}}); err != nil {
		t.Errorf("Run after reconnect: %v", err)
	}
	if held.Broken() {
		t.Error("slot still broken after next task")
	}
}

func TestClosed(t *testing.T) {
	e := newExecutor(t, 1)
	e.Close()

	_, err := e.Run(context.Background(), []source.Query{{Source: "s", SQL: "SELECT 1"}})
	testutil.AssertError(t, err, alerr.ErrConnection)
}
