// Package registry holds the source catalogs one request lane reads.
//
// A Registry has a slot for a table catalog and a slot for a function
// catalog. Each slot is an atomic pointer to an immutable snapshot: Apply
// swaps it, and a reader keeps whatever snapshot it loaded for the rest of
// its request. A nil slot means no catalog was ever published, which is
// different from an empty catalog.
package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
)

// State is the registry lifecycle state.
type State int

const (
	// Uninitialized registries have no catalog and are not watching.
	Uninitialized State = iota
	// Static registries were seeded once and never change.
	Static
	// Watching registries receive catalog broadcasts from a coordinator.
	Watching
)

func (s State) String() string {
	switch s {
	case Static:
		return "static"
	case Watching:
		return "watching"
	default:
		return "uninitialized"
	}
}

// Message replaces one catalog of a registry.
type Message struct {
	Seq     uint64          // issue order assigned by the publisher
	Catalog *source.Catalog // replacement; its Kind selects the slot
}

// Registry is the per-lane catalog holder.
type Registry struct {
	id     string
	logger *slog.Logger

	tables    atomic.Pointer[source.Catalog]
	functions atomic.Pointer[source.Catalog]
	lastSeq   atomic.Uint64
	watching  atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithTables seeds the table catalog.
func WithTables(c *source.Catalog) Option {
	return func(r *Registry) { r.tables.Store(c) }
}

// WithFunctions seeds the function catalog.
func WithFunctions(c *source.Catalog) Option {
	return func(r *Registry) { r.functions.Store(c) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a registry with a fresh random id.
func New(opts ...Option) *Registry {
	r := &Registry{
		id:     uuid.NewString(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the registry id.
func (r *Registry) ID() string { return r.id }

// State reports the lifecycle state.
func (r *Registry) State() State {
	switch {
	case r.watching.Load():
		return Watching
	case r.tables.Load() != nil || r.functions.Load() != nil:
		return Static
	default:
		return Uninitialized
	}
}

// StartWatching moves the registry to Watching. It fails if the registry is
// already watching or closed.
func (r *Registry) StartWatching() error {
	if r.Closed() {
		return alerr.New(alerr.EInternalError, "registry is closed").With("registry", r.id)
	}
	if !r.watching.CompareAndSwap(false, true) {
		return alerr.New(alerr.EInternalError, "registry is already watching").With("registry", r.id)
	}
	return nil
}

// Apply installs the catalog carried by msg. Messages must be applied in
// sequence order; a message older than one already applied is ignored.
func (r *Registry) Apply(msg Message) {
	if msg.Catalog == nil {
		return
	}
	if last := r.lastSeq.Load(); msg.Seq != 0 && msg.Seq <= last {
		r.logger.Warn("ignoring stale catalog", "registry", r.id, "seq", msg.Seq, "applied", last)
		return
	}

	switch msg.Catalog.Kind() {
	case source.KindTable:
		r.tables.Store(msg.Catalog)
	case source.KindFunction:
		r.functions.Store(msg.Catalog)
	default:
		r.logger.Error("ignoring catalog of unsupported kind", "registry", r.id, "kind", msg.Catalog.Kind())
		return
	}
	if msg.Seq != 0 {
		r.lastSeq.Store(msg.Seq)
	}

	r.logger.Debug("catalog replaced",
		"registry", r.id,
		"seq", msg.Seq,
		"kind", msg.Catalog.Kind().String(),
		"sources", msg.Catalog.Len(),
	)
}

// LastSeq returns the sequence number of the last applied message.
func (r *Registry) LastSeq() uint64 { return r.lastSeq.Load() }

// Close marks the registry as gone. Coordinators stop delivering to it.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Done is closed by Close.
func (r *Registry) Done() <-chan struct{} { return r.done }

// Closed reports whether Close was called.
func (r *Registry) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// TableSources returns the current table catalog, or ErrCatalogUnavailable
// if none has been published.
func (r *Registry) TableSources() (*source.Catalog, error) {
	if c := r.tables.Load(); c != nil {
		return c, nil
	}
	return nil, alerr.CatalogUnavailable("table")
}

// FunctionSources returns the current function catalog, or
// ErrCatalogUnavailable if none has been published.
func (r *Registry) FunctionSources() (*source.Catalog, error) {
	if c := r.functions.Load(); c != nil {
		return c, nil
	}
	return nil, alerr.CatalogUnavailable("function")
}

// TableSource resolves a table id, or a comma-separated list of table ids
// into a composite, against the current snapshot.
func (r *Registry) TableSource(id string) (source.Source, error) {
	c, err := r.TableSources()
	if err != nil {
		return nil, err
	}
	return c.Resolve(id)
}

// FunctionSource looks up a function id in the current snapshot.
func (r *Registry) FunctionSource(id string) (source.Source, error) {
	c, err := r.FunctionSources()
	if err != nil {
		return nil, err
	}
	return c.Lookup(id)
}
