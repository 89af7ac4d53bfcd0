package source

import (
	"encoding/json"
	"sort"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/strutil"
)

// Catalog is an immutable map from source identifier to source. All members
// share one kind. A catalog is never modified after NewCatalog returns; a
// newer scan produces a new catalog that replaces it wholesale.
type Catalog struct {
	kind    Kind
	sources map[string]Source
	ids     []string
	digest  string
}

// NewCatalog builds a catalog of the given kind. Identifiers must be unique
// and every source must be of that kind.
func NewCatalog(kind Kind, sources ...Source) (*Catalog, error) {
	if kind == KindComposite {
		return nil, alerr.New(alerr.EInternalError, "catalogs cannot hold composite sources")
	}

	c := &Catalog{
		kind:    kind,
		sources: make(map[string]Source, len(sources)),
		ids:     make([]string, 0, len(sources)),
	}
	for _, s := range sources {
		if s.Kind() != kind {
			return nil, alerr.Newf(alerr.EInternalError, "%s source in %s catalog", s.Kind(), kind).
				WithSource(s.ID())
		}
		id := s.ID()
		if _, dup := c.sources[id]; dup {
			return nil, alerr.Newf(alerr.ErrMalformedMetadata, "duplicate %s source id", kind).WithSource(id)
		}
		c.sources[id] = s
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)

	digest, err := computeDigest(c)
	if err != nil {
		return nil, err
	}
	c.digest = digest
	return c, nil
}

// EmptyCatalog returns a catalog of the given kind with no sources. It is
// distinct from "no catalog" (a nil *Catalog).
func EmptyCatalog(kind Kind) *Catalog {
	return &Catalog{
		kind:    kind,
		sources: map[string]Source{},
		ids:     []string{},
		digest:  emptyDigest(),
	}
}

// Kind returns the kind shared by every member.
func (c *Catalog) Kind() Kind { return c.kind }

// Get returns the source with the given identifier.
func (c *Catalog) Get(id string) (Source, bool) {
	s, ok := c.sources[id]
	return s, ok
}

// Lookup is Get with a typed ErrSourceNotFound error.
func (c *Catalog) Lookup(id string) (Source, error) {
	s, ok := c.sources[id]
	if !ok {
		return nil, alerr.SourceNotFound(c.kind.String(), id)
	}
	return s, nil
}

// Resolve looks up a comma-separated list of identifiers. A single
// identifier resolves to its source; several resolve to a Composite in the
// order given.
func (c *Catalog) Resolve(ids string) (Source, error) {
	parts := strutil.SplitIDs(ids)
	if len(parts) == 0 {
		return nil, alerr.SourceNotFound(c.kind.String(), ids)
	}
	if len(parts) == 1 {
		return c.Lookup(parts[0])
	}

	members := make([]Source, 0, len(parts))
	for _, id := range parts {
		s, err := c.Lookup(id)
		if err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	return NewComposite(members...)
}

// IDs returns the identifiers in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Len returns the number of sources.
func (c *Catalog) Len() int { return len(c.ids) }

// All returns the sources sorted by identifier.
func (c *Catalog) All() []Source {
	out := make([]Source, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.sources[id]
	}
	return out
}

// Tables returns the members as tables. It is empty for function catalogs.
func (c *Catalog) Tables() []*Table {
	var out []*Table
	for _, s := range c.All() {
		if t, ok := s.(*Table); ok {
			out = append(out, t)
		}
	}
	return out
}

// Functions returns the members as functions. It is empty for table catalogs.
func (c *Catalog) Functions() []*Function {
	var out []*Function
	for _, s := range c.All() {
		if f, ok := s.(*Function); ok {
			out = append(out, f)
		}
	}
	return out
}

// Digest is a content hash of the catalog. Two catalogs with the same
// sources have the same digest.
func (c *Catalog) Digest() string { return c.digest }

// MarshalJSON encodes the catalog as an object keyed by source identifier.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.sources)
}
