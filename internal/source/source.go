// Package source defines tile sources (tables, functions and composites),
// the SQL each of them issues for a tile, and the immutable catalogs that map
// source identifiers to sources.
//
// The variant set is closed: Source carries an unexported method, so only
// *Table, *Function and *Composite implement it and a type switch over them
// is exhaustive.
package source

import (
	"fmt"

	"github.com/hlop3z/tilehouse/internal/tile"
)

// Kind identifies a source variant.
type Kind int

const (
	KindTable Kind = iota
	KindFunction
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Defaults applied when a table source omits the corresponding field.
const (
	DefaultExtent   uint32 = 4096
	DefaultBuffer   uint32 = 64
	DefaultClipGeom        = true
)

// Source is a tile source.
type Source interface {
	// ID returns the source identifier (schema.table, schema.function, or a
	// comma-joined list for composites).
	ID() string

	// Kind returns the variant.
	Kind() Kind

	// TileJSON describes the source. The tiles URL is left empty; it depends
	// on the inbound request and is filled in by the HTTP layer.
	TileJSON() (*TileJSON, error)

	// Queries returns the statements whose binary results, concatenated in
	// order, form the tile at xyz.
	Queries(xyz tile.XYZ, params Params) ([]Query, error)

	sealed()
}

// Query is one SQL statement with its bind parameters.
type Query struct {
	Source string // identifier of the source that produced the query
	SQL    string
	Args   []any
}

// Params are the extra query-string parameters of a tile request.
type Params map[string]string
