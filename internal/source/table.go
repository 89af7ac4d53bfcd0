package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/strutil"
	"github.com/hlop3z/tilehouse/internal/tile"
)

// Table is a spatial table served as one MVT layer.
type Table struct {
	SourceID       string            `json:"id" yaml:"id" toml:"id"`
	Schema         string            `json:"schema" yaml:"schema" toml:"schema"`
	TableName      string            `json:"table" yaml:"table" toml:"table"`
	IDColumn       string            `json:"id_column,omitempty" yaml:"id_column,omitempty" toml:"id_column,omitempty"`
	GeometryColumn string            `json:"geometry_column" yaml:"geometry_column" toml:"geometry_column"`
	SRID           uint32            `json:"srid" yaml:"srid" toml:"srid"`
	Extent         *uint32           `json:"extent,omitempty" yaml:"extent,omitempty" toml:"extent,omitempty"`
	Buffer         *uint32           `json:"buffer,omitempty" yaml:"buffer,omitempty" toml:"buffer,omitempty"`
	ClipGeom       *bool             `json:"clip_geom,omitempty" yaml:"clip_geom,omitempty" toml:"clip_geom,omitempty"`
	GeometryType   string            `json:"geometry_type,omitempty" yaml:"geometry_type,omitempty" toml:"geometry_type,omitempty"`
	Properties     map[string]string `json:"properties" yaml:"properties" toml:"properties"`
	Bounds         Bounds            `json:"bounds" yaml:"bounds" toml:"bounds"`
}

func (t *Table) sealed() {}

// ID returns schema.table unless an explicit identifier was configured.
func (t *Table) ID() string {
	if t.SourceID != "" {
		return t.SourceID
	}
	return strutil.QualifiedName(t.Schema, t.TableName)
}

func (t *Table) Kind() Kind { return KindTable }

// ExtentOrDefault returns the tile extent in pixels.
func (t *Table) ExtentOrDefault() uint32 {
	if t.Extent == nil {
		return DefaultExtent
	}
	return *t.Extent
}

// BufferOrDefault returns the clip buffer in pixels.
func (t *Table) BufferOrDefault() uint32 {
	if t.Buffer == nil {
		return DefaultBuffer
	}
	return *t.Buffer
}

// ClipGeomOrDefault reports whether geometries are clipped to extent+buffer.
func (t *Table) ClipGeomOrDefault() bool {
	if t.ClipGeom == nil {
		return DefaultClipGeom
	}
	return *t.ClipGeom
}

// Validate checks the invariants a table must hold before it can be served.
func (t *Table) Validate() error {
	switch {
	case t.TableName == "":
		return alerr.New(alerr.ErrMalformedMetadata, "table name is required").WithSource(t.ID())
	case t.GeometryColumn == "":
		return alerr.New(alerr.ErrMalformedMetadata, "geometry column is required").WithSource(t.ID())
	case t.SRID == 0:
		return alerr.New(alerr.ErrMalformedMetadata, "SRID 0 is not a valid spatial reference").WithSource(t.ID())
	case t.ExtentOrDefault() == 0:
		return alerr.New(alerr.ErrMalformedMetadata, "extent must be positive").WithSource(t.ID())
	}
	return nil
}

// columns returns the id column followed by the property columns in sorted
// order. The geometry column is never a property.
func (t *Table) columns() []string {
	cols := make([]string, 0, len(t.Properties)+1)
	if t.IDColumn != "" {
		cols = append(cols, t.IDColumn)
	}

	props := make([]string, 0, len(t.Properties))
	for name := range t.Properties {
		if name == t.IDColumn || name == t.GeometryColumn {
			continue
		}
		props = append(props, name)
	}
	sort.Strings(props)

	return append(cols, props...)
}

// TileQuery builds the statement that encodes the rows intersecting xyz as
// one MVT layer named after the source.
//
// The envelope corners are bound as $1..$4. When the table's SRID differs
// from 3857 the geometry is transformed to Mercator for encoding and the
// envelope is transformed to the native SRID for the index filter.
func (t *Table) TileQuery(xyz tile.XYZ) (Query, error) {
	if err := t.Validate(); err != nil {
		return Query{}, err
	}

	geom := strutil.QuoteIdent(t.GeometryColumn)
	mercator := fmt.Sprintf("ST_MakeEnvelope($1, $2, $3, $4, %d)", tile.MercatorSRID)

	geomMercator, original := geom, mercator
	if t.SRID != tile.MercatorSRID {
		geomMercator = transform(geom, tile.MercatorSRID)
		original = transform(mercator, t.SRID)
	}

	extent := t.ExtentOrDefault()

	featureID := ""
	if t.IDColumn != "" {
		featureID = ", " + strutil.QuoteLiteral(t.IDColumn)
	}

	var props strings.Builder
	for _, col := range t.columns() {
		props.WriteString(", ")
		props.WriteString(strutil.QuoteIdent(col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "WITH bounds AS (SELECT %s AS mercator, %s AS original) ", mercator, original)
	fmt.Fprintf(&b, "SELECT ST_AsMVT(tile, %s, %d, 'geom'%s) FROM (", strutil.QuoteLiteral(t.ID()), extent, featureID)
	fmt.Fprintf(&b, "SELECT ST_AsMVTGeom(%s, bounds.mercator, %d, %d, %t) AS geom%s ",
		geomMercator, extent, t.BufferOrDefault(), t.ClipGeomOrDefault(), props.String())
	fmt.Fprintf(&b, "FROM %s, bounds WHERE %s && bounds.original", strutil.QuoteQualified(t.Schema, t.TableName), geom)
	b.WriteString(") AS tile WHERE geom IS NOT NULL")

	env := xyz.MercatorBounds()
	return Query{
		Source: t.ID(),
		SQL:    b.String(),
		Args:   []any{env.Min[0], env.Min[1], env.Max[0], env.Max[1]},
	}, nil
}

// Queries implements Source. Tables ignore extra request parameters.
func (t *Table) Queries(xyz tile.XYZ, _ Params) ([]Query, error) {
	q, err := t.TileQuery(xyz)
	if err != nil {
		return nil, err
	}
	return []Query{q}, nil
}

// TileJSON implements Source.
func (t *Table) TileJSON() (*TileJSON, error) {
	tj := newTileJSON(t.ID())
	tj.Bounds = t.Bounds.Slice()
	tj.VectorLayers = []VectorLayer{t.vectorLayer()}
	return tj, nil
}

func (t *Table) vectorLayer() VectorLayer {
	fields := make(map[string]string, len(t.Properties))
	for name, typ := range t.Properties {
		if name == t.GeometryColumn {
			continue
		}
		fields[name] = typ
	}
	return VectorLayer{ID: t.ID(), Fields: fields}
}

func transform(expr string, srid uint32) string {
	return fmt.Sprintf("ST_Transform(%s, %d)", expr, srid)
}
