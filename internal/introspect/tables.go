package introspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/strutil"
)

// tableSourcesQuery lists every geometry column with the remaining columns of
// its table as a {"column": "type"} object.
const tableSourcesQuery = `
	WITH columns AS (
		SELECT
			ns.nspname AS table_schema,
			class.relname AS table_name,
			attr.attname AS column_name,
			trim(leading '_' from tp.typname) AS type_name
		FROM pg_attribute attr
		JOIN pg_catalog.pg_class AS class ON class.oid = attr.attrelid
		JOIN pg_catalog.pg_namespace AS ns ON ns.oid = class.relnamespace
		JOIN pg_catalog.pg_type AS tp ON tp.oid = attr.atttypid
		WHERE NOT attr.attisdropped AND attr.attnum > 0
	)
	SELECT
		f_table_schema,
		f_table_name,
		f_geometry_column,
		srid,
		type,
		COALESCE(
			jsonb_object_agg(columns.column_name, columns.type_name)
				FILTER (WHERE columns.column_name IS NOT NULL AND columns.type_name != 'geometry'),
			'{}'::jsonb
		)::text AS properties
	FROM geometry_columns
	LEFT JOIN columns ON
		geometry_columns.f_table_schema = columns.table_schema AND
		geometry_columns.f_table_name = columns.table_name
	GROUP BY f_table_schema, f_table_name, f_geometry_column, srid, type
	ORDER BY f_table_schema, f_table_name, f_geometry_column
`

// boundsQuery returns the extent of one geometry column as box2d text.
func boundsQuery(schema, table, geometryColumn string) string {
	return fmt.Sprintf("SELECT ST_Extent(%s)::TEXT AS bounds FROM %s",
		strutil.QuoteIdent(geometryColumn), strutil.QuoteQualified(schema, table))
}

// TableRow is one row of the table scan.
type TableRow struct {
	Schema         string
	Table          string
	GeometryColumn string
	SRID           sql.NullInt64
	GeometryType   sql.NullString
	Properties     []byte // JSON object column -> type
}

// BoundsFunc returns the box2d text extent of a geometry column. ok is false
// when the extent is NULL.
type BoundsFunc func(ctx context.Context, schema, table, geometryColumn string) (text string, ok bool, err error)

func (s *Scanner) tableRows(ctx context.Context) ([]TableRow, error) {
	rows, err := s.q.QueryContext(ctx, tableSourcesQuery)
	if err != nil {
		return nil, alerr.WrapQuery(err, "list table sources", "")
	}
	defer rows.Close()

	var out []TableRow
	for rows.Next() {
		var r TableRow
		if err := rows.Scan(&r.Schema, &r.Table, &r.GeometryColumn, &r.SRID, &r.GeometryType, &r.Properties); err != nil {
			return nil, alerr.WrapQuery(err, "scan table source row", "")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.WrapQuery(err, "list table sources", "")
	}
	return out, nil
}

// BuildTables turns scan rows into table sources.
//
// Rows with SRID 0 are skipped with a warning before their bounds are
// queried. A table with several geometry columns yields one source per
// column; the first keeps the schema.table id and the others get
// ".<geometry_column>" appended. A NULL extent becomes source.WorldBounds.
func BuildTables(ctx context.Context, rows []TableRow, bounds BoundsFunc, logger *slog.Logger) ([]source.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]bool, len(rows))
	out := make([]source.Source, 0, len(rows))

	for _, r := range rows {
		id := strutil.QualifiedName(r.Schema, r.Table)

		if !r.SRID.Valid {
			return nil, alerr.New(alerr.ErrMalformedMetadata, "geometry column has no SRID").
				WithSource(id).
				With("geometry_column", r.GeometryColumn)
		}
		if r.SRID.Int64 == 0 {
			logger.Warn("table has SRID 0, skipping", "source", id, "geometry_column", r.GeometryColumn)
			continue
		}

		if seen[id] {
			id = id + "." + r.GeometryColumn
		}
		seen[id] = true

		props, err := parseProperties(id, r.Properties)
		if err != nil {
			return nil, err
		}

		text, ok, err := bounds(ctx, r.Schema, r.Table, r.GeometryColumn)
		if err != nil {
			return nil, err
		}
		b := source.WorldBounds
		if ok {
			if b, err = source.ParseBox(text); err != nil {
				return nil, err
			}
		}

		t := &source.Table{
			SourceID:       id,
			Schema:         r.Schema,
			TableName:      r.Table,
			GeometryColumn: r.GeometryColumn,
			SRID:           uint32(r.SRID.Int64),
			GeometryType:   r.GeometryType.String,
			Properties:     props,
			Bounds:         b,
		}
		logger.Info("found table source", "source", id, "srid", t.SRID)
		out = append(out, t)
	}

	if len(out) == 0 {
		logger.Info("no table sources found")
	}
	return out, nil
}

func parseProperties(id string, raw []byte) (map[string]string, error) {
	props := map[string]string{}
	if len(raw) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, alerr.Wrap(alerr.ErrMalformedMetadata, err, "table properties are not a JSON object of strings").WithSource(id)
	}
	return props, nil
}
