// Package introspect discovers tile sources by querying PostGIS metadata:
// spatial tables through geometry_columns and tile functions through
// information_schema. A scan produces a complete source.Catalog; it never
// modifies one.
package introspect

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/strutil"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Scanner runs metadata scans on one connection.
type Scanner struct {
	q      Queryer
	logger *slog.Logger
}

// New creates a Scanner. A nil logger uses slog.Default().
func New(q Queryer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{q: q, logger: logger}
}

// TableSources scans every spatial table and returns them as a table catalog.
// Tables with SRID 0 are skipped with a warning. A bounds query that fails,
// or bounds that cannot be parsed, fail the whole scan.
func (s *Scanner) TableSources(ctx context.Context) (*source.Catalog, error) {
	rows, err := s.tableRows(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := BuildTables(ctx, rows, s.extent, s.logger)
	if err != nil {
		return nil, err
	}
	return source.NewCatalog(source.KindTable, tables...)
}

// FunctionSources scans every tile function and returns them as a function
// catalog.
func (s *Scanner) FunctionSources(ctx context.Context) (*source.Catalog, error) {
	rows, err := s.functionRows(ctx)
	if err != nil {
		return nil, err
	}
	return source.NewCatalog(source.KindFunction, BuildFunctions(rows, s.logger)...)
}

// extent runs the bounds query for one geometry column. ok is false when the
// table has no rows.
func (s *Scanner) extent(ctx context.Context, schema, table, geometryColumn string) (string, bool, error) {
	query := boundsQuery(schema, table, geometryColumn)

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return "", false, alerr.WrapQuery(err, "query table bounds", strutil.QualifiedName(schema, table)).WithSQL(query)
	}
	defer rows.Close()

	var bounds sql.NullString
	if rows.Next() {
		if err := rows.Scan(&bounds); err != nil {
			return "", false, alerr.WrapQuery(err, "scan table bounds", strutil.QualifiedName(schema, table))
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, alerr.WrapQuery(err, "read table bounds", strutil.QualifiedName(schema, table))
	}

	return bounds.String, bounds.Valid, nil
}
