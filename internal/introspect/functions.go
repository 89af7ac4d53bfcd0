package introspect

import (
	"context"
	"log/slog"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/strutil"
)

// functionSourcesQuery lists bytea functions taking
// (z integer, x integer, y integer, query_params json).
const functionSourcesQuery = `
	SELECT
		routines.specific_schema,
		routines.routine_name
	FROM information_schema.routines
	LEFT JOIN information_schema.parameters
		ON routines.specific_name = parameters.specific_name
	WHERE routines.data_type = 'bytea'
	GROUP BY routines.specific_schema, routines.routine_name, routines.data_type
	HAVING array_agg(array[parameters.parameter_name::text, parameters.data_type::text]) @> array[
		array['z', 'integer'],
		array['x', 'integer'],
		array['y', 'integer'],
		array['query_params', 'json']
	]
	ORDER BY routines.specific_schema, routines.routine_name
`

// FunctionRow is one row of the function scan.
type FunctionRow struct {
	Schema string
	Name   string
}

func (s *Scanner) functionRows(ctx context.Context) ([]FunctionRow, error) {
	rows, err := s.q.QueryContext(ctx, functionSourcesQuery)
	if err != nil {
		return nil, alerr.WrapQuery(err, "list function sources", "")
	}
	defer rows.Close()

	var out []FunctionRow
	for rows.Next() {
		var r FunctionRow
		if err := rows.Scan(&r.Schema, &r.Name); err != nil {
			return nil, alerr.WrapQuery(err, "scan function source row", "")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.WrapQuery(err, "list function sources", "")
	}
	return out, nil
}

// BuildFunctions turns scan rows into function sources.
func BuildFunctions(rows []FunctionRow, logger *slog.Logger) []source.Source {
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]source.Source, 0, len(rows))
	for _, r := range rows {
		f := &source.Function{
			SourceID:     strutil.QualifiedName(r.Schema, r.Name),
			Schema:       r.Schema,
			FunctionName: r.Name,
		}
		logger.Info("found function source", "source", f.ID())
		out = append(out, f)
	}

	if len(out) == 0 {
		logger.Info("no function sources found")
	}
	return out
}
