package source

import (
	"encoding/json"
	"fmt"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/strutil"
	"github.com/hlop3z/tilehouse/internal/tile"
)

// Function is a SQL function with the signature
//
//	schema.function(z integer, x integer, y integer, query_params json) RETURNS bytea
//
// whose result is a complete MVT payload.
type Function struct {
	SourceID     string `json:"id" yaml:"id" toml:"id"`
	Schema       string `json:"schema" yaml:"schema" toml:"schema"`
	FunctionName string `json:"function" yaml:"function" toml:"function"`
}

func (f *Function) sealed() {}

// ID returns schema.function unless an explicit identifier was configured.
func (f *Function) ID() string {
	if f.SourceID != "" {
		return f.SourceID
	}
	return strutil.QualifiedName(f.Schema, f.FunctionName)
}

func (f *Function) Kind() Kind { return KindFunction }

// Queries implements Source. The request parameters are passed to the
// function as a JSON object; no parameters is "{}".
func (f *Function) Queries(xyz tile.XYZ, params Params) ([]Query, error) {
	if f.FunctionName == "" {
		return nil, alerr.New(alerr.ErrMalformedMetadata, "function name is required").WithSource(f.ID())
	}
	if params == nil {
		params = Params{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to encode query params").WithSource(f.ID())
	}

	sql := fmt.Sprintf("SELECT %s($1::integer, $2::integer, $3::integer, $4::json)",
		strutil.QuoteQualified(f.Schema, f.FunctionName))

	return []Query{{
		Source: f.ID(),
		SQL:    sql,
		Args:   []any{int64(xyz.Z), int64(xyz.X), int64(xyz.Y), string(raw)},
	}}, nil
}

// TileJSON implements Source. Functions have no known layers or bounds.
func (f *Function) TileJSON() (*TileJSON, error) {
	return newTileJSON(f.ID()), nil
}
