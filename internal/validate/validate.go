// Package validate checks identifiers of statically configured sources
// before they reach the query synthesizer.
//
// PostgreSQL accepts nearly any quoted identifier, so the rules are only
// those the server itself depends on: names fit in NAMEDATALEN, source ids
// stay addressable as a single URL path segment, and commas stay reserved
// for composite requests.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const MaxIdentifierLength = 63

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

// Identifier validates a schema, relation, column or function name.
func Identifier(kind, s string) error {
	switch {
	case s == "":
		return alerr.Newf(alerr.ErrConfig, "%s name cannot be empty", kind)
	case !utf8.ValidString(s):
		return alerr.Newf(alerr.ErrConfig, "%s name is not valid UTF-8", kind).With("name", s)
	case strings.ContainsRune(s, 0):
		return alerr.Newf(alerr.ErrConfig, "%s name contains a NUL byte", kind).With("name", s)
	case len(s) > MaxIdentifierLength:
		return alerr.Newf(alerr.ErrConfig, "%s name exceeds maximum length of %d bytes", kind, MaxIdentifierLength).
			With("name", s).
			With("length", len(s))
	}
	return nil
}

// SourceID validates a source identifier as used in request paths.
func SourceID(id string) error {
	switch {
	case id == "":
		return alerr.New(alerr.ErrConfig, "source id cannot be empty")
	case strings.Contains(id, ","):
		return alerr.New(alerr.ErrConfig, "source id cannot contain ','").
			With("source", id).
			With("reason", "commas address composite sources")
	case strings.Contains(id, "/"):
		return alerr.New(alerr.ErrConfig, "source id cannot contain '/'").With("source", id)
	case strings.HasSuffix(id, ".json"):
		return alerr.New(alerr.ErrConfig, "source id cannot end in .json").
			With("source", id).
			With("reason", "the suffix selects the TileJSON route")
	case strings.TrimSpace(id) != id:
		return alerr.New(alerr.ErrConfig, "source id cannot start or end with whitespace").With("source", id)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Sources
// -----------------------------------------------------------------------------

// Table validates every name a table source puts into SQL.
func Table(t *source.Table) error {
	var errs Errors
	errs.Add(SourceID(t.ID()))
	if t.Schema != "" {
		errs.Add(Identifier("schema", t.Schema))
	}
	errs.Add(Identifier("table", t.TableName))
	errs.Add(Identifier("geometry column", t.GeometryColumn))
	if t.IDColumn != "" {
		errs.Add(Identifier("id column", t.IDColumn))
	}
	for name := range t.Properties {
		errs.Add(Identifier("property", name))
	}
	return errs.Err()
}

// Function validates a function source.
func Function(f *source.Function) error {
	var errs Errors
	errs.Add(SourceID(f.ID()))
	if f.Schema != "" {
		errs.Add(Identifier("schema", f.Schema))
	}
	errs.Add(Identifier("function", f.FunctionName))
	return errs.Err()
}

// -----------------------------------------------------------------------------
// Batch Validation
// -----------------------------------------------------------------------------

// Errors collects multiple validation errors.
type Errors []error

// Error returns all errors as a formatted string.
func (ve Errors) Error() string {
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(ve))
	for i, err := range ve {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Add appends err if it is not nil.
func (ve *Errors) Add(err error) {
	if err != nil {
		*ve = append(*ve, err)
	}
}

// Err returns nil for an empty collection, the only error for a collection
// of one, and the collection itself otherwise.
func (ve Errors) Err() error {
	switch len(ve) {
	case 0:
		return nil
	case 1:
		return ve[0]
	}
	return ve
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (ve Errors) Unwrap() []error {
	return ve
}
