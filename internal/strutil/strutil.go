// Package strutil provides string utilities for source identifiers and
// PostgreSQL quoting used throughout the tilehouse codebase.
package strutil

import (
	"strings"

	"github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// Source Identifiers
// -----------------------------------------------------------------------------

// QualifiedName returns the dot-separated source identifier (schema.name or name).
// Example: QualifiedName("public", "roads") -> "public.roads"
// Example: QualifiedName("", "roads") -> "roads"
func QualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// ParseRef splits a dot-separated identifier into schema and name.
// The last dot separates the two parts.
// Empty or no-dot input → ("", ref).
func ParseRef(ref string) (schema, name string) {
	if ref == "" {
		return "", ""
	}
	if ref[0] == '.' {
		return "", ref[1:]
	}
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ref
}

// SplitIDs splits a comma-separated list of source identifiers.
// Blank entries are dropped and surrounding spaces trimmed.
// "public.a, public.b" → ["public.a", "public.b"]
func SplitIDs(list string) []string {
	parts := strings.Split(list, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// -----------------------------------------------------------------------------
// SQL Quoting
// -----------------------------------------------------------------------------

// QuoteIdent quotes a PostgreSQL identifier with double quotes, escaping embedded quotes.
func QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// QuoteQualified quotes a schema-qualified relation: "schema"."name".
// An empty schema yields just the quoted name.
func QuoteQualified(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// QuoteLiteral quotes a string as a PostgreSQL literal.
func QuoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}
