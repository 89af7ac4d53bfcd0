package strutil

import (
	"reflect"
	"testing"
)

// -----------------------------------------------------------------------------
// Identifier Tests
// -----------------------------------------------------------------------------

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		schema, name, want string
	}{
		{"public", "roads", "public.roads"},
		{"", "roads", "roads"},
		{"tiger", "edges", "tiger.edges"},
	}

	for _, tt := range tests {
		if got := QualifiedName(tt.schema, tt.name); got != tt.want {
			t.Errorf("QualifiedName(%q, %q) = %q, want %q", tt.schema, tt.name, got, tt.want)
		}
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref        string
		wantSchema string
		wantName   string
	}{
		{"public.roads", "public", "roads"},
		{"roads", "", "roads"},
		{".roads", "", "roads"},
		{"", "", ""},
		{"a.b.c", "a.b", "c"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			schema, name := ParseRef(tt.ref)
			if schema != tt.wantSchema || name != tt.wantName {
				t.Errorf("ParseRef(%q) = (%q, %q), want (%q, %q)",
					tt.ref, schema, name, tt.wantSchema, tt.wantName)
			}
		})
	}
}

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"public.a", []string{"public.a"}},
		{"public.a,public.b", []string{"public.a", "public.b"}},
		{" public.a , public.b ,", []string{"public.a", "public.b"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		if got := SplitIDs(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitIDs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// -----------------------------------------------------------------------------
// Quoting Tests
// -----------------------------------------------------------------------------

func TestQuoting(t *testing.T) {
	if got := QuoteIdent(`weird"name`); got != `"weird""name"` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if got := QuoteQualified("public", "roads"); got != `"public"."roads"` {
		t.Errorf("QuoteQualified = %s", got)
	}
	if got := QuoteQualified("", "roads"); got != `"roads"` {
		t.Errorf("QuoteQualified without schema = %s", got)
	}
	if got := QuoteLiteral("public.roads"); got != `'public.roads'` {
		t.Errorf("QuoteLiteral = %s", got)
	}
	if got := QuoteLiteral("o'brien"); got != `'o''brien'` {
		t.Errorf("QuoteLiteral escaping = %s", got)
	}
}
