package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/source"
)

// -----------------------------------------------------------------------------
// Identifier Tests
// -----------------------------------------------------------------------------

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "roads", false},
		{"mixed_case", "Roads", false},
		{"spaces_allowed_when_quoted", "road segments", false},
		{"max_length", strings.Repeat("a", 63), false},
		{"empty", "", true},
		{"too_long", strings.Repeat("a", 64), true},
		{"nul_byte", "ro\x00ads", true},
		{"invalid_utf8", "ro\xffads", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Identifier("table", tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Identifier(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !alerr.Is(err, alerr.ErrConfig) {
				t.Errorf("err code = %s, want ErrConfig", alerr.GetErrorCode(err))
			}
		})
	}
}

func TestSourceID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"qualified", "public.roads", false},
		{"suffixed", "public.roads.geom", false},
		{"empty", "", true},
		{"comma", "public.roads,public.rivers", true},
		{"slash", "public/roads", true},
		{"json_suffix", "roads.json", true},
		{"padded", " public.roads", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SourceID(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("SourceID(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Source Tests
// -----------------------------------------------------------------------------

func TestTable(t *testing.T) {
	valid := &source.Table{
		Schema:         "public",
		TableName:      "roads",
		IDColumn:       "gid",
		GeometryColumn: "geom",
		SRID:           4326,
		Properties:     map[string]string{"name": "text"},
	}
	if err := Table(valid); err != nil {
		t.Errorf("valid table: %v", err)
	}

	bad := &source.Table{
		SourceID:       "a,b",
		Schema:         "public",
		TableName:      strings.Repeat("t", 70),
		GeometryColumn: "geom",
	}
	err := Table(bad)
	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %v (%T), want Errors", err, err)
	}
	if len(errs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(errs), err)
	}
	if !alerr.Is(err, alerr.ErrConfig) {
		t.Error("collected errors should match ErrConfig through Unwrap")
	}
}

func TestFunction(t *testing.T) {
	if err := Function(&source.Function{Schema: "public", FunctionName: "grid"}); err != nil {
		t.Errorf("valid function: %v", err)
	}
	if err := Function(&source.Function{Schema: "public"}); err == nil {
		t.Error("function without a name should fail")
	}
}

func TestErrorsErr(t *testing.T) {
	var none Errors
	if none.Err() != nil {
		t.Error("empty collection should be nil")
	}

	one := Errors{errors.New("boom")}
	if got := one.Err(); got == nil || got.Error() != "boom" {
		t.Errorf("single error = %v", got)
	}

	two := Errors{errors.New("a"), errors.New("b")}
	if got := two.Error(); !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("Error() = %q", got)
	}
}
