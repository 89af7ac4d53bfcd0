package alerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Constructor Tests
// -----------------------------------------------------------------------------

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    Code
		message string
	}{
		{
			name:    "pool error",
			code:    ErrPoolExhausted,
			message: "no connection available",
		},
		{
			name:    "query error",
			code:    ErrQuery,
			message: "tile query failed",
		},
		{
			name:    "metadata error",
			code:    ErrMalformedMetadata,
			message: "bounds are malformed",
		},
		{
			name:    "request error",
			code:    ErrInvalidTile,
			message: "zoom is not a number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message)
			if err == nil {
				t.Fatal("expected non-nil error")
			}
			if err.GetCode() != tt.code {
				t.Errorf("code = %v, want %v", err.GetCode(), tt.code)
			}
			if err.GetMessage() != tt.message {
				t.Errorf("message = %v, want %v", err.GetMessage(), tt.message)
			}
			if err.GetCause() != nil {
				t.Error("expected nil cause for New()")
			}
			if err.GetStack() == "" {
				t.Error("expected stack trace to be captured")
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("wrap existing error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrConnection, cause, "failed to connect")

		if err.GetCode() != ErrConnection {
			t.Errorf("code = %v, want %v", err.GetCode(), ErrConnection)
		}
		if err.GetCause() != cause {
			t.Error("cause should be the wrapped error")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
	})

	t.Run("wrap nil behaves like New", func(t *testing.T) {
		err := Wrap(ErrQuery, nil, "nothing to wrap")
		if err.GetCause() != nil {
			t.Error("expected nil cause")
		}
		if err.GetCode() != ErrQuery {
			t.Errorf("code = %v, want %v", err.GetCode(), ErrQuery)
		}
	})

	t.Run("wrapf formats message", func(t *testing.T) {
		err := Wrapf(ErrQuery, errors.New("x"), "scan %d rows", 3)
		if err.GetMessage() != "scan 3 rows" {
			t.Errorf("message = %q", err.GetMessage())
		}
	})
}

// -----------------------------------------------------------------------------
// Matching Tests
// -----------------------------------------------------------------------------

func TestIsByCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", SourceNotFound("table", "public.roads"))

	if !Is(err, ErrSourceNotFound) {
		t.Error("Is should match code through fmt wrapping")
	}
	if Is(err, ErrQuery) {
		t.Error("Is should not match a different code")
	}
	if !errors.Is(err, New(ErrSourceNotFound, "other message")) {
		t.Error("errors.Is should match errors with the same code")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("plain errors carry no code")
	}
	if HasCode(nil) {
		t.Error("nil has no code")
	}
}

// -----------------------------------------------------------------------------
// Formatting Tests
// -----------------------------------------------------------------------------

func TestErrorString(t *testing.T) {
	err := WrapQuery(errors.New("syntax error"), "fetch tile", "public.roads").
		WithSQL("SELECT 1")

	s := err.Error()
	for _, want := range []string{
		"[E2001] failed to fetch tile",
		"  source: public.roads",
		"  sql: SELECT 1",
		"  cause: syntax error",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q, missing %q", s, want)
		}
	}

	// Context keys are sorted
	if strings.Index(s, "source:") > strings.Index(s, "sql:") {
		t.Error("context keys should be sorted")
	}
}

func TestHelpers(t *testing.T) {
	nf := SourceNotFound("function", "public.fn")
	if !strings.Contains(nf.GetMessage(), "public.fn") {
		t.Errorf("not-found message should contain the id, got %q", nf.GetMessage())
	}
	if nf.GetContext()["source"] != "public.fn" {
		t.Error("not-found error should carry source context")
	}

	cu := CatalogUnavailable("table")
	if cu.GetCode() != ErrCatalogUnavailable {
		t.Errorf("code = %v", cu.GetCode())
	}
}
