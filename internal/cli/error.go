package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// FormatError formats an error for terminal display:
//
//	error[E3001]: table source 'public.nope' not found
//	   |
//	   | source: public.nope
//
// Errors without a code are printed as a single "error:" line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var ae *alerr.Error
	if !errors.As(err, &ae) {
		return Error("error") + ": " + err.Error() + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s\n", Error("error"), Code(string(ae.GetCode())), ae.GetMessage())

	ctx := ae.GetContext()
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if k == "sql" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) > 0 {
		b.WriteString("   " + Pipe() + "\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "   %s %s: %v\n", Pipe(), k, ctx[k])
		}
	}

	if cause := ae.GetCause(); cause != nil {
		b.WriteString("   " + Pipe() + "\n")
		fmt.Fprintf(&b, "%s: caused by: %s\n", Note("note"), cause)
	}

	if help := helpFor(ae.GetCode()); help != "" {
		fmt.Fprintf(&b, "%s: %s\n", Success("help"), help)
	}

	return b.String()
}

// FormatWarning formats a warning line.
func FormatWarning(msg string) string {
	return Warning("warning") + ": " + msg + "\n"
}

func helpFor(code alerr.Code) string {
	switch code {
	case alerr.ErrConnection:
		return "check the connection string and that PostgreSQL is reachable"
	case alerr.ErrPoolExhausted:
		return "raise pool_size or acquire_timeout"
	case alerr.ErrConfig:
		return "run `tilehouse serve --help` for the available settings"
	case alerr.ErrMalformedMetadata:
		return "check geometry_columns for the source's SRID and extent"
	}
	return ""
}
