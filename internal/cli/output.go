package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hlop3z/tilehouse/internal/source"
)

// Table provides aligned column output.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row, padding missing cells.
func (t *Table) AddRow(cells ...string) {
	for len(cells) < len(t.headers) {
		cells = append(cells, "")
	}
	for i, cell := range cells {
		if i < len(t.widths) {
			t.widths[i] = max(t.widths[i], lipgloss.Width(cell))
		}
	}
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// String renders the table.
func (t *Table) String() string {
	if len(t.headers) == 0 {
		return ""
	}

	var b strings.Builder
	for i, h := range t.headers {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(Header(padRight(h, t.widths[i])))
	}
	b.WriteString("\n")

	for i, w := range t.widths {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(Dim(strings.Repeat("─", w)))
	}
	b.WriteString("\n")

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(t.widths) {
				break
			}
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(padRight(cell, t.widths[i]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// FormatCount formats a count with singular/plural form.
func FormatCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

// TablesTable lists table sources, one row per source.
func TablesTable(cat *source.Catalog) *Table {
	t := NewTable("ID", "GEOMETRY", "SRID", "TYPE", "PROPERTIES", "BOUNDS")
	for _, tbl := range cat.Tables() {
		t.AddRow(
			Highlight(tbl.ID()),
			tbl.GeometryColumn,
			fmt.Sprint(tbl.SRID),
			tbl.GeometryType,
			fmt.Sprint(len(tbl.Properties)),
			formatBounds(tbl.Bounds),
		)
	}
	return t
}

// FunctionsTable lists function sources, one row per source.
func FunctionsTable(cat *source.Catalog) *Table {
	t := NewTable("ID", "SCHEMA", "FUNCTION")
	for _, fn := range cat.Functions() {
		t.AddRow(Highlight(fn.ID()), fn.Schema, fn.FunctionName)
	}
	return t
}

func formatBounds(b source.Bounds) string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b[0], b[1], b[2], b[3])
}

// Sources is the JSON shape of the sources command.
type Sources struct {
	Tables    *source.Catalog `json:"table_sources"`
	Functions *source.Catalog `json:"function_sources"`
}

// WriteSources prints both catalogs in the configured mode.
func WriteSources(w io.Writer, cfg *Config, tables, functions *source.Catalog) error {
	if cfg.IsJSON() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Sources{Tables: tables, Functions: functions})
	}

	fmt.Fprintf(w, "%s\n\n", Header("Table sources ("+FormatCount(tables.Len(), "source", "sources")+")"))
	if tables.Len() > 0 {
		fmt.Fprint(w, TablesTable(tables).String())
	} else {
		fmt.Fprintln(w, Dim("  none"))
	}

	fmt.Fprintf(w, "\n%s\n\n", Header("Function sources ("+FormatCount(functions.Len(), "source", "sources")+")"))
	if functions.Len() > 0 {
		fmt.Fprint(w, FunctionsTable(functions).String())
	} else {
		fmt.Fprintln(w, Dim("  none"))
	}
	return nil
}
