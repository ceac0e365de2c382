package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func renderAccent(s string) string { return render(accentStyle, s) }
func renderPass(s string) string   { return render(passStyle, s) }
func renderWarn(s string) string   { return render(warnStyle, s) }
func renderMuted(s string) string  { return render(mutedStyle, s) }

// render styles s only for terminals so that piped output stays plain.
func render(style lipgloss.Style, s string) string {
	if !isTerminal() {
		return s
	}
	return style.Render(s)
}

// printRows writes rows as a bordered table on terminals and as tab-separated
// text otherwise.
func printRows(w io.Writer, columns []tablestore.ColumnDef, rows []tablestore.RowNode) {
	headers := make([]string, 0, len(columns)+1)
	headers = append(headers, "#")
	for _, c := range columns {
		headers = append(headers, c.Label)
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		line := make([]string, 0, len(columns)+1)
		line = append(line, strconv.Itoa(r.Index))
		for _, c := range columns {
			line = append(line, document.FormatValue(r.Data[c.Key]))
		}
		cells[i] = line
	}

	if !isTerminal() {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, line := range cells {
			fmt.Fprintln(w, strings.Join(line, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rowsJSON shapes rows for --json output.
func rowsJSON(rows []tablestore.RowNode) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any{"index": r.Index, "data": r.Data}
	}
	return out
}
