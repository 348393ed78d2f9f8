package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// tableStyles is the style set shared by every table the CLI prints.
type tableStyles struct {
	Header lipgloss.Style
	Row    lipgloss.Style
	RowAlt lipgloss.Style
	Border lipgloss.Style
}

// newTableStyles binds the styles to r, so colour is only emitted when the
// renderer's output is a terminal.
func newTableStyles(r *lipgloss.Renderer) tableStyles {
	return tableStyles{
		Header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#66FF66")).Padding(0, 1),
		Row:    r.NewStyle().Foreground(lipgloss.Color("#00FF00")).Padding(0, 1),
		RowAlt: r.NewStyle().Foreground(lipgloss.Color("#00AA00")).Padding(0, 1),
		Border: r.NewStyle().Foreground(lipgloss.Color("#00AA00")),
	}
}

// Table collects the rows of one text table.
type Table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, right: make(map[int]bool)}
}

// AlignRight right-aligns the given columns.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// Row appends a row.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) {
	s := newTableStyles(lipgloss.NewRenderer(w))
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		Headers(t.headers...).
		Rows(t.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = s.Header
			case row%2 == 1:
				style = s.RowAlt
			default:
				style = s.Row
			}
			if t.right[col] {
				style = style.Align(lipgloss.Right)
			}
			return style
		})
	fmt.Fprintln(w, tbl.Render())
}
