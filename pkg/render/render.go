// Package render turns ordered fields and rows into aligned text
// tables. Rendering is a pure function of its inputs.
package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Table is an ordered set of named columns with rows of cell values.
// A nil value is represented by an empty cell.
type Table struct {
	Columns []string
	Rows    [][]string
}

// String renders the table as one header line and one line per row.
// Cells are left-aligned and separated by a vertical bar, and every
// column is wide enough for its widest value including the header, so
// nothing is truncated. Widths are measured in terminal cells, not
// bytes.
func (t Table) String() string {
	if len(t.Columns) == 0 {
		return ""
	}

	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = runewidth.StringWidth(col)
	}

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}

			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder

	writeLine(&b, t.Columns, widths)
	for _, row := range t.Rows {
		writeLine(&b, row, widths)
	}

	return b.String()
}

func writeLine(b *strings.Builder, cells []string, widths []int) {
	padded := make([]string, len(widths))

	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}

		padded[i] = cell + strings.Repeat(" ", width-runewidth.StringWidth(cell))
	}

	line := strings.TrimRight(strings.Join(padded, " | "), " ")

	b.WriteString(line)
	b.WriteString("\n")
}
