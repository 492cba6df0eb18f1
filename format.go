package main

import (
	"errors"
	"io"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const (
	nullMarker   = "null"
	nullWidth    = 4
	ellipsis     = "..."
	rowLabel     = "row"
	minIndexSize = 3
)

// Cell is a formatted value. Null is kept apart from the empty string so
// the renderer can print the null marker.
type Cell struct {
	Text string
	Null bool
}

func (c Cell) width() int {
	if c.Null {
		return nullWidth
	}
	return textWidth(c.Text)
}

// Widths holds the per-column width state threaded from the formatter to
// the renderer.
type Widths struct {
	// Columns is max(len(name), len(type)), fixed per schema.
	Columns map[string]int
	// Values is the running max of formatted value widths, at least 4.
	Values map[string]int
}

// newWidths seeds the width table for a schema.
func newWidths(columns []Column) Widths {
	w := Widths{
		Columns: make(map[string]int, len(columns)),
		Values:  make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		w.Columns[c.Name] = max(textWidth(string(c.Type)), textWidth(c.Name))
		w.Values[c.Name] = nullWidth
	}
	return w
}

func (w Widths) clone() Widths {
	cp := Widths{
		Columns: make(map[string]int, len(w.Columns)),
		Values:  make(map[string]int, len(w.Values)),
	}
	for k, v := range w.Columns {
		cp.Columns[k] = v
	}
	for k, v := range w.Values {
		cp.Values[k] = v
	}
	return cp
}

// column returns the width a column occupies in the flat layout.
func (w Widths) column(name string) int {
	return max(w.Values[name], w.Columns[name])
}

// textWidth is the number of terminal cells s occupies.
func textWidth(s string) int {
	return runewidth.StringWidth(s)
}

// formatValues consumes rows and returns the formatted cells together with
// the updated widths. The widths argument is not modified.
//
// Formatting stops after maxrows rows unless the row just emitted is the last
// one of totalRows.
func formatValues(rows RowIterator, columns []Column, widths Widths, totalRows int64, settings *Settings) ([][]Cell, Widths, error) {
	widths = widths.clone()

	var values [][]Cell
	for rowIndex := 0; ; rowIndex++ {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return values, widths, err
		}

		cells := make([]Cell, 0, len(columns))
		for _, col := range columns {
			cell, err := formatCell(row[col.Name], col, settings)
			if err != nil {
				return values, widths, err
			}
			if w := cell.width(); w > widths.Values[col.Name] {
				widths.Values[col.Name] = w
			}
			cells = append(cells, cell)
		}
		values = append(values, cells)

		if rowIndex == settings.MaxRows-1 && int64(rowIndex) != totalRows-1 {
			break
		}
	}
	return values, widths, nil
}

func formatCell(v Value, col Column, settings *Settings) (Cell, error) {
	if v.IsNull() {
		return Cell{Null: true}, nil
	}

	switch {
	case col.Type.IsInteger(), col.Type.IsFloat():
		f := settings.FormatInteger
		if col.Type.IsFloat() {
			f = settings.FormatFloat
		}
		switch v.Kind() {
		case KindInteger:
			return Cell{Text: f.FormatInt(v.Int())}, nil
		case KindFloat:
			s, err := f.FormatFloat(v.Float())
			if err != nil {
				var tm *TypeMismatchError
				if errors.As(err, &tm) {
					tm.Column = col.Name
				}
				return Cell{}, err
			}
			return Cell{Text: s}, nil
		default:
			return Cell{}, &TypeMismatchError{Column: col.Name, Want: string(col.Type), Got: v.Kind()}
		}
	}

	return Cell{Text: truncate(v.String(), settings.MaxWidth)}, nil
}

// truncate keeps the first limit characters of s and appends the ellipsis
// marker when anything was cut. Column widths are still measured in cells.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + ellipsis
}
