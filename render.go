package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles decorates rendered text. Widths are always computed on the plain
// text, so a disabled styles value and an enabled one produce lines of the
// same visible width.
type styles struct {
	color bool

	name   lipgloss.Style
	typ    lipgloss.Style
	label  lipgloss.Style
	null   lipgloss.Style
	footer lipgloss.Style
	errors lipgloss.Style
}

func newStyles(color bool) styles {
	return styles{
		color:  color,
		name:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		typ:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		null:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		footer: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errors: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

var plainStyles = newStyles(false)

func (st styles) paint(s lipgloss.Style, text string) string {
	if !st.color || text == "" {
		return text
	}
	return s.Render(text)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

func dashes(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("-", n)
}

// padRight left-justifies text in n cells; padLeft right-justifies it.
func padRight(styled, plain string, n int) string {
	return styled + spaces(n-textWidth(plain))
}

func padLeft(styled, plain string, n int) string {
	return spaces(n-textWidth(plain)) + styled
}

// formatIndex renders a row number comma grouped and right-aligned to at
// least three cells.
func formatIndex(i int) string {
	s := formatCount(int64(i))
	return spaces(minIndexSize-len(s)) + s
}

// formatRows lays values out as a grid: a name line, a type line, a
// separator, one line per row and a closing rule. It returns the lines and
// the width of the closing rule.
func formatRows(values [][]Cell, columns []Column, widths Widths, st styles) ([]string, int) {
	var header, types, separator strings.Builder

	header.WriteString(" " + st.paint(st.label, rowLabel) + " |")
	types.WriteString("     |")
	separator.WriteString("-----|")

	for i, col := range columns {
		w := widths.column(col.Name)
		if i > 0 {
			header.WriteString("|")
			separator.WriteString("+")
		}
		header.WriteString(" " + st.paint(st.name, col.Name) + spaces(w-textWidth(col.Name)+1))
		types.WriteString(" " + st.paint(st.typ, string(col.Type)) + spaces(w-textWidth(string(col.Type))+1) + "|")
		separator.WriteString(dashes(w + 2))
	}
	header.WriteString("|")
	separator.WriteString("|")

	lines := make([]string, 0, len(values)+4)
	lines = append(lines, header.String(), types.String())
	if len(values) > 0 {
		lines = append(lines, separator.String())
	}

	for i, row := range values {
		var b strings.Builder
		b.WriteString(" " + st.paint(st.label, formatIndex(i)))
		for j, col := range columns {
			w := widths.column(col.Name)
			b.WriteString(" | ")

			cell := row[j]
			plain, styled := cell.Text, cell.Text
			if cell.Null {
				plain, styled = nullMarker, st.paint(st.null, nullMarker)
			}
			if col.Type.IsNumeric() {
				b.WriteString(padLeft(styled, plain, w))
			} else {
				b.WriteString(padRight(styled, plain, w))
			}
		}
		b.WriteString(" |")
		lines = append(lines, b.String())
	}

	// The separator is pure ASCII, so its byte length is its width.
	final := dashes(separator.Len())
	lines = append(lines, final)
	return lines, len(final)
}

// formatRowsExpanded lays every row out as a block of "name | value" lines
// under a "-[ row N ]-" delimiter. It returns the lines and the table width.
func formatRowsExpanded(values [][]Cell, columns []Column, widths Widths, settings *Settings, st styles) ([]string, int) {
	nameWidth := 0
	for _, col := range columns {
		nameWidth = max(nameWidth, textWidth(col.Name))
	}
	valueWidth := nullWidth
	for _, col := range columns {
		valueWidth = max(valueWidth, widths.Values[col.Name])
	}
	valueWidth = min(settings.MaxExpandedWidth, valueWidth)
	tableWidth := nameWidth + valueWidth + 3

	lines := make([]string, 0, len(values)*(len(columns)+1))
	for i, row := range values {
		label := "-[ " + rowLabel + " " + formatCount(int64(i)) + " ]-"
		lines = append(lines, st.paint(st.label, label)+dashes(tableWidth-len(label)))

		for j, col := range columns {
			cell := row[j]
			var value string
			if cell.Null {
				value = st.paint(st.null, nullMarker) + spaces(valueWidth-nullWidth)
			} else {
				value = padRight(cell.Text, cell.Text, valueWidth)
			}
			lines = append(lines, padRight(st.paint(st.name, col.Name), col.Name, nameWidth)+" | "+value)
		}
	}
	return lines, tableWidth
}

// formatFooter renders "<shown>/<total> results." with an optional elapsed
// time suffix.
func formatFooter(shown int, total int64, elapsed string, st styles) string {
	s := st.paint(st.footer, formatCount(int64(shown))+"/"+formatCount(total)) + " results."
	if elapsed != "" {
		s += " Time: " + elapsed
	}
	return s
}
