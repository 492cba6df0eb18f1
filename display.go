package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Display turns result sets into terminal output.
type Display struct {
	out    io.Writer
	term   Terminal
	pager  Pager
	styles styles
	logger *logrus.Logger
	now    func() time.Time
}

func NewDisplay(out io.Writer, term Terminal, pager Pager, logger *logrus.Logger) *Display {
	return &Display{
		out:    out,
		term:   term,
		pager:  pager,
		styles: newStyles(term.IsTerminal()),
		logger: logger,
		now:    time.Now,
	}
}

// ShowResults renders rs according to settings. Table output ends with the
// results footer; structured formats write the capped rows only.
func (d *Display) ShowResults(rs *ResultSet, settings *Settings) error {
	if settings.Output != OutputTable && settings.Output != "" {
		rows, err := collectRows(rs, settings.MaxRows)
		if err != nil {
			return err
		}
		return d.writeStructured(rs.Schema, rows, settings.Output)
	}

	values, widths, err := formatValues(rs.Rows, rs.Schema, newWidths(rs.Schema), rs.TotalRows, settings)
	if err != nil {
		return err
	}

	var (
		lines []string
		width int
	)
	if settings.Expanded {
		lines, width = formatRowsExpanded(values, rs.Schema, widths, settings, d.styles)
	} else {
		lines, width = formatRows(values, rs.Schema, widths, d.styles)
	}

	text := strings.Join(lines, "\n") + "\n"
	if d.shouldPage(width) {
		if err := d.pager.Page(text); err != nil {
			return err
		}
	} else if _, err := io.WriteString(d.out, text); err != nil {
		return err
	}

	elapsed := ""
	if !rs.StartedAt.IsZero() {
		elapsed = d.now().Sub(rs.StartedAt).Round(time.Millisecond).String()
	}
	_, err = fmt.Fprintln(d.out, formatFooter(len(values), rs.TotalRows, elapsed, d.styles))
	return err
}

func (d *Display) shouldPage(width int) bool {
	if d.pager == nil || !d.term.IsTerminal() {
		return false
	}
	return width >= d.term.Width()
}

// Error prints a user facing error line.
func (d *Display) Error(msg string) {
	fmt.Fprintln(d.out, d.styles.paint(d.styles.errors, msg))
}

// Println prints an informational line.
func (d *Display) Println(a ...interface{}) {
	fmt.Fprintln(d.out, a...)
}

// collectRows drains rs with the same row cap the table formatter applies.
func collectRows(rs *ResultSet, maxRows int) ([]Row, error) {
	var rows []Row
	for i := 0; ; i++ {
		row, err := rs.Rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
		if i == maxRows-1 && int64(i) != rs.TotalRows-1 {
			break
		}
	}
	return rows, nil
}

func (d *Display) writeStructured(schema []Column, rows []Row, format OutputFormat) error {
	switch format {
	case OutputCSV:
		return writeCSV(d.out, schema, rows)
	case OutputJSON:
		return writeJSON(d.out, schema, rows)
	case OutputYAML:
		return writeYAML(d.out, schema, rows)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func writeCSV(out io.Writer, schema []Column, rows []Row) error {
	w := csv.NewWriter(out)
	header := make([]string, len(schema))
	for i, col := range schema {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(schema))
	for _, row := range rows {
		for i, col := range schema {
			record[i] = row[col.Name].String()
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// jsonValue maps values onto what encoding/json accepts; non finite floats
// are written as strings.
func jsonValue(v Value) interface{} {
	if v.Kind() == KindFloat && (math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0)) {
		return v.String()
	}
	return v.Interface()
}

// writeJSON writes one object per row, keys in schema order.
func writeJSON(out io.Writer, schema []Column, rows []Row) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, col := range schema {
			if j > 0 {
				buf.WriteString(", ")
			}
			k, err := json.Marshal(col.Name)
			if err != nil {
				return err
			}
			v, err := json.Marshal(jsonValue(row[col.Name]))
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteString(": ")
			buf.Write(v)
		}
		buf.WriteString("}")
	}
	if len(rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")
	_, err := out.Write(buf.Bytes())
	return err
}

// writeYAML writes a sequence of mappings, keys in schema order.
func writeYAML(out io.Writer, schema []Column, rows []Row) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, col := range schema {
			var v yaml.Node
			if err := v.Encode(row[col.Name].Interface()); err != nil {
				return err
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: col.Name}, &v)
		}
		doc.Content = append(doc.Content, m)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
