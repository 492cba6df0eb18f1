package main

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// ColumnType is the type name reported by the warehouse schema.
type ColumnType string

const (
	TypeInteger   ColumnType = "INTEGER"
	TypeInt64     ColumnType = "INT64"
	TypeFloat     ColumnType = "FLOAT"
	TypeFloat64   ColumnType = "FLOAT64"
	TypeNumeric   ColumnType = "NUMERIC"
	TypeString    ColumnType = "STRING"
	TypeBytes     ColumnType = "BYTES"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeDatetime  ColumnType = "DATETIME"
	TypeDate      ColumnType = "DATE"
	TypeTime      ColumnType = "TIME"
	TypeRecord    ColumnType = "RECORD"
)

// IsInteger reports whether values of the column are formatted with the
// integer display format.
func (t ColumnType) IsInteger() bool {
	return t == TypeInteger || t == TypeInt64
}

// IsFloat reports whether values of the column are formatted with the float
// display format.
func (t ColumnType) IsFloat() bool {
	return t == TypeFloat || t == TypeFloat64
}

// IsNumeric reports whether the column is right-aligned in the flat layout.
func (t ColumnType) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// Column describes one column of a result set.
type Column struct {
	Name string
	Type ColumnType
}

// Kind tags the dynamic type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Timestamps print with six fractional digits, or none at all when the
// microseconds are zero.
const (
	timestampLayout       = "2006-01-02 15:04:05-07:00"
	timestampLayoutMicros = "2006-01-02 15:04:05.000000-07:00"
)

func formatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(timestampLayout)
	}
	return t.Format(timestampLayoutMicros)
}

// Value is a single cell as delivered by the query executor. The zero Value
// is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
}

func Null() Value { return Value{} }
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Timestamp(v time.Time) Value { return Value{kind: KindTimestamp, t: v} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Time() time.Time { return v.t }

// String returns the plain text form of the value, without any display
// formatting applied. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindTimestamp:
		return formatTimestamp(v.t)
	}
	return ""
}

// Interface returns the value as a plain Go value for the structured output
// encoders.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTimestamp:
		return v.t
	}
	return nil
}

func (v Value) GoString() string {
	if v.kind == KindNull {
		return "Null()"
	}
	return fmt.Sprintf("%s(%q)", v.kind, v.String())
}

// Row maps column names to values. A missing column reads as Null.
type Row map[string]Value

// RowIterator yields rows lazily. Next returns io.EOF once exhausted.
type RowIterator interface {
	Next() (Row, error)
}

// ResultSet is what the query executor and the catalog browser hand to the
// renderer.
type ResultSet struct {
	Rows      RowIterator
	Schema    []Column
	TotalRows int64
	StartedAt time.Time
}

type sliceIterator struct {
	rows []Row
	pos  int
}

// newSliceIterator iterates over rows that are already in memory.
func newSliceIterator(rows []Row) *sliceIterator {
	return &sliceIterator{rows: rows}
}

func (it *sliceIterator) Next() (Row, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

// newResultSet wraps in-memory rows; the total is the number of rows.
func newResultSet(schema []Column, rows []Row) *ResultSet {
	return &ResultSet{
		Rows:      newSliceIterator(rows),
		Schema:    schema,
		TotalRows: int64(len(rows)),
	}
}
