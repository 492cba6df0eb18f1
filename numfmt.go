package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// NumberKind selects how a numeric cell is printed.
type NumberKind int

const (
	// GroupedInteger prints whole numbers, e.g. ",d" -> 1,234.
	GroupedInteger NumberKind = iota
	// FixedDecimal prints a fixed number of decimals, e.g. ",.4f" -> 1,234.5000.
	FixedDecimal
)

// defaultPrecision is used by "f" formats that omit the precision.
const defaultPrecision = 6

// NumberFormat is a display format parsed from a spec such as ",d" or
// ",.4f". It is parsed once when the setting changes.
type NumberFormat struct {
	Kind     NumberKind
	Grouping rune // 0 disables digit grouping
	Decimals int
	spec     string
}

// ParseNumberFormat parses "[,|_][.N](d|f)".
func ParseNumberFormat(spec string) (NumberFormat, error) {
	f := NumberFormat{spec: spec}
	rest := spec

	if strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, "_") {
		f.Grouping = rune(rest[0])
		rest = rest[1:]
	}

	precision := -1
	if strings.HasPrefix(rest, ".") {
		end := 1
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 1 {
			return NumberFormat{}, fmt.Errorf("invalid number format %q: missing precision", spec)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n > 64 {
			return NumberFormat{}, fmt.Errorf("invalid number format %q: bad precision", spec)
		}
		precision = n
		rest = rest[end:]
	}

	switch rest {
	case "d":
		if precision >= 0 {
			return NumberFormat{}, fmt.Errorf("invalid number format %q: precision not allowed with d", spec)
		}
		f.Kind = GroupedInteger
	case "f":
		f.Kind = FixedDecimal
		f.Decimals = defaultPrecision
		if precision >= 0 {
			f.Decimals = precision
		}
	default:
		return NumberFormat{}, fmt.Errorf("invalid number format %q: expected d or f", spec)
	}
	return f, nil
}

// MustParseNumberFormat is like ParseNumberFormat but panics on error.
func MustParseNumberFormat(spec string) NumberFormat {
	f, err := ParseNumberFormat(spec)
	if err != nil {
		panic(err)
	}
	return f
}

func (f NumberFormat) String() string {
	return f.spec
}

// FormatInt renders an integer. Fixed-decimal formats pad exact zeros rather
// than going through float64, so large values keep every digit.
func (f NumberFormat) FormatInt(v int64) string {
	s := groupDigits(strconv.FormatInt(v, 10), f.Grouping)
	if f.Kind == FixedDecimal && f.Decimals > 0 {
		s += "." + strings.Repeat("0", f.Decimals)
	}
	return s
}

// FormatFloat renders a float. Integer formats cannot print fractional
// values; callers get a TypeMismatchError.
func (f NumberFormat) FormatFloat(v float64) (string, error) {
	if f.Kind != FixedDecimal {
		return "", &TypeMismatchError{Want: "integer", Got: KindFloat}
	}
	switch {
	case math.IsNaN(v):
		return "nan", nil
	case math.IsInf(v, 1):
		return "inf", nil
	case math.IsInf(v, -1):
		return "-inf", nil
	}
	s := strconv.FormatFloat(v, 'f', f.Decimals, 64)
	whole, frac, hasFrac := strings.Cut(s, ".")
	s = groupDigits(whole, f.Grouping)
	if hasFrac {
		s += "." + frac
	}
	return s, nil
}

// groupDigits inserts sep between every three digits of an optionally signed
// run of ASCII digits.
func groupDigits(digits string, sep rune) string {
	if sep == 0 {
		return digits
	}
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	b.WriteString(sign)
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > len(sign) {
			b.WriteRune(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// formatCount renders counts and row indexes comma grouped, as the footer
// and the row label column expect.
func formatCount(n int64) string {
	return humanize.Comma(n)
}
