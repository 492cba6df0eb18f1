package main

import (
	"sort"
	"strconv"
	"strings"
)

// OutputFormat selects how result sets are written.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputCSV   OutputFormat = "csv"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// Settings is the mutable session state. The Shell owns it and is the only
// writer; the renderer reads it.
type Settings struct {
	Expanded         bool
	FormatInteger    NumberFormat
	FormatFloat      NumberFormat
	MaxRows          int
	MaxWidth         int
	MaxExpandedWidth int
	Project          string
	Output           OutputFormat
}

const (
	keyExpanded         = "expanded"
	keyFormatInteger    = "format_integer"
	keyFormatFloat      = "format_float"
	keyMaxRows          = "maxrows"
	keyMaxWidth         = "maxwidth"
	keyMaxExpandedWidth = "max_expanded_width"
	keyProject          = "project"
	keyOutput           = "output"
)

// settingKeys lists the keys accepted by \set, in display order.
var settingKeys = []string{
	keyExpanded,
	keyFormatInteger,
	keyFormatFloat,
	keyMaxRows,
	keyMaxWidth,
	keyMaxExpandedWidth,
	keyProject,
	keyOutput,
}

// DefaultSettings returns the settings a session starts with.
func DefaultSettings() *Settings {
	return &Settings{
		Expanded:         false,
		FormatInteger:    MustParseNumberFormat(",d"),
		FormatFloat:      MustParseNumberFormat(",.4f"),
		MaxRows:          100,
		MaxWidth:         50,
		MaxExpandedWidth: 100,
		Output:           OutputTable,
	}
}

var (
	trueValues  = []string{"y", "yes", "on", "true", "t", "1"}
	falseValues = []string{"n", "no", "off", "false", "f", "-1", "0"}
)

func parseBool(value string) (bool, bool) {
	v := strings.ToLower(value)
	for _, t := range trueValues {
		if v == t {
			return true, true
		}
	}
	for _, f := range falseValues {
		if v == f {
			return false, true
		}
	}
	return false, false
}

// Set parses value and stores it under key. On error the settings are left
// untouched and a *UserInputError is returned.
func (s *Settings) Set(key, value string) error {
	switch key {
	case keyExpanded:
		b, ok := parseBool(value)
		if !ok {
			return newUserInputError("Unknown value %s...", value)
		}
		s.Expanded = b
	case keyFormatInteger:
		f, err := ParseNumberFormat(value)
		if err != nil {
			return &UserInputError{Message: "Unknown value " + value + "...", Hint: err.Error()}
		}
		s.FormatInteger = f
	case keyFormatFloat:
		f, err := ParseNumberFormat(value)
		if err != nil {
			return &UserInputError{Message: "Unknown value " + value + "...", Hint: err.Error()}
		}
		if f.Kind != FixedDecimal {
			return &UserInputError{Message: "Unknown value " + value + "...", Hint: "float formats must end in f"}
		}
		s.FormatFloat = f
	case keyMaxRows, keyMaxWidth, keyMaxExpandedWidth:
		n, err := strconv.Atoi(value)
		if err != nil {
			return newUserInputError("Unknown value %s...", value)
		}
		if n < 1 {
			return &UserInputError{Message: "Unknown value " + value + "...", Hint: key + " must be at least 1"}
		}
		switch key {
		case keyMaxRows:
			s.MaxRows = n
		case keyMaxWidth:
			s.MaxWidth = n
		default:
			s.MaxExpandedWidth = n
		}
	case keyProject:
		if strings.TrimSpace(value) == "" {
			return newUserInputError("Unknown value %q...", value)
		}
		s.Project = value
	case keyOutput:
		switch o := OutputFormat(strings.ToLower(value)); o {
		case OutputTable, OutputCSV, OutputJSON, OutputYAML:
			s.Output = o
		default:
			return &UserInputError{Message: "Unknown value " + value + "...", Hint: "expected table, csv, json or yaml"}
		}
	default:
		return &UserInputError{Message: "Unknown parameter " + key, Hint: suggest(key, settingKeys)}
	}
	return nil
}

// Get returns the textual form of a setting, as \set would accept it.
func (s *Settings) Get(key string) (string, bool) {
	switch key {
	case keyExpanded:
		return strconv.FormatBool(s.Expanded), true
	case keyFormatInteger:
		return s.FormatInteger.String(), true
	case keyFormatFloat:
		return s.FormatFloat.String(), true
	case keyMaxRows:
		return strconv.Itoa(s.MaxRows), true
	case keyMaxWidth:
		return strconv.Itoa(s.MaxWidth), true
	case keyMaxExpandedWidth:
		return strconv.Itoa(s.MaxExpandedWidth), true
	case keyProject:
		return s.Project, true
	case keyOutput:
		return string(s.Output), true
	}
	return "", false
}

// Apply sets every key of values, stopping at the first invalid one. Keys
// are applied in sorted order so errors are reported deterministically.
func (s *Settings) Apply(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// settingsResult presents the settings as a result set for \settings.
func (s *Settings) settingsResult() *ResultSet {
	schema := []Column{
		{Name: "setting", Type: TypeString},
		{Name: "value", Type: TypeString},
	}
	rows := make([]Row, 0, len(settingKeys))
	for _, k := range settingKeys {
		v, _ := s.Get(k)
		val := String(v)
		if v == "" {
			val = Null()
		}
		rows = append(rows, Row{"setting": String(k), "value": val})
	}
	return newResultSet(schema, rows)
}
