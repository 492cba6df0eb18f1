package main

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

type commandDesc struct {
	names []string
	args  string
	help  string
}

func (c commandDesc) syntax() string {
	s := strings.Join(c.names, ", ")
	if c.args != "" {
		s += " " + c.args
	}
	return s
}

var commands = [...]commandDesc{
	{[]string{`\?`, `\h`, `\help`}, "", "Print this stuff"},
	{[]string{`\d`, `\datasets`}, "[PROJECT] [GLOB]", "List datasets in current project (or another project)"},
	{[]string{`\p`, `\projects`}, "[PROJECT]", "List projects. Will switch projects when provided as parameter"},
	{[]string{`\t`, `\tables`}, "[PROJECT.]DATASET [GLOB]", "List tables in a dataset"},
	{[]string{`\c`, `\columns`}, "[PROJECT.]DATASET.TABLE", "List columns in a table"},
	{[]string{`\x`, `\expanded`}, "", `Toggle expanded view on/off. Shorthand for \set expanded BOOL`},
	{[]string{`\set`}, "KEY VALUE", "Change a setting, see below"},
	{[]string{`\settings`}, "", "Show current settings"},
	{[]string{`\history`}, "[N]", "Show the last N inputs (default=20)"},
	{[]string{`\clear`, `clear`}, "", "Clear screen"},
	{[]string{`\q`, `exit`, `quit`}, "", "Leave (or ctrl+d)"},
}

type settingDesc struct {
	key  string
	arg  string
	help string
}

var settingHelp = [...]settingDesc{
	{keyProject, "PROJECT_ID", "Switch to another project"},
	{keyMaxRows, "INT", "Maximum rows displayed (default=100)"},
	{keyMaxWidth, "INT", "Maximum width of a column in flat view (default=50)"},
	{keyMaxExpandedWidth, "INT", "Maximum width of a value in expanded view (default=100)"},
	{keyExpanded, "BOOL", "Expanded view (default=False)"},
	{keyFormatInteger, "STR", "Format of integer values (default=',d')"},
	{keyFormatFloat, "STR", "Format of float values (default=',.4f')"},
	{keyOutput, "FORMAT", "One of table, csv, json or yaml (default=table)"},
}

// helpResult presents the command table as a result set.
func helpResult() *ResultSet {
	schema := []Column{
		{Name: "command", Type: TypeString},
		{Name: "description", Type: TypeString},
	}
	rows := make([]Row, 0, len(commands)+len(settingHelp))
	for _, c := range commands {
		rows = append(rows, Row{"command": String(c.syntax()), "description": String(c.help)})
	}
	for _, s := range settingHelp {
		rows = append(rows, Row{
			"command":     String(`\set ` + s.key + " " + s.arg),
			"description": String(s.help),
		})
	}
	return newResultSet(schema, rows)
}

// commandNames lists every spelling of every command, sorted.
func commandNames() []string {
	var names []string
	for _, c := range commands {
		names = append(names, c.names...)
	}
	sort.Strings(names)
	return names
}

// maxSuggestDistance bounds how far off a typo may be before no hint is
// offered.
const maxSuggestDistance = 3

// closestStrings returns the candidates at the smallest edit distance from
// a, provided that distance is at most minDistance.
func closestStrings(minDistance int, a string, candidates []string) []string {
	closest := []string{}
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(a, c)
		switch {
		case d < minDistance:
			closest = []string{c}
			minDistance = d
		case d == minDistance:
			closest = append(closest, c)
		}
	}
	sort.Strings(closest)
	return closest
}

// suggest returns a "did you mean" hint for key, or "" when nothing is
// close enough.
func suggest(key string, candidates []string) string {
	closest := closestStrings(maxSuggestDistance, key, candidates)
	if len(closest) == 0 {
		return ""
	}
	return "did you mean " + strings.Join(closest, " or ") + "?"
}
