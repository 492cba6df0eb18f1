package main

import (
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/tchap/go-patricia/v2/patricia"
)

const (
	wordKeyword  = "keyword"
	wordType     = "type"
	wordFunction = "function"
	wordCatalog  = "catalog"
)

var wordOrder = map[string]int{wordKeyword: 0, wordType: 1, wordFunction: 2, wordCatalog: 3}

var sqlKeywords = []string{
	"*", "all", "and", "as", "asc", "between", "by", "case", "coalesce", "create",
	"cross", "declare", "default", "desc", "distinct", "else", "end", "except",
	"exists", "false", "from", "full", "group", "having", "if", "ifnull", "in",
	"inner", "insert", "intersect", "into", "is", "join", "left", "like", "limit",
	"not", "nullif", "offset", "on", "or", "order", "outer", "over", "partition",
	"pivot", "qualify", "replace", "right", "select", "set", "struct", "table",
	"tablesample", "then", "true", "union", "unnest", "unpivot", "update", "using",
	"value", "values", "when", "where", "window", "with",
}

var sqlTypes = []string{
	"array", "bignumeric", "bool", "bytes", "date", "datetime", "decimal",
	"float64", "geography", "int64", "interval", "json", "null", "numeric",
	"string", "struct", "time", "timestamp",
}

var sqlFunctions = []string{
	"abs", "any_value", "approx_count_distinct", "approx_quantiles",
	"approx_top_count", "approx_top_sum", "array_agg", "array_concat",
	"array_length", "array_reverse", "array_to_string", "avg", "bit_and",
	"bit_or", "bit_xor", "byte_length", "cast", "ceil", "char_length", "concat",
	"corr", "count", "countif", "cume_dist", "current_date", "current_datetime",
	"current_time", "current_timestamp", "date", "date_add", "date_diff",
	"date_sub", "date_trunc", "datetime", "datetime_add", "datetime_diff",
	"datetime_sub", "datetime_trunc", "dense_rank", "ends_with", "extract",
	"first_value", "floor", "format", "format_date", "format_datetime",
	"format_timestamp", "generate_array", "generate_date_array",
	"generate_uuid", "greatest", "initcap", "instr", "json_extract",
	"json_extract_scalar", "json_query", "json_value", "lag", "last_day",
	"last_value", "lead", "least", "length", "ln", "log", "log10",
	"logical_and", "logical_or", "lower", "lpad", "ltrim", "max", "min",
	"mod", "net.host", "net.reg_domain", "ntile", "parse_date",
	"parse_datetime", "parse_timestamp", "percent_rank", "pow", "rand", "rank",
	"regexp_contains", "regexp_extract", "regexp_extract_all",
	"regexp_replace", "repeat", "reverse", "round", "row_number", "rpad",
	"rtrim", "safe_cast", "safe_divide", "session_user", "sign", "split",
	"sqrt", "st_area", "st_astext", "st_contains", "st_distance",
	"st_geogpoint", "starts_with", "stddev", "string_agg", "strpos", "substr",
	"sum", "timestamp", "timestamp_add", "timestamp_diff", "timestamp_micros",
	"timestamp_millis", "timestamp_seconds", "timestamp_sub",
	"timestamp_trunc", "to_base64", "to_hex", "to_json_string", "trim",
	"unix_micros", "unix_millis", "unix_seconds", "upper", "variance",
}

// completer suggests SQL words, backslash commands and catalog names seen
// so far.
type completer struct {
	words    *patricia.Trie
	commands []prompt.Suggest
	names    func() []string
}

func newCompleter(names func() []string) *completer {
	c := &completer{words: patricia.NewTrie(), names: names}
	for _, w := range sqlKeywords {
		c.insert(w, prompt.Suggest{Text: w, Description: wordKeyword})
	}
	for _, w := range sqlTypes {
		c.insert(w, prompt.Suggest{Text: strings.ToUpper(w), Description: wordType})
	}
	for _, w := range sqlFunctions {
		c.insert(w, prompt.Suggest{Text: w + "()", Description: wordFunction})
	}
	for _, cmd := range commands {
		for _, name := range cmd.names {
			c.commands = append(c.commands, prompt.Suggest{Text: name, Description: cmd.help})
		}
	}
	return c
}

func (c *completer) insert(key string, s prompt.Suggest) {
	k := patricia.Prefix(key)
	if item := c.words.Get(k); item != nil {
		c.words.Set(k, append(item.([]prompt.Suggest), s))
		return
	}
	c.words.Insert(k, []prompt.Suggest{s})
}

// Complete is the go-prompt completion callback.
func (c *completer) Complete(d prompt.Document) []prompt.Suggest {
	return c.suggest(d.GetWordBeforeCursor())
}

func (c *completer) suggest(word string) []prompt.Suggest {
	if word == "" {
		return []prompt.Suggest{}
	}
	if strings.HasPrefix(word, `\`) {
		return prompt.FilterHasPrefix(c.commands, word, true)
	}

	var out []prompt.Suggest
	_ = c.words.VisitSubtree(patricia.Prefix(strings.ToLower(word)), func(_ patricia.Prefix, item patricia.Item) error {
		out = append(out, item.([]prompt.Suggest)...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if oi, oj := wordOrder[out[i].Description], wordOrder[out[j].Description]; oi != oj {
			return oi < oj
		}
		return out[i].Text < out[j].Text
	})

	if c.names != nil {
		lw := strings.ToLower(word)
		for _, n := range c.names() {
			if strings.HasPrefix(strings.ToLower(n), lw) {
				out = append(out, prompt.Suggest{Text: n, Description: wordCatalog})
			}
		}
	}
	return out
}

// projectCompleter completes project ids at the startup prompt.
func projectCompleter(ids []string) prompt.Completer {
	suggestions := make([]prompt.Suggest, len(ids))
	for i, id := range ids {
		suggestions[i] = prompt.Suggest{Text: id}
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
	}
}
