package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/google/go-cmp/cmp"
)

type executedQuery struct {
	project string
	sql     string
}

type fakeExecutor struct {
	queries []executedQuery
	result  func() *ResultSet
	err     error
}

func (f *fakeExecutor) Query(ctx context.Context, project, sql string) (*ResultSet, error) {
	f.queries = append(f.queries, executedQuery{project, sql})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result(), nil
	}
	return newResultSet([]Column{{Name: "f0_", Type: TypeInteger}}, []Row{{"f0_": Integer(1)}}), nil
}

type shellFixture struct {
	shell    *Shell
	executor *fakeExecutor
	catalog  *fakeCatalog
	out      *bytes.Buffer
	log      *bytes.Buffer
	clears   int
}

func newShellFixture(t *testing.T) *shellFixture {
	t.Helper()
	f := &shellFixture{
		executor: &fakeExecutor{},
		catalog:  newFakeCatalog("alpha", "beta"),
		out:      &bytes.Buffer{},
		log:      &bytes.Buffer{},
	}
	logger, err := newLogger(f.log, "info", "text")
	if err != nil {
		t.Fatal(err)
	}
	settings := DefaultSettings()
	settings.Project = "alpha"

	f.shell = NewShell(ShellOptions{
		Settings: settings,
		Executor: f.executor,
		Catalog:  newCachedCatalog(f.catalog, catalogTTLs{}),
		Display:  NewDisplay(f.out, fakeTerminal{width: 200}, nil, logger),
		Logger:   logger,
	})
	f.shell.clearScreen = func() { f.clears++ }
	return f
}

func (f *shellFixture) run(t *testing.T, lines ...string) string {
	t.Helper()
	f.out.Reset()
	for _, l := range lines {
		f.shell.Execute(context.Background(), l)
	}
	return f.out.String()
}

func TestShellMessages(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"set without value", []string{`\set maxrows`}, setUsage + "\n"},
		{"set with extra words", []string{`\set maxrows 1 2`}, setUsage + "\n"},
		{"set unknown key", []string{`\set maxrow 10`}, "Unknown parameter maxrow (did you mean maxrows?)\n"},
		{"set bad value", []string{`\set maxrows lots`}, "Unknown value lots...\n"},
		{"set quietly", []string{`\set maxwidth 20`}, ""},
		{"toggle expanded", []string{`\x`, `\x`}, "Toggled expanded view ON\nToggled expanded view OFF\n"},
		{"set expanded", []string{`\set expanded on`}, "Toggled expanded view ON\n"},
		{"expanded with argument", []string{`\x on`}, "Usage: \\x\n"},
		{"switch project", []string{`\p beta`}, "Switched project to beta\n"},
		{"set project", []string{`\set project beta`}, "Switched project to beta\n"},
		{"tables without dataset", []string{`\t`}, "Missing dataset\n"},
		{"columns without table", []string{`\columns`}, "Missing table\n"},
		{"unknown command", []string{`\tabels`}, "Unknown command \\tabels (did you mean \\tables?)\n"},
		{"unknown command without hint", []string{`\frobnicate`}, "Unknown command \\frobnicate\n"},
		{"bad glob", []string{`\d alpha [x`}, "Bad pattern [x (" + badGlobHint(t) + ")\n"},
		{"blank line", []string{"", "   "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newShellFixture(t)
			got := f.run(t, tt.lines...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
			if len(f.executor.queries) != 0 {
				t.Errorf("commands reached the executor: %v", f.executor.queries)
			}
		})
	}
}

func badGlobHint(t *testing.T) string {
	t.Helper()
	_, err := filterResult(newResultSet(nil, nil), "x", "[x")
	var uie *UserInputError
	if !errors.As(err, &uie) {
		t.Fatalf("filterResult() error = %v", err)
	}
	return uie.Hint
}

func TestShellSettingsChange(t *testing.T) {
	f := newShellFixture(t)
	f.run(t, `\set maxrows 5`, `\SET`, `\p beta`, `\set format_float .1f`)

	s := f.shell.settings
	if s.MaxRows != 5 || s.Project != "beta" || s.FormatFloat.Decimals != 1 {
		t.Errorf("settings = %+v", s)
	}

	// A rejected value leaves the setting alone.
	f.run(t, `\set maxrows 0`)
	if s.MaxRows != 5 {
		t.Errorf("MaxRows = %d after rejected set, want 5", s.MaxRows)
	}
}

func TestShellExit(t *testing.T) {
	for _, line := range []string{"exit", "quit", `\q`, "  EXIT  ", "Quit"} {
		f := newShellFixture(t)
		if f.shell.Execute(context.Background(), line) {
			t.Errorf("Execute(%q) = true, want false", line)
		}
		if !f.shell.exiting {
			t.Errorf("Execute(%q) did not mark the shell as exiting", line)
		}
	}
	f := newShellFixture(t)
	if !f.shell.Execute(context.Background(), "SELECT 'exit'") {
		t.Error("a query mentioning exit ended the session")
	}
}

func TestShellClear(t *testing.T) {
	f := newShellFixture(t)
	f.run(t, "clear", `\clear`, "CLEAR")
	if f.clears != 3 {
		t.Errorf("clearScreen called %d times, want 3", f.clears)
	}
}

func TestShellQuery(t *testing.T) {
	f := newShellFixture(t)
	out := f.run(t, "SELECT 1")

	want := []executedQuery{{"alpha", "SELECT 1"}}
	if diff := cmp.Diff(want, f.executor.queries, cmp.AllowUnexported(executedQuery{})); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	wantOut := strings.Join([]string{
		" row | f0_     |",
		"     | INTEGER |",
		"-----|---------|",
		"   0 |       1 |",
		"----------------",
		"1/1 results.",
	}, "\n") + "\n"
	if diff := cmp.Diff(wantOut, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if f.shell.lastErr != nil {
		t.Errorf("lastErr = %v", f.shell.lastErr)
	}
}

func TestShellQueryErrors(t *testing.T) {
	f := newShellFixture(t)
	f.executor.err = &QueryError{Messages: []string{"Syntax error: Unexpected end of script", "Second problem"}}

	out := f.run(t, "SELECT")
	if out != "" {
		t.Errorf("query errors went to the result output: %q", out)
	}
	logged := f.log.String()
	for _, msg := range []string{"[ERROR] Syntax error: Unexpected end of script command=SELECT", "[ERROR] Second problem command=SELECT"} {
		if !strings.Contains(logged, msg) {
			t.Errorf("log %q does not contain %q", logged, msg)
		}
	}
	var qe *QueryError
	if !errors.As(f.shell.lastErr, &qe) {
		t.Errorf("lastErr = %v, want QueryError", f.shell.lastErr)
	}
}

func TestShellQueryCancelled(t *testing.T) {
	f := newShellFixture(t)
	f.executor.err = &QueryError{Err: context.Canceled}

	if got := f.run(t, "SELECT 1"); got != "Cancelled query\n" {
		t.Errorf("output = %q, want Cancelled query", got)
	}
	if f.log.Len() != 0 {
		t.Errorf("cancellation was logged as an error: %q", f.log.String())
	}
}

func TestShellTypeMismatch(t *testing.T) {
	f := newShellFixture(t)
	f.executor.result = func() *ResultSet {
		return newResultSet([]Column{{Name: "n", Type: TypeInteger}}, []Row{{"n": Float(1.5)}})
	}

	f.run(t, "SELECT 1.5 AS n")
	if !strings.Contains(f.log.String(), `type mismatch in column "n"`) {
		t.Errorf("log = %q", f.log.String())
	}
	var tme *TypeMismatchError
	if !errors.As(f.shell.lastErr, &tme) {
		t.Errorf("lastErr = %v, want TypeMismatchError", f.shell.lastErr)
	}
}

func TestShellCatalogCommands(t *testing.T) {
	f := newShellFixture(t)

	out := f.run(t, `\d`)
	if !strings.Contains(out, "web_logs") || !strings.HasSuffix(out, "3/3 results.\n") {
		t.Errorf(`\d output = %q`, out)
	}

	out = f.run(t, `\datasets beta web_*`)
	if strings.Contains(out, "sales") || !strings.HasSuffix(out, "2/2 results.\n") {
		t.Errorf(`\datasets beta web_* output = %q`, out)
	}

	out = f.run(t, `\t sales ord*`)
	if !strings.Contains(out, "orders") || strings.Contains(out, "customers") {
		t.Errorf(`\t output = %q`, out)
	}

	out = f.run(t, `\c sales.orders`)
	if !strings.Contains(out, "order_id") || !strings.HasSuffix(out, "2/2 results.\n") {
		t.Errorf(`\c output = %q`, out)
	}

	out = f.run(t, `\projects`)
	if !strings.Contains(out, "beta") {
		t.Errorf(`\projects output = %q`, out)
	}

	// A second listing is served from the cache.
	f.run(t, `\d`)
	if n := f.catalog.calls["datasets:alpha"]; n != 1 {
		t.Errorf("ListDatasets(alpha) called %d times, want 1", n)
	}

	// Listed names feed the completer.
	got := suggestionTexts(f.shell.completer.Complete(documentFor("SELECT * FROM web_")))
	if diff := cmp.Diff([]string{"web_events", "web_logs"}, got); diff != "" {
		t.Errorf("completion mismatch (-want +got):\n%s", diff)
	}
}

func TestShellCatalogError(t *testing.T) {
	f := newShellFixture(t)
	f.catalog.err = &CatalogError{Op: "datasets", Messages: []string{"Access Denied: Project alpha"}}

	f.run(t, `\d`)
	logged := f.log.String()
	for _, msg := range []string{"Something went wrong fetching datasets", "Access Denied: Project alpha"} {
		if !strings.Contains(logged, msg) {
			t.Errorf("log %q does not contain %q", logged, msg)
		}
	}
}

func TestShellHelpAndSettings(t *testing.T) {
	f := newShellFixture(t)

	out := f.run(t, `\?`)
	if !strings.Contains(out, "Print this stuff") || !strings.Contains(out, `\set maxrows INT`) {
		t.Errorf("help output = %q", out)
	}
	if f.run(t, `\h`) != out || f.run(t, `\help`) != out {
		t.Error("help aliases differ")
	}

	out = f.run(t, `\settings`)
	for _, want := range []string{"format_integer", "max_expanded_width", "alpha"} {
		if !strings.Contains(out, want) {
			t.Errorf("settings output does not contain %q:\n%s", want, out)
		}
	}
}

func TestShellHistory(t *testing.T) {
	f := newShellFixture(t)
	f.shell.history = openTestHistory(t)

	f.run(t, "SELECT 1", `\x`, "SELECT 2", "", "exit")
	out := f.run(t, `\history 2`)
	if !strings.Contains(out, "| SELECT 2") || !strings.Contains(out, `| \x`) || strings.Contains(out, "SELECT 1") {
		t.Errorf(`\history 2 output = %q`, out)
	}

	entries, err := f.shell.history.Recent(defaultHistoryLimit)
	if err != nil {
		t.Fatal(err)
	}
	var inputs []string
	for _, e := range entries {
		inputs = append(inputs, e.Input)
	}
	if diff := cmp.Diff([]string{"SELECT 1", `\x`, "SELECT 2", `\history 2`}, inputs); diff != "" {
		t.Errorf("recorded inputs mismatch (-want +got):\n%s", diff)
	}
	if entries[0].Project != "alpha" || entries[0].Rows != 1 {
		t.Errorf("first entry = %+v", entries[0])
	}

	if got := f.run(t, `\history none`); got != "Unknown value none...\n" {
		t.Errorf(`\history none output = %q`, got)
	}
}

func TestShellRunPiped(t *testing.T) {
	f := newShellFixture(t)
	in := strings.NewReader("SELECT 1\n\\x\n\nSELECT 2\nquit\nSELECT 3\n")

	if err := f.shell.RunPiped(context.Background(), in); err != nil {
		t.Fatalf("RunPiped() error = %v", err)
	}
	want := []executedQuery{{"alpha", "SELECT 1"}, {"alpha", "SELECT 2"}}
	if diff := cmp.Diff(want, f.executor.queries, cmp.AllowUnexported(executedQuery{})); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	if !f.shell.settings.Expanded {
		t.Error("piped \\x was not applied")
	}
}

func TestShellRunPipedWithoutProject(t *testing.T) {
	f := newShellFixture(t)
	f.shell.settings.Project = ""
	if err := f.shell.RunPiped(context.Background(), strings.NewReader("SELECT 1\n")); err == nil {
		t.Error("RunPiped() without a project should fail")
	}
	if len(f.executor.queries) != 0 {
		t.Errorf("queries = %v", f.executor.queries)
	}
}

func TestShellEnsureProject(t *testing.T) {
	f := newShellFixture(t)
	f.shell.settings.Project = ""

	answers := []string{"nope", " beta "}
	var prefixes []string
	f.shell.ask = func(prefix string, c prompt.Completer) string {
		prefixes = append(prefixes, prefix)
		a := answers[0]
		answers = answers[1:]
		return a
	}

	if err := f.shell.ensureProject(context.Background()); err != nil {
		t.Fatalf("ensureProject() error = %v", err)
	}
	if f.shell.settings.Project != "beta" {
		t.Errorf("Project = %q, want beta", f.shell.settings.Project)
	}
	if diff := cmp.Diff([]string{"Please provide project ID: ", "Please provide project ID: "}, prefixes); diff != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", diff)
	}
	want := "Incorrect project ID provided.\nAvailable projects:\n1) alpha\n2) beta\n"
	if got := f.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if prefix, ok := f.shell.livePrefix(); prefix != "[beta] ~> " || !ok {
		t.Errorf("livePrefix() = %q, %v", prefix, ok)
	}
}

func TestShellEnsureProjectEmptyAnswer(t *testing.T) {
	f := newShellFixture(t)
	f.shell.settings.Project = ""

	asked := 0
	f.shell.ask = func(string, prompt.Completer) string {
		asked++
		if asked > 1 {
			t.Fatal("asked again after an empty answer")
		}
		return ""
	}

	if err := f.shell.ensureProject(context.Background()); !errors.Is(err, errNoProject) {
		t.Fatalf("ensureProject() error = %v, want %v", err, errNoProject)
	}
	if f.shell.settings.Project != "" {
		t.Errorf("Project = %q, want none", f.shell.settings.Project)
	}
	if got := f.out.String(); got != "" {
		t.Errorf("output = %q, want nothing", got)
	}
}

func TestShellEnsureProjectKeepsExisting(t *testing.T) {
	f := newShellFixture(t)
	f.shell.ask = func(string, prompt.Completer) string {
		t.Fatal("asked for a project although one is set")
		return ""
	}
	if err := f.shell.ensureProject(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.catalog.calls["projects"] != 0 {
		t.Error("projects were listed although one is set")
	}
}

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"exit", true},
		{"EXIT", true},
		{"quit", true},
		{"QUIT", true},
		{"\\q", true},
		{"select * from table", false},
		{"", false},
		{"   exit   ", true},
		{"exit;", false},
		{"clear", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := isExitCommand(tt.input)
			if result != tt.expected {
				t.Errorf("isExitCommand(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
