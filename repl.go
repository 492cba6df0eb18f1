package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/sirupsen/logrus"
)

const setUsage = "Ugh, I expected something like >set variable value<, got something weird instead..."

// Shell owns the session settings and dispatches every input line.
type Shell struct {
	settings  *Settings
	executor  QueryExecutor
	catalog   Catalog
	completer *completer
	display   *Display
	history   *historyStore
	logger    *logrus.Logger

	// progress is where the query spinner is drawn; nil disables it.
	progress io.Writer
	// clearScreen wipes the terminal.
	clearScreen func()
	// ask reads one line with completion, used for the project prompt.
	ask func(prefix string, c prompt.Completer) string

	exiting bool
	// lastErr is the error of the most recent input line, if any.
	lastErr error
}

type ShellOptions struct {
	Settings *Settings
	Executor QueryExecutor
	Catalog  Catalog
	Display  *Display
	History  *historyStore
	Logger   *logrus.Logger
	Progress io.Writer
}

func NewShell(opts ShellOptions) *Shell {
	s := &Shell{
		settings: opts.Settings,
		executor: opts.Executor,
		catalog:  opts.Catalog,
		display:  opts.Display,
		history:  opts.History,
		logger:   opts.Logger,
		progress: opts.Progress,
		clearScreen: func() {
			w := prompt.NewStandardOutputWriter()
			w.EraseScreen()
			w.CursorGoTo(0, 0)
			_ = w.Flush()
		},
		ask: func(prefix string, c prompt.Completer) string {
			return prompt.Input(prefix, c)
		},
	}
	var names func() []string
	if cc, ok := opts.Catalog.(*cachedCatalog); ok {
		names = cc.knownNames
	}
	s.completer = newCompleter(names)
	return s
}

func isExitCommand(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "exit" || line == "quit" || line == `\q`
}

func isClearCommand(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "clear" || line == `\clear`
}

// Execute handles one input line. It returns false once the user asked to
// leave.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return true
	case isExitCommand(text):
		s.exiting = true
		return false
	case isClearCommand(text):
		s.clearScreen()
		return true
	}

	entry := historyEntry{Input: text, Project: s.settings.Project, ExecutedAt: time.Now()}
	var err error
	if strings.HasPrefix(text, `\`) {
		err = s.executeCommand(ctx, text)
	} else {
		entry.Rows, err = s.executeQuery(ctx, text)
	}
	entry.Duration = time.Since(entry.ExecutedAt)
	s.lastErr = err
	if err != nil {
		entry.Err = err.Error()
		s.handleError(text, err)
	}
	if herr := s.history.Add(entry); herr != nil {
		s.logger.WithError(herr).Debug("Failed to record history")
	}
	return true
}

func (s *Shell) handleError(text string, err error) {
	var (
		uie *UserInputError
		tme *TypeMismatchError
	)
	switch {
	case isCancelled(err):
		s.display.Println("Cancelled query")
	case errors.As(err, &uie):
		s.display.Error(uie.Error())
	case errors.As(err, &tme):
		s.logger.WithField("command", text).Error(tme.Error())
	default:
		for _, msg := range errorMessages(err) {
			s.logger.WithField("command", text).Error(msg)
		}
	}
}

func (s *Shell) show(rs *ResultSet) error {
	return s.display.ShowResults(rs, s.settings)
}

func (s *Shell) executeCommand(ctx context.Context, text string) error {
	fields := strings.Fields(text)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch strings.ToLower(fields[0]) {
	case `\?`, `\h`, `\help`:
		return s.show(helpResult())

	case `\d`, `\datasets`:
		project := arg(1)
		if project == "" {
			project = s.settings.Project
		}
		rs, err := s.catalog.ListDatasets(ctx, project)
		if err != nil {
			return err
		}
		if rs, err = filterResult(rs, "dataset_id", arg(2)); err != nil {
			return err
		}
		return s.show(rs)

	case `\p`, `\projects`:
		if project := arg(1); project != "" {
			return s.switchProject(project)
		}
		rs, err := s.catalog.ListProjects(ctx)
		if err != nil {
			return err
		}
		return s.show(rs)

	case `\t`, `\tables`:
		dataset := arg(1)
		if dataset == "" {
			return newUserInputError("Missing dataset")
		}
		rs, err := s.catalog.ListTables(ctx, s.settings.Project, dataset)
		if err != nil {
			return err
		}
		if rs, err = filterResult(rs, "table_id", arg(2)); err != nil {
			return err
		}
		return s.show(rs)

	case `\c`, `\columns`:
		table := arg(1)
		if table == "" {
			return newUserInputError("Missing table")
		}
		rs, err := s.catalog.ListColumns(ctx, s.settings.Project, table)
		if err != nil {
			return err
		}
		return s.show(rs)

	case `\x`, `\expanded`:
		if len(fields) != 1 {
			return newUserInputError(`Usage: \x`)
		}
		return s.executeCommand(ctx, `\set expanded `+strconv.FormatBool(!s.settings.Expanded))

	case `\set`:
		if len(fields) != 3 {
			return newUserInputError(setUsage)
		}
		return s.set(fields[1], fields[2])

	case `\settings`:
		return s.show(s.settings.settingsResult())

	case `\history`:
		n := defaultHistoryLimit
		if a := arg(1); a != "" {
			v, err := strconv.Atoi(a)
			if err != nil || v < 1 {
				return newUserInputError("Unknown value %s...", a)
			}
			n = v
		}
		entries, err := s.history.Recent(n)
		if err != nil {
			return err
		}
		return s.show(historyResult(entries))
	}

	return &UserInputError{Message: "Unknown command " + fields[0], Hint: suggest(fields[0], commandNames())}
}

func (s *Shell) set(key, value string) error {
	if key == keyProject {
		return s.switchProject(value)
	}
	if err := s.settings.Set(key, value); err != nil {
		return err
	}
	if key == keyExpanded {
		state := "OFF"
		if s.settings.Expanded {
			state = "ON"
		}
		s.display.Println("Toggled expanded view " + state)
	}
	return nil
}

func (s *Shell) switchProject(project string) error {
	if err := s.settings.Set(keyProject, project); err != nil {
		return err
	}
	s.display.Println("Switched project to " + project)
	return nil
}

// executeQuery runs sql and renders the result. Ctrl+C while the query is in
// flight cancels it.
func (s *Shell) executeQuery(ctx context.Context, sql string) (int64, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var spin *spinner
	if s.progress != nil {
		spin = startSpinner(s.progress, "Executing query...")
	}
	rs, err := s.executor.Query(ctx, s.settings.Project, sql)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return 0, err
	}
	if err := s.show(rs); err != nil {
		return 0, err
	}
	return rs.TotalRows, nil
}

// errNoProject ends the project prompt when it is left with ctrl+d or an
// empty answer.
var errNoProject = errors.New("no project selected")

// ensureProject asks for a project until one of the accessible projects is
// named.
func (s *Shell) ensureProject(ctx context.Context) error {
	if s.settings.Project != "" {
		return nil
	}
	ids, err := projectIDs(ctx, s.catalog)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no accessible projects, pass --project")
	}
	sort.Strings(ids)

	for {
		project := strings.TrimSpace(s.ask("Please provide project ID: ", projectCompleter(ids)))
		if project == "" {
			return errNoProject
		}
		for _, id := range ids {
			if id == project {
				return s.settings.Set(keyProject, project)
			}
		}
		var b strings.Builder
		b.WriteString(s.display.styles.paint(s.display.styles.errors, "Incorrect project ID provided."))
		b.WriteString("\nAvailable projects:")
		for i, id := range ids {
			fmt.Fprintf(&b, "\n%d) %s", i+1, id)
		}
		s.display.Println(b.String())
	}
}

func (s *Shell) livePrefix() (string, bool) {
	return fmt.Sprintf("[%s] ~> ", s.settings.Project), true
}

// RunInteractive reads lines with the go-prompt line editor until the user
// leaves with exit or ctrl+d.
func (s *Shell) RunInteractive(ctx context.Context) error {
	if err := s.ensureProject(ctx); err != nil {
		return err
	}

	history, err := s.history.Inputs(promptHistoryLimit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load history")
	}

	p := prompt.New(
		func(in string) { s.Execute(ctx, in) },
		s.completer.Complete,
		prompt.OptionTitle(appName),
		prompt.OptionPrefix(""),
		prompt.OptionLivePrefix(s.livePrefix),
		prompt.OptionHistory(history),
		prompt.OptionSuggestionBGColor(prompt.Turquoise),
		prompt.OptionSuggestionTextColor(prompt.White),
		prompt.OptionSelectedSuggestionBGColor(prompt.Cyan),
		prompt.OptionSelectedSuggestionTextColor(prompt.Black),
		prompt.OptionScrollbarBGColor(prompt.DarkGray),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && s.exiting
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlL,
			Fn:  func(*prompt.Buffer) { s.clearScreen() },
		}),
	)
	p.Run()

	s.display.Println("bai!")
	return nil
}

// RunPiped executes every line read from in.
func (s *Shell) RunPiped(ctx context.Context, in io.Reader) error {
	if s.settings.Project == "" {
		return errors.New("no project set, pass --project")
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if !s.Execute(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}
