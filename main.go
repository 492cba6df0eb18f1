package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// errReported is returned once the failure has already been logged.
var errReported = errors.New("reported")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &Config{}
	var configFile string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "REPL for BigQuery",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd, cfg, configFile); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	registerFlags(cmd, cfg, &configFile)
	return cmd
}

func registerFlags(cmd *cobra.Command, cfg *Config, configFile *string) {
	flags := cmd.Flags()
	flags.StringVarP(&cfg.CredentialsFile, "credentials-file", "c", "", "path to credentials .json")
	flags.StringVarP(&cfg.Project, "project", "p", "", "use specific project instead of inferring from credentials")
	flags.StringVar(&cfg.Token, "token", "", "use this OAuth2 access token instead of credentials")
	flags.StringVar(&cfg.Endpoint, "endpoint", defaultEndpoint, "BigQuery API endpoint")
	flags.StringVarP(&cfg.Execute, "execute", "e", "", "execute a single query and exit")
	flags.StringVar(configFile, "config", "", "config file (default "+defaultConfigFile()+")")
	flags.StringVar(&cfg.HistoryFile, "history-file", "", "history database (default "+defaultHistoryFile()+")")
	flags.BoolVar(&cfg.NoHistory, "no-history", false, "do not record input history")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text, json or json-pretty")
	flags.IntVar(&cfg.PageSize, "page-size", defaultPageSize, "rows fetched per API call")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "minimum delay between job status polls")
}

func run(ctx context.Context, cfg *Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	settings := DefaultSettings()
	if err := settings.Apply(cfg.Settings); err != nil {
		return fmt.Errorf("invalid settings in config: %w", err)
	}

	creds, err := newCredentials(ctx, credentialOptions{Token: cfg.Token, CredentialsFile: cfg.CredentialsFile}, logger)
	if err != nil {
		logger.Error(err.Error())
		return errReported
	}
	switch {
	case cfg.Project != "":
		settings.Project = cfg.Project
	case settings.Project == "":
		settings.Project = creds.ProjectID
	}

	bq := NewBigQuery(NewHTTPClient(0), creds.TokenSource, logger, BigQueryOptions{
		Endpoint:     cfg.Endpoint,
		Headers:      cfg.Headers,
		PageSize:     cfg.PageSize,
		PollInterval: cfg.PollInterval,
	})

	var history *historyStore
	if !cfg.NoHistory {
		history, err = openHistoryStore(cfg.HistoryFile)
		if err != nil {
			logger.WithError(err).Warn("History disabled")
		}
	}
	defer history.Close()

	interactive := cfg.Execute == "" && !isPipedInput()
	var progress io.Writer
	if isTerminal(os.Stderr) && !isPipedInput() {
		progress = os.Stderr
	}

	display := NewDisplay(os.Stdout, newOSTerminal(os.Stdout), newExecPager(os.Stdout, os.Stderr, logger), logger)
	shell := NewShell(ShellOptions{
		Settings: settings,
		Executor: bq,
		Catalog:  newCachedCatalog(bq, defaultCatalogTTLs),
		Display:  display,
		History:  history,
		Logger:   logger,
		Progress: progress,
	})

	logger.WithFields(logrus.Fields{
		"project":     settings.Project,
		"interactive": interactive,
	}).Debug("Starting session")

	switch {
	case cfg.Execute != "":
		if settings.Project == "" {
			return errors.New("no project set, pass --project")
		}
		shell.Execute(ctx, cfg.Execute)
		if shell.lastErr != nil {
			return errReported
		}
		return nil
	case !interactive:
		return shell.RunPiped(ctx, os.Stdin)
	default:
		start := time.Now()
		defer func() {
			logger.WithField("duration", time.Since(start).Round(time.Second).String()).Debug("Session ended")
		}()
		return shell.RunInteractive(ctx)
	}
}
