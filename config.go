package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "bqrepl"
	envPrefix = "BQREPL"
)

// Config is everything the command line, the environment and the config
// file can set.
type Config struct {
	CredentialsFile string
	Project         string
	Token           string
	Endpoint        string
	Execute         string
	HistoryFile     string
	NoHistory       bool
	LogLevel        string
	LogFormat       string
	PageSize        int
	PollInterval    time.Duration

	// Settings seeds the session settings, keyed like \set.
	Settings map[string]string
	// Headers are added to every API request.
	Headers map[string]string
}

// configDir returns $XDG_CONFIG_HOME/bqrepl, falling back to the platform
// user config directory.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return "." + appName
}

func defaultConfigFile() string {
	return filepath.Join(configDir(), "config.yaml")
}

func defaultHistoryFile() string {
	return filepath.Join(configDir(), "history.sqlite")
}

// newViper reads the config file, if any. A missing default file is fine; a
// missing explicit one is not.
func newViper(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	explicit := file != ""
	if !explicit {
		file = defaultConfigFile()
	}
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}
	return v, nil
}

// bindFlags copies environment and config file values into every flag the
// user did not set on the command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		configName := strings.ReplaceAll(f.Name, "-", "_")
		if f.Changed || !v.IsSet(configName) {
			return
		}
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(configName))); err != nil {
			errs = append(errs, err.Error())
		}
	})
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("error mapping configuration to command flags: %s", strings.Join(errs, "; "))
}

// loadConfig resolves the final configuration for cmd.
func loadConfig(cmd *cobra.Command, cfg *Config, file string) error {
	v, err := newViper(file)
	if err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}
	cfg.Settings = stringMap(v.GetStringMap("settings"))
	cfg.Headers = v.GetStringMapString("headers")
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = defaultHistoryFile()
	}
	return nil
}

// stringMap flattens yaml scalars such as `maxrows: 20` or `expanded: true`
// into the textual form \set accepts.
func stringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = fmt.Sprintf("%v", v)
	}
	return out
}
