package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

func getLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.DebugLevel, fmt.Errorf("invalid log level: %v", level)
	}
}

func getFormatter(format string) logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{}
	case "json-pretty":
		return &logrus.JSONFormatter{PrettyPrint: true}
	default:
		return &compactFormatter{}
	}
}

func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := getLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(getFormatter(format))
	return logger, nil
}

// compactFormatter prints one line per entry: the level, the message and
// the fields sorted by key.
type compactFormatter struct{}

func (f *compactFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "[%s] %s", strings.ToUpper(e.Level.String()), e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var val string
		switch v := e.Data[k].(type) {
		case string:
			val = v
		case error:
			val = v.Error()
		default:
			js, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			val = string(js)
		}
		if strings.ContainsAny(val, " \t\n") {
			val = fmt.Sprintf("%q", val)
		}
		fmt.Fprintf(b, " %s=%s", k, val)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
