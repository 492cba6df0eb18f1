package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPager     = "less"
	defaultLessFlags = "-SRXF"
)

// Pager shows text that is too wide for the terminal.
type Pager interface {
	Page(text string) error
}

type execPager struct {
	command string
	stdout  io.Writer
	stderr  io.Writer
	logger  *logrus.Logger
}

// newExecPager uses $PAGER, falling back to less.
func newExecPager(stdout, stderr io.Writer, logger *logrus.Logger) *execPager {
	cmd := os.Getenv("PAGER")
	if strings.TrimSpace(cmd) == "" {
		cmd = defaultPager
	}
	return &execPager{command: cmd, stdout: stdout, stderr: stderr, logger: logger}
}

func (p *execPager) Page(text string) error {
	fields := strings.Fields(p.command)
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		cmd.Env = append(cmd.Env, "LESS="+defaultLessFlags)
	}

	p.logger.WithField("pager", p.command).Debug("Paging output")
	if err := cmd.Run(); err != nil {
		// Without a usable pager the text still has to reach the user.
		p.logger.WithError(err).Debug("Pager failed, printing directly")
		_, werr := io.WriteString(p.stdout, text)
		if werr != nil {
			return fmt.Errorf("write output: %w", werr)
		}
	}
	return nil
}
