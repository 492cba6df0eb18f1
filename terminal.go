package main

import (
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const defaultTerminalWidth = 80

// Terminal answers the questions the renderer asks about the output device.
type Terminal interface {
	Width() int
	IsTerminal() bool
}

type osTerminal struct {
	out *os.File
}

func newOSTerminal(out *os.File) *osTerminal {
	return &osTerminal{out: out}
}

// Width returns the current column count. COLUMNS wins when the device does
// not report a size.
func (t *osTerminal) Width() int {
	if w, _, err := term.GetSize(int(t.out.Fd())); err == nil && w > 0 {
		return w
	}
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return defaultTerminalWidth
}

func (t *osTerminal) IsTerminal() bool {
	return isTerminal(t.out)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// isPipedInput reports whether stdin is fed from a pipe or a file.
func isPipedInput() bool {
	return !isTerminal(os.Stdin)
}
