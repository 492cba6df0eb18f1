package main

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
)

func TestExecPager(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	t.Setenv("PAGER", "cat")

	var out, errOut bytes.Buffer
	p := newExecPager(&out, &errOut, newTestLogger())
	if err := p.Page("wide\ntable\n"); err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if out.String() != "wide\ntable\n" {
		t.Errorf("paged output = %q", out.String())
	}
}

func TestExecPagerFallback(t *testing.T) {
	t.Setenv("PAGER", "bqrepl-no-such-pager --flag")

	var out bytes.Buffer
	p := newExecPager(&out, &bytes.Buffer{}, newTestLogger())
	if err := p.Page("text\n"); err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if out.String() != "text\n" {
		t.Errorf("fallback output = %q", out.String())
	}
}

func TestExecPagerDefault(t *testing.T) {
	t.Setenv("PAGER", " ")
	p := newExecPager(os.Stdout, os.Stderr, newTestLogger())
	if p.command != defaultPager {
		t.Errorf("command = %q, want %q", p.command, defaultPager)
	}
}

func TestOSTerminalWidth(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	term := newOSTerminal(f)

	if term.IsTerminal() {
		t.Error("a regular file reported as a terminal")
	}

	t.Setenv("COLUMNS", "132")
	if got := term.Width(); got != 132 {
		t.Errorf("Width() = %d, want 132 from COLUMNS", got)
	}
	t.Setenv("COLUMNS", "wide")
	if got := term.Width(); got != defaultTerminalWidth {
		t.Errorf("Width() = %d, want %d", got, defaultTerminalWidth)
	}
}
