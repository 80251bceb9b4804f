package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Confirmer answers yes/no questions before destructive steps.
type Confirmer interface {
	Confirm(prompt string) bool
}

// fixedConfirmer always gives the same answer; used for --yes and for
// non-interactive runs.
type fixedConfirmer bool

func (f fixedConfirmer) Confirm(string) bool { return bool(f) }

// promptConfirmer asks on a terminal. Anything but y/yes is a no, including
// EOF.
type promptConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) Confirm(prompt string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(p.out)
		return false
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// confirmers holds the two decision points of a run.
type confirmers struct {
	// Start guards truncation of target tables.
	Start Confirmer
	// Conflict decides whether an incompatible existing table is dropped.
	Conflict Confirmer
}

// buildConfirmers picks an answer source for each decision point. Without a
// terminal, the run only starts with --yes and conflicts fall back to skip
// unless on_schema_conflict says otherwise.
func buildConfirmers(assumeYes bool, conflictPolicy string, interactive bool, in io.Reader, out io.Writer) confirmers {
	var prompt Confirmer = fixedConfirmer(false)
	if interactive {
		prompt = newPromptConfirmer(in, out)
	}

	c := confirmers{Start: prompt, Conflict: prompt}
	if assumeYes {
		c.Start = fixedConfirmer(true)
	}
	switch conflictPolicy {
	case "skip":
		c.Conflict = fixedConfirmer(false)
	case "recreate":
		c.Conflict = fixedConfirmer(true)
	}
	return c
}
