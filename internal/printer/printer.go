// Package printer writes per-document progress and run summaries to the
// console.
package printer

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

func init() {
	// Force color even without a TTY; NO_COLOR disables it.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer serializes writes so lines from concurrent workers never interleave.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// New prints to stdout and stderr.
func New() *Printer {
	return &Printer{out: os.Stdout, err: os.Stderr}
}

// NewWriter prints everything to w.
func NewWriter(w io.Writer) *Printer {
	return &Printer{out: w, err: w}
}

func NewWriters(out, err io.Writer) *Printer {
	return &Printer{out: out, err: err}
}

func (p *Printer) OK(id, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	green.Fprintf(p.out, "✓ %s", id)
	if detail != "" {
		fmt.Fprintf(p.out, " → %s", detail)
	}
	fmt.Fprintln(p.out)
}

func (p *Printer) Skipped(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	yellow.Fprintf(p.out, "↷ %s (already processed)\n", id)
}

func (p *Printer) Failed(id, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.out, "✗ %s", id)
	fmt.Fprintf(p.out, ": %s\n", reason)
}

// Step prints an emphasized progress line.
func (p *Printer) Step(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cyan.Fprintf(p.out, "→ %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Warning(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	yellow.Fprintf(p.err, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Summary(ok, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\nDone. ")
	green.Fprintf(p.out, "OK=%d", ok)
	fmt.Fprint(p.out, ", ")
	yellow.Fprintf(p.out, "Skipped=%d", skipped)
	fmt.Fprint(p.out, ", ")
	red.Fprintf(p.out, "Failed=%d", failed)
	fmt.Fprintln(p.out)
}

// Error prints title and explanation to stderr and returns a bare error
// carrying the title, for commands that silence cobra's own error output.
func (p *Printer) Error(title, explanation string, suggestions ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.err, "%s\n", explanation)
	}
	if len(suggestions) == 1 {
		fmt.Fprintf(p.err, "\n%s\n", suggestions[0])
	} else if len(suggestions) > 1 {
		fmt.Fprintf(p.err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.err, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}
