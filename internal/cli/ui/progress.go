package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Progress reports the outcome of a batch of steps, one line per step.
type Progress struct {
	writer  io.Writer
	total   int
	done    int
	failed  int
	noColor bool
}

// NewProgress creates a progress reporter for total steps.
func NewProgress(w io.Writer, total int, noColor bool) *Progress {
	return &Progress{writer: w, total: total, noColor: noColor}
}

// Step records a finished step. A non-nil err marks it failed.
func (p *Progress) Step(label string, err error) {
	p.done++
	counter := fmt.Sprintf("[%d/%d]", p.done, p.total)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		green.DisableColor()
		red.DisableColor()
		gray.DisableColor()
	}

	gray.Fprint(p.writer, counter+" ")
	if err != nil {
		p.failed++
		red.Fprintf(p.writer, "✗ %s: %v\n", label, err)
		return
	}
	green.Fprintf(p.writer, "✓ %s\n", label)
}

// Failed returns the number of failed steps.
func (p *Progress) Failed() int {
	return p.failed
}

// Summary returns a one line account of the batch.
func (p *Progress) Summary() string {
	if p.failed == 0 {
		return fmt.Sprintf("%d of %d succeeded", p.done, p.total)
	}
	return fmt.Sprintf("%d of %d succeeded, %d failed", p.done-p.failed, p.total, p.failed)
}
