// Package testutil captures what pxsort commands render so tests can
// inspect run summaries, history tables and key listings.
package testutil

import (
	"bytes"
	"testing"

	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/testutil"
)

// Capture is a Renderer whose stdout and stderr are kept in memory.
type Capture struct {
	*output.Renderer
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// NewCapture renders in mode as if attached (isTTY) or not to a terminal.
func NewCapture(mode output.OutputMode, isTTY bool) *Capture {
	c := &Capture{}
	c.Renderer = output.NewRendererWithTTY(&c.stdout, &c.stderr, isTTY, mode)
	return c
}

// Markdown captures piped markdown output, the default off a terminal.
func Markdown() *Capture { return NewCapture(output.ModeMarkdown, false) }

// JSON captures --output json.
func JSON() *Capture { return NewCapture(output.ModeJSON, false) }

// Stdout returns everything rendered to stdout so far.
func (c *Capture) Stdout() string { return c.stdout.String() }

// StdoutBytes is Stdout for decoders.
func (c *Capture) StdoutBytes() []byte { return c.stdout.Bytes() }

// Stderr returns warnings and errors rendered so far.
func (c *Capture) Stderr() string { return c.stderr.String() }

// AssertPlain fails the test if stdout carries terminal styling.
func (c *Capture) AssertPlain(t testing.TB) {
	t.Helper()
	testutil.AssertNoANSI(t, c.Stdout())
}
