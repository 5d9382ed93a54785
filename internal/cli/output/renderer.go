// Package output renders command results for terminals, plain pipes and
// machine consumers.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Mode selects how results are rendered.
type Mode string

// Output modes.
const (
	ModeAuto Mode = "auto"
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Valid reports whether m is a known mode. The empty mode means auto.
func (m Mode) Valid() bool {
	switch m {
	case "", ModeAuto, ModeText, ModeJSON:
		return true
	}
	return false
}

// Renderer writes command output to stdout and diagnostics to stderr.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: NewStyles(out, isTTY),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: fd fits in int
}

// EffectiveMode resolves auto to text.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode == ModeAuto {
		return ModeText
	}
	return r.mode
}

// IsTTY reports whether stdout is a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the style set bound to stdout.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns stdout.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns stderr.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line to stdout.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warn writes a diagnostic line to stderr.
func (r *Renderer) Warn(line string) {
	_, _ = fmt.Fprintln(r.errOut, line)
}

// JSON writes v as indented JSON without HTML escaping.
func (r *Renderer) JSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := r.out.Write(buf.Bytes())
	return err
}

// RawJSON writes already encoded JSON verbatim.
func (r *Renderer) RawJSON(data []byte) error {
	_, err := r.out.Write(data)
	return err
}
