package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer prints pipeline results to a terminal or a plain stream.
// Markdown is styled with glamour only when the stream is a TTY.
type Renderer struct {
	w        io.Writer
	out      *termenv.Output
	tty      bool
	markdown func(string) (string, error)
}

// NewRenderer creates a renderer for w.
func NewRenderer(w io.Writer) *Renderer {
	r := &Renderer{w: w, out: termenv.NewOutput(w), tty: IsTerminal(w)}
	r.markdown = func(s string) (string, error) { return s, nil }
	if r.tty {
		if md, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
			r.markdown = md.Render
		}
	}
	return r
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Payload prints what a renderer brick would have displayed.
// A "markdown" arg is rendered as markdown; anything else is printed as JSON.
func (r *Renderer) Payload(p *domain.RendererPayload) error {
	if p == nil {
		return nil
	}
	r.Status(string(p.BrickID))
	if md, ok := p.Args["markdown"].(string); ok {
		out, err := r.markdown(md)
		if err != nil {
			return fmt.Errorf("failed to render markdown: %w", err)
		}
		_, err = fmt.Fprintln(r.w, strings.TrimRight(out, "\n"))
		return err
	}
	body, ok := p.Args["body"]
	if !ok {
		body = p.Args
	}
	return r.Value(body)
}

// Value prints v. Strings are printed as is, other values as indented JSON.
func (r *Renderer) Value(v any) error {
	v = domain.Deref(v)
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(r.w, s)
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(r.w, string(raw))
	return err
}

// Status prints a dimmed status line.
func (r *Renderer) Status(line string) {
	fmt.Fprintln(r.w, r.out.String("» "+line).Faint())
}

// Error prints err in red.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.w, r.out.String("✗ "+err.Error()).Foreground(r.out.Color("#ef4444")))
}
