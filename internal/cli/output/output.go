// Package output renders command results for terminals, agents and scripts.
//
// A Renderer writes in one of three concrete modes. Auto mode picks styled
// text when stdout is a terminal and markdown otherwise, so piped output
// stays free of ANSI codes.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// OutputMode selects how results are written.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Modes lists the accepted --output values.
var Modes = []OutputMode{ModeAuto, ModeText, ModeMarkdown, ModeJSON}

// ParseMode parses an --output value. Empty means auto.
func ParseMode(s string) (OutputMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeAuto, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid output mode %q (valid: auto, text, markdown, json)", s)
}

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	lr := lipgloss.NewRenderer(out)
	if !isTTY || mode != ModeText && mode != ModeAuto || os.Getenv("NO_COLOR") != "" {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: NewStyles(lr),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mode returns the requested mode, which may be auto.
func (r *Renderer) Mode() OutputMode { return r.mode }

// EffectiveMode resolves auto to text or markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostic writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line to stdout.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a heading.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		style := r.styles.Header
		if level > 1 {
			style = r.styles.Subheader
		}
		r.Println(style.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
	r.Println("")
}

// Success writes a success line.
func (r *Renderer) Success(msg string) {
	r.status(r.out, r.styles.Success, "✓", "OK", msg)
}

// Warning writes a warning line to the diagnostic writer.
func (r *Renderer) Warning(msg string) {
	r.status(r.errOut, r.styles.Warning, "!", "WARN", msg)
}

// Error writes an error line to the diagnostic writer.
func (r *Renderer) Error(msg string) {
	r.status(r.errOut, r.styles.Error, "✗", "ERROR", msg)
}

func (r *Renderer) status(w io.Writer, style lipgloss.Style, icon, label, msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintf(w, "%s %s\n", style.Render(icon), msg)
		return
	}
	_, _ = fmt.Fprintf(w, "**%s:** %s\n", label, msg)
}

// Muted writes de-emphasised text.
func (r *Renderer) Muted(msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Muted.Render(msg))
		return
	}
	r.Println(msg)
}

// StatusLine writes one item with its status and an optional detail.
func (r *Renderer) StatusLine(name, status, detail string) {
	if r.EffectiveMode() != ModeText {
		line := fmt.Sprintf("- **%s** %s", name, status)
		if detail != "" {
			line += " (" + detail + ")"
		}
		r.Println(line)
		return
	}
	style := r.styles.Success
	switch status {
	case StatusFailed:
		style = r.styles.Error
	case StatusWarning, StatusSkipped:
		style = r.styles.Warning
	}
	line := fmt.Sprintf("  %s %-30s", style.Render(statusIcon(status)), r.styles.Bold.Render(name))
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

// Statuses accepted by StatusLine.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusWarning = "warning"
	StatusSkipped = "skipped"
)

func statusIcon(status string) string {
	switch status {
	case StatusFailed:
		return "✗"
	case StatusWarning:
		return "!"
	case StatusSkipped:
		return "-"
	}
	return "✓"
}

// KeyValue writes a labelled value.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeText {
		r.Printf("  %s %s\n", r.styles.Muted.Render(key+":"), value)
		return
	}
	r.Println(FormatKeyValue(key, value))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
