// Package terminal writes framework output: plain lines, separators,
// underlined titles and styled error text.
package terminal

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

const (
	// DefaultWidth is used when the output is not a terminal.
	DefaultWidth = 80
	minWidth     = 40
)

// Style adjusts the lipgloss style text is rendered with.
type Style func(lipgloss.Style) lipgloss.Style

// Foreground colors text with an ANSI color.
func Foreground(color string) Style {
	return func(s lipgloss.Style) lipgloss.Style { return s.Foreground(lipgloss.Color(color)) }
}

var (
	Bold   Style = func(s lipgloss.Style) lipgloss.Style { return s.Bold(true) }
	Red          = Foreground("1")
	Green        = Foreground("2")
	Yellow       = Foreground("3")
	Cyan         = Foreground("6")
)

// Writer renders text to an output stream.
type Writer struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	width    int
}

// Option configures a Writer.
type Option func(*Writer)

// WithWidth fixes the width used by separators and wrapping.
func WithWidth(n int) Option {
	return func(w *Writer) { w.width = n }
}

// WithProfile forces a color profile, e.g. termenv.Ascii to disable styling.
func WithProfile(p termenv.Profile) Option {
	return func(w *Writer) { w.renderer.SetColorProfile(p) }
}

// New creates a Writer for out. Styling follows the color support detected
// for out.
func New(out io.Writer, opts ...Option) *Writer {
	w := &Writer{out: out, renderer: lipgloss.NewRenderer(out)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stdout writes to os.Stdout.
func Stdout() *Writer { return New(os.Stdout) }

// Stderr writes to os.Stderr.
func Stderr() *Writer { return New(os.Stderr) }

// Out returns the underlying stream.
func (w *Writer) Out() io.Writer { return w.out }

// Fullwidth returns the configured width, else the terminal width, else
// DefaultWidth. Widths under 40 columns are considered bogus.
func (w *Writer) Fullwidth() int {
	if w.width > 0 {
		return w.width
	}
	width := DefaultWidth
	if f, ok := w.out.(*os.File); ok && term.IsTerminal(f.Fd()) {
		if tw, _, err := term.GetSize(f.Fd()); err == nil {
			width = tw
		}
	}
	if width < minWidth {
		width = DefaultWidth
	}
	return width
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func (w *Writer) render(msg string, styles []Style) string {
	if len(styles) == 0 || msg == "" {
		return msg
	}
	st := w.renderer.NewStyle()
	for _, s := range styles {
		st = s(st)
	}
	lines := strings.Split(msg, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = st.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

// Print writes msg without a trailing newline.
func (w *Writer) Print(msg string, styles ...Style) {
	_, _ = io.WriteString(w, w.render(msg, styles))
}

// Line writes msg followed by a newline.
func (w *Writer) Line(msg string, styles ...Style) {
	w.Print(msg, styles...)
	w.Print("\n")
}

// Sep writes a separator line of sepchar across the full width, with title
// centered when given.
func (w *Writer) Sep(sepchar, title string, styles ...Style) {
	w.Line(SepLine(sepchar, title, w.Fullwidth()), styles...)
}

// SepLine builds a separator of at most width columns.
func SepLine(sepchar, title string, width int) string {
	charWidth := ansi.StringWidth(sepchar)
	if charWidth == 0 {
		return title
	}
	var line string
	if title != "" {
		n := max((width-ansi.StringWidth(title)-2)/(2*charWidth), 1)
		fill := strings.Repeat(sepchar, n)
		line = fill + " " + title + " " + fill
	} else {
		line = strings.Repeat(sepchar, width/charWidth)
	}
	trimmed := strings.TrimRight(sepchar, " ")
	if ansi.StringWidth(line)+ansi.StringWidth(trimmed) <= width {
		line += trimmed
	}
	return line
}

// Underline writes msg, a line of decorator as wide as msg and a blank line.
func (w *Writer) Underline(msg, decorator string, styles ...Style) {
	if decorator == "" {
		decorator = "-"
	}
	w.Line(msg, styles...)
	w.Line(strings.Repeat(decorator, ansi.StringWidth(msg)), styles...)
	w.Print("\n")
}

// Wrap word-wraps text to the writer's width.
func (w *Writer) Wrap(text string) string {
	return wordwrap.String(text, w.Fullwidth())
}

// Error writes msg as a red line.
func (w *Writer) Error(msg string) {
	w.Line(msg, Red)
}
