package printer

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/loykin/localcompose/internal/logger"
)

// Palette lists the color names accepted for services, in ANSI order.
var Palette = []string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"bright_black", "bright_red", "bright_green", "bright_yellow",
	"bright_blue", "bright_magenta", "bright_cyan", "bright_white",
}

// ValidColor reports whether name is in the Palette.
func ValidColor(name string) bool {
	_, ok := colorIndex(name)
	return ok
}

func colorIndex(name string) (int, bool) {
	for i, c := range Palette {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Writer outputs one rendered line; color may be empty.
type Writer interface {
	Write(line, color string) error
}

// PlainWriter ignores colors.
type PlainWriter struct{ w io.Writer }

func NewPlainWriter(w io.Writer) *PlainWriter { return &PlainWriter{w: w} }

func (p *PlainWriter) Write(line, _ string) error {
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// ColorWriter paints lines with their service color using ANSI sequences.
type ColorWriter struct {
	w      io.Writer
	styles map[string]lipgloss.Style
}

func NewColorWriter(w io.Writer) *ColorWriter {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.ANSI)
	styles := make(map[string]lipgloss.Style, len(Palette))
	for i, name := range Palette {
		styles[name] = r.NewStyle().Foreground(lipgloss.Color(fmt.Sprint(i)))
	}
	return &ColorWriter{w: w, styles: styles}
}

func (c *ColorWriter) Write(line, color string) error {
	if st, ok := c.styles[color]; ok && line != "" {
		line = st.Render(line)
	}
	_, err := fmt.Fprintln(c.w, line)
	return err
}

// FileWriter appends plain lines to a rotating log file.
type FileWriter struct{ w io.WriteCloser }

func NewFileWriter(cfg logger.FileConfig) (*FileWriter, error) {
	w := cfg.Writer()
	if w == nil {
		return nil, errors.New("log file path is empty")
	}
	return &FileWriter{w: w}, nil
}

func (f *FileWriter) Write(line, _ string) error {
	_, err := io.WriteString(f.w, line+"\n")
	return err
}

func (f *FileWriter) Close() error { return f.w.Close() }

// MultiWriter writes each line to all writers and joins their errors.
type MultiWriter []Writer

func (m MultiWriter) Write(line, color string) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(line, color); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
