// Package printer renders the labeled service stream.
package printer

import (
	"strings"
	"sync"

	"github.com/loykin/localcompose/internal/bus"
)

// DefaultTimeFormat is the Go time layout used for line prefixes.
const DefaultTimeFormat = "15:04:05"

// Printer formats Output messages as "{time} {name}| {line}" and hands them
// to a Writer. The name column is as wide as the longest service name.
type Printer struct {
	mu         sync.Mutex
	writer     Writer
	timeFormat string
	usePrefix  bool
	width      int
}

func New(w Writer, timeFormat string, usePrefix bool) *Printer {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &Printer{writer: w, timeFormat: timeFormat, usePrefix: usePrefix, width: len(bus.SystemName)}
}

// AdjustWidth widens the name column to fit name.
func (p *Printer) AdjustWidth(name string) {
	p.mu.Lock()
	p.width = max(p.width, len(name))
	p.mu.Unlock()
}

func (p *Printer) Width() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width
}

// Write prints every line of m.Line. Write errors are dropped: the stream
// must keep flowing even when a sink fails.
func (p *Printer) Write(m bus.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := m.Service + strings.Repeat(" ", max(0, p.width-len(m.Service))) + " "
	for _, line := range splitLines(m.Line) {
		if p.usePrefix {
			line = m.Time.Format(p.timeFormat) + " " + name + "| " + line
		}
		_ = p.writer.Write(line, m.Color)
	}
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
