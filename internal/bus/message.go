package bus

import "time"

// SystemName labels messages produced by the orchestrator itself.
const SystemName = "system"

// NoMessages is the text carried by Empty.
const NoMessages = "No messages in queue"

// Kind names a message variant. It is used for logging and metrics labels;
// dispatch is done with a type switch over the concrete variants.
type Kind string

const (
	KindOutput  Kind = "output"
	KindStart   Kind = "start"
	KindStop    Kind = "stop"
	KindRestart Kind = "restart"
	KindEmpty   Kind = "empty"
)

// Meta is the part shared by every message variant.
type Meta struct {
	Service string
	Color   string
	Time    time.Time
}

// Message is the closed set of variants carried on the Bus:
// Output, Start, Stop, Restart and Empty.
type Message interface {
	Header() Meta
	Kind() Kind
	isMessage()
}

// Output carries one line of service or system text.
type Output struct {
	Meta
	Line string
}

// Start reports a successfully spawned child.
type Start struct {
	Meta
	PID int
}

// Stop reports that a child ended. ReturnCode is nil when the process never
// started (spawn failure).
type Stop struct {
	Meta
	ReturnCode *int
}

// Restart asks the scheduler to launch the named service again.
type Restart struct {
	Meta
}

// Empty is returned by Receive when nothing arrived before the deadline.
type Empty struct {
	Meta
	Text string
}

func (m Output) Header() Meta  { return m.Meta }
func (m Start) Header() Meta   { return m.Meta }
func (m Stop) Header() Meta    { return m.Meta }
func (m Restart) Header() Meta { return m.Meta }
func (m Empty) Header() Meta   { return m.Meta }

func (Output) Kind() Kind  { return KindOutput }
func (Start) Kind() Kind   { return KindStart }
func (Stop) Kind() Kind    { return KindStop }
func (Restart) Kind() Kind { return KindRestart }
func (Empty) Kind() Kind   { return KindEmpty }

func (Output) isMessage()  {}
func (Start) isMessage()   {}
func (Stop) isMessage()    {}
func (Restart) isMessage() {}
func (Empty) isMessage()   {}

// NewMeta stamps name and color with the current time.
func NewMeta(name, color string) Meta {
	return Meta{Service: name, Color: color, Time: time.Now()}
}

// Code returns a pointer to c, for building Stop messages.
func Code(c int) *int { return &c }
