// Package history exports service lifecycle events to external systems
// for later analysis.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/localcompose/internal/bus"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	ReturnCode *int      `json:"return_code,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// FromMessage converts a bus message into an event. pid is the last known
// PID of the service; ok is false for messages that are not lifecycle events.
func FromMessage(m bus.Message, pid int) (Event, bool) {
	h := m.Header()
	e := Event{OccurredAt: h.Time.UTC(), Service: h.Service, PID: pid}
	switch v := m.(type) {
	case bus.Start:
		e.Type = EventStart
		e.PID = v.PID
	case bus.Stop:
		e.Type = EventStop
		e.ReturnCode = v.ReturnCode
	case bus.Restart:
		e.Type = EventRestart
	default:
		return Event{}, false
	}
	return e, true
}

// DefaultBuffer is the number of events a Recorder queues before dropping.
const DefaultBuffer = 256

// Recorder forwards lifecycle messages to a sink from its own goroutine so
// a slow sink never blocks the caller. Events that do not fit in the buffer
// are dropped and logged.
type Recorder struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration
	events  chan Event
	pids    map[string]int
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	errs   []error
}

func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		sink:    sink,
		log:     log,
		timeout: 5 * time.Second,
		events:  make(chan Event, DefaultBuffer),
		pids:    make(map[string]int),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe is meant to be installed as a scheduler observer. It must be
// called from a single goroutine.
func (r *Recorder) Observe(m bus.Message) {
	e, ok := FromMessage(m, r.pids[m.Header().Service])
	if !ok {
		return
	}
	if e.Type == EventStart {
		r.pids[e.Service] = e.PID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- e:
	default:
		r.log.Warn("history buffer full, event dropped", "service", e.Service, "event", e.Type)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Send(ctx, e); err != nil {
			r.log.Error("history send failed", "service", e.Service, "event", e.Type, "error", err)
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}
		cancel()
	}
}

// Close flushes queued events and closes the sink when it is an io.Closer.
// It returns the send errors joined with the close error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done

	r.mu.Lock()
	errs := append([]error(nil), r.errs...)
	r.mu.Unlock()
	if c, ok := r.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
