package manager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/localcompose/internal/bus"
	"github.com/loykin/localcompose/internal/process"
)

// script describes how a fake child behaves on one run.
type script struct {
	lines      []string
	exit       *int // exit on its own with this code; nil runs until signaled
	ignoreTerm bool
	termExit   *int // exit code on SIGTERM, 143 when nil
	spawnErr   error
	spawnGate  chan struct{} // Spawn blocks until closed
}

// fakeOS scripts children per service name and run number (0-based); the
// last script of a service repeats.
type fakeOS struct {
	mu       sync.Mutex
	nextPID  int
	scripts  map[string][]script
	runs     map[string]int
	children map[int]*fakeChild
	terms    map[string]int
	kills    map[string]int
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		nextPID:  1000,
		scripts:  map[string][]script{},
		runs:     map[string]int{},
		children: map[int]*fakeChild{},
		terms:    map[string]int{},
		kills:    map[string]int{},
	}
}

func (f *fakeOS) script(name string, s ...script) *fakeOS {
	f.mu.Lock()
	f.scripts[name] = s
	f.mu.Unlock()
	return f
}

func (f *fakeOS) Spawn(spec process.Spec) (process.Child, error) {
	f.mu.Lock()
	ss := f.scripts[spec.Name]
	n := f.runs[spec.Name]
	f.runs[spec.Name]++
	var sc script
	if len(ss) > 0 {
		sc = ss[min(n, len(ss)-1)]
	}
	f.mu.Unlock()

	if sc.spawnGate != nil {
		<-sc.spawnGate
	}
	if sc.spawnErr != nil {
		return nil, sc.spawnErr
	}

	f.mu.Lock()
	f.nextPID++
	r, w := io.Pipe()
	c := &fakeChild{name: spec.Name, pid: f.nextPID, sc: sc, r: r, w: w, done: make(chan struct{})}
	f.children[c.pid] = c
	f.mu.Unlock()

	go c.play()
	return c, nil
}

func (f *fakeOS) Terminate(pid int) error {
	c := f.child(pid)
	if c == nil {
		return nil
	}
	f.mu.Lock()
	f.terms[c.name]++
	f.mu.Unlock()
	if !c.sc.ignoreTerm {
		rc := 128 + int(syscall.SIGTERM)
		if c.sc.termExit != nil {
			rc = *c.sc.termExit
		}
		c.finish(rc)
	}
	return nil
}

func (f *fakeOS) Kill(pid int) error {
	c := f.child(pid)
	if c == nil {
		return nil
	}
	f.mu.Lock()
	f.kills[c.name]++
	f.mu.Unlock()
	c.finish(128 + int(syscall.SIGKILL))
	return nil
}

// crash ends the named service's latest child from outside, as if another
// process had killed it.
func (f *fakeOS) crash(name string, code int) bool {
	f.mu.Lock()
	var latest *fakeChild
	for _, c := range f.children {
		if c.name == name && (latest == nil || c.pid > latest.pid) {
			latest = c
		}
	}
	f.mu.Unlock()
	if latest == nil {
		return false
	}
	latest.finish(code)
	return true
}

func (f *fakeOS) child(pid int) *fakeChild {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.children[pid]
}

func (f *fakeOS) counts(name string) (runs, terms, kills int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[name], f.terms[name], f.kills[name]
}

type fakeChild struct {
	name string
	pid  int
	sc   script
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
	done chan struct{}
	rc   int
}

func (c *fakeChild) PID() int { return c.pid }

func (c *fakeChild) Output() io.Reader { return c.r }

func (c *fakeChild) Wait() int {
	<-c.done
	return c.rc
}

func (c *fakeChild) play() {
	for _, l := range c.sc.lines {
		if _, err := io.WriteString(c.w, l+"\n"); err != nil {
			return
		}
	}
	if c.sc.exit != nil {
		c.finish(*c.sc.exit)
	}
}

func (c *fakeChild) finish(rc int) {
	c.once.Do(func() {
		c.rc = rc
		_ = c.w.Close()
		close(c.done)
	})
}

func code(c int) *int { return &c }

var errNotFound = errors.New("executable file not found in $PATH")

// recorder is a Printer that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	lines  []bus.Output
	widths []string
}

func (r *recorder) Write(m bus.Output) {
	r.mu.Lock()
	r.lines = append(r.lines, m)
	r.mu.Unlock()
}

func (r *recorder) AdjustWidth(name string) {
	r.mu.Lock()
	r.widths = append(r.widths, name)
	r.mu.Unlock()
}

func (r *recorder) text() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, fmt.Sprintf("%s|%s", l.Service, l.Line))
	}
	return out
}

// fakeSignals replaces signal.Notify so tests can deliver signals.
type fakeSignals struct {
	mu sync.Mutex
	ch chan<- os.Signal
}

func (f *fakeSignals) notify() SignalNotify {
	return SignalNotify{
		Notify: func(c chan<- os.Signal, _ ...os.Signal) {
			f.mu.Lock()
			f.ch = c
			f.mu.Unlock()
		},
		Stop: func(chan<- os.Signal) {
			f.mu.Lock()
			f.ch = nil
			f.mu.Unlock()
		},
	}
}

// send delivers sig once Run has subscribed. It reports false when nobody
// is subscribed within a second.
func (f *fakeSignals) send(sig os.Signal) bool {
	for i := 0; i < 500; i++ {
		f.mu.Lock()
		ch := f.ch
		f.mu.Unlock()
		if ch != nil {
			select {
			case ch <- sig:
			default:
			}
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

// messageLog collects observed messages.
type messageLog struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (l *messageLog) observe(m bus.Message) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

// lifecycle returns the non-Output messages as "kind:service[:payload]".
func (l *messageLog) lifecycle() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.msgs {
		switch m := m.(type) {
		case bus.Start:
			out = append(out, "start:"+m.Service)
		case bus.Stop:
			if m.ReturnCode == nil {
				out = append(out, "stop:"+m.Service+":none")
			} else {
				out = append(out, fmt.Sprintf("stop:%s:%d", m.Service, *m.ReturnCode))
			}
		case bus.Restart:
			out = append(out, "restart:"+m.Service)
		}
	}
	return out
}

func (l *messageLog) outputs(service string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.msgs {
		if o, ok := m.(bus.Output); ok && o.Service == service {
			out = append(out, o.Line)
		}
	}
	return out
}
