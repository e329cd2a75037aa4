package manager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/loykin/localcompose/internal/bus"
	"github.com/loykin/localcompose/internal/metrics"
	"github.com/loykin/localcompose/internal/process"
	"github.com/loykin/localcompose/internal/readiness"
)

// maxLine bounds a single output line; longer lines are split.
const maxLine = 1 << 20

// Executor owns one service's child process. Each run is driven by its own
// goroutine, which is the only writer of the run's pid and return code.
type Executor struct {
	spec   process.Spec
	os     process.OS
	bus    *bus.Bus
	policy *readiness.Policy
	log    *slog.Logger

	mu      sync.Mutex
	pid     *int
	rc      *int
	failed  bool // last spawn failed
	running bool // run goroutine active
	pending *bool
	runs    int
	prev    *runState // last run, kept while a restart is pending
	wg      sync.WaitGroup
}

type runState struct {
	pid    *int
	rc     *int
	failed bool
}

// State is a consistent view of one executor.
type State struct {
	Started      bool // spawned, or spawn failed
	Stopped      bool // exited, or spawn failed
	NeedsRestart bool
	PID          *int
	ReturnCode   *int
}

func NewExecutor(spec process.Spec, osys process.OS, b *bus.Bus, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		spec:   spec,
		os:     osys,
		bus:    b,
		policy: readiness.New(spec.Readiness),
		log:    log.With("service", spec.Name),
	}
}

func (e *Executor) Name() string { return e.spec.Name }

func (e *Executor) Spec() process.Spec { return e.spec }

func (e *Executor) Policy() *readiness.Policy { return e.policy }

// Start launches a new run in the background. It is ignored while a run is
// still in progress.
func (e *Executor) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Debug("start ignored, run in progress")
		return
	}
	e.running = true
	e.pid, e.rc, e.failed = nil, nil, false
	e.pending = nil
	e.prev = nil
	e.runs++
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run()
}

func (e *Executor) run() {
	defer e.wg.Done()

	child, err := e.os.Spawn(e.spec)
	if err != nil {
		e.log.Warn("spawn failed", "err", err)
		metrics.IncSpawnFailure(e.spec.Name)
		e.mu.Lock()
		e.failed = true
		e.running = false
		e.mu.Unlock()
		e.bus.SendSystem(fmt.Sprintf("%s failed to start: %v", e.spec.Name, err))
		e.bus.Send(bus.Stop{Meta: e.meta()})
		return
	}

	pid := child.PID()
	e.mu.Lock()
	e.pid = &pid
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	e.bus.Send(bus.Start{Meta: e.meta(), PID: pid})
	if pending != nil {
		// stop was requested before the spawn completed
		e.stopPID(pid, *pending)
	}

	e.stream(child.Output())
	rc := child.Wait()

	e.mu.Lock()
	e.rc = &rc
	e.running = false
	e.mu.Unlock()
	e.bus.Send(bus.Stop{Meta: e.meta(), ReturnCode: bus.Code(rc)})
}

func (e *Executor) stream(r io.Reader) {
	lr := newLineReader(r, 64*1024, maxLine)
	for {
		line, err := lr.next()
		if len(line) > 0 || err == nil {
			if !e.spec.Quiet {
				e.bus.Send(bus.Output{Meta: e.meta(), Line: strings.ToValidUTF8(line, "\uFFFD")})
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.log.Debug("output stream closed", "err", err)
			}
			return
		}
	}
}

// lineReader splits output into lines without their terminators. A line
// reaching max bytes is cut at a rune boundary and the incomplete rune is
// carried into the next piece.
type lineReader struct {
	br    *bufio.Reader
	max   int
	carry []byte
}

func newLineReader(r io.Reader, size, max int) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, size), max: max}
}

// next returns one line. A final unterminated line is returned together
// with io.EOF.
func (l *lineReader) next() (string, error) {
	buf := l.carry
	l.carry = nil
	for {
		frag, isPrefix, err := l.br.ReadLine()
		buf = append(buf, frag...)
		if err != nil {
			return string(buf), err
		}
		if !isPrefix {
			return string(buf), nil
		}
		if len(buf) >= l.max {
			cut := runeCut(buf)
			l.carry = append([]byte(nil), buf[cut:]...)
			return string(buf[:cut]), nil
		}
	}
}

// runeCut returns the length of b without a trailing incomplete rune.
func runeCut(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Stop asks the running child to end, gracefully with SIGTERM or forcefully
// with SIGKILL, addressed to its process group.
func (e *Executor) Stop(force bool) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	if e.pid == nil {
		f := force
		if e.pending != nil && *e.pending {
			f = true
		}
		e.pending = &f
		e.mu.Unlock()
		return
	}
	pid := *e.pid
	e.mu.Unlock()
	e.stopPID(pid, force)
}

func (e *Executor) stopPID(pid int, force bool) {
	how := "gracefully"
	if force {
		how = "forcefully"
	}
	e.bus.SendSystem(fmt.Sprintf("stopping service %s (pid=%d) %s", e.spec.Name, pid, how))
	var err error
	if force {
		metrics.IncKill(e.spec.Name)
		err = e.os.Kill(pid)
	} else {
		err = e.os.Terminate(pid)
	}
	if err != nil {
		e.log.Warn("signal failed", "pid", pid, "force", force, "err", err)
	}
}

// NeedsRestart evaluates the readiness policy against the last run.
func (e *Executor) NeedsRestart() bool {
	return e.State().NeedsRestart
}

// Reset consumes a restart attempt and clears the last run so the executor
// no longer counts as stopped. After exhaustion it only clears the run.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Executor) reset() {
	if e.running {
		return
	}
	_ = e.policy.Reset()
	e.prev = &runState{pid: e.pid, rc: e.rc, failed: e.failed}
	e.pid, e.rc, e.failed = nil, nil, false
}

// prepareRestart atomically checks the policy and resets the executor when a
// restart is due, returning the wait before the restart.
func (e *Executor) prepareRestart() (readiness.Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.decide()
	if !d.Restart {
		return d, false
	}
	e.reset()
	return d, true
}

// CancelRestart restores the run cleared by Reset, so an executor whose
// restart was abandoned counts as stopped again.
func (e *Executor) CancelRestart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.prev == nil {
		return
	}
	e.pid, e.rc, e.failed = e.prev.pid, e.prev.rc, e.prev.failed
	e.prev = nil
}

// State returns a consistent snapshot of the executor.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Started:      e.pid != nil || e.failed,
		Stopped:      e.rc != nil || e.failed,
		NeedsRestart: e.decide().Restart,
		PID:          e.pid,
		ReturnCode:   e.rc,
	}
}

// Runs reports how many times the executor has been started.
func (e *Executor) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// Wait blocks until no run goroutine is active.
func (e *Executor) Wait() { e.wg.Wait() }

func (e *Executor) decide() readiness.Decision {
	exited := !e.running && (e.rc != nil || e.failed)
	return e.policy.Decide(exited, e.rc)
}

func (e *Executor) meta() bus.Meta { return bus.NewMeta(e.spec.Name, e.spec.Color) }
