package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/loykin/localcompose/internal/bus"
	"github.com/loykin/localcompose/internal/metrics"
	"github.com/loykin/localcompose/internal/process"
)

// ErrDuplicateService is returned when a service name is registered twice.
var ErrDuplicateService = errors.New("duplicate service")

// Exit statuses assigned when the orchestrator itself is signaled.
const (
	ExitInterrupt = 130
	ExitTerminate = 143
)

// Printer renders Output messages. The scheduler calls AdjustWidth once per
// registered service, and Write only with Output messages.
type Printer interface {
	Write(m bus.Output)
	AdjustWidth(name string)
}

// Phase is the scheduler's position in its state machine.
type Phase int

const (
	Running Phase = iota
	Draining
	Killing
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Killing:
		return "killing"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Scheduler runs a set of services until they are all done or shutdown is
// requested, then stops them gracefully and, after the kill wait, forcefully.
// Aggregate state is owned by the goroutine calling Run.
type Scheduler struct {
	opts       options
	printer    Printer
	bus        *bus.Bus
	pool       *Pool
	supervisor *Supervisor

	phase       Phase
	returnCode  *int
	spawnFailed bool
	terminating bool
	drainStart  time.Time
	killed      bool
}

func NewScheduler(printer Printer, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	b := bus.New()
	pool := NewPool()
	return &Scheduler{
		opts:       o,
		printer:    printer,
		bus:        b,
		pool:       pool,
		supervisor: NewSupervisor(pool, b, o.supervisorInterval, o.log),
	}
}

// RegisterService builds the executor for spec. It must be called before Run.
func (s *Scheduler) RegisterService(spec process.Spec) error {
	if _, ok := s.pool.Get(spec.Name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, spec.Name)
	}
	s.pool.Add(NewExecutor(spec, s.opts.os, s.bus, s.opts.log))
	s.printer.AdjustWidth(spec.Name)
	return nil
}

func (s *Scheduler) Pool() *Pool { return s.pool }

func (s *Scheduler) Bus() *bus.Bus { return s.bus }

func (s *Scheduler) Phase() Phase { return s.phase }

// ReturnCode is the first return code reported, nil if none was.
func (s *Scheduler) ReturnCode() *int { return s.returnCode }

// Run starts every service and consumes the bus until the state machine
// terminates. Cancelling ctx requests shutdown like a signal does, without
// assigning an exit status. It returns the orchestrator's exit status.
func (s *Scheduler) Run(ctx context.Context) int {
	sigs := make(chan os.Signal, 2)
	s.opts.signals.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer s.opts.signals.Stop(sigs)

	s.opts.log.Info("starting services", "count", s.pool.Len())
	s.pool.StartAll()
	s.supervisor.Launch(context.WithoutCancel(ctx))
	defer func() {
		s.supervisor.Stop()
		_ = s.supervisor.Wait()
		s.pool.Wait()
	}()

	done := ctx.Done()
	for s.phase != Terminated {
		select {
		case sig := <-sigs:
			s.onSignal(sig)
		case <-done:
			done = nil
			s.opts.log.Info("context cancelled, shutting down")
			s.Terminate()
		default:
		}

		msg := s.bus.Receive(s.opts.pollInterval)
		s.handle(msg)
		s.advance(msg)
	}
	return s.exitCode()
}

func (s *Scheduler) handle(msg bus.Message) {
	switch m := msg.(type) {
	case bus.Output:
		s.printer.Write(m)
	case bus.Start:
		metrics.IncStart(m.Service)
		s.notice("%s started (pid=%d)", m.Service, m.PID)
	case bus.Restart:
		s.restart(m)
	case bus.Stop:
		metrics.IncStop(m.Service)
		if m.ReturnCode == nil {
			s.spawnFailed = true
			s.notice("%s stopped (rc=none)", m.Service)
		} else {
			s.notice("%s stopped (rc=%d)", m.Service, *m.ReturnCode)
			if s.returnCode == nil {
				s.returnCode = bus.Code(*m.ReturnCode)
			}
		}
	case bus.Empty:
		return
	}
	if s.opts.observer != nil {
		s.opts.observer(msg)
	}
}

func (s *Scheduler) restart(m bus.Restart) {
	e, ok := s.pool.Get(m.Service)
	if !ok {
		return
	}
	if s.terminating {
		e.CancelRestart()
		s.notice("%s restart cancelled, shutting down", m.Service)
		return
	}
	metrics.IncRestart(m.Service)
	s.notice("restarting %s", m.Service)
	e.Start()
}

// advance evaluates the state machine after msg was handled.
func (s *Scheduler) advance(msg bus.Message) {
	st := s.pool.Status()
	metrics.SetRunning(st.Running)

	if s.phase == Running {
		// an empty pool has nothing left to run
		finished := st.AllStarted && (st.AnyStopped || s.pool.Len() == 0) && !st.AnyNeedsRestart
		if s.terminating || finished {
			s.drainStart = time.Now()
			s.setPhase(Draining)
			s.Terminate()
		}
	}

	if (s.phase == Draining || s.phase == Killing) && !s.killed && time.Since(s.drainStart) > s.opts.killWait {
		s.Kill()
	}

	if _, empty := msg.(bus.Empty); empty && s.phase != Running {
		if s.bus.Len() == 0 && s.pool.Status().AllStopped {
			s.setPhase(Terminated)
		}
	}
}

// Terminate stops the supervisor and asks every running service to stop.
// Only the first call has an effect.
func (s *Scheduler) Terminate() {
	if s.terminating {
		return
	}
	s.terminating = true
	s.supervisor.Stop()
	s.pool.StopAll(false)
}

// Kill forcefully stops every service that is still running.
func (s *Scheduler) Kill() {
	if s.killed {
		return
	}
	s.killed = true
	s.setPhase(Killing)
	s.notice("kill wait of %s elapsed, killing remaining services", s.opts.killWait)
	s.supervisor.Stop()
	s.pool.StopAll(true)
}

func (s *Scheduler) onSignal(sig os.Signal) {
	code, name := ExitTerminate, "SIGTERM"
	if sig == os.Interrupt {
		code, name = ExitInterrupt, "SIGINT"
	}
	s.notice("%s received", name)
	if s.returnCode == nil {
		s.returnCode = bus.Code(code)
	}
	s.Terminate()
}

func (s *Scheduler) exitCode() int {
	if s.returnCode != nil {
		return *s.returnCode
	}
	if s.spawnFailed {
		return 1
	}
	return 0
}

func (s *Scheduler) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.opts.log.Debug("scheduler phase", "from", s.phase.String(), "to", p.String())
	s.phase = p
}

func (s *Scheduler) notice(format string, args ...any) {
	s.printer.Write(bus.Output{Meta: bus.NewMeta(bus.SystemName, ""), Line: fmt.Sprintf(format, args...)})
}
