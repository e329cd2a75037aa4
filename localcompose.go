// Package localcompose runs a set of local services as child processes,
// multiplexes their output and supervises their lifecycle.
package localcompose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/localcompose/internal/bus"
	cfg "github.com/loykin/localcompose/internal/config"
	"github.com/loykin/localcompose/internal/detector"
	"github.com/loykin/localcompose/internal/history"
	"github.com/loykin/localcompose/internal/history/factory"
	"github.com/loykin/localcompose/internal/manager"
	"github.com/loykin/localcompose/internal/metrics"
	"github.com/loykin/localcompose/internal/printer"
	"github.com/loykin/localcompose/internal/process"
	"github.com/loykin/localcompose/internal/readiness"
	"github.com/loykin/localcompose/internal/server"
	"github.com/loykin/localcompose/internal/storage"
)

// Name and Version identify the tool.
const (
	Name    = "local-compose"
	Version = "0.3.0"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type RetryConfig = readiness.Config

type Config = cfg.Config

type Message = bus.Message

type Output = bus.Output

type Printer = manager.Printer

type Option = manager.Option

type Scheduler = manager.Scheduler

var (
	ErrAlreadyRunning   = storage.ErrAlreadyRunning
	ErrNotRunning       = storage.ErrNotRunning
	ErrNoAPI            = storage.ErrNoAPI
	ErrDuplicateService = manager.ErrDuplicateService
)

var (
	WithKillWait           = manager.WithKillWait
	WithLogger             = manager.WithLogger
	WithObserver           = manager.WithObserver
	WithPollInterval       = manager.WithPollInterval
	WithSupervisorInterval = manager.WithSupervisorInterval
)

func LoadConfig(path, workDir string) (*Config, error) { return cfg.Load(path, workDir) }

// NewScheduler returns a scheduler printing through p.
func NewScheduler(p Printer, opts ...Option) *Scheduler { return manager.NewScheduler(p, opts...) }

// NewPrinter returns the standard line printer; color selects ANSI output.
func NewPrinter(w printer.Writer, timeFormat string, usePrefix bool) *printer.Printer {
	return printer.New(w, timeFormat, usePrefix)
}

// Runner ties a scheduler to the single-instance storage of its config file.
type Runner struct {
	storage   *storage.Storage
	scheduler *Scheduler
	apiAddr   string
	alive     func(d detector.Detector) bool
}

// NewRunner returns a runner; scheduler may be nil for Down.
func NewRunner(workDir, file string, scheduler *Scheduler) (*Runner, error) {
	st, err := storage.New(workDir, file)
	if err != nil {
		return nil, err
	}
	return &Runner{storage: st, scheduler: scheduler, alive: detectAlive}, nil
}

func detectAlive(d detector.Detector) bool {
	ok, err := d.Alive()
	return err == nil && ok
}

func (r *Runner) Storage() *storage.Storage { return r.storage }

// WithAPIAddr makes Up record the control API address for clients.
func (r *Runner) WithAPIAddr(addr string) *Runner {
	r.apiAddr = addr
	return r
}

// APIAddr returns the control API address of the running instance.
func (r *Runner) APIAddr() (string, error) {
	d, err := r.storage.Process()
	if err != nil {
		return "", err
	}
	if !r.alive(d) {
		return "", storage.ErrNotRunning
	}
	return r.storage.ReadAddr()
}

// CheckCanStart fails when another orchestrator is running for the same
// configuration file.
func (r *Runner) CheckCanStart() error {
	d, err := r.storage.Process()
	if errors.Is(err, storage.ErrNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	if d.PID != os.Getpid() && r.alive(d) {
		return fmt.Errorf("%w (pid=%d)", storage.ErrAlreadyRunning, d.PID)
	}
	return nil
}

// Up holds the instance lock while the scheduler runs and returns its exit
// status. The runtime directory is removed afterwards.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if r.scheduler == nil {
		return 1, errors.New("runner has no scheduler")
	}
	if err := r.CheckCanStart(); err != nil {
		return 1, err
	}
	if err := r.storage.Lock(); err != nil {
		return 1, err
	}
	defer func() { _ = r.storage.Clean() }()
	if err := r.storage.WritePID(os.Getpid()); err != nil {
		return 1, err
	}
	if r.apiAddr != "" {
		if err := r.storage.WriteAddr(r.apiAddr); err != nil {
			return 1, err
		}
	}
	return r.scheduler.Run(ctx), nil
}

// Down asks the running orchestrator to shut down with SIGTERM.
func (r *Runner) Down() error {
	d, err := r.storage.Process()
	if err != nil {
		return err
	}
	if !r.alive(d) {
		_ = r.storage.Clean()
		return storage.ErrNotRunning
	}
	p, err := os.FindProcess(d.PID)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns an HTTP server exposing /metrics on addr.
func NewMetricsServer(addr string) *http.Server { return metrics.NewServer(addr) }

// APIServer serves the control API of one scheduler.
type APIServer = server.Server

// NewAPIServer returns a control API server on addr for s. shutdown is
// called when a client asks the whole instance to stop.
func NewAPIServer(addr string, s *Scheduler, shutdown func(), log *slog.Logger) *APIServer {
	return server.NewServer(addr, server.NewRouter(s.Pool(), shutdown, ""), log)
}

// HistoryRecorder forwards lifecycle events to a history sink.
type HistoryRecorder = history.Recorder

// NewHistoryRecorder opens the sink named by dsn. Install its Observe method
// with WithObserver and Close it after the run.
func NewHistoryRecorder(dsn string, log *slog.Logger) (*HistoryRecorder, error) {
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	return history.NewRecorder(sink, log), nil
}
