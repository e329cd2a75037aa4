package manager

import (
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/loykin/localcompose/internal/bus"
	"github.com/loykin/localcompose/internal/process"
)

const (
	// DefaultKillWait is the grace period between graceful and forceful stop.
	DefaultKillWait = 5 * time.Second
	// DefaultPollInterval bounds each bus receive of the scheduler loop.
	DefaultPollInterval = 100 * time.Millisecond
)

// SignalNotify installs and removes a signal subscription; signal.Notify and
// signal.Stop satisfy it.
type SignalNotify struct {
	Notify func(c chan<- os.Signal, sig ...os.Signal)
	Stop   func(c chan<- os.Signal)
}

type options struct {
	killWait           time.Duration
	os                 process.OS
	pollInterval       time.Duration
	supervisorInterval time.Duration
	log                *slog.Logger
	observer           func(bus.Message)
	signals            SignalNotify
}

func defaultOptions() options {
	return options{
		killWait:           DefaultKillWait,
		os:                 process.System{},
		pollInterval:       DefaultPollInterval,
		supervisorInterval: DefaultSupervisorInterval,
		log:                slog.New(slog.DiscardHandler),
		signals:            SignalNotify{Notify: signal.Notify, Stop: signal.Stop},
	}
}

// Option configures a Scheduler.
type Option func(*options)

func WithKillWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.killWait = d
		}
	}
}

// WithOS substitutes the process capability, typically with a fake in tests.
func WithOS(osys process.OS) Option {
	return func(o *options) {
		if osys != nil {
			o.os = osys
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithSupervisorInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.supervisorInterval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithObserver registers fn to see every non-Empty message the loop handles,
// after it was handled.
func WithObserver(fn func(bus.Message)) Option {
	return func(o *options) { o.observer = fn }
}

func WithSignalNotify(n SignalNotify) Option {
	return func(o *options) {
		if n.Notify != nil && n.Stop != nil {
			o.signals = n
		}
	}
}
