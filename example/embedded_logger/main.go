package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/localcompose"
)

// slogPrinter sends every service line to a structured logger instead of a
// terminal.
type slogPrinter struct{ log *slog.Logger }

func (p slogPrinter) Write(m localcompose.Output) {
	p.log.Info(m.Line, "service", m.Service, "time", m.Time.Format(time.RFC3339Nano))
}

func (slogPrinter) AdjustWidth(string) {}

// embedded_logger: run two services without a configuration file and collect
// their output as JSON log records. The short job ends the run, and the
// long-running one is stopped gracefully.
func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	attempts := 2
	wait := 200 * time.Millisecond

	sched := localcompose.NewScheduler(slogPrinter{log: log},
		localcompose.WithKillWait(2*time.Second),
		localcompose.WithLogger(log),
	)
	specs := []localcompose.Spec{
		{
			Name:    "ticker",
			Command: "sh -c 'while true; do date; sleep 0.3; done'",
		},
		{
			Name:      "job",
			Command:   "sh -c 'echo hello-out; echo hello-err 1>&2; sleep 1; exit 1'",
			Readiness: &localcompose.RetryConfig{Attempts: &attempts, Wait: &wait},
		},
	}
	for _, s := range specs {
		if err := sched.RegisterService(s); err != nil {
			panic(err)
		}
	}
	os.Exit(sched.Run(context.Background()))
}
