package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/localcompose"
	"github.com/loykin/localcompose/internal/printer"
)

// This example loads a local-compose.yaml file and runs its services in the
// foreground through the public localcompose facade.
func main() {
	workDir := "."
	if len(os.Args) > 1 {
		workDir = os.Args[1]
	}
	cfgPath := filepath.Join(workDir, "local-compose.yaml")
	cfg, err := localcompose.LoadConfig(cfgPath, workDir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p := localcompose.NewPrinter(printer.NewPlainWriter(os.Stdout), cfg.Global.TimeFormat, cfg.Global.UsePrefix)
	sched := localcompose.NewScheduler(p, localcompose.WithKillWait(cfg.Global.KillWait))
	for _, spec := range cfg.Services {
		if err := sched.RegisterService(spec); err != nil {
			panic(err)
		}
	}

	runner, err := localcompose.NewRunner(workDir, "local-compose.yaml", sched)
	if err != nil {
		panic(err)
	}
	code, err := runner.Up(context.Background())
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}
