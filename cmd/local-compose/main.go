package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// exitError carries a process exit status out of a command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	// The scheduler handles SIGINT and SIGTERM itself; SIGHUP cancels the run.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP)
	root := buildRoot()
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	root := createRootCommand()
	root.AddCommand(
		createUpCommand(&UpFlags{}),
		createDownCommand(&DownFlags{}),
		createPsCommand(&PsFlags{}),
		createVersionCommand(),
		createColorsCommand(),
		createExampleCommand(),
	)
	return root
}

// createRootCommand creates the root command
func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "local-compose",
		Short: "Run a set of local services together",
		Long: `local-compose starts every service of a configuration file as a child
process, prints their output with a labeled prefix and stops them all
when one of them finishes or when it is interrupted.

Examples:
  local-compose up                      # run local-compose.yaml in the foreground
  local-compose up -f dev.yaml -d       # run detached
  local-compose ps -f dev.yaml          # show its services (needs --api-addr)
  local-compose down -f dev.yaml        # stop the detached instance`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
