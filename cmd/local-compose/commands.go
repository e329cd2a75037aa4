package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/loykin/localcompose"
	"github.com/loykin/localcompose/internal/config"
	"github.com/loykin/localcompose/internal/logger"
	"github.com/loykin/localcompose/internal/printer"
	"github.com/loykin/localcompose/pkg/client"
)

// createUpCommand creates the up subcommand
func createUpCommand(flags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start all services",
		Long: `Start every service of the configuration file and stream their output.
Returns when the services are done or after SIGINT/SIGTERM.

Examples:
  local-compose up
  local-compose up -f services.yaml -w ./project --color never
  local-compose up -d --metrics-addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Detached {
				return cmdDetach(cmd.OutOrStdout(), *flags)
			}
			code, err := cmdUp(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *flags)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	addFileFlags(cmd, &flags.FileFlags)
	cmd.Flags().BoolVarP(&flags.Detached, "detached", "d", false, "run in the background")
	cmd.Flags().StringVar(&flags.Color, "color", "auto", "colorize output: auto, always or never")
	cmd.Flags().Float64Var(&flags.KillWait, "kill-wait", 0, "seconds before remaining services are killed (overrides global.kill-wait)")
	cmd.Flags().StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&flags.APIAddr, "api-addr", "", "serve the control API (status, stop, metrics) on this address")
	cmd.Flags().StringVar(&flags.History, "history", "", "record lifecycle events to this DSN (overrides global.history)")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "warn", "diagnostics level: debug, info, warn or error")
	return cmd
}

// createDownCommand creates the down subcommand
func createDownCommand(flags *DownFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop a detached instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdDown(cmd.OutOrStdout(), *flags)
		},
	}
	addFileFlags(cmd, &flags.FileFlags)
	return cmd
}

// createPsCommand creates the ps subcommand
func createPsCommand(flags *PsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "Show the services of a running instance",
		Long: `Show the state of every service of an instance started with --api-addr.

Examples:
  local-compose up -d --api-addr 127.0.0.1:7070
  local-compose ps`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdPs(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	addFileFlags(cmd, &flags.FileFlags)
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), localcompose.Version)
		},
	}
}

func createColorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "colors",
		Short: "List the service colors",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, c := range printer.Palette {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), c)
			}
		},
	}
}

func createExampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an annotated configuration file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), config.Example)
		},
	}
}

// useColor resolves the --color mode; auto colors only terminals.
func useColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil // #nosec G115
	}
	return false, fmt.Errorf("invalid --color %q: want auto, always or never", mode)
}

func newPrinter(out io.Writer, color bool, c *config.Config) (*printer.Printer, io.Closer, error) {
	var w printer.Writer = printer.NewPlainWriter(out)
	if color {
		w = printer.NewColorWriter(out)
	}
	var closer io.Closer
	if c.Global.Log.Path != "" {
		fw, err := printer.NewFileWriter(c.Global.Log)
		if err != nil {
			return nil, nil, err
		}
		w = printer.MultiWriter{w, fw}
		closer = fw
	}
	return printer.New(w, c.Global.TimeFormat, c.Global.UsePrefix), closer, nil
}

// cmdUp runs the configuration in the foreground and returns its exit status.
func cmdUp(ctx context.Context, out, errOut io.Writer, f UpFlags) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	level, err := logger.ParseLevel(f.LogLevel)
	if err != nil {
		return 1, err
	}
	color, err := useColor(f.Color, out)
	if err != nil {
		return 1, err
	}
	errColor, _ := useColor(f.Color, errOut)
	log := logger.New(errOut, level, errColor)

	c, err := config.Load(f.Path(), f.WorkDir)
	if err != nil {
		return 1, err
	}
	log.Info("configuration loaded", "path", c.Path, "services", len(c.Services))

	p, closer, err := newPrinter(out, color, c)
	if err != nil {
		return 1, err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	killWait := c.Global.KillWait
	if f.KillWait > 0 {
		killWait = time.Duration(f.KillWait * float64(time.Second))
	}
	opts := []localcompose.Option{
		localcompose.WithKillWait(killWait),
		localcompose.WithLogger(log),
	}
	dsn := c.Global.History
	if f.History != "" {
		dsn = f.History
	}
	if dsn != "" {
		rec, err := localcompose.NewHistoryRecorder(dsn, log)
		if err != nil {
			return 1, fmt.Errorf("history: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn("history", "error", err)
			}
		}()
		opts = append(opts, localcompose.WithObserver(rec.Observe))
	}
	sched := localcompose.NewScheduler(p, opts...)
	for _, spec := range c.Services {
		if err := sched.RegisterService(spec); err != nil {
			return 1, err
		}
	}

	runner, err := localcompose.NewRunner(f.WorkDir, f.File, sched)
	if err != nil {
		return 1, err
	}
	if f.MetricsAddr != "" || f.APIAddr != "" {
		if err := localcompose.RegisterMetricsDefault(); err != nil {
			return 1, err
		}
	}
	if f.MetricsAddr != "" {
		defer serveMetrics(f.MetricsAddr, log)()
	}
	if f.APIAddr != "" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		api := localcompose.NewAPIServer(f.APIAddr, sched, cancel, log)
		api.Start()
		defer func() { _ = api.Shutdown() }()
		log.Info("api listening", "addr", f.APIAddr)
		runner.WithAPIAddr(f.APIAddr)
	}
	return runner.Up(ctx)
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(addr string, log *slog.Logger) func() {
	srv := localcompose.NewMetricsServer(addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// cmdDetach checks that no instance is running and restarts the command in
// the background.
func cmdDetach(out io.Writer, f UpFlags) error {
	if _, err := config.Load(f.Path(), f.WorkDir); err != nil {
		return err
	}
	runner, err := localcompose.NewRunner(f.WorkDir, f.File, nil)
	if err != nil {
		return err
	}
	if err := runner.CheckCanStart(); err != nil {
		return err
	}
	pid, err := daemonize(os.Args[1:])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Started local-compose with pid = %d\n", pid)
	return nil
}

func cmdDown(out io.Writer, f DownFlags) error {
	runner, err := localcompose.NewRunner(f.WorkDir, f.File, nil)
	if err != nil {
		return err
	}
	if err := runner.Down(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Stopped local-compose")
	return nil
}

func cmdPs(ctx context.Context, out io.Writer, f PsFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runner, err := localcompose.NewRunner(f.WorkDir, f.File, nil)
	if err != nil {
		return err
	}
	addr, err := runner.APIAddr()
	if err != nil {
		return err
	}
	c := client.New(client.Config{BaseURL: addr, Timeout: f.Timeout})
	sts, err := c.Status(ctx)
	if err != nil {
		return err
	}
	printStatuses(out, sts)
	return nil
}

func printStatuses(out io.Writer, sts []client.ServiceStatus) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPID\tRC\tRUNS\tRESTARTS")
	for _, s := range sts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.Name, s.State(), optInt(s.PID), optInt(s.ReturnCode), s.Runs, s.Restarts)
	}
	_ = w.Flush()
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
