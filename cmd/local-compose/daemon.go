package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// detachedArgs returns args without the detached flag.
func detachedArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == "-d", arg == "--detached":
			continue
		case strings.HasPrefix(arg, "--detached="):
			continue
		}
		out = append(out, arg)
	}
	return out
}

// daemonize restarts the current executable with args, minus the detached
// flag, in a new session and returns its pid.
func daemonize(args []string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}
	// #nosec G204
	cmd := exec.Command(executable, detachedArgs(args)...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
