package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// System is the OS implementation backed by the host kernel.
type System struct{}

var _ OS = System{}

// Spawn starts the service in its own process group with stderr merged into
// stdout. Keeping the child out of the orchestrator's group means a terminal
// interrupt only reaches the orchestrator; children end through Terminate/Kill.
func (System) Spawn(spec Spec) (Child, error) {
	argv, err := spec.Argv()
	if err != nil {
		return nil, err
	}
	// #nosec G204
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Environ()
	configureSysProcAttr(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// the child holds its own copy now
	_ = w.Close()
	return &child{cmd: cmd, out: r}, nil
}

func (System) Terminate(pid int) error { return signalGroup(pid, false) }

func (System) Kill(pid int) error { return signalGroup(pid, true) }

// Alive reports whether a process with pid exists.
func (System) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid)) // #nosec G115
	return err == nil && ok
}

// PidsByName returns the pids of processes whose command line contains name.
func (System) PidsByName(ctx context.Context, name string) ([]int, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid()) // #nosec G115
	var pids []int
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cl, err := p.CmdlineWithContext(ctx)
		if err != nil || cl == "" {
			continue
		}
		if strings.Contains(cl, name) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

type child struct {
	cmd *exec.Cmd
	out *os.File
}

func (c *child) PID() int { return c.cmd.Process.Pid }

func (c *child) Output() io.Reader { return c.out }

func (c *child) Wait() int {
	_ = c.cmd.Wait()
	_ = c.out.Close()
	return exitStatus(c.cmd.ProcessState)
}
