package process

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/loykin/localcompose/internal/readiness"
)

// ErrEmptyCommand is returned by Argv when a spec has nothing to run.
var ErrEmptyCommand = errors.New("empty command")

// Spec describes one service to run. It is immutable once built by the
// configuration loader: env is fully resolved and Dir is absolute.
type Spec struct {
	Name      string            `json:"name"`
	Command   string            `json:"command"`         // command line; split into words unless Shell is set
	Args      []string          `json:"args,omitempty"`  // explicit argv, takes precedence over Command
	Dir       string            `json:"dir"`             // absolute working directory
	Env       map[string]string `json:"env,omitempty"`   // complete child environment
	Shell     bool              `json:"shell"`           // run Command through /bin/sh -c
	Quiet     bool              `json:"quiet"`           // do not forward output lines
	Color     string            `json:"color,omitempty"` // display color, validated upstream
	Readiness *readiness.Config `json:"readiness,omitempty"`
}

// Argv returns the argument vector used to spawn the service.
func (s Spec) Argv() ([]string, error) {
	if len(s.Args) > 0 {
		if s.Shell {
			return []string{"/bin/sh", "-c", strings.Join(s.Args, " ")}, nil
		}
		return append([]string(nil), s.Args...), nil
	}
	cmd := strings.TrimSpace(s.Command)
	if cmd == "" {
		return nil, ErrEmptyCommand
	}
	if s.Shell {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		return []string{"/bin/sh", "-c", cmd}, nil
	}
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("split command %q: %w", cmd, err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

// Environ renders Env as a sorted "K=V" list. A nil result means the child
// inherits the orchestrator's environment.
func (s Spec) Environ() []string {
	if s.Env == nil {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// DisplayCommand is the command as shown in notices.
func (s Spec) DisplayCommand() string {
	if len(s.Args) > 0 {
		return strings.Join(s.Args, " ")
	}
	return s.Command
}
