// Package process spawns and signals service child processes.
package process

import "io"

// Child is a spawned service process.
type Child interface {
	PID() int
	// Output is the combined stdout and stderr stream; it reaches EOF when
	// the child and everything holding its descriptors has exited.
	Output() io.Reader
	// Wait blocks until the child exits and returns its exit status:
	// the exit code, or 128+N when it was killed by signal N.
	Wait() int
}

// OS is the process capability used by executors. Terminate and Kill address
// the child's whole process group and are no-ops for a missing target.
type OS interface {
	Spawn(spec Spec) (Child, error)
	Terminate(pid int) error
	Kill(pid int) error
}
