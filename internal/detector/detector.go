// Package detector decides whether a recorded process is still the one that
// was recorded, guarding against PID reuse with the process start time.
package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loykin/localcompose/internal/process"
)

// ErrNoPIDFile is returned by ReadPIDFile when the file does not exist.
var ErrNoPIDFile = errors.New("pid file does not exist")

// Detector is a strategy that determines if a process is running.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

func pidAlive(pid int) bool { return process.System{}.Alive(pid) }

// StartUnix returns the start time of pid in Unix seconds, 0 when unknown.
func StartUnix(pid int) int64 { return getProcStartUnix(pid) }

// PIDDetector detects a process by PID. When StartUnix is set, a live
// process with a different start time is a reused PID and not detected.
type PIDDetector struct {
	PID       int
	StartUnix int64
}

func (d PIDDetector) Alive() (bool, error) {
	if d.StartUnix > 0 {
		cur := getProcStartUnix(d.PID)
		if cur > 0 && cur != d.StartUnix {
			return false, nil
		}
	}
	return pidAlive(d.PID), nil
}

func (d PIDDetector) Describe() string { return fmt.Sprintf("pid:%d", d.PID) }

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// WritePIDFile records pid and its start time: the PID on the first line
// and a JSON meta object on the second.
func WritePIDFile(path string, pid int) error {
	mb, err := json.Marshal(pidMeta{StartUnix: getProcStartUnix(pid)})
	if err != nil {
		return err
	}
	content := strconv.Itoa(pid) + "\n" + string(mb) + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}

// ReadPIDFile parses a file written by WritePIDFile. A file holding only a
// PID is accepted.
func ReadPIDFile(path string) (PIDDetector, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return PIDDetector{}, ErrNoPIDFile
		}
		return PIDDetector{}, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return PIDDetector{}, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	d := PIDDetector{PID: pid}
	if len(lines) >= 2 {
		var m pidMeta
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m); err == nil {
			d.StartUnix = m.StartUnix
		}
	}
	return d, nil
}

// PIDFileDetector detects a process via a PID file.
type PIDFileDetector struct {
	PIDFile string
}

func (d PIDFileDetector) Alive() (bool, error) {
	pd, err := ReadPIDFile(d.PIDFile)
	if errors.Is(err, ErrNoPIDFile) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pd.Alive()
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }
