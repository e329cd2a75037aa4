// Package storage keeps the per-configuration runtime directory holding the
// orchestrator PID file, control API address and single-instance lock.
package storage

import (
	"crypto/md5" // #nosec G501 -- used as a directory name, not for security
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/loykin/localcompose/internal/detector"
)

const (
	appDir   = "local-compose"
	pidFile  = "pid"
	lockFile = "lock"
	apiFile  = "api"
)

var (
	ErrAlreadyRunning = errors.New("local-compose is already running for this configuration")
	ErrNotRunning     = errors.New("local-compose is not running for this configuration")
	ErrNoAPI          = errors.New("local-compose was started without --api-addr")
)

// Storage addresses the runtime directory of one configuration file.
type Storage struct {
	root string
	file string
	lock *flock.Flock
}

// New returns the storage of configuration file relative to workDir.
func New(workDir, file string) (*Storage, error) {
	p := file
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	return &Storage{root: os.TempDir(), file: abs}, nil
}

// WithRoot relocates the runtime directory tree, mainly for tests.
func (s *Storage) WithRoot(root string) *Storage {
	s.root = root
	return s
}

// Dir is $TMPDIR/local-compose/<md5 of the absolute config path>.
func (s *Storage) Dir() string {
	sum := md5.Sum([]byte(s.file)) // #nosec G401
	return filepath.Join(s.root, appDir, hex.EncodeToString(sum[:]))
}

func (s *Storage) Ensure() error {
	return os.MkdirAll(s.Dir(), 0o750)
}

// Lock takes the exclusive single-instance lock without blocking.
func (s *Storage) Lock() error {
	if err := s.Ensure(); err != nil {
		return err
	}
	l := flock.New(filepath.Join(s.Dir(), lockFile))
	ok, err := l.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	s.lock = l
	return nil
}

func (s *Storage) Unlock() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Unlock()
	s.lock = nil
	return err
}

// WritePID records pid together with its start time, so a later reader can
// tell a live instance from a reused PID.
func (s *Storage) WritePID(pid int) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	return detector.WritePIDFile(filepath.Join(s.Dir(), pidFile), pid)
}

// ReadPID returns the recorded orchestrator PID, or ErrNotRunning when none
// is recorded.
func (s *Storage) ReadPID() (int, error) {
	d, err := s.Process()
	return d.PID, err
}

// Process returns a detector for the recorded orchestrator process.
func (s *Storage) Process() (detector.PIDDetector, error) {
	d, err := detector.ReadPIDFile(filepath.Join(s.Dir(), pidFile))
	if errors.Is(err, detector.ErrNoPIDFile) {
		return d, ErrNotRunning
	}
	if err != nil {
		return d, fmt.Errorf("invalid pid file: %w", err)
	}
	return d, nil
}

// WriteAddr records the control API address of the running instance.
func (s *Storage) WriteAddr(addr string) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir(), apiFile), []byte(addr), 0o600)
}

// ReadAddr returns the recorded control API address, or ErrNoAPI.
func (s *Storage) ReadAddr() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir(), apiFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoAPI
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Clean releases the lock and removes the runtime directory.
func (s *Storage) Clean() error {
	_ = s.Unlock()
	return os.RemoveAll(s.Dir())
}
