//go:build !windows

package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, c Child) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(c.Output())
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func waitGone(s System, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !s.Alive(pid) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return !s.Alive(pid)
}

func TestSpawnMergesStderrAndReportsExitCode(t *testing.T) {
	var sys System
	c, err := sys.Spawn(Spec{Name: "t", Command: "echo out; echo err 1>&2; exit 3", Shell: true})
	require.NoError(t, err)
	assert.Greater(t, c.PID(), 0)
	lines := readAll(t, c)
	assert.Equal(t, []string{"out", "err"}, lines)
	assert.Equal(t, 3, c.Wait())
}

func TestSpawnUsesDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	var sys System
	c, err := sys.Spawn(Spec{
		Command: `sh -c 'pwd; echo "$GREETING"'`,
		Dir:     dir,
		Env:     map[string]string{"GREETING": "hello", "PATH": os.Getenv("PATH")},
	})
	require.NoError(t, err)
	lines := readAll(t, c)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], dirBase(dir)), "pwd %q not in %q", lines[0], dir)
	assert.Equal(t, "hello", lines[1])
	assert.Equal(t, 0, c.Wait())
}

func dirBase(dir string) string {
	i := strings.LastIndexByte(dir, '/')
	return dir[i+1:]
}

func TestSpawnMissingExecutable(t *testing.T) {
	var sys System
	_, err := sys.Spawn(Spec{Command: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
}

func TestTerminateReapsProcessGroup(t *testing.T) {
	var sys System
	// the shell forks a grandchild; both must go away with the group
	c, err := sys.Spawn(Spec{Command: "sleep 30 & sleep 30; wait", Shell: true})
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		_, _ = io.Copy(io.Discard, c.Output())
		done <- c.Wait()
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, sys.Terminate(c.PID()))

	select {
	case rc := <-done:
		assert.Equal(t, 143, rc)
	case <-time.After(5 * time.Second):
		_ = sys.Kill(c.PID())
		t.Fatal("child did not exit after SIGTERM")
	}
	assert.True(t, waitGone(sys, c.PID(), time.Second))
}

func TestKillReportsSignalStatus(t *testing.T) {
	var sys System
	c, err := sys.Spawn(Spec{Command: "trap '' TERM; sleep 30", Shell: true})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sys.Kill(c.PID()))
	_, _ = io.Copy(io.Discard, c.Output())
	assert.Equal(t, 137, c.Wait())
}

func TestSignalMissingTargetIsNoop(t *testing.T) {
	var sys System
	c, err := sys.Spawn(Spec{Command: "true"})
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, c.Output())
	c.Wait()
	assert.NoError(t, sys.Terminate(c.PID()))
	assert.NoError(t, sys.Kill(c.PID()))
	assert.NoError(t, sys.Terminate(0))
}

func TestAliveAndPidsByName(t *testing.T) {
	var sys System
	marker := fmt.Sprintf("lc-marker-%d", time.Now().UnixNano())
	c, err := sys.Spawn(Spec{Command: "sleep 30; echo " + marker, Shell: true})
	require.NoError(t, err)
	defer func() {
		_ = sys.Kill(c.PID())
		_, _ = io.Copy(io.Discard, c.Output())
		c.Wait()
	}()

	assert.True(t, sys.Alive(c.PID()))
	assert.False(t, sys.Alive(-1))

	pids, err := sys.PidsByName(context.Background(), marker)
	require.NoError(t, err)
	assert.Contains(t, pids, c.PID())
}
