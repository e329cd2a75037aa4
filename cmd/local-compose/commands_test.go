package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/localcompose"
	"github.com/loykin/localcompose/internal/config"
	"github.com/loykin/localcompose/internal/history/sqlite"
	"github.com/loykin/localcompose/internal/printer"
	"github.com/loykin/localcompose/pkg/client"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersionColorsExample(t *testing.T) {
	assert.Equal(t, localcompose.Version+"\n", execute(t, "version"))

	colors := strings.Split(strings.TrimSpace(execute(t, "colors")), "\n")
	assert.Equal(t, printer.Palette, colors)

	assert.Equal(t, config.Example, execute(t, "example"))
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	on, err := useColor("always", &buf)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = useColor("never", &buf)
	require.NoError(t, err)
	assert.False(t, on)

	on, err = useColor("auto", &buf)
	require.NoError(t, err)
	assert.False(t, on, "a buffer is not a terminal")

	_, err = useColor("sometimes", &buf)
	assert.Error(t, err)
}

func TestFileFlagsPath(t *testing.T) {
	assert.Equal(t, filepath.Join("proj", "a.yaml"), FileFlags{File: "a.yaml", WorkDir: "proj"}.Path())
	abs := filepath.Join(string(filepath.Separator), "etc", "a.yaml")
	assert.Equal(t, abs, FileFlags{File: abs, WorkDir: "proj"}.Path())
}

func upFlags(dir string) UpFlags {
	return UpFlags{
		FileFlags: FileFlags{File: config.FileName, WorkDir: dir},
		Color:     "never",
		LogLevel:  "error",
	}
}

func TestCmdUpRunsServicesToCompletion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix echo")
	}
	t.Setenv("TMPDIR", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, `
version: '1'
services:
  web:
    run: echo hello
`)
	var out, errOut bytes.Buffer
	code, err := cmdUp(context.Background(), &out, &errOut, upFlags(dir))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "| hello")
	assert.Contains(t, out.String(), "web stopped (rc=0)")
}

func TestCmdUpReturnsServiceExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sh")
	}
	t.Setenv("TMPDIR", t.TempDir())
	dir := t.TempDir()
	logFile := filepath.Join(dir, "out.log")
	writeConfig(t, dir, fmt.Sprintf(`
version: '1'
global:
  use-prefix: false
  log:
    file: %q
services:
  job:
    run: echo done; exit 3
    shell: true
`, logFile))
	var out, errOut bytes.Buffer
	code, err := cmdUp(context.Background(), &out, &errOut, upFlags(dir))
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "done\n")

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "done")
}

func TestCmdUpInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version: '1'\nservices:\n  web:\n    color: red\n")
	var out, errOut bytes.Buffer
	code, err := cmdUp(context.Background(), &out, &errOut, upFlags(dir))
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "is invalid")
}

func TestCmdUpRejectsBadFlags(t *testing.T) {
	f := upFlags(t.TempDir())
	f.LogLevel = "loud"
	_, err := cmdUp(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, f)
	assert.Error(t, err)

	f = upFlags(t.TempDir())
	f.Color = "sometimes"
	_, err = cmdUp(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, f)
	assert.Error(t, err)
}

func TestCmdDownNotRunning(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	err := cmdDown(&bytes.Buffer{}, DownFlags{FileFlags{File: config.FileName, WorkDir: t.TempDir()}})
	assert.ErrorIs(t, err, localcompose.ErrNotRunning)
}

func TestCmdUpRecordsHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix echo")
	}
	t.Setenv("TMPDIR", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, `
version: '1'
services:
  web:
    run: echo hello
`)
	db := filepath.Join(dir, "history.db")
	f := upFlags(dir)
	f.History = "sqlite://" + db
	code, err := cmdUp(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, f)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	sink, err := sqlite.New(db)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	n, err := sink.Count(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "start and stop")
}

func TestPrintStatuses(t *testing.T) {
	pid, rc := 42, 1
	var buf bytes.Buffer
	printStatuses(&buf, []client.ServiceStatus{
		{Name: "web", Running: true, Started: true, PID: &pid, Runs: 1},
		{Name: "job", Started: true, Stopped: true, ReturnCode: &rc, Runs: 3, Restarts: 2},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"NAME", "STATE", "PID", "RC", "RUNS", "RESTARTS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"web", "running", "42", "-", "1", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"job", "stopped", "-", "1", "3", "2"}, strings.Fields(lines[2]))
}

func TestCmdPsNotRunning(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	err := cmdPs(context.Background(), &bytes.Buffer{}, PsFlags{FileFlags: FileFlags{File: config.FileName, WorkDir: t.TempDir()}})
	assert.ErrorIs(t, err, localcompose.ErrNotRunning)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestCmdUpControlAPI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sleep")
	}
	t.Setenv("TMPDIR", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, `
version: '1'
services:
  web:
    run: sleep 30
`)
	f := upFlags(dir)
	f.APIAddr = freeAddr(t)

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := cmdUp(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, f)
		done <- result{code, err}
	}()

	ps := PsFlags{FileFlags: f.FileFlags, Timeout: time.Second}
	var out bytes.Buffer
	require.Eventually(t, func() bool {
		out.Reset()
		return cmdPs(context.Background(), &out, ps) == nil && strings.Contains(out.String(), "running")
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, out.String(), "web")

	c := client.New(client.Config{BaseURL: f.APIAddr})
	require.NoError(t, c.Shutdown(context.Background()))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 143, r.code, "the service was terminated")
	case <-time.After(10 * time.Second):
		t.Fatal("up did not return after shutdown")
	}
}
