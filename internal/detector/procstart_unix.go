//go:build !windows

package detector

import (
	"bufio"
	"errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"github.com/tklauser/go-sysconf"
)

var (
	bootOnce sync.Once
	bootUnix int64
	clkTck   int64 = 100
)

// getProcStartUnix returns the start time of pid in Unix seconds, 0 when
// unavailable. Linux reads /proc directly; elsewhere gopsutil is asked.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	if runtime.GOOS == "linux" {
		if t := linuxStartUnix(pid); t > 0 {
			return t
		}
	}
	p, err := gopsproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}

func linuxStartUnix(pid int) int64 {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0
	}
	ticks, err := parseStatStartTicks(string(b))
	if err != nil {
		return 0
	}
	bootOnce.Do(loadBootInfo)
	if bootUnix == 0 {
		return 0
	}
	return bootUnix + ticks/clkTck
}

func loadBootInfo() {
	if clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && clk > 0 {
		clkTck = clk
	}
	f, err := os.Open("/proc/stat")
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	bootUnix, _ = parseBootTime(f)
}

// parseStatStartTicks extracts starttime (field 22) from a /proc/<pid>/stat
// line. The command name may contain spaces and parentheses, so fields are
// counted from the last ")".
func parseStatStartTicks(line string) (int64, error) {
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return 0, errors.New("malformed stat line")
	}
	fields := strings.Fields(line[end+2:])
	if len(fields) < 20 {
		return 0, errors.New("short stat line")
	}
	v, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, errors.New("invalid starttime")
	}
	return v, nil
}

// parseBootTime reads the btime entry of /proc/stat.
func parseBootTime(r io.Reader) (int64, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if v, ok := strings.CutPrefix(s.Text(), "btime "); ok {
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("btime not found")
}
