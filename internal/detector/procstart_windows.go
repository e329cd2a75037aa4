//go:build windows

package detector

import (
	"time"

	"golang.org/x/sys/windows"
)

// getProcStartUnix returns the creation time of pid in Unix seconds, 0 on
// error.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid)) // #nosec G115
	if err != nil {
		return 0
	}
	defer func() { _ = windows.CloseHandle(h) }()

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0
	}
	return time.Unix(0, creation.Nanoseconds()).Unix()
}
