//go:build windows

package pidlock

import (
	"errors"
	"math"

	"golang.org/x/sys/windows"
)

// ErrNoSuchProcess is returned by Host.Probe when the process does not exist.
var ErrNoSuchProcess error = windows.ERROR_INVALID_PARAMETER

// Windows process ids are DWORDs; no signed range check applies.
const maxPID = math.MaxUint32

// probeProcess opens a query handle on pid and closes it straight away.
// OpenProcess rejects unknown ids with ERROR_INVALID_PARAMETER.
func probeProcess(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return err
	}
	return windows.CloseHandle(h)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, windows.ERROR_INVALID_PARAMETER)
}
