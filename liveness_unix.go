//go:build !windows

package pidlock

import (
	"errors"
	"math"

	"golang.org/x/sys/unix"
)

// ErrNoSuchProcess is returned by Host.Probe when the process does not exist.
var ErrNoSuchProcess error = unix.ESRCH

// maxPID is the largest value a pid_t can carry.
const maxPID = math.MaxInt32

// probeProcess sends signal 0, which performs the permission and existence
// checks of kill(2) without delivering anything.
func probeProcess(pid int) error {
	return unix.Kill(pid, 0)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
