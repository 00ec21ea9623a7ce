package pidlock

import (
	"context"
	"errors"
)

// ErrLocked is returned by a non-blocking acquire when another owner holds
// the pidfile.
var ErrLocked = errors.New("pidlock: lock contended")

func isLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
