// Package pidlock implements advisory mutual exclusion between unrelated
// processes through pidfiles on a shared filesystem. No kernel lock is
// involved: ownership is decided by atomic exclusive file creation, and the
// pidfile records who won.
//
// # Acquiring
//
// Acquire creates the pidfile and writes "<pid> <hostname>" into it. When
// the file already exists the call waits for it to be removed, woken by a
// filesystem notification (fsnotify on the parent directory) or at the
// latest after the poll interval, and tries again:
//
//	lock, err := pidlock.Acquire(ctx, "/var/run/backup.pid",
//	    pidlock.WithPollInterval(5*time.Second),
//	    pidlock.WithStaleAge(time.Minute),
//	)
//	if err != nil {
//	    return err
//	}
//	defer lock.Close()
//
// TryAcquire (or WithWait(false)) fails straight away with an error
// wrapping ErrLocked instead of waiting. WithLock scopes a lock to a
// function call.
//
// # Stale pidfiles
//
// An owner that crashes leaves its pidfile behind. With a positive stale age
// a waiter inspects the pidfile after every wait. A pidfile older than the
// stale age is removed when its owner is provably gone (same host, and a
// zero-signal probe reports no such process). Past StaleGraceFactor times
// the stale age it is removed regardless of the owner. Each Acquire call
// removes at most one stale pidfile. Owners on other hosts are always
// presumed alive.
//
// # Releasing
//
// Release removes the pidfile only when the path still names the file the
// Lock created, so a holder whose pidfile was reclaimed as stale never
// deletes its successor's lock. Release and Close are idempotent.
//
// # Scope
//
// The lock is advisory and unfair: waiters are not queued, and the pidfile
// is not protected against tampering. Cross-host exclusion needs a shared
// filesystem with atomic exclusive create. On NFS, waiters fall back to
// polling because notifications only report local changes.
package pidlock
