package pidlock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sync"

	"pkt.systems/pslog"
)

// Lock is a held pidfile. Release it with Release or Close; both are safe
// to call more than once and from several goroutines.
//
// A Lock that becomes unreachable without being released is released by a
// runtime cleanup. That is a backstop only: keep the Lock reachable for as
// long as the lock must be held, typically with a deferred Close.
type Lock struct {
	state  *lockState
	record Record
}

type lockState struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	logger  pslog.Logger
	metrics *lockMetrics
}

func newLock(f *os.File, path string, rec Record, logger pslog.Logger, metrics *lockMetrics) *Lock {
	l := &Lock{
		state: &lockState{
			file:    f,
			path:    path,
			logger:  logger,
			metrics: metrics,
		},
		record: rec,
	}
	runtime.AddCleanup(l, func(s *lockState) {
		if held, _ := s.release(); held {
			s.logger.Warn("pidlock.release.unreachable")
		}
	}, l.state)
	return l
}

// Path returns the absolute path of the pidfile.
func (l *Lock) Path() string {
	return l.state.path
}

// Record returns the owner written to the pidfile. Its Age is zero.
func (l *Lock) Record() Record {
	return l.record
}

// Release closes the pidfile descriptor and removes the pidfile, provided
// the path still names the file this Lock created. It reports whether the
// pidfile was removed. Once released, further calls return (false, nil).
//
// A false result with a nil error on the first call means the pidfile was
// deleted or replaced by someone else (for example a waiter that judged it
// stale); the replacement is left untouched.
func (l *Lock) Release() (bool, error) {
	if l == nil || l.state == nil {
		return false, nil
	}
	return l.state.release()
}

// Close releases the lock, discarding whether it was still held.
func (l *Lock) Close() error {
	_, err := l.Release()
	return err
}

func (s *lockState) release() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return false, nil
	}
	f := s.file
	s.file = nil

	same, identErr := s.sameFile(f)
	closeErr := f.Close()
	if identErr != nil {
		s.metrics.recordRelease(false)
		return false, errors.Join(identErr, closeErr)
	}
	if !same {
		s.logger.Warn("pidlock.release.replaced")
		s.metrics.recordRelease(false)
		return false, closeErr
	}
	if err := os.Remove(s.path); err != nil {
		s.metrics.recordRelease(false)
		if errors.Is(err, fs.ErrNotExist) {
			return false, closeErr
		}
		return false, errors.Join(fmt.Errorf("pidlock: remove %q: %w", s.path, err), closeErr)
	}
	s.logger.Debug("pidlock.release.removed")
	s.metrics.recordRelease(true)
	return true, closeErr
}

// sameFile compares the open descriptor with whatever path names now.
func (s *lockState) sameFile(f *os.File) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("pidlock: stat descriptor for %q: %w", s.path, err)
	}
	current, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("pidlock: stat %q: %w", s.path, err)
	}
	return os.SameFile(held, current), nil
}

// WithLock acquires the pidfile at path, runs fn and releases the lock on
// every exit path, including panics in fn. Errors from fn take precedence
// over release errors.
func WithLock(ctx context.Context, path string, fn func(context.Context, *Lock) error, opts ...Option) (err error) {
	l, err := Acquire(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, l)
}
