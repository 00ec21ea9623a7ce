package pidlock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"pkt.systems/pidlock/internal/clock"
	"pkt.systems/pidlock/internal/svcfields"
)

// Acquire creates the pidfile at path and records the owner in it.
//
// When the pidfile already exists and waiting is enabled (the default),
// Acquire waits for it to disappear, woken by a filesystem notification or
// at the latest after the poll interval, and retries until it wins. With a
// positive stale age, a waiter that finds the pidfile stale removes it once
// per call. With waiting disabled Acquire returns an error wrapping
// ErrLocked without inspecting the existing pidfile.
//
// Cancelling ctx abandons the wait and returns ctx.Err().
func Acquire(ctx context.Context, path string, opts ...Option) (*Lock, error) {
	o := buildOptions(opts)
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pidlock: resolve %q: %w", path, err)
	}
	a := &acquirer{
		path:    abs,
		cfg:     o.config,
		owner:   o.ownerID,
		host:    o.host,
		clock:   o.clock,
		metrics: newLockMetrics(o.meterProvider, o.logger),
	}
	if !o.ownerIDSet {
		a.owner = o.host.PID()
	}
	a.base = o.logger.With(
		svcfields.PathKey, abs,
		svcfields.AttemptKey, xid.New().String(),
	)
	a.logger = svcfields.WithSubsystem(a.base, "pidlock", "acquire")
	start := a.clock.Now()
	l, err := a.run(ctx)
	a.metrics.recordAcquire(context.WithoutCancel(ctx), a.clock.Now().Sub(start), err)
	return l, err
}

// TryAcquire is Acquire without waiting: it fails with ErrLocked when the
// pidfile exists.
func TryAcquire(path string, opts ...Option) (*Lock, error) {
	return Acquire(context.Background(), path, append(opts, WithWait(false))...)
}

type acquirer struct {
	path    string
	cfg     Config
	owner   uint64
	host    Host
	clock   clock.Clock
	base    pslog.Logger
	logger  pslog.Logger
	metrics *lockMetrics
}

func (a *acquirer) run(ctx context.Context) (*Lock, error) {
	if l, err := a.attempt(ctx); l != nil || err != nil {
		return l, err
	}
	if !a.cfg.WaitForLock {
		a.logger.Debug("pidlock.acquire.contended")
		return nil, fmt.Errorf("%w: %s", ErrLocked, a.path)
	}

	watch := a.armWatch()
	defer watch.Close()
	events := watch.Events()
	staleAge := a.cfg.StaleAge
	j := judge{host: a.host, now: a.clock.Now, logger: svcfields.WithSubsystem(a.base, "pidlock", "stale")}
	a.logger.Debug("pidlock.acquire.waiting",
		"poll_interval", a.cfg.PollInterval,
		"stale_age", staleAge,
		"watch", events != nil,
	)

	for {
		if l, err := a.attempt(ctx); l != nil || err != nil {
			return l, err
		}
		select {
		case <-ctx.Done():
			a.logger.Debug("pidlock.acquire.canceled", "error", ctx.Err())
			return nil, ctx.Err()
		case _, ok := <-events:
			if !ok {
				a.logger.Warn("pidlock.acquire.watch_closed")
				events = nil
			}
		case <-a.clock.After(a.cfg.PollInterval):
		}
		if staleAge <= 0 {
			continue
		}
		stale, err := j.isStale(a.path, staleAge)
		if err != nil {
			return nil, err
		}
		if !stale {
			continue
		}
		// One removal attempt per call; a failure here must not turn into
		// a loop of removals.
		staleAge = 0
		a.reclaim(ctx)
	}
}

// attempt performs one exclusive create. It returns (nil, nil) on contention.
func (a *acquirer) attempt(ctx context.Context) (*Lock, error) {
	f, err := TryCreateExclusive(a.path, a.cfg.Permissions)
	if err != nil {
		a.logger.Error("pidlock.acquire.create_failed", "error", err)
		return nil, fmt.Errorf("pidlock: create %q: %w", a.path, err)
	}
	a.metrics.recordAttempt(ctx, f != nil)
	if f == nil {
		return nil, nil
	}
	return a.claim(f)
}

// claim writes the owner record into a freshly created pidfile. On failure
// the file is closed and removed so no ownerless pidfile is left behind.
func (a *acquirer) claim(f *os.File) (*Lock, error) {
	hostname := a.host.Hostname()
	if _, err := f.Write(Encode(a.owner, hostname)); err != nil {
		f.Close()
		if rmErr := os.Remove(a.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			a.logger.Warn("pidlock.acquire.cleanup_failed", "error", rmErr)
		}
		a.logger.Error("pidlock.acquire.write_failed", "error", err)
		return nil, fmt.Errorf("pidlock: write %q: %w", a.path, err)
	}
	a.logger.Info("pidlock.acquire.success", "pid", a.owner, "hostname", hostname)
	rec := Record{PID: a.owner, Hostname: hostname}
	return newLock(f, a.path, rec, svcfields.WithSubsystem(a.base, "pidlock", "release"), a.metrics), nil
}

func (a *acquirer) armWatch() *removalWatch {
	if a.cfg.DisableWatch {
		return nil
	}
	w, err := watchRemoval(a.path)
	if err != nil {
		a.logger.Debug("pidlock.acquire.watch_unavailable", "error", err)
		return nil
	}
	return w
}

func (a *acquirer) reclaim(ctx context.Context) {
	err := os.Remove(a.path)
	switch {
	case err == nil:
		a.metrics.recordReclaim(ctx)
		a.logger.Warn("pidlock.stale.reclaimed")
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Debug("pidlock.stale.already_removed")
	default:
		a.logger.Warn("pidlock.stale.remove_failed", "error", err)
	}
}
