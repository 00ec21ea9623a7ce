package pidlock

import (
	"time"

	"pkt.systems/pslog"
)

// IsStale decodes the pidfile at path and reports whether it should be
// reclaimed. A pidfile older than staleAge is stale once its owner fails the
// liveness heuristic, and unconditionally once it is older than
// StaleGraceFactor*staleAge. A modification time further than staleAge in
// the future is logged as clock skew and never considered stale.
func IsStale(path string, staleAge time.Duration, opts ...Option) (bool, error) {
	o := buildOptions(opts)
	j := judge{host: o.host, now: o.clock.Now, logger: o.logger}
	return j.isStale(path, staleAge)
}

type judge struct {
	host   Host
	now    func() time.Time
	logger pslog.Logger
}

func (j judge) isStale(path string, staleAge time.Duration) (bool, error) {
	if staleAge <= 0 {
		return false, nil
	}
	rec, err := decodeFile(path, j.now)
	if err != nil {
		return false, err
	}
	return j.verdict(path, rec, staleAge), nil
}

func (j judge) verdict(path string, rec Record, staleAge time.Duration) bool {
	switch {
	case rec.Age < -staleAge:
		j.logger.Warn("pidlock.stale.clock_skew",
			"path", path,
			"age", rec.Age,
			"stale_age", staleAge,
			"pid", rec.PID,
			"hostname", rec.Hostname,
		)
		return false
	case rec.Age > staleAge:
		if rec.Age > StaleGraceFactor*staleAge {
			return true
		}
		return !plausiblyAlive(j.host, rec.Hostname, rec.PID)
	default:
		return false
	}
}
