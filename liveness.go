package pidlock

import (
	"os"
	"sync"
)

// Host exposes the process-wide identity lookups and the liveness probe the
// heuristic relies on. Tests substitute fakes through WithHost.
type Host interface {
	// Hostname returns the local hostname, or "" when it cannot be
	// determined.
	Hostname() string
	// PID returns the calling process id.
	PID() uint64
	// Probe checks whether pid exists without affecting it. It returns
	// ErrNoSuchProcess when the process is known not to exist.
	Probe(pid int) error
}

type systemHost struct {
	once     sync.Once
	hostname string
	pid      uint64
}

var defaultHost = &systemHost{}

// SystemHost returns the Host backed by the operating system. Lookups are
// cached on first use.
func SystemHost() Host {
	return defaultHost
}

func (h *systemHost) load() {
	h.once.Do(func() {
		if name, err := os.Hostname(); err == nil {
			h.hostname = name
		}
		h.pid = uint64(os.Getpid())
	})
}

func (h *systemHost) Hostname() string {
	h.load()
	return h.hostname
}

func (h *systemHost) PID() uint64 {
	h.load()
	return h.pid
}

func (h *systemHost) Probe(pid int) error {
	return probeProcess(pid)
}

// IsPlausiblyAlive reports whether the process pid recorded with hostname
// could still be running. It answers true whenever liveness cannot be
// disproved: remote hosts are never probed, and a probe failing for any
// reason other than a missing process counts as alive.
func IsPlausiblyAlive(hostname string, pid uint64, opts ...Option) bool {
	o := buildOptions(opts)
	return plausiblyAlive(o.host, hostname, pid)
}

func plausiblyAlive(host Host, hostname string, pid uint64) bool {
	if hostname != "" && hostname != host.Hostname() {
		return true
	}
	if pid == 0 || pid > maxPID {
		return false
	}
	return !isNoSuchProcess(host.Probe(int(pid)))
}
