package pidlock

import (
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/pidlock/internal/clock"
)

const (
	// DefaultPermissions is the mode used for new pidfiles (before umask).
	DefaultPermissions fs.FileMode = 0o644
	// DefaultPollInterval bounds the time between acquire retries when no
	// removal notification arrives.
	DefaultPollInterval = 10 * time.Second
	// StaleGraceFactor multiplies the stale age to obtain the age after which
	// a pidfile is reclaimed without consulting owner liveness.
	StaleGraceFactor = 25
)

// Config captures the per-acquire settings. The zero value is not useful on
// its own; start from DefaultConfig.
type Config struct {
	// Permissions are the mode bits of the created pidfile, subject to umask.
	Permissions fs.FileMode
	// PollInterval is the upper bound on the wait between retries.
	PollInterval time.Duration
	// StaleAge enables stale-lock recovery when positive. Zero disables it.
	StaleAge time.Duration
	// WaitForLock blocks until the lock is acquired when true. When false
	// Acquire fails with ErrLocked on contention.
	WaitForLock bool
	// DisableWatch skips filesystem notifications and relies on polling.
	DisableWatch bool
}

// DefaultConfig returns the configuration Acquire uses when no options are
// supplied.
func DefaultConfig() Config {
	return Config{
		Permissions:  DefaultPermissions,
		PollInterval: DefaultPollInterval,
		WaitForLock:  true,
	}
}

func (c Config) normalized() Config {
	if c.Permissions == 0 {
		c.Permissions = DefaultPermissions
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StaleAge < 0 {
		c.StaleAge = 0
	}
	return c
}

// Option configures Acquire and the diagnostic helpers.
type Option func(*options)

type options struct {
	config        Config
	ownerID       uint64
	ownerIDSet    bool
	logger        pslog.Logger
	clock         clock.Clock
	host          Host
	meterProvider metric.MeterProvider
}

func buildOptions(opts []Option) options {
	o := options{config: DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.config = o.config.normalized()
	if o.logger == nil {
		o.logger = pslog.NoopLogger()
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}
	if o.host == nil {
		o.host = SystemHost()
	}
	return o
}

// WithConfig replaces the whole configuration record. Options applied after
// it still override individual fields.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithPermissions sets the mode bits of the created pidfile.
func WithPermissions(perm fs.FileMode) Option {
	return func(o *options) {
		o.config.Permissions = perm
	}
}

// WithPollInterval sets the maximum wait between retries.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.config.PollInterval = d
	}
}

// WithStaleAge enables stale-lock recovery for pidfiles older than d.
// Zero disables recovery.
func WithStaleAge(d time.Duration) Option {
	return func(o *options) {
		o.config.StaleAge = d
	}
}

// WithWait selects blocking (true) or fail-fast (false) acquisition.
func WithWait(wait bool) Option {
	return func(o *options) {
		o.config.WaitForLock = wait
	}
}

// WithDisableWatch turns off filesystem notifications while waiting.
func WithDisableWatch(disable bool) Option {
	return func(o *options) {
		o.config.DisableWatch = disable
	}
}

// WithOwnerID records id in the pidfile instead of the calling process id.
func WithOwnerID(id uint64) Option {
	return func(o *options) {
		o.ownerID = id
		o.ownerIDSet = true
	}
}

// WithLogger supplies a logger. Nil falls back to a disabled logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock injects a custom clock implementation.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithHost replaces the hostname, process id and probe lookups.
func WithHost(h Host) Option {
	return func(o *options) {
		o.host = h
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}
