package pidlock

import (
	"testing"
	"time"

	"pkt.systems/pidlock/internal/clock"
)

func TestBuildOptionsDefaults(t *testing.T) {
	t.Parallel()

	o := buildOptions(nil)
	want := Config{Permissions: DefaultPermissions, PollInterval: DefaultPollInterval, WaitForLock: true}
	if o.config != want {
		t.Fatalf("default config = %+v, want %+v", o.config, want)
	}
	if o.logger == nil || o.clock == nil || o.host == nil {
		t.Fatalf("expected logger, clock and host defaults: %+v", o)
	}
	if o.ownerIDSet {
		t.Fatal("owner id must not be set by default")
	}
}

func TestBuildOptionsNormalizes(t *testing.T) {
	t.Parallel()

	o := buildOptions([]Option{
		WithConfig(Config{StaleAge: -time.Second}),
		nil,
	})
	if o.config.Permissions != DefaultPermissions {
		t.Fatalf("permissions = %o", o.config.Permissions)
	}
	if o.config.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval = %v", o.config.PollInterval)
	}
	if o.config.StaleAge != 0 {
		t.Fatalf("negative stale age must disable recovery, got %v", o.config.StaleAge)
	}
	if o.config.WaitForLock {
		t.Fatal("WithConfig replaces the whole record, including WaitForLock")
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Unix(0, 0))
	host := newFakeHost("h", 1)
	o := buildOptions([]Option{
		WithConfig(Config{PollInterval: time.Minute, WaitForLock: true}),
		WithPollInterval(time.Second),
		WithPermissions(0o600),
		WithStaleAge(time.Hour),
		WithWait(false),
		WithDisableWatch(true),
		WithOwnerID(0),
		WithClock(clk),
		WithHost(host),
	})
	want := Config{
		Permissions:  0o600,
		PollInterval: time.Second,
		StaleAge:     time.Hour,
		WaitForLock:  false,
		DisableWatch: true,
	}
	if o.config != want {
		t.Fatalf("config = %+v, want %+v", o.config, want)
	}
	if !o.ownerIDSet || o.ownerID != 0 {
		t.Fatalf("explicit zero owner id lost: set=%t id=%d", o.ownerIDSet, o.ownerID)
	}
	if o.clock != clk || o.host != host {
		t.Fatal("clock or host option ignored")
	}
}

func TestWithLoggerNilFallsBack(t *testing.T) {
	t.Parallel()

	if o := buildOptions([]Option{WithLogger(nil)}); o.logger == nil {
		t.Fatal("nil logger must fall back to a disabled logger")
	}
}
