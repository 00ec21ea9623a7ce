package pidlock

import (
	"errors"
	"testing"
	"time"

	"pkt.systems/pidlock/internal/clock"
)

func TestEncodeFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pid      uint64
		hostname string
		want     string
	}{
		{1234, "build-01", "1234 build-01"},
		{0, "", "0 "},
		{18446744073709551615, "h", "18446744073709551615 h"},
		{7, "host with  spaces\t", "7 host with  spaces\t"},
	}
	for _, tc := range cases {
		if got := string(Encode(tc.pid, tc.hostname)); got != tc.want {
			t.Fatalf("Encode(%d, %q) = %q, want %q", tc.pid, tc.hostname, got, tc.want)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		pid      uint64
		hostname string
	}{
		{1, "localhost"},
		{4194304, "node.example.com"},
		{42, ""},
		{99, " leading and trailing "},
		{100, "a b c"},
		{18446744073709551615, "max"},
	}
	for _, tc := range cases {
		rec, err := Decode(newFakeSource(string(Encode(tc.pid, tc.hostname)), now), now)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.PID != tc.pid || rec.Hostname != tc.hostname {
			t.Fatalf("round trip of (%d, %q) produced (%d, %q)", tc.pid, tc.hostname, rec.PID, rec.Hostname)
		}
	}
}

func TestDecodeMalformedKeepsHostnameAndAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	modTime := now.Add(-90 * time.Second)
	cases := []struct {
		body     string
		hostname string
	}{
		{"abc host-a", "host-a"},
		{"-5 host-b", "host-b"},
		{" host-c", "host-c"},
		{"12x", ""},
		{"", ""},
		{"+7 host-d", "host-d"},
	}
	for _, tc := range cases {
		rec, err := Decode(newFakeSource(tc.body, modTime), now)
		if err != nil {
			t.Fatalf("decode %q: %v", tc.body, err)
		}
		if rec.PID != 0 {
			t.Fatalf("decode %q: expected pid 0, got %d", tc.body, rec.PID)
		}
		if rec.Hostname != tc.hostname {
			t.Fatalf("decode %q: expected hostname %q, got %q", tc.body, tc.hostname, rec.Hostname)
		}
		if rec.Age != 90*time.Second {
			t.Fatalf("decode %q: expected age 90s, got %v", tc.body, rec.Age)
		}
	}
}

func TestDecodeToleratesNewlineAfterPID(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	rec, err := Decode(newFakeSource("321\n", now), now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.PID != 321 || rec.Hostname != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestDecodeFutureModTimeYieldsNegativeAge(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	rec, err := Decode(newFakeSource("1 h", now.Add(time.Hour)), now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Age != -time.Hour {
		t.Fatalf("expected -1h age, got %v", rec.Age)
	}
}

func TestDecodeStatErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := newFakeSource("1 h", time.Now())
	src.statErr = boom
	if _, err := Decode(src, time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected stat error, got %v", err)
	}
}

func TestDecodeFileMissingReturnsEmptyRecord(t *testing.T) {
	t.Parallel()

	rec, err := DecodeFile(tempPidfile(t))
	if err != nil {
		t.Fatalf("decode missing: %v", err)
	}
	if rec != (Record{}) {
		t.Fatalf("expected zero record, got %+v", rec)
	}
	if !rec.Empty() {
		t.Fatal("expected Empty() on zero record")
	}
}

func TestDecodeFileReadsBodyAndAge(t *testing.T) {
	t.Parallel()

	path := tempPidfile(t)
	modTime := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	writePidfile(t, path, "4321 worker-7", modTime)
	clk := clock.NewManual(modTime.Add(42 * time.Second))

	rec, err := DecodeFile(path, WithClock(clk))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.PID != 4321 || rec.Hostname != "worker-7" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Age != 42*time.Second {
		t.Fatalf("expected 42s age, got %v", rec.Age)
	}
}

func TestDecodeFileDirectoryPropagatesError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := DecodeFile(dir); err == nil {
		t.Fatal("expected error decoding a directory")
	}
}
