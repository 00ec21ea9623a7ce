package pidlock

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"
)

type fakeHost struct {
	hostname string
	pid      uint64

	mu     sync.Mutex
	alive  map[int]error
	probes []int
}

func newFakeHost(hostname string, pid uint64) *fakeHost {
	return &fakeHost{hostname: hostname, pid: pid, alive: map[int]error{}}
}

func (h *fakeHost) Hostname() string { return h.hostname }

func (h *fakeHost) PID() uint64 { return h.pid }

func (h *fakeHost) Probe(pid int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, pid)
	if err, ok := h.alive[pid]; ok {
		return err
	}
	return ErrNoSuchProcess
}

func (h *fakeHost) setAlive(pid int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alive[pid] = err
}

func (h *fakeHost) probeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.probes)
}

type fakeInfo struct {
	name    string
	modTime time.Time
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return 0 }
func (i fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (i fakeInfo) ModTime() time.Time { return i.modTime }
func (i fakeInfo) IsDir() bool        { return false }
func (i fakeInfo) Sys() any           { return nil }

// fakeSource is a pidfile body with a controllable modification time.
type fakeSource struct {
	*strings.Reader
	modTime time.Time
	statErr error
}

func newFakeSource(body string, modTime time.Time) *fakeSource {
	return &fakeSource{Reader: strings.NewReader(body), modTime: modTime}
}

func (s *fakeSource) Stat() (fs.FileInfo, error) {
	if s.statErr != nil {
		return nil, s.statErr
	}
	return fakeInfo{name: "fake.pid", modTime: s.modTime}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newRecordingLogger returns a debug-level structured logger writing to a
// buffer the test can inspect.
func newRecordingLogger(t *testing.T) (pslog.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	logger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("PIDLOCK_TEST_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.DebugLevel}),
		pslog.WithEnvWriter(buf),
	)
	return logger, buf
}

// writePidfile creates path with body and sets its modification time.
func writePidfile(t *testing.T, path, body string, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func tempPidfile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.pid")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be absent, stat err=%v", path, err)
	}
}
