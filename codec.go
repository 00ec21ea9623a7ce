package pidlock

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxRecordSize caps how much of a pidfile body Decode reads.
const maxRecordSize = 4 << 10

// Record is the decoded content of a pidfile plus its age. The zero Record
// means the pidfile was missing or unreadable.
type Record struct {
	PID      uint64
	Hostname string
	// Age is the time elapsed since the pidfile was last modified. It is
	// negative when the modification time lies in the future.
	Age time.Duration
}

// Empty reports whether r carries no owner.
func (r Record) Empty() bool {
	return r.PID == 0 && r.Hostname == ""
}

// Source is what Decode reads: a body plus file metadata. *os.File
// satisfies it.
type Source interface {
	io.Reader
	Stat() (fs.FileInfo, error)
}

// Encode renders the pidfile body "<pid> <hostname>".
func Encode(pid uint64, hostname string) []byte {
	buf := make([]byte, 0, 21+len(hostname))
	buf = strconv.AppendUint(buf, pid, 10)
	buf = append(buf, ' ')
	return append(buf, hostname...)
}

// Decode parses a pidfile body from src. The age is derived from the
// modification time reported by src.Stat relative to now, whether or not
// the body parses. Unparseable pids decode as 0.
func Decode(src Source, now time.Time) (Record, error) {
	info, err := src.Stat()
	if err != nil {
		return Record{}, err
	}
	body, err := io.ReadAll(io.LimitReader(src, maxRecordSize))
	if err != nil {
		return Record{}, err
	}
	rec := parseRecord(string(body))
	rec.Age = now.Sub(info.ModTime())
	return rec, nil
}

// DecodeFile opens path read-only and decodes it. A missing or unreadable
// pidfile yields the zero Record and a nil error.
func DecodeFile(path string, opts ...Option) (Record, error) {
	o := buildOptions(opts)
	return decodeFile(path, o.clock.Now)
}

func decodeFile(path string, now func() time.Time) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if unreadable(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("pidlock: open %q: %w", path, err)
	}
	defer f.Close()
	rec, err := Decode(f, now())
	if err != nil {
		if unreadable(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("pidlock: decode %q: %w", path, err)
	}
	return rec, nil
}

func parseRecord(body string) Record {
	field, hostname, _ := strings.Cut(body, " ")
	pid, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64)
	if err != nil {
		pid = 0
	}
	return Record{PID: pid, Hostname: hostname}
}

func unreadable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
