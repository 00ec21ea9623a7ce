// Package svcfields holds the structured logging keys shared by the library
// and the CLI.
package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

const (
	// SubsystemKey is the canonical key for subsystem tags.
	SubsystemKey = pslog.TrustedString("sys")
	// PathKey tags entries with the pidfile path.
	PathKey = pslog.TrustedString("path")
	// AttemptKey correlates the entries of one acquire call.
	AttemptKey = pslog.TrustedString("attempt_id")
)

// Subsystem builds a dot-delimited subsystem path from the supplied parts while
// skipping empty fragments.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag built from parts to every log entry.
func WithSubsystem(logger pslog.Logger, parts ...string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem := Subsystem(parts...)
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
