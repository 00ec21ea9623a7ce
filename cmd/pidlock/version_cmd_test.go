package main

import (
	"strings"
	"testing"

	"pkt.systems/pidlock/internal/version"
)

func TestVersionCommandPrintsCurrentVersion(t *testing.T) {
	isolateConfig(t)

	stdout, stderr, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if stderr != "" {
		t.Fatalf("expected empty stderr, got %q", stderr)
	}
	want := version.Module() + " " + version.Current() + "\n"
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
}

func TestVersionCommandRejectsArguments(t *testing.T) {
	isolateConfig(t)

	_, _, err := executeRootCommand(t, "version", "extra")
	if err == nil {
		t.Fatal("expected error for extra argument")
	}
	if !strings.Contains(err.Error(), "unknown command") && !strings.Contains(err.Error(), "accepts 0 arg") {
		t.Fatalf("unexpected error: %v", err)
	}
}
