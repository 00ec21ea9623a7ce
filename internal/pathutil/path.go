// Package pathutil resolves user-supplied paths for the CLI.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand expands environment variables ($HOME, ${XDG_RUNTIME_DIR}) and a
// leading "~/" in p, then makes the result absolute. An empty or blank p
// yields "".
func Expand(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}
