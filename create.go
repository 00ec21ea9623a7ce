package pidlock

import (
	"errors"
	"io/fs"
	"os"
)

// TryCreateExclusive atomically creates path for reading and writing. It
// returns (nil, nil) when path already exists; every other failure is
// returned unchanged.
func TryCreateExclusive(path string, perm fs.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}
