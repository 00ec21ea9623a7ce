//go:build linux

package pidlock

import "golang.org/x/sys/unix"

// watchSupported reports whether inotify can observe removals under dir.
// NFS clients only see local changes, so waiters there fall back to polling.
func watchSupported(dir string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	return st.Type != unix.NFS_SUPER_MAGIC
}
