//go:build !windows

package diskfree

import (
	"os"
	"syscall"
)

// Free returns the bytes available to unprivileged writers on the volume
// holding path, or 0 when the path is unusable.
func Free(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0
	}

	return int64(fs.Bavail) * int64(fs.Bsize)
}
