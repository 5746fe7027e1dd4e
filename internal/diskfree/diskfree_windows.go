//go:build windows

package diskfree

import (
	"os"

	"golang.org/x/sys/windows"
)

// Free returns the bytes available to unprivileged writers on the volume
// holding path, or 0 when the path is unusable.
func Free(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return 0
	}

	return int64(freeBytes)
}
