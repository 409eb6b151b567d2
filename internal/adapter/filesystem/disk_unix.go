//go:build !windows
// +build !windows

package filesystem

import (
	"fmt"
	"syscall"
)

// FreeSpace returns the free bytes on the filesystem holding the cache root
func (c *Cache) FreeSpace() (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.rootDir, &stat); err != nil {
		return 0, fmt.Errorf("failed to get disk stats: %w", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
