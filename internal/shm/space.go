package shm

import (
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// CanCreate reports whether /dev/shm can hold size more bytes. Paths outside
// /dev/shm are always reported as creatable.
func CanCreate(size uint64, path string) bool {
	if !strings.HasPrefix(path, DevShmDir+"/") {
		return true
	}
	stat, err := disk.Usage(DevShmDir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// FreeSpace returns the free bytes of the filesystem holding dir.
func FreeSpace(dir string) (uint64, error) {
	stat, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}
