// Package shm contains platform-specific helpers for mapping shared memory and
// for the futex calls the process-shared primitives sleep on.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DevShmDir is where named regions live when the directory exists.
const DevShmDir = "/dev/shm"

var (
	// ErrUnsupported is returned where the platform has no futex or no shared mapping support.
	ErrUnsupported = errors.New("shared memory primitives not supported on this platform")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid region name")
	// ErrRegionTooSmall is returned when an existing region is smaller than requested.
	ErrRegionTooSmall = errors.New("region smaller than requested size")
	// ErrNoSpace is returned when the backing filesystem cannot hold the region.
	ErrNoSpace = errors.New("share memory had not left space")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
	Fd   int
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	// Dir overrides the directory holding the backing file. Empty means DefaultDir().
	Dir    string
	Size   int
	Create bool
}

// DefaultDir returns /dev/shm when available, the temp dir otherwise.
func DefaultDir() string {
	if info, err := os.Stat(DevShmDir); err == nil && info.IsDir() {
		return DevShmDir
	}
	return os.TempDir()
}

// RegionPath returns the backing file path for name inside dir.
func RegionPath(dir, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, name), nil
}
