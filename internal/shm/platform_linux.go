//go:build linux

package shm

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
// A freshly created region is zero filled by ftruncate.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", opts.Size)
	}
	shmPath, err := RegionPath(opts.Dir, opts.Name)
	if err != nil {
		return nil, err
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		if _, statErr := os.Stat(shmPath); os.IsNotExist(statErr) && !CanCreate(uint64(opts.Size), shmPath) {
			return nil, fmt.Errorf("%w: path %s size %d", ErrNoSpace, shmPath, opts.Size)
		}
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(shmPath, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", shmPath, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size < int64(opts.Size) {
		if !opts.Create {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrRegionTooSmall, shmPath, st.Size, opts.Size)
		}
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr: addr,
		Path: shmPath,
		Fd:   fd,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close fd %d: %w", region.Fd, err)
	}
	return nil
}

// RemoveRegion unlinks the backing file. Existing mappings stay valid.
func RemoveRegion(dir, name string) error {
	shmPath, err := RegionPath(dir, name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(shmPath); err != nil {
		return fmt.Errorf("unlink %s: %w", shmPath, err)
	}
	return nil
}
