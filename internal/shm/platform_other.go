//go:build !linux

package shm

import (
	"context"
)

// MapRegion is not implemented off Linux.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is not implemented off Linux.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}

// RemoveRegion is not implemented off Linux.
func RemoveRegion(dir, name string) error {
	return ErrUnsupported
}
