package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

// ErrClosed is returned when a closed segment is used.
var ErrClosed = errors.New("shm: segment closed")

// Segment is a mapped shared memory segment.
type Segment struct {
	region *internalshm.MappedRegion
	name   string
	size   int
	// refs is owned by the Registry that handed the segment out.
	refs int
}

// OpenOptions defines options for creating or opening a shared memory segment.
type OpenOptions struct {
	// Name is the identifier for the shared memory segment.
	Name string
	// Dir holds the backing file. Empty means /dev/shm when present.
	Dir string
	// Size is the segment size in bytes.
	Size int
	// Create indicates whether to create (if not exists) or open existing.
	Create bool
	// WaitTimeout makes an Open without Create retry until another process
	// has created and sized the segment. Zero fails immediately.
	WaitTimeout time.Duration
}

// Open creates or opens a shared memory segment with the given options.
func Open(ctx context.Context, opts OpenOptions) (*Segment, error) {
	if opts.Size <= 0 {
		return nil, errors.New("invalid segment size")
	}
	mapOpts := internalshm.MapOptions{
		Name:   opts.Name,
		Dir:    opts.Dir,
		Size:   opts.Size,
		Create: opts.Create,
	}
	if opts.Create || opts.WaitTimeout <= 0 {
		region, err := internalshm.MapRegion(ctx, mapOpts)
		if err != nil {
			return nil, err
		}
		return &Segment{region: region, name: opts.Name, size: opts.Size}, nil
	}

	var region *internalshm.MappedRegion
	op := func() error {
		r, err := internalshm.MapRegion(ctx, mapOpts)
		switch {
		case err == nil:
			region = r
			return nil
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, internalshm.ErrRegionTooSmall):
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = opts.WaitTimeout
	b.Reset()
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("open segment %s: %w", opts.Name, err)
	}
	return &Segment{region: region, name: opts.Name, size: opts.Size}, nil
}

// Name returns the segment name.
func (s *Segment) Name() string { return s.name }

// Path returns the backing file path.
func (s *Segment) Path() string { return s.region.Path }

// Size returns the mapped size in bytes.
func (s *Segment) Size() int { return s.size }

// Bytes returns the mapping. It is invalid after Close.
func (s *Segment) Bytes() []byte {
	if s.region == nil {
		return nil
	}
	return s.region.Addr
}

// Close unmaps the segment. The backing file is left in place; see Remove.
func (s *Segment) Close() error {
	if s.region == nil || s.region.Addr == nil {
		return ErrClosed
	}
	return internalshm.UnmapRegion(context.Background(), s.region)
}

// Remove unlinks the named segment. Processes that still map it keep their mapping.
func Remove(name, dir string) error {
	return internalshm.RemoveRegion(dir, name)
}
