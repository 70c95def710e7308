package waiter

import (
	"context"
	"errors"
	"fmt"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
	"github.com/srediag/shm-waiter/pkg/shm"
)

// NamePrefix is prepended to every named waiter's segment name.
const NamePrefix = "shmwaiter."

// NamedOptions configures OpenNamed.
type NamedOptions struct {
	// Dir holds the segment. Empty means Config.ShmDir, then /dev/shm.
	Dir    string
	Config *Config
}

// Named is a waiter living in its own shared memory segment, found by name.
// It holds one attachment for its whole life.
type Named struct {
	name string
	seg  *shm.Segment
	w    *Waiter
	h    Handle
}

// OpenNamed maps (creating when needed) the segment for name and attaches to
// the waiter in it. Every process opening the same name and Dir shares one
// waiter.
func OpenNamed(ctx context.Context, name string, opts NamedOptions) (*Named, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dir := opts.Dir
	if dir == "" {
		dir = cfg.ShmDir
	}
	seg, err := shm.DefaultRegistry.Acquire(ctx, shm.OpenOptions{
		Name:   NamePrefix + name,
		Dir:    dir,
		Size:   StateSize,
		Create: true,
	})
	if err != nil {
		return nil, fmt.Errorf("waiter %s: %w", name, err)
	}
	w, err := Attach(seg.Bytes(), cfg)
	if err != nil {
		return nil, errors.Join(err, shm.DefaultRegistry.Release(seg))
	}
	h, err := w.OpenContext(ctx, name)
	if err != nil {
		return nil, errors.Join(err, shm.DefaultRegistry.Release(seg))
	}
	return &Named{name: name, seg: seg, w: w, h: h}, nil
}

// RemoveNamed unlinks the segment of a named waiter. Processes that have it
// open keep working; later OpenNamed calls start from a fresh block.
func RemoveNamed(name, dir string) error {
	if name == "" {
		return ErrInvalidName
	}
	return shm.Remove(NamePrefix+name, dir)
}

// NamedPath returns the backing file of the named waiter in dir.
func NamedPath(name, dir string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	return internalshm.RegionPath(dir, NamePrefix+name)
}

func (n *Named) Name() string { return n.name }

// Path returns the backing file of the segment.
func (n *Named) Path() string { return n.seg.Path() }

func (n *Named) Waiter() *Waiter { return n.w }

func (n *Named) Handle() Handle { return n.h }

func (n *Named) Wait() error { return n.w.Wait(n.h) }

func (n *Named) WaitLocked() error { return n.w.WaitLocked(n.h) }

func (n *Named) Lock() error { return n.w.Lock(n.h) }

func (n *Named) Unlock() error { return n.w.Unlock(n.h) }

func (n *Named) Notify() { n.w.Notify(n.h) }

func (n *Named) Broadcast() { n.w.Broadcast(n.h) }

func (n *Named) Snapshot() Snapshot { return n.w.Snapshot() }

// Close drops the attachment and unmaps the segment once no other Named in
// this process uses it. It is safe to call more than once.
func (n *Named) Close() error {
	if !n.h.Valid() {
		return nil
	}
	n.w.Close(n.h)
	n.h = InvalidHandle
	return shm.DefaultRegistry.Release(n.seg)
}
