package shm

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

// DefaultRegistry is the process wide segment registry.
var DefaultRegistry = NewRegistry()

// Registry shares one mapping per segment path within a process.
type Registry struct {
	segments cmap.ConcurrentMap[string, *Segment]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{segments: cmap.New[*Segment]()}
}

// Acquire returns the mapping for opts, mapping it on first use. Every
// successful Acquire must be matched by a Release.
func (r *Registry) Acquire(ctx context.Context, opts OpenOptions) (*Segment, error) {
	key, err := internalshm.RegionPath(opts.Dir, opts.Name)
	if err != nil {
		return nil, err
	}
	var openErr error
	seg := r.segments.Upsert(key, nil, func(exist bool, cur *Segment, _ *Segment) *Segment {
		if exist && cur != nil {
			cur.refs++
			return cur
		}
		s, err := Open(ctx, opts)
		if err != nil {
			openErr = err
			return nil
		}
		s.refs = 1
		return s
	})
	if openErr != nil {
		r.segments.RemoveCb(key, func(_ string, cur *Segment, exists bool) bool {
			return exists && cur == nil
		})
		return nil, openErr
	}
	return seg, nil
}

// Release drops one reference and unmaps the segment with the last one.
func (r *Registry) Release(seg *Segment) error {
	if seg == nil || seg.region == nil {
		return nil
	}
	last := false
	r.segments.RemoveCb(seg.region.Path, func(_ string, cur *Segment, exists bool) bool {
		if !exists || cur != seg {
			return false
		}
		cur.refs--
		last = cur.refs == 0
		return last
	})
	if last {
		return seg.Close()
	}
	return nil
}

// Len returns the number of mapped segments.
func (r *Registry) Len() int {
	return r.segments.Count()
}

// Refs returns the reference count of the segment mapped at path, zero if none.
func (r *Registry) Refs(path string) int {
	refs := 0
	r.segments.RemoveCb(path, func(_ string, cur *Segment, exists bool) bool {
		if exists && cur != nil {
			refs = cur.refs
		}
		return false
	})
	return refs
}
