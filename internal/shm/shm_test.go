package shm

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNotLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("shared mappings only supported on Linux")
	}
}

func TestRegionPath(t *testing.T) {
	p, err := RegionPath("/tmp/x", "seg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/x", "seg"), p)

	p, err = RegionPath("", "seg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir(), "seg"), p)

	_, err = RegionPath("/tmp", "")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = RegionPath("/tmp", "a/b")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestMapRegionShared(t *testing.T) {
	skipIfNotLinux(t)
	ctx := context.Background()
	dir := t.TempDir()
	opts := MapOptions{Name: "region", Dir: dir, Size: 4096, Create: true}

	a, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer func() { assert.NoError(t, UnmapRegion(ctx, a)) }()
	assert.Equal(t, filepath.Join(dir, "region"), a.Path)
	assert.Len(t, a.Addr, 4096)
	assert.Equal(t, make([]byte, 4096), a.Addr, "new regions are zero filled")

	opts.Create = false
	b, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer func() { assert.NoError(t, UnmapRegion(ctx, b)) }()

	copy(a.Addr, "hello")
	assert.Equal(t, "hello", string(b.Addr[:5]))

	info, err := os.Stat(a.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
}

func TestMapRegionErrors(t *testing.T) {
	skipIfNotLinux(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := MapRegion(ctx, MapOptions{Name: "missing", Dir: dir, Size: 64})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = MapRegion(ctx, MapOptions{Name: "zero", Dir: dir, Size: 0, Create: true})
	assert.Error(t, err)

	small, err := MapRegion(ctx, MapOptions{Name: "small", Dir: dir, Size: 64, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, small))
	_, err = MapRegion(ctx, MapOptions{Name: "small", Dir: dir, Size: 128})
	assert.ErrorIs(t, err, ErrRegionTooSmall)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = MapRegion(canceled, MapOptions{Name: "small", Dir: dir, Size: 64})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnmapAndRemove(t *testing.T) {
	skipIfNotLinux(t)
	ctx := context.Background()
	dir := t.TempDir()

	assert.NoError(t, UnmapRegion(ctx, nil))
	r, err := MapRegion(ctx, MapOptions{Name: "gone", Dir: dir, Size: 64, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, r))
	assert.Nil(t, r.Addr)
	assert.NoError(t, UnmapRegion(ctx, r))

	require.NoError(t, RemoveRegion(dir, "gone"))
	_, err = os.Stat(filepath.Join(dir, "gone"))
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, RemoveRegion(dir, "gone"))
}

func TestCanCreate(t *testing.T) {
	assert.True(t, CanCreate(1<<62, filepath.Join(os.TempDir(), "x")))
	if _, err := os.Stat(DevShmDir); err != nil {
		t.Skip("no /dev/shm")
	}
	assert.True(t, CanCreate(1, DevShmDir+"/x"))
	assert.False(t, CanCreate(1<<62, DevShmDir+"/x"))

	free, err := FreeSpace(DevShmDir)
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestFutexWaitWake(t *testing.T) {
	if !FutexSupported {
		t.Skip("no futex on this platform")
	}
	for _, shared := range []bool{false, true} {
		var word uint32
		// A stale value returns immediately.
		require.NoError(t, FutexWait(&word, 1, shared))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for atomic.LoadUint32(&word) == 0 {
				assert.NoError(t, FutexWait(&word, 0, shared))
			}
		}()
		time.Sleep(20 * time.Millisecond)
		atomic.StoreUint32(&word, 1)
		_, err := FutexWake(&word, WakeAll, shared)
		require.NoError(t, err)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("futex sleeper not woken (shared=%t)", shared)
		}
	}
}

func TestAtomicHelpers(t *testing.T) {
	var v uint64
	p := unsafe.Pointer(&v)
	assert.True(t, Aligned(p, 8))
	AtomicStoreUint64(p, 7)
	assert.Equal(t, uint64(7), AtomicLoadUint64(p))
	assert.False(t, AtomicCompareAndSwapUint64(p, 1, 2))
	assert.True(t, AtomicCompareAndSwapUint64(p, 7, 9))
	assert.Equal(t, uint32(9), AtomicLoadUint32(p))
}
