package waiter

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

const (
	helperEnv    = "SHMWAITER_HELPER_PROCESS"
	helperDirEnv = "SHMWAITER_HELPER_DIR"
	helperName   = "crossproc"
)

// mapTwice maps one file at two addresses, which the kernel treats like two
// processes mapping the same segment.
func mapTwice(t *testing.T) (a, b []byte) {
	t.Helper()
	opts := internalshm.MapOptions{Name: "twice", Dir: t.TempDir(), Size: 4096, Create: true}
	ra, err := internalshm.MapRegion(context.Background(), opts)
	require.NoError(t, err)
	rb, err := internalshm.MapRegion(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, internalshm.UnmapRegion(context.Background(), ra))
		assert.NoError(t, internalshm.UnmapRegion(context.Background(), rb))
	})
	return ra.Addr, rb.Addr
}

func TestSeparateMappingsShareWaiter(t *testing.T) {
	skipIfNoFutex(t)
	SetLogOutput(io.Discard)
	memA, memB := mapTwice(t)

	wa, err := Attach(memA, nil)
	require.NoError(t, err)
	wb, err := Attach(memB, nil)
	require.NoError(t, err)

	ha, err := wa.Open("mapped")
	require.NoError(t, err)
	hb, err := wb.Open("mapped")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), wb.Snapshot().Count)
	assert.Equal(t, uint32(1), wb.Snapshot().Generation)

	var woken int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, wa.Wait(ha))
		atomic.StoreInt32(&woken, 1)
	}()
	require.Eventually(t, func() bool { return wb.Snapshot().Waiters == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	wb.Notify(hb)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify through the second mapping did not wake the first")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&woken))

	wa.Close(ha)
	wb.Close(hb)
	assert.Equal(t, PhaseUninitialized, wa.Snapshot().Phase)
}

// TestHelperProcess is the child side of TestCrossProcessNotify.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	SetLogOutput(io.Discard)
	n, err := OpenNamed(context.Background(), helperName, NamedOptions{Dir: os.Getenv(helperDirEnv)})
	require.NoError(t, err)
	require.NoError(t, n.Wait())
	require.NoError(t, n.Close())
}

func TestCrossProcessNotify(t *testing.T) {
	skipIfNoFutex(t)
	SetLogOutput(io.Discard)
	dir := t.TempDir()

	n, err := OpenNamed(context.Background(), helperName, NamedOptions{Dir: dir})
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"=1", helperDirEnv+"="+dir)
	require.NoError(t, cmd.Start())

	require.Eventually(t, func() bool {
		snap := n.Snapshot()
		return snap.Count == 2 && snap.Waiters == 1
	}, 5*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	n.Notify()

	require.NoError(t, cmd.Wait())
	snap := n.Snapshot()
	assert.Equal(t, uint32(1), snap.Count)
	assert.Equal(t, uint32(1), snap.Generation)
}
