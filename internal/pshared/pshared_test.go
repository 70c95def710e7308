package pshared

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoFutex(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("futex primitives only supported on Linux")
	}
}

func newMutex(t *testing.T, shared bool) *Mutex {
	t.Helper()
	var a MutexAttr
	require.NoError(t, a.Init())
	require.NoError(t, a.SetPShared(shared))
	m := &Mutex{}
	require.NoError(t, m.Init(&a))
	require.NoError(t, a.Destroy())
	return m
}

func newCond(t *testing.T, shared bool) *Cond {
	t.Helper()
	var a CondAttr
	require.NoError(t, a.Init())
	require.NoError(t, a.SetPShared(shared))
	c := &Cond{}
	require.NoError(t, c.Init(&a))
	require.NoError(t, a.Destroy())
	return c
}

func TestAttrLifecycle(t *testing.T) {
	skipIfNoFutex(t)

	var ma MutexAttr
	assert.ErrorIs(t, ma.SetPShared(true), ErrInvalidAttr)
	assert.ErrorIs(t, ma.Destroy(), ErrInvalidAttr)
	require.NoError(t, ma.Init())
	assert.False(t, ma.PShared())
	require.NoError(t, ma.SetPShared(true))
	assert.True(t, ma.PShared())
	require.NoError(t, ma.SetPShared(false))
	assert.False(t, ma.PShared())
	require.NoError(t, ma.Destroy())
	assert.ErrorIs(t, ma.Destroy(), ErrInvalidAttr)

	var ca CondAttr
	require.NoError(t, ca.Init())
	require.NoError(t, ca.SetPShared(true))
	assert.True(t, ca.PShared())
	require.NoError(t, ca.Destroy())

	// a destroyed attribute cannot build objects
	var m Mutex
	assert.ErrorIs(t, m.Init(&ma), ErrInvalidAttr)
	var c Cond
	assert.ErrorIs(t, c.Init(&ca), ErrInvalidAttr)
	assert.ErrorIs(t, c.Init(nil), ErrInvalidAttr)
}

func TestMutexUninitialized(t *testing.T) {
	var m Mutex
	assert.False(t, m.Ready())
	assert.ErrorIs(t, m.Lock(), ErrNotInitialized)
	assert.ErrorIs(t, m.Unlock(), ErrNotInitialized)
	_, err := m.TryLock()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.Destroy(), ErrNotInitialized)
}

func TestMutexLockUnlock(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, true)
	assert.True(t, m.Ready())
	assert.True(t, m.PShared())

	require.NoError(t, m.Lock())
	ok, err := m.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, m.Unlock())
	assert.ErrorIs(t, m.Unlock(), ErrNotLocked)

	ok, err = m.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, m.Unlock())

	require.NoError(t, m.Destroy())
	assert.False(t, m.Ready())
	assert.ErrorIs(t, m.Destroy(), ErrNotInitialized)
}

func TestMutexDestroyBusy(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, false)
	require.NoError(t, m.Lock())
	assert.ErrorIs(t, m.Destroy(), ErrBusy)
	assert.False(t, m.Ready())
}

func TestMutexContention(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, true)
	const workers, rounds = 8, 2000
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < rounds; k++ {
				if err := m.Lock(); err != nil {
					t.Errorf("lock: %v", err)
					return
				}
				counter++
				if err := m.Unlock(); err != nil {
					t.Errorf("unlock: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*rounds, counter)
}

func startWaiters(t *testing.T, m *Mutex, c *Cond, n int) chan error {
	t.Helper()
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			if err := m.Lock(); err != nil {
				done <- err
				return
			}
			err := c.Wait(m)
			_ = m.Unlock()
			done <- err
		}()
	}
	require.Eventually(t, func() bool { return c.Waiters() == uint32(n) }, time.Second, time.Millisecond)
	// Waiters counts callers inside Wait; give them time to reach the futex.
	time.Sleep(50 * time.Millisecond)
	return done
}

func TestCondSignalWakesOne(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, true)
	c := newCond(t, true)
	done := startWaiters(t, m, c, 2)

	require.NoError(t, c.Signal())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("signal did not wake a waiter")
	}
	select {
	case <-done:
		t.Fatal("signal woke more than one waiter")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, c.Broadcast())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("broadcast did not wake the remaining waiter")
	}
	assert.Equal(t, uint32(0), c.Waiters())
}

func TestCondBroadcastWakesAll(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, false)
	c := newCond(t, false)
	done := startWaiters(t, m, c, 3)

	require.NoError(t, c.Broadcast())
	for i := 0; i < 3; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatalf("broadcast woke only %d of 3 waiters", i)
		}
	}
}

func TestCondWithoutWaitersDoesNotBlock(t *testing.T) {
	skipIfNoFutex(t)

	c := newCond(t, true)
	require.NoError(t, c.Signal())
	require.NoError(t, c.Broadcast())
	assert.Equal(t, uint32(2), c.seq)
}

func TestCondWaitRequiresHeldMutex(t *testing.T) {
	skipIfNoFutex(t)

	m := newMutex(t, true)
	c := newCond(t, true)
	assert.ErrorIs(t, c.Wait(m), ErrNotLocked)
	assert.Equal(t, uint32(0), c.Waiters())
}

func TestCondUninitialized(t *testing.T) {
	var c Cond
	var m Mutex
	assert.ErrorIs(t, c.Wait(&m), ErrNotInitialized)
	assert.ErrorIs(t, c.Signal(), ErrNotInitialized)
	assert.ErrorIs(t, c.Broadcast(), ErrNotInitialized)
	assert.ErrorIs(t, c.Destroy(), ErrNotInitialized)
}

func TestCondDestroyBusy(t *testing.T) {
	skipIfNoFutex(t)

	c := newCond(t, true)
	c.waiters = 1
	assert.ErrorIs(t, c.Destroy(), ErrBusy)
	assert.False(t, c.Ready())
}
