package pshared

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/srediag/shm-waiter/internal/shm"
)

// Cond is a sequence-counter condition variable that can live in shared
// memory. It must always be used with the same Mutex.
type Cond struct {
	seq     uint32
	waiters uint32
	attr    uint32
}

// Init initializes c in place with the settings of a.
func (c *Cond) Init(a *CondAttr) error {
	if !a.valid() {
		return ErrInvalidAttr
	}
	if !shm.Aligned(unsafe.Pointer(&c.seq), 4) {
		return ErrMisaligned
	}
	shared := a.PShared()
	if _, err := shm.FutexWake(&c.seq, 0, shared); err != nil {
		return fmt.Errorf("probe cond word: %w", err)
	}
	atomic.StoreUint32(&c.seq, 0)
	atomic.StoreUint32(&c.waiters, 0)
	flags := uint32(objReady)
	if shared {
		flags |= objShared
	}
	atomic.StoreUint32(&c.attr, flags)
	return nil
}

func (c *Cond) state() (shared, ok bool) {
	flags := atomic.LoadUint32(&c.attr)
	return flags&objShared != 0, flags&objReady != 0
}

// Ready reports whether c is initialized.
func (c *Cond) Ready() bool {
	_, ok := c.state()
	return ok
}

// PShared reports whether c was initialized process-shared.
func (c *Cond) PShared() bool {
	shared, _ := c.state()
	return shared
}

// Waiters returns the number of callers currently inside Wait.
func (c *Cond) Waiters() uint32 {
	return atomic.LoadUint32(&c.waiters)
}

// Wait atomically releases m and sleeps until Signal or Broadcast, then
// reacquires m before returning. The caller must hold m. Wakeups may be
// spurious.
func (c *Cond) Wait(m *Mutex) error {
	shared, ok := c.state()
	if !ok {
		return ErrNotInitialized
	}
	seq := atomic.LoadUint32(&c.seq)
	atomic.AddUint32(&c.waiters, 1)
	if err := m.Unlock(); err != nil {
		atomic.AddUint32(&c.waiters, ^uint32(0))
		return err
	}
	werr := shm.FutexWait(&c.seq, seq, shared)
	atomic.AddUint32(&c.waiters, ^uint32(0))
	if err := m.Lock(); err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("cond wait: %w", werr)
	}
	return nil
}

// Signal wakes at most one caller blocked in Wait.
func (c *Cond) Signal() error {
	return c.wake(1)
}

// Broadcast wakes every caller blocked in Wait.
func (c *Cond) Broadcast() error {
	return c.wake(shm.WakeAll)
}

func (c *Cond) wake(n int) error {
	shared, ok := c.state()
	if !ok {
		return ErrNotInitialized
	}
	atomic.AddUint32(&c.seq, 1)
	if atomic.LoadUint32(&c.waiters) == 0 {
		return nil
	}
	if _, err := shm.FutexWake(&c.seq, n, shared); err != nil {
		return fmt.Errorf("cond wake: %w", err)
	}
	return nil
}

// Destroy returns c to the uninitialized state. ErrBusy reports that callers
// were still inside Wait; c is torn down regardless.
func (c *Cond) Destroy() error {
	if atomic.SwapUint32(&c.attr, 0)&objReady == 0 {
		return ErrNotInitialized
	}
	if atomic.LoadUint32(&c.waiters) != 0 {
		return ErrBusy
	}
	return nil
}
