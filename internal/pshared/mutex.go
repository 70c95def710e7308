package pshared

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/srediag/shm-waiter/internal/shm"
)

const (
	objReady = 1 << iota
	objShared
)

// futex word states of a Mutex
const (
	unlocked = iota
	locked
	contended
)

// Mutex is a futex based mutex that can live in shared memory.
type Mutex struct {
	key  uint32
	attr uint32
}

// Init initializes m in place with the settings of a. It probes the kernel
// with a zero-count wake so an address the kernel refuses is reported here
// rather than on first use.
func (m *Mutex) Init(a *MutexAttr) error {
	if !a.valid() {
		return ErrInvalidAttr
	}
	if !shm.Aligned(unsafe.Pointer(&m.key), 4) {
		return ErrMisaligned
	}
	shared := a.PShared()
	if _, err := shm.FutexWake(&m.key, 0, shared); err != nil {
		return fmt.Errorf("probe mutex word: %w", err)
	}
	atomic.StoreUint32(&m.key, unlocked)
	flags := uint32(objReady)
	if shared {
		flags |= objShared
	}
	atomic.StoreUint32(&m.attr, flags)
	return nil
}

func (m *Mutex) state() (shared, ok bool) {
	flags := atomic.LoadUint32(&m.attr)
	return flags&objShared != 0, flags&objReady != 0
}

// Ready reports whether m is initialized.
func (m *Mutex) Ready() bool {
	_, ok := m.state()
	return ok
}

// PShared reports whether m was initialized process-shared.
func (m *Mutex) PShared() bool {
	shared, _ := m.state()
	return shared
}

// Lock acquires m, sleeping on the futex word while it is held.
func (m *Mutex) Lock() error {
	shared, ok := m.state()
	if !ok {
		return ErrNotInitialized
	}
	if atomic.CompareAndSwapUint32(&m.key, unlocked, locked) {
		return nil
	}
	for atomic.SwapUint32(&m.key, contended) != unlocked {
		if err := shm.FutexWait(&m.key, contended, shared); err != nil {
			return fmt.Errorf("mutex lock: %w", err)
		}
		if !m.Ready() {
			return ErrNotInitialized
		}
	}
	return nil
}

// TryLock acquires m only if it is free.
func (m *Mutex) TryLock() (bool, error) {
	if !m.Ready() {
		return false, ErrNotInitialized
	}
	return atomic.CompareAndSwapUint32(&m.key, unlocked, locked), nil
}

// Unlock releases m and wakes one sleeper if there may be any.
func (m *Mutex) Unlock() error {
	shared, ok := m.state()
	if !ok {
		return ErrNotInitialized
	}
	switch atomic.SwapUint32(&m.key, unlocked) {
	case unlocked:
		return ErrNotLocked
	case contended:
		if _, err := shm.FutexWake(&m.key, 1, shared); err != nil {
			return fmt.Errorf("mutex unlock: %w", err)
		}
	}
	return nil
}

// Destroy returns m to the uninitialized state. ErrBusy reports that m was
// still held; it is torn down regardless.
func (m *Mutex) Destroy() error {
	if atomic.SwapUint32(&m.attr, 0)&objReady == 0 {
		return ErrNotInitialized
	}
	if atomic.SwapUint32(&m.key, unlocked) != unlocked {
		return ErrBusy
	}
	return nil
}
