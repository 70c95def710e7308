//go:build linux

package shm

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWaitOp      = 0
	futexWakeOp      = 1
	futexPrivateFlag = 128
)

// FutexSupported reports whether FutexWait and FutexWake reach the kernel.
const FutexSupported = true

// WakeAll is the wake count that releases every sleeper.
const WakeAll = math.MaxInt32

func futexOp(op int, shared bool) uintptr {
	if !shared {
		op |= futexPrivateFlag
	}
	return uintptr(op)
}

// FutexWait sleeps while *addr == val. shared selects the process-shared ops so
// sleepers in other mappings of the same page can be woken; private ops only
// match sleepers of the same mm.
//
// EAGAIN and EINTR return nil; callers always re-check their condition.
func FutexWait(addr *uint32, val uint32, shared bool) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOp(futexWaitOp, shared),
		uintptr(val),
		0, 0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	}
	return fmt.Errorf("futex wait failed: %w", errno)
}

// FutexWake wakes up to n sleepers on addr and returns how many were woken.
func FutexWake(addr *uint32, n int, shared bool) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOp(futexWakeOp, shared),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}
