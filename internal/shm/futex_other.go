//go:build !linux

package shm

import "math"

// FutexSupported reports whether FutexWait and FutexWake reach the kernel.
const FutexSupported = false

// WakeAll is the wake count that releases every sleeper.
const WakeAll = math.MaxInt32

// FutexWait is not supported on this platform.
func FutexWait(addr *uint32, val uint32, shared bool) error {
	return ErrUnsupported
}

// FutexWake is not supported on this platform.
func FutexWake(addr *uint32, n int, shared bool) (int, error) {
	return 0, ErrUnsupported
}
