package pshared

import (
	"errors"

	"github.com/srediag/shm-waiter/internal/shm"
)

var (
	// ErrUnsupported is returned by attribute Init where futexes are unavailable.
	ErrUnsupported = shm.ErrUnsupported
	// ErrInvalidAttr is returned when an attribute is used before Init or after Destroy.
	ErrInvalidAttr = errors.New("pshared: invalid attribute object")
	// ErrNotInitialized is returned when a mutex or cond is used before Init or after Destroy.
	ErrNotInitialized = errors.New("pshared: object not initialized")
	// ErrNotLocked is returned by Unlock on a mutex nobody holds.
	ErrNotLocked = errors.New("pshared: mutex not locked")
	// ErrBusy is returned by Destroy when the object was still in use. The object is torn down anyway.
	ErrBusy = errors.New("pshared: object busy")
	// ErrMisaligned is returned when a futex word is not 4-byte aligned.
	ErrMisaligned = errors.New("pshared: futex word misaligned")
)
