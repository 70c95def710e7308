package waiter

import "errors"

var (
	// ErrInvalidName is returned by Open for an empty name.
	ErrInvalidName = errors.New("waiter: empty name")
	// ErrInvalidHandle is returned by Wait, Lock and Unlock for InvalidHandle.
	ErrInvalidHandle = errors.New("waiter: invalid handle")
	// ErrOpenTimeout is returned when the block stayed mid construction or
	// mid destruction for longer than Config.OpenTimeout.
	ErrOpenTimeout = errors.New("waiter: timed out waiting for block to settle")
	// ErrCorruptState is returned when the block holds an impossible count/phase pair.
	ErrCorruptState = errors.New("waiter: corrupt shared state")
	// ErrMisaligned is returned by Attach for a block that is not 8-byte aligned.
	ErrMisaligned = errors.New("waiter: state block must be 8-byte aligned")
	// ErrShortBuffer is returned by Attach for memory smaller than StateSize.
	ErrShortBuffer = errors.New("waiter: memory smaller than StateSize")

	errPhaseBusy = errors.New("waiter: block constructing or destroying")
)
