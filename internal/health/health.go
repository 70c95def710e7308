// Package health contains the checks behind the waiter health endpoints.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

// StateFunc reports the phase name and attachment count of a waiter block.
type StateFunc func() (phase string, count uint32)

// FreeSpaceCheck fails when the filesystem holding dir has less than min free bytes.
func FreeSpaceCheck(dir string, min uint64) healthcheck.Check {
	return func() error {
		free, err := internalshm.FreeSpace(dir)
		if err != nil {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if free < min {
			return fmt.Errorf("%s has %d bytes free, want %d", dir, free, min)
		}
		return nil
	}
}

// AttachedCheck fails unless the block is ready and attached at least once.
func AttachedCheck(state StateFunc) healthcheck.Check {
	return func() error {
		phase, count := state()
		if phase != "ready" || count == 0 {
			return fmt.Errorf("waiter %s with %d attachments", phase, count)
		}
		return nil
	}
}
