// Package waiter provides a wait/notify/broadcast primitive that unrelated
// processes can share through a region of shared memory.
//
// The shared state is a 32 byte State block placed by the caller (or by
// OpenNamed) in memory every participant maps. Each process attaches a
// Waiter view to the block and calls Open to obtain a Handle. The first Open
// of a generation builds the process-shared mutex and condition in place,
// the Close that drops the attachment count back to zero tears them down.
//
//	n, err := waiter.OpenNamed(ctx, "jobs", waiter.NamedOptions{})
//	if err != nil {
//		return err
//	}
//	defer n.Close()
//	n.Lock()
//	for !ready() {
//		n.WaitLocked()
//	}
//	n.Unlock()
//
// Wakeups follow the usual condition variable contract: they may be
// spurious, and a Notify issued before a waiter blocks is not remembered.
package waiter
