// Package shm maps named shared memory segments for inter-process communication (IPC).
//
// A segment is a file under /dev/shm (or a caller chosen directory) mapped
// MAP_SHARED into every process that opens it. Freshly created segments are
// zero filled, which is the uninitialized state of every structure this
// module keeps in shared memory.
//
// Example usage:
//
//	seg, err := shm.Open(ctx, shm.OpenOptions{
//	  Name:   "myshm",
//	  Size:   4096,
//	  Create: true,
//	})
//	// ...
//	defer seg.Close()
//
// Registry keeps one mapping per segment path in a process and reference
// counts it, so independent users in one process share a single mapping.
//
// Platform-specific helpers are in internal/shm.
package shm
