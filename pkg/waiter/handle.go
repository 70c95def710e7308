package waiter

// Handle refers to an attached State block. The zero value is InvalidHandle;
// operations on it fail or do nothing without touching shared memory.
type Handle struct {
	st *State
}

// InvalidHandle refers to nothing.
var InvalidHandle Handle

// Valid reports whether h refers to a block.
func (h Handle) Valid() bool {
	return h.st != nil
}
