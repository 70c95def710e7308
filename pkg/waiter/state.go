package waiter

import (
	"fmt"
	"unsafe"

	"github.com/srediag/shm-waiter/internal/pshared"
	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

// Phase is the lifecycle stage of a State block.
type Phase uint32

const (
	PhaseUninitialized Phase = iota
	PhaseConstructing
	PhaseReady
	PhaseDestroying
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseConstructing:
		return "constructing"
	case PhaseReady:
		return "ready"
	case PhaseDestroying:
		return "destroying"
	}
	return fmt.Sprintf("phase(%d)", uint32(p))
}

// State is the shared-memory resident block. All-zero memory is a valid
// uninitialized block. The layout is fixed so every process sees the same
// fields at the same offsets:
//
//	0  attach  count (low 32 bits) | phase (high 32 bits)
//	8  mutex   futex word, attribute word
//	16 cond    sequence word, waiter count, attribute word
//	28 gen     completed constructions
type State struct {
	attach uint64
	mutex  pshared.Mutex
	cond   pshared.Cond
	gen    uint32
}

// StateSize is the number of bytes a State occupies in shared memory.
const StateSize = int(unsafe.Sizeof(State{}))

func pack(count uint32, phase Phase) uint64 {
	return uint64(phase)<<32 | uint64(count)
}

func unpack(v uint64) (uint32, Phase) {
	return uint32(v), Phase(v >> 32)
}

func (s *State) load() uint64 {
	return internalshm.AtomicLoadUint64(unsafe.Pointer(&s.attach))
}

func (s *State) store(v uint64) {
	internalshm.AtomicStoreUint64(unsafe.Pointer(&s.attach), v)
}

func (s *State) cas(old, new uint64) bool {
	return internalshm.AtomicCompareAndSwapUint64(unsafe.Pointer(&s.attach), old, new)
}

// Snapshot is a point in time view of a State block.
type Snapshot struct {
	Count      uint32
	Phase      Phase
	Generation uint32
	MutexReady bool
	CondReady  bool
	PShared    bool
	Waiters    uint32
}

func (s *State) snapshot() Snapshot {
	count, phase := unpack(s.load())
	return Snapshot{
		Count:      count,
		Phase:      phase,
		Generation: internalshm.AtomicLoadUint32(unsafe.Pointer(&s.gen)),
		MutexReady: s.mutex.Ready(),
		CondReady:  s.cond.Ready(),
		PShared:    s.mutex.PShared() && s.cond.PShared(),
		Waiters:    s.cond.Waiters(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("count:%d phase:%s gen:%d mutex:%t cond:%t pshared:%t waiters:%d",
		s.Count, s.Phase, s.Generation, s.MutexReady, s.CondReady, s.PShared, s.Waiters)
}
