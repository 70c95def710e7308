package waiter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/shm-waiter/internal/shm"
)

// Waiter is a process-local view of a State block living in shared memory.
// It owns nothing in that memory; several Waiters, in one process or many,
// may view the same block.
type Waiter struct {
	st  *State
	cfg *Config
	in  *instruments

	// stepHook is set by tests to observe and fail construction steps.
	stepHook func(step string) error
}

// Attach returns a Waiter over the first StateSize bytes of mem. mem must
// stay mapped for as long as the Waiter or any of its Handles is used.
func Attach(mem []byte, cfg *Config) (*Waiter, error) {
	if len(mem) < StateSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortBuffer, len(mem))
	}
	return AttachPointer(unsafe.Pointer(&mem[0]), cfg)
}

// AttachPointer returns a Waiter over the block at p.
func AttachPointer(p unsafe.Pointer, cfg *Config) (*Waiter, error) {
	if p == nil {
		return nil, ErrShortBuffer
	}
	if !internalshm.Aligned(p, 8) {
		return nil, ErrMisaligned
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	in, err := newInstruments(cfg)
	if err != nil {
		return nil, fmt.Errorf("waiter instruments: %w", err)
	}
	return &Waiter{st: (*State)(p), cfg: cfg, in: in}, nil
}

// Snapshot returns the current state of the block.
func (w *Waiter) Snapshot() Snapshot {
	return w.st.snapshot()
}

// Open attaches to the block. name only gates validity: the caller already
// chose the block for that name. See OpenContext.
func (w *Waiter) Open(name string) (Handle, error) {
	return w.OpenContext(context.Background(), name)
}

// OpenContext increments the attachment count. The caller that moves the
// count from zero constructs the process-shared mutex and condition; if any
// step fails everything is unwound, the count is restored and InvalidHandle
// is returned.
//
// A caller arriving while another one constructs or destroys the block polls
// until the block settles, ctx ends or Config.OpenTimeout elapses.
func (w *Waiter) OpenContext(ctx context.Context, name string) (h Handle, err error) {
	if name == "" {
		w.in.record(ctx, opOpen, ErrInvalidName)
		return InvalidHandle, ErrInvalidName
	}
	ctx, span := w.in.tracer.Start(ctx, "waiter.Open", trace.WithAttributes(attribute.String("waiter.name", name)))
	defer func() {
		w.in.record(ctx, opOpen, err)
		endSpan(span, err)
	}()

	st := w.st
	attach := func() error {
		for {
			old := st.load()
			count, phase := unpack(old)
			switch phase {
			case PhaseUninitialized:
				if count != 0 {
					return backoff.Permanent(fmt.Errorf("%w: count %d while %s", ErrCorruptState, count, phase))
				}
				if !st.cas(old, pack(1, PhaseConstructing)) {
					continue
				}
				cerr := w.construct(st)
				w.in.record(ctx, opConstruct, cerr)
				if cerr != nil {
					st.store(pack(0, PhaseUninitialized))
					internalLogger.Warnf("waiter %s construct failed: %v", name, cerr)
					return backoff.Permanent(cerr)
				}
				gen := atomic.AddUint32(&st.gen, 1)
				st.store(pack(1, PhaseReady))
				internalLogger.Debugf("waiter %s constructed generation %d", name, gen)
				return nil
			case PhaseReady:
				if st.cas(old, pack(count+1, PhaseReady)) {
					return nil
				}
			case PhaseConstructing, PhaseDestroying:
				return errPhaseBusy
			default:
				return backoff.Permanent(fmt.Errorf("%w: phase %s", ErrCorruptState, phase))
			}
		}
	}
	if err = backoff.Retry(attach, w.openBackOff(ctx)); err != nil {
		if errors.Is(err, errPhaseBusy) {
			err = ErrOpenTimeout
		}
		return InvalidHandle, err
	}
	return Handle{st: st}, nil
}

func (w *Waiter) openBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.OpenInitialInterval
	b.MaxInterval = w.cfg.OpenMaxInterval
	b.MaxElapsedTime = w.cfg.OpenTimeout
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Close releases one attachment. The Close that drops the count to zero
// destroys the condition and then the mutex; destroy failures are logged and
// otherwise ignored. Close on InvalidHandle does nothing.
func (w *Waiter) Close(h Handle) {
	st := h.st
	if st == nil {
		return
	}
	for {
		old := st.load()
		count, phase := unpack(old)
		if phase != PhaseReady || count == 0 {
			internalLogger.Warnf("waiter close on unattached block (count %d, phase %s)", count, phase)
			w.in.record(context.Background(), opClose, ErrCorruptState)
			return
		}
		if count > 1 {
			if st.cas(old, pack(count-1, PhaseReady)) {
				w.in.record(context.Background(), opClose, nil)
				return
			}
			continue
		}
		if !st.cas(old, pack(0, PhaseDestroying)) {
			continue
		}
		errs := w.teardown(st)
		for _, err := range errs {
			internalLogger.Warnf("waiter destroy: %v", err)
		}
		st.store(pack(0, PhaseUninitialized))
		w.in.record(context.Background(), opDestroy, errors.Join(errs...))
		w.in.record(context.Background(), opClose, nil)
		internalLogger.Debugf("waiter destroyed generation %d", atomic.LoadUint32(&st.gen))
		return
	}
}

// Wait locks the block's mutex, blocks on its condition until woken and
// unlocks again. Callers waiting for a predicate should use Lock, WaitLocked
// and Unlock in a loop instead, since a wakeup carries no reason.
func (w *Waiter) Wait(h Handle) (err error) {
	st := h.st
	if st == nil {
		w.in.record(context.Background(), opWait, ErrInvalidHandle)
		return ErrInvalidHandle
	}
	start := time.Now()
	defer func() {
		w.in.recordWait(context.Background(), time.Since(start), err)
	}()

	if err := st.mutex.Lock(); err != nil {
		return fmt.Errorf("waiter lock: %w", err)
	}
	defer func() { _ = st.mutex.Unlock() }()
	return st.cond.Wait(&st.mutex)
}

// WaitLocked blocks on the condition while the caller holds the mutex
// through Lock. The mutex is held again when it returns.
func (w *Waiter) WaitLocked(h Handle) (err error) {
	st := h.st
	if st == nil {
		w.in.record(context.Background(), opWait, ErrInvalidHandle)
		return ErrInvalidHandle
	}
	start := time.Now()
	defer func() {
		w.in.recordWait(context.Background(), time.Since(start), err)
	}()
	return st.cond.Wait(&st.mutex)
}

// Lock acquires the mutex paired with the block's condition.
func (w *Waiter) Lock(h Handle) error {
	if h.st == nil {
		return ErrInvalidHandle
	}
	return h.st.mutex.Lock()
}

// Unlock releases the mutex acquired by Lock.
func (w *Waiter) Unlock(h Handle) error {
	if h.st == nil {
		return ErrInvalidHandle
	}
	return h.st.mutex.Unlock()
}

// Notify wakes at most one caller blocked in Wait. It does not take the
// mutex, so a waiter that has not reached its blocking point yet misses it.
func (w *Waiter) Notify(h Handle) {
	if h.st == nil {
		return
	}
	err := h.st.cond.Signal()
	if err != nil {
		internalLogger.Warnf("waiter notify: %v", err)
	}
	w.in.record(context.Background(), opNotify, err)
}

// Broadcast wakes every caller currently blocked in Wait.
func (w *Waiter) Broadcast(h Handle) {
	if h.st == nil {
		return
	}
	err := h.st.cond.Broadcast()
	if err != nil {
		internalLogger.Warnf("waiter broadcast: %v", err)
	}
	w.in.record(context.Background(), opBroadcast, err)
}
