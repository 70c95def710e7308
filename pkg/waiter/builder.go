package waiter

import (
	"fmt"

	"github.com/srediag/shm-waiter/internal/pshared"
)

// construction and teardown steps, in the order they run
const (
	stepMutexAttrInit       = "mutexattr init"
	stepMutexAttrSetPShared = "mutexattr setpshared"
	stepMutexInit           = "mutex init"
	stepCondAttrInit        = "condattr init"
	stepCondAttrSetPShared  = "condattr setpshared"
	stepCondInit            = "cond init"
	stepCondAttrDestroy     = "condattr destroy"
	stepMutexDestroy        = "mutex destroy"
	stepMutexAttrDestroy    = "mutexattr destroy"
	stepCondDestroy         = "cond destroy"
)

type guard struct {
	step   string
	undo   func() error
	always bool
}

// builder runs a multi-step construction and unwinds it. release guards run
// on every exit, rollback guards only when the construction failed; both run
// in reverse registration order.
type builder struct {
	guards []guard
	// hook observes every step and undo; a non-nil error fails the step.
	hook func(step string) error
}

func (b *builder) do(step string, fn func() error) error {
	if b.hook != nil {
		if err := b.hook(step); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func (b *builder) release(step string, undo func() error) {
	b.guards = append(b.guards, guard{step: step, undo: undo, always: true})
}

func (b *builder) rollback(step string, undo func() error) {
	b.guards = append(b.guards, guard{step: step, undo: undo})
}

// finish unwinds the guards and returns the undo errors, which callers treat as best-effort.
func (b *builder) finish(failed bool) []error {
	var errs []error
	for i := len(b.guards) - 1; i >= 0; i-- {
		g := b.guards[i]
		if !g.always && !failed {
			continue
		}
		if b.hook != nil {
			_ = b.hook(g.step)
		}
		if err := g.undo(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.step, err))
		}
	}
	b.guards = nil
	return errs
}

// construct builds the process-shared mutex, then the condition, in place.
// On failure nothing it built is left initialized.
func (w *Waiter) construct(st *State) (err error) {
	b := builder{hook: w.stepHook}
	defer func() {
		for _, uerr := range b.finish(err != nil) {
			internalLogger.Warnf("waiter construct unwind: %v", uerr)
		}
	}()

	var mattr pshared.MutexAttr
	if err = b.do(stepMutexAttrInit, mattr.Init); err != nil {
		return err
	}
	b.release(stepMutexAttrDestroy, mattr.Destroy)
	if err = b.do(stepMutexAttrSetPShared, func() error { return mattr.SetPShared(true) }); err != nil {
		return err
	}
	if err = b.do(stepMutexInit, func() error { return st.mutex.Init(&mattr) }); err != nil {
		return err
	}
	b.rollback(stepMutexDestroy, st.mutex.Destroy)

	var cattr pshared.CondAttr
	if err = b.do(stepCondAttrInit, cattr.Init); err != nil {
		return err
	}
	b.release(stepCondAttrDestroy, cattr.Destroy)
	if err = b.do(stepCondAttrSetPShared, func() error { return cattr.SetPShared(true) }); err != nil {
		return err
	}
	return b.do(stepCondInit, func() error { return st.cond.Init(&cattr) })
}

// teardown destroys the condition, then the mutex. Failures are returned for
// logging only.
func (w *Waiter) teardown(st *State) []error {
	b := builder{hook: w.stepHook}
	b.rollback(stepMutexDestroy, st.mutex.Destroy)
	b.rollback(stepCondDestroy, st.cond.Destroy)
	return b.finish(true)
}
