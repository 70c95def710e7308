package pshared

import (
	"github.com/srediag/shm-waiter/internal/shm"
)

const (
	attrInit = 1 << iota
	attrShared
)

type attr struct {
	flags uint32
}

func (a *attr) init() error {
	if !shm.FutexSupported {
		return ErrUnsupported
	}
	a.flags = attrInit
	return nil
}

func (a *attr) valid() bool {
	return a != nil && a.flags&attrInit != 0
}

func (a *attr) setPShared(shared bool) error {
	if !a.valid() {
		return ErrInvalidAttr
	}
	if shared {
		a.flags |= attrShared
	} else {
		a.flags &^= attrShared
	}
	return nil
}

func (a *attr) destroy() error {
	if !a.valid() {
		return ErrInvalidAttr
	}
	a.flags = 0
	return nil
}

// MutexAttr configures a Mutex at Init time. Objects default to process-private.
type MutexAttr struct {
	a attr
}

func (m *MutexAttr) Init() error                  { return m.a.init() }
func (m *MutexAttr) SetPShared(shared bool) error { return m.a.setPShared(shared) }
func (m *MutexAttr) PShared() bool                { return m.a.flags&attrShared != 0 }
func (m *MutexAttr) Destroy() error               { return m.a.destroy() }
func (m *MutexAttr) valid() bool                  { return m != nil && m.a.valid() }

// CondAttr configures a Cond at Init time. Objects default to process-private.
type CondAttr struct {
	a attr
}

func (c *CondAttr) Init() error                  { return c.a.init() }
func (c *CondAttr) SetPShared(shared bool) error { return c.a.setPShared(shared) }
func (c *CondAttr) PShared() bool                { return c.a.flags&attrShared != 0 }
func (c *CondAttr) Destroy() error               { return c.a.destroy() }
func (c *CondAttr) valid() bool                  { return c != nil && c.a.valid() }
