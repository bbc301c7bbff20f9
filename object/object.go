// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package object manages per-object GPU constant data: one
// shaderlayout.PerObjectLayout slot per renderable object,
// addressed by RootConstants.PerObject.
//
// Grounded on the teacher's drawable.go (dataMap-backed per-object
// CB + Drawable identifiers); Manager replaces dataMap's unfinished
// bitm-free-list-plus-dense-array shape with the same idiom the
// rest of this tree uses for GPU-backed tables: allocate through a
// *resource.Manager, defer release through it too.
package object

import (
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/linear"
	"github.com/vireoengine/forge/resource"
)

// Handle identifies an object registered with a Manager. The zero
// Handle is never returned by Manager.Add.
type Handle int32

// Flags an object contributes to its PerObjectLayout entry.
const (
	CastsShadow = shaderlayout.ObjCastShadow
	Skinned     = shaderlayout.ObjSkinned
)

// Object is the CPU-side description of a renderable object's
// per-object data.
type Object struct {
	World  linear.M4
	Normal linear.M4
	Flags  uint32
}

type entry struct {
	cb *resource.Buffer
}

// Manager owns the per-object constant buffer table. Every
// Renderable entity that has been assigned a handle through Add has
// a live PerObjectLayout entry until Remove is called.
type Manager struct {
	res     *resource.Manager
	entries map[Handle]*entry
	nextID  Handle
}

// NewManager creates a Manager allocating through res.
func NewManager(res *resource.Manager) *Manager {
	return &Manager{res: res, entries: make(map[Handle]*entry)}
}

// Add allocates a PerObjectLayout slot for obj and returns its
// handle.
func (mgr *Manager) Add(obj *Object) (Handle, error) {
	cb, err := mgr.res.NewBuffer(int64(unsafe.Sizeof(shaderlayout.PerObjectLayout{})), true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		return 0, err
	}
	mgr.write(cb, obj)
	mgr.nextID++
	id := mgr.nextID
	mgr.entries[id] = &entry{cb: cb}
	return id, nil
}

// Update overwrites handle's PerObjectLayout entry, e.g. after the
// scene graph recomputes the object's world transform. It panics if
// handle is not currently registered.
func (mgr *Manager) Update(handle Handle, obj *Object) {
	mgr.write(mgr.mustEntry(handle).cb, obj)
}

func (mgr *Manager) write(cb *resource.Buffer, obj *Object) {
	var l shaderlayout.PerObjectLayout
	l.SetWorld(&obj.World)
	l.SetNormal(&obj.Normal)
	l.SetFlags(obj.Flags)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l))
	copy(cb.Res.Bytes(), raw)
}

// Remove defers release of handle's PerObjectLayout slot through
// the resource Manager's deletion path. It panics if handle is not
// currently registered.
func (mgr *Manager) Remove(handle Handle) {
	mgr.res.FreeBuffer(mgr.mustEntry(handle).cb)
	delete(mgr.entries, handle)
}

// Slot returns the bindless slot of handle's PerObjectLayout entry.
func (mgr *Manager) Slot(handle Handle) driver.DescriptorSlot {
	return mgr.mustEntry(handle).cb.Slot
}

func (mgr *Manager) mustEntry(handle Handle) *entry {
	e, ok := mgr.entries[handle]
	if !ok {
		panic("object: handle not registered with this Manager")
	}
	return e
}
