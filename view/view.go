// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package view manages the GPU-visible view array: one
// shaderlayout.ViewLayout entry per camera and per shadow-casting
// light face/cascade, addressed by RootConstants.ViewInfo.
//
// Grounded on the teacher's renderer.go (its NFrame-sized,
// fixed-capacity camera/light bookkeeping); Manager generalizes
// that fixed-array idiom to a single shared buffer with a
// bitm-backed free list, following the same shape as the light
// package's array, since both are pools of fixed-size entries
// addressed by index rather than by bindless slot.
package view

import (
	"errors"
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/linear"
	"github.com/vireoengine/forge/resource"
)

// MaxViews bounds the number of live ViewLayout entries: one per
// shadow-casting face/cascade (shaderlayout.MaxShadow) plus
// headroom for the scene's cameras.
const MaxViews = shaderlayout.MaxShadow + 8

// ErrFull means every slot in the view array is occupied.
var ErrFull = errors.New("view: array full")

// Handle identifies a view occupying a slot in a Manager's array.
// The zero Handle is never returned by Manager.Add.
type Handle int32

// View is the CPU-side description of a camera or shadow-casting
// light view.
type View struct {
	VP, V, P        linear.M4
	Position        linear.V3
	Near, Far       float32
	Width, Height   float32
}

// Manager owns the packed view array shared by every camera and
// shadow view in the scene.
type Manager struct {
	res  *resource.Manager
	cb   *resource.Buffer
	free bitm.Bitm[uint32]
}

// NewManager allocates the shared view array buffer through res
// and creates an empty Manager.
func NewManager(res *resource.Manager) (*Manager, error) {
	size := int64(MaxViews) * int64(unsafe.Sizeof(shaderlayout.ViewLayout{}))
	cb, err := res.NewBuffer(size, true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		return nil, err
	}
	mgr := &Manager{res: res, cb: cb}
	mgr.free.Grow((MaxViews + 31) / 32)
	return mgr, nil
}

// Add occupies a slot in the array for v and returns its handle.
func (mgr *Manager) Add(v *View) (Handle, error) {
	idx, ok := mgr.free.Search()
	if !ok || idx >= MaxViews {
		return 0, ErrFull
	}
	mgr.free.Set(idx)
	mgr.write(idx, v)
	return Handle(idx + 1), nil
}

// Update overwrites handle's array entry, e.g. once per frame as
// a camera or shadow-casting light moves. It panics if handle is
// not currently occupied.
func (mgr *Manager) Update(handle Handle, v *View) {
	mgr.write(mgr.index(handle), v)
}

// Remove frees handle's slot.
func (mgr *Manager) Remove(handle Handle) {
	mgr.free.Unset(mgr.index(handle))
}

// Slot returns the bindless slot of the shared view array.
func (mgr *Manager) Slot() driver.DescriptorSlot { return mgr.cb.Slot }

// Index returns handle's entry index within the shared array, for
// RootConstants.ViewInfo.
func (mgr *Manager) Index(handle Handle) uint32 { return uint32(mgr.index(handle)) }

func (mgr *Manager) index(handle Handle) int {
	if handle <= 0 {
		panic("view: handle not registered with this Manager")
	}
	idx := int(handle) - 1
	if idx >= mgr.free.Len() || !mgr.free.IsSet(idx) {
		panic("view: handle not registered with this Manager")
	}
	return idx
}

func (mgr *Manager) write(idx int, v *View) {
	var l shaderlayout.ViewLayout
	l.SetVP(&v.VP)
	l.SetV(&v.V)
	l.SetP(&v.P)
	l.SetPosition(&v.Position)
	l.SetPlanes(v.Near, v.Far)
	l.SetViewport(v.Width, v.Height)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l))
	off := idx * int(unsafe.Sizeof(l))
	copy(mgr.cb.Res.Bytes()[off:], raw)
}
