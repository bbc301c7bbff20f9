// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package light manages the GPU-visible light array: every live
// light in the scene occupies one shaderlayout.LightLayout entry
// in a single shared constant buffer, addressed by index rather
// than by its own bindless slot.
//
// Grounded on the teacher's light.go (SunLight/PointLight/SpotLight
// plus a shader.LightLayout-backed Light wrapper); Manager replaces
// the teacher's unfinished per-light wiring with a single packed
// array, following the same allocator idiom as skin's bone-matrix
// pool but sized once to shaderlayout.MaxLight instead of growing
// per instance, since the whole array is bound as one descriptor.
package light

import (
	"errors"
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/linear"
	"github.com/vireoengine/forge/resource"
)

// Kind distinguishes the three supported light types.
type Kind int32

// Light kinds, matching shaderlayout's LightLayout type tag.
const (
	Direct Kind = Kind(shaderlayout.DirectLight)
	Point  Kind = Kind(shaderlayout.PointLight)
	Spot   Kind = Kind(shaderlayout.SpotLight)
)

// NoShadowView marks a Light with no associated shadow view.
const NoShadowView = shaderlayout.NoShadowView

// ErrFull means every slot in the light array is occupied.
var ErrFull = errors.New("light: array full")

// Light is the CPU-side description of a light source. Fields
// unused by Kind are ignored when written to the GPU array.
type Light struct {
	Kind       Kind
	Color      linear.V3
	Intensity  float32
	Range      float32
	AngScale   float32
	AngOffset  float32
	Position   linear.V3
	Direction  linear.V3
	ShadowView uint32
}

// Handle identifies a light occupying a slot in a Manager's array.
// The zero Handle is never returned by Manager.Add.
type Handle int32

// Manager owns the packed light array backing every frame's
// light binding. The array is sized once to shaderlayout.MaxLight
// entries; Add fails with ErrFull once that many lights are live.
type Manager struct {
	res  *resource.Manager
	cb   *resource.Buffer
	free bitm.Bitm[uint32]
}

// NewManager allocates the shared light array buffer through res
// and creates an empty Manager.
func NewManager(res *resource.Manager) (*Manager, error) {
	size := int64(shaderlayout.MaxLight) * int64(unsafe.Sizeof(shaderlayout.LightLayout{}))
	cb, err := res.NewBuffer(size, true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		return nil, err
	}
	mgr := &Manager{res: res, cb: cb}
	mgr.free.Grow(shaderlayout.MaxLight / 32)
	return mgr, nil
}

// Add occupies a slot in the array for l and returns its handle.
func (mgr *Manager) Add(l *Light) (Handle, error) {
	idx, ok := mgr.free.Search()
	if !ok {
		return 0, ErrFull
	}
	mgr.free.Set(idx)
	mgr.write(idx, l)
	return Handle(idx + 1), nil
}

// Update overwrites handle's array entry. It panics if handle is
// not currently occupied.
func (mgr *Manager) Update(handle Handle, l *Light) {
	mgr.write(mgr.index(handle), l)
}

// Remove frees handle's slot, marking it Unused in the array so a
// stale read before the next Add overwrites it cannot be mistaken
// for a live light.
func (mgr *Manager) Remove(handle Handle) {
	idx := mgr.index(handle)
	var l shaderlayout.LightLayout
	l.SetUnused(true)
	mgr.writeRaw(idx, &l)
	mgr.free.Unset(idx)
}

// Slot returns the bindless slot of the shared light array, for
// binding to the lighting passes. Every Handle shares this slot;
// Index gives the entry offset within it.
func (mgr *Manager) Slot() driver.DescriptorSlot { return mgr.cb.Slot }

// Index returns handle's entry index within the shared array.
func (mgr *Manager) Index(handle Handle) uint32 { return uint32(mgr.index(handle)) }

func (mgr *Manager) index(handle Handle) int {
	if handle <= 0 {
		panic("light: handle not registered with this Manager")
	}
	idx := int(handle) - 1
	if idx >= mgr.free.Len() || !mgr.free.IsSet(idx) {
		panic("light: handle not registered with this Manager")
	}
	return idx
}

func (mgr *Manager) write(idx int, l *Light) {
	var gl shaderlayout.LightLayout
	gl.SetUnused(false)
	gl.SetType(int32(l.Kind))
	gl.SetIntensity(l.Intensity)
	gl.SetColor(&l.Color)
	switch l.Kind {
	case Direct:
		gl.SetDirection(&l.Direction)
	case Point:
		gl.SetRange(l.Range)
		gl.SetPosition(&l.Position)
	case Spot:
		gl.SetRange(l.Range)
		gl.SetPosition(&l.Position)
		gl.SetAngScale(l.AngScale)
		gl.SetAngOffset(l.AngOffset)
		gl.SetDirection(&l.Direction)
	}
	gl.SetShadowView(l.ShadowView)
	mgr.writeRaw(idx, &gl)
}

func (mgr *Manager) writeRaw(idx int, gl *shaderlayout.LightLayout) {
	raw := unsafe.Slice((*byte)(unsafe.Pointer(gl)), unsafe.Sizeof(*gl))
	off := idx * int(unsafe.Sizeof(*gl))
	copy(mgr.cb.Res.Bytes()[off:], raw)
}
