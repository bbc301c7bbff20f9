// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package material

import (
	"hash/fnv"
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/ecs"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/resource"
)

// Handle identifies a material registered with a Manager. The zero
// Handle is never returned by Manager.Add.
type Handle int32

// TechniqueDescriptor identifies the shader permutation a material
// draws with: the set of render phases its draws participate in,
// plus a hash of the compile-time flags (alpha mode, double-sided,
// material model) that select its shader variant. Two materials
// with equal TechniqueDescriptors can share a pipeline.
type TechniqueDescriptor struct {
	Phases       ecs.Phase
	CompileFlags uint64
}

// entry is a Manager-owned material slot.
type entry struct {
	mat       *Material
	technique TechniqueDescriptor
	cb        *resource.Buffer
	useCount  int
}

// Manager owns a ref-counted table of materials and the constant
// buffer slot each one's shaderlayout.MaterialLayout data occupies.
// A mesh instance that selects a material calls IncrementUsage when
// it starts drawing with it and DecrementUsage when it stops (or is
// destroyed); the material's GPU resources are only released once
// its use count returns to zero, since several mesh instances may
// share one Add'ed material.
type Manager struct {
	res     *resource.Manager
	entries map[Handle]*entry
	nextID  Handle
}

// NewManager creates a Manager allocating constant buffers through
// res.
func NewManager(res *resource.Manager) *Manager {
	return &Manager{res: res, entries: make(map[Handle]*entry)}
}

// Add validates and registers mat, uploads its shader-facing
// constant data and returns a Handle with a use count of 1.
func (mgr *Manager) Add(mat *Material) (Handle, error) {
	cb, err := mgr.res.NewBuffer(int64(unsafe.Sizeof(shaderlayout.MaterialLayout{})), true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		return 0, err
	}
	writeLayout(cb, mat)
	mgr.nextID++
	id := mgr.nextID
	mgr.entries[id] = &entry{mat: mat, technique: techniqueFor(mat), cb: cb, useCount: 1}
	return id, nil
}

// IncrementUsage records an additional reference to handle's
// material (e.g. a mesh instance that starts selecting it),
// returning the resulting use count. It panics if handle is not
// currently registered.
func (mgr *Manager) IncrementUsage(handle Handle) int {
	e := mgr.mustEntry(handle)
	e.useCount++
	return e.useCount
}

// DecrementUsage drops a reference to handle's material. Once the
// use count reaches zero, the material's constant buffer is freed
// through the resource Manager's deferred-release path (so any
// frame still in flight keeps seeing valid data) and handle becomes
// invalid. It panics if handle is not currently registered.
func (mgr *Manager) DecrementUsage(handle Handle) int {
	e := mgr.mustEntry(handle)
	e.useCount--
	if e.useCount <= 0 {
		mgr.res.FreeBuffer(e.cb)
		delete(mgr.entries, handle)
		return 0
	}
	return e.useCount
}

// UseCount returns handle's current use count, or 0 if handle is
// not registered.
func (mgr *Manager) UseCount(handle Handle) int {
	if e, ok := mgr.entries[handle]; ok {
		return e.useCount
	}
	return 0
}

// Technique returns the TechniqueDescriptor derived for handle's
// material when it was added.
func (mgr *Manager) Technique(handle Handle) TechniqueDescriptor {
	return mgr.mustEntry(handle).technique
}

// Slot returns the bindless slot of handle's material constant
// buffer, for use as a PerMeshLayout entry's material data index.
func (mgr *Manager) Slot(handle Handle) driver.DescriptorSlot {
	return mgr.mustEntry(handle).cb.Slot
}

func (mgr *Manager) mustEntry(handle Handle) *entry {
	e, ok := mgr.entries[handle]
	if !ok {
		panic("material: handle not registered with this Manager")
	}
	return e
}

// texSlots resolves a TexRef to its bindless texture/sampler slot
// pair, or a pair of driver.InvalidSlot if the reference is unset.
func texSlots(ref *TexRef) (tex, splr int32) {
	if ref.Texture == nil || ref.Sampler == nil {
		return int32(driver.InvalidSlot), int32(driver.InvalidSlot)
	}
	return int32(ref.Texture.Slot), int32(ref.Sampler.Slot)
}

// writeLayout encodes mat's properties into cb's backing storage
// using the shaderlayout.MaterialLayout accessors.
func writeLayout(cb *resource.Buffer, mat *Material) {
	var l shaderlayout.MaterialLayout
	switch p := mat.prop.(type) {
	case *PBR:
		l.SetColorFactor(&p.BaseColor.Factor)
		l.SetMetalRough(p.MetalRough.Metalness, p.MetalRough.Roughness)
		l.SetNormScale(p.Normal.Scale)
		l.SetOccStrength(p.Occlusion.Strength)
		l.SetEmisFactor(&p.Emissive.Factor)
		l.SetAlphaCutoff(p.AlphaCutoff)
		l.SetFlags(pbrFlags(p))
		setTexSlots(&l, &p.BaseColor.TexRef, &p.MetalRough.TexRef, &p.Normal.TexRef, &p.Occlusion.TexRef, &p.Emissive.TexRef)
	case *Unlit:
		l.SetColorFactor(&p.BaseColor.Factor)
		l.SetAlphaCutoff(p.AlphaCutoff)
		l.SetFlags(unlitFlags(p))
		setTexSlots(&l, &p.BaseColor.TexRef, nil, nil, nil, nil)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l))
	copy(cb.Res.Bytes(), raw)
}

func setTexSlots(l *shaderlayout.MaterialLayout, baseColor, metalRough, normal, occlusion, emissive *TexRef) {
	set := func(off int, ref *TexRef) {
		if ref == nil {
			l.SetSlots(off, int32(driver.InvalidSlot), int32(driver.InvalidSlot))
			return
		}
		tex, splr := texSlots(ref)
		l.SetSlots(off, tex, splr)
	}
	set(shaderlayout.SlotBaseColor, baseColor)
	set(shaderlayout.SlotMetalRough, metalRough)
	set(shaderlayout.SlotNormal, normal)
	set(shaderlayout.SlotOcclusion, occlusion)
	set(shaderlayout.SlotEmissive, emissive)
}

func pbrFlags(p *PBR) uint32 {
	flg := shaderlayout.MatPBR
	switch p.AlphaMode {
	case AlphaOpaque:
		flg |= shaderlayout.MatAOpaque
	case AlphaBlend:
		flg |= shaderlayout.MatABlend
	case AlphaMask:
		flg |= shaderlayout.MatAMask
	}
	if p.DoubleSided {
		flg |= shaderlayout.MatDoubleSided
	}
	return flg
}

func unlitFlags(p *Unlit) uint32 {
	flg := shaderlayout.MatUnlit
	switch p.AlphaMode {
	case AlphaOpaque:
		flg |= shaderlayout.MatAOpaque
	case AlphaBlend:
		flg |= shaderlayout.MatABlend
	case AlphaMask:
		flg |= shaderlayout.MatAMask
	}
	if p.DoubleSided {
		flg |= shaderlayout.MatDoubleSided
	}
	return flg
}

// techniqueFor derives the render-phase set and a hash of the
// compile-time shader flags implied by mat's properties.
func techniqueFor(mat *Material) TechniqueDescriptor {
	var flags uint32
	var phases ecs.Phase
	switch p := mat.prop.(type) {
	case *PBR:
		flags = pbrFlags(p)
		phases = ecs.PhaseGBuffer
		switch p.AlphaMode {
		case AlphaOpaque, AlphaMask:
			// Only opaque/masked geometry contributes to the
			// depth prepass and casts shadows; blended geometry
			// is drawn forward instead.
			phases |= ecs.PhaseZPrepass | ecs.PhaseShadow
		case AlphaBlend:
			phases = ecs.PhaseTransparent
		}
	case *Unlit:
		flags = unlitFlags(p)
		phases = ecs.PhaseForward
		if p.AlphaMode == AlphaBlend {
			phases = ecs.PhaseTransparent
		}
	}
	h := fnv.New64a()
	h.Write([]byte{byte(flags), byte(flags >> 8), byte(flags >> 16), byte(flags >> 24)})
	return TechniqueDescriptor{Phases: phases, CompileFlags: h.Sum64()}
}
