// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// BindlessHeap is the interface that defines a descriptor heap
// indexed dynamically from shaders, rather than rebound per
// draw or dispatch call.
//
// Unlike DescHeap/DescTable, which describe a small, per-draw
// set of descriptor copies swapped in and out of a fixed
// binding point, a BindlessHeap is bound once (typically once
// per frame) and holds every resource a frame may reference.
// Individual resources are addressed by the DescriptorSlot
// returned from Set*, which callers embed in constant buffers
// or push constants so that shader code can index into the
// heap directly (e.g. ResourceDescriptorHeap[slot] in HLSL,
// or a bindless binding_array in WGSL/SPIR-V).
type BindlessHeap interface {
	Destroyer

	// SetBuffer installs buf at a free slot of type DBuffer
	// or DConstant and returns that slot. Passing an existing
	// DescriptorSlot in reuse overwrites that slot in place
	// instead of allocating a new one, which upload and
	// deletion code uses to recycle slots across frames.
	SetBuffer(typ DescType, buf Buffer, off, size int64, reuse DescriptorSlot) (DescriptorSlot, error)

	// SetImage installs iv at a free slot of type DImage or
	// DTexture and returns that slot.
	SetImage(typ DescType, iv ImageView, reuse DescriptorSlot) (DescriptorSlot, error)

	// SetSampler installs splr at a free slot of type
	// DSampler and returns that slot.
	SetSampler(splr Sampler, reuse DescriptorSlot) (DescriptorSlot, error)

	// Unset frees a previously allocated slot, making it
	// available for reuse by a subsequent Set* call.
	// Callers are expected to defer the actual reuse until
	// it is known that no in-flight frame still references
	// the slot.
	Unset(typ DescType, slot DescriptorSlot)

	// Cap returns the number of slots reserved for the given
	// descriptor type, as requested on GPU.NewBindlessHeap.
	Cap(typ DescType) int
}

// DescriptorSlot is the index of a single resource within a
// BindlessHeap, scoped to a particular DescType. Slot values
// are stable across frames until explicitly freed with
// BindlessHeap.Unset, and are the values written into shader
// constant data to resolve a resource at draw time.
type DescriptorSlot int32

// InvalidSlot marks an unset DescriptorSlot (it is -1, not
// the zero value, since slot 0 is a valid slot). Shaders must treat a slot carrying this value as absent,
// e.g. skipping an optional texture fetch.
const InvalidSlot DescriptorSlot = -1
