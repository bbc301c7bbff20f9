// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
)

// bindlessHeap emulates driver.BindlessHeap over wgpu-native's
// binding_array extension (WGSL's binding_array<T, N>, exposed
// through BindGroupLayoutEntry.Count): one binding array per
// DescType, each sized to the capacity requested at creation. A
// slot index installed by Set* is exactly the WGSL array index a
// shader uses, so internal/shaderlayout's slot fields round-trip
// unchanged through this backend.
//
// Unlike the DBuffer/DConstant/DSampler arrays, DImage here reuses
// the DTexture array: wgpu-native draws no distinction between a
// sampled and a storage texture at the binding_array level the way
// driver.DescType does, so an image installed as DImage simply
// shares DTexture's array and its slot space.
type bindlessHeap struct {
	gpu    *GPU
	cap    map[driver.DescType]int
	alloc  map[driver.DescType]*bitm.Bitm[uint32]
	res    map[driver.DescType][]boundRes
	layout *wgpu.BindGroupLayout
	group  *wgpu.BindGroup
	dirty  bool
}

func (g *GPU) NewBindlessHeap(typ []driver.DescType, cap int) (driver.BindlessHeap, error) {
	h := &bindlessHeap{
		gpu:   g,
		cap:   make(map[driver.DescType]int),
		alloc: make(map[driver.DescType]*bitm.Bitm[uint32]),
		res:   make(map[driver.DescType][]boundRes),
	}
	var entries []wgpu.BindGroupLayoutEntry
	for _, t := range typ {
		if t == driver.DImage {
			// Shares DTexture's array (see doc comment); no
			// separate layout entry or slot space of its own.
			h.cap[t] = cap
			continue
		}
		h.cap[t] = cap
		h.res[t] = make([]boundRes, cap)
		var bm bitm.Bitm[uint32]
		bm.Grow(cap)
		h.alloc[t] = &bm
		entries = append(entries, bindlessLayoutEntry(t, cap))
	}
	layout, err := g.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, err
	}
	h.layout = layout
	h.dirty = true
	g.bindless = h
	return h, nil
}

func bindlessLayoutEntry(t driver.DescType, cap int) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: uint32(bindlessBinding(t)), Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute, Count: uint32(cap)}
	switch t {
	case driver.DBuffer:
		e.Buffer.Type = wgpu.BufferBindingTypeStorage
	case driver.DConstant:
		e.Buffer.Type = wgpu.BufferBindingTypeUniform
	case driver.DTexture:
		e.Texture.ViewDimension = wgpu.TextureViewDimension2D
		e.Texture.SampleType = wgpu.TextureSampleTypeFloat
	case driver.DSampler:
		e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	}
	return e
}

// bindlessBinding assigns each DescType a fixed binding number
// within the bindless group. DImage is routed to DTexture's
// binding; the others are simply their ordinal.
func bindlessBinding(t driver.DescType) int {
	switch t {
	case driver.DBuffer:
		return 0
	case driver.DConstant:
		return 1
	case driver.DTexture, driver.DImage:
		return 2
	case driver.DSampler:
		return 3
	default:
		return 4
	}
}

func (h *bindlessHeap) Destroy() {
	if h.group != nil {
		h.group.Release()
	}
	h.layout.Release()
}

func (h *bindlessHeap) arrayType(typ driver.DescType) driver.DescType {
	if typ == driver.DImage {
		return driver.DTexture
	}
	return typ
}

func (h *bindlessHeap) SetBuffer(typ driver.DescType, buf driver.Buffer, off, size int64, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	wb, ok := buf.(*buffer)
	if !ok {
		return driver.InvalidSlot, errNotWgpu
	}
	slot, err := h.alloc1(typ, reuse)
	if err != nil {
		return driver.InvalidSlot, err
	}
	h.res[h.arrayType(typ)][slot] = boundRes{buf: wb, bufOff: off, bufSize: size}
	h.dirty = true
	return slot, nil
}

func (h *bindlessHeap) SetImage(typ driver.DescType, iv driver.ImageView, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	wv, ok := iv.(*imageView)
	if !ok {
		return driver.InvalidSlot, errNotWgpu
	}
	slot, err := h.alloc1(typ, reuse)
	if err != nil {
		return driver.InvalidSlot, err
	}
	h.res[h.arrayType(typ)][slot] = boundRes{view: wv}
	h.dirty = true
	return slot, nil
}

func (h *bindlessHeap) SetSampler(splr driver.Sampler, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	ws, ok := splr.(*sampler)
	if !ok {
		return driver.InvalidSlot, errNotWgpu
	}
	slot, err := h.alloc1(driver.DSampler, reuse)
	if err != nil {
		return driver.InvalidSlot, err
	}
	h.res[driver.DSampler][slot] = boundRes{splr: ws}
	h.dirty = true
	return slot, nil
}

func (h *bindlessHeap) alloc1(typ driver.DescType, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	at := h.arrayType(typ)
	bm, ok := h.alloc[at]
	if !ok {
		return driver.InvalidSlot, fmt.Errorf("wgpu: bindless heap has no slots reserved for DescType %d", typ)
	}
	if reuse != driver.InvalidSlot {
		return reuse, nil
	}
	i, ok := bm.Search()
	if !ok {
		return driver.InvalidSlot, fmt.Errorf("wgpu: bindless heap exhausted for DescType %d", typ)
	}
	bm.Set(i)
	return driver.DescriptorSlot(i), nil
}

func (h *bindlessHeap) Unset(typ driver.DescType, slot driver.DescriptorSlot) {
	at := h.arrayType(typ)
	if bm, ok := h.alloc[at]; ok {
		bm.Unset(int(slot))
	}
	if res, ok := h.res[at]; ok && int(slot) < len(res) {
		res[slot] = boundRes{}
	}
	h.dirty = true
}

func (h *bindlessHeap) Cap(typ driver.DescType) int { return h.cap[typ] }

// bindGroup rebuilds the single bind group backing every binding
// array, but only when a Set*/Unset call has touched it since the
// last rebuild.
func (h *bindlessHeap) bindGroup() (*wgpu.BindGroup, error) {
	if !h.dirty && h.group != nil {
		return h.group, nil
	}
	var entries []wgpu.BindGroupEntry
	for _, t := range []driver.DescType{driver.DBuffer, driver.DConstant, driver.DTexture, driver.DSampler} {
		res, ok := h.res[t]
		if !ok {
			continue
		}
		for i, r := range res {
			e := wgpu.BindGroupEntry{Binding: uint32(bindlessBinding(t)), ArrayIndex: uint32(i)}
			switch {
			case r.buf != nil:
				e.Buffer, e.Offset, e.Size = r.buf.buf, uint64(r.bufOff), uint64(r.bufSize)
			case r.view != nil:
				e.TextureView = r.view.view
			case r.splr != nil:
				e.Sampler = r.splr.splr
			default:
				continue
			}
			entries = append(entries, e)
		}
	}
	if h.group != nil {
		h.group.Release()
	}
	g, err := h.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Layout: h.layout, Entries: entries})
	if err != nil {
		return nil, err
	}
	h.group = g
	h.dirty = false
	return g, nil
}

// bindlessLayout returns the BindGroupLayout occupying group 0 of
// every pipeline built against this GPU: the most recently created
// BindlessHeap's layout if one exists, or an empty placeholder
// layout otherwise (a pipeline built before the renderer's
// BindlessHeap is never expected to actually bind group 0).
func (g *GPU) bindlessLayout() (*wgpu.BindGroupLayout, error) {
	if g.bindless != nil {
		return g.bindless.layout, nil
	}
	if g.emptyBindless == nil {
		l, err := g.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{})
		if err != nil {
			return nil, err
		}
		g.emptyBindless = l
	}
	return g.emptyBindless, nil
}
