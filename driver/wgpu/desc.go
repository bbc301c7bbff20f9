// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// descHeap implements driver.DescHeap. The layout (binding indices,
// types, shader visibility) is fixed at creation time from ds, but
// the resources bound at each index are ordinary Go-side state:
// SetBuffer/SetImage/SetSampler just record them, and a bind group
// reflecting the current copy's contents is built lazily the next
// time a descTable containing this heap is bound (cmd.go), mirroring
// how classifyResource/BindGroupLayoutEntry in the pack's shader
// reflection code separates a layout description from the resources
// eventually bound against it.
type descHeap struct {
	gpu   *GPU
	descs []driver.Descriptor
	n     int
	// res[copy][slot] indexed by expanding each Descriptor's Len
	// entries in order.
	res []([]boundRes)
}

type boundRes struct {
	buf        *buffer
	bufOff     int64
	bufSize    int64
	view       *imageView
	splr       *sampler
}

func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	return &descHeap{gpu: g, descs: ds}, nil
}

func (h *descHeap) Destroy() {}

func (h *descHeap) New(n int) error {
	if n == h.n {
		return nil
	}
	if n == 0 {
		h.res = nil
		h.n = 0
		return nil
	}
	total := 0
	for _, d := range h.descs {
		total += d.Len
	}
	res := make([][]boundRes, n)
	for i := range res {
		res[i] = make([]boundRes, total)
	}
	h.res = res
	h.n = n
	return nil
}

// slotOffset returns the flat index of descriptor nr's start
// element within a single copy's resource slice.
func (h *descHeap) slotOffset(nr int) int {
	off := 0
	for _, d := range h.descs {
		if d.Nr == nr {
			return off
		}
		off += d.Len
	}
	return off
}

func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	base := h.slotOffset(nr) + start
	for i, b := range buf {
		wb, _ := b.(*buffer)
		h.res[cpy][base+i] = boundRes{buf: wb, bufOff: off[i], bufSize: size[i]}
	}
}

func (h *descHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	base := h.slotOffset(nr) + start
	for i, v := range iv {
		wv, _ := v.(*imageView)
		h.res[cpy][base+i] = boundRes{view: wv}
	}
}

func (h *descHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	base := h.slotOffset(nr) + start
	for i, s := range splr {
		ws, _ := s.(*sampler)
		h.res[cpy][base+i] = boundRes{splr: ws}
	}
}

func (h *descHeap) Count() int { return h.n }

// layoutEntries returns the wgpu.BindGroupLayoutEntry list this
// heap's descriptors describe, with binding indices offset by base
// so that multiple heaps bound through the same descTable don't
// collide within the bind group's binding space.
func (h *descHeap) layoutEntries(base int) []wgpu.BindGroupLayoutEntry {
	var entries []wgpu.BindGroupLayoutEntry
	off := 0
	for _, d := range h.descs {
		vis := shaderStage(d.Stages)
		for i := 0; i < d.Len; i++ {
			e := wgpu.BindGroupLayoutEntry{Binding: uint32(base + off + i), Visibility: vis}
			switch d.Type {
			case driver.DBuffer:
				e.Buffer.Type = wgpu.BufferBindingTypeStorage
			case driver.DConstant:
				e.Buffer.Type = wgpu.BufferBindingTypeUniform
			case driver.DImage:
				e.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
				e.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
			case driver.DTexture:
				e.Texture.ViewDimension = wgpu.TextureViewDimension2D
				e.Texture.SampleType = wgpu.TextureSampleTypeFloat
			case driver.DSampler:
				e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
			}
			entries = append(entries, e)
		}
		off += d.Len
	}
	return entries
}

// entries returns the wgpu.BindGroupEntry list binding cpy's
// currently-set resources at the same binding indices layoutEntries
// assigned.
func (h *descHeap) entries(cpy, base int) []wgpu.BindGroupEntry {
	var entries []wgpu.BindGroupEntry
	for i, r := range h.res[cpy] {
		e := wgpu.BindGroupEntry{Binding: uint32(base + i)}
		switch {
		case r.buf != nil:
			e.Buffer, e.Offset, e.Size = r.buf.buf, uint64(r.bufOff), uint64(r.bufSize)
		case r.view != nil:
			e.TextureView = r.view.view
		case r.splr != nil:
			e.Sampler = r.splr.splr
		}
		entries = append(entries, e)
	}
	return entries
}

func shaderStage(s driver.Stage) wgpu.ShaderStage {
	var v wgpu.ShaderStage
	if s&driver.SVertex != 0 {
		v |= wgpu.ShaderStageVertex
	}
	if s&driver.SFragment != 0 {
		v |= wgpu.ShaderStageFragment
	}
	if s&driver.SCompute != 0 {
		v |= wgpu.ShaderStageCompute
	}
	return v
}

// descTable implements driver.DescTable, gathering one or more
// descHeaps into a single wgpu.BindGroupLayout built at creation
// time (the set of heaps and their descriptor layouts is fixed once
// a GraphState/CompState references the table) and caching the
// wgpu.BindGroup built for whichever heap copy was last bound,
// rebuilding it only when the requested copy changes.
type descTable struct {
	gpu    *GPU
	heaps  []*descHeap
	bases  []int
	layout *wgpu.BindGroupLayout

	cachedCopy  []int
	cachedGroup *wgpu.BindGroup
	buildErr    error
}

func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	heaps := make([]*descHeap, len(dh))
	var entries []wgpu.BindGroupLayoutEntry
	bases := make([]int, len(dh))
	for i, h := range dh {
		wh, ok := h.(*descHeap)
		if !ok {
			return nil, errNotWgpu
		}
		heaps[i] = wh
		bases[i] = len(entries)
		entries = append(entries, wh.layoutEntries(bases[i])...)
	}
	layout, err := g.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, err
	}
	return &descTable{gpu: g, heaps: heaps, bases: bases, layout: layout}, nil
}

func (t *descTable) Destroy() {
	if t.cachedGroup != nil {
		t.cachedGroup.Release()
	}
	t.layout.Release()
}

// bindGroup returns the wgpu.BindGroup for the given per-heap copy
// indices, rebuilding it if it does not match the cached one.
func (t *descTable) bindGroup(heapCopy []int) *wgpu.BindGroup {
	if sameInts(t.cachedCopy, heapCopy) && t.cachedGroup != nil {
		return t.cachedGroup
	}
	var entries []wgpu.BindGroupEntry
	for i, h := range t.heaps {
		cpy := 0
		if i < len(heapCopy) {
			cpy = heapCopy[i]
		}
		entries = append(entries, h.entries(cpy, t.bases[i])...)
	}
	if t.cachedGroup != nil {
		t.cachedGroup.Release()
	}
	g, err := t.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Layout: t.layout, Entries: entries})
	if err != nil {
		// SetDescTableGraph/Comp (driver.CmdBuffer) has no error
		// return, so a bind group build failure here is recorded on
		// the table and surfaced the next time the owning CmdBuffer
		// calls End.
		t.buildErr = err
		return nil
	}
	t.cachedCopy = append(t.cachedCopy[:0], heapCopy...)
	t.cachedGroup = g
	return g
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
