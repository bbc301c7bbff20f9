// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package fakegpu provides an in-memory driver.GPU
// implementation for use in package tests that exercise
// allocation and bookkeeping logic without needing a real
// graphics device. It backs every resource with plain Go
// slices and never issues actual GPU work; every CmdBuffer
// method is a no-op.
package fakegpu

import (
	"errors"

	"github.com/vireoengine/forge/driver"
)

// GPU is a fake driver.GPU suitable for unit tests.
type GPU struct{}

// New returns a fake GPU. The package's init registers a
// matching fake Driver, so that rctx.New("fake") resolves to it.
func New() *GPU { return &GPU{} }

func (g *GPU) Driver() driver.Driver { return fakeDriver{} }

func (g *GPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	if ch != nil {
		ch <- nil
	}
}

func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) { return &cmdBuffer{}, nil }

func (g *GPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	return &renderPass{}, nil
}

func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) { return noop{}, nil }

func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	return &descHeap{descs: ds}, nil
}

func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) { return noop{}, nil }

func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) { return noop{}, nil }

func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("fakegpu: invalid buffer size")
	}
	return &buffer{data: make([]byte, size), visible: visible}, nil
}

func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	return &image{pf: pf, size: size, layers: layers, levels: levels}, nil
}

func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) { return noop{}, nil }

func (g *GPU) NewBindlessHeap(typ []driver.DescType, cap int) (driver.BindlessHeap, error) {
	h := &bindlessHeap{cap: cap, used: make(map[driver.DescType]map[driver.DescriptorSlot]bool)}
	for _, t := range typ {
		h.used[t] = make(map[driver.DescriptorSlot]bool)
	}
	return h, nil
}

func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage1D:        8192,
		MaxImage2D:        8192,
		MaxImageCube:      8192,
		MaxImage3D:        2048,
		MaxLayers:         256,
		MaxDescHeaps:      4,
		MaxDBuffer:        4,
		MaxDImage:         4,
		MaxDConstant:      12,
		MaxDTexture:       16,
		MaxDSampler:       16,
		MaxDBufferRange:   1 << 20,
		MaxDConstantRange: 1 << 16,
		MaxColorTargets:   8,
		MaxFBSize:         [2]int{8192, 8192},
		MaxFBLayers:       256,
		MaxPointSize:      64,
		MaxViewports:      8,
		MaxVertexIn:       16,
		MaxFragmentIn:     32,
		MaxDispatch:       [3]int{65535, 65535, 65535},
	}
}

type fakeDriver struct{}

func (fakeDriver) Open() (driver.GPU, error) { return New(), nil }
func (fakeDriver) Name() string              { return "fake" }
func (fakeDriver) Close()                    {}

func init() { driver.Register(fakeDriver{}) }

type noop struct{}

func (noop) Destroy() {}

type buffer struct {
	data    []byte
	visible bool
}

func (b *buffer) Destroy()      {}
func (b *buffer) Visible() bool { return b.visible }
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}
func (b *buffer) Cap() int64 { return int64(len(b.data)) }

type image struct {
	pf     driver.PixelFmt
	size   driver.Dim3D
	layers int
	levels int
}

func (i *image) Destroy() {}
func (i *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	return noop{}, nil
}

type renderPass struct{}

func (renderPass) Destroy() {}
func (renderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	return noop{}, nil
}

type descHeap struct {
	descs []driver.Descriptor
	n     int
}

func (h *descHeap) Destroy() {}
func (h *descHeap) New(n int) error {
	h.n = n
	return nil
}
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {}
func (h *descHeap) SetImage(cpy, nr, start int, iv []driver.ImageView)                    {}
func (h *descHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler)                  {}
func (h *descHeap) Count() int                                                            { return h.n }

type bindlessHeap struct {
	cap  int
	next driver.DescriptorSlot
	used map[driver.DescType]map[driver.DescriptorSlot]bool
}

func (h *bindlessHeap) Destroy() {}

func (h *bindlessHeap) allocSlot(typ driver.DescType, reuse driver.DescriptorSlot) driver.DescriptorSlot {
	if reuse != driver.InvalidSlot {
		h.used[typ][reuse] = true
		return reuse
	}
	s := h.next
	h.next++
	h.used[typ][s] = true
	return s
}

func (h *bindlessHeap) SetBuffer(typ driver.DescType, buf driver.Buffer, off, size int64, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	return h.allocSlot(typ, reuse), nil
}

func (h *bindlessHeap) SetImage(typ driver.DescType, iv driver.ImageView, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	return h.allocSlot(typ, reuse), nil
}

func (h *bindlessHeap) SetSampler(splr driver.Sampler, reuse driver.DescriptorSlot) (driver.DescriptorSlot, error) {
	return h.allocSlot(driver.DSampler, reuse), nil
}

func (h *bindlessHeap) Unset(typ driver.DescType, slot driver.DescriptorSlot) {
	delete(h.used[typ], slot)
}

func (h *bindlessHeap) Cap(typ driver.DescType) int { return h.cap }

type cmdBuffer struct{}

func (c *cmdBuffer) Destroy()                                                            {}
func (c *cmdBuffer) Begin() error                                                        { return nil }
func (c *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
}
func (c *cmdBuffer) NextSubpass()    {}
func (c *cmdBuffer) EndPass()        {}
func (c *cmdBuffer) BeginWork(bool)  {}
func (c *cmdBuffer) EndWork()        {}
func (c *cmdBuffer) BeginBlit(bool)  {}
func (c *cmdBuffer) EndBlit()        {}
func (c *cmdBuffer) SetPipeline(driver.Pipeline) {}
func (c *cmdBuffer) SetViewport([]driver.Viewport) {}
func (c *cmdBuffer) SetScissor([]driver.Scissor)   {}
func (c *cmdBuffer) SetBlendColor(r, g, b, a float32) {}
func (c *cmdBuffer) SetStencilRef(uint32)             {}
func (c *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {}
func (c *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {}
func (c *cmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {}
func (c *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {}
func (c *cmdBuffer) SetBindlessHeap(heap driver.BindlessHeap)                           {}
func (c *cmdBuffer) SetPushConstants(stages driver.Stage, off int, data []byte)         {}
func (c *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int)                  {}
func (c *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)    {}
func (c *cmdBuffer) DrawIndexedIndirect(buf driver.Buffer, off int64, drawCount int, stride int64, countBuf driver.Buffer, countOff int64) {
}
func (c *cmdBuffer) DispatchMesh(x, y, z int) {}
func (c *cmdBuffer) DispatchMeshIndirect(buf driver.Buffer, off int64, drawCount int, stride int64, countBuf driver.Buffer, countOff int64) {
}
func (c *cmdBuffer) Dispatch(x, y, z int)                          {}
func (c *cmdBuffer) DispatchIndirect(buf driver.Buffer, off int64) {}
func (c *cmdBuffer) CopyBuffer(param *driver.BufferCopy)           {}
func (c *cmdBuffer) CopyImage(param *driver.ImageCopy)             {}
func (c *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy)         {}
func (c *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy)         {}
func (c *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {}
func (c *cmdBuffer) Barrier(b []driver.Barrier)                                {}
func (c *cmdBuffer) Transition(t []driver.Transition)                          {}
func (c *cmdBuffer) End() error                                                { return nil }
func (c *cmdBuffer) Reset() error                                              { return nil }
