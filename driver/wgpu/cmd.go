// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// pushConstantState holds the bind group layout shared by every
// cmdBuffer's push constant emulation (see cmdBuffer.pcBuf below).
// It is built once per GPU, the first time a CmdBuffer needs it.
type pushConstantState struct {
	layout *wgpu.BindGroupLayout
}

func (g *GPU) pushConstantLayout() (*wgpu.BindGroupLayout, error) {
	if g.pushConstants == nil {
		l, err := g.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Entries: []wgpu.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment | wgpu.ShaderStageCompute,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			}},
		})
		if err != nil {
			return nil, err
		}
		g.pushConstants = &pushConstantState{layout: l}
	}
	return g.pushConstants.layout, nil
}

// cmdBuffer implements driver.CmdBuffer. Recording happens against
// a single wgpu.CommandEncoder; BeginPass/BeginWork open a render
// or compute pass encoder in turn and every Set*/Draw*/Dispatch*
// call is forwarded to whichever is currently open.
type cmdBuffer struct {
	gpu *GPU

	enc *wgpu.CommandEncoder
	rp  *wgpu.RenderPassEncoder
	cp  *wgpu.ComputePassEncoder
	fb  *framebuf

	pcBuf   *wgpu.Buffer
	pcGroup *wgpu.BindGroup
	pcTemps []*wgpu.Buffer

	readback []*buffer
	err      error
	finished *wgpu.CommandBuffer
}

func (c *cmdBuffer) Destroy() {
	c.release()
}

func (c *cmdBuffer) release() {
	for _, b := range c.pcTemps {
		b.Release()
	}
	c.pcTemps = nil
	if c.pcBuf != nil {
		c.pcBuf.Release()
		c.pcBuf = nil
	}
	if c.pcGroup != nil {
		c.pcGroup.Release()
		c.pcGroup = nil
	}
	c.finished = nil
}

func (c *cmdBuffer) Begin() error {
	c.release()
	c.enc = c.gpu.device.CreateCommandEncoder(nil)
	c.err = nil
	c.readback = nil

	buf, err := c.gpu.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "push constants",
		Size:  pushConstantSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	c.pcBuf = buf
	layout, err := c.gpu.pushConstantLayout()
	if err != nil {
		return err
	}
	group, err := c.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0, Buffer: c.pcBuf, Offset: 0, Size: pushConstantSize,
		}},
	})
	if err != nil {
		return err
	}
	c.pcGroup = group
	return nil
}

func (c *cmdBuffer) bindGlobals() {
	bg, err := c.gpu.bindlessBindGroup()
	if err != nil {
		c.err = err
		return
	}
	if c.rp != nil {
		c.rp.SetBindGroup(bindlessGroup, bg, nil)
		c.rp.SetBindGroup(pushConstantGroup, c.pcGroup, nil)
	}
	if c.cp != nil {
		c.cp.SetBindGroup(bindlessGroup, bg, nil)
		c.cp.SetBindGroup(pushConstantGroup, c.pcGroup, nil)
	}
}

func (g *GPU) bindlessBindGroup() (*wgpu.BindGroup, error) {
	if g.bindless == nil {
		layout, err := g.bindlessLayout()
		if err != nil {
			return nil, err
		}
		return g.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Layout: layout})
	}
	return g.bindless.bindGroup()
}

func (c *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	wfb, ok := fb.(*framebuf)
	if !ok {
		c.err = errNotWgpu
		return
	}
	c.fb = wfb
	c.rp = c.enc.BeginRenderPass(wfb.descriptor(clear))
	c.bindGlobals()
}

func (c *cmdBuffer) NextSubpass() {
	// Render passes in this backend are constrained to exactly one
	// subpass at creation time (see NewRenderPass), so there is
	// never a second subpass to advance into.
}

func (c *cmdBuffer) EndPass() {
	if c.rp != nil {
		c.rp.End()
		c.rp = nil
	}
	c.fb = nil
}

func (c *cmdBuffer) BeginWork(wait bool) {
	c.cp = c.enc.BeginComputePass(nil)
	c.bindGlobals()
}

func (c *cmdBuffer) EndWork() {
	if c.cp != nil {
		c.cp.End()
		c.cp = nil
	}
}

func (c *cmdBuffer) BeginBlit(wait bool) {}
func (c *cmdBuffer) EndBlit()            {}

func (c *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	wp, ok := pl.(*pipeline)
	if !ok {
		c.err = errNotWgpu
		return
	}
	if c.rp != nil && wp.graph != nil {
		c.rp.SetPipeline(wp.graph)
	}
	if c.cp != nil && wp.comp != nil {
		c.cp.SetPipeline(wp.comp)
	}
}

func (c *cmdBuffer) SetViewport(vp []driver.Viewport) {
	if c.rp == nil || len(vp) == 0 {
		return
	}
	v := vp[0]
	c.rp.SetViewport(v.X, v.Y, v.Width, v.Height, v.Znear, v.Zfar)
}

func (c *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	if c.rp == nil || len(sciss) == 0 {
		return
	}
	s := sciss[0]
	c.rp.SetScissorRect(uint32(s.X), uint32(s.Y), uint32(s.Width), uint32(s.Height))
}

func (c *cmdBuffer) SetBlendColor(r, g, b, a float32) {
	if c.rp == nil {
		return
	}
	c.rp.SetBlendConstant(&wgpu.Color{R: float64(r), G: float64(g), B: float64(b), A: float64(a)})
}

func (c *cmdBuffer) SetStencilRef(value uint32) {
	if c.rp == nil {
		return
	}
	c.rp.SetStencilReference(value)
}

func (c *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	if c.rp == nil {
		return
	}
	for i, b := range buf {
		wb, ok := b.(*buffer)
		if !ok {
			c.err = errNotWgpu
			return
		}
		wb.upload(c.gpu.queue)
		c.rp.SetVertexBuffer(uint32(start+i), wb.buf, uint64(off[i]), wgpu.WholeSize)
	}
}

func (c *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	if c.rp == nil {
		return
	}
	wb, ok := buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	wb.upload(c.gpu.queue)
	ifmt := wgpu.IndexFormatUint16
	if format == driver.Index32 {
		ifmt = wgpu.IndexFormatUint32
	}
	c.rp.SetIndexBuffer(wb.buf, ifmt, uint64(off), wgpu.WholeSize)
}

func (c *cmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	wt, ok := table.(*descTable)
	if !ok {
		c.err = errNotWgpu
		return
	}
	bg := wt.bindGroup(heapCopy)
	if bg == nil {
		c.err = wt.buildErr
		return
	}
	if c.rp != nil {
		c.rp.SetBindGroup(uint32(firstTableGroup+start), bg, nil)
	}
}

func (c *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	wt, ok := table.(*descTable)
	if !ok {
		c.err = errNotWgpu
		return
	}
	bg := wt.bindGroup(heapCopy)
	if bg == nil {
		c.err = wt.buildErr
		return
	}
	if c.cp != nil {
		c.cp.SetBindGroup(uint32(firstTableGroup+start), bg, nil)
	}
}

func (c *cmdBuffer) SetBindlessHeap(heap driver.BindlessHeap) {
	wh, ok := heap.(*bindlessHeap)
	if !ok {
		c.err = errNotWgpu
		return
	}
	bg, err := wh.bindGroup()
	if err != nil {
		c.err = err
		return
	}
	if c.rp != nil {
		c.rp.SetBindGroup(bindlessGroup, bg, nil)
	}
	if c.cp != nil {
		c.cp.SetBindGroup(bindlessGroup, bg, nil)
	}
}

// SetPushConstants emulates a push constant update by recording a
// buffer-to-buffer copy into the encoder: a tiny host-mapped staging
// buffer carrying data is created, then enc.CopyBufferToBuffer
// copies it into the per-CmdBuffer uniform buffer bound at
// pushConstantGroup. Recording the update as an encoder command
// (rather than an immediate Queue.WriteBuffer) keeps it correctly
// ordered relative to the Draw*/Dispatch* calls that follow it, at
// the cost of one small buffer per call; cmdBuffer.release frees
// them all once the command buffer finishes or is reset.
func (c *cmdBuffer) SetPushConstants(stages driver.Stage, off int, data []byte) {
	tmp, err := c.gpu.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "push constant staging",
		Size:             uint64(len(data)),
		Usage:            wgpu.BufferUsageCopySrc,
		MappedAtCreation: true,
	})
	if err != nil {
		c.err = err
		return
	}
	copy(tmp.GetMappedRange(0, uint(len(data))), data)
	tmp.Unmap()
	c.pcTemps = append(c.pcTemps, tmp)
	c.enc.CopyBufferToBuffer(tmp, 0, c.pcBuf, uint64(off), uint64(len(data)))
}

func (c *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if c.rp != nil {
		c.rp.Draw(uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
	}
}

func (c *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if c.rp != nil {
		c.rp.DrawIndexed(uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
	}
}

func (c *cmdBuffer) DrawIndexedIndirect(buf driver.Buffer, off int64, drawCount int, stride int64, countBuf driver.Buffer, countOff int64) {
	if c.rp == nil {
		return
	}
	wb, ok := buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	wb.upload(c.gpu.queue)
	if countBuf != nil {
		// wgpu-native's multi-draw-indirect-count extension is not
		// exposed by the Go binding used here; a non-nil countBuf
		// falls back to issuing drawCount indirect draws, which is
		// safe (over-drawing degenerate entries costs GPU time but
		// not correctness) as long as the args buffer was zeroed
		// past the real draw count, which indirect.Manager.Build
		// guarantees by construction.
	}
	for i := 0; i < drawCount; i++ {
		c.rp.DrawIndexedIndirect(wb.buf, uint64(off+int64(i)*stride))
	}
}

func (c *cmdBuffer) DispatchMesh(grpCountX, grpCountY, grpCountZ int) {
	// wgpu-native exposes no mesh shader stage; see the package doc
	// comment in driver.go.
}

func (c *cmdBuffer) DispatchMeshIndirect(buf driver.Buffer, off int64, drawCount int, stride int64, countBuf driver.Buffer, countOff int64) {
}

func (c *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	if c.cp != nil {
		c.cp.DispatchWorkgroups(uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
	}
}

func (c *cmdBuffer) DispatchIndirect(buf driver.Buffer, off int64) {
	if c.cp == nil {
		return
	}
	wb, ok := buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	wb.upload(c.gpu.queue)
	c.cp.DispatchWorkgroupsIndirect(wb.buf, uint64(off))
}

func (c *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	from, ok := param.From.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	to, ok := param.To.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	from.upload(c.gpu.queue)
	c.enc.CopyBufferToBuffer(from.buf, uint64(param.FromOff), to.buf, uint64(param.ToOff), uint64(param.Size))
	c.markReadback(to)
}

func (c *cmdBuffer) CopyImage(param *driver.ImageCopy) {
	from, ok := param.From.(*image)
	if !ok {
		c.err = errNotWgpu
		return
	}
	to, ok := param.To.(*image)
	if !ok {
		c.err = errNotWgpu
		return
	}
	c.enc.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{Texture: from.tex, MipLevel: uint32(param.FromLevel), Origin: wgpu.Origin3D{X: uint32(param.FromOff.X), Y: uint32(param.FromOff.Y), Z: uint32(param.FromOff.Z) + uint32(param.FromLayer)}},
		&wgpu.ImageCopyTexture{Texture: to.tex, MipLevel: uint32(param.ToLevel), Origin: wgpu.Origin3D{X: uint32(param.ToOff.X), Y: uint32(param.ToOff.Y), Z: uint32(param.ToOff.Z) + uint32(param.ToLayer)}},
		&wgpu.Extent3D{Width: uint32(param.Size.Width), Height: uint32(param.Size.Height), DepthOrArrayLayers: uint32(max(param.Size.Depth, param.Layers))},
	)
}

func (c *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	buf, ok := param.Buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	img, ok := param.Img.(*image)
	if !ok {
		c.err = errNotWgpu
		return
	}
	buf.upload(c.gpu.queue)
	c.enc.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Buffer: buf.buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       uint64(param.BufOff),
				BytesPerRow:  uint32(param.Stride[0] * int64(img.format.Size())),
				RowsPerImage: uint32(param.Stride[1]),
			},
		},
		&wgpu.ImageCopyTexture{Texture: img.tex, MipLevel: uint32(param.Level), Origin: wgpu.Origin3D{X: uint32(param.ImgOff.X), Y: uint32(param.ImgOff.Y), Z: uint32(param.ImgOff.Z) + uint32(param.Layer)}},
		&wgpu.Extent3D{Width: uint32(param.Size.Width), Height: uint32(param.Size.Height), DepthOrArrayLayers: uint32(max(param.Size.Depth, 1))},
	)
}

func (c *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	buf, ok := param.Buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	img, ok := param.Img.(*image)
	if !ok {
		c.err = errNotWgpu
		return
	}
	c.enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: img.tex, MipLevel: uint32(param.Level), Origin: wgpu.Origin3D{X: uint32(param.ImgOff.X), Y: uint32(param.ImgOff.Y), Z: uint32(param.ImgOff.Z) + uint32(param.Layer)}},
		&wgpu.ImageCopyBuffer{
			Buffer: buf.buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       uint64(param.BufOff),
				BytesPerRow:  uint32(param.Stride[0] * int64(img.format.Size())),
				RowsPerImage: uint32(param.Stride[1]),
			},
		},
		&wgpu.Extent3D{Width: uint32(param.Size.Width), Height: uint32(param.Size.Height), DepthOrArrayLayers: uint32(max(param.Size.Depth, 1))},
	)
	c.markReadback(buf)
}

func (c *cmdBuffer) markReadback(b *buffer) {
	if !b.visible {
		return
	}
	for _, r := range c.readback {
		if r == b {
			return
		}
	}
	c.readback = append(c.readback, b)
}

func (c *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	wb, ok := buf.(*buffer)
	if !ok {
		c.err = errNotWgpu
		return
	}
	if value != 0 {
		// ClearBuffer only supports a zero fill in wgpu-native;
		// a non-zero fill value falls back to writing through the
		// host mirror directly when the buffer is visible, and is
		// otherwise an unsupported operation.
		if !wb.visible {
			c.err = fmt.Errorf("wgpu: Fill with non-zero value requires a host-visible buffer")
			return
		}
		b := wb.Bytes()
		for i := off; i < off+size; i++ {
			b[i] = value
		}
		return
	}
	c.enc.ClearBuffer(wb.buf, uint64(off), uint64(size))
}

func (c *cmdBuffer) Barrier(b []driver.Barrier) {
	// wgpu-native tracks resource hazards automatically; driver-level
	// barriers have no effect here.
}

func (c *cmdBuffer) Transition(t []driver.Transition) {
	// Same as Barrier: wgpu-native derives layout transitions from
	// how a resource is used in each recorded command.
}

func (c *cmdBuffer) End() error {
	if c.err != nil {
		e := c.err
		c.Reset()
		return e
	}
	cb, err := c.enc.Finish(nil)
	if err != nil {
		c.Reset()
		return err
	}
	c.finished = cb
	return nil
}

func (c *cmdBuffer) Reset() error {
	c.release()
	c.rp = nil
	c.cp = nil
	c.fb = nil
	c.enc = nil
	c.err = nil
	c.readback = nil
	return nil
}
