// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// renderPass is pure Go-side bookkeeping: WebGPU has no persistent
// render pass object, so nothing is created against the device
// here. The attachment/subpass description is kept and consulted
// when cmdBuffer.BeginPass translates it into a
// wgpu.RenderPassDescriptor for the subpass currently active.
//
// Subpasses beyond the first are unsupported: wgpu-native has no
// subpass concept (every BeginRenderPass targets one fixed set of
// attachments for its whole duration), so a render pass with more
// than one Subpass entry fails at creation instead of silently
// dropping every subpass after the first.
type renderPass struct {
	att []driver.Attachment
	sub driver.Subpass
}

func (g *GPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	if len(sub) != 1 {
		return nil, fmt.Errorf("wgpu: render pass requires exactly one subpass, got %d", len(sub))
	}
	return &renderPass{att: att, sub: sub[0]}, nil
}

func (p *renderPass) Destroy() {}

func (p *renderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, fmt.Errorf("wgpu: framebuffer view count %d does not match render pass attachment count %d", len(iv), len(p.att))
	}
	views := make([]*imageView, len(iv))
	for i, v := range iv {
		wv, ok := v.(*imageView)
		if !ok {
			return nil, fmt.Errorf("wgpu: foreign ImageView implementation")
		}
		views[i] = wv
	}
	return &framebuf{pass: p, views: views, width: width, height: height, layers: layers}, nil
}

type framebuf struct {
	pass   *renderPass
	views  []*imageView
	width  int
	height int
	layers int
}

func (f *framebuf) Destroy() {}

// descriptor builds the wgpu.RenderPassDescriptor this framebuffer
// and its owning render pass describe, applying clear the caller
// supplied to BeginPass.
func (f *framebuf) descriptor(clear []driver.ClearValue) *wgpu.RenderPassDescriptor {
	desc := &wgpu.RenderPassDescriptor{}
	for _, idx := range f.pass.sub.Color {
		att := f.pass.att[idx]
		c := driver.ClearValue{}
		if idx < len(clear) {
			c = clear[idx]
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    f.views[idx].view,
			LoadOp:  loadOp(att.Load[0]),
			StoreOp: storeOp(att.Store[0]),
			ClearValue: wgpu.Color{
				R: float64(c.Color[0]), G: float64(c.Color[1]),
				B: float64(c.Color[2]), A: float64(c.Color[3]),
			},
		})
	}
	if f.pass.sub.DS >= 0 && f.pass.sub.DS < len(f.pass.att) {
		att := f.pass.att[f.pass.sub.DS]
		c := driver.ClearValue{}
		if f.pass.sub.DS < len(clear) {
			c = clear[f.pass.sub.DS]
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:              f.views[f.pass.sub.DS].view,
			DepthLoadOp:       loadOp(att.Load[0]),
			DepthStoreOp:      storeOp(att.Store[0]),
			DepthClearValue:   c.Depth,
			StencilLoadOp:     loadOp(att.Load[1]),
			StencilStoreOp:    storeOp(att.Store[1]),
			StencilClearValue: c.Stencil,
		}
	}
	return desc
}

func loadOp(op driver.LoadOp) wgpu.LoadOp {
	if op == driver.LClear {
		return wgpu.LoadOpClear
	}
	return wgpu.LoadOpLoad
}

func storeOp(op driver.StoreOp) wgpu.StoreOp {
	if op == driver.SStore {
		return wgpu.StoreOpStore
	}
	return wgpu.StoreOpDiscard
}
