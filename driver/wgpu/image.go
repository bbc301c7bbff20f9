// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

type image struct {
	tex    *wgpu.Texture
	format driver.PixelFmt
	wfmt   wgpu.TextureFormat
	size   driver.Dim3D
	layers int
	levels int
	usage  wgpu.TextureUsage
}

func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	wfmt, err := textureFormat(pf)
	if err != nil {
		return nil, err
	}
	dim := wgpu.TextureDimension2D
	if size.Depth > 1 {
		dim = wgpu.TextureDimension3D
	}
	wusg := textureUsage(usg)
	tex, err := g.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "forge image",
		Size: wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: uint32(max(size.Depth, layers)),
		},
		MipLevelCount: uint32(levels),
		SampleCount:   uint32(samples),
		Dimension:     dim,
		Format:        wfmt,
		Usage:         wusg,
	})
	if err != nil {
		return nil, err
	}
	return &image{tex: tex, format: pf, wfmt: wfmt, size: size, layers: layers, levels: levels, usage: wusg}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func textureUsage(usg driver.Usage) wgpu.TextureUsage {
	var u wgpu.TextureUsage
	if usg&driver.UShaderSample != 0 {
		u |= wgpu.TextureUsageTextureBinding
	}
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		u |= wgpu.TextureUsageStorageBinding
	}
	if usg&driver.URenderTarget != 0 {
		u |= wgpu.TextureUsageRenderAttachment
	}
	u |= wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst
	return u
}

func textureFormat(pf driver.PixelFmt) (wgpu.TextureFormat, error) {
	switch pf {
	case driver.RGBA8un:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case driver.RGBA8n:
		return wgpu.TextureFormatRGBA8Snorm, nil
	case driver.RGBA8sRGB:
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	case driver.BGRA8un:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case driver.BGRA8sRGB:
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	case driver.RG8un:
		return wgpu.TextureFormatRG8Unorm, nil
	case driver.RG8n:
		return wgpu.TextureFormatRG8Snorm, nil
	case driver.R8un:
		return wgpu.TextureFormatR8Unorm, nil
	case driver.R8n:
		return wgpu.TextureFormatR8Snorm, nil
	case driver.RGBA16f:
		return wgpu.TextureFormatRGBA16Float, nil
	case driver.RG16f:
		return wgpu.TextureFormatRG16Float, nil
	case driver.R16f:
		return wgpu.TextureFormatR16Float, nil
	case driver.RGBA32f:
		return wgpu.TextureFormatRGBA32Float, nil
	case driver.RG32f:
		return wgpu.TextureFormatRG32Float, nil
	case driver.R32f:
		return wgpu.TextureFormatR32Float, nil
	case driver.D16un:
		return wgpu.TextureFormatDepth16Unorm, nil
	case driver.D32f:
		return wgpu.TextureFormatDepth32Float, nil
	case driver.S8ui:
		return wgpu.TextureFormatStencil8, nil
	case driver.D24unS8ui:
		return wgpu.TextureFormatDepth24PlusStencil8, nil
	case driver.D32fS8ui:
		return wgpu.TextureFormatDepth32FloatStencil8, nil
	default:
		return 0, fmt.Errorf("wgpu: unsupported PixelFmt %d", pf)
	}
}

func (i *image) Destroy() { i.tex.Release() }

func (i *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	dim, err := viewDimension(typ)
	if err != nil {
		return nil, err
	}
	aspect := wgpu.TextureAspectAll
	if !i.format.IsColor() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	v, err := i.tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          i.wfmt,
		Dimension:       dim,
		Aspect:          aspect,
		BaseMipLevel:    uint32(level),
		MipLevelCount:   uint32(levels),
		BaseArrayLayer:  uint32(layer),
		ArrayLayerCount: uint32(layers),
	})
	if err != nil {
		return nil, err
	}
	return &imageView{view: v, img: i}, nil
}

func viewDimension(typ driver.ViewType) (wgpu.TextureViewDimension, error) {
	switch typ {
	case driver.IView1D, driver.IView1DArray:
		return wgpu.TextureViewDimension1D, nil
	case driver.IView2D, driver.IView2DMS:
		return wgpu.TextureViewDimension2D, nil
	case driver.IView2DArray, driver.IView2DMSArray:
		return wgpu.TextureViewDimension2DArray, nil
	case driver.IView3D:
		return wgpu.TextureViewDimension3D, nil
	case driver.IViewCube:
		return wgpu.TextureViewDimensionCube, nil
	case driver.IViewCubeArray:
		return wgpu.TextureViewDimensionCubeArray, nil
	default:
		return 0, fmt.Errorf("wgpu: undefined ViewType %d", typ)
	}
}

type imageView struct {
	view *wgpu.TextureView
	img  *image
}

func (v *imageView) Destroy() { v.view.Release() }
