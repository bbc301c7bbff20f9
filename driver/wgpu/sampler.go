// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

type sampler struct {
	splr *wgpu.Sampler
}

func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	desc := &wgpu.SamplerDescriptor{
		AddressModeU:  addrMode(spln.AddrU),
		AddressModeV:  addrMode(spln.AddrV),
		AddressModeW:  addrMode(spln.AddrW),
		MagFilter:     filterMode(spln.Mag),
		MinFilter:     filterMode(spln.Min),
		MipmapFilter:  mipmapFilterMode(spln.Mipmap),
		LodMinClamp:   spln.MinLOD,
		LodMaxClamp:   spln.MaxLOD,
		MaxAnisotropy: uint16(spln.MaxAniso),
	}
	// A zero CmpFunc value (driver.CNever) means "no comparison
	// sampler"; wgpu signals that by leaving Compare at its zero
	// value, wgpu.CompareFunctionUndefined, instead of an explicit
	// Never comparison.
	if spln.Cmp != driver.CNever {
		desc.Compare = cmpFunc(spln.Cmp)
	}
	s, err := g.device.CreateSampler(desc)
	if err != nil {
		return nil, err
	}
	return &sampler{splr: s}, nil
}

func addrMode(m driver.AddrMode) wgpu.AddressMode {
	switch m {
	case driver.AWrap:
		return wgpu.AddressModeRepeat
	case driver.AMirror:
		return wgpu.AddressModeMirrorRepeat
	case driver.AClamp:
		return wgpu.AddressModeClampToEdge
	default:
		return wgpu.AddressModeClampToEdge
	}
}

func filterMode(f driver.Filter) wgpu.FilterMode {
	if f == driver.FLinear {
		return wgpu.FilterModeLinear
	}
	return wgpu.FilterModeNearest
}

func mipmapFilterMode(f driver.Filter) wgpu.MipmapFilterMode {
	if f == driver.FLinear {
		return wgpu.MipmapFilterModeLinear
	}
	return wgpu.MipmapFilterModeNearest
}

func cmpFunc(c driver.CmpFunc) wgpu.CompareFunction {
	switch c {
	case driver.CNever:
		return wgpu.CompareFunctionNever
	case driver.CLess:
		return wgpu.CompareFunctionLess
	case driver.CEqual:
		return wgpu.CompareFunctionEqual
	case driver.CLessEqual:
		return wgpu.CompareFunctionLessEqual
	case driver.CGreater:
		return wgpu.CompareFunctionGreater
	case driver.CNotEqual:
		return wgpu.CompareFunctionNotEqual
	case driver.CGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case driver.CAlways:
		return wgpu.CompareFunctionAlways
	default:
		return wgpu.CompareFunctionAlways
	}
}

func (s *sampler) Destroy() { s.splr.Release() }
