// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

type pipeline struct {
	graph *wgpu.RenderPipeline
	comp  *wgpu.ComputePipeline
}

func (p *pipeline) Destroy() {
	if p.graph != nil {
		p.graph.Release()
	}
	if p.comp != nil {
		p.comp.Release()
	}
}

// NewPipeline implements driver.GPU. The pipeline layout always
// reserves group bindlessGroup for the emulated BindlessHeap and
// group pushConstantGroup for the push constant emulation buffer,
// ahead of whatever the state's DescTable occupies starting at
// firstTableGroup, mirroring RegisterRenderPipeline's
// mergeBindGroupLayouts step but with fixed low-numbered groups
// reserved up front instead of merged from shader reflection.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		return g.newGraphPipeline(s)
	case *driver.CompState:
		return g.newCompPipeline(s)
	default:
		return nil, fmt.Errorf("wgpu: NewPipeline: state must be *driver.GraphState or *driver.CompState")
	}
}

func (g *GPU) pipelineLayout(desc driver.DescTable) (*wgpu.PipelineLayout, error) {
	bindless, err := g.bindlessLayout()
	if err != nil {
		return nil, err
	}
	pc, err := g.pushConstantLayout()
	if err != nil {
		return nil, err
	}
	layouts := []*wgpu.BindGroupLayout{bindless, pc}
	if t, ok := desc.(*descTable); ok && t != nil {
		layouts = append(layouts, t.layout)
	}
	return g.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{BindGroupLayouts: layouts})
}

func (g *GPU) newGraphPipeline(s *driver.GraphState) (driver.Pipeline, error) {
	vs, ok := s.VertFunc.Code.(*shaderCode)
	if !ok {
		return nil, errNotWgpu
	}
	fs, ok := s.FragFunc.Code.(*shaderCode)
	if !ok {
		return nil, errNotWgpu
	}
	pass, ok := s.Pass.(*renderPass)
	if !ok {
		return nil, errNotWgpu
	}

	layout, err := g.pipelineLayout(s.Desc)
	if err != nil {
		return nil, err
	}

	buffers := make([]wgpu.VertexBufferLayout, len(s.Input))
	for i, in := range s.Input {
		vf, err := vertexFormat(in.Format)
		if err != nil {
			return nil, err
		}
		buffers[i] = wgpu.VertexBufferLayout{
			ArrayStride: uint64(in.Stride),
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: vf, Offset: 0, ShaderLocation: uint32(in.Nr)},
			},
		}
	}

	targets := make([]wgpu.ColorTargetState, len(pass.sub.Color))
	for i, idx := range pass.sub.Color {
		att := pass.att[idx]
		wf, err := textureFormat(att.Format)
		if err != nil {
			return nil, err
		}
		cb := driver.ColorBlend{}
		if s.Blend.IndependentBlend {
			if i < len(s.Blend.Color) {
				cb = s.Blend.Color[i]
			}
		} else if len(s.Blend.Color) > 0 {
			cb = s.Blend.Color[0]
		}
		ct := wgpu.ColorTargetState{Format: wf, WriteMask: colorMask(cb.WriteMask)}
		if cb.Blend {
			ct.Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{Operation: blendOp(cb.Op[0]), SrcFactor: blendFac(cb.SrcFac[0]), DstFactor: blendFac(cb.DstFac[0])},
				Alpha: wgpu.BlendComponent{Operation: blendOp(cb.Op[1]), SrcFactor: blendFac(cb.SrcFac[1]), DstFactor: blendFac(cb.DstFac[1])},
			}
		}
		targets[i] = ct
	}

	var ds *wgpu.DepthStencilState
	if pass.sub.DS >= 0 && pass.sub.DS < len(pass.att) {
		wf, err := textureFormat(pass.att[pass.sub.DS].Format)
		if err != nil {
			return nil, err
		}
		cmp := wgpu.CompareFunctionAlways
		if s.DS.DepthTest {
			cmp = cmpFunc(s.DS.DepthCmp)
		}
		ds = &wgpu.DepthStencilState{
			Format:            wf,
			DepthWriteEnabled: s.DS.DepthWrite,
			DepthCompare:      cmp,
			StencilFront:      stencilFace(s.DS.Front, s.DS.StencilTest),
			StencilBack:       stencilFace(s.DS.Back, s.DS.StencilTest),
			StencilReadMask:   s.DS.Front.ReadMask,
			StencilWriteMask:  s.DS.Front.WriteMask,
		}
		if s.Raster.DepthBias {
			ds.DepthBias = int32(s.Raster.BiasValue)
			ds.DepthBiasSlopeScale = s.Raster.BiasSlope
			ds.DepthBiasClamp = s.Raster.BiasClamp
		}
	}

	samples := s.Samples
	if samples == 0 {
		samples = 1
	}

	p, err := g.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs.mod,
			EntryPoint: s.VertFunc.Name,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs.mod,
			EntryPoint: s.FragFunc.Name,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(s.Topology),
			FrontFace: frontFace(s.Raster.Clockwise),
			CullMode:  cullMode(s.Raster.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(samples),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: ds,
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{graph: p}, nil
}

func (g *GPU) newCompPipeline(s *driver.CompState) (driver.Pipeline, error) {
	cs, ok := s.Func.Code.(*shaderCode)
	if !ok {
		return nil, errNotWgpu
	}
	layout, err := g.pipelineLayout(s.Desc)
	if err != nil {
		return nil, err
	}
	p, err := g.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs.mod,
			EntryPoint: s.Func.Name,
		},
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{comp: p}, nil
}

func topology(t driver.Topology) wgpu.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return wgpu.PrimitiveTopologyPointList
	case driver.TLine:
		return wgpu.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return wgpu.PrimitiveTopologyLineStrip
	case driver.TTriangle:
		return wgpu.PrimitiveTopologyTriangleList
	case driver.TTriStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func frontFace(clockwise bool) wgpu.FrontFace {
	if clockwise {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func cullMode(c driver.CullMode) wgpu.CullMode {
	switch c {
	case driver.CFront:
		return wgpu.CullModeFront
	case driver.CBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func colorMask(m driver.ColorMask) wgpu.ColorWriteMask {
	var w wgpu.ColorWriteMask
	if m&driver.CRed != 0 {
		w |= wgpu.ColorWriteMaskRed
	}
	if m&driver.CGreen != 0 {
		w |= wgpu.ColorWriteMaskGreen
	}
	if m&driver.CBlue != 0 {
		w |= wgpu.ColorWriteMaskBlue
	}
	if m&driver.CAlpha != 0 {
		w |= wgpu.ColorWriteMaskAlpha
	}
	return w
}

func blendOp(op driver.BlendOp) wgpu.BlendOperation {
	switch op {
	case driver.BSubtract:
		return wgpu.BlendOperationSubtract
	case driver.BRevSubtract:
		return wgpu.BlendOperationReverseSubtract
	case driver.BMin:
		return wgpu.BlendOperationMin
	case driver.BMax:
		return wgpu.BlendOperationMax
	default:
		return wgpu.BlendOperationAdd
	}
}

func blendFac(f driver.BlendFac) wgpu.BlendFactor {
	switch f {
	case driver.BOne:
		return wgpu.BlendFactorOne
	case driver.BSrcColor:
		return wgpu.BlendFactorSrc
	case driver.BInvSrcColor:
		return wgpu.BlendFactorOneMinusSrc
	case driver.BSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return wgpu.BlendFactorDst
	case driver.BInvDstColor:
		return wgpu.BlendFactorOneMinusDst
	case driver.BDstAlpha:
		return wgpu.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return wgpu.BlendFactorOneMinusDstAlpha
	case driver.BSrcAlphaSaturated:
		return wgpu.BlendFactorSrcAlphaSaturated
	case driver.BBlendColor:
		return wgpu.BlendFactorConstant
	case driver.BInvBlendColor:
		return wgpu.BlendFactorOneMinusConstant
	default:
		return wgpu.BlendFactorZero
	}
}

func stencilFace(s driver.StencilT, enabled bool) wgpu.StencilFaceState {
	if !enabled {
		return wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways}
	}
	return wgpu.StencilFaceState{
		Compare:     cmpFunc(s.Cmp),
		FailOp:      stencilOp(s.DSFail[0]),
		DepthFailOp: stencilOp(s.DSFail[1]),
		PassOp:      stencilOp(s.Pass),
	}
}

func stencilOp(op driver.StencilOp) wgpu.StencilOperation {
	switch op {
	case driver.SZero:
		return wgpu.StencilOperationZero
	case driver.SReplace:
		return wgpu.StencilOperationReplace
	case driver.SIncClamp:
		return wgpu.StencilOperationIncrementClamp
	case driver.SDecClamp:
		return wgpu.StencilOperationDecrementClamp
	case driver.SInvert:
		return wgpu.StencilOperationInvert
	case driver.SIncWrap:
		return wgpu.StencilOperationIncrementWrap
	case driver.SDecWrap:
		return wgpu.StencilOperationDecrementWrap
	default:
		return wgpu.StencilOperationKeep
	}
}
