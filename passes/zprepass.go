// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package passes implements rendergraph.Pass nodes: the concrete
// command recording a compiled frame graph batch executes.
//
// Grounded on original_source/BasicRenderer/include/RenderPasses/
// ZPrepass.h (depth-only prepass over opaque/alpha-tested mesh
// instances, root-constant layout shared across techniques) and
// the rest of this tree's bindless/indirect-draw plumbing
// (internal/shaderlayout, indirect, resource, rendergraph).
package passes

import (
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/ecs"
	"github.com/vireoengine/forge/indirect"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/rendergraph"
	"github.com/vireoengine/forge/resource"
	"github.com/vireoengine/forge/view"
)

// ZPrepass renders the depth-only prepass: every opaque and
// alpha-tested mesh instance queued for ecs.PhaseZPrepass, depth
// write only, no color output. It always draws via
// DrawIndexedIndirect, sourcing its workload from an
// indirect.Manager built earlier in the frame, mirroring the
// teacher's indirect ExecuteMeshShaderIndirect path rather than
// its per-instance ExecuteRegular fallback, since every mesh
// instance in this tree already flows through the ECS's cached
// per-phase entity lists.
type ZPrepass struct {
	name string

	res      *resource.Manager
	indirect *indirect.Manager
	views    *view.Manager

	pipeline driver.Pipeline
	depth    string // rendergraph resource name of the depth target

	viewHandle view.Handle
}

// NewZPrepass creates a ZPrepass recording into pipeline (an
// opaque-technique depth-only PSO, built and owned by the
// caller) and reading its draw workload from ind's
// ecs.PhaseZPrepass list.
func NewZPrepass(name string, res *resource.Manager, ind *indirect.Manager, views *view.Manager, pipeline driver.Pipeline, depthResource string, viewHandle view.Handle) *ZPrepass {
	return &ZPrepass{
		name:       name,
		res:        res,
		indirect:   ind,
		views:      views,
		pipeline:   pipeline,
		depth:      depthResource,
		viewHandle: viewHandle,
	}
}

// Name implements rendergraph.Pass.
func (p *ZPrepass) Name() string { return p.name }

// DeclareResourceUsages implements rendergraph.Pass.
func (p *ZPrepass) DeclareResourceUsages() *rendergraph.Usages {
	u := rendergraph.NewUsages().WithDepthReadWrite(p.depth).IsGeometryPass()
	return u
}

// Execute implements rendergraph.Pass. It binds the bindless
// heap, sets the root constants common to every draw in the
// pass, then issues one DrawIndexedIndirect call sourcing its
// arguments from the indirect manager's PhaseZPrepass list.
func (p *ZPrepass) Execute(cb driver.CmdBuffer) error {
	buf, count := p.indirect.Buffer(ecs.PhaseZPrepass)
	if count == 0 {
		return nil
	}

	cb.SetPipeline(p.pipeline)
	cb.SetBindlessHeap(p.res.Heap())

	var rc shaderlayout.RootConstants
	rc.ViewBuffer = uint32(p.views.Slot())
	rc.ViewInfo = p.views.Index(p.viewHandle)
	rc.PerMeshInstance = uint32(p.indirect.InstanceInfo(ecs.PhaseZPrepass).Slot)
	cb.SetPushConstants(driver.SVertex|driver.SFragment, 0, rc.Bytes())

	stride := int64(unsafe.Sizeof(indirect.DrawArgs{}))
	cb.DrawIndexedIndirect(buf.Res, 0, count, stride, nil, 0)
	return nil
}
