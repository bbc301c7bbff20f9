// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package indirect builds the per-phase indirect draw command
// buffers a render pass submits in a single
// CmdBuffer.DrawIndexedIndirect call, deriving them from the ECS
// world's cached per-phase entity lists instead of issuing one
// draw call per mesh instance.
//
// There is no teacher equivalent for this bookkeeping (the
// teacher's renderer.go iterates drawables and issues direct draw
// calls); it is grounded on the allocator idiom used throughout
// this tree (a *resource.Manager-backed buffer, written once per
// frame, sized to a fixed capacity) rather than on a specific
// teacher file.
package indirect

import (
	"errors"
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/ecs"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/mesh"
	"github.com/vireoengine/forge/resource"
)

// DrawArgs is the GPU-side argument layout consumed by
// CmdBuffer.DrawIndexedIndirect, one entry per queued draw.
type DrawArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// ErrFull means a phase's draw list cannot grow any further
// within its configured capacity.
var ErrFull = errors.New("indirect: draw list full")

// ObjectIndexFunc resolves the PerObjectLayout/PerMeshInstanceLayout
// index an entity's renderable should carry into its queued
// draws. The indirect package does not import object/material
// itself, to avoid coupling the draw-list builder to how those
// managers assign their own indices.
type ObjectIndexFunc func(e ecs.Entity) uint32

type phaseList struct {
	args     *resource.Buffer
	instInfo *resource.Buffer
	cap      int
	count    int
}

// Manager owns one fixed-capacity draw list per render phase.
type Manager struct {
	res    *resource.Manager
	phases map[ecs.Phase]*phaseList
}

// NewManager creates an empty Manager allocating through res.
func NewManager(res *resource.Manager) *Manager {
	return &Manager{res: res, phases: make(map[ecs.Phase]*phaseList)}
}

// Reserve allocates (or re-allocates) phase's draw list to hold up
// to cap draws. It must be called once for every phase the caller
// intends to Build before the first Build call for that phase.
func (mgr *Manager) Reserve(phase ecs.Phase, capacity int) error {
	args, err := mgr.res.NewBuffer(int64(capacity)*int64(unsafe.Sizeof(DrawArgs{})), true, driver.UGeneric, driver.DBuffer)
	if err != nil {
		return err
	}
	instInfo, err := mgr.res.NewBuffer(int64(capacity)*int64(unsafe.Sizeof(shaderlayout.PerMeshInstanceLayout{})), true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		mgr.res.FreeBuffer(args)
		return err
	}
	if old, ok := mgr.phases[phase]; ok {
		mgr.res.FreeBuffer(old.args)
		mgr.res.FreeBuffer(old.instInfo)
	}
	mgr.phases[phase] = &phaseList{args: args, instInfo: instInfo, cap: capacity}
	return nil
}

// Build walks w's cached entity list for phase and fills phase's
// draw list with one entry per mesh instance each entity's
// ecs.PerPassMeshes component assigns to phase. It returns the
// number of draws queued. Build must follow a matching Reserve
// call; it returns ErrFull without partially updating GPU state
// if the phase's entity set would exceed its reserved capacity.
func (mgr *Manager) Build(w *ecs.World, phase ecs.Phase, meshes *mesh.Manager, objIndex ObjectIndexFunc) (int, error) {
	pl, ok := mgr.phases[phase]
	if !ok {
		panic("indirect: Build: phase was never Reserve'd")
	}
	entities := w.QueryPhase(phase)
	type draw struct {
		args DrawArgs
		inst shaderlayout.PerMeshInstanceLayout
	}
	draws := make([]draw, 0, pl.cap)
	for _, e := range entities {
		pm, ok := w.PerPassMeshes.Get(e)
		if !ok {
			continue
		}
		instances, ok := pm.Entries[phase]
		if !ok {
			continue
		}
		objIdx := objIndex(e)
		for _, instIdx := range instances {
			if len(draws) >= pl.cap {
				return 0, ErrFull
			}
			mi := meshes.Instance(instIdx)
			count, indexed := mi.Mesh.DrawInfo()
			if !indexed {
				continue
			}
			firstIndex, baseVertex := mi.Mesh.DrawElements()
			var d draw
			d.args = DrawArgs{
				IndexCount:    uint32(count),
				InstanceCount: 1,
				FirstIndex:    uint32(firstIndex),
				BaseVertex:    int32(baseVertex),
				FirstInstance: uint32(len(draws)),
			}
			d.inst.SetObject(objIdx)
			draws = append(draws, d)
		}
	}
	for i, d := range draws {
		argOff := i * int(unsafe.Sizeof(DrawArgs{}))
		argRaw := unsafe.Slice((*byte)(unsafe.Pointer(&d.args)), unsafe.Sizeof(d.args))
		copy(pl.args.Res.Bytes()[argOff:], argRaw)

		instOff := i * int(unsafe.Sizeof(shaderlayout.PerMeshInstanceLayout{}))
		instRaw := unsafe.Slice((*byte)(unsafe.Pointer(&d.inst)), unsafe.Sizeof(d.inst))
		copy(pl.instInfo.Res.Bytes()[instOff:], instRaw)
	}
	// Zero any entries left over from an earlier, larger Build so
	// that args past the live count describe empty draws.
	clear(pl.args.Res.Bytes()[len(draws)*int(unsafe.Sizeof(DrawArgs{})):])
	pl.count = len(draws)
	return pl.count, nil
}

// Buffer returns phase's populated args buffer and live draw
// count, suitable for a CmdBuffer.DrawIndexedIndirect call.
func (mgr *Manager) Buffer(phase ecs.Phase) (*resource.Buffer, int) {
	pl := mgr.phases[phase]
	return pl.args, pl.count
}

// InstanceInfo returns phase's PerMeshInstanceLayout table buffer,
// indexed by DrawArgs.FirstInstance + SV_InstanceID within a pass's
// shader.
func (mgr *Manager) InstanceInfo(phase ecs.Phase) *resource.Buffer {
	return mgr.phases[phase].instInfo
}
