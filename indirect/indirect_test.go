// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package indirect

import (
	"bytes"
	"io"
	"testing"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/ecs"
	_ "github.com/vireoengine/forge/internal/fakegpu"
	"github.com/vireoengine/forge/mesh"
	"github.com/vireoengine/forge/rctx"
	"github.com/vireoengine/forge/resource"
)

func newTestManager(t *testing.T) (*Manager, *resource.Manager) {
	t.Helper()
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	res, err := resource.New(ctx, resource.Config{MaxBuffer: 4, MaxConstant: 4}, 3)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	return NewManager(res), res
}

func newIndexedMesh(t *testing.T, mmgr *mesh.Manager) *mesh.Mesh {
	t.Helper()
	const nverts = 8
	pos := make([]byte, nverts*12)
	idx := make([]byte, nverts*2)
	data := mesh.PrimitiveData{
		Topology:     driver.TTriangle,
		SemanticMask: mesh.Position,
		VertexCount:  nverts,
		IndexCount:   nverts,
		Index:        mesh.IndexData{Src: 1, Format: driver.Index16},
		Srcs: []io.ReadSeeker{
			bytes.NewReader(pos),
			bytes.NewReader(idx),
		},
	}
	data.Semantics[mesh.Position.I()] = mesh.AttrData{Src: 0, Format: driver.Float32x3}
	m, err := mmgr.New(&data)
	if err != nil {
		t.Fatalf("mesh.Manager.New: %v", err)
	}
	return m
}

func TestBuildQueuesOneDrawPerInstance(t *testing.T) {
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	mmgr := mesh.NewManager(ctx)
	mmgr.SetBuffer(nil)
	m := newIndexedMesh(t, mmgr)
	i0 := mmgr.NewInstance(mesh.MeshInstance{Mesh: m, Skin: -1, LOD: -1})
	i1 := mmgr.NewInstance(mesh.MeshInstance{Mesh: m, Skin: -1, LOD: -1})

	mgr, _ := newTestManager(t)
	if err := mgr.Reserve(ecs.PhaseGBuffer, 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	w := ecs.NewWorld()
	e := w.Create()
	w.Renderables.Set(e, ecs.Renderable{MeshInstances: []int32{i0, i1}})
	w.PerPassMeshes.Set(e, ecs.PerPassMeshes{Entries: map[ecs.Phase][]int32{
		ecs.PhaseGBuffer: {i0, i1},
	}})
	w.SetPhases(e, ecs.PhaseGBuffer)

	count, err := mgr.Build(w, ecs.PhaseGBuffer, mmgr, func(ecs.Entity) uint32 { return 42 })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if count != 2 {
		t.Fatalf("Build: got %d draws, want 2", count)
	}
	buf, n := mgr.Buffer(ecs.PhaseGBuffer)
	if n != 2 || buf == nil {
		t.Fatalf("Buffer: got (%v, %d), want (non-nil, 2)", buf, n)
	}
}

func TestBuildWithoutReservePanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	w := ecs.NewWorld()
	defer func() {
		if recover() == nil {
			t.Fatal("Build: expected panic for unreserved phase")
		}
	}()
	mgr.Build(w, ecs.PhaseShadow, nil, func(ecs.Entity) uint32 { return 0 })
}

func TestBuildExceedsCapacityReturnsErrFull(t *testing.T) {
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	mmgr := mesh.NewManager(ctx)
	mmgr.SetBuffer(nil)
	m := newIndexedMesh(t, mmgr)
	i0 := mmgr.NewInstance(mesh.MeshInstance{Mesh: m, Skin: -1, LOD: -1})
	i1 := mmgr.NewInstance(mesh.MeshInstance{Mesh: m, Skin: -1, LOD: -1})

	mgr, _ := newTestManager(t)
	if err := mgr.Reserve(ecs.PhaseGBuffer, 1); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	w := ecs.NewWorld()
	e := w.Create()
	w.Renderables.Set(e, ecs.Renderable{MeshInstances: []int32{i0, i1}})
	w.PerPassMeshes.Set(e, ecs.PerPassMeshes{Entries: map[ecs.Phase][]int32{
		ecs.PhaseGBuffer: {i0, i1},
	}})
	w.SetPhases(e, ecs.PhaseGBuffer)

	if _, err := mgr.Build(w, ecs.PhaseGBuffer, mmgr, func(ecs.Entity) uint32 { return 0 }); err != ErrFull {
		t.Fatalf("Build past capacity: got %v, want ErrFull", err)
	}
}
