// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import "testing"

func TestCreateDestroy(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	if e == Nil {
		t.Fatal("Create: got Nil")
	}
	if !w.Alive(e) {
		t.Fatal("Alive: expected true after Create")
	}
	w.Destroy(e)
	if w.Alive(e) {
		t.Fatal("Alive: expected false after Destroy")
	}
}

func TestSparseSetSwapRemove(t *testing.T) {
	w := NewWorld()
	e1, e2, e3 := w.Create(), w.Create(), w.Create()
	w.Renderables.Set(e1, Renderable{MeshInstances: []int32{1}})
	w.Renderables.Set(e2, Renderable{MeshInstances: []int32{2}})
	w.Renderables.Set(e3, Renderable{MeshInstances: []int32{3}})
	w.Renderables.Remove(e1)
	if w.Renderables.Has(e1) {
		t.Error("Remove: e1 still present")
	}
	if r, ok := w.Renderables.Get(e2); !ok || len(r.MeshInstances) != 1 || r.MeshInstances[0] != 2 {
		t.Errorf("Get(e2) after swap-remove: got %+v, %v", r, ok)
	}
	if w.Renderables.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Renderables.Len())
	}
}

func TestQueryPhaseCaching(t *testing.T) {
	w := NewWorld()
	e1 := w.Create()
	w.Renderables.Set(e1, Renderable{})
	w.SetPhases(e1, PhaseZPrepass|PhaseForward)

	got := w.QueryPhase(PhaseForward)
	if len(got) != 1 || got[0] != e1 {
		t.Fatalf("QueryPhase: got %v, want [%v]", got, e1)
	}
	if len(w.QueryPhase(PhaseShadow)) != 0 {
		t.Error("QueryPhase(PhaseShadow): expected no matches")
	}

	e2 := w.Create()
	w.Renderables.Set(e2, Renderable{})
	w.SetPhases(e2, PhaseForward)
	got = w.QueryPhase(PhaseForward)
	if len(got) != 2 {
		t.Fatalf("QueryPhase after adding entity: got %d entries, want 2", len(got))
	}
}

func TestPerPassMeshesRemovedOnDestroy(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	w.Renderables.Set(e, Renderable{MeshInstances: []int32{0, 1}})
	w.PerPassMeshes.Set(e, PerPassMeshes{Entries: map[Phase][]int32{
		PhaseGBuffer: {0, 1},
		PhaseShadow:  {0},
	}})
	if pm, ok := w.PerPassMeshes.Get(e); !ok || len(pm.Entries[PhaseGBuffer]) != 2 {
		t.Fatalf("PerPassMeshes.Get: got %+v, %v", pm, ok)
	}
	w.Destroy(e)
	if w.PerPassMeshes.Has(e) {
		t.Error("PerPassMeshes: still present after Destroy")
	}
}

func TestDestroyInvalidatesQuery(t *testing.T) {
	w := NewWorld()
	e1 := w.Create()
	w.Renderables.Set(e1, Renderable{})
	w.SetPhases(e1, PhaseForward)
	_ = w.QueryPhase(PhaseForward)
	w.Destroy(e1)
	if got := w.QueryPhase(PhaseForward); len(got) != 0 {
		t.Errorf("QueryPhase after Destroy: got %v, want empty", got)
	}
}
