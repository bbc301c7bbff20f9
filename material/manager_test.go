// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package material

import (
	"testing"

	"github.com/vireoengine/forge/ecs"
	_ "github.com/vireoengine/forge/internal/fakegpu"
	"github.com/vireoengine/forge/rctx"
	"github.com/vireoengine/forge/resource"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	res, err := resource.New(ctx, resource.Config{MaxConstant: 4}, 3)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	return NewManager(res)
}

func opaquePBR(t *testing.T) *Material {
	t.Helper()
	m, err := New(&PBR{AlphaMode: AlphaOpaque})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestAddAssignsSlotAndTechnique(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Add(opaquePBR(t))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mgr.UseCount(h) != 1 {
		t.Fatalf("UseCount: got %d, want 1", mgr.UseCount(h))
	}
	tech := mgr.Technique(h)
	if tech.Phases&ecs.PhaseZPrepass == 0 || tech.Phases&ecs.PhaseShadow == 0 {
		t.Errorf("Technique: opaque PBR should participate in ZPrepass+Shadow, got %v", tech.Phases)
	}
	_ = mgr.Slot(h)
}

func TestIncrementDecrementUsage(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Add(opaquePBR(t))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := mgr.IncrementUsage(h); n != 2 {
		t.Fatalf("IncrementUsage: got %d, want 2", n)
	}
	if n := mgr.DecrementUsage(h); n != 1 {
		t.Fatalf("DecrementUsage: got %d, want 1", n)
	}
	if n := mgr.DecrementUsage(h); n != 0 {
		t.Fatalf("DecrementUsage: got %d, want 0", n)
	}
	if mgr.UseCount(h) != 0 {
		t.Fatal("UseCount: expected 0 after final DecrementUsage")
	}
}

func TestDecrementUsageFreesSlotDeferred(t *testing.T) {
	mgr := newTestManager(t)
	var handles []Handle
	for i := 0; i < 4; i++ {
		h, err := mgr.Add(opaquePBR(t))
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
		handles = append(handles, h)
	}
	mgr.DecrementUsage(handles[0])
	if _, err := mgr.Add(opaquePBR(t)); err != resource.ErrHeapExhausted {
		t.Fatalf("Add right after DecrementUsage: got %v, want ErrHeapExhausted (release must be deferred)", err)
	}
	for i := 0; i < 3; i++ {
		mgr.res.Advance()
	}
	if _, err := mgr.Add(opaquePBR(t)); err != nil {
		t.Fatalf("Add after Advance x3: %v", err)
	}
}

func TestBlendMaterialIsTransparentOnly(t *testing.T) {
	mgr := newTestManager(t)
	m, err := New(&PBR{AlphaMode: AlphaBlend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := mgr.Add(m)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	tech := mgr.Technique(h)
	if tech.Phases != ecs.PhaseTransparent {
		t.Errorf("Technique: blend PBR phases: got %v, want PhaseTransparent", tech.Phases)
	}
}
