// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package light

import (
	"testing"

	_ "github.com/vireoengine/forge/internal/fakegpu"
	"github.com/vireoengine/forge/linear"
	"github.com/vireoengine/forge/rctx"
	"github.com/vireoengine/forge/resource"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	res, err := resource.New(ctx, resource.Config{MaxConstant: 2}, 3)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	mgr, err := NewManager(res)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestAddUpdateRemove(t *testing.T) {
	mgr := newTestManager(t)
	h, err := mgr.Add(&Light{Kind: Spot, Color: linear.V3{1, 1, 1}, Intensity: 4, Range: 10, ShadowView: NoShadowView})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mgr.Index(h) != 0 {
		t.Fatalf("Index: got %d, want 0", mgr.Index(h))
	}
	mgr.Update(h, &Light{Kind: Direct, Color: linear.V3{0, 1, 0}, Intensity: 1, ShadowView: NoShadowView})
	mgr.Remove(h)
	defer func() {
		if recover() == nil {
			t.Fatal("Index after Remove: expected panic")
		}
	}()
	mgr.Index(h)
}

func TestAddReusesFreedSlot(t *testing.T) {
	mgr := newTestManager(t)
	h1, err := mgr.Add(&Light{Kind: Point, ShadowView: NoShadowView})
	if err != nil {
		t.Fatalf("Add #1: %v", err)
	}
	mgr.Remove(h1)
	h2, err := mgr.Add(&Light{Kind: Point, ShadowView: NoShadowView})
	if err != nil {
		t.Fatalf("Add #2: %v", err)
	}
	if mgr.Index(h2) != 0 {
		t.Fatalf("Index after reuse: got %d, want 0", mgr.Index(h2))
	}
}

func TestUpdateUnregisteredPanics(t *testing.T) {
	mgr := newTestManager(t)
	defer func() {
		if recover() == nil {
			t.Fatal("Update: expected panic for unregistered handle")
		}
	}()
	mgr.Update(Handle(7), &Light{})
}
