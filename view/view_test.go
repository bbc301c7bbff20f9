// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package view

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

func identView() View {
	var v View
	v.VP.I()
	v.V.I()
	v.P.I()
	v.Near, v.Far = 0.1, 100
	v.Width, v.Height = 1920, 1080
	return v
}

func TestAddUpdateRemove(t *testing.T) {
	mgr := newTestManager(t)
	v := identView()
	h, err := mgr.Add(&v)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mgr.Index(h) != 0 {
		t.Fatalf("Index: got %d, want 0", mgr.Index(h))
	}
	v.Position = linear.V3{1, 2, 3}
	mgr.Update(h, &v)
	mgr.Remove(h)
	defer func() {
		if recover() == nil {
			t.Fatal("Index after Remove: expected panic")
		}
	}()
	mgr.Index(h)
}

func TestAddUntilFull(t *testing.T) {
	mgr := newTestManager(t)
	v := identView()
	for i := 0; i < MaxViews; i++ {
		if _, err := mgr.Add(&v); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	if _, err := mgr.Add(&v); err != ErrFull {
		t.Fatalf("Add past capacity: got %v, want ErrFull", err)
	}
}
