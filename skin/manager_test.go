// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package skin

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
	res, err := resource.New(ctx, resource.Config{MaxConstant: 4}, 3)
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	return NewManager(res)
}

func threeJointSkin(t *testing.T) *Skin {
	t.Helper()
	var ident linear.M4
	ident.I()
	sk, err := New([]Joint{
		{Name: "root", JM: ident, IBM: ident, Parent: -1},
		{Name: "mid", JM: ident, IBM: ident, Parent: 0},
		{Name: "tip", JM: ident, IBM: ident, Parent: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sk
}

func TestNewInstanceAssignsSlot(t *testing.T) {
	mgr := newTestManager(t)
	inst, err := mgr.NewInstance(threeJointSkin(t))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if inst.Skin() == nil {
		t.Fatal("Instance.Skin: got nil")
	}
	_ = inst.Slot()
}

func TestSetJointQueuesDispatch(t *testing.T) {
	mgr := newTestManager(t)
	inst, err := mgr.NewInstance(threeJointSkin(t))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if got := mgr.Flush(); got != nil {
		t.Fatalf("Flush before any SetJoint: got %v, want nil", got)
	}
	var m linear.M4
	m.I()
	mgr.SetJoint(inst, 1, &m, &m)
	pending := mgr.Flush()
	if len(pending) != 1 || pending[0] != inst {
		t.Fatalf("Flush after SetJoint: got %v, want [inst]", pending)
	}
	if got := mgr.Flush(); got != nil {
		t.Fatalf("Flush after drain: got %v, want nil", got)
	}
}

func TestSetJointOutOfRangePanics(t *testing.T) {
	mgr := newTestManager(t)
	inst, err := mgr.NewInstance(threeJointSkin(t))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("SetJoint: expected panic for out-of-range joint index")
		}
	}()
	var m linear.M4
	mgr.SetJoint(inst, 99, &m, &m)
}

func TestFreeInstanceDropsPendingDispatch(t *testing.T) {
	mgr := newTestManager(t)
	inst, err := mgr.NewInstance(threeJointSkin(t))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	var m linear.M4
	m.I()
	mgr.SetJoint(inst, 0, &m, &m)
	mgr.FreeInstance(inst)
	if got := mgr.Flush(); got != nil {
		t.Fatalf("Flush after FreeInstance: got %v, want nil", got)
	}
}
