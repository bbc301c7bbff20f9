// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"testing"

	"github.com/vireoengine/forge/ecs"
	"github.com/vireoengine/forge/linear"
)

func TestNew(t *testing.T) {
	s := New()
	if s.World().Len() != 0 {
		t.Fatal("New: expected an empty world")
	}
}

func TestNewNodeUpdate(t *testing.T) {
	s := New()
	var root linear.M4
	root.I()
	root[3][0] = 1 // translate x by 1

	var child linear.M4
	child.I()
	child[3][1] = 2 // translate y by 2

	r := s.NewNode(root, ecs.Nil)
	c := s.NewNode(child, r)

	s.Update()

	rt, ok := s.World().Transforms.Get(r)
	if !ok {
		t.Fatal("Transforms.Get(r): missing")
	}
	if rt.World != root {
		t.Errorf("root world transform: got %v, want %v", rt.World, root)
	}

	ct, ok := s.World().Transforms.Get(c)
	if !ok {
		t.Fatal("Transforms.Get(c): missing")
	}
	var want linear.M4
	want.Mul(&root, &child)
	if ct.World != want {
		t.Errorf("child world transform: got %v, want %v", ct.World, want)
	}
}
