// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package scene provides functionality for creating and
// updating scene graphs.
package scene

import (
	"github.com/vireoengine/forge/ecs"
	"github.com/vireoengine/forge/linear"
)

// Scene defines a scene graph.
type Scene struct {
	world ecs.World
}

// New creates an initialized scene.
func New() *Scene { return new(Scene).Init() }

// Init initializes a scene, discarding any prior content.
func (s *Scene) Init() *Scene {
	s.world = *ecs.NewWorld()
	return s
}

// World returns the scene's entity/component storage.
func (s *Scene) World() *ecs.World { return &s.world }

// NewNode creates an entity with a Transform component, attached
// to parent (ecs.Nil for a root node), and returns it.
func (s *Scene) NewNode(local linear.M4, parent ecs.Entity) ecs.Entity {
	e := s.world.Create()
	s.world.Transforms.Set(e, ecs.Transform{Local: local, Parent: parent, Changed: true})
	return e
}

// Update recomputes the world transform of every node that
// changed (or whose ancestor changed) since the last call.
func (s *Scene) Update() { s.world.UpdateTransforms() }
