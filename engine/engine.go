// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine ties the renderer's mesh storage and scene
// graph together behind a single Engine
// value, configured once at creation instead of through a
// package-level global.
package engine

import (
	"github.com/vireoengine/forge/mesh"
	"github.com/vireoengine/forge/rctx"
	"github.com/vireoengine/forge/scene"
)

const (
	// MaxFrame is the maximum number of frames in flight.
	MaxFrame = 3

	// MaxLight is the maximum number of lights per frame.
	MaxLight = 1024

	// MaxShadow is the maximum number of shadow maps per frame.
	MaxShadow = 64

	// MaxJoint is the maximum number of joints in a skin.
	MaxJoint = 1024

	// MinMeshBuffer is the minimum size of the mesh buffer.
	MinMeshBuffer = 16384

	dflMaxDrawable       = 2048
	dflMaxMaterial       = 512
	dflMaxSkin           = 1024
	dflInitialMeshBuffer = MinMeshBuffer * 256
)

// Config configures an Engine.
type Config struct {
	// Prefer double-buffering rather than the
	// default triple-buffering.
	//
	// Default is false.
	DoubleBuffered bool

	// The maximum number of lights per frame.
	//
	// Default is MaxLight.
	MaxLight int

	// The maximum number of shadow maps per frame.
	//
	// Default is MaxShadow.
	MaxShadow int

	// The maximum number of joints in a skin.
	//
	// Default is MaxJoint.
	MaxJoint int

	// The maximum number of drawables per frame.
	//
	// Default is 2048.
	MaxDrawable int

	// The maximum number of materials per frame.
	//
	// Default is 512.
	MaxMaterial int

	// The maximum number of skins per frame.
	//
	// Default is 1024.
	MaxSkin int

	// The initial size of the mesh buffer.
	//
	// It must be a multiple of 16384 bytes.
	//
	// Default is 4194304 bytes (4MiB).
	InitialMeshBuffer int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DoubleBuffered:    false,
		MaxLight:          MaxLight,
		MaxShadow:         MaxShadow,
		MaxJoint:          MaxJoint,
		MaxDrawable:       dflMaxDrawable,
		MaxMaterial:       dflMaxMaterial,
		MaxSkin:           dflMaxSkin,
		InitialMeshBuffer: dflInitialMeshBuffer,
	}
}

// Engine owns the subsystems needed to render a scene: the GPU
// context, the mesh buffer manager, and the scene graph.
// Each Engine is independent; nothing here is shared globally,
// so multiple Engines (e.g. in tests) can coexist.
type Engine struct {
	cfg   Config
	ctx   *rctx.Context
	mesh  *mesh.Manager
	scene *scene.Scene
}

// New creates an Engine using ctx for GPU access and config for
// its limits. If config is nil, DefaultConfig is used.
func New(ctx *rctx.Context, config *Config) *Engine {
	c := DefaultConfig()
	if config != nil {
		c = *config
	}
	return &Engine{
		cfg:   c,
		ctx:   ctx,
		mesh:  mesh.NewManager(ctx),
		scene: scene.New(),
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Context returns the GPU context the engine was created with.
func (e *Engine) Context() *rctx.Context { return e.ctx }

// Mesh returns the engine's mesh buffer manager.
func (e *Engine) Mesh() *mesh.Manager { return e.mesh }

// Scene returns the engine's scene graph.
func (e *Engine) Scene() *scene.Scene { return e.scene }
