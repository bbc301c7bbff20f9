// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/vireoengine/forge/rctx"

	_ "github.com/vireoengine/forge/internal/fakegpu"
)

func newTestCtx(t *testing.T) *rctx.Context {
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New failed:\n%#v", err)
	}
	t.Cleanup(ctx.Close)
	return ctx
}

func TestNewDefaultConfig(t *testing.T) {
	ctx := newTestCtx(t)
	e := New(ctx, nil)
	if e.Config() != DefaultConfig() {
		t.Fatal("New(ctx, nil): expected DefaultConfig")
	}
	if e.Context() != ctx {
		t.Fatal("Context: want the ctx passed to New")
	}
	if e.Mesh() == nil {
		t.Fatal("Mesh: expected a non-nil Manager")
	}
	if e.Scene() == nil {
		t.Fatal("Scene: expected a non-nil Scene")
	}
}

func TestNewCustomConfig(t *testing.T) {
	ctx := newTestCtx(t)
	config := DefaultConfig()
	config.MaxLight = 16
	e := New(ctx, &config)
	if e.Config().MaxLight != 16 {
		t.Fatalf("Config().MaxLight: got %d, want 16", e.Config().MaxLight)
	}
}
