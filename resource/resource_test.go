// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package resource

import (
	"testing"

	"github.com/vireoengine/forge/driver"
	_ "github.com/vireoengine/forge/internal/fakegpu"
	"github.com/vireoengine/forge/rctx"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	m, err := New(ctx, Config{MaxBuffer: 4, MaxConstant: 4, MaxTexture: 4, MaxSampler: 2}, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewBufferAssignsSlot(t *testing.T) {
	m := newTestManager(t)
	b, err := m.NewBuffer(1024, true, driver.UShaderRead, driver.DBuffer)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if b.Slot == driver.InvalidSlot {
		t.Error("NewBuffer: expected a valid slot")
	}
}

func TestHeapExhaustion(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 4; i++ {
		if _, err := m.NewBuffer(256, true, driver.UShaderRead, driver.DBuffer); err != nil {
			t.Fatalf("NewBuffer #%d: %v", i, err)
		}
	}
	if _, err := m.NewBuffer(256, true, driver.UShaderRead, driver.DBuffer); err != ErrHeapExhausted {
		t.Fatalf("NewBuffer: got %v, want ErrHeapExhausted", err)
	}
}

func TestSamplerDedup(t *testing.T) {
	m := newTestManager(t)
	spln := driver.Sampling{Min: driver.FLinear, Mag: driver.FLinear}
	s1, err := m.NewSampler(spln)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	s2, err := m.NewSampler(spln)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	if s1 != s2 {
		t.Error("NewSampler: expected identical Sampling values to dedup")
	}
}

func TestFreeBufferDefersSlotReuse(t *testing.T) {
	m := newTestManager(t)
	var bufs []*Buffer
	for i := 0; i < 4; i++ {
		b, err := m.NewBuffer(256, true, driver.UShaderRead, driver.DBuffer)
		if err != nil {
			t.Fatalf("NewBuffer #%d: %v", i, err)
		}
		bufs = append(bufs, b)
	}

	m.FreeBuffer(bufs[0])

	// The slot must not be reusable until numFrames Advance calls
	// have passed, even though it was already freed.
	if _, err := m.NewBuffer(256, true, driver.UShaderRead, driver.DBuffer); err != ErrHeapExhausted {
		t.Fatalf("NewBuffer right after FreeBuffer: got %v, want ErrHeapExhausted (slot reuse must be deferred)", err)
	}
	for i := 0; i < 3; i++ {
		m.Advance()
	}
	if _, err := m.NewBuffer(256, true, driver.UShaderRead, driver.DBuffer); err != nil {
		t.Fatalf("NewBuffer after numFrames Advance calls: %v", err)
	}
}
