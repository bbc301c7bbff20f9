// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package upload

import (
	"testing"

	"github.com/vireoengine/forge/driver"
	_ "github.com/vireoengine/forge/internal/fakegpu"
	"github.com/vireoengine/forge/rctx"
)

func newTestManager(t *testing.T) (*Manager, *rctx.Context) {
	t.Helper()
	ctx, err := rctx.New("fake")
	if err != nil {
		t.Fatalf("rctx.New: %v", err)
	}
	m, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, ctx
}

func TestWriteBufferAndCommit(t *testing.T) {
	m, ctx := newTestManager(t)
	dst, err := ctx.GPU().NewBuffer(4096, true, driver.UShaderRead)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	data := []byte("hello, gpu")
	if err := m.WriteBuffer(BufferWrite{Dst: dst, DstOff: 0}, data); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestCommitWithNoWorkSucceeds(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Commit(); err != nil {
		t.Fatalf("Commit with no pending work: %v", err)
	}
}
