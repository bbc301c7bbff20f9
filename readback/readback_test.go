// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package readback

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
	return NewManager(ctx), ctx
}

func TestRequestCopyGrowsAndReserves(t *testing.T) {
	mgr, ctx := newTestManager(t)
	img, err := ctx.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4, Depth: 1}, 1, 1, 1, driver.UGeneric)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	cb, err := ctx.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("NewCmdBuffer: %v", err)
	}

	subs := []Subresource{{Layer: 0, Level: 0, Size: driver.Dim3D{Width: 4, Height: 4, Depth: 1}}}
	res, err := mgr.RequestCopy(cb, img, view, driver.LShaderRead, driver.RGBA8un, subs)
	if err != nil {
		t.Fatalf("RequestCopy: %v", err)
	}
	b := res.Bytes(0)
	if len(b) != 4*4*4 {
		t.Fatalf("Bytes: got %d bytes, want %d", len(b), 4*4*4)
	}
	res.Release()
}

func TestRequestCopyNoSubresourcesErrors(t *testing.T) {
	mgr, ctx := newTestManager(t)
	img, _ := ctx.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 2, Height: 2, Depth: 1}, 1, 1, 1, driver.UGeneric)
	view, _ := img.NewView(driver.IView2D, 0, 1, 0, 1)
	cb, _ := ctx.GPU().NewCmdBuffer()
	if _, err := mgr.RequestCopy(cb, img, view, driver.LShaderRead, driver.RGBA8un, nil); err == nil {
		t.Fatal("RequestCopy: expected error for empty subresource list")
	}
}

func TestEncodeTexture2D(t *testing.T) {
	mgr, ctx := newTestManager(t)
	img, _ := ctx.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 2, Height: 2, Depth: 1}, 1, 1, 1, driver.UGeneric)
	view, _ := img.NewView(driver.IView2D, 0, 1, 0, 1)
	cb, _ := ctx.GPU().NewCmdBuffer()

	subs := []Subresource{{Size: driver.Dim3D{Width: 2, Height: 2, Depth: 1}}}
	res, err := mgr.RequestCopy(cb, img, view, driver.LShaderRead, driver.RGBA8un, subs)
	if err != nil {
		t.Fatalf("RequestCopy: %v", err)
	}

	data, err := EncodeTexture2D(res, driver.RGBA8un, []int{0})
	if err != nil {
		t.Fatalf("EncodeTexture2D: %v", err)
	}
	if len(data) < 4+124+20 {
		t.Fatalf("EncodeTexture2D: output too small: %d bytes", len(data))
	}
	if data[0] != 'D' || data[1] != 'D' || data[2] != 'S' || data[3] != ' ' {
		t.Fatalf("EncodeTexture2D: missing DDS magic, got %q", data[:4])
	}
}

func TestEncodeCubemapRequiresSixFaces(t *testing.T) {
	mgr, ctx := newTestManager(t)
	img, _ := ctx.GPU().NewImage(driver.RGBA8un, driver.Dim3D{Width: 2, Height: 2, Depth: 1}, 6, 1, 1, driver.UGeneric)
	view, _ := img.NewView(driver.IViewCube, 0, 6, 0, 1)
	cb, _ := ctx.GPU().NewCmdBuffer()

	subs := []Subresource{{Size: driver.Dim3D{Width: 2, Height: 2, Depth: 1}}}
	res, err := mgr.RequestCopy(cb, img, view, driver.LShaderRead, driver.RGBA8un, subs)
	if err != nil {
		t.Fatalf("RequestCopy: %v", err)
	}
	if _, err := EncodeCubemap(res, driver.RGBA8un, []int{0}); err == nil {
		t.Fatal("EncodeCubemap: expected error for fewer than six faces")
	}
}
