// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shaderlayout

import (
	"testing"
	"time"
	"unsafe"

	"github.com/vireoengine/forge/linear"
)

func TestRootConstantsBytes(t *testing.T) {
	var r RootConstants
	r.PerObject = 7
	r.ViewBuffer = 3
	b := r.Bytes()
	if len(b) != Size {
		t.Fatalf("Bytes: got len %d, want %d", len(b), Size)
	}
}

func TestFrameLayout(t *testing.T) {
	var l FrameLayout
	l.SetTime(2500 * time.Millisecond)
	if l[0] != 2.5 {
		t.Errorf("SetTime: got %v, want 2.5", l[0])
	}
}

func TestViewLayout(t *testing.T) {
	var l ViewLayout
	m := linear.M4{}
	l.SetVP(&m)
	l.SetPlanes(0.1, 1000)
	if l[51] != 0.1 || l[52] != 1000 {
		t.Errorf("SetPlanes: got %v,%v", l[51], l[52])
	}
}

func TestLightLayoutShadowView(t *testing.T) {
	var l LightLayout
	l.SetShadowView(NoShadowView)
	if idx := l[15]; idx == 0 {
		t.Error("SetShadowView: sentinel not distinguishable from zero")
	}
}

func TestMaterialLayoutSlots(t *testing.T) {
	var l MaterialLayout
	l.SetSlots(SlotBaseColor, 5, 1)
	gotTex := *(*int32)(unsafe.Pointer(&l[SlotBaseColor]))
	gotSampler := *(*int32)(unsafe.Pointer(&l[SlotBaseColor+1]))
	if gotTex != 5 || gotSampler != 1 {
		t.Errorf("SetSlots: got %d,%d, want 5,1", gotTex, gotSampler)
	}
}
