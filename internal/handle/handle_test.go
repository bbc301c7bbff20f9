// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package handle

import "testing"

func TestInsertGet(t *testing.T) {
	tb := NewTable[string]()
	h := tb.Insert("a")
	v, ok := tb.Get(h)
	if !ok || v != "a" {
		t.Fatalf("Get: got (%q, %v), want (\"a\", true)", v, ok)
	}
}

func TestFreeInvalidatesHandle(t *testing.T) {
	tb := NewTable[int]()
	h := tb.Insert(1)
	if !tb.Free(h) {
		t.Fatal("Free: expected success")
	}
	if _, ok := tb.Get(h); ok {
		t.Error("Get: expected stale handle to fail")
	}
}

func TestReuseDoesNotAliasStaleHandle(t *testing.T) {
	tb := NewTable[int]()
	h1 := tb.Insert(1)
	tb.Free(h1)
	h2 := tb.Insert(2)
	if h1 == h2 {
		t.Fatal("reused slot produced identical handle (same generation)")
	}
	if v, ok := tb.Get(h1); ok {
		t.Errorf("stale handle resolved to %v after slot reuse", v)
	}
	if v, ok := tb.Get(h2); !ok || v != 2 {
		t.Errorf("Get(h2): got (%v, %v), want (2, true)", v, ok)
	}
}

func TestLen(t *testing.T) {
	tb := NewTable[int]()
	h1 := tb.Insert(1)
	tb.Insert(2)
	if tb.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", tb.Len())
	}
	tb.Free(h1)
	if tb.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", tb.Len())
	}
}
