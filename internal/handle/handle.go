// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package handle provides a generation-checked, index-based
// reference suitable for breaking cyclic ownership between
// types that would otherwise need to hold pointers to each
// other (e.g. a mesh instance that must reach back into the
// buffer pool that allocated its vertex range, while that pool
// never needs to reach back into any individual instance).
//
// Rather than a weak_ptr, a Table[T] owns the values and hands
// out small (index, generation) pairs. Resolving a stale handle
// -- one whose slot has since been freed and reused -- returns
// ok == false instead of aliasing unrelated data.
package handle

// Handle is an opaque reference into a Table[T]. The zero
// Handle is never returned by Table.Insert and is treated as
// invalid by Table.Get/Table.Free.
type Handle struct {
	index int32
	gen   uint32
}

// Valid reports whether h could plausibly refer to a live
// entry. It does not check the entry actually exists; use
// Table.Get for that.
func (h Handle) Valid() bool { return h.gen != 0 }

type slot[T any] struct {
	val  T
	gen  uint32
	used bool
}

// Table is a generation-checked, freelist-backed store of
// values of type T.
type Table[T any] struct {
	slots     []slot[T]
	freeList  []int32
	nextGen   uint32
	liveCount int
}

// NewTable creates an empty Table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{nextGen: 1}
}

// Insert stores val and returns a Handle that resolves to it
// until the handle is freed with Free.
func (t *Table[T]) Insert(val T) Handle {
	gen := t.nextGen
	t.nextGen++
	var idx int32
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.slots[idx] = slot[T]{val: val, gen: gen, used: true}
	} else {
		idx = int32(len(t.slots))
		t.slots = append(t.slots, slot[T]{val: val, gen: gen, used: true})
	}
	t.liveCount++
	return Handle{index: idx, gen: gen}
}

// Get resolves h to its value. ok is false if h is invalid,
// has been freed, or refers to a slot since reused by another
// Insert.
func (t *Table[T]) Get(h Handle) (val T, ok bool) {
	if !h.Valid() || int(h.index) >= len(t.slots) {
		return val, false
	}
	s := &t.slots[h.index]
	if !s.used || s.gen != h.gen {
		return val, false
	}
	return s.val, true
}

// Set overwrites the value referred to by h in place, without
// changing its generation. It reports false under the same
// conditions as Get.
func (t *Table[T]) Set(h Handle, val T) bool {
	if !h.Valid() || int(h.index) >= len(t.slots) {
		return false
	}
	s := &t.slots[h.index]
	if !s.used || s.gen != h.gen {
		return false
	}
	s.val = val
	return true
}

// Free releases the slot referred to by h so it may be reused
// by a future Insert under a new generation. It reports false
// if h was already invalid or stale.
func (t *Table[T]) Free(h Handle) bool {
	if !h.Valid() || int(h.index) >= len(t.slots) {
		return false
	}
	s := &t.slots[h.index]
	if !s.used || s.gen != h.gen {
		return false
	}
	var zero T
	s.val = zero
	s.used = false
	t.freeList = append(t.freeList, h.index)
	t.liveCount--
	return true
}

// Len returns the number of live (non-freed) entries.
func (t *Table[T]) Len() int { return t.liveCount }
