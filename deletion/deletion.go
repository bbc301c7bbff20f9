// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package deletion defers the release of GPU resources and
// bindless slots until it is safe to assume that no in-flight
// frame still references them.
//
// A resource freed mid-frame (a mesh unloaded, a material
// dropped, a shadow map resized) cannot be destroyed
// immediately: up to MaxFrame-1 other frames may still be
// executing command buffers that reference its descriptor
// slot. The Manager buckets each pending release by the frame
// index it was requested in and only executes it once that
// bucket comes back around after a full frame-in-flight cycle.
package deletion

// Releaser is destroyed once a deferred entry's frame comes
// back around. Buffer/Texture/Sampler wrappers, and anything
// else with a Destroy method, satisfy it directly.
type Releaser interface {
	Destroy()
}

// SlotFreer additionally releases a bindless slot once its
// deferred entry matures; the Manager calls Free after
// Destroy.
type SlotFreer interface {
	Releaser
	Free()
}

type funcReleaser func()

func (f funcReleaser) Destroy() { f() }

// Func wraps an arbitrary cleanup function as a Releaser, for
// callers that only need to run side effects (e.g. releasing a
// slot in a free list that isn't itself a Releaser).
func Func(fn func()) Releaser { return funcReleaser(fn) }

// Manager defers resource destruction across a fixed number of
// frames in flight.
type Manager struct {
	numFrames int
	buckets   [][]Releaser
	cur       int
}

// New creates a Manager for a renderer with the given number
// of frames in flight (commonly 2 or 3).
func New(numFrames int) *Manager {
	if numFrames < 1 {
		numFrames = 1
	}
	return &Manager{numFrames: numFrames, buckets: make([][]Releaser, numFrames)}
}

// Defer schedules r for destruction once the current frame
// index comes back around after a full in-flight cycle.
func (m *Manager) Defer(r Releaser) {
	m.buckets[m.cur] = append(m.buckets[m.cur], r)
}

// Advance marks the start of a new frame, destroying every
// Releaser deferred numFrames frames ago (i.e. the bucket this
// frame index is about to reuse) and preparing that bucket for
// new entries.
func (m *Manager) Advance() {
	m.cur = (m.cur + 1) % m.numFrames
	pending := m.buckets[m.cur]
	for _, r := range pending {
		r.Destroy()
	}
	m.buckets[m.cur] = pending[:0]
}

// Flush immediately destroys every deferred Releaser across
// every bucket, regardless of frame ownership. It must only be
// called once the GPU is known to be idle (e.g. at shutdown).
func (m *Manager) Flush() {
	for i, b := range m.buckets {
		for _, r := range b {
			r.Destroy()
		}
		m.buckets[i] = b[:0]
	}
}

// Pending returns the number of Releasers not yet destroyed,
// across every bucket. Useful for tests and diagnostics.
func (m *Manager) Pending() int {
	n := 0
	for _, b := range m.buckets {
		n += len(b)
	}
	return n
}
