// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package resource implements bindless GPU resource allocation
// and the current-state bookkeeping the render graph needs to
// compute transition barriers between passes.
//
// A Manager owns a single driver.BindlessHeap covering every
// driver.DescType it is configured for, plus a bitm.Bitm[uint64]
// free list per type tracking which slots are in use. Buffers, images and
// samplers created through the Manager are registered in the
// heap immediately and carry their driver.DescriptorSlot for
// the lifetime of the resource.
package resource

import (
	"errors"
	"fmt"

	"github.com/vireoengine/forge/deletion"
	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/rctx"
)

// ErrHeapExhausted means that every slot reserved for a given
// descriptor type is in use. It is a *FatalError: once a
// heap can no longer grow, the renderer has outgrown its
// configuration and cannot safely continue.
var ErrHeapExhausted error = newFatalErr("alloc", errors.New("bindless heap exhausted"))

// FatalError marks a condition the renderer cannot recover
// from within the current frame: the caller must tear down
// and reinitialize the affected subsystem (or the device).
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("resource: fatal: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func newFatalErr(op string, err error) *FatalError { return &FatalError{Op: op, Err: err} }

// State records the last known synchronization scope, access
// scope and image layout of a resource, so that a subsequent
// pass referencing the same resource under a different usage
// can compute the transition barrier against this value.
type State struct {
	Sync   driver.Sync
	Access driver.Access
	Layout driver.Layout // meaningless for buffers
}

// Buffer is a GPU buffer registered in the bindless heap.
type Buffer struct {
	Res  driver.Buffer
	Slot driver.DescriptorSlot
	Typ  driver.DescType // DBuffer or DConstant
	Size int64

	state State
}

// State returns the buffer's last recorded resource state.
func (b *Buffer) State() State { return b.state }

// SetState updates the buffer's recorded resource state. The
// render graph calls this after recording a barrier so that
// the next pass sees the post-barrier state.
func (b *Buffer) SetState(s State) { b.state = s }

// Texture is a sampled or storage image registered in the
// bindless heap, along with the view used to address it.
type Texture struct {
	Res   driver.Image
	View  driver.ImageView
	Slot  driver.DescriptorSlot
	Typ   driver.DescType // DImage or DTexture
	Size  driver.Dim3D
	Layer int
	Level int

	state State
}

// State returns the texture's last recorded resource state.
func (t *Texture) State() State { return t.state }

// SetState updates the texture's recorded resource state.
func (t *Texture) SetState(s State) { t.state = s }

// Sampler is a sampler registered in the bindless heap.
type Sampler struct {
	Res  driver.Sampler
	Slot driver.DescriptorSlot
}

// heapConfig bounds how many slots of each DescType a Manager
// reserves up front.
type heapConfig struct {
	typ bitm.Bitm[uint64]
	cap int
}

// Manager owns the bindless heap and performs all resource
// creation for the renderer.
type Manager struct {
	ctx  *rctx.Context
	heap driver.BindlessHeap

	slots map[driver.DescType]*heapConfig

	// samplerCache deduplicates samplers by descriptor value,
	// since many materials request identical sampler state.
	samplerCache map[driver.Sampling]*Sampler

	// del defers slot/resource release until it is safe to
	// assume no in-flight frame still references them. It is
	// advanced once per frame by the caller via Advance.
	del *deletion.Manager
}

// Config specifies the bindless heap capacity reserved for
// each descriptor type.
type Config struct {
	MaxBuffer   int
	MaxConstant int
	MaxImage    int
	MaxTexture  int
	MaxSampler  int
}

// New creates a Manager and its backing bindless heap.
// numFrames is the number of frames the renderer keeps in
// flight; it bounds how long a freed slot's reuse is deferred
// (see FreeBuffer/FreeTexture and Advance).
func New(ctx *rctx.Context, cfg Config, numFrames int) (*Manager, error) {
	caps := map[driver.DescType]int{
		driver.DBuffer:   cfg.MaxBuffer,
		driver.DConstant: cfg.MaxConstant,
		driver.DImage:    cfg.MaxImage,
		driver.DTexture:  cfg.MaxTexture,
		driver.DSampler:  cfg.MaxSampler,
	}
	var types []driver.DescType
	max := 0
	for typ, n := range caps {
		if n <= 0 {
			continue
		}
		types = append(types, typ)
		if n > max {
			max = n
		}
	}
	heap, err := ctx.GPU().NewBindlessHeap(types, max)
	if err != nil {
		return nil, newFatalErr("NewBindlessHeap", err)
	}
	m := &Manager{
		ctx:          ctx,
		heap:         heap,
		slots:        make(map[driver.DescType]*heapConfig, len(types)),
		samplerCache: make(map[driver.Sampling]*Sampler),
		del:          deletion.New(numFrames),
	}
	for _, typ := range types {
		hc := &heapConfig{cap: caps[typ]}
		hc.typ.Grow((caps[typ] + 63) / 64)
		m.slots[typ] = hc
	}
	return m, nil
}

func (m *Manager) alloc(typ driver.DescType) (int, error) {
	hc, ok := m.slots[typ]
	if !ok {
		return 0, fmt.Errorf("resource: descriptor type %v not configured", typ)
	}
	idx, ok := hc.typ.Search()
	if !ok || idx >= hc.cap {
		return 0, ErrHeapExhausted
	}
	hc.typ.Set(idx)
	return idx, nil
}

func (m *Manager) free(typ driver.DescType, slot driver.DescriptorSlot) {
	if hc, ok := m.slots[typ]; ok {
		hc.typ.Unset(int(slot))
	}
}

// NewBuffer creates a buffer and registers it in the bindless
// heap under the given descriptor type (DBuffer or DConstant).
func (m *Manager) NewBuffer(size int64, visible bool, usg driver.Usage, typ driver.DescType) (*Buffer, error) {
	idx, err := m.alloc(typ)
	if err != nil {
		return nil, err
	}
	buf, err := m.ctx.GPU().NewBuffer(size, visible, usg)
	if err != nil {
		m.free(typ, driver.DescriptorSlot(idx))
		return nil, err
	}
	slot, err := m.heap.SetBuffer(typ, buf, 0, size, driver.DescriptorSlot(idx))
	if err != nil {
		buf.Destroy()
		m.free(typ, driver.DescriptorSlot(idx))
		return nil, err
	}
	return &Buffer{Res: buf, Slot: slot, Typ: typ, Size: size}, nil
}

// NewTexture creates an image, a default view over its full
// extent and registers the view in the bindless heap.
func (m *Manager) NewTexture(pf driver.PixelFmt, size driver.Dim3D, layers, levels int, usg driver.Usage, typ driver.DescType, vt driver.ViewType) (*Texture, error) {
	idx, err := m.alloc(typ)
	if err != nil {
		return nil, err
	}
	img, err := m.ctx.GPU().NewImage(pf, size, layers, levels, 1, usg)
	if err != nil {
		m.free(typ, driver.DescriptorSlot(idx))
		return nil, err
	}
	view, err := img.NewView(vt, 0, layers, 0, levels)
	if err != nil {
		img.Destroy()
		m.free(typ, driver.DescriptorSlot(idx))
		return nil, err
	}
	slot, err := m.heap.SetImage(typ, view, driver.DescriptorSlot(idx))
	if err != nil {
		img.Destroy()
		m.free(typ, driver.DescriptorSlot(idx))
		return nil, err
	}
	return &Texture{Res: img, View: view, Slot: slot, Typ: typ, Size: size, Layer: layers, Level: levels}, nil
}

// NewSampler creates a sampler, reusing a previously created
// one if spln matches an existing entry exactly.
func (m *Manager) NewSampler(spln driver.Sampling) (*Sampler, error) {
	if s, ok := m.samplerCache[spln]; ok {
		return s, nil
	}
	idx, err := m.alloc(driver.DSampler)
	if err != nil {
		return nil, err
	}
	splr, err := m.ctx.GPU().NewSampler(&spln)
	if err != nil {
		m.free(driver.DSampler, driver.DescriptorSlot(idx))
		return nil, err
	}
	slot, err := m.heap.SetSampler(splr, driver.DescriptorSlot(idx))
	if err != nil {
		splr.Destroy()
		m.free(driver.DSampler, driver.DescriptorSlot(idx))
		return nil, err
	}
	s := &Sampler{Res: splr, Slot: slot}
	m.samplerCache[spln] = s
	return s, nil
}

// FreeBuffer defers destruction of buf and release of its
// bindless slot until Advance confirms no in-flight frame can
// still reference it. The slot is not reused before then.
func (m *Manager) FreeBuffer(buf *Buffer) {
	typ, slot, res := buf.Typ, buf.Slot, buf.Res
	m.del.Defer(deletion.Func(func() {
		m.heap.Unset(typ, slot)
		m.free(typ, slot)
		res.Destroy()
	}))
}

// FreeTexture defers destruction of tex and release of its
// bindless slot until Advance confirms no in-flight frame can
// still reference it. The slot is not reused before then.
func (m *Manager) FreeTexture(tex *Texture) {
	typ, slot, view, res := tex.Typ, tex.Slot, tex.View, tex.Res
	m.del.Defer(deletion.Func(func() {
		m.heap.Unset(typ, slot)
		m.free(typ, slot)
		view.Destroy()
		res.Destroy()
	}))
}

// Advance marks the start of a new frame, actually releasing
// (and making reusable) every slot freed numFrames frames ago.
// The engine calls this once per frame, before recording any
// pass that might allocate new resources.
func (m *Manager) Advance() { m.del.Advance() }

// Heap returns the underlying bindless heap, for binding once
// per frame by the engine before any passes execute.
func (m *Manager) Heap() driver.BindlessHeap { return m.heap }

// Destroy flushes every deferred release and then destroys the
// bindless heap and every cached sampler. It must only be
// called once the GPU is known to be idle.
func (m *Manager) Destroy() {
	m.del.Flush()
	for _, s := range m.samplerCache {
		s.Res.Destroy()
	}
	m.heap.Destroy()
}
