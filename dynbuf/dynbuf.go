// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package dynbuf implements a dynamically growable, block
// suballocated GPU buffer pool. It generalizes the fixed-format
// vertex/index span allocator used elsewhere in the renderer
// into a pool that can back any element size: mesh vertex/index
// data, meshlet arrays, per-instance constant buffers, or the
// UAV-counter-backed append buffers consumed by indirect draws.
//
// Allocations are tracked in block granularity using a
// bitm.Bitm free list, same as the mesh vertex/index storage
// this package generalizes. Freed ranges are returned to the
// free list for reuse by later allocations rather than
// compacted, trading fragmentation for O(1) frees.
package dynbuf

import (
	"fmt"
	"sync"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/rctx"
)

// BlockSize is the granularity, in bytes, of every allocation.
// It matches the alignment the driver package requires for
// buffer descriptor ranges.
const BlockSize = 256

// View identifies a live allocation within a Pool.
type View struct {
	Offset int64 // byte offset into Pool.Buffer
	Size   int64 // requested byte length (<= the block-rounded span)
	blocks span
}

// ElementOffset returns the element index of the view assuming
// a pool of fixed-size elements, for embedding into a shader
// constant buffer (e.g. PerMeshLayout's pool offsets).
func (v View) ElementOffset(elemSize int64) int64 { return v.Offset / elemSize }

type span struct{ start, end int }

// Pool is a dynamically growable suballocated buffer. A single
// Pool backs many logical arrays simultaneously (e.g. the
// vertex pool shared by every mesh of a given vertex layout).
type Pool struct {
	mu      sync.Mutex
	ctx     *rctx.Context
	usage   driver.Usage
	visible bool

	buf     driver.Buffer
	spanMap bitm.Bitm[uint32]

	// onGrow is called whenever the pool must be enlarged. It
	// receives the old and new buffer so the caller (usually
	// the upload manager) can schedule a GPU-side copy instead
	// of the synchronous host copy used when both buffers are
	// host-visible.
	onGrow func(old, new driver.Buffer)
}

// New creates an empty Pool. initialBlocks is the number of
// BlockSize-sized blocks to reserve up front.
func New(ctx *rctx.Context, usage driver.Usage, visible bool, initialBlocks int) (*Pool, error) {
	p := &Pool{ctx: ctx, usage: usage, visible: visible}
	if initialBlocks > 0 {
		if err := p.growBlocks(initialBlocks); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// OnGrow registers a callback invoked when the pool reallocates
// to a larger buffer, receiving the old and new driver.Buffer.
func (p *Pool) OnGrow(fn func(old, new driver.Buffer)) { p.onGrow = fn }

// Buffer returns the pool's current backing buffer. The
// returned value may become stale after a call to Alloc that
// triggers growth; callers that cache it must re-fetch after
// every Alloc.
func (p *Pool) Buffer() driver.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf
}

func (p *Pool) growBlocks(nblocks int) error {
	const spanMapNBit = 32
	nplus := (nblocks + spanMapNBit - 1) / spanMapNBit
	newCap := int64(p.spanMap.Len()+nplus*spanMapNBit) * BlockSize
	buf, err := p.ctx.GPU().NewBuffer(newCap, p.visible, p.usage)
	if err != nil {
		return err
	}
	old := p.buf
	if old != nil && p.visible && buf.Visible() {
		copy(buf.Bytes(), old.Bytes())
	}
	p.buf = buf
	p.spanMap.Grow(nplus)
	if p.onGrow != nil {
		p.onGrow(old, buf)
	}
	if old != nil {
		old.Destroy()
	}
	return nil
}

// Alloc reserves a contiguous range of at least size bytes and
// returns a View over it. The pool grows automatically if no
// existing range is large enough.
func (p *Pool) Alloc(size int64) (View, error) {
	if size <= 0 {
		return View{}, fmt.Errorf("dynbuf: invalid allocation size %d", size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	nb := int((size + BlockSize - 1) / BlockSize)
	is, ok := p.spanMap.SearchRange(nb)
	if !ok {
		if err := p.growBlocks(nb); err != nil {
			return View{}, err
		}
		is, ok = p.spanMap.SearchRange(nb)
		if !ok {
			return View{}, fmt.Errorf("dynbuf: allocation failed after growth")
		}
	}
	for i := 0; i < nb; i++ {
		p.spanMap.Set(is + i)
	}
	return View{
		Offset: int64(is) * BlockSize,
		Size:   size,
		blocks: span{is, is + nb},
	}, nil
}

// Free releases v's range, making it available for reuse by a
// future Alloc call. It does not shrink the backing buffer.
func (p *Pool) Free(v View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := v.blocks.start; i < v.blocks.end; i++ {
		p.spanMap.Unset(i)
	}
}

// Write copies data into the pool at v's offset. The pool's
// buffer must be host-visible; non-visible pools are written
// through upload.Manager instead.
func (p *Pool) Write(v View, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.buf.Visible() {
		return fmt.Errorf("dynbuf: pool is not host-visible, use upload.Manager")
	}
	if int64(len(data)) > v.Size {
		return fmt.Errorf("dynbuf: write of %d bytes exceeds view size %d", len(data), v.Size)
	}
	copy(p.buf.Bytes()[v.Offset:], data)
	return nil
}

// Destroy releases the pool's backing buffer.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf != nil {
		p.buf.Destroy()
		p.buf = nil
	}
}
