// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package upload implements host-to-device data transfer
// through a pool of staging buffers, generalizing the
// texture-copy ring buffer used elsewhere in the renderer to
// cover both buffer and image destinations.
//
// One staging buffer is kept per GOMAXPROCS so that callers on
// different goroutines (e.g. mesh loading, material streaming)
// rarely block each other. Commit records every pending copy
// into a single batch of command buffers and submits them
// together, waiting for completion through golang.org/x/sync's
// errgroup so that a failure on any command buffer is reported
// without leaking the others.
package upload

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/rctx"
)

// Block size for staging allocations. Large enough that a
// typical texture mip fits in one bitmap word's worth of
// blocks.
const (
	blockSize = 131072
	nbit      = 32
)

// BufferWrite describes a pending copy from staged CPU data
// into a destination driver.Buffer.
type BufferWrite struct {
	Dst    driver.Buffer
	DstOff int64
}

// ImageWrite describes a pending copy from staged CPU data
// into a single layer/level of a destination driver.Image.
type ImageWrite struct {
	Dst    driver.Image
	Layer  int
	Level  int
	Size   driver.Dim3D
	Format driver.PixelFmt
}

type pending struct {
	buf *BufferWrite
	img *ImageWrite
}

type stagingBuffer struct {
	mu   sync.Mutex
	cb   driver.CmdBuffer
	buf  driver.Buffer
	bm   bitm.Bitm[uint32]
	pend []pending
}

// Manager schedules staged copies to the GPU.
type Manager struct {
	ctx     *rctx.Context
	staging chan *stagingBuffer
	n       int
}

// New creates a Manager with one staging buffer per logical
// CPU, each with an initial capacity of blockSize*32 bytes.
func New(ctx *rctx.Context) (*Manager, error) {
	n := runtime.GOMAXPROCS(-1)
	m := &Manager{ctx: ctx, staging: make(chan *stagingBuffer, n), n: n}
	for i := 0; i < n; i++ {
		s, err := m.newStaging(blockSize * nbit)
		if err != nil {
			return nil, err
		}
		m.staging <- s
	}
	return m, nil
}

func (m *Manager) newStaging(size int) (*stagingBuffer, error) {
	cb, err := m.ctx.GPU().NewCmdBuffer()
	if err != nil {
		return nil, err
	}
	buf, err := m.ctx.GPU().NewBuffer(int64(size), true, 0)
	if err != nil {
		cb.Destroy()
		return nil, err
	}
	s := &stagingBuffer{cb: cb, buf: buf}
	s.bm.Grow(size / blockSize / nbit)
	return s, nil
}

// WriteBuffer stages data and records a copy into w.Dst at
// w.DstOff. The copy is not visible to the GPU until Commit is
// called.
func (m *Manager) WriteBuffer(w BufferWrite, data []byte) error {
	s := <-m.staging
	defer func() { m.staging <- s }()
	return s.writeBuffer(m.ctx, w, data)
}

// WriteImage stages data and records a copy into a single
// layer/level of w.Dst. The copy is not visible to the GPU
// until Commit is called.
func (m *Manager) WriteImage(w ImageWrite, data []byte) error {
	s := <-m.staging
	defer func() { m.staging <- s }()
	return s.writeImage(m.ctx, w, data)
}

func (s *stagingBuffer) reserve(ctx *rctx.Context, n int) (int64, error) {
	nb := (n + blockSize - 1) / blockSize
	idx, ok := s.bm.SearchRange(nb)
	if !ok {
		nwords := (nb + nbit - 1) / nbit
		newCap := int64(s.bm.Len()+nwords*nbit) * blockSize
		buf, err := ctx.GPU().NewBuffer(newCap, true, 0)
		if err != nil {
			return 0, err
		}
		if s.buf != nil {
			s.buf.Destroy()
		}
		s.buf = buf
		idx = s.bm.Grow(nwords)
	}
	for i := 0; i < nb; i++ {
		s.bm.Set(idx + i)
	}
	return int64(idx) * blockSize, nil
}

func (s *stagingBuffer) beginIfNeeded() error {
	if len(s.pend) == 0 {
		return s.cb.Begin()
	}
	return nil
}

func (s *stagingBuffer) writeBuffer(ctx *rctx.Context, w BufferWrite, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, err := s.reserve(ctx, len(data))
	if err != nil {
		return err
	}
	copy(s.buf.Bytes()[off:], data)
	if err := s.beginIfNeeded(); err != nil {
		return err
	}
	s.cb.CopyBuffer(&driver.BufferCopy{
		From:    s.buf,
		FromOff: off,
		To:      w.Dst,
		ToOff:   w.DstOff,
		Size:    int64(len(data)),
	})
	s.pend = append(s.pend, pending{buf: &w})
	return nil
}

func (s *stagingBuffer) writeImage(ctx *rctx.Context, w ImageWrite, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, err := s.reserve(ctx, len(data))
	if err != nil {
		return err
	}
	copy(s.buf.Bytes()[off:], data)
	if err := s.beginIfNeeded(); err != nil {
		return err
	}
	s.cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore: driver.SNone, SyncAfter: driver.SCopy,
			AccessBefore: driver.ANone, AccessAfter: driver.ACopyWrite,
		},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCopyDst,
	}})
	s.cb.CopyBufToImg(&driver.BufImgCopy{
		Buf: s.buf, BufOff: off,
		Stride: [2]int64{int64(w.Size.Width), int64(w.Size.Height)},
		Img:    w.Dst,
		Layer:  w.Layer,
		Level:  w.Level,
		Size:   w.Size,
	})
	s.pend = append(s.pend, pending{img: &w})
	return nil
}

func (s *stagingBuffer) commit(ctx *rctx.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pend) == 0 {
		return nil
	}
	if err := s.cb.End(); err != nil {
		s.cb.Reset()
		s.bm.Clear()
		s.pend = s.pend[:0]
		return err
	}
	ch := make(chan error, 1)
	ctx.GPU().Commit([]driver.CmdBuffer{s.cb}, ch)
	err := <-ch
	s.bm.Clear()
	s.pend = s.pend[:0]
	return err
}

// ErrNoWork reports that there was nothing pending across any
// staging buffer. Commit does not return it: a Commit with
// nothing pending returns nil.
var ErrNoWork = errors.New("upload: no pending copies")

// Commit submits every pending copy across all staging buffers
// concurrently, using an errgroup, and waits for all of them.
// It returns the first error reported, if any; later errors
// are not returned.
func (m *Manager) Commit() error {
	var g errgroup.Group
	all := make([]*stagingBuffer, 0, m.n)
	for i := 0; i < m.n; i++ {
		all = append(all, <-m.staging)
	}
	defer func() {
		for _, s := range all {
			m.staging <- s
		}
	}()
	for _, s := range all {
		s := s
		g.Go(func() error { return s.commit(m.ctx) })
	}
	return g.Wait()
}

// CommitContext is equivalent to Commit but aborts waiting (not
// the in-flight GPU work itself) when ctx is canceled.
func (m *Manager) CommitContext(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- m.Commit() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
