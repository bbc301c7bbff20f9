// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package readback copies rendered images back from the GPU into
// host memory and encodes the result as a DDS file, for tooling
// and offline inspection of intermediate render targets.
//
// It is grounded on engine/staging.go's stagingBuffer (reserve/
// copyFromView/unstage), translated from that file's global
// singleton pool (the package-level staging channel populated in
// an init func) into an explicit Manager a caller constructs and
// owns, and on original_source/BasicRenderer/src/Managers/
// Singletons/ReadbackManager.cpp's SaveTextureToDDS/
// SaveCubemapToDDS (per-subresource copy footprints, deferred
// until the GPU work they depend on has completed, then written
// out through a DDS encoder).
package readback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/bitm"
	"github.com/vireoengine/forge/rctx"
)

// Use a large block size since images usually need large
// allocations; mirrors engine/staging.go's stagingBlock/stagingNBit.
const (
	block = 131072
	nbit  = 32
)

// ErrNotReady is the error for a Result whose bytes cannot be
// read yet. No function of this package returns it: Result.Bytes
// has no error result, so the caller must ensure the GPU work
// recorded by RequestCopy has completed before calling Bytes.
var ErrNotReady = errors.New("readback: result already released")

// Manager owns a single host-visible staging buffer that
// RequestCopy suballocates from, growing it on demand. Unlike
// engine/staging.go's package-level buffer pool, a Manager is an
// explicit value: callers that need concurrent readback streams
// (e.g., one per worker) create one Manager each.
type Manager struct {
	ctx *rctx.Context
	buf driver.Buffer
	bm  bitm.Bitm[uint32]
}

// NewManager creates an empty Manager. Its staging buffer grows
// lazily, the first time RequestCopy needs space.
func NewManager(ctx *rctx.Context) *Manager {
	return &Manager{ctx: ctx}
}

// Subresource identifies a single mip level (and, for array/cube
// images, a single layer) of a source image to copy into the
// staging buffer.
type Subresource struct {
	Layer  int
	Level  int
	Size   driver.Dim3D
}

// Result holds the staging-buffer regions a RequestCopy call
// reserved, in the same order as the Subresource slice it was
// given. Bytes must not be called before the command buffer
// passed to RequestCopy has finished executing on the GPU.
// Release returns the underlying space to the Manager once the
// caller is done reading it (typically right after encoding).
type Result struct {
	mgr    *Manager
	format driver.PixelFmt
	subs   []resultSub
	freed  bool
}

type resultSub struct {
	width, height int
	rowPitch      int64
	off           int64
	blocks        int
}

// Bytes returns sub i's tightly-packed pixel data (no row
// padding; RowPitch reports the stride used).
func (r *Result) Bytes(i int) []byte {
	s := r.subs[i]
	n := s.rowPitch * int64(s.height)
	return r.mgr.buf.Bytes()[s.off : s.off+n]
}

// RowPitch returns the byte stride between rows of sub i within
// the staging buffer.
func (r *Result) RowPitch(i int) int64 { return r.subs[i].rowPitch }

// Release returns every region r holds back to the Manager's
// free list. r must not be used afterwards.
func (r *Result) Release() {
	if r.freed {
		return
	}
	for _, s := range r.subs {
		ib := int(s.off / block)
		for i := 0; i < s.blocks; i++ {
			r.mgr.bm.Unset(ib + i)
		}
	}
	r.freed = true
}

// RequestCopy records, for each entry in subs, a layout
// transition from before to driver.LCopySrc followed by a
// CopyImgToBuf into newly reserved staging space, and returns a
// Result describing where each subresource landed. The caller is
// responsible for submitting cb and waiting for it to complete
// (via its GPU's Commit) before reading the Result's bytes.
func (mgr *Manager) RequestCopy(cb driver.CmdBuffer, img driver.Image, view driver.ImageView, before driver.Layout, format driver.PixelFmt, subs []Subresource) (*Result, error) {
	if len(subs) == 0 {
		return nil, errors.New("readback: RequestCopy: no subresources given")
	}

	res := &Result{mgr: mgr, format: format, subs: make([]resultSub, len(subs))}
	var trans []driver.Transition
	var copies []driver.BufImgCopy

	for i, s := range subs {
		rowPitch := int64(format.Size() * s.Size.Width)
		n := int(rowPitch) * s.Size.Height
		off, blocks, err := mgr.reserve(n)
		if err != nil {
			return nil, err
		}
		res.subs[i] = resultSub{
			width:    s.Size.Width,
			height:   s.Size.Height,
			rowPitch: rowPitch,
			off:      off,
			blocks:   blocks,
		}

		trans = append(trans, driver.Transition{
			Barrier: driver.Barrier{
				SyncBefore:   driver.SNone,
				SyncAfter:    driver.SCopy,
				AccessBefore: driver.ANone,
				AccessAfter:  driver.ACopyRead,
			},
			LayoutBefore: before,
			LayoutAfter:  driver.LCopySrc,
			IView:        view,
		})
		copies = append(copies, driver.BufImgCopy{
			Buf:    mgr.buf,
			BufOff: off,
			Stride: [2]int64{int64(s.Size.Width), int64(s.Size.Height)},
			Img:    img,
			ImgOff: driver.Off3D{},
			Layer:  s.Layer,
			Level:  s.Level,
			Size:   s.Size,
		})
	}

	cb.Transition(trans)
	for i := range copies {
		cb.CopyImgToBuf(&copies[i])
	}
	return res, nil
}

// reserve allocates a contiguous n-byte range of the staging
// buffer, growing it (in block*nbit-sized steps)
// when the free list cannot satisfy the request. It mirrors
// engine/staging.go's stagingBuffer.reserve, minus that type's
// deferred-commit retry loop: growth here always creates a fresh,
// larger buffer immediately rather than waiting on in-flight work,
// since a Manager has no notion of a pending command batch of its
// own to flush first.
func (mgr *Manager) reserve(n int) (off int64, blocks int, err error) {
	if n <= 0 {
		panic("readback: reserve: n <= 0")
	}
	blocks = (n + block - 1) / block
	idx, ok := mgr.bm.SearchRange(blocks)
	if !ok {
		grow := (blocks + nbit - 1) / nbit
		idx = mgr.bm.Len()
		mgr.bm.Grow(grow)
		newCap := int64(grow*nbit*block) + mgr.capacity()
		nbuf, err := mgr.ctx.GPU().NewBuffer(newCap, true, driver.UGeneric)
		if err != nil {
			return 0, 0, fmt.Errorf("readback: growing staging buffer: %w", err)
		}
		if mgr.buf != nil {
			copy(nbuf.Bytes(), mgr.buf.Bytes())
			mgr.buf.Destroy()
		}
		mgr.buf = nbuf
	}
	for i := 0; i < blocks; i++ {
		mgr.bm.Set(idx + i)
	}
	off = int64(idx) * block
	return
}

func (mgr *Manager) capacity() int64 {
	if mgr.buf == nil {
		return 0
	}
	return mgr.buf.Cap()
}

// Destroy releases the Manager's staging buffer. The Manager
// must not be used afterwards.
func (mgr *Manager) Destroy() {
	if mgr.buf != nil {
		mgr.buf.Destroy()
		mgr.buf = nil
	}
}

// ddsMagic is the four-byte file signature ("DDS ").
const ddsMagic = 0x20534444

// DDS_HEADER flags this package always sets: CAPS | HEIGHT | WIDTH
// | PIXELFORMAT. MIPMAPCOUNT is added when encoding more than one
// level.
const (
	ddsFlagCaps        = 0x1
	ddsFlagHeight      = 0x2
	ddsFlagWidth       = 0x4
	ddsFlagPixelFormat = 0x1000
	ddsFlagMipmapCount = 0x20000

	ddsPFFourCC = 0x4

	ddsCapsTexture  = 0x1000
	ddsCapsComplex  = 0x8
	ddsCapsMipmap   = 0x400000
	ddsCaps2Cubemap = 0x200
	// All six cubemap faces; DDS requires every face be present
	// once the cubemap flag is set.
	ddsCaps2CubemapAllFaces = 0xFC00

	ddsDimensionTexture2D = 3
	ddsMiscTextureCube    = 0x4
)

// dxgiFormat maps the subset of driver.PixelFmt this tree defines
// onto the DXGI_FORMAT values DirectXTex (and every other DDS
// reader) expects in a DX10 header.
func dxgiFormat(f driver.PixelFmt) (uint32, error) {
	switch f {
	case driver.RGBA8un:
		return 28, nil // DXGI_FORMAT_R8G8B8A8_UNORM
	case driver.RGBA8sRGB:
		return 29, nil // DXGI_FORMAT_R8G8B8A8_UNORM_SRGB
	case driver.RGBA8n:
		return 31, nil // DXGI_FORMAT_R8G8B8A8_SNORM
	case driver.BGRA8un:
		return 87, nil // DXGI_FORMAT_B8G8R8A8_UNORM
	case driver.BGRA8sRGB:
		return 91, nil // DXGI_FORMAT_B8G8R8A8_UNORM_SRGB
	case driver.RG8un:
		return 49, nil // DXGI_FORMAT_R8G8_UNORM
	case driver.RG8n:
		return 52, nil // DXGI_FORMAT_R8G8_SNORM
	case driver.R8un:
		return 61, nil // DXGI_FORMAT_R8_UNORM
	case driver.R8n:
		return 64, nil // DXGI_FORMAT_R8_SNORM
	case driver.RGBA16f:
		return 10, nil // DXGI_FORMAT_R16G16B16A16_FLOAT
	case driver.RG16f:
		return 34, nil // DXGI_FORMAT_R16G16_FLOAT
	case driver.R16f:
		return 54, nil // DXGI_FORMAT_R16_FLOAT
	case driver.RGBA32f:
		return 2, nil // DXGI_FORMAT_R32G32B32A32_FLOAT
	case driver.RG32f:
		return 16, nil // DXGI_FORMAT_R32G32_FLOAT
	case driver.R32f:
		return 41, nil // DXGI_FORMAT_R32_FLOAT
	case driver.D16un:
		return 55, nil // DXGI_FORMAT_D16_UNORM
	case driver.D32f:
		return 40, nil // DXGI_FORMAT_D32_FLOAT
	case driver.D24unS8ui:
		return 45, nil // DXGI_FORMAT_D24_UNORM_S8_UINT
	case driver.D32fS8ui:
		return 20, nil // DXGI_FORMAT_D32_FLOAT_S8X24_UINT
	default:
		return 0, fmt.Errorf("readback: no DDS mapping for pixel format %d", f)
	}
}

type ddsHeader struct {
	Size            uint32
	Flags           uint32
	Height          uint32
	Width           uint32
	PitchOrLinSize  uint32
	Depth           uint32
	MipMapCount     uint32
	Reserved1       [11]uint32
	PFSize          uint32
	PFFlags         uint32
	PFFourCC        uint32
	PFRGBBitCount   uint32
	PFRBitMask      uint32
	PFGBitMask      uint32
	PFBBitMask      uint32
	PFABitMask      uint32
	Caps            uint32
	Caps2           uint32
	Caps3           uint32
	Caps4           uint32
	Reserved2       uint32
}

type ddsHeaderDXT10 struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

// EncodeTexture2D writes a single 2D texture (one array slice,
// one or more mip levels) to DDS format, in the teacher's
// SaveTextureToDDS shape. levels[i] must be the sub index within
// r matching mip level i.
func EncodeTexture2D(r *Result, format driver.PixelFmt, levels []int) ([]byte, error) {
	if len(levels) == 0 {
		return nil, errors.New("readback: EncodeTexture2D: no mip levels given")
	}
	dxgi, err := dxgiFormat(format)
	if err != nil {
		return nil, err
	}
	base := r.subs[levels[0]]

	hdr := ddsHeader{
		Size:           124,
		Flags:          ddsFlagCaps | ddsFlagHeight | ddsFlagWidth | ddsFlagPixelFormat,
		Height:         uint32(base.height),
		Width:          uint32(base.width),
		PitchOrLinSize: uint32(base.rowPitch),
		MipMapCount:    uint32(len(levels)),
		PFSize:         32,
		PFFlags:        ddsPFFourCC,
		PFFourCC:       fourCC("DX10"),
		Caps:           ddsCapsTexture,
	}
	if len(levels) > 1 {
		hdr.Flags |= ddsFlagMipmapCount
		hdr.Caps |= ddsCapsComplex | ddsCapsMipmap
	}
	ext := ddsHeaderDXT10{
		DXGIFormat:        dxgi,
		ResourceDimension: ddsDimensionTexture2D,
		ArraySize:         1,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(ddsMagic))
	binary.Write(&buf, binary.LittleEndian, &hdr)
	binary.Write(&buf, binary.LittleEndian, &ext)
	for _, lvl := range levels {
		buf.Write(r.Bytes(lvl))
	}
	return buf.Bytes(), nil
}

// EncodeCubemap writes a six-face cubemap (one mip level) to DDS
// format, in the teacher's SaveCubemapToDDS shape. faces must
// contain exactly six sub indices within r, ordered +X,-X,+Y,-Y,
// +Z,-Z (the order driver.Image.NewView's cube views use).
func EncodeCubemap(r *Result, format driver.PixelFmt, faces []int) ([]byte, error) {
	if len(faces) != 6 {
		return nil, fmt.Errorf("readback: EncodeCubemap: got %d faces, want 6", len(faces))
	}
	dxgi, err := dxgiFormat(format)
	if err != nil {
		return nil, err
	}
	base := r.subs[faces[0]]

	hdr := ddsHeader{
		Size:           124,
		Flags:          ddsFlagCaps | ddsFlagHeight | ddsFlagWidth | ddsFlagPixelFormat,
		Height:         uint32(base.height),
		Width:          uint32(base.width),
		PitchOrLinSize: uint32(base.rowPitch),
		MipMapCount:    1,
		PFSize:         32,
		PFFlags:        ddsPFFourCC,
		PFFourCC:       fourCC("DX10"),
		Caps:           ddsCapsTexture | ddsCapsComplex,
		Caps2:          ddsCaps2Cubemap | ddsCaps2CubemapAllFaces,
	}
	ext := ddsHeaderDXT10{
		DXGIFormat:        dxgi,
		ResourceDimension: ddsDimensionTexture2D,
		MiscFlag:          ddsMiscTextureCube,
		ArraySize:         1,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(ddsMagic))
	binary.Write(&buf, binary.LittleEndian, &hdr)
	binary.Write(&buf, binary.LittleEndian, &ext)
	for _, f := range faces {
		buf.Write(r.Bytes(f))
	}
	return buf.Bytes(), nil
}

func fourCC(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}
