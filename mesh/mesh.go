// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package mesh implements the mesh data representation used by the
// renderer: a meshBuffer-backed store of primitives (mesh.go,
// storage.go), plus the meshlet/cluster-LOD grouping a cluster
// rasterization pass dispatches against.
package mesh

import (
	"errors"
	"io"
	"math"

	"github.com/vireoengine/forge/driver"
)

const prefix = "mesh: "

// Semantic specifies the intended use of a primitive's attribute.
type Semantic int

// Semantics.
const (
	Position Semantic = 1 << iota
	Normal
	Tangent
	TexCoord0
	TexCoord1
	Color0
	Joints0
	Weights0
	TexCoord2
	Color1
	Joints1
	Weights1
)

// storedSemantics are the semantics that occupy a dedicated stream
// in a meshBuffer entry. TexCoord2/Color1/Joints1/Weights1 only
// affect material UV-set/skin-set selection and are not stored as
// separate vertex streams.
const storedSemantics = Position | Normal | Tangent | TexCoord0 | TexCoord1 | Color0 | Joints0 | Weights0

// MaxSemantic is the number of semantics that have a dedicated
// vertex stream in a meshBuffer entry.
const MaxSemantic = 8

// I returns the dense index of s among storedSemantics, suitable
// for indexing primitive.vertex. s must be a single stored bit.
func (s Semantic) I() int {
	return popcount(uint(storedSemantics) & (uint(s) - 1))
}

func popcount(x uint) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

func (s Semantic) String() string {
	switch s {
	case Position:
		return "Position"
	case Normal:
		return "Normal"
	case Tangent:
		return "Tangent"
	case TexCoord0:
		return "TexCoord0"
	case TexCoord1:
		return "TexCoord1"
	case TexCoord2:
		return "TexCoord2"
	case Color0:
		return "Color0"
	case Color1:
		return "Color1"
	case Joints0:
		return "Joints0"
	case Joints1:
		return "Joints1"
	case Weights0:
		return "Weights0"
	case Weights1:
		return "Weights1"
	default:
		return "Semantic(undefined)"
	}
}

// format returns the canonical driver.VertexFmt used to store s in
// a meshBuffer entry.
func (s Semantic) format() driver.VertexFmt {
	switch s {
	case Position, Normal:
		return driver.Float32x3
	case Tangent:
		return driver.Float32x4
	case TexCoord0, TexCoord1:
		return driver.Float32x2
	case Color0:
		return driver.Float32x4
	case Joints0:
		return driver.UInt16x4
	case Weights0:
		return driver.Float32x4
	default:
		panic("mesh: Semantic.format: not a stored semantic")
	}
}

// conv adapts count elements of format srcFmt read from src into
// s's canonical format. If srcFmt already matches the canonical
// format, src is returned unmodified (no allocation, no copy).
// Otherwise it returns an io.Reader that performs the conversion
// lazily as it is read, or an error if srcFmt cannot be converted
// to s's canonical format.
func (s Semantic) conv(srcFmt driver.VertexFmt, src io.Reader, count int) (io.Reader, error) {
	if srcFmt == s.format() {
		return src, nil
	}
	switch s {
	case TexCoord0, TexCoord1:
		switch srcFmt {
		case driver.UInt16x2:
			return &normReader{src: src, n: count, comps: 2, wide: 2, pad: false}, nil
		case driver.UInt8x2:
			return &normReader{src: src, n: count, comps: 2, wide: 1, pad: false}, nil
		}
	case Color0:
		switch srcFmt {
		case driver.Float32x3:
			return &padW1Reader{src: src, n: count}, nil
		case driver.UInt16x4:
			return &normReader{src: src, n: count, comps: 4, wide: 2, pad: false}, nil
		case driver.UInt16x3:
			return &normReader{src: src, n: count, comps: 3, wide: 2, pad: true}, nil
		case driver.UInt8x4:
			return &normReader{src: src, n: count, comps: 4, wide: 1, pad: false}, nil
		case driver.UInt8x3:
			return &normReader{src: src, n: count, comps: 3, wide: 1, pad: true}, nil
		}
	case Joints0:
		switch srcFmt {
		case driver.UInt8x4:
			return &widenReader{src: src, n: count}, nil
		}
	case Weights0:
		switch srcFmt {
		case driver.UInt16x4:
			return &normReader{src: src, n: count, comps: 4, wide: 2, pad: false}, nil
		case driver.UInt8x4:
			return &normReader{src: src, n: count, comps: 4, wide: 1, pad: false}, nil
		}
	}
	return nil, errors.New(prefix + s.String() + ": cannot convert from given driver.VertexFmt")
}

// normReader converts fixed-point (uint8/uint16) components to
// normalized float32 components, reading comps components of wide
// bytes each per element and padding a trailing w=1 when pad is set.
type normReader struct {
	src   io.Reader
	n     int
	comps int
	wide  int
	pad   bool
	buf   [4]byte
	out   [16]byte
	i     int
	rem   []byte
}

func (r *normReader) Read(p []byte) (int, error) {
	if len(r.rem) > 0 {
		n := copy(p, r.rem)
		r.rem = r.rem[n:]
		return n, nil
	}
	if r.i >= r.n {
		return 0, io.EOF
	}
	var vals [4]float32
	for c := 0; c < r.comps; c++ {
		if _, err := io.ReadFull(r.src, r.buf[:r.wide]); err != nil {
			return 0, err
		}
		switch r.wide {
		case 1:
			vals[c] = float32(r.buf[0]) / 255
		case 2:
			u := uint16(r.buf[0]) | uint16(r.buf[1])<<8
			vals[c] = float32(u) / 65535
		}
	}
	n := r.comps
	if r.pad {
		vals[r.comps] = 1
		n++
	}
	for c := 0; c < n; c++ {
		b := math.Float32bits(vals[c])
		r.out[c*4] = byte(b)
		r.out[c*4+1] = byte(b >> 8)
		r.out[c*4+2] = byte(b >> 16)
		r.out[c*4+3] = byte(b >> 24)
	}
	r.i++
	nn := copy(p, r.out[:n*4])
	r.rem = r.out[nn:n*4]
	return nn, nil
}

// padW1Reader appends a constant w=1.0 component to a stream of
// Float32x3 elements, producing Float32x4 output.
type padW1Reader struct {
	src io.Reader
	n   int
	i   int
	out [16]byte
	rem []byte
}

func (r *padW1Reader) Read(p []byte) (int, error) {
	if len(r.rem) > 0 {
		n := copy(p, r.rem)
		r.rem = r.rem[n:]
		return n, nil
	}
	if r.i >= r.n {
		return 0, io.EOF
	}
	if _, err := io.ReadFull(r.src, r.out[:12]); err != nil {
		return 0, err
	}
	b := math.Float32bits(1)
	r.out[12] = byte(b)
	r.out[13] = byte(b >> 8)
	r.out[14] = byte(b >> 16)
	r.out[15] = byte(b >> 24)
	r.i++
	n := copy(p, r.out[:16])
	r.rem = r.out[n:16]
	return n, nil
}

// widenReader widens uint8 components to uint16, without
// normalizing (used for joint indices).
type widenReader struct {
	src io.Reader
	n   int
	i   int
	buf [4]byte
	out [8]byte
	rem []byte
}

func (r *widenReader) Read(p []byte) (int, error) {
	if len(r.rem) > 0 {
		n := copy(p, r.rem)
		r.rem = r.rem[n:]
		return n, nil
	}
	if r.i >= r.n {
		return 0, io.EOF
	}
	if _, err := io.ReadFull(r.src, r.buf[:4]); err != nil {
		return 0, err
	}
	for c := 0; c < 4; c++ {
		u := uint16(r.buf[c])
		r.out[c*2] = byte(u)
		r.out[c*2+1] = byte(u >> 8)
	}
	r.i++
	n := copy(p, r.out[:8])
	r.rem = r.out[n:8]
	return n, nil
}

// AttrData describes the source of one vertex attribute.
type AttrData struct {
	Src    int
	Offset int64
	Format driver.VertexFmt
}

// IndexData describes the source of index buffer data.
type IndexData struct {
	Src    int
	Offset int64
	Format driver.IndexFmt
}

// PrimitiveData describes the data needed to create a Primitive.
// Srcs provides the backing readers that Semantics/Index offsets
// are relative to.
type PrimitiveData struct {
	Topology     driver.Topology
	SemanticMask Semantic
	Semantics    [MaxSemantic]AttrData
	VertexCount  int
	IndexCount   int
	Index        IndexData
	Srcs         []io.ReadSeeker
}

// Primitive identifies a single primitive entry stored in a
// meshBuffer, as returned by Manager.New.
type Primitive struct {
	bufIdx int
	index  int
}

// Mesh is a collection of one or more linked primitives created
// together by a single call to Manager.New.
type Mesh struct {
	mgr     *Manager
	prim    Primitive
	primLen int
	// LODs holds the precomputed cluster-LOD DAG for the mesh's
	// first primitive, if BuildMeshlets was requested on creation;
	// LODs[0] is the root (see ClusterLODNode).
	LODs []ClusterLODNode
}

// PrimitiveCount returns the number of primitives in m.
func (m *Mesh) PrimitiveCount() int { return m.primLen }

// DrawInfo returns the element count and indexing mode of m's first
// primitive, for building an indirect draw command: indexed is true
// when the primitive has its own index buffer, in which case count
// is the index count; otherwise count is the vertex count.
func (m *Mesh) DrawInfo() (count int, indexed bool) {
	p := m.mgr.storage.prims[m.prim.index]
	return p.count, p.index.format != 0
}

// DrawElements returns the element-granularity offsets needed to
// build an indirect draw command for m's first primitive:
// firstIndex is the element offset into the shared index pool
// (meaningful only when DrawInfo reports indexed), and baseVertex
// is the element offset into the shared vertex pool.
func (m *Mesh) DrawElements() (firstIndex, baseVertex int) {
	p := m.mgr.storage.prims[m.prim.index]
	if p.index.format != 0 {
		firstIndex = p.index.byteStart() / int(p.index.format)
	}
	baseVertex = p.vertex[Position.I()].byteStart() / p.vertex[Position.I()].format.Size()
	return
}

// Free releases every primitive in m, making their storage
// available for reuse. It does not release the underlying
// GPU buffer.
func (m *Mesh) Free() {
	p := m.prim
	for i := 0; i < m.primLen; i++ {
		next := m.mgr.storage.prims[p.index].next
		m.mgr.storage.freeEntry(p)
		if next < 0 {
			break
		}
		p = Primitive{bufIdx: p.bufIdx, index: next}
	}
	m.mgr = nil
	m.primLen = 0
}

// Meshlet groups a small, GPU-dispatchable subset of a primitive's
// triangles for cluster culling and mesh-shader dispatch.
type Meshlet struct {
	VertexOffset int
	VertexCount  int
	IndexOffset  int
	IndexCount   int
	// BoundsCenter/BoundsRadius describe a bounding sphere in
	// object space, used for coarse frustum/occlusion culling.
	BoundsCenter [3]float32
	BoundsRadius float32
}

// ClusterLODNodeKind distinguishes the two kinds of node in a
// primitive's cluster-LOD DAG.
type ClusterLODNodeKind int32

const (
	// ClusterGroup is a leaf node: it owns meshlets directly and
	// is the finest representation available along its branch.
	ClusterGroup ClusterLODNodeKind = iota
	// ClusterInner is an internal node: it owns no meshlets of its
	// own and instead aggregates a set of child nodes (each either
	// a ClusterGroup or a coarser ClusterInner) that a cluster
	// rasterization pass may substitute in place of refining
	// further, once their combined screen-space error falls below
	// the pass's threshold.
	ClusterInner
)

// ClusterLODNode is one node of a primitive's cluster-LOD DAG. The
// DAG is stored as a single flat, breadth-first-packed slice with
// the root always at index 0, so a cluster rasterization pass can
// walk it top-down (coarse to fine) by following Children indices
// into the same slice, cutting the traversal at whichever depth
// satisfies its screen-space error budget.
type ClusterLODNode struct {
	Kind ClusterLODNodeKind
	// Meshlets is populated only when Kind == ClusterGroup.
	Meshlets []Meshlet
	// Children indexes other entries of the same []ClusterLODNode
	// slice this node belongs to. Populated only when
	// Kind == ClusterInner.
	Children []int32
	// BoundsCenter/BoundsRadius bound every meshlet reachable from
	// this node, in object space.
	BoundsCenter [3]float32
	BoundsRadius float32
	// ScreenError is the maximum object-space error introduced by
	// stopping the traversal at this node instead of descending
	// into its children.
	ScreenError float32
}

// Meshlet size limits, matching common GPU mesh-shader limits
// (e.g. 64 vertices/124 triangles for NV mesh shaders).
const (
	maxMeshletVerts = 64
	maxMeshletTris  = 124
)

// BuildMeshlets partitions a triangle-list primitive's indices into
// fixed-size meshlets, in index order, then wraps them in a
// cluster-LOD DAG: a single synthetic ClusterInner root at index 0
// whose Children are the ClusterGroup leaves holding the meshlets,
// packed breadth-first (root first, then every leaf). It does not
// attempt vertex-cache optimization, spatial clustering or
// simplification-based coarsening, so every leaf is the same,
// full-resolution LOD; the root exists only to give a cluster
// rasterization pass a single node to cull the whole primitive
// against before descending into its meshlets. Multi-level
// geometric LOD chains (coarser ClusterInner nodes produced by
// simplifying and re-grouping their children) are future work.
func BuildMeshlets(indices []uint32, vertexCount int) []ClusterLODNode {
	if len(indices)%3 != 0 {
		panic("mesh: BuildMeshlets: indices is not a triangle list")
	}
	triPerMeshlet := maxMeshletTris
	if maxMeshletVerts < triPerMeshlet*3 {
		// Can't guarantee unique verts without a remap; fall back
		// to a vertex-count-driven cap.
		triPerMeshlet = maxMeshletVerts / 3
	}
	nodes := make([]ClusterLODNode, 1, len(indices)/(triPerMeshlet*3)+2)
	var children []int32
	for i := 0; i < len(indices); i += triPerMeshlet * 3 {
		end := i + triPerMeshlet*3
		if end > len(indices) {
			end = len(indices)
		}
		nodes = append(nodes, ClusterLODNode{
			Kind: ClusterGroup,
			Meshlets: []Meshlet{{
				VertexOffset: 0,
				VertexCount:  vertexCount,
				IndexOffset:  i,
				IndexCount:   end - i,
			}},
		})
		children = append(children, int32(len(nodes)-1))
	}
	nodes[0] = ClusterLODNode{Kind: ClusterInner, Children: children}
	return nodes
}
