// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package shaderlayout defines the fixed root/push-constant
// layout shared by every render pass and shader in the engine,
// and the constant buffer layouts those push constants point
// into.
//
// Under the bindless binding model, shaders do not receive a
// descriptor table per draw call. Instead, a small, fixed set
// of push constants carries indices into per-frame constant
// buffers, and those constant buffers in turn carry the
// driver.DescriptorSlot values of the buffers/textures/samplers
// a draw actually needs. Resolving a resource is always two
// hops: push constant → CB index → bindless slot.
package shaderlayout

import (
	"time"
	"unsafe"

	"github.com/vireoengine/forge/linear"
)

func copyM4(dst []float32, m *linear.M4) {
	copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(m)), 16))
}

// RootConstants is the fixed push-constant block bound before
// every draw or dispatch. Its layout matches exactly across
// every pipeline so that passes can share the same binding
// code regardless of which root slots a given shader reads.
type RootConstants struct {
	// Index into the PerObject CB pool.
	PerObject uint32
	// Indices into the PerMesh and PerMeshInstance CB pools.
	PerMesh, PerMeshInstance uint32
	// Index into the active light/camera view buffer, and
	// into the ViewInfo pool describing it.
	ViewBuffer, ViewInfo uint32
	// Feature toggles, mirrored from the settings store at
	// the start of the frame.
	EnableShadows, EnablePunctualLights, EnableGTAO uint32
	// General-purpose scratch slots, assigned a meaning by
	// the pass currently bound (e.g. a pass index, a cascade
	// index, a bindless slot override).
	MiscUint  [4]uint32
	MiscFloat [4]float32
	// Per-pixel linked list bookkeeping, used only by passes
	// that participate in order-independent transparency.
	PPLLHead, PPLLNodes, PPLLCounter, PPLLPoolSize uint32
}

// Size is the size in bytes of RootConstants as uploaded to
// the driver via CmdBuffer.SetPushConstants.
const Size = int(unsafe.Sizeof(RootConstants{}))

// Bytes returns r reinterpreted as a byte slice suitable for
// CmdBuffer.SetPushConstants. The returned slice aliases r and
// is only valid for as long as r is not moved to a different
// address (e.g. do not take Bytes of a value that will later
// be assigned to).
func (r *RootConstants) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), Size)
}

// FrameLayout is the layout of per-frame, global data, shared
// across every view rendered in a given frame.
//
//	[0:16]  | elapsed time, random value, (unused) x2
//	[16]    | numFramesInFlight
//	[17:24] | (unused)
type FrameLayout [24]float32

// SetTime sets the elapsed time in seconds.
func (l *FrameLayout) SetTime(d time.Duration) { l[0] = float32(d.Seconds()) }

// SetRand sets a normalized random value, used by passes that
// dither or jitter (e.g. TAA, GTAO).
func (l *FrameLayout) SetRand(rnd float32) { l[1] = rnd }

// ViewLayout is the per-view data referenced by RootConstants'
// ViewBuffer/ViewInfo slots. One ViewLayout exists per camera
// and per shadow-casting light face/cascade.
//
//	[0:16]  | view-projection matrix
//	[16:32] | view matrix
//	[32:48] | projection matrix
//	[48:51] | world-space view position
//	[51]    | near plane
//	[52]    | far plane
//	[53]    | viewport width
//	[54]    | viewport height
//	[55]    | (unused)
//	[56:60] | frustum planes reserved for culling (unused here)
type ViewLayout [64]float32

// SetVP sets the view-projection matrix.
func (l *ViewLayout) SetVP(m *linear.M4) { copyM4(l[:16], m) }

// SetV sets the view matrix.
func (l *ViewLayout) SetV(m *linear.M4) { copyM4(l[16:32], m) }

// SetP sets the projection matrix.
func (l *ViewLayout) SetP(m *linear.M4) { copyM4(l[32:48], m) }

// SetPosition sets the world-space position of the view.
func (l *ViewLayout) SetPosition(p *linear.V3) { copy(l[48:51], p[:]) }

// SetPlanes sets the near and far clip planes.
func (l *ViewLayout) SetPlanes(near, far float32) { l[51], l[52] = near, far }

// SetViewport sets the viewport dimensions, used by passes
// that derive a pixel footprint for screen-space LOD metrics.
func (l *ViewLayout) SetViewport(w, h float32) { l[53], l[54] = w, h }

// LightLayout is the layout of a single light's data, one
// entry per slot in the light buffer.
//
//	[0]     | whether the light is unused
//	[1]     | light type
//	[2]     | intensity
//	[3]     | range
//	[4:7]   | color
//	[7]     | angular scale
//	[8:11]  | position
//	[11]    | angular offset
//	[12:15] | direction
//	[15]    | shadow view info index, or ^uint32(0) if none
type LightLayout [16]float32

// Types of light.
const (
	DirectLight int32 = iota
	PointLight
	SpotLight
)

// SetUnused sets whether the light slot is unused.
func (l *LightLayout) SetUnused(unused bool) {
	var v uint32
	if unused {
		v = 1
	}
	l[0] = *(*float32)(unsafe.Pointer(&v))
}

// SetType sets the light type.
func (l *LightLayout) SetType(typ int32) { l[1] = *(*float32)(unsafe.Pointer(&typ)) }

// SetIntensity sets the light intensity.
func (l *LightLayout) SetIntensity(i float32) { l[2] = i }

// SetRange sets the light range (PointLight, SpotLight).
func (l *LightLayout) SetRange(rng float32) { l[3] = rng }

// SetColor sets the light color.
func (l *LightLayout) SetColor(c *linear.V3) { copy(l[4:7], c[:]) }

// SetAngScale sets the angular scale (SpotLight).
func (l *LightLayout) SetAngScale(s float32) { l[7] = s }

// SetPosition sets the light position (PointLight, SpotLight).
func (l *LightLayout) SetPosition(p *linear.V3) { copy(l[8:11], p[:]) }

// SetAngOffset sets the angular offset (SpotLight).
func (l *LightLayout) SetAngOffset(off float32) { l[11] = off }

// SetDirection sets the light direction (DirectLight, SpotLight).
func (l *LightLayout) SetDirection(d *linear.V3) { copy(l[12:15], d[:]) }

// SetShadowView sets the index of this light's shadow ViewLayout
// entry, or the sentinel value NoShadowView if the light has no
// shadow map.
func (l *LightLayout) SetShadowView(idx uint32) { l[15] = *(*float32)(unsafe.Pointer(&idx)) }

// NoShadowView is the LightLayout.SetShadowView sentinel
// meaning that the light does not cast shadows.
const NoShadowView = ^uint32(0)

// PerObjectLayout is the layout of per-object data, addressed
// by RootConstants.PerObject.
//
//	[0:16]  | world matrix
//	[16:32] | normal matrix
//	[32]    | flags
//	[33:48] | (unused)
type PerObjectLayout [48]float32

// Object flags.
const (
	ObjCastShadow uint32 = 1 << iota
	ObjSkinned
)

// SetWorld sets the world matrix.
func (l *PerObjectLayout) SetWorld(m *linear.M4) { copyM4(l[:16], m) }

// SetNormal sets the normal matrix.
func (l *PerObjectLayout) SetNormal(m *linear.M4) { copyM4(l[16:32], m) }

// SetFlags sets the object flags.
func (l *PerObjectLayout) SetFlags(flg uint32) { l[32] = *(*float32)(unsafe.Pointer(&flg)) }

// PerMeshLayout is the layout of per-mesh data, addressed by
// RootConstants.PerMesh. It embeds the byte/element offsets of
// this mesh's data within each shared GPU pool, so that a
// shader can locate its vertices/meshlets without a per-draw
// descriptor rebind.
//
//	[0]  | vertex byte size
//	[1]  | vertex flags
//	[2]  | skinning vertex byte size
//	[3]  | number of vertices
//	[4]  | number of meshlets
//	[5]  | vertex pool byte offset
//	[6]  | meshlet offset pool index (offset / sizeof(Meshlet))
//	[7]  | meshlet-vertex pool index (offset / 4)
//	[8]  | meshlet-triangle pool index (offset / 4)
//	[9]  | material data index
//	[10:14] | bounding sphere (center xyz, radius)
//	[14:16] | (unused)
type PerMeshLayout [16]uint32

// Vertex flags.
const (
	VtxNormal uint32 = 1 << iota
	VtxTexcoord
	VtxJoints
	VtxTangent
)

// PerMeshInstanceLayout is the layout of per-mesh-instance
// data, addressed by RootConstants.PerMeshInstance.
//
//	[0] | post-skinning vertex pool byte offset (skinned only)
//	[1] | meshlet-bounds view index
//	[2] | per-object CB index (duplicated here so compute
//	    | culling passes do not need RootConstants)
//	[3] | (unused)
type PerMeshInstanceLayout [4]uint32

// SetSkinOffset sets the post-skinning vertex pool byte offset.
func (l *PerMeshInstanceLayout) SetSkinOffset(off uint32) { l[0] = off }

// SetMeshletBoundsView sets the meshlet-bounds view index.
func (l *PerMeshInstanceLayout) SetMeshletBoundsView(idx uint32) { l[1] = idx }

// SetObject sets the per-object CB index.
func (l *PerMeshInstanceLayout) SetObject(idx uint32) { l[2] = idx }

// MaterialLayout is the layout of material data, referenced by
// PerMeshLayout's material data index.
//
//	[0:4]   | base color factor
//	[4]     | metalness
//	[5]     | roughness
//	[6]     | normal scale
//	[7]     | occlusion strength
//	[8:11]  | emissive factor
//	[11]    | alpha cutoff
//	[12]    | flags
//	[13:21] | bindless slots: baseColor, metalRough, normal,
//	        | occlusion, emissive (tex,sampler pairs)
//	[21:24] | (unused)
type MaterialLayout [24]float32

// Material flags.
const (
	MatPBR uint32 = 1 << iota
	MatUnlit
	MatAOpaque
	MatABlend
	MatAMask
	MatDoubleSided
)

// SetColorFactor sets the base color factor.
func (l *MaterialLayout) SetColorFactor(fac *linear.V4) { copy(l[:4], fac[:]) }

// SetMetalRough sets the metalness and roughness.
func (l *MaterialLayout) SetMetalRough(metal, rough float32) { l[4], l[5] = metal, rough }

// SetNormScale sets the normal scale.
func (l *MaterialLayout) SetNormScale(s float32) { l[6] = s }

// SetOccStrength sets the occlusion strength.
func (l *MaterialLayout) SetOccStrength(s float32) { l[7] = s }

// SetEmisFactor sets the emissive factor.
func (l *MaterialLayout) SetEmisFactor(fac *linear.V3) { copy(l[8:11], fac[:]) }

// SetAlphaCutoff sets the alpha cutoff value (AlphaMask).
func (l *MaterialLayout) SetAlphaCutoff(c float32) { l[11] = c }

// SetFlags sets the material flags.
func (l *MaterialLayout) SetFlags(flg uint32) { l[12] = *(*float32)(unsafe.Pointer(&flg)) }

// SetSlots sets the bindless slot/sampler pair for one of the
// five material texture channels, identified by a byte offset
// of 13, 15, 17, 19 or 21 into l.
func (l *MaterialLayout) SetSlots(off int, texSlot, samplerSlot int32) {
	l[off] = *(*float32)(unsafe.Pointer(&texSlot))
	l[off+1] = *(*float32)(unsafe.Pointer(&samplerSlot))
}

// Material texture slot offsets, for use with SetSlots.
const (
	SlotBaseColor  = 13
	SlotMetalRough = 15
	SlotNormal     = 17
	SlotOcclusion  = 19
	SlotEmissive   = 21
)

// JointLayout is the layout of a single skinning joint.
//
//	[0:16]  | joint matrix
//	[16:32] | normal matrix
type JointLayout [32]float32

// SetJoint sets the joint matrix.
func (l *JointLayout) SetJoint(m *linear.M4) { copyM4(l[:16], m) }

// SetNormal sets the normal matrix.
func (l *JointLayout) SetNormal(m *linear.M4) { copyM4(l[16:32], m) }

// Engine-wide capacity limits. These bound the size of the
// fixed-size constant buffer pools allocated at startup.
const (
	MaxLight  = 1024
	MaxShadow = 64
	MaxJoint  = 256
)
