// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package wgpu implements the driver package's interfaces on top
// of github.com/cogentcore/webgpu, a Go binding to wgpu-native.
//
// It is grounded on Carmen-Shannon-oxy-go/engine/renderer's
// wgpu_renderer_backend.go, the pack's one complete example of a
// renderer built against this exact dependency: device bring-up
// (instance/adapter/device/queue), buffer/texture/sampler/shader
// module creation, bind group layouts and render/compute pipeline
// construction, and command encoder/pass recording all follow that
// file's calls and descriptor field names.
//
// This package runs headless: it never creates a Surface or a
// Swapchain, since nothing in this module presents to a window (the
// readback package is the only path that gets rendered images back
// out). A *GPU committed through this package always has exactly
// one adapter and one device open at a time, mirroring vk.Driver's
// single-instance-per-process design.
//
// Three of driver.CmdBuffer's capabilities have no native WebGPU
// counterpart and are implemented as documented approximations
// rather than silently dropped:
//   - BindlessHeap has no WebGPU equivalent (no descriptor-heap or
//     bindless-indexing primitive exists in the API); it is emulated
//     with per-DescType binding arrays rebuilt into a single bind
//     group whenever a slot changes. See bindless.go.
//   - SetPushConstants has no WebGPU equivalent; it is emulated with
//     a small per-command-buffer uniform buffer rewritten on every
//     call and bound at a reserved group index. See cmd.go.
//   - DispatchMesh/DispatchMeshIndirect have no WebGPU equivalent
//     (wgpu-native exposes no mesh shader stage); both are no-ops
//     here. See cmd.go.
package wgpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// bindlessGroup is the bind group index reserved for the emulated
// BindlessHeap (see bindless.go). Regular descriptor tables (desc.go)
// are assigned groups starting at firstTableGroup, after the push
// constant group.
const bindlessGroup = 0

// pushConstantGroup follows the bindless group, and holds the single
// dynamically-rewritten uniform buffer used to emulate push
// constants (see cmd.go).
const pushConstantGroup = 1

// firstTableGroup is the first bind group index available to
// DescTable (desc.go).
const firstTableGroup = 2

// pushConstantSize is the capacity, in bytes, of the uniform buffer
// backing the push constant emulation. It matches the 128-byte
// minimum push constant range guaranteed by Vulkan, which is what
// internal/shaderlayout.RootConstants was sized against.
const pushConstantSize = 128

// errNotWgpu is returned whenever a driver.* interface value passed
// into this package did not originate from it (e.g. a Buffer created
// against fakegpu.GPU used with a wgpu.GPU's CmdBuffer).
var errNotWgpu = errors.New("wgpu: value did not originate from this driver")

// Driver implements driver.Driver. The zero value is a closed
// driver; call Open to bring up an adapter and device.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

// Open initializes the driver, requesting a high-performance
// adapter and its default device, mirroring
// newWGPURendererBackend's adapter/device bring-up.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		return d.gpu, nil
	}

	runtime.LockOSThread()

	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, driver.ErrNotInstalled
	}

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoDevice, err)
	}

	limits := wgpu.DefaultLimits()
	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "forge device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrNoDevice, err)
	}

	g := &GPU{
		drv:      d,
		instance: inst,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
		limits:   limits,
	}
	d.gpu = g
	return g, nil
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "wgpu" }

// Close implements driver.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		return
	}
	d.gpu.queue.Release()
	d.gpu.device.Release()
	d.gpu.adapter.Release()
	d.gpu.instance.Release()
	d.gpu = nil
}

func init() { driver.Register(&Driver{}) }

// GPU implements driver.GPU on top of a single wgpu device/queue
// pair.
type GPU struct {
	drv *Driver

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	limits wgpu.Limits

	// bindless is the most recently created BindlessHeap, whose
	// BindGroupLayout every pipeline's group 0 is built against (see
	// pipelineLayout in pipeline.go). A renderer using this backend
	// is expected to create exactly one BindlessHeap per GPU, the
	// same way resource.Manager does.
	bindless *bindlessHeap

	// emptyBindless backs group 0 for pipelines created before any
	// BindlessHeap exists.
	emptyBindless *wgpu.BindGroupLayout

	// pushConstants backs group pushConstantGroup for every pipeline
	// (see cmd.go).
	pushConstants *pushConstantState
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Commit implements driver.GPU. Submission in this backend is
// synchronous: every command buffer's encoder is already finished
// (CmdBuffer.End calls Finish), so Commit only has to hand the
// resulting wgpu.CommandBuffer values to the queue and, for any
// buffer a readback targeted, map it back into host memory before
// reporting completion.
func (g *GPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	bufs := make([]*wgpu.CommandBuffer, 0, len(cb))
	var pending []*buffer
	for _, c := range cb {
		wc, ok := c.(*cmdBuffer)
		if !ok {
			if ch != nil {
				ch <- errors.New("wgpu: foreign CmdBuffer implementation")
			}
			return
		}
		if wc.finished == nil {
			if ch != nil {
				ch <- errors.New("wgpu: CmdBuffer committed without a prior End")
			}
			return
		}
		bufs = append(bufs, wc.finished)
		pending = append(pending, wc.readback...)
	}
	if len(bufs) > 0 {
		g.queue.Submit(bufs...)
	}
	for _, b := range pending {
		if err := b.download(g.device); err != nil {
			if ch != nil {
				ch <- err
			}
			return
		}
	}
	if ch != nil {
		ch <- nil
	}
}

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &cmdBuffer{gpu: g}, nil
}

// NewShaderCode implements driver.GPU. data is expected to contain
// WGSL source, since wgpu-native's shader module creation compiles
// WGSL directly rather than an intermediate bytecode form.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	mod, err := g.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: string(data)},
	})
	if err != nil {
		return nil, err
	}
	return &shaderCode{mod: mod}, nil
}

// Limits implements driver.GPU, translating the adapter/device
// limits wgpu reported at Open time.
func (g *GPU) Limits() driver.Limits {
	l := g.limits
	return driver.Limits{
		MaxImage1D:        int(l.MaxTextureDimension1D),
		MaxImage2D:        int(l.MaxTextureDimension2D),
		MaxImageCube:      int(l.MaxTextureDimension2D),
		MaxImage3D:        int(l.MaxTextureDimension3D),
		MaxLayers:         int(l.MaxTextureArrayLayers),
		MaxDescHeaps:      int(l.MaxBindGroups) - firstTableGroup,
		MaxDBuffer:        int(l.MaxStorageBuffersPerShaderStage),
		MaxDImage:         int(l.MaxStorageTexturesPerShaderStage),
		MaxDConstant:      int(l.MaxUniformBuffersPerShaderStage),
		MaxDTexture:       int(l.MaxSampledTexturesPerShaderStage),
		MaxDSampler:       int(l.MaxSamplersPerShaderStage),
		MaxDBufferRange:   int64(l.MaxStorageBufferBindingSize),
		MaxDConstantRange: int64(l.MaxUniformBufferBindingSize),
		MaxColorTargets:   int(l.MaxColorAttachments),
		MaxFBSize:         [2]int{int(l.MaxTextureDimension2D), int(l.MaxTextureDimension2D)},
		MaxFBLayers:       int(l.MaxTextureArrayLayers),
		MaxPointSize:      1,
		MaxViewports:      1,
		MaxVertexIn:       int(l.MaxVertexAttributes),
		MaxFragmentIn:     int(l.MaxInterStageShaderComponents),
		MaxDispatch:       [3]int{int(l.MaxComputeWorkgroupsPerDimension), int(l.MaxComputeWorkgroupsPerDimension), int(l.MaxComputeWorkgroupsPerDimension)},
	}
}
