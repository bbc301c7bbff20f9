// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// buffer implements driver.Buffer. Host-visible buffers keep a
// plain Go mirror of their contents: Bytes() reads and writes
// refer to that mirror, which is uploaded to the real wgpu.Buffer
// with Queue.WriteBuffer immediately before it is needed by a
// command (mirroring how InitMeshBuffers uploads vertex/index data
// right after CreateBuffer), and, for buffers a copy command wrote
// into, downloaded back with a map/unmap round trip once the
// command buffer that performed the copy has been committed (see
// GPU.Commit and download below).
//
// wgpu-native only allows MapRead and MapWrite to be combined with
// CopyDst and CopySrc respectively, so a host-visible buffer here
// always carries CopyDst|MapRead in addition to whatever usage the
// caller requested, which lets it serve equally as an upload source
// and a readback destination.
type buffer struct {
	gpu     *GPU
	buf     *wgpu.Buffer
	host    []byte
	visible bool
	dirty   bool
}

func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}
	wusg := bufferUsage(usg)
	if visible {
		wusg |= wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead | wgpu.BufferUsageCopySrc
	}
	wb, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "forge buffer",
		Size:  uint64(size),
		Usage: wusg,
	})
	if err != nil {
		return nil, err
	}
	b := &buffer{gpu: g, buf: wb, visible: visible}
	if visible {
		b.host = make([]byte, size)
	}
	return b, nil
}

func bufferUsage(usg driver.Usage) wgpu.BufferUsage {
	var u wgpu.BufferUsage
	if usg&driver.UShaderRead != 0 || usg&driver.UShaderWrite != 0 {
		u |= wgpu.BufferUsageStorage
	}
	if usg&driver.UShaderConst != 0 {
		u |= wgpu.BufferUsageUniform
	}
	if usg&driver.UVertexData != 0 {
		u |= wgpu.BufferUsageVertex
	}
	if usg&driver.UIndexData != 0 {
		u |= wgpu.BufferUsageIndex
	}
	// Indirect draw/dispatch argument buffers carry no dedicated
	// driver.Usage bit (see indirect.Manager.Reserve), so every
	// buffer is also eligible to be used as an indirect source.
	u |= wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	return u
}

func (b *buffer) Destroy() { b.buf.Release() }

func (b *buffer) Visible() bool { return b.visible }

func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	b.dirty = true
	return b.host
}

func (b *buffer) Cap() int64 { return int64(b.buf.Size()) }

// upload flushes a dirty host mirror to the real GPU buffer. It is
// called from cmd.go whenever a command records a reference to a
// host-visible buffer, so that by the time the command buffer is
// submitted the device-side contents reflect whatever the caller
// last wrote through Bytes().
func (b *buffer) upload(q *wgpu.Queue) {
	if !b.visible || !b.dirty {
		return
	}
	q.WriteBuffer(b.buf, 0, b.host)
	b.dirty = false
}

// download maps the buffer for reading and copies its contents back
// into the host mirror. It must only be called after the command
// buffer that wrote to it has been submitted and completed, which
// GPU.Commit guarantees by calling it synchronously after Submit.
func (b *buffer) download(dev *wgpu.Device) error {
	done := make(chan error, 1)
	b.buf.MapAsync(wgpu.MapModeRead, 0, uint64(len(b.host)), func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			done <- fmt.Errorf("wgpu: buffer map failed: %v", status)
			return
		}
		done <- nil
	})
	for {
		dev.Poll(true, nil)
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			copy(b.host, b.buf.GetMappedRange(0, uint(len(b.host))))
			b.buf.Unmap()
			return nil
		default:
		}
	}
}
