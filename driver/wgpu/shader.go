// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/vireoengine/forge/driver"
)

// shaderCode implements driver.ShaderCode, wrapping a compiled WGSL
// module. Unlike SPIR-V backends, wgpu compiles shader text at
// module-creation time, so NewShaderCode (driver.go) is where
// compilation errors surface rather than at pipeline creation.
type shaderCode struct {
	mod *wgpu.ShaderModule
}

func (s *shaderCode) Destroy() { s.mod.Release() }

func vertexFormat(f driver.VertexFmt) (wgpu.VertexFormat, error) {
	switch f {
	case driver.Int8:
		return wgpu.VertexFormatSint8, nil
	case driver.Int8x2:
		return wgpu.VertexFormatSint8x2, nil
	case driver.Int8x4:
		return wgpu.VertexFormatSint8x4, nil
	case driver.Int16:
		return wgpu.VertexFormatSint16, nil
	case driver.Int16x2:
		return wgpu.VertexFormatSint16x2, nil
	case driver.Int16x4:
		return wgpu.VertexFormatSint16x4, nil
	case driver.Int32:
		return wgpu.VertexFormatSint32, nil
	case driver.Int32x2:
		return wgpu.VertexFormatSint32x2, nil
	case driver.Int32x3:
		return wgpu.VertexFormatSint32x3, nil
	case driver.Int32x4:
		return wgpu.VertexFormatSint32x4, nil
	case driver.UInt8:
		return wgpu.VertexFormatUint8, nil
	case driver.UInt8x2:
		return wgpu.VertexFormatUint8x2, nil
	case driver.UInt8x4:
		return wgpu.VertexFormatUint8x4, nil
	case driver.UInt16:
		return wgpu.VertexFormatUint16, nil
	case driver.UInt16x2:
		return wgpu.VertexFormatUint16x2, nil
	case driver.UInt16x4:
		return wgpu.VertexFormatUint16x4, nil
	case driver.UInt32:
		return wgpu.VertexFormatUint32, nil
	case driver.UInt32x2:
		return wgpu.VertexFormatUint32x2, nil
	case driver.UInt32x3:
		return wgpu.VertexFormatUint32x3, nil
	case driver.UInt32x4:
		return wgpu.VertexFormatUint32x4, nil
	case driver.Float32:
		return wgpu.VertexFormatFloat32, nil
	case driver.Float32x2:
		return wgpu.VertexFormatFloat32x2, nil
	case driver.Float32x3:
		return wgpu.VertexFormatFloat32x3, nil
	case driver.Float32x4:
		return wgpu.VertexFormatFloat32x4, nil
	default:
		// Int8x3/Int16x3/UInt8x3/UInt16x3 have no 3-component
		// WebGPU vertex format (the spec only defines x2/x4 for
		// 8- and 16-bit types); mesh.Manager never emits these
		// (position/normal/tangent all go through Float32x3), so
		// this is an honest gap rather than a silent truncation.
		return 0, fmt.Errorf("wgpu: VertexFmt %d has no WebGPU equivalent", f)
	}
}
