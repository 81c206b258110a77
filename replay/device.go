// Copyright (C) 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package replay

import (
	"context"

	"github.com/gviegas/scene/driver"
)

// Aspect selects one aspect of an image.
type Aspect int

const (
	AspectColor Aspect = iota
	AspectDepth
	AspectStencil
)

func (a Aspect) String() string {
	switch a {
	case AspectColor:
		return "Color"
	case AspectDepth:
		return "Depth"
	case AspectStencil:
		return "Stencil"
	default:
		return "?"
	}
}

// Device creates the GPU objects an analysis needs beyond what the
// recorded frame provides. Objects returned by a Device are owned by the
// caller and must be destroyed when the analysis ends.
type Device interface {
	// NewRenderPass creates a render pass from a description.
	NewRenderPass(ctx context.Context, desc RenderPassDescription) (driver.RenderPass, error)

	// NewFramebuffer creates a framebuffer for pass from live views.
	NewFramebuffer(ctx context.Context, pass driver.RenderPass, views []driver.ImageView, width, height, layers int) (driver.Framebuf, error)

	// NewPipeline creates a graphics pipeline from a description, with
	// the programmable stages replaced by sh and the pass replaced by
	// pass (nil keeps the recorded pass).
	NewPipeline(ctx context.Context, desc PipelineDescription, sh PipelineShaders, pass driver.RenderPass) (driver.Pipeline, error)

	// NewShaderCode uploads a SPIR-V binary.
	NewShaderCode(ctx context.Context, spirv []byte) (driver.ShaderCode, error)

	// NewImage creates a GPU image.
	NewImage(ctx context.Context, pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error)

	// NewReadbackBuffer creates a host-visible buffer whose contents
	// are coherent after Controller.Wait.
	NewReadbackBuffer(ctx context.Context, size int64) (driver.Buffer, error)

	// NewOcclusionPool creates a pool of count occlusion queries.
	NewOcclusionPool(ctx context.Context, count int) (QueryPool, error)
}

// PipelineShaders carries the live shader objects for a pipeline
// created through Device.NewPipeline. A nil Fragment leaves the
// pipeline without a fragment stage.
type PipelineShaders struct {
	Vertex        driver.ShaderCode
	VertexEntry   string
	Fragment      driver.ShaderCode
	FragmentEntry string
}

// QueryPool is a pool of GPU occlusion queries.
type QueryPool interface {
	// Count returns the number of queries in the pool.
	Count() int

	// Results returns the sample count of every query in the pool.
	// It must only be called after Controller.Wait; queries never
	// begun report zero.
	Results(ctx context.Context) ([]uint64, error)

	Destroy()
}

// CommandBuffer extends the driver command buffer with the commands
// frame analyses need: occlusion queries, in-pass attachment clears and
// single-pixel readback copies.
type CommandBuffer interface {
	driver.CmdBuffer

	// BeginQuery begins occlusion query index of pool. If precise is
	// set the query counts exact samples instead of any-passed.
	BeginQuery(pool QueryPool, index int, precise bool)

	// EndQuery ends occlusion query index of pool.
	EndQuery(pool QueryPool, index int)

	// ClearAttachment clears a region of attachment att of the current
	// render pass. For depth/stencil attachments att is ignored and
	// aspect selects what to clear.
	ClearAttachment(aspect Aspect, att, x, y, width, height int, value driver.ClearValue)

	// CopyPixel copies the single pixel (x, y) of the given aspect,
	// layer, level and sample of img into buf at off. Depth writes
	// 4 bytes, stencil 1 byte, color the format's texel size.
	CopyPixel(img driver.Image, aspect Aspect, layer, level, x, y, sample int, buf driver.Buffer, off int64)
}
