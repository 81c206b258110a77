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
	"github.com/gogpu/naga/ir"
	"github.com/gviegas/scene/driver"
)

// Resources looks up the recorded frame's object descriptions and their
// live replay-side handles. All lookups report ok=false when the
// identifier is unknown; analyses treat that as a per-event skip, never
// a fatal error.
type Resources interface {
	Pipeline(id PipelineID) (PipelineDescription, bool)
	RenderPass(id RenderPassID) (RenderPassDescription, bool)
	Framebuffer(id FramebufferID) (FramebufferDescription, bool)
	Image(id ImageID) (ImageDescription, bool)
	ImageView(id ImageViewID) (ImageViewDescription, bool)

	// ShaderModule returns the shader module as IR. The module is
	// shared; callers must not mutate it.
	ShaderModule(id ShaderID) (*ir.Module, bool)

	// Live handles of recorded objects in the replay.
	ImageHandle(id ImageID) (driver.Image, bool)
	ImageViewHandle(id ImageViewID) (driver.ImageView, bool)
	RenderPassHandle(id RenderPassID) (driver.RenderPass, bool)
	ShaderHandle(id ShaderID) (driver.ShaderCode, bool)
}

// StageBinding names a shader stage of a recorded pipeline. A zero
// Shader means the stage is not bound.
type StageBinding struct {
	Shader ShaderID
	Entry  string
}

// PipelineDescription is the recorded creation state of a graphics
// pipeline, in driver terms plus the fixed-function state the driver
// keeps dynamic.
type PipelineDescription struct {
	VertexStage   StageBinding
	FragmentStage StageBinding

	Topology driver.Topology
	Raster   driver.RasterState
	// RasterizerDiscard disables rasterization entirely.
	RasterizerDiscard bool

	// Static viewport/scissor state, used unless the matching
	// Dynamic flag is set.
	Viewports      []driver.Viewport
	Scissors       []driver.Scissor
	DynamicScissor bool

	Samples    int
	SampleMask uint32

	DS driver.DSState
	// DynamicStencilRef is whether the stencil reference comes from
	// the command stream rather than the pipeline.
	DynamicStencilRef bool
	StencilRef        uint32

	DepthBoundsTest bool
	DepthBounds     [2]float32

	Blend driver.BlendState

	RenderPass RenderPassID
	Subpass    int
}

// AttachmentDescription is one attachment of a recorded render pass.
type AttachmentDescription struct {
	Format  driver.PixelFmt
	Samples int
	Load    [2]driver.LoadOp
	Store   [2]driver.StoreOp
}

// SubpassDescription is one subpass of a recorded render pass.
// Attachment references are indices into the render pass attachment
// list; DepthStencil is -1 when the subpass has no depth attachment.
type SubpassDescription struct {
	Color        []int
	Resolve      []int
	DepthStencil int
}

// RenderPassDescription is the recorded creation state of a render pass.
type RenderPassDescription struct {
	Attachments []AttachmentDescription
	Subpasses   []SubpassDescription
}

// FramebufferDescription is the recorded creation state of a framebuffer.
type FramebufferDescription struct {
	Attachments []ImageViewID
	Width       int
	Height      int
	Layers      int
}

// ImageDescription is the recorded creation state of an image.
type ImageDescription struct {
	Format  driver.PixelFmt
	Extent  driver.Dim3D
	Layers  int
	Levels  int
	Samples int
}

// ImageViewDescription is the recorded creation state of an image view.
type ImageViewDescription struct {
	Image      ImageID
	FirstLayer int
	Layers     int
	FirstLevel int
	Levels     int
}
