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

import "github.com/gviegas/scene/driver"

// RenderState is the mutable graphics state at the current replay point.
// Callbacks may change it before re-recording an event; the engine applies
// it whenever a render pass or pipeline is (re)bound. Callers that mutate
// it must snapshot it with Clone first and restore the snapshot after.
type RenderState struct {
	// Pipeline, RenderPass, Framebuffer and Subpass identify the
	// recorded objects bound at this point.
	Pipeline    PipelineID
	RenderPass  RenderPassID
	Framebuffer FramebufferID
	Subpass     int

	// Viewports and Scissors are the live dynamic state.
	Viewports []driver.Viewport
	Scissors  []driver.Scissor

	// StencilRef is the live stencil reference value.
	StencilRef uint32

	// The overrides below substitute instrumented objects for the
	// recorded ones. A nil override means "use the recorded object".
	PipelineOverride    driver.Pipeline
	PassOverride        driver.RenderPass
	FramebufferOverride driver.Framebuf
}

// Clone returns a deep copy of s.
func (s *RenderState) Clone() RenderState {
	out := *s
	out.Viewports = append([]driver.Viewport(nil), s.Viewports...)
	out.Scissors = append([]driver.Scissor(nil), s.Scissors...)
	return out
}
