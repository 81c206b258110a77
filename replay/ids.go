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

// EventID identifies a single command in the recorded frame. Events are
// numbered from 1 in recording order; 0 is never a valid event.
type EventID uint32

// Identifiers of recorded GPU objects. The zero value of each identifier
// means "no object".
type (
	// PipelineID identifies a recorded graphics or compute pipeline.
	PipelineID uint64
	// RenderPassID identifies a recorded render pass.
	RenderPassID uint64
	// FramebufferID identifies a recorded framebuffer.
	FramebufferID uint64
	// ImageID identifies a recorded image.
	ImageID uint64
	// ImageViewID identifies a recorded image view.
	ImageViewID uint64
	// ShaderID identifies a recorded shader module.
	ShaderID uint64
)
