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

import "context"

// Controller drives the replay engine over a recorded frame.
//
// Replays are single-threaded: ReplayRange records the requested events
// into engine-owned command buffers, Submit hands the recorded work to
// the GPU and Wait blocks on a fence until it completes. Readback
// buffers are only coherent after Wait returns.
type Controller interface {
	// ReplayRange re-records events [from, to] of the frame, invoking
	// cb around each event. The work is not submitted.
	ReplayRange(ctx context.Context, from, to EventID, cb Callbacks) error

	// Submit submits all recorded work to the GPU.
	Submit(ctx context.Context) error

	// Wait blocks until all submitted work has completed.
	Wait(ctx context.Context) error

	// State returns the render state at the current replay point.
	// It is only meaningful inside a Callbacks invocation, and stays
	// valid until the callback returns.
	State() *RenderState

	// Draw returns the description of the draw call at event ev.
	Draw(ev EventID) (Draw, bool)

	// BindState binds the pipeline and dynamic state described by
	// State() into cmd, honoring the overrides.
	BindState(ctx context.Context, cmd CommandBuffer) error

	// BeginRenderPass re-begins the render pass described by State()
	// with all load operations demoted to loads, so that prior
	// attachment contents survive. EndRenderPass ends it. Both are
	// no-ops when the current point is outside a render pass instance.
	BeginRenderPass(ctx context.Context, cmd CommandBuffer) error
	EndRenderPass(ctx context.Context, cmd CommandBuffer)
}
