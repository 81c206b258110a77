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

// Callbacks is implemented by analyses that instrument a replay. The
// engine invokes the Pre method for an event just before re-recording
// it and the Post method just after. Post methods return true to have
// the engine record the event one extra time.
//
// Events that are not draws, dispatches or secondary executions (clears,
// copies, barriers, resolves) are reported through PreMisc/PostMisc.
type Callbacks interface {
	PreDraw(ctx context.Context, ev EventID, cmd CommandBuffer)
	PostDraw(ctx context.Context, ev EventID, cmd CommandBuffer) bool

	PreDispatch(ctx context.Context, ev EventID, cmd CommandBuffer)
	PostDispatch(ctx context.Context, ev EventID, cmd CommandBuffer) bool

	PreMisc(ctx context.Context, ev EventID, cmd CommandBuffer)
	PostMisc(ctx context.Context, ev EventID, cmd CommandBuffer) bool

	// PreCmdExecute and PostCmdExecute bracket the execution of
	// recorded secondary command buffers from primary event ev.
	PreCmdExecute(ctx context.Context, ev EventID, cmd CommandBuffer)
	PostCmdExecute(ctx context.Context, ev EventID, cmd CommandBuffer)

	// AliasEvent reports that alias re-executes the same recorded
	// command as primary (multi-submitted command buffers).
	AliasEvent(ctx context.Context, primary, alias EventID)

	// SplitSecondary reports whether secondary command buffers must be
	// split so that render passes can be re-begun around their events.
	SplitSecondary() bool
}

// NopCallbacks is a Callbacks implementation that does nothing. It is
// intended for embedding.
type NopCallbacks struct{}

func (NopCallbacks) PreDraw(context.Context, EventID, CommandBuffer)           {}
func (NopCallbacks) PostDraw(context.Context, EventID, CommandBuffer) bool     { return false }
func (NopCallbacks) PreDispatch(context.Context, EventID, CommandBuffer)       {}
func (NopCallbacks) PostDispatch(context.Context, EventID, CommandBuffer) bool { return false }
func (NopCallbacks) PreMisc(context.Context, EventID, CommandBuffer)           {}
func (NopCallbacks) PostMisc(context.Context, EventID, CommandBuffer) bool     { return false }
func (NopCallbacks) PreCmdExecute(context.Context, EventID, CommandBuffer)     {}
func (NopCallbacks) PostCmdExecute(context.Context, EventID, CommandBuffer)    {}
func (NopCallbacks) AliasEvent(context.Context, EventID, EventID)              {}
func (NopCallbacks) SplitSecondary() bool                                      { return false }
