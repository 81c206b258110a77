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

package pixelhistory

import (
	"context"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// Fragment counting mutations: every rasterized fragment bumps the aux
// stencil, depth rejection is disabled so depth-failed fragments still
// count, and the scissor is narrowed to the pixel. Color writes are
// masked out, since the counting pass renders into the live attachments
// after the post-modification value was captured.
const countVariant = varAuxPass | varStencilCount | varNoColorWrites |
	varDisableDepthTest | varDisableDepthBounds | varScissorToPixel |
	varSampleMaskAll

// capturePass copies the pixel value before and after every selected
// event, and for draws additionally counts the fragments covering the
// pixel with and without the original shader's discards.
type capturePass struct {
	replay.NopCallbacks
	q *query
	// usage per selected event.
	events map[replay.EventID]replay.Usage
}

func newCapturePass(q *query, events map[replay.EventID]replay.Usage) *capturePass {
	return &capturePass{q: q, events: events}
}

func (p *capturePass) SplitSecondary() bool { return true }

func (p *capturePass) AliasEvent(ctx context.Context, primary, alias replay.EventID) {
	// The alias re-executes the same commands; its captured values
	// would overwrite the primary's. Warned once here, corrected at
	// assembly by reusing the primary's record.
	log.W(ctx, "event %v aliases %v, history values are shared", alias, primary)
}

func (p *capturePass) PreDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	if _, ok := p.events[ev]; !ok {
		return
	}
	off, ok := p.q.recordOffset(ev)
	if !ok {
		return
	}
	var depth replay.ImageID
	if d, ok := p.q.ctrl.Draw(ev); ok {
		depth = d.DepthTarget
	}
	p.copyBracketed(ctx, cmd, depth, off+premodOffset)
}

func (p *capturePass) PostDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) bool {
	if _, ok := p.events[ev]; !ok {
		return false
	}
	off, ok := p.q.recordOffset(ev)
	if !ok {
		return false
	}
	d, haveDraw := p.q.ctrl.Draw(ev)
	if !haveDraw {
		p.copyBracketed(ctx, cmd, 0, off+postmodOffset)
		return false
	}

	p.q.ctrl.EndRenderPass(ctx, cmd)
	p.q.copyTargetPixel(ctx, cmd, p.q.readback, off+postmodOffset)
	p.q.copyDepthPixel(ctx, cmd, d.DepthTarget, p.q.readback, off+postmodOffset)
	p.countFragments(ctx, ev, d, cmd, off)
	if err := p.q.ctrl.BeginRenderPass(ctx, cmd); err != nil {
		log.E(ctx, "re-beginning render pass after event %v: %v", ev, err)
	}
	if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
		log.E(ctx, "rebinding state after event %v: %v", ev, err)
	}
	return false
}

// countFragments redraws the event twice over the aux depth/stencil:
// once with a fragment shader that cannot discard and once with the
// original shader stripped of its side effects. The difference between
// the two stencil values is the number of discarded fragments. Must be
// recorded outside a render pass, and leaves the pass ended.
func (p *capturePass) countFragments(ctx context.Context, ev replay.EventID, d replay.Draw, cmd replay.CommandBuffer, off int64) {
	st := p.q.ctrl.State()
	prev := st.Clone()
	defer func() { *st = prev }()

	variant, err := p.q.passVariant(ctx, st, rpCapture)
	if err != nil {
		log.W(ctx, "no counting pass variant for event %v: %v", ev, err)
		return
	}

	redraws := []struct {
		flags variantFlags
		off   int64
	}{
		{countVariant | varFixedColor, off + fragsPlainOffset},
		{countVariant | varStripped, off + fragsShaderOffset},
	}
	if !p.canDiscard(st) {
		// Without discards both counts are equal; redraw once and
		// read the same stencil value into both slots.
		redraws = redraws[:1]
	}

	for _, r := range redraws {
		pipe, err := p.q.variantPipeline(ctx, st, r.flags)
		if err != nil {
			log.W(ctx, "no counting variant for event %v: %v", ev, err)
			return
		}
		st.PassOverride = variant.pass
		st.FramebufferOverride = variant.fb
		st.PipelineOverride = pipe
		if err := p.q.ctrl.BeginRenderPass(ctx, cmd); err != nil {
			log.W(ctx, "beginning counting pass for event %v: %v", ev, err)
			return
		}
		if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
			p.q.ctrl.EndRenderPass(ctx, cmd)
			log.W(ctx, "binding counting variant for event %v: %v", ev, err)
			return
		}
		d.Issue(cmd)
		p.q.ctrl.EndRenderPass(ctx, cmd)
		p.q.copyAuxStencil(cmd, p.q.readback, r.off)
	}
	if len(redraws) == 1 {
		p.q.copyAuxStencil(cmd, p.q.readback, off+fragsShaderOffset)
	}
}

func (p *capturePass) canDiscard(st *replay.RenderState) bool {
	desc, ok := p.q.res.Pipeline(st.Pipeline)
	if !ok || desc.FragmentStage.Shader == 0 {
		return false
	}
	return p.q.shaders.CanDiscard(desc.FragmentStage.Shader, desc.FragmentStage.Entry)
}

func (p *capturePass) PreDispatch(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	p.preOther(ctx, ev, cmd)
}

func (p *capturePass) PostDispatch(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) bool {
	return p.postOther(ctx, ev, cmd)
}

func (p *capturePass) PreMisc(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	p.preOther(ctx, ev, cmd)
}

func (p *capturePass) PostMisc(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) bool {
	return p.postOther(ctx, ev, cmd)
}

// PreCmdExecute and PostCmdExecute capture around unsplit secondary
// command buffers, attributing the change to the execute event itself.
func (p *capturePass) PreCmdExecute(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	p.preOther(ctx, ev, cmd)
}

func (p *capturePass) PostCmdExecute(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	p.postOther(ctx, ev, cmd)
}

func (p *capturePass) preOther(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	if _, ok := p.events[ev]; !ok {
		return
	}
	if off, ok := p.q.recordOffset(ev); ok {
		p.copyBracketed(ctx, cmd, 0, off+premodOffset)
	}
}

func (p *capturePass) postOther(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) bool {
	if _, ok := p.events[ev]; !ok {
		return false
	}
	if off, ok := p.q.recordOffset(ev); ok {
		p.copyBracketed(ctx, cmd, 0, off+postmodOffset)
	}
	return false
}

// copyBracketed copies the pixel value, temporarily leaving the render
// pass when one is active.
func (p *capturePass) copyBracketed(ctx context.Context, cmd replay.CommandBuffer, depth replay.ImageID, off int64) {
	p.q.ctrl.EndRenderPass(ctx, cmd)
	p.q.copyTargetPixel(ctx, cmd, p.q.readback, off)
	p.q.copyDepthPixel(ctx, cmd, depth, p.q.readback, off)
	if err := p.q.ctrl.BeginRenderPass(ctx, cmd); err != nil {
		log.E(ctx, "re-beginning render pass: %v", err)
	}
	if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
		log.E(ctx, "rebinding state: %v", err)
	}
}
