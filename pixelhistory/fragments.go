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

	"github.com/gviegas/scene/driver"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// fragMatchBase isolates one fragment by arrival index: the stencil
// counts rasterized fragments the same way the counting redraws did,
// and the compare lets through only the fragment whose index equals the
// dynamic stencil reference.
const fragMatchBase = varStencilMatch | varDisableDepthTest |
	varDisableDepthBounds | varScissorToPixel | varSampleMaskAll

// fragmentsPass decomposes the overdraw of a single draw into
// per-fragment values. It runs on its own replay of the frame up to the
// draw, because the post-modification redraws mutate the target.
type fragmentsPass struct {
	replay.NopCallbacks
	q     *query
	event replay.EventID
	// count is the number of fragments the draw rasterized at the
	// pixel, discards suppressed.
	count int
	buf   driver.Buffer
	base  int64
	// unbound reports whether the draw had no fragment shader.
	unbound bool
}

func newFragmentsPass(q *query, ev replay.EventID, count int, buf driver.Buffer, base int64) *fragmentsPass {
	return &fragmentsPass{q: q, event: ev, count: count, buf: buf, base: base}
}

// PreDraw runs before the draw executes, while the target still holds
// the pre-modification value, so the incremental redraws blend against
// the right contents.
func (p *fragmentsPass) PreDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	if ev != p.event {
		return
	}
	d, ok := p.q.ctrl.Draw(ev)
	if !ok {
		log.W(ctx, "no draw description for event %v, skipping fragment decomposition", ev)
		return
	}
	st := p.q.ctrl.State()
	if desc, ok := p.q.res.Pipeline(st.Pipeline); ok {
		p.unbound = desc.FragmentStage.Shader == 0
	}
	prev := st.Clone()
	defer func() {
		*st = prev
		if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
			log.E(ctx, "restoring state after event %v: %v", ev, err)
		}
	}()

	for f := 0; f < p.count; f++ {
		off := p.base + int64(f)*fragmentRecordSize
		st.StencilRef = uint32(f)

		// Which primitive produced fragment f.
		p.redraw(ctx, cmd, d, st, fragMatchBase|varFragPass|varPrimitiveID, rpFragments, func() {
			p.q.copyAuxColor(cmd, p.buf, off+fragPrimitiveOff)
		})

		// The fragment shader's raw output, without blending.
		p.redraw(ctx, cmd, d, st, fragMatchBase|varFragPass|varStripped, rpFragments, func() {
			p.q.copyAuxColor(cmd, p.buf, off+fragShaderOutOff)
			p.q.copyAuxDepth(cmd, p.buf, off+fragShaderOutOff+valueDepthOffset)
		})

		// The target after fragment f, blended onto fragments 0..f-1.
		// The last fragment is skipped: the capture replay already holds
		// the value after it.
		if f+1 < p.count {
			p.redraw(ctx, cmd, d, st, fragMatchBase|varAuxPass|varStripped, rpCapture, func() {
				p.q.copyTargetPixel(ctx, cmd, p.buf, off+fragPostModOff)
				p.q.copyAuxDepth(cmd, p.buf, off+fragPostModOff+valueDepthOffset)
			})
		}
	}
}

func (p *fragmentsPass) redraw(ctx context.Context, cmd replay.CommandBuffer, d replay.Draw, st *replay.RenderState, flags variantFlags, kind rpKind, copies func()) {
	variant, err := p.q.passVariant(ctx, st, kind)
	if err != nil {
		log.W(ctx, "no pass variant for event %v: %v", p.event, err)
		return
	}
	pipe, err := p.q.variantPipeline(ctx, st, flags)
	if err != nil {
		log.W(ctx, "no fragment variant %#x for event %v: %v", flags, p.event, err)
		return
	}
	st.PassOverride = variant.pass
	st.FramebufferOverride = variant.fb
	st.PipelineOverride = pipe
	if err := p.q.ctrl.BeginRenderPass(ctx, cmd); err != nil {
		log.W(ctx, "beginning fragment pass for event %v: %v", p.event, err)
		return
	}
	if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
		p.q.ctrl.EndRenderPass(ctx, cmd)
		log.W(ctx, "binding fragment variant for event %v: %v", p.event, err)
		return
	}
	d.Issue(cmd)
	p.q.ctrl.EndRenderPass(ctx, cmd)
	copies()
}
