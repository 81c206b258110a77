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

	"github.com/pkg/errors"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// occlusionVariant is the pipeline mutation for the candidate filter:
// every rejection that is not inherent to the draw itself is disabled,
// so the query counts samples the draw could possibly have produced at
// the pixel.
const occlusionVariant = varDisableCulling | varDisableDepthTest |
	varDisableStencilTest | varDisableDepthBounds | varScissorToPixel |
	varSampleMaskAll | varFixedColor

// occlusionPass replays every candidate draw once under an occlusion
// query to filter out draws that cannot touch the queried pixel.
type occlusionPass struct {
	replay.NopCallbacks
	q       *query
	queries map[replay.EventID]int
	pool    replay.QueryPool
	aliases map[replay.EventID]replay.EventID
}

func newOcclusionPass(ctx context.Context, q *query) (*occlusionPass, error) {
	p := &occlusionPass{
		q:       q,
		queries: map[replay.EventID]int{},
		aliases: map[replay.EventID]replay.EventID{},
	}
	for _, eu := range q.req.Events {
		if eu.Usage == replay.UsageDraw {
			p.queries[eu.Event] = len(p.queries)
		}
	}
	if len(p.queries) == 0 {
		return p, nil
	}
	pool, err := q.dev.NewOcclusionPool(ctx, len(p.queries))
	if err != nil {
		return nil, errors.Wrap(err, "creating occlusion pool")
	}
	p.pool = pool
	return p, nil
}

func (p *occlusionPass) destroy() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}

func (p *occlusionPass) PreDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	idx, ok := p.queries[ev]
	if !ok {
		return
	}
	d, ok := p.q.ctrl.Draw(ev)
	if !ok {
		log.W(ctx, "no draw description for event %v, keeping it as a candidate", ev)
		delete(p.queries, ev)
		return
	}

	st := p.q.ctrl.State()
	prev := st.Clone()
	defer func() {
		*st = prev
		if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
			log.E(ctx, "restoring state after event %v: %v", ev, err)
		}
	}()

	pipe, err := p.q.variantPipeline(ctx, st, occlusionVariant)
	if err != nil {
		log.W(ctx, "no occlusion variant for event %v: %v", ev, err)
		delete(p.queries, ev)
		return
	}
	st.PipelineOverride = pipe
	if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
		log.W(ctx, "binding occlusion variant for event %v: %v", ev, err)
		return
	}
	cmd.BeginQuery(p.pool, idx, false)
	d.Issue(cmd)
	cmd.EndQuery(p.pool, idx)
}

func (p *occlusionPass) AliasEvent(ctx context.Context, primary, alias replay.EventID) {
	p.aliases[alias] = primary
}

// results returns the sample count per candidate draw. It must be
// called after the replay completed.
func (p *occlusionPass) results(ctx context.Context) (map[replay.EventID]uint64, error) {
	out := map[replay.EventID]uint64{}
	if p.pool == nil {
		return out, nil
	}
	counts, err := p.pool.Results(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading occlusion results")
	}
	for ev, idx := range p.queries {
		if idx < len(counts) {
			out[ev] = counts[idx]
		}
	}
	for alias, primary := range p.aliases {
		if n, ok := out[primary]; ok {
			out[alias] = n
		}
	}
	return out, nil
}
