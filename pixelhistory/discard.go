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

// discardVariant disables every pipeline test but keeps the original
// fragment shader (side effects stripped, discards intact), so a zero
// sample count can only mean the shader discarded.
const discardVariant = varDisableCulling | varDisableDepthTest |
	varDisableStencilTest | varDisableDepthBounds | varScissorToPixel |
	varSampleMaskAll | varStripped | varNoWrites

// discardSuspect is a fragment that may have been discarded by its
// shader: its draw rasterized more fragments than survived the original
// shader.
type discardSuspect struct {
	frag      int
	primitive int32
}

type suspectKey struct {
	event replay.EventID
	frag  int
}

// discardPass redraws each suspect's primitive alone, with all tests
// disabled, under an occlusion query to confirm which fragments the
// shader discarded.
type discardPass struct {
	replay.NopCallbacks
	q        *query
	suspects map[replay.EventID][]discardSuspect
	queries  map[suspectKey]int
	next     int
	pool     replay.QueryPool
	aliases  map[replay.EventID]replay.EventID
}

func newDiscardPass(ctx context.Context, q *query, suspects map[replay.EventID][]discardSuspect) (*discardPass, error) {
	p := &discardPass{
		q:        q,
		suspects: suspects,
		queries:  map[suspectKey]int{},
		aliases:  map[replay.EventID]replay.EventID{},
	}
	n := 0
	for _, ss := range suspects {
		n += len(ss)
	}
	if n == 0 {
		return p, nil
	}
	pool, err := q.dev.NewOcclusionPool(ctx, n)
	if err != nil {
		return nil, errors.Wrap(err, "creating discard query pool")
	}
	p.pool = pool
	return p, nil
}

func (p *discardPass) destroy() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}

func (p *discardPass) AliasEvent(ctx context.Context, primary, alias replay.EventID) {
	p.aliases[alias] = primary
}

func (p *discardPass) PreDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	suspects := p.suspects[ev]
	if len(suspects) == 0 {
		return
	}
	d, ok := p.q.ctrl.Draw(ev)
	if !ok {
		log.W(ctx, "no draw description for event %v, skipping discard check", ev)
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

	pipe, err := p.q.variantPipeline(ctx, st, discardVariant)
	if err != nil {
		log.W(ctx, "no discard variant for event %v: %v", ev, err)
		return
	}
	st.PipelineOverride = pipe
	if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
		log.W(ctx, "binding discard variant for event %v: %v", ev, err)
		return
	}

	for _, s := range suspects {
		if s.primitive < 0 {
			log.W(ctx, "fragment %d of event %v has no primitive, discard unconfirmed", s.frag, ev)
			continue
		}
		prim := d.Primitive(int(s.primitive))
		idx := p.next
		if idx >= p.pool.Count() {
			log.E(ctx, "discard query pool exhausted at event %v", ev)
			return
		}
		p.next++
		cmd.BeginQuery(p.pool, idx, false)
		prim.Issue(cmd)
		cmd.EndQuery(p.pool, idx)
		p.queries[suspectKey{ev, s.frag}] = idx
	}
}

// results returns whether each confirmed suspect was discarded. It must
// be called after the replay completed.
func (p *discardPass) results(ctx context.Context) (map[suspectKey]bool, error) {
	out := map[suspectKey]bool{}
	if p.pool == nil {
		return out, nil
	}
	counts, err := p.pool.Results(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading discard results")
	}
	for key, idx := range p.queries {
		if idx < len(counts) {
			out[key] = counts[idx] == 0
		}
	}
	// Collected separately: inserting while ranging over out would make
	// the expansion order-dependent.
	aliased := map[suspectKey]bool{}
	for alias, primary := range p.aliases {
		for key, v := range out {
			if key.event == primary {
				aliased[suspectKey{alias, key.frag}] = v
			}
		}
	}
	for key, v := range aliased {
		out[key] = v
	}
	return out, nil
}
