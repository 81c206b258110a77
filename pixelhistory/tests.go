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
	"github.com/pkg/errors"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// Every diagnosing redraw is confined to the queried pixel, writes
// nothing and runs a discard-free fragment shader, so only the test
// under scrutiny decides the sample count.
const testBase = varFixedColor | varScissorToPixel | varNoWrites

// testRedraws lists the tests that need a redraw to diagnose, in
// pipeline order. Each redraw keeps the test under scrutiny and every
// earlier test enabled as recorded, and disables all later tests, so a
// zero sample count pins the failure on the listed test.
var testRedraws = []struct {
	test  Test
	flags variantFlags
}{
	{TestCulling, varSampleMaskAll | varDisableDepthBounds | varDisableStencilTest | varDisableDepthTest},
	{TestSampleMask, varDisableDepthBounds | varDisableStencilTest | varDisableDepthTest},
	{TestDepthBounds, varDisableStencilTest | varDisableDepthTest},
	{TestStencil, varDisableDepthTest},
	{TestDepth, 0},
}

type eventTest struct {
	event replay.EventID
	test  Test
}

// testDiagnosis is the outcome of the per-test pass for one event.
type testDiagnosis struct {
	flags TestFlags
	// failed is the first test that rejected every fragment, or -1 when
	// all diagnosed tests passed.
	failed Test
}

// testsPass diagnoses, for draws that produced no fragment at the
// pixel, which pipeline test rejected them. Tests that static state
// already decides are not redrawn.
type testsPass struct {
	replay.NopCallbacks
	q       *query
	events  map[replay.EventID]bool
	flags   map[replay.EventID]TestFlags
	queries map[eventTest]int
	next    int
	pool    replay.QueryPool
	aliases map[replay.EventID]replay.EventID
	warned  bool
}

func newTestsPass(ctx context.Context, q *query, events map[replay.EventID]bool) (*testsPass, error) {
	p := &testsPass{
		q:       q,
		events:  events,
		flags:   map[replay.EventID]TestFlags{},
		queries: map[eventTest]int{},
		aliases: map[replay.EventID]replay.EventID{},
	}
	if len(events) == 0 {
		return p, nil
	}
	pool, err := q.dev.NewOcclusionPool(ctx, len(events)*len(testRedraws))
	if err != nil {
		return nil, errors.Wrap(err, "creating test query pool")
	}
	p.pool = pool
	return p, nil
}

func (p *testsPass) destroy() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}

func (p *testsPass) AliasEvent(ctx context.Context, primary, alias replay.EventID) {
	p.aliases[alias] = primary
}

func (p *testsPass) PreDraw(ctx context.Context, ev replay.EventID, cmd replay.CommandBuffer) {
	if !p.events[ev] {
		return
	}
	d, ok := p.q.ctrl.Draw(ev)
	if !ok {
		log.W(ctx, "no draw description for event %v, skipping test diagnosis", ev)
		return
	}
	st := p.q.ctrl.State()
	desc, ok := p.q.res.Pipeline(st.Pipeline)
	if !ok {
		log.W(ctx, "pipeline %v not found, skipping test diagnosis for event %v", st.Pipeline, ev)
		return
	}
	flags := p.staticFlags(ctx, st, desc)
	p.flags[ev] = flags

	prev := st.Clone()
	defer func() {
		*st = prev
		if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
			log.E(ctx, "restoring state after event %v: %v", ev, err)
		}
	}()

	cut := flags.FirstMustFail()
	for _, r := range testRedraws {
		if cut >= 0 && r.test >= cut {
			// Nothing reaches past the first statically failing test.
			break
		}
		if !flags.Enabled(r.test) || flags.MustPass(r.test) {
			continue
		}
		pipe, err := p.q.variantPipeline(ctx, st, testBase|r.flags)
		if err != nil {
			log.W(ctx, "no %v test variant for event %v: %v", r.test, ev, err)
			continue
		}
		idx := p.next
		if idx >= p.pool.Count() {
			log.E(ctx, "test query pool exhausted at event %v", ev)
			return
		}
		p.next++
		st.PipelineOverride = pipe
		if err := p.q.ctrl.BindState(ctx, cmd); err != nil {
			log.W(ctx, "binding %v test variant for event %v: %v", r.test, ev, err)
			continue
		}
		cmd.BeginQuery(p.pool, idx, false)
		d.Issue(cmd)
		cmd.EndQuery(p.pool, idx)
		p.queries[eventTest{ev, r.test}] = idx
	}
}

// staticFlags computes which tests are enabled for the current pipeline
// state, and which of them static state alone already decides.
func (p *testsPass) staticFlags(ctx context.Context, st *replay.RenderState, desc replay.PipelineDescription) TestFlags {
	var f TestFlags

	if desc.Raster.Cull != driver.CNone {
		f = f.WithEnabled(TestCulling)
	}

	// The scissor test is decided entirely by the rects and the pixel.
	f = f.WithEnabled(TestScissor)
	live := *st
	if !desc.DynamicScissor {
		live.Scissors = desc.Scissors
	}
	if len(desc.Viewports) > 0 {
		live.Viewports = desc.Viewports
	}
	inside := false
	for i, s := range p.q.pixelScissors(&live) {
		if i < len(live.Scissors) {
			s = intersectScissors(s, live.Scissors[i])
		}
		if s.Width > 0 && s.Height > 0 {
			inside = true
			break
		}
	}
	if inside {
		f = f.WithMustPass(TestScissor)
	} else {
		f = f.WithMustFail(TestScissor)
	}

	samples := max(desc.Samples, 1)
	full := uint32(1)<<uint(samples) - 1
	mask := desc.SampleMask & full
	if mask != full {
		f = f.WithEnabled(TestSampleMask)
		if mask == 0 {
			f = f.WithMustFail(TestSampleMask)
		} else if p.q.req.Sample >= 0 && mask&(1<<uint(p.q.req.Sample)) == 0 {
			f = f.WithMustFail(TestSampleMask)
		}
	}

	if desc.DepthBoundsTest {
		f = f.WithEnabled(TestDepthBounds)
		if desc.DepthBounds[0] <= 0 && desc.DepthBounds[1] >= 1 {
			f = f.WithMustPass(TestDepthBounds)
		}
	}

	if desc.DS.StencilTest {
		f = f.WithEnabled(TestStencil)
		front, back := desc.DS.Front.Cmp, desc.DS.Back.Cmp
		if front == driver.CNever && back == driver.CNever {
			f = f.WithMustFail(TestStencil)
		}
		if front == driver.CAlways && back == driver.CAlways {
			f = f.WithMustPass(TestStencil)
		}
	}

	if desc.DS.DepthTest {
		f = f.WithEnabled(TestDepth)
		switch desc.DS.DepthCmp {
		case driver.CNever:
			f = f.WithMustFail(TestDepth)
		case driver.CAlways:
			f = f.WithMustPass(TestDepth)
		}
	}

	if desc.FragmentStage.Shader != 0 &&
		p.q.shaders.CanDiscard(desc.FragmentStage.Shader, desc.FragmentStage.Entry) {
		f = f.WithEnabled(TestDiscard)
		if !p.warned && (desc.DS.DepthTest || desc.DS.StencilTest) {
			// Shaders may declare early fragment tests, which would run
			// depth/stencil before the discard. That declaration is not
			// visible here, so the standard late ordering is assumed.
			log.W(ctx, "assuming late depth/stencil tests for discarding shader %v", desc.FragmentStage.Shader)
			p.warned = true
		}
	}

	return f
}

// results returns the diagnosis per event. It must be called after the
// replay completed.
func (p *testsPass) results(ctx context.Context) (map[replay.EventID]testDiagnosis, error) {
	var counts []uint64
	if p.pool != nil {
		var err error
		counts, err = p.pool.Results(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "reading test query results")
		}
	}
	out := map[replay.EventID]testDiagnosis{}
	for ev, flags := range p.flags {
		d := testDiagnosis{flags: flags, failed: -1}
		for t := Test(0); t < testCount; t++ {
			if !flags.Enabled(t) || flags.MustPass(t) {
				continue
			}
			if flags.MustFail(t) {
				d.failed = t
				break
			}
			idx, ok := p.queries[eventTest{ev, t}]
			if !ok || idx >= len(counts) {
				continue
			}
			if counts[idx] == 0 {
				d.failed = t
				break
			}
		}
		out[ev] = d
	}
	for alias, primary := range p.aliases {
		if d, ok := out[primary]; ok {
			out[alias] = d
		}
	}
	return out, nil
}
