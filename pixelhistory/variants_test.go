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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gviegas/scene/driver"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

func TestPixelScissor(t *testing.T) {
	vp := driver.Viewport{X: 0, Y: 0, Width: 4, Height: 4, Zfar: 1}
	for _, test := range []struct {
		name string
		x, y int
		vp   driver.Viewport
		want driver.Scissor
	}{
		{"inside", 1, 2, vp, driver.Scissor{X: 1, Y: 2, Width: 1, Height: 1}},
		{"outside x", 4, 0, vp, driver.Scissor{}},
		{"outside y", 0, -1, vp, driver.Scissor{}},
		{"offset viewport", 2, 2, driver.Viewport{X: 2, Y: 2, Width: 2, Height: 2}, driver.Scissor{X: 2, Y: 2, Width: 1, Height: 1}},
		{"inverted viewport", 1, 1, driver.Viewport{X: 0, Y: 4, Width: 4, Height: -4}, driver.Scissor{X: 1, Y: 1, Width: 1, Height: 1}},
		{"outside inverted", 1, 5, driver.Viewport{X: 0, Y: 4, Width: 4, Height: -4}, driver.Scissor{}},
	} {
		if got := pixelScissor(test.x, test.y, test.vp); got != test.want {
			t.Errorf("%s: got %+v, want %+v", test.name, got, test.want)
		}
	}
}

func TestIntersectScissors(t *testing.T) {
	a := driver.Scissor{X: 0, Y: 0, Width: 4, Height: 4}
	b := driver.Scissor{X: 2, Y: 1, Width: 4, Height: 4}
	if got, want := intersectScissors(a, b), (driver.Scissor{X: 2, Y: 1, Width: 2, Height: 3}); got != want {
		t.Errorf("overlap: got %+v, want %+v", got, want)
	}
	c := driver.Scissor{X: 8, Y: 8, Width: 2, Height: 2}
	if got, want := intersectScissors(a, c), (driver.Scissor{X: 8, Y: 8}); got != want {
		t.Errorf("disjoint: got %+v, want %+v", got, want)
	}
}

func TestPixelScissors(t *testing.T) {
	q := &query{
		req:    &Request{X: 1, Y: 1},
		target: replay.ImageDescription{Extent: driver.Dim3D{Width: 8, Height: 8, Depth: 1}},
	}
	st := &replay.RenderState{
		Viewports: []driver.Viewport{
			{Width: 4, Height: 4, Zfar: 1},
			{X: 4, Width: 4, Height: 4, Zfar: 1},
		},
		// Recorded scissors must not narrow the result.
		Scissors: []driver.Scissor{{X: 3, Y: 3, Width: 1, Height: 1}},
	}
	got := q.pixelScissors(st)
	want := []driver.Scissor{
		{X: 1, Y: 1, Width: 1, Height: 1},
		{}, // pixel outside the second viewport
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pixelScissors mismatch (-want +got):\n%s", diff)
	}

	// No viewports: the target extent stands in.
	got = q.pixelScissors(&replay.RenderState{})
	want = []driver.Scissor{{X: 1, Y: 1, Width: 1, Height: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("default viewport mismatch (-want +got):\n%s", diff)
	}
}

// TestCountingVariantMasksColorWrites checks that the fragment counting
// redraws cannot write into the live color attachments: they run after
// the post-modification copy, so any write would leak into later events.
func TestCountingVariantMasksColorWrites(t *testing.T) {
	ctx := log.Testing(t)
	env := &fakeEnv{t: t, target: &fakeImage{}}
	res := scenarioResourcesIR(env)
	pipe := res.pipelines[scnPipePass]
	pipe.Blend.Color = []driver.ColorBlend{{WriteMask: driver.CAll}}
	res.pipelines[scnPipePass] = pipe

	q := newQuery(scenarioController(env), &fakeDevice{env: env}, res, &Request{Target: scnTarget, X: 1, Y: 1, Sample: -1})
	q.target, _ = res.Image(scnTarget)
	q.aux = &auxResources{
		color:     &fakeImage{},
		colorView: &fakeImageView{},
		ds:        &fakeImage{},
		dsView:    &fakeImageView{},
	}

	st := &replay.RenderState{
		Pipeline:    scnPipePass,
		RenderPass:  scnPass,
		Framebuffer: scnFB,
		Viewports:   []driver.Viewport{{Width: 4, Height: 4, Zfar: 1}},
		Scissors:    []driver.Scissor{{Width: 4, Height: 4}},
	}
	p, err := q.variantPipeline(ctx, st, countVariant|varFixedColor)
	if err != nil {
		t.Fatalf("variantPipeline: %v", err)
	}
	desc := p.(*fakePipeline).desc
	for i, cb := range desc.Blend.Color {
		if cb.WriteMask != 0 {
			t.Errorf("color attachment %d still writes (mask %#x)", i, cb.WriteMask)
		}
	}
	// The stencil counting program must survive the masking.
	if !desc.DS.StencilTest || desc.DS.Front.Pass != driver.SIncClamp {
		t.Error("stencil counting ops lost")
	}
	if got := res.pipelines[scnPipePass].Blend.Color[0].WriteMask; got != driver.CAll {
		t.Errorf("recorded write mask mutated to %#x", got)
	}
}
