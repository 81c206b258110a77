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
	"github.com/gfxreplay/gfxreplay/shader"
)

// query holds the state shared by the replay passes of one pixel
// history computation: the collaborators, the queried pixel, the aux
// resources and the caches of instrumented pipeline and render pass
// variants.
type query struct {
	ctrl    replay.Controller
	dev     replay.Device
	res     replay.Resources
	shaders *shader.Cache
	req     *Request

	target replay.ImageDescription
	aux    *auxResources

	// readback receives the per-event records; ordinals maps selected
	// events to their record slot.
	readback driver.Buffer
	ordinals map[replay.EventID]int

	pipes map[pipeKey]driver.Pipeline
	rps   map[rpKey]passVariant
}

// variantFlags selects the mutations applied to a recorded pipeline.
type variantFlags uint32

const (
	varDisableCulling variantFlags = 1 << iota
	varDisableDepthTest
	varDisableStencilTest
	varDisableDepthBounds
	// varScissorToPixel narrows every scissor to the queried pixel,
	// intersected with the recorded scissor.
	varScissorToPixel
	varSampleMaskAll
	// Fragment shader substitutions.
	varFixedColor
	varPrimitiveID
	varStripped
	// varStencilCount makes every rasterized fragment increment the
	// stencil value; varStencilMatch additionally restricts passing
	// fragments to those whose arrival index equals the dynamic
	// stencil reference.
	varStencilCount
	varStencilMatch
	// varNoWrites masks out all color, depth and stencil writes so a
	// redraw leaves the attachments untouched. varNoColorWrites masks
	// only the color writes, keeping the stencil ops intact for the
	// counting redraws.
	varNoWrites
	varNoColorWrites
	// Pass retargeting.
	varAuxPass
	varFragPass
)

type pipeKey struct {
	pipeline    replay.PipelineID
	renderPass  replay.RenderPassID
	framebuffer replay.FramebufferID
	flags       variantFlags
}

type rpKind int

const (
	// rpCapture keeps the recorded attachments, demotes all load
	// operations to loads and substitutes the aux depth/stencil.
	rpCapture rpKind = iota
	// rpFragments renders to the aux color and depth/stencil only.
	rpFragments
)

type rpKey struct {
	pass    replay.RenderPassID
	fb      replay.FramebufferID
	subpass int
	kind    rpKind
}

// passVariant is an instrumented render pass with its framebuffer.
type passVariant struct {
	pass driver.RenderPass
	fb   driver.Framebuf
	// dsIndex is the attachment index of the aux depth/stencil.
	dsIndex int
}

func newQuery(ctrl replay.Controller, dev replay.Device, res replay.Resources, req *Request) *query {
	return &query{
		ctrl:     ctrl,
		dev:      dev,
		res:      res,
		shaders:  shader.NewCache(dev, res),
		req:      req,
		ordinals: map[replay.EventID]int{},
		pipes:    map[pipeKey]driver.Pipeline{},
		rps:      map[rpKey]passVariant{},
	}
}

// release destroys everything the query created, in reverse dependency
// order.
func (q *query) release(ctx context.Context) {
	for _, p := range q.pipes {
		p.Destroy()
	}
	q.pipes = map[pipeKey]driver.Pipeline{}
	for _, v := range q.rps {
		v.fb.Destroy()
		v.pass.Destroy()
	}
	q.rps = map[rpKey]passVariant{}
	q.shaders.Release(ctx)
	if q.readback != nil {
		q.readback.Destroy()
		q.readback = nil
	}
	if q.aux != nil {
		q.aux.destroy()
		q.aux = nil
	}
}

func (q *query) sample() int {
	if q.req.Sample < 0 {
		return 0
	}
	return q.req.Sample
}

func (q *query) recordOffset(ev replay.EventID) (int64, bool) {
	ord, ok := q.ordinals[ev]
	return int64(ord) * eventRecordSize, ok
}

// pixelScissor returns a scissor covering exactly the queried pixel, or
// an empty scissor when the pixel lies outside the viewport. Inverted
// viewports (negative height) are normalized first.
func pixelScissor(x, y int, vp driver.Viewport) driver.Scissor {
	x0, y0 := vp.X, vp.Y
	w, h := vp.Width, vp.Height
	if h < 0 {
		y0, h = vp.Y+vp.Height, -vp.Height
	}
	fx, fy := float32(x), float32(y)
	if fx < x0 || fy < y0 || fx >= x0+w || fy >= y0+h {
		return driver.Scissor{}
	}
	return driver.Scissor{X: x, Y: y, Width: 1, Height: 1}
}

// intersectScissors returns the intersection of a and b. A zero-area
// result keeps its position for debuggability.
func intersectScissors(a, b driver.Scissor) driver.Scissor {
	x0 := max(a.X, b.X)
	y0 := max(a.Y, b.Y)
	x1 := min(a.X+a.Width, b.X+b.Width)
	y1 := min(a.Y+a.Height, b.Y+b.Height)
	if x1 <= x0 || y1 <= y0 {
		return driver.Scissor{X: x0, Y: y0}
	}
	return driver.Scissor{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// pixelScissors computes the per-viewport pixel scissors for the current
// state. The recorded scissors are deliberately ignored: the scissor
// test is diagnosed separately, so instrumented redraws must not let it
// mask the pixel.
func (q *query) pixelScissors(st *replay.RenderState) []driver.Scissor {
	n := max(len(st.Viewports), 1)
	out := make([]driver.Scissor, n)
	for i := range out {
		vp := driver.Viewport{Width: float32(q.target.Extent.Width), Height: float32(q.target.Extent.Height)}
		if i < len(st.Viewports) {
			vp = st.Viewports[i]
		}
		out[i] = pixelScissor(q.req.X, q.req.Y, vp)
	}
	return out
}

// targetColorIndex returns the color output location writing to the
// queried image in the current subpass, or 0 when it cannot be found.
func (q *query) targetColorIndex(ctx context.Context, st *replay.RenderState) int {
	fb, okF := q.res.Framebuffer(st.Framebuffer)
	rp, okR := q.res.RenderPass(st.RenderPass)
	if !okF || !okR || st.Subpass >= len(rp.Subpasses) {
		return 0
	}
	for loc, att := range rp.Subpasses[st.Subpass].Color {
		if att < 0 || att >= len(fb.Attachments) {
			continue
		}
		if vd, ok := q.res.ImageView(fb.Attachments[att]); ok && vd.Image == q.req.Target {
			return loc
		}
	}
	log.W(ctx, "target %v not found among subpass color attachments, assuming location 0", q.req.Target)
	return 0
}

// variantPipeline returns (building if needed) the pipeline variant of
// the currently bound pipeline with the given mutations.
func (q *query) variantPipeline(ctx context.Context, st *replay.RenderState, flags variantFlags) (driver.Pipeline, error) {
	key := pipeKey{st.Pipeline, st.RenderPass, st.Framebuffer, flags}
	if p, ok := q.pipes[key]; ok {
		return p, nil
	}
	desc, ok := q.res.Pipeline(st.Pipeline)
	if !ok {
		return nil, errors.Errorf("pipeline %v not found", st.Pipeline)
	}

	if flags&varScissorToPixel != 0 {
		live := *st
		if !desc.DynamicScissor {
			live.Scissors = desc.Scissors
		}
		if len(desc.Viewports) > 0 {
			live.Viewports = desc.Viewports
		}
		desc.Scissors = q.pixelScissors(&live)
		desc.DynamicScissor = false
	}
	if flags&varDisableCulling != 0 {
		desc.Raster.Cull = driver.CNone
	}
	if flags&varDisableDepthTest != 0 {
		desc.DS.DepthTest = false
		desc.DS.DepthWrite = false
	}
	if flags&varDisableStencilTest != 0 {
		desc.DS.StencilTest = false
	}
	if flags&varDisableDepthBounds != 0 {
		desc.DepthBoundsTest = false
	}
	if flags&varSampleMaskAll != 0 {
		desc.SampleMask = ^uint32(0)
	}
	if flags&(varStencilCount|varStencilMatch) != 0 {
		cmp := driver.CAlways
		if flags&varStencilMatch != 0 {
			cmp = driver.CEqual
		}
		face := driver.StencilT{
			DSFail:    [2]driver.StencilOp{driver.SIncClamp, driver.SIncClamp},
			Pass:      driver.SIncClamp,
			ReadMask:  0xff,
			WriteMask: 0xff,
			Cmp:       cmp,
		}
		desc.DS.StencilTest = true
		desc.DS.Front, desc.DS.Back = face, face
		desc.DynamicStencilRef = true
	}

	if flags&(varNoWrites|varNoColorWrites) != 0 {
		desc.Blend.Color = append([]driver.ColorBlend(nil), desc.Blend.Color...)
		for i := range desc.Blend.Color {
			desc.Blend.Color[i].WriteMask = 0
		}
	}
	if flags&varNoWrites != 0 {
		desc.DS.DepthWrite = false
		for _, face := range []*driver.StencilT{&desc.DS.Front, &desc.DS.Back} {
			face.DSFail = [2]driver.StencilOp{driver.SKeep, driver.SKeep}
			face.Pass = driver.SKeep
			face.WriteMask = 0
		}
	}

	sh, err := q.variantShaders(ctx, &desc, st, flags)
	if err != nil {
		return nil, err
	}

	var pass driver.RenderPass
	switch {
	case flags&varAuxPass != 0:
		v, err := q.passVariant(ctx, st, rpCapture)
		if err != nil {
			return nil, err
		}
		pass = v.pass
	case flags&varFragPass != 0:
		v, err := q.passVariant(ctx, st, rpFragments)
		if err != nil {
			return nil, err
		}
		pass = v.pass
	}

	p, err := q.dev.NewPipeline(ctx, desc, sh, pass)
	if err != nil {
		return nil, errors.Wrapf(err, "creating pipeline variant %#x of %v", flags, st.Pipeline)
	}
	q.pipes[key] = p
	return p, nil
}

// variantShaders resolves the shader objects for a pipeline variant:
// the vertex shader with side effects stripped, and the fragment shader
// selected by the variant flags.
func (q *query) variantShaders(ctx context.Context, desc *replay.PipelineDescription, st *replay.RenderState, flags variantFlags) (replay.PipelineShaders, error) {
	sh := replay.PipelineShaders{
		VertexEntry:   desc.VertexStage.Entry,
		FragmentEntry: desc.FragmentStage.Entry,
	}

	vert, ok := q.res.ShaderHandle(desc.VertexStage.Shader)
	if !ok {
		return sh, errors.Errorf("vertex shader %v not found", desc.VertexStage.Shader)
	}
	if code, err := q.shaders.WithoutSideEffects(ctx, desc.VertexStage.Shader, desc.VertexStage.Entry); err == nil && code != nil {
		vert = code
	}
	sh.Vertex = vert

	switch {
	case flags&varFixedColor != 0:
		loc := 0
		if flags&varFragPass == 0 {
			loc = q.targetColorIndex(ctx, st)
		}
		code, err := q.shaders.FixedColor(ctx, loc)
		if err != nil {
			return sh, err
		}
		sh.Fragment, sh.FragmentEntry = code, "main"
	case flags&varPrimitiveID != 0:
		code, err := q.shaders.PrimitiveID(ctx, 0)
		if err != nil {
			return sh, err
		}
		sh.Fragment, sh.FragmentEntry = code, "main"
	case flags&varStripped != 0 && desc.FragmentStage.Shader != 0:
		frag, ok := q.res.ShaderHandle(desc.FragmentStage.Shader)
		if !ok {
			return sh, errors.Errorf("fragment shader %v not found", desc.FragmentStage.Shader)
		}
		if code, err := q.shaders.WithoutSideEffects(ctx, desc.FragmentStage.Shader, desc.FragmentStage.Entry); err == nil && code != nil {
			frag = code
		}
		sh.Fragment = frag
	case desc.FragmentStage.Shader != 0:
		frag, ok := q.res.ShaderHandle(desc.FragmentStage.Shader)
		if !ok {
			return sh, errors.Errorf("fragment shader %v not found", desc.FragmentStage.Shader)
		}
		sh.Fragment = frag
	}
	return sh, nil
}

// passVariant returns (building if needed) the render pass variant for
// the current state.
func (q *query) passVariant(ctx context.Context, st *replay.RenderState, kind rpKind) (passVariant, error) {
	key := rpKey{st.RenderPass, st.Framebuffer, st.Subpass, kind}
	if v, ok := q.rps[key]; ok {
		return v, nil
	}
	var v passVariant
	var err error
	switch kind {
	case rpCapture:
		v, err = q.buildCaptureVariant(ctx, st)
	case rpFragments:
		v, err = q.buildFragmentsVariant(ctx, st)
	}
	if err != nil {
		return passVariant{}, err
	}
	q.rps[key] = v
	return v, nil
}

// buildCaptureVariant rebuilds the current render pass with every load
// operation demoted to a load, every store enabled, and the aux
// depth/stencil image in place of (or appended to) the recorded one.
// Only the current subpass is kept.
func (q *query) buildCaptureVariant(ctx context.Context, st *replay.RenderState) (passVariant, error) {
	rp, ok := q.res.RenderPass(st.RenderPass)
	if !ok {
		return passVariant{}, errors.Errorf("render pass %v not found", st.RenderPass)
	}
	fb, ok := q.res.Framebuffer(st.Framebuffer)
	if !ok {
		return passVariant{}, errors.Errorf("framebuffer %v not found", st.Framebuffer)
	}
	if st.Subpass >= len(rp.Subpasses) {
		return passVariant{}, errors.Errorf("subpass %d out of range", st.Subpass)
	}
	sp := rp.Subpasses[st.Subpass]

	desc := replay.RenderPassDescription{
		Attachments: make([]replay.AttachmentDescription, len(rp.Attachments)),
	}
	views := make([]driver.ImageView, len(fb.Attachments))
	for i, att := range rp.Attachments {
		att.Load = [2]driver.LoadOp{driver.LLoad, driver.LLoad}
		att.Store = [2]driver.StoreOp{driver.SStore, driver.SStore}
		desc.Attachments[i] = att
		view, ok := q.res.ImageViewHandle(fb.Attachments[i])
		if !ok {
			return passVariant{}, errors.Errorf("image view %v not found", fb.Attachments[i])
		}
		views[i] = view
	}

	dsIndex := sp.DepthStencil
	if dsIndex >= 0 && dsIndex < len(desc.Attachments) {
		desc.Attachments[dsIndex].Format = driver.D32fS8ui
		// The aux image starts undefined, so the first use must not
		// load garbage depth.
		desc.Attachments[dsIndex].Load = [2]driver.LoadOp{driver.LClear, driver.LClear}
		views[dsIndex] = q.aux.dsView
	} else {
		dsIndex = len(desc.Attachments)
		desc.Attachments = append(desc.Attachments, replay.AttachmentDescription{
			Format:  driver.D32fS8ui,
			Samples: q.target.Samples,
			Load:    [2]driver.LoadOp{driver.LClear, driver.LClear},
			Store:   [2]driver.StoreOp{driver.SStore, driver.SStore},
		})
		views = append(views, q.aux.dsView)
	}
	desc.Subpasses = []replay.SubpassDescription{{
		Color:        sp.Color,
		DepthStencil: dsIndex,
	}}

	return q.buildVariantObjects(ctx, desc, views, fb.Width, fb.Height, fb.Layers, dsIndex)
}

// buildFragmentsVariant builds the render pass rendering to the aux
// color and depth/stencil images only.
func (q *query) buildFragmentsVariant(ctx context.Context, st *replay.RenderState) (passVariant, error) {
	w, h := q.target.Extent.Width, q.target.Extent.Height
	if fb, ok := q.res.Framebuffer(st.Framebuffer); ok {
		w, h = fb.Width, fb.Height
	}
	desc := replay.RenderPassDescription{
		Attachments: []replay.AttachmentDescription{
			{
				Format:  driver.RGBA32f,
				Samples: q.target.Samples,
				Load:    [2]driver.LoadOp{driver.LClear, driver.LClear},
				Store:   [2]driver.StoreOp{driver.SStore, driver.SStore},
			},
			{
				Format:  driver.D32fS8ui,
				Samples: q.target.Samples,
				Load:    [2]driver.LoadOp{driver.LClear, driver.LClear},
				Store:   [2]driver.StoreOp{driver.SStore, driver.SStore},
			},
		},
		Subpasses: []replay.SubpassDescription{{Color: []int{0}, DepthStencil: 1}},
	}
	views := []driver.ImageView{q.aux.colorView, q.aux.dsView}
	return q.buildVariantObjects(ctx, desc, views, w, h, 1, 1)
}

func (q *query) buildVariantObjects(ctx context.Context, desc replay.RenderPassDescription, views []driver.ImageView, w, h, layers, dsIndex int) (passVariant, error) {
	pass, err := q.dev.NewRenderPass(ctx, desc)
	if err != nil {
		return passVariant{}, errors.Wrap(err, "creating render pass variant")
	}
	fb, err := q.dev.NewFramebuffer(ctx, pass, views, w, h, layers)
	if err != nil {
		pass.Destroy()
		return passVariant{}, errors.Wrap(err, "creating framebuffer variant")
	}
	return passVariant{pass: pass, fb: fb, dsIndex: dsIndex}, nil
}

// copyTargetPixel records a copy of the queried pixel's color into buf.
// Must be recorded outside a render pass.
func (q *query) copyTargetPixel(ctx context.Context, cmd replay.CommandBuffer, buf driver.Buffer, off int64) {
	img, ok := q.res.ImageHandle(q.req.Target)
	if !ok {
		log.W(ctx, "target image %v has no live handle, skipping copy", q.req.Target)
		return
	}
	cmd.CopyPixel(img, replay.AspectColor, q.req.Slice, q.req.Mip, q.req.X, q.req.Y, q.sample(), buf, off)
}

// copyDepthPixel records copies of the bound depth target's depth and
// stencil at the queried pixel.
func (q *query) copyDepthPixel(ctx context.Context, cmd replay.CommandBuffer, depth replay.ImageID, buf driver.Buffer, off int64) {
	if depth == 0 {
		return
	}
	img, ok := q.res.ImageHandle(depth)
	if !ok {
		log.W(ctx, "depth image %v has no live handle, skipping copy", depth)
		return
	}
	desc, ok := q.res.Image(depth)
	if !ok {
		return
	}
	cmd.CopyPixel(img, replay.AspectDepth, q.req.Slice, 0, q.req.X, q.req.Y, q.sample(), buf, off+valueDepthOffset)
	if hasStencil(desc.Format) {
		cmd.CopyPixel(img, replay.AspectStencil, q.req.Slice, 0, q.req.X, q.req.Y, q.sample(), buf, off+valueStencilOff)
	}
}

// copyAuxStencil records a copy of the aux stencil at the queried pixel.
func (q *query) copyAuxStencil(cmd replay.CommandBuffer, buf driver.Buffer, off int64) {
	cmd.CopyPixel(q.aux.ds, replay.AspectStencil, 0, 0, q.req.X, q.req.Y, q.sample(), buf, off)
}

// copyAuxDepth records a copy of the aux depth at the queried pixel.
func (q *query) copyAuxDepth(cmd replay.CommandBuffer, buf driver.Buffer, off int64) {
	cmd.CopyPixel(q.aux.ds, replay.AspectDepth, 0, 0, q.req.X, q.req.Y, q.sample(), buf, off)
}

// copyAuxColor records a copy of the aux color at the queried pixel into
// buf (the aux image is always RGBA32f).
func (q *query) copyAuxColor(cmd replay.CommandBuffer, buf driver.Buffer, off int64) {
	cmd.CopyPixel(q.aux.color, replay.AspectColor, 0, 0, q.req.X, q.req.Y, q.sample(), buf, off)
}

func hasStencil(f driver.PixelFmt) bool {
	switch f {
	case driver.S8ui, driver.D24unS8ui, driver.D32fS8ui:
		return true
	}
	return false
}

func hasDepth(f driver.PixelFmt) bool {
	switch f {
	case driver.D16un, driver.D32f, driver.D24unS8ui, driver.D32fS8ui:
		return true
	}
	return false
}
