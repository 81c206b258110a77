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
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/naga/ir"
	"github.com/gviegas/scene/driver"

	"github.com/gfxreplay/gfxreplay/replay"
)

// The fakes embed the interfaces they stand in for; only the methods the
// passes exercise are implemented.

type fakeCode struct{ driver.ShaderCode }

func (*fakeCode) Destroy() {}

type fakePipeline struct {
	driver.Pipeline
	desc replay.PipelineDescription
}

func (*fakePipeline) Destroy() {}

type fakeRenderPass struct{ driver.RenderPass }

func (*fakeRenderPass) Destroy() {}

type fakeFramebuf struct{ driver.Framebuf }

func (*fakeFramebuf) Destroy() {}

type fakeImageView struct{ driver.ImageView }

func (*fakeImageView) Destroy() {}

type fakeImage struct{ driver.Image }

func (*fakeImage) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	return &fakeImageView{}, nil
}

func (*fakeImage) Destroy() {}

type fakeBuffer struct {
	driver.Buffer
	data []byte
}

func (b *fakeBuffer) Bytes() []byte { return b.data }
func (*fakeBuffer) Destroy()        {}

type fakePool struct {
	count  int
	counts []uint64
}

func (p *fakePool) Count() int { return p.count }

func (p *fakePool) Results(context.Context) ([]uint64, error) {
	out := make([]uint64, p.count)
	copy(out, p.counts)
	return out, nil
}

func (*fakePool) Destroy() {}

// fakeEnv scripts what the GPU would produce: pixel values per readback
// copy (in issue order, per image and aspect) and sample counts per
// query pool (in creation order).
type fakeEnv struct {
	t *testing.T

	target   *fakeImage
	auxColor *fakeImage
	auxDS    *fakeImage

	targetVals   [][]byte
	auxColorVals [][]byte
	auxStencil   []uint8
	auxDepth     []float32

	poolCounts [][]uint64
}

func (e *fakeEnv) popTarget() []byte {
	e.t.Helper()
	if len(e.targetVals) == 0 {
		e.t.Fatal("unexpected target color copy")
	}
	v := e.targetVals[0]
	e.targetVals = e.targetVals[1:]
	return v
}

func (e *fakeEnv) popAuxColor() []byte {
	e.t.Helper()
	if len(e.auxColorVals) == 0 {
		e.t.Fatal("unexpected aux color copy")
	}
	v := e.auxColorVals[0]
	e.auxColorVals = e.auxColorVals[1:]
	return v
}

func (e *fakeEnv) popStencil() uint8 {
	e.t.Helper()
	if len(e.auxStencil) == 0 {
		e.t.Fatal("unexpected aux stencil copy")
	}
	v := e.auxStencil[0]
	e.auxStencil = e.auxStencil[1:]
	return v
}

func (e *fakeEnv) popDepth() float32 {
	e.t.Helper()
	if len(e.auxDepth) == 0 {
		e.t.Fatal("unexpected aux depth copy")
	}
	v := e.auxDepth[0]
	e.auxDepth = e.auxDepth[1:]
	return v
}

type fakeDevice struct {
	replay.Device
	env    *fakeEnv
	images int
	pools  int
}

func (d *fakeDevice) NewRenderPass(context.Context, replay.RenderPassDescription) (driver.RenderPass, error) {
	return &fakeRenderPass{}, nil
}

func (d *fakeDevice) NewFramebuffer(context.Context, driver.RenderPass, []driver.ImageView, int, int, int) (driver.Framebuf, error) {
	return &fakeFramebuf{}, nil
}

func (d *fakeDevice) NewPipeline(_ context.Context, desc replay.PipelineDescription, _ replay.PipelineShaders, _ driver.RenderPass) (driver.Pipeline, error) {
	return &fakePipeline{desc: desc}, nil
}

func (d *fakeDevice) NewShaderCode(context.Context, []byte) (driver.ShaderCode, error) {
	return &fakeCode{}, nil
}

func (d *fakeDevice) NewImage(context.Context, driver.PixelFmt, driver.Dim3D, int, int, int, driver.Usage) (driver.Image, error) {
	img := &fakeImage{}
	// The aux color image is created first, the depth/stencil second.
	switch d.images {
	case 0:
		d.env.auxColor = img
	case 1:
		d.env.auxDS = img
	}
	d.images++
	return img, nil
}

func (d *fakeDevice) NewReadbackBuffer(_ context.Context, size int64) (driver.Buffer, error) {
	return &fakeBuffer{data: make([]byte, size)}, nil
}

func (d *fakeDevice) NewOcclusionPool(_ context.Context, count int) (replay.QueryPool, error) {
	p := &fakePool{count: count}
	if d.pools < len(d.env.poolCounts) {
		p.counts = d.env.poolCounts[d.pools]
	}
	d.pools++
	return p, nil
}

type fakeCmd struct {
	driver.CmdBuffer
	env *fakeEnv
}

func (*fakeCmd) Draw(vertCount, instCount, baseVert, baseInst int) {}

func (*fakeCmd) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {}

func (*fakeCmd) BeginQuery(pool replay.QueryPool, index int, precise bool) {}

func (*fakeCmd) EndQuery(pool replay.QueryPool, index int) {}

func (*fakeCmd) ClearAttachment(aspect replay.Aspect, att, x, y, width, height int, value driver.ClearValue) {
}

func (c *fakeCmd) CopyPixel(img driver.Image, aspect replay.Aspect, layer, level, x, y, sample int, buf driver.Buffer, off int64) {
	c.env.t.Helper()
	b, ok := buf.(*fakeBuffer)
	if !ok {
		c.env.t.Fatal("CopyPixel into unexpected buffer type")
	}
	switch {
	case img == c.env.target && aspect == replay.AspectColor:
		copy(b.data[off:], c.env.popTarget())
	case img == c.env.auxColor && aspect == replay.AspectColor:
		copy(b.data[off:], c.env.popAuxColor())
	case img == c.env.auxDS && aspect == replay.AspectStencil:
		b.data[off] = c.env.popStencil()
	case img == c.env.auxDS && aspect == replay.AspectDepth:
		binary.LittleEndian.PutUint32(b.data[off:], math.Float32bits(c.env.popDepth()))
	default:
		c.env.t.Fatalf("unexpected CopyPixel of aspect %v", aspect)
	}
}

type fakeEvent struct {
	id    replay.EventID
	usage replay.Usage
	draw  replay.Draw
	state replay.RenderState
}

type fakeController struct {
	events []fakeEvent
	st     replay.RenderState
	cmd    *fakeCmd
}

func (c *fakeController) ReplayRange(ctx context.Context, from, to replay.EventID, cb replay.Callbacks) error {
	for _, e := range c.events {
		if e.id < from || e.id > to {
			continue
		}
		c.st = e.state.Clone()
		if e.usage == replay.UsageDraw {
			cb.PreDraw(ctx, e.id, c.cmd)
			cb.PostDraw(ctx, e.id, c.cmd)
		} else {
			cb.PreMisc(ctx, e.id, c.cmd)
			cb.PostMisc(ctx, e.id, c.cmd)
		}
	}
	return nil
}

func (c *fakeController) Submit(context.Context) error { return nil }
func (c *fakeController) Wait(context.Context) error   { return nil }
func (c *fakeController) State() *replay.RenderState   { return &c.st }

func (c *fakeController) Draw(ev replay.EventID) (replay.Draw, bool) {
	for _, e := range c.events {
		if e.id == ev && e.usage == replay.UsageDraw {
			return e.draw, true
		}
	}
	return replay.Draw{}, false
}

func (c *fakeController) BindState(context.Context, replay.CommandBuffer) error { return nil }

func (c *fakeController) BeginRenderPass(context.Context, replay.CommandBuffer) error { return nil }

func (c *fakeController) EndRenderPass(context.Context, replay.CommandBuffer) {}

type fakeResources struct {
	replay.Resources
	pipelines map[replay.PipelineID]replay.PipelineDescription
	passes    map[replay.RenderPassID]replay.RenderPassDescription
	fbs       map[replay.FramebufferID]replay.FramebufferDescription
	images    map[replay.ImageID]replay.ImageDescription
	views     map[replay.ImageViewID]replay.ImageViewDescription
	modules   map[replay.ShaderID]*ir.Module
	handles   map[replay.ImageID]driver.Image
}

func (r *fakeResources) Pipeline(id replay.PipelineID) (replay.PipelineDescription, bool) {
	d, ok := r.pipelines[id]
	return d, ok
}

func (r *fakeResources) RenderPass(id replay.RenderPassID) (replay.RenderPassDescription, bool) {
	d, ok := r.passes[id]
	return d, ok
}

func (r *fakeResources) Framebuffer(id replay.FramebufferID) (replay.FramebufferDescription, bool) {
	d, ok := r.fbs[id]
	return d, ok
}

func (r *fakeResources) Image(id replay.ImageID) (replay.ImageDescription, bool) {
	d, ok := r.images[id]
	return d, ok
}

func (r *fakeResources) ImageView(id replay.ImageViewID) (replay.ImageViewDescription, bool) {
	d, ok := r.views[id]
	return d, ok
}

func (r *fakeResources) ShaderModule(id replay.ShaderID) (*ir.Module, bool) {
	m, ok := r.modules[id]
	return m, ok
}

func (r *fakeResources) ImageHandle(id replay.ImageID) (driver.Image, bool) {
	img, ok := r.handles[id]
	return img, ok
}

func (r *fakeResources) ImageViewHandle(id replay.ImageViewID) (driver.ImageView, bool) {
	if _, ok := r.views[id]; !ok {
		return nil, false
	}
	return &fakeImageView{}, true
}

func (r *fakeResources) RenderPassHandle(id replay.RenderPassID) (driver.RenderPass, bool) {
	if _, ok := r.passes[id]; !ok {
		return nil, false
	}
	return &fakeRenderPass{}, true
}

func (r *fakeResources) ShaderHandle(id replay.ShaderID) (driver.ShaderCode, bool) {
	if _, ok := r.modules[id]; !ok {
		return nil, false
	}
	return &fakeCode{}, true
}

// vertexModule is a shader with no side effects and no discard.
func vertexModule() *ir.Module {
	return &ir.Module{
		EntryPoints: []ir.EntryPoint{{
			Name:  "main",
			Stage: ir.StageVertex,
			Function: ir.Function{
				Name: "main",
				Body: ir.Block{{Kind: ir.StmtReturn{}}},
			},
		}},
	}
}

// discardModule is a fragment shader that can reach a discard.
func discardModule() *ir.Module {
	return &ir.Module{
		EntryPoints: []ir.EntryPoint{{
			Name:  "main",
			Stage: ir.StageFragment,
			Function: ir.Function{
				Name: "main",
				Body: ir.Block{
					{Kind: ir.StmtIf{Accept: ir.Block{{Kind: ir.StmtKill{}}}}},
					{Kind: ir.StmtReturn{}},
				},
			},
		}},
	}
}
