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

	"github.com/gfxreplay/gfxreplay/core/fault"
	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

const (
	// ErrTargetNotFound is returned when the request names an image the
	// recorded frame does not contain.
	ErrTargetNotFound = fault.Const("target image not found")
	// ErrOutOfBounds is returned when the pixel coordinates lie outside
	// the selected subresource.
	ErrOutOfBounds = fault.Const("pixel coordinates outside the target subresource")
)

// ComputePixelHistory reconstructs the ordered list of modifications the
// requested pixel went through over req.Events.
//
// A fatal replay failure aborts the computation but still returns the
// history reconstructed so far, alongside the error. Per-event failures
// (missing descriptions, pipeline variants that cannot be built) degrade
// that event's entry and are logged, never fatal.
func ComputePixelHistory(ctx context.Context, ctrl replay.Controller, dev replay.Device, res replay.Resources, req *Request) ([]PixelModification, error) {
	target, ok := res.Image(req.Target)
	if !ok {
		return nil, log.Err(ctx, ErrTargetNotFound, "pixel history")
	}
	if err := validateRequest(req, target); err != nil {
		return nil, log.Err(ctx, err, "pixel history")
	}
	if len(req.Events) == 0 {
		return nil, nil
	}
	if target.Samples > 1 && req.Sample < 0 {
		log.W(ctx, "multisampled target %v queried without a sample, decoding sample 0", req.Target)
	}

	q := newQuery(ctrl, dev, res, req)
	q.target = target
	defer q.release(ctx)

	aux, err := newAuxResources(ctx, dev, target.Extent, target.Samples)
	if err != nil {
		return nil, log.Err(ctx, err, "pixel history")
	}
	q.aux = aux
	q.readback, err = dev.NewReadbackBuffer(ctx, int64(len(req.Events))*eventRecordSize)
	if err != nil {
		return nil, log.Err(ctx, err, "pixel history")
	}

	last := req.Events[len(req.Events)-1].Event

	// Candidate filter: one occlusion query per draw, all tests off.
	occ, err := newOcclusionPass(ctx, q)
	if err != nil {
		return nil, log.Err(ctx, err, "pixel history")
	}
	defer occ.destroy()
	if err := runReplay(ctx, ctrl, last, occ); err != nil {
		return nil, log.Err(ctx, err, "pixel history: candidate filter")
	}
	counts, err := occ.results(ctx)
	if err != nil {
		return nil, log.Err(ctx, err, "pixel history: candidate filter")
	}

	var selected []replay.EventUsage
	for _, eu := range req.Events {
		if eu.Usage == replay.UsageDraw {
			// Draws whose query could not run stay candidates.
			if n, ok := counts[eu.Event]; ok && n == 0 {
				continue
			}
		}
		selected = append(selected, eu)
	}
	if len(selected) == 0 {
		return nil, nil
	}
	for i, eu := range selected {
		q.ordinals[eu.Event] = i
	}

	// Value capture: pre/post pixel values and fragment counts.
	usages := make(map[replay.EventID]replay.Usage, len(selected))
	for _, eu := range selected {
		usages[eu.Event] = eu.Usage
	}
	if err := runReplay(ctx, ctrl, last, newCapturePass(q, usages)); err != nil {
		return nil, log.Err(ctx, err, "pixel history: value capture")
	}
	data := append([]byte(nil), q.readback.Bytes()...)
	recs := make(map[replay.EventID]eventRecord, len(selected))
	for _, eu := range selected {
		recs[eu.Event] = decodeEventRecord(data, q.ordinals[eu.Event])
	}

	a := assembler{
		q:        q,
		selected: selected,
		recs:     recs,
	}

	// Test diagnosis for draws that left no visible trace: either no
	// fragment survived the shader, or the value did not change. The
	// fragment counts cannot expose depth or stencil failures, since
	// counting runs with the depth test disabled.
	needTests := map[replay.EventID]bool{}
	for _, eu := range selected {
		rec := recs[eu.Event]
		if eu.Usage == replay.UsageDraw && (rec.fragsShader == 0 || rec.premod == rec.postmod) {
			needTests[eu.Event] = true
		}
	}
	if len(needTests) > 0 {
		tp, err := newTestsPass(ctx, q, needTests)
		if err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: test diagnosis")
		}
		defer tp.destroy()
		if err := runReplay(ctx, ctrl, last, tp); err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: test diagnosis")
		}
		if a.diag, err = tp.results(ctx); err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: test diagnosis")
		}
	}

	// Per-fragment decomposition. Each draw is replayed on its own, up
	// to the draw, because the redraws mutate the target.
	total := 0
	bases := map[replay.EventID]int{}
	for _, eu := range selected {
		if eu.Usage != replay.UsageDraw {
			continue
		}
		if d, ok := a.diag[eu.Event]; ok && d.failed >= 0 {
			continue
		}
		if n := fragmentCount(recs[eu.Event]); n > 0 {
			bases[eu.Event] = total
			total += n
		}
	}
	if total > 0 {
		fragBuf, err := dev.NewReadbackBuffer(ctx, int64(total)*fragmentRecordSize)
		if err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: fragment decomposition")
		}
		defer fragBuf.Destroy()
		a.bases = bases
		a.unbound = map[replay.EventID]bool{}
		for _, eu := range selected {
			base, ok := bases[eu.Event]
			if !ok {
				continue
			}
			fp := newFragmentsPass(q, eu.Event, fragmentCount(recs[eu.Event]), fragBuf, int64(base)*fragmentRecordSize)
			if err := runReplay(ctx, ctrl, eu.Event, fp); err != nil {
				return a.assemble(ctx), log.Err(ctx, err, "pixel history: fragment decomposition")
			}
			a.unbound[eu.Event] = fp.unbound
		}
		a.fragData = append([]byte(nil), fragBuf.Bytes()...)
	}

	// Discard confirmation for fragments the original shader rejected.
	suspects := map[replay.EventID][]discardSuspect{}
	for ev, base := range bases {
		rec := recs[ev]
		if rec.fragsShader >= rec.fragsPlain {
			continue
		}
		for f := 0; f < fragmentCount(rec); f++ {
			fr := decodeFragmentRecord(a.fragData, base+f)
			suspects[ev] = append(suspects[ev], discardSuspect{frag: f, primitive: fr.primitiveID})
		}
	}
	if len(suspects) > 0 {
		dp, err := newDiscardPass(ctx, q, suspects)
		if err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: discard confirmation")
		}
		defer dp.destroy()
		if err := runReplay(ctx, ctrl, last, dp); err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: discard confirmation")
		}
		if a.discarded, err = dp.results(ctx); err != nil {
			return a.assemble(ctx), log.Err(ctx, err, "pixel history: discard confirmation")
		}
	}

	return a.assemble(ctx), nil
}

func validateRequest(req *Request, target replay.ImageDescription) error {
	if req.Mip < 0 || req.Mip >= target.Levels {
		return errors.WithMessagef(ErrOutOfBounds, "mip %d of %d", req.Mip, target.Levels)
	}
	if req.Slice < 0 || req.Slice >= target.Layers {
		return errors.WithMessagef(ErrOutOfBounds, "slice %d of %d", req.Slice, target.Layers)
	}
	w := max(target.Extent.Width>>uint(req.Mip), 1)
	h := max(target.Extent.Height>>uint(req.Mip), 1)
	if req.X < 0 || req.X >= w || req.Y < 0 || req.Y >= h {
		return errors.WithMessagef(ErrOutOfBounds, "pixel (%d, %d) of %dx%d", req.X, req.Y, w, h)
	}
	if req.Sample >= target.Samples {
		return errors.WithMessagef(ErrOutOfBounds, "sample %d of %d", req.Sample, target.Samples)
	}
	return nil
}

// fragmentCount returns the number of per-fragment entries a draw
// decomposes into. The counts should satisfy plain >= shader; a replay
// anomaly is resolved towards the larger.
func fragmentCount(rec eventRecord) int {
	if rec.fragsShader == 0 {
		return 0
	}
	return int(max(rec.fragsPlain, rec.fragsShader))
}

func runReplay(ctx context.Context, ctrl replay.Controller, to replay.EventID, cb replay.Callbacks) error {
	if err := ctrl.ReplayRange(ctx, 1, to, cb); err != nil {
		return errors.Wrap(err, "recording replay")
	}
	if err := ctrl.Submit(ctx); err != nil {
		return errors.Wrap(err, "submitting replay")
	}
	if err := ctrl.Wait(ctx); err != nil {
		return errors.Wrap(err, "waiting for replay")
	}
	return nil
}

// assembler builds the final history from whatever the replay passes
// produced so far.
type assembler struct {
	q         *query
	selected  []replay.EventUsage
	recs      map[replay.EventID]eventRecord
	diag      map[replay.EventID]testDiagnosis
	bases     map[replay.EventID]int
	unbound   map[replay.EventID]bool
	fragData  []byte
	discarded map[suspectKey]bool
}

func (a *assembler) assemble(ctx context.Context) []PixelModification {
	var history []PixelModification
	for _, eu := range a.selected {
		rec, ok := a.recs[eu.Event]
		if !ok {
			continue
		}
		if eu.Usage != replay.UsageDraw {
			history = append(history, PixelModification{
				Event:       eu.Event,
				PrimitiveID: -1,
				PreMod:      rec.premod.decode(a.q.target.Format, 0, false, false),
				PostMod:     rec.postmod.decode(a.q.target.Format, 0, false, false),
				DirectWrite: true,
			})
			continue
		}
		history = append(history, a.assembleDraw(ctx, eu.Event, rec)...)
	}
	return history
}

func (a *assembler) assembleDraw(ctx context.Context, ev replay.EventID, rec eventRecord) []PixelModification {
	depthFmt := driver.PixelFmt(0)
	withDepth, withStencil := false, false
	if d, ok := a.q.ctrl.Draw(ev); ok && d.DepthTarget != 0 {
		if desc, ok := a.q.res.Image(d.DepthTarget); ok {
			depthFmt = desc.Format
			withDepth = hasDepth(depthFmt)
			withStencil = hasStencil(depthFmt)
		}
	}
	decode := func(v rawValue) Value {
		return v.decode(a.q.target.Format, depthFmt, withDepth, withStencil)
	}

	failed := Test(-1)
	if d, ok := a.diag[ev]; ok {
		failed = d.failed
	}
	if failed >= 0 || rec.fragsShader == 0 {
		// Nothing survived; report why.
		mod := PixelModification{
			Event:       ev,
			PrimitiveID: -1,
			PreMod:      decode(rec.premod),
			PostMod:     decode(rec.postmod),
		}
		switch failed {
		case TestCulling:
			mod.BackfaceCulled = true
		case TestScissor:
			mod.ScissorClipped = true
		case TestSampleMask:
			mod.SampleMasked = true
		case TestDepthBounds:
			mod.DepthBoundsClipped = true
		case TestStencil:
			mod.StencilTestFailed = true
		case TestDepth:
			mod.DepthTestFailed = true
		default:
			if rec.fragsPlain > 0 {
				// Rasterized but nothing came out of the shader.
				mod.ShaderDiscarded = true
			} else {
				log.W(ctx, "event %v produced no fragments and no test was diagnosed", ev)
			}
		}
		return []PixelModification{mod}
	}

	base, haveFrags := a.bases[ev]
	if !haveFrags || a.fragData == nil {
		// Decomposition never ran; fall back to a single entry.
		return []PixelModification{{
			Event:       ev,
			PrimitiveID: -1,
			PreMod:      decode(rec.premod),
			PostMod:     decode(rec.postmod),
			Unbound:     a.unbound[ev],
		}}
	}

	n := fragmentCount(rec)
	out := make([]PixelModification, 0, n)
	pre := decode(rec.premod)
	// Discarded fragments never pass the stripped redraws' stencil
	// match, so the records of the surviving fragments sit at their
	// arrival index minus the discards before them.
	discardOffset := 0
	for f := 0; f < n; f++ {
		fr := decodeFragmentRecord(a.fragData, base+f)
		mod := PixelModification{
			Event:       ev,
			FragIndex:   f,
			PrimitiveID: fr.primitiveID,
			PreMod:      pre,
			Unbound:     a.unbound[ev],
		}
		if a.discarded[suspectKey{ev, f}] {
			mod.ShaderDiscarded = true
			mod.ShaderOut = Value{Depth: -1, Stencil: -1}
			mod.PostMod = pre
			discardOffset++
		} else {
			sr := fr
			if discardOffset > 0 {
				sr = decodeFragmentRecord(a.fragData, base+f-discardOffset)
			}
			mod.ShaderOut = sr.shaderOut.decode(driver.RGBA32f, driver.D32fS8ui, true, false)
			if f == n-1 {
				mod.PostMod = decode(rec.postmod)
			} else {
				mod.PostMod = sr.postMod.decode(a.q.target.Format, driver.D32fS8ui, true, false)
			}
		}
		out = append(out, mod)
		pre = mod.PostMod
	}
	return out
}
