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

// Package pixelhistory reconstructs the ordered list of modifications a
// single pixel of an image went through during a recorded frame.
//
// The history is computed by replaying the frame several times with
// instrumented pipelines: a first replay filters the candidate events
// with occlusion queries, a second captures pre- and post-modification
// values and fragment counts, a third diagnoses which pipeline test
// rejected events that changed nothing, a fourth decomposes overdraw
// into per-fragment values and a fifth confirms shader discards.
package pixelhistory

import (
	"github.com/gfxreplay/gfxreplay/replay"
)

// Request identifies the pixel whose history is wanted.
type Request struct {
	// Target is the image to inspect.
	Target replay.ImageID

	// X, Y locate the pixel in the selected mip level.
	X, Y int

	// Slice, Mip and Sample select the subresource. Sample is -1 to
	// query all samples of a multisampled image at once.
	Slice, Mip, Sample int

	// Events are the potentially-modifying uses of Target, in event
	// order, as reported by usage analysis.
	Events []replay.EventUsage
}

// Value is a decoded pixel value.
type Value struct {
	// Color holds the decoded color channels, RGBA order.
	Color [4]float64
	// Depth is the decoded depth, or -1 when the pixel had no depth
	// aspect bound.
	Depth float32
	// Stencil is the stencil value, or -1 when unknown.
	Stencil int32
}

// PixelModification is one entry of a pixel history: a single fragment
// of a single event, with the pixel value before and after it.
type PixelModification struct {
	// Event is the event that produced the modification.
	Event replay.EventID

	// FragIndex is the index of the fragment within the event, for
	// draws that cover the pixel more than once.
	FragIndex int

	// PrimitiveID is the primitive that produced the fragment, or -1
	// when unknown.
	PrimitiveID int32

	// PreMod is the pixel value before the fragment, ShaderOut the
	// fragment shader's output, and PostMod the value after blending
	// and write masking.
	PreMod    Value
	ShaderOut Value
	PostMod   Value

	// DirectWrite is set for events that bypass the graphics pipeline
	// (copies, resolves, storage writes). Unbound is set for draws
	// with no fragment shader bound.
	DirectWrite bool
	Unbound     bool

	// The flags below record which test rejected the fragment.
	SampleMasked       bool
	BackfaceCulled     bool
	ScissorClipped     bool
	DepthBoundsClipped bool
	StencilTestFailed  bool
	DepthTestFailed    bool
	ShaderDiscarded    bool
}

// Passed returns whether the modification made it past every test and
// changed (or could have changed) the pixel.
func (m PixelModification) Passed() bool {
	return !m.SampleMasked && !m.BackfaceCulled && !m.ScissorClipped &&
		!m.DepthBoundsClipped && !m.StencilTestFailed && !m.DepthTestFailed &&
		!m.ShaderDiscarded
}

// Test is one of the pipeline tests a fragment must pass, in the order
// they are diagnosed.
type Test int

const (
	TestCulling Test = iota
	TestScissor
	TestSampleMask
	TestDepthBounds
	TestStencil
	TestDepth
	TestDiscard

	testCount
)

func (t Test) String() string {
	switch t {
	case TestCulling:
		return "Culling"
	case TestScissor:
		return "Scissor"
	case TestSampleMask:
		return "SampleMask"
	case TestDepthBounds:
		return "DepthBounds"
	case TestStencil:
		return "Stencil"
	case TestDepth:
		return "Depth"
	case TestDiscard:
		return "Discard"
	default:
		return "?"
	}
}

// TestFlags records, per test, whether the test is enabled for an event
// and whether static state alone proves it must fail or must pass.
type TestFlags uint32

const (
	flagsEnabledShift  = 0
	flagsMustFailShift = 8
	flagsMustPassShift = 16
)

// WithEnabled returns f with test t marked enabled.
func (f TestFlags) WithEnabled(t Test) TestFlags { return f | 1<<(flagsEnabledShift+uint(t)) }

// WithMustFail returns f with test t marked statically failing.
func (f TestFlags) WithMustFail(t Test) TestFlags { return f | 1<<(flagsMustFailShift+uint(t)) }

// WithMustPass returns f with test t marked statically passing.
func (f TestFlags) WithMustPass(t Test) TestFlags { return f | 1<<(flagsMustPassShift+uint(t)) }

// Enabled returns whether test t is enabled.
func (f TestFlags) Enabled(t Test) bool { return f&(1<<(flagsEnabledShift+uint(t))) != 0 }

// MustFail returns whether test t statically fails.
func (f TestFlags) MustFail(t Test) bool { return f&(1<<(flagsMustFailShift+uint(t))) != 0 }

// MustPass returns whether test t statically passes.
func (f TestFlags) MustPass(t Test) bool { return f&(1<<(flagsMustPassShift+uint(t))) != 0 }

// FirstMustFail returns the first enabled test that statically fails,
// or -1 when none does.
func (f TestFlags) FirstMustFail() Test {
	for t := Test(0); t < testCount; t++ {
		if f.Enabled(t) && f.MustFail(t) {
			return t
		}
	}
	return -1
}
