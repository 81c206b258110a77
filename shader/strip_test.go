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

package shader

import (
	"testing"

	"github.com/gogpu/naga/ir"
)

// sideEffectModule builds a fragment module exercising every kind of
// side effect the stripper handles: a storage store, an image store, an
// atomic with a used result, and a storage store plus discard behind a
// function call.
func sideEffectModule() *ir.Module {
	atomicResult := ir.ExpressionHandle(4)
	return &ir.Module{
		GlobalVariables: []ir.GlobalVariable{
			{Name: "ssbo", Space: ir.SpaceStorage},
			{Name: "img", Space: ir.SpaceHandle},
			{Name: "ubo", Space: ir.SpaceUniform},
		},
		Functions: []ir.Function{
			{
				Name: "helper",
				Expressions: []ir.Expression{
					{Kind: ir.ExprGlobalVariable{Variable: 0}},
					{Kind: ir.ExprZeroValue{}},
				},
				Body: ir.Block{
					{Kind: ir.StmtIf{
						Condition: 1,
						Accept: ir.Block{
							{Kind: ir.StmtStore{Pointer: 0, Value: 1}},
							{Kind: ir.StmtKill{}},
						},
					}},
					{Kind: ir.StmtReturn{}},
				},
			},
		},
		EntryPoints: []ir.EntryPoint{
			{
				Name:  "main",
				Stage: ir.StageFragment,
				Function: ir.Function{
					Name:      "main",
					LocalVars: []ir.LocalVariable{{Name: "tmp"}},
					Expressions: []ir.Expression{
						{Kind: ir.ExprGlobalVariable{Variable: 0}},
						{Kind: ir.ExprZeroValue{}},
						{Kind: ir.ExprLocalVariable{Variable: 0}},
						{Kind: ir.ExprGlobalVariable{Variable: 1}},
						{Kind: ir.ExprZeroValue{}}, // atomic result
					},
					Body: ir.Block{
						{Kind: ir.StmtStore{Pointer: 0, Value: 1}},
						{Kind: ir.StmtStore{Pointer: 2, Value: 1}},
						{Kind: ir.StmtImageStore{Image: 3, Coordinate: 1, Value: 1}},
						{Kind: ir.StmtAtomic{
							Pointer: 0,
							Fun:     ir.AtomicAdd{},
							Value:   1,
							Result:  &atomicResult,
						}},
						{Kind: ir.StmtCall{Function: 0}},
						{Kind: ir.StmtReturn{}},
					},
				},
			},
		},
	}
}

func TestStripSideEffects(t *testing.T) {
	m := sideEffectModule()
	out, changed, err := stripSideEffects(m, "main")
	if err != nil {
		t.Fatalf("stripSideEffects() error: %v", err)
	}
	if !changed {
		t.Fatal("stripSideEffects() reported no changes")
	}

	main := out.EntryPoints[0].Function.Body
	// storage store dropped, local store kept, image store dropped,
	// atomic rewritten to an emit, call and return kept.
	if len(main) != 4 {
		t.Fatalf("main body has %d statements, want 4", len(main))
	}
	if _, ok := main[0].Kind.(ir.StmtStore); !ok {
		t.Errorf("main[0] = %T, want the local store", main[0].Kind)
	}
	emit, ok := main[1].Kind.(ir.StmtEmit)
	if !ok {
		t.Fatalf("main[1] = %T, want StmtEmit for the atomic result", main[1].Kind)
	}
	if emit.Range.Start != 4 || emit.Range.End != 5 {
		t.Errorf("emit range = [%d, %d), want [4, 5)", emit.Range.Start, emit.Range.End)
	}
	load, ok := out.EntryPoints[0].Function.Expressions[4].Kind.(ir.ExprLoad)
	if !ok {
		t.Fatalf("atomic result = %T, want ExprLoad", out.EntryPoints[0].Function.Expressions[4].Kind)
	}
	if load.Pointer != 0 {
		t.Errorf("atomic load pointer = %d, want 0", load.Pointer)
	}
	if _, ok := main[2].Kind.(ir.StmtCall); !ok {
		t.Errorf("main[2] = %T, want StmtCall", main[2].Kind)
	}

	// The callee loses its storage store but keeps the discard.
	accept := out.Functions[0].Body[0].Kind.(ir.StmtIf).Accept
	if len(accept) != 1 {
		t.Fatalf("helper accept block has %d statements, want 1", len(accept))
	}
	if _, ok := accept[0].Kind.(ir.StmtKill); !ok {
		t.Errorf("helper accept[0] = %T, want StmtKill", accept[0].Kind)
	}

	// The input module is untouched.
	if len(m.EntryPoints[0].Function.Body) != 6 {
		t.Error("input module main body was mutated")
	}
	if len(m.Functions[0].Body[0].Kind.(ir.StmtIf).Accept) != 2 {
		t.Error("input module helper body was mutated")
	}
	if _, ok := m.EntryPoints[0].Function.Expressions[4].Kind.(ir.ExprZeroValue); !ok {
		t.Error("input module expressions were mutated")
	}
}

func TestStripNoSideEffects(t *testing.T) {
	m := &ir.Module{
		EntryPoints: []ir.EntryPoint{{
			Name:  "main",
			Stage: ir.StageFragment,
			Function: ir.Function{
				Name: "main",
				Expressions: []ir.Expression{
					{Kind: ir.ExprLocalVariable{Variable: 0}},
					{Kind: ir.ExprZeroValue{}},
				},
				LocalVars: []ir.LocalVariable{{Name: "tmp"}},
				Body: ir.Block{
					{Kind: ir.StmtStore{Pointer: 0, Value: 1}},
					{Kind: ir.StmtReturn{}},
				},
			},
		}},
	}
	out, changed, err := stripSideEffects(m, "main")
	if err != nil {
		t.Fatalf("stripSideEffects() error: %v", err)
	}
	if changed || out != nil {
		t.Error("stripSideEffects() rebuilt a module with no side effects")
	}
}

func TestStripUnknownEntry(t *testing.T) {
	if _, _, err := stripSideEffects(&ir.Module{}, "nope"); err != ErrNoEntryPoint {
		t.Errorf("stripSideEffects() error = %v, want %v", err, ErrNoEntryPoint)
	}
}

func TestCanDiscard(t *testing.T) {
	m := sideEffectModule()
	if !canDiscard(m, "main") {
		t.Error("canDiscard() = false for a module discarding through a call")
	}
	// Remove the call: main itself never discards.
	body := m.EntryPoints[0].Function.Body
	m.EntryPoints[0].Function.Body = body[:4]
	if canDiscard(m, "main") {
		t.Error("canDiscard() = true for a module that cannot discard")
	}
}
