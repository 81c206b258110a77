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

import "github.com/gogpu/naga/ir"

// stripSideEffects returns a copy of m with all externally visible side
// effects removed from the functions reachable from the named entry
// point: stores through storage-space pointers and image stores are
// dropped, and atomics are rewritten to plain loads so their results
// stay available. The input module is never mutated. changed is false
// when the module had no side effects to remove.
func stripSideEffects(m *ir.Module, entry string) (out *ir.Module, changed bool, err error) {
	ep, ok := entryPoint(m, entry)
	if !ok {
		return nil, false, ErrNoEntryPoint
	}

	cp := *m
	cp.Functions = append([]ir.Function(nil), m.Functions...)
	// The entry function lives inline in the entry point, not in
	// Functions; it is the root of the call graph walk.
	cp.EntryPoints = append([]ir.EntryPoint(nil), m.EntryPoints...)

	root := stripper{m: &cp, fn: &cp.EntryPoints[ep].Function}
	body := root.block(root.fn.Body)
	if root.changed {
		root.fn.Body = body
		changed = true
	}

	visited := map[ir.FunctionHandle]bool{}
	pending := root.callees
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[h] || int(h) >= len(cp.Functions) {
			continue
		}
		visited[h] = true

		s := stripper{m: &cp, fn: &cp.Functions[h]}
		body := s.block(s.fn.Body)
		if s.changed {
			s.fn.Body = body
			changed = true
		}
		pending = append(pending, s.callees...)
	}

	if !changed {
		return nil, false, nil
	}
	return &cp, true, nil
}

// canDiscard reports whether a discard statement is reachable from the
// named entry point. Unresolvable entry points report true.
func canDiscard(m *ir.Module, entry string) bool {
	ep, ok := entryPoint(m, entry)
	if !ok {
		return true
	}
	found, pending := scanKill(m.EntryPoints[ep].Function.Body)
	if found {
		return true
	}
	visited := map[ir.FunctionHandle]bool{}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[h] || int(h) >= len(m.Functions) {
			continue
		}
		visited[h] = true
		found, callees := scanKill(m.Functions[h].Body)
		if found {
			return true
		}
		pending = append(pending, callees...)
	}
	return false
}

// scanKill reports whether b contains a discard and collects the
// functions it calls.
func scanKill(b ir.Block) (bool, []ir.FunctionHandle) {
	found := false
	var callees []ir.FunctionHandle
	walkBlock(b, func(st ir.Statement) {
		switch k := st.Kind.(type) {
		case ir.StmtKill:
			found = true
		case ir.StmtCall:
			callees = append(callees, k.Function)
		}
	})
	return found, callees
}

// entryPoint resolves the index of the entry point named entry. An
// empty name matches a module with a single entry point.
func entryPoint(m *ir.Module, entry string) (int, bool) {
	if entry == "" && len(m.EntryPoints) == 1 {
		return 0, true
	}
	for i, ep := range m.EntryPoints {
		if ep.Name == entry {
			return i, true
		}
	}
	return 0, false
}

// walkBlock calls f for every statement in b and its nested blocks.
func walkBlock(b ir.Block, f func(ir.Statement)) {
	for _, st := range b {
		f(st)
		switch k := st.Kind.(type) {
		case ir.StmtBlock:
			walkBlock(k.Block, f)
		case ir.StmtIf:
			walkBlock(k.Accept, f)
			walkBlock(k.Reject, f)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				walkBlock(c.Body, f)
			}
		case ir.StmtLoop:
			walkBlock(k.Body, f)
			walkBlock(k.Continuing, f)
		}
	}
}

type stripper struct {
	m       *ir.Module
	fn      *ir.Function
	callees []ir.FunctionHandle
	changed bool
	// exprCopied tracks whether fn.Expressions has been unshared from
	// the input module.
	exprCopied bool
}

func (s *stripper) block(b ir.Block) ir.Block {
	out := make(ir.Block, 0, len(b))
	for _, st := range b {
		switch k := st.Kind.(type) {
		case ir.StmtStore:
			if space, ok := s.pointerSpace(k.Pointer); ok && space == ir.SpaceStorage {
				s.changed = true
				continue
			}
		case ir.StmtImageStore:
			s.changed = true
			continue
		case ir.StmtAtomic:
			s.changed = true
			if k.Result == nil {
				continue
			}
			// Keep the result alive: the atomic becomes a load of
			// the same pointer.
			s.rewriteExpression(*k.Result, ir.ExprLoad{Pointer: k.Pointer})
			out = append(out, ir.Statement{Kind: ir.StmtEmit{
				Range: ir.Range{Start: *k.Result, End: *k.Result + 1},
			}})
			continue
		case ir.StmtCall:
			s.callees = append(s.callees, k.Function)
		case ir.StmtBlock:
			st = ir.Statement{Kind: ir.StmtBlock{Block: s.block(k.Block)}}
		case ir.StmtIf:
			k.Accept = s.block(k.Accept)
			k.Reject = s.block(k.Reject)
			st = ir.Statement{Kind: k}
		case ir.StmtSwitch:
			cases := make([]ir.SwitchCase, len(k.Cases))
			for i, c := range k.Cases {
				c.Body = s.block(c.Body)
				cases[i] = c
			}
			k.Cases = cases
			st = ir.Statement{Kind: k}
		case ir.StmtLoop:
			k.Body = s.block(k.Body)
			k.Continuing = s.block(k.Continuing)
			st = ir.Statement{Kind: k}
		}
		out = append(out, st)
	}
	return out
}

// pointerSpace chases a pointer expression back to the variable it
// addresses and returns that variable's address space.
func (s *stripper) pointerSpace(h ir.ExpressionHandle) (ir.AddressSpace, bool) {
	for int(h) < len(s.fn.Expressions) {
		switch e := s.fn.Expressions[h].Kind.(type) {
		case ir.ExprAccess:
			h = e.Base
		case ir.ExprAccessIndex:
			h = e.Base
		case ir.ExprGlobalVariable:
			if int(e.Variable) >= len(s.m.GlobalVariables) {
				return 0, false
			}
			return s.m.GlobalVariables[e.Variable].Space, true
		case ir.ExprLocalVariable:
			return ir.SpaceFunction, true
		default:
			return 0, false
		}
	}
	return 0, false
}

func (s *stripper) rewriteExpression(h ir.ExpressionHandle, kind ir.ExpressionKind) {
	if !s.exprCopied {
		s.fn.Expressions = append([]ir.Expression(nil), s.fn.Expressions...)
		s.exprCopied = true
	}
	if int(h) < len(s.fn.Expressions) {
		s.fn.Expressions[h] = ir.Expression{Kind: kind}
	}
}
