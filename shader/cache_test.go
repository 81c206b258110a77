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
	"context"
	"testing"

	"github.com/gogpu/naga/ir"
	"github.com/gviegas/scene/driver"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

type stubCode struct{ destroyed bool }

func (c *stubCode) Destroy() { c.destroyed = true }

// stubDevice implements the shader creation part of replay.Device.
type stubDevice struct {
	replay.Device
	created []*stubCode
}

func (d *stubDevice) NewShaderCode(ctx context.Context, spirv []byte) (driver.ShaderCode, error) {
	code := &stubCode{}
	d.created = append(d.created, code)
	return code, nil
}

// stubResources implements the shader lookup part of replay.Resources.
type stubResources struct {
	replay.Resources
	modules map[replay.ShaderID]*ir.Module
}

func (r *stubResources) ShaderModule(id replay.ShaderID) (*ir.Module, bool) {
	m, ok := r.modules[id]
	return m, ok
}

func pureModule() *ir.Module {
	return &ir.Module{
		EntryPoints: []ir.EntryPoint{{
			Name:  "main",
			Stage: ir.StageFragment,
			Function: ir.Function{
				Name: "main",
				Body: ir.Block{{Kind: ir.StmtReturn{}}},
			},
		}},
	}
}

// imageStoreModule is the simplest module the stripper rewrites: the
// dropped image store leaves a bare return behind.
func imageStoreModule() *ir.Module {
	return &ir.Module{
		EntryPoints: []ir.EntryPoint{{
			Name:  "main",
			Stage: ir.StageFragment,
			Function: ir.Function{
				Name: "main",
				Body: ir.Block{
					{Kind: ir.StmtImageStore{}},
					{Kind: ir.StmtReturn{}},
				},
			},
		}},
	}
}

func TestCacheBuiltinsCached(t *testing.T) {
	ctx := log.Testing(t)
	dev := &stubDevice{}
	c := NewCache(dev, &stubResources{})

	a, err := c.FixedColor(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.FixedColor(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("FixedColor(0) rebuilt on second call")
	}
	if _, err := c.FixedColor(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PrimitiveID(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if len(dev.created) != 3 {
		t.Errorf("created %d shader objects, want 3", len(dev.created))
	}

	c.Release(ctx)
	for i, code := range dev.created {
		if !code.destroyed {
			t.Errorf("shader object %d not destroyed by Release", i)
		}
	}
}

func TestCacheUnchangedShader(t *testing.T) {
	ctx := log.Testing(t)
	dev := &stubDevice{}
	res := &stubResources{modules: map[replay.ShaderID]*ir.Module{
		1: pureModule(),
	}}
	c := NewCache(dev, res)

	for i := 0; i < 2; i++ {
		code, err := c.WithoutSideEffects(ctx, 1, "main")
		if err != nil {
			t.Fatal(err)
		}
		if code != nil {
			t.Error("WithoutSideEffects() rebuilt a shader with no side effects")
		}
	}
	if len(dev.created) != 0 {
		t.Errorf("created %d shader objects, want 0", len(dev.created))
	}
}

func TestCacheStrippedShaderCached(t *testing.T) {
	ctx := log.Testing(t)
	dev := &stubDevice{}
	res := &stubResources{modules: map[replay.ShaderID]*ir.Module{
		1: imageStoreModule(),
	}}
	c := NewCache(dev, res)

	a, err := c.WithoutSideEffects(ctx, 1, "main")
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("WithoutSideEffects() = nil for a shader with an image store")
	}
	b, err := c.WithoutSideEffects(ctx, 1, "main")
	if err != nil {
		t.Fatal(err)
	}
	if b != a {
		t.Error("WithoutSideEffects() rebuilt on second call")
	}
	if len(dev.created) != 1 {
		t.Errorf("created %d shader objects, want 1", len(dev.created))
	}
}

func TestCacheDiscard(t *testing.T) {
	res := &stubResources{modules: map[replay.ShaderID]*ir.Module{
		1: pureModule(),
		2: sideEffectModule(),
	}}
	c := NewCache(&stubDevice{}, res)

	if c.CanDiscard(1, "main") {
		t.Error("CanDiscard() = true for a shader without discard")
	}
	if !c.CanDiscard(2, "main") {
		t.Error("CanDiscard() = false for a discarding shader")
	}
	if !c.CanDiscard(99, "main") {
		t.Error("CanDiscard() = false for an unknown shader")
	}
}
