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

// Package shader builds the shader variants frame analyses substitute
// into recorded pipelines: recorded shaders with their side effects
// stripped, and small builtin fragment shaders assembled directly as
// SPIR-V.
package shader

import (
	"context"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/spirv"
	"github.com/gviegas/scene/driver"
	"github.com/pkg/errors"

	"github.com/gfxreplay/gfxreplay/core/fault"
	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// ErrNoEntryPoint is returned when a shader module has no entry point
// matching the requested name.
const ErrNoEntryPoint = fault.Const("no matching entry point")

// Cache builds and owns the shader variants for one analysis. It is not
// safe for concurrent use. Release must be called when the analysis
// ends.
type Cache struct {
	dev replay.Device
	res replay.Resources

	fixed    map[int]driver.ShaderCode
	primID   map[int]driver.ShaderCode
	stripped map[stripKey]stripResult
	discard  map[stripKey]bool
}

type stripKey struct {
	shader replay.ShaderID
	entry  string
}

type stripResult struct {
	// code is nil when stripping left the module unchanged.
	code driver.ShaderCode
}

// NewCache returns an empty cache creating objects through dev and
// reading recorded modules through res.
func NewCache(dev replay.Device, res replay.Resources) *Cache {
	return &Cache{
		dev:      dev,
		res:      res,
		fixed:    map[int]driver.ShaderCode{},
		primID:   map[int]driver.ShaderCode{},
		stripped: map[stripKey]stripResult{},
		discard:  map[stripKey]bool{},
	}
}

// FixedColor returns a fragment shader writing an opaque constant color
// to color attachment location.
func (c *Cache) FixedColor(ctx context.Context, location int) (driver.ShaderCode, error) {
	if code, ok := c.fixed[location]; ok {
		return code, nil
	}
	code, err := c.dev.NewShaderCode(ctx, fixedColorSPIRV(location))
	if err != nil {
		return nil, errors.Wrap(err, "uploading fixed color shader")
	}
	c.fixed[location] = code
	return code, nil
}

// PrimitiveID returns a fragment shader writing the primitive ID, bitcast
// to float, to every channel of color attachment location.
func (c *Cache) PrimitiveID(ctx context.Context, location int) (driver.ShaderCode, error) {
	if code, ok := c.primID[location]; ok {
		return code, nil
	}
	code, err := c.dev.NewShaderCode(ctx, primitiveIDSPIRV(location))
	if err != nil {
		return nil, errors.Wrap(err, "uploading primitive ID shader")
	}
	c.primID[location] = code
	return code, nil
}

// WithoutSideEffects returns shader id with its side effects removed:
// storage buffer writes and image stores dropped, atomics demoted to
// loads. It returns (nil, nil) when the module has no side effects, in
// which case the recorded shader object can be kept. Results are cached
// per (id, entry); repeated calls do not rebuild.
func (c *Cache) WithoutSideEffects(ctx context.Context, id replay.ShaderID, entry string) (driver.ShaderCode, error) {
	key := stripKey{id, entry}
	if r, ok := c.stripped[key]; ok {
		return r.code, nil
	}
	m, ok := c.res.ShaderModule(id)
	if !ok {
		return nil, log.Errf(ctx, nil, "shader %v not found", id)
	}
	stripped, changed, err := stripSideEffects(m, entry)
	if err != nil {
		return nil, err
	}
	if !changed {
		c.stripped[key] = stripResult{}
		return nil, nil
	}
	bin, err := naga.GenerateSPIRV(stripped, spirv.DefaultOptions())
	if err != nil {
		return nil, errors.Wrapf(err, "recompiling stripped shader %v", id)
	}
	code, err := c.dev.NewShaderCode(ctx, bin)
	if err != nil {
		return nil, errors.Wrapf(err, "uploading stripped shader %v", id)
	}
	c.stripped[key] = stripResult{code: code}
	return code, nil
}

// CanDiscard reports whether the fragment shader can reach a discard.
// Unknown shaders conservatively report true.
func (c *Cache) CanDiscard(id replay.ShaderID, entry string) bool {
	key := stripKey{id, entry}
	if v, ok := c.discard[key]; ok {
		return v
	}
	m, ok := c.res.ShaderModule(id)
	if !ok {
		return true
	}
	v := canDiscard(m, entry)
	c.discard[key] = v
	return v
}

// Release destroys every shader object the cache created.
func (c *Cache) Release(ctx context.Context) {
	for _, code := range c.fixed {
		code.Destroy()
	}
	for _, code := range c.primID {
		code.Destroy()
	}
	for _, r := range c.stripped {
		if r.code != nil {
			r.code.Destroy()
		}
	}
	c.fixed = map[int]driver.ShaderCode{}
	c.primID = map[int]driver.ShaderCode{}
	c.stripped = map[stripKey]stripResult{}
}
