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

package replay

import "github.com/gviegas/scene/driver"

// Draw describes a recorded draw call.
type Draw struct {
	// Indexed is whether the draw consumes the bound index buffer.
	Indexed bool
	// Count is the number of vertices, or indices when Indexed.
	Count int
	// InstanceCount is the number of instances. Zero means one.
	InstanceCount int
	// First is the first vertex, or first index when Indexed.
	First int
	// BaseVertex is the value added to each index before fetching,
	// only meaningful when Indexed.
	BaseVertex int
	// FirstInstance is the first instance drawn.
	FirstInstance int
	// Topology is the primitive topology of the bound pipeline.
	Topology driver.Topology
	// DepthTarget is the depth/stencil image bound during the draw,
	// or zero when the pass has no depth attachment.
	DepthTarget ImageID
}

// Issue records the draw into cmd. The right pipeline and dynamic state
// must already be bound.
func (d Draw) Issue(cmd CommandBuffer) {
	inst := d.InstanceCount
	if inst == 0 {
		inst = 1
	}
	if d.Indexed {
		cmd.DrawIndexed(d.Count, inst, d.First, d.BaseVertex, d.FirstInstance)
	} else {
		cmd.Draw(d.Count, inst, d.First, d.FirstInstance)
	}
}

// Primitive returns a copy of d reduced to the single primitive prim:
// the vertex (or index) window is advanced to the primitive's first
// vertex and the count shrunk to one primitive's worth. For strip
// topologies this redraws the primitive as a standalone strip of
// minimum length.
func (d Draw) Primitive(prim int) Draw {
	out := d
	out.First += PrimitiveVertexOffset(d.Topology, prim)
	out.Count = VerticesPerPrimitive(d.Topology)
	return out
}

// VerticesPerPrimitive returns the number of vertices consumed by one
// primitive of the given topology.
func VerticesPerPrimitive(t driver.Topology) int {
	switch t {
	case driver.TPoint:
		return 1
	case driver.TLine, driver.TLnStrip:
		return 2
	case driver.TTriangle, driver.TTriStrip:
		return 3
	default:
		return 0
	}
}

// PrimitiveVertexOffset returns the offset of the first vertex of
// primitive prim within the vertex stream of a draw with topology t.
func PrimitiveVertexOffset(t driver.Topology, prim int) int {
	switch t {
	case driver.TPoint:
		return prim
	case driver.TLine:
		return prim * 2
	case driver.TTriangle:
		return prim * 3
	case driver.TLnStrip, driver.TTriStrip:
		// Strips advance one vertex per primitive.
		return prim
	default:
		return 0
	}
}

// PrimitiveCount returns the number of primitives assembled from
// vertCount vertices with topology t.
func PrimitiveCount(t driver.Topology, vertCount int) int {
	switch t {
	case driver.TPoint:
		return vertCount
	case driver.TLine:
		return vertCount / 2
	case driver.TTriangle:
		return vertCount / 3
	case driver.TLnStrip:
		return max(vertCount-1, 0)
	case driver.TTriStrip:
		return max(vertCount-2, 0)
	default:
		return 0
	}
}
