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

import "github.com/gogpu/naga/spirv"

// SPIR-V values the spirv package does not name.
const (
	capabilityGeometry = spirv.Capability(2)
	decorationFlat     = spirv.Decoration(14)
	builtinPrimitiveID = 7
	opBitcast          = spirv.OpCode(124)
)

// fixedColorSPIRV assembles a fragment shader writing opaque red to the
// color attachment at the given location.
func fixedColorSPIRV(location int) []byte {
	b := spirv.NewModuleBuilder(spirv.Version1_3)
	b.AddCapability(spirv.CapabilityShader)
	b.SetMemoryModel(spirv.AddressingModelLogical, spirv.MemoryModelGLSL450)

	void := b.AddTypeVoid()
	f32 := b.AddTypeFloat(32)
	vec4 := b.AddTypeVector(f32, 4)
	outPtr := b.AddTypePointer(spirv.StorageClassOutput, vec4)
	fnTy := b.AddTypeFunction(void)

	one := b.AddConstantFloat32(f32, 1)
	zero := b.AddConstantFloat32(f32, 0)
	color := b.AddConstantComposite(vec4, one, zero, zero, one)

	outVar := b.AddVariable(outPtr, spirv.StorageClassOutput)
	b.AddName(outVar, "out_color")
	b.AddDecorate(outVar, spirv.DecorationLocation, uint32(location))

	fn := b.AddFunction(fnTy, void, spirv.FunctionControlNone)
	b.AddName(fn, "main")
	b.AddLabel()
	b.AddStore(outVar, color)
	b.AddReturn()
	b.AddFunctionEnd()

	b.AddEntryPoint(spirv.ExecutionModelFragment, fn, "main", []uint32{outVar})
	b.AddExecutionMode(fn, spirv.ExecutionModeOriginUpperLeft)

	return b.Build()
}

// primitiveIDSPIRV assembles a fragment shader writing the primitive ID,
// bitcast to float, to every channel of the color attachment at the
// given location.
func primitiveIDSPIRV(location int) []byte {
	b := spirv.NewModuleBuilder(spirv.Version1_3)
	b.AddCapability(spirv.CapabilityShader)
	b.AddCapability(capabilityGeometry)
	b.SetMemoryModel(spirv.AddressingModelLogical, spirv.MemoryModelGLSL450)

	void := b.AddTypeVoid()
	f32 := b.AddTypeFloat(32)
	i32 := b.AddTypeInt(32, true)
	vec4 := b.AddTypeVector(f32, 4)
	outPtr := b.AddTypePointer(spirv.StorageClassOutput, vec4)
	inPtr := b.AddTypePointer(spirv.StorageClassInput, i32)
	fnTy := b.AddTypeFunction(void)

	outVar := b.AddVariable(outPtr, spirv.StorageClassOutput)
	b.AddName(outVar, "out_primitive")
	b.AddDecorate(outVar, spirv.DecorationLocation, uint32(location))

	inVar := b.AddVariable(inPtr, spirv.StorageClassInput)
	b.AddName(inVar, "primitive_id")
	b.AddDecorate(inVar, spirv.DecorationBuiltIn, builtinPrimitiveID)
	b.AddDecorate(inVar, decorationFlat)

	fn := b.AddFunction(fnTy, void, spirv.FunctionControlNone)
	b.AddName(fn, "main")
	b.AddLabel()
	id := b.AddLoad(i32, inVar)
	fid := b.AddUnaryOp(opBitcast, f32, id)
	v := b.AddCompositeConstruct(vec4, fid, fid, fid, fid)
	b.AddStore(outVar, v)
	b.AddReturn()
	b.AddFunctionEnd()

	b.AddEntryPoint(spirv.ExecutionModelFragment, fn, "main", []uint32{inVar, outVar})
	b.AddExecutionMode(fn, spirv.ExecutionModeOriginUpperLeft)

	return b.Build()
}
