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
	"encoding/binary"
	"math"

	"github.com/gviegas/scene/driver"
)

// Readback buffer layout. Every selected event owns one fixed-size
// record at offset ordinal*eventRecordSize so GPU copies can be issued
// without host round trips. Per-fragment records follow the same rule in
// their own buffer region.
const (
	// pixelValue is 32 bytes of color, 4 of depth, 1 of stencil and
	// 3 of padding.
	pixelValueSize    = 40
	valueDepthOffset  = 32
	valueStencilOff   = 36
	eventRecordSize   = 96
	premodOffset      = 0
	postmodOffset     = 40
	fragsPlainOffset  = 80 // fragment count, discards suppressed
	fragsShaderOffset = 88 // fragment count with the original shader

	fragmentRecordSize = 96
	fragPrimitiveOff   = 0
	fragShaderOutOff   = 16
	fragPostModOff     = 56
)

// rawValue is one captured pixel value, still in target format.
type rawValue struct {
	color   [32]byte
	depth   [4]byte
	stencil uint8
}

// eventRecord is the decoded per-event readback record.
type eventRecord struct {
	premod, postmod rawValue
	// fragsPlain counts fragments with discards suppressed;
	// fragsShader counts them with the original shader.
	fragsPlain, fragsShader uint8
}

func decodeEventRecord(buf []byte, ordinal int) eventRecord {
	base := ordinal * eventRecordSize
	return eventRecord{
		premod:      decodeRawValue(buf[base+premodOffset:]),
		postmod:     decodeRawValue(buf[base+postmodOffset:]),
		fragsPlain:  buf[base+fragsPlainOffset],
		fragsShader: buf[base+fragsShaderOffset],
	}
}

// fragmentRecord is the decoded per-fragment readback record.
type fragmentRecord struct {
	primitiveID int32
	shaderOut   rawValue
	postMod     rawValue
}

func decodeFragmentRecord(buf []byte, index int) fragmentRecord {
	base := index * fragmentRecordSize
	return fragmentRecord{
		primitiveID: int32(binary.LittleEndian.Uint32(buf[base+fragPrimitiveOff:])),
		shaderOut:   decodeRawValue(buf[base+fragShaderOutOff:]),
		postMod:     decodeRawValue(buf[base+fragPostModOff:]),
	}
}

func decodeRawValue(b []byte) rawValue {
	v := rawValue{stencil: b[valueStencilOff]}
	copy(v.color[:], b)
	copy(v.depth[:], b[valueDepthOffset:])
	return v
}

// decode converts a raw value using the target's color format and the
// bound depth format (0 when no depth aspect was bound).
func (v rawValue) decode(color driver.PixelFmt, depth driver.PixelFmt, hasDepth, hasStencil bool) Value {
	out := Value{
		Color:   decodeColor(color, v.color[:]),
		Depth:   -1,
		Stencil: -1,
	}
	if hasDepth {
		out.Depth = decodeDepth(depth, v.depth[:])
	}
	if hasStencil {
		out.Stencil = int32(v.stencil)
	}
	return out
}

// decodeColor converts one texel to float channels, RGBA order.
// Unlisted formats decode as raw float32 words.
func decodeColor(f driver.PixelFmt, b []byte) [4]float64 {
	un8 := func(i int) float64 { return float64(b[i]) / 255 }
	sn8 := func(i int) float64 {
		v := float64(int8(b[i])) / 127
		return math.Max(v, -1)
	}
	f16 := func(i int) float64 {
		return float64(halfToFloat(binary.LittleEndian.Uint16(b[i*2:])))
	}
	f32 := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	switch f {
	case driver.RGBA8un, driver.RGBA8sRGB:
		return [4]float64{un8(0), un8(1), un8(2), un8(3)}
	case driver.BGRA8un, driver.BGRA8sRGB:
		return [4]float64{un8(2), un8(1), un8(0), un8(3)}
	case driver.RGBA8n:
		return [4]float64{sn8(0), sn8(1), sn8(2), sn8(3)}
	case driver.RG8un:
		return [4]float64{un8(0), un8(1), 0, 1}
	case driver.RG8n:
		return [4]float64{sn8(0), sn8(1), 0, 1}
	case driver.R8un:
		return [4]float64{un8(0), 0, 0, 1}
	case driver.R8n:
		return [4]float64{sn8(0), 0, 0, 1}
	case driver.RGBA16f:
		return [4]float64{f16(0), f16(1), f16(2), f16(3)}
	case driver.RG16f:
		return [4]float64{f16(0), f16(1), 0, 1}
	case driver.R16f:
		return [4]float64{f16(0), 0, 0, 1}
	case driver.RG32f:
		return [4]float64{f32(0), f32(1), 0, 1}
	case driver.R32f:
		return [4]float64{f32(0), 0, 0, 1}
	default:
		return [4]float64{f32(0), f32(1), f32(2), f32(3)}
	}
}

// decodeDepth converts the raw depth word of a depth/stencil format.
func decodeDepth(f driver.PixelFmt, b []byte) float32 {
	switch f {
	case driver.D16un:
		return float32(binary.LittleEndian.Uint16(b)) / 0xffff
	case driver.D24unS8ui:
		return float32(binary.LittleEndian.Uint32(b)&0xffffff) / 0xffffff
	case driver.D32f, driver.D32fS8ui:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

// halfToFloat expands an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff
	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: mant * 2^-24.
		f := math.Ldexp(float64(mant), -24)
		if sign != 0 {
			f = -f
		}
		return float32(f)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	}
}
