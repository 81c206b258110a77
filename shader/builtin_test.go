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
	"encoding/binary"
	"testing"
)

const spirvMagic = 0x07230203

// decodeWords splits a SPIR-V binary into words.
func decodeWords(t *testing.T, bin []byte) []uint32 {
	if len(bin) < 20 || len(bin)%4 != 0 {
		t.Fatalf("SPIR-V binary has invalid size %d", len(bin))
	}
	words := make([]uint32, len(bin)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(bin[i*4:])
	}
	return words
}

// findInstruction scans the instruction stream for an instruction with
// the given opcode and leading operands.
func findInstruction(words []uint32, opcode uint32, operands ...uint32) bool {
	i := 5 // past the header
	for i < len(words) {
		count := words[i] >> 16
		if count == 0 {
			return false
		}
		if words[i]&0xffff == opcode && int(count) > len(operands) {
			match := true
			for j, op := range operands {
				if words[i+1+j] != op {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		i += int(count)
	}
	return false
}

func TestFixedColorSPIRV(t *testing.T) {
	words := decodeWords(t, fixedColorSPIRV(2))
	if words[0] != spirvMagic {
		t.Fatalf("magic = %#x, want %#x", words[0], spirvMagic)
	}
	// Some OpDecorate target must carry Location 2.
	found := false
	for id := uint32(1); id < words[3] && !found; id++ {
		found = findInstruction(words, 71, id, 30, 2)
	}
	if !found {
		t.Error("no output variable decorated with Location 2")
	}
}

func TestPrimitiveIDSPIRV(t *testing.T) {
	words := decodeWords(t, primitiveIDSPIRV(0))
	if words[0] != spirvMagic {
		t.Fatalf("magic = %#x, want %#x", words[0], spirvMagic)
	}
	if !findInstruction(words, 17, uint32(capabilityGeometry)) {
		t.Error("missing Geometry capability")
	}
	// Some OpDecorate target must carry BuiltIn PrimitiveId.
	found := false
	for id := uint32(1); id < words[3] && !found; id++ {
		found = findInstruction(words, 71, id, 11, builtinPrimitiveID)
	}
	if !found {
		t.Error("no input variable decorated as PrimitiveId")
	}
}
