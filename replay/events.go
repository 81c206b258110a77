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

// Usage classifies how an event touched a resource.
type Usage int

const (
	// UsageUnknown is an unclassified use.
	UsageUnknown Usage = iota
	// UsageDraw is a draw call rendering to the resource.
	UsageDraw
	// UsageClear is an attachment or image clear.
	UsageClear
	// UsageCopyDst is a buffer-to-image or image-to-image copy target.
	UsageCopyDst
	// UsageBlitDst is a scaled or format-converting blit target.
	UsageBlitDst
	// UsageResolveDst is a multisample resolve target.
	UsageResolveDst
	// UsageStorageWrite is a shader storage write from any stage.
	UsageStorageWrite
	// UsageMipGen is a mipmap generation pass.
	UsageMipGen
)

// IsDirectWrite returns whether the usage writes pixel contents without
// going through the graphics pipeline's per-fragment tests.
func (u Usage) IsDirectWrite() bool {
	switch u {
	case UsageCopyDst, UsageBlitDst, UsageResolveDst, UsageStorageWrite, UsageMipGen:
		return true
	}
	return false
}

// IsClear returns whether the usage is a clear.
func (u Usage) IsClear() bool { return u == UsageClear }

func (u Usage) String() string {
	switch u {
	case UsageDraw:
		return "Draw"
	case UsageClear:
		return "Clear"
	case UsageCopyDst:
		return "CopyDst"
	case UsageBlitDst:
		return "BlitDst"
	case UsageResolveDst:
		return "ResolveDst"
	case UsageStorageWrite:
		return "StorageWrite"
	case UsageMipGen:
		return "MipGen"
	default:
		return "Unknown"
	}
}

// EventUsage is a single potentially-modifying use of the target image by
// an event, as reported by the caller's usage analysis.
type EventUsage struct {
	// Event is the event that used the image.
	Event EventID
	// Usage is how the event used it.
	Usage Usage
	// View is the image view the event used, if it went through one.
	View ImageViewID
}
