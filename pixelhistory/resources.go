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
	"context"

	"github.com/gviegas/scene/driver"
	"github.com/pkg/errors"

	"github.com/gfxreplay/gfxreplay/replay"
)

// auxResources are the GPU objects owned by one pixel history query:
// a color image for primitive IDs and shader outputs, a depth/stencil
// image for fragment counting and selection, and a staging image for
// resolving multisampled targets before readback.
type auxResources struct {
	color     driver.Image
	colorView driver.ImageView
	ds        driver.Image
	dsView    driver.ImageView
	staging   driver.Image
}

func newAuxResources(ctx context.Context, dev replay.Device, extent driver.Dim3D, samples int) (*auxResources, error) {
	a := &auxResources{}
	fail := func(err error, what string) (*auxResources, error) {
		a.destroy()
		return nil, errors.Wrapf(err, "creating %s", what)
	}

	var err error
	if a.color, err = dev.NewImage(ctx, driver.RGBA32f, extent, 1, 1, samples, driver.URenderTarget); err != nil {
		return fail(err, "aux color image")
	}
	if a.colorView, err = a.color.NewView(driver.IView2D, 0, 1, 0, 1); err != nil {
		return fail(err, "aux color view")
	}
	if a.ds, err = dev.NewImage(ctx, driver.D32fS8ui, extent, 1, 1, samples, driver.URenderTarget); err != nil {
		return fail(err, "aux depth/stencil image")
	}
	if a.dsView, err = a.ds.NewView(driver.IView2D, 0, 1, 0, 1); err != nil {
		return fail(err, "aux depth/stencil view")
	}
	if samples > 1 {
		// Multisampled pixels are resolved into the staging image
		// before single-pixel copies.
		if a.staging, err = dev.NewImage(ctx, driver.RGBA32f, extent, 1, 1, 1, driver.URenderTarget); err != nil {
			return fail(err, "resolve staging image")
		}
	}
	return a, nil
}

func (a *auxResources) destroy() {
	if a.colorView != nil {
		a.colorView.Destroy()
	}
	if a.color != nil {
		a.color.Destroy()
	}
	if a.dsView != nil {
		a.dsView.Destroy()
	}
	if a.ds != nil {
		a.ds.Destroy()
	}
	if a.staging != nil {
		a.staging.Destroy()
	}
	*a = auxResources{}
}
