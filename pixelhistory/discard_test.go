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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gfxreplay/gfxreplay/core/log"
	"github.com/gfxreplay/gfxreplay/replay"
)

// TestDiscardResultsAliases checks that aliased events copy the primary
// event's outcomes, and only those: multiple aliases of one primary must
// not pick up each other's expansions.
func TestDiscardResultsAliases(t *testing.T) {
	ctx := log.Testing(t)
	p := &discardPass{
		queries: map[suspectKey]int{
			{event: 2, frag: 0}: 0,
			{event: 2, frag: 1}: 1,
		},
		aliases: map[replay.EventID]replay.EventID{4: 2, 5: 2},
		pool:    &fakePool{count: 2, counts: []uint64{0, 1}},
	}

	got, err := p.results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	want := map[suspectKey]bool{
		{event: 2, frag: 0}: true,
		{event: 2, frag: 1}: false,
		{event: 4, frag: 0}: true,
		{event: 4, frag: 1}: false,
		{event: 5, frag: 0}: true,
		{event: 5, frag: 1}: false,
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(suspectKey{})); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}
