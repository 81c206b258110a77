// Copyright (C) 2017 Google Inc.
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

package log

import "context"

type handlerKeyTy string
type filterKeyTy string
type tagKeyTy string

const (
	handlerKey handlerKeyTy = "log.handlerKey"
	filterKey  filterKeyTy  = "log.filterKey"
	tagKey     tagKeyTy     = "log.tagKey"
)

// PutHandler returns a new context with the Handler assigned to w.
func PutHandler(ctx context.Context, w Handler) context.Context {
	return context.WithValue(ctx, handlerKey, w)
}

// GetHandler returns the Handler assigned to ctx, or nil.
func GetHandler(ctx context.Context) Handler {
	out, _ := ctx.Value(handlerKey).(Handler)
	return out
}

// PutFilter returns a new context with the Filter assigned to f.
func PutFilter(ctx context.Context, f Filter) context.Context {
	return context.WithValue(ctx, filterKey, f)
}

// GetFilter returns the Filter assigned to ctx, or nil.
func GetFilter(ctx context.Context) Filter {
	out, _ := ctx.Value(filterKey).(Filter)
	return out
}

// Enter returns a new context with the tag assigned to name.
func Enter(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, tagKey, name)
}

// GetTag returns the tag assigned to ctx, or an empty string.
func GetTag(ctx context.Context) string {
	out, _ := ctx.Value(tagKey).(string)
	return out
}
