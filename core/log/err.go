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

import (
	"context"
	"fmt"
)

// Err logs and returns an error wrapping cause with the supplied message.
// If cause is nil, a new error is logged and returned.
func Err(ctx context.Context, cause error, msg string) error {
	e := &wrappedErr{msg: msg, cause: cause, tag: GetTag(ctx)}
	From(ctx).E("%v", e)
	return e
}

// Errf logs and returns an error wrapping cause with a printf-style message.
func Errf(ctx context.Context, cause error, format string, args ...interface{}) error {
	return Err(ctx, cause, fmt.Sprintf(format, args...))
}

type wrappedErr struct {
	msg   string
	cause error
	tag   string
}

func (e *wrappedErr) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

// Cause returns the underlying error, for compatibility with
// github.com/pkg/errors.
func (e *wrappedErr) Cause() error { return e.cause }

func (e *wrappedErr) Unwrap() error { return e.cause }
