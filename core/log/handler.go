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
	"fmt"
	"io"
	"os"
	"sync"
)

// Handler is the interface implemented by types that consume log messages.
type Handler interface {
	Handle(*Message)
	Close()
}

type handler struct {
	handle func(*Message)
	close  func()
}

func (h handler) Handle(m *Message) { h.handle(m) }
func (h handler) Close()            { h.close() }

// NewHandler returns a Handler that calls handle for each message and close
// (if not nil) when the handler is closed.
func NewHandler(handle func(*Message), close func()) Handler {
	if close == nil {
		close = func() {}
	}
	return handler{handle, close}
}

// Writer returns a Handler that writes each message to w using the style s.
func Writer(s Style, w io.Writer) Handler {
	mu := sync.Mutex{}
	return NewHandler(func(m *Message) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, s.Print(m))
	}, nil)
}

// Std returns a Handler that writes messages to stdout and stderr.
func Std(s Style) Handler {
	out, err := Writer(s, os.Stdout), Writer(s, os.Stderr)
	return NewHandler(func(m *Message) {
		if m.Severity >= Error {
			err.Handle(m)
		} else {
			out.Handle(m)
		}
	}, nil)
}
