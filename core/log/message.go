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
	"strings"
	"time"
)

// Message is a single log entry.
type Message struct {
	// Text is the message body.
	Text string

	// Time is the time the message was logged.
	Time time.Time

	// Severity is the importance of the message.
	Severity Severity

	// Tag is an optional name of the message source.
	Tag string

	// StopProcess indicates the process should stop after logging.
	StopProcess bool
}

// Style controls how a Message is printed.
type Style struct {
	// Timestamp prints the time of the message.
	Timestamp bool

	// Tag prints the tag of the message, if any.
	Tag bool
}

// The builtin styles.
var (
	Brief  = Style{}
	Normal = Style{Timestamp: true, Tag: true}
)

// Print returns the message m printed using the style s.
func (s Style) Print(m *Message) string {
	b := strings.Builder{}
	if s.Timestamp {
		b.WriteString(m.Time.Format("15:04:05.000"))
		b.WriteRune(' ')
	}
	fmt.Fprintf(&b, "%s: ", m.Severity.Short())
	if s.Tag && m.Tag != "" {
		fmt.Fprintf(&b, "[%s] ", m.Tag)
	}
	b.WriteString(m.Text)
	return b.String()
}
