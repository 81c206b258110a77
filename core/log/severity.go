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

// Severity defines the importance of a log message.
type Severity int32

// The set of severity levels, from least to most significant.
const (
	Verbose Severity = iota
	Debug
	Info
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Verbose:
		return "Verbose"
	case Debug:
		return "Debug"
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Fatal:
		return "Fatal"
	default:
		return "?"
	}
}

// Short returns the single-character name of the severity.
func (s Severity) Short() string {
	switch s {
	case Verbose:
		return "V"
	case Debug:
		return "D"
	case Info:
		return "I"
	case Warning:
		return "W"
	case Error:
		return "E"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}

// Filter is the interface implemented by types that filter log messages by
// severity.
type Filter interface {
	ShowSeverity(s Severity) bool
}

// ShowSeverity returns true if messages at severity t should be shown when
// filtering at severity s. It makes Severity implement Filter.
func (s Severity) ShowSeverity(t Severity) bool { return t >= s }
