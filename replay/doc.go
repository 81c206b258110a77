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

// Package replay is the contract between frame analyses and the replay
// engine that re-executes a recorded frame.
//
// An analysis drives the engine through a Controller, observing and
// instrumenting each recorded event through a Callbacks implementation.
// GPU objects needed by the instrumentation are created through a Device,
// and the recorded frame's object descriptions are looked up through
// Resources.
package replay
