// Copyright 2025 Arcade Team
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

package safe

import (
	"runtime/debug"

	"github.com/go-arcade/gatekeeper/pkg/log"
)

// Go starts f in a new goroutine and recovers any panic.
func Go(f func()) {
	go Do(f)
}

// GoNamed is Go with a name attached to the panic log line.
func GoNamed(name string, f func()) {
	go DoNamed(name, f)
}

// Do runs f and recovers any panic, logging the stack trace.
func Do(f func()) {
	DoNamed("", f)
}

// DoNamed runs f and recovers any panic, logging it under name.
func DoNamed(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("recovered from panic",
				"goroutine", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	f()
}
