/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package util holds infrastructure shared by every framegraph package
// that has no domain logic of its own: the copy-detection guard and the
// fatal-assertion helper it reports through.
package util

import "goarrg.com/debug"

var logger = debug.NewLogger("framegraph", "internal", "util")

func abort(fmt string, args ...any) {
	logger.EPrintf(fmt, args...)
	panic("Fatal Error")
}
