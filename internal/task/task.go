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

// Package task implements the CPU worker pool the render graph submits
// its per-frame task graph into: a pool of worker goroutines draining a
// shared queue, with dependency signalling between tasks and a cooperative
// pump for non-worker threads.
package task

import "goarrg.com/debug"

// Priority selects whether a task participates in the dependency-signal
// protocol.
type Priority uint8

const (
	PriorityNormal     Priority = iota
	PriorityBackground          // does not wait on or send dependency signals
)

// SignalHandle indexes into an external signalling table owned by the
// caller (the renderer façade, in practice). SignalNone means the task
// carries no outbound/inbound dependency of its own.
type SignalHandle int32

const SignalNone SignalHandle = -1

// Task is a unit of CPU work: a callback, a priority, the signal handle
// the worker waits on before running it, and the signal handles to raise
// for every dependent once it completes.
type Task struct {
	Name     string
	Priority Priority
	Signal   SignalHandle
	Outbound []SignalHandle
	Run      func()
}

var logger = debug.NewLogger("framegraph", "internal", "task")

func abort(format string, args ...any) {
	logger.EPrintf(format, args...)
	panic("Fatal Error")
}
